package database

import (
	"time"
)

// Run statuses
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

type Run struct {
	ID             string
	Profile        string
	Status         string
	GroupingMode   string
	TierCount      int
	Providers      []string
	SiteURL        string
	SemrushDomains []string
	Error          string
	Stats          string // JSON-encoded SourceStats snapshot
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

type RunFile struct {
	ID           int64
	RunID        string
	Filename     string
	StoredPath   string
	SourceDomain string
	RowCount     int
	Error        string
}

type Universe struct {
	ID          string
	RunID       string
	Provider    string
	ContentHash string
	Payload     string // JSON-encoded universe.Universe
	CreatedAt   time.Time
}
