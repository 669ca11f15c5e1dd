package database

import "time"

type RunRepository interface {
	CreateRun(run *Run) error
	GetRun(id string) (*Run, error)
	GetRunCount() (int, error)
	ListRuns(limit int) ([]Run, error)
	UpdateRunStatus(id, status, errMsg string) error
	UpdateRunStats(id, stats string) error

	AddRunFile(file *RunFile) error
	GetRunFiles(runID string) ([]RunFile, error)
	UpdateRunFile(id int64, rowCount int, errMsg string) error
}

type UniverseRepository interface {
	StoreUniverse(u *Universe) error
	GetUniverse(runID, provider string) (*Universe, error)
	GetUniverses(runID string) ([]Universe, error)
	GetUniverseCount() (int, error)
	FindCached(contentHash, provider string, notBefore time.Time) (*Universe, error)
	DeleteOlderThan(cutoff time.Time) (int64, error)
}
