package universe

import (
	"fmt"
	"time"

	"github.com/maxsanz/keyword-universe/app/keyword"
)

// Analysis configuration types

type GroupingMode string

const (
	GroupingThematic GroupingMode = "thematic"
	GroupingIntent   GroupingMode = "intent"
	GroupingFunnel   GroupingMode = "funnel"
)

const (
	MinTierCount = 2
	MaxTierCount = 5

	DefaultBatchSize      = 1000
	DefaultGapVolumeFloor = 100
)

// Config is the immutable per-run analysis configuration. It is passed
// explicitly into each component so batches can run concurrently without
// shared state.
type Config struct {
	GroupingMode       GroupingMode
	TierCount          int
	BatchSize          int
	CustomInstructions string
	IncludeGaps        bool
	GapVolumeFloor     int
	SiteContext        string
}

// ConfigError indicates an invalid analysis configuration. It is the only
// error class that aborts a run before any model call, so that malformed
// requests never waste provider spend.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s %s", e.Field, e.Reason)
}

// Validate checks bounds and fills defaults for optional fields.
func (c *Config) Validate() error {
	switch c.GroupingMode {
	case GroupingThematic, GroupingIntent, GroupingFunnel:
	case "":
		c.GroupingMode = GroupingThematic
	default:
		return &ConfigError{Field: "grouping_mode", Reason: fmt.Sprintf("unknown mode %q", c.GroupingMode)}
	}

	if c.TierCount < MinTierCount || c.TierCount > MaxTierCount {
		return &ConfigError{Field: "tier_count", Reason: fmt.Sprintf("must be between %d and %d, got %d", MinTierCount, MaxTierCount, c.TierCount)}
	}

	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchSize < 1 {
		return &ConfigError{Field: "batch_size", Reason: fmt.Sprintf("must be positive, got %d", c.BatchSize)}
	}

	if c.GapVolumeFloor == 0 {
		c.GapVolumeFloor = DefaultGapVolumeFloor
	}

	return nil
}

// Batch types

// Batch is one model-sized slice of the unified table. Each batch carries a
// fully self-contained prompt; the model has no memory across batches, so
// topic names may drift between them and are reconciled by the Assembler.
type Batch struct {
	Index    int
	Total    int
	Keywords []*keyword.Merged
	System   string
	Prompt   string
}

// InputSet returns the normalized keywords in this batch, for provenance
// checks against the model's output.
func (b *Batch) InputSet() map[string]struct{} {
	set := make(map[string]struct{}, len(b.Keywords))
	for _, k := range b.Keywords {
		set[k.Keyword] = struct{}{}
	}
	return set
}

// Parsed model output

// TopicAssignment is one topic returned by the model for one batch.
type TopicAssignment struct {
	Topic       string
	Tier        int
	Intent      string
	Description string
	Keywords    []string
}

// ParsedBatch is the validated decoding of one batch's model response.
type ParsedBatch struct {
	BatchIndex int
	Summary    string
	Topics     []TopicAssignment
	Warnings   []string
}

// BatchFailure marks one batch whose model call or decoding failed. It is
// non-fatal: the batch's keywords degrade to the universe's unassigned set.
type BatchFailure struct {
	BatchIndex int
	Reason     string
}

func (f BatchFailure) String() string {
	return fmt.Sprintf("batch %d: %s", f.BatchIndex, f.Reason)
}

// Assembled universe types

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Topic is a reconciled, aggregated keyword cluster.
type Topic struct {
	Topic         string   `json:"topic"`
	Tier          int      `json:"tier"`
	Intent        string   `json:"intent,omitempty"`
	KeywordCount  int      `json:"keyword_count"`
	Volume        int      `json:"volume"`
	Traffic       float64  `json:"traffic"`
	AvgDifficulty *float64 `json:"avg_difficulty,omitempty"`
	Priority      Priority `json:"priority"`
	Description   string   `json:"description"`
	Keywords      []string `json:"keywords"`
}

// ContentGap is a model-suggested topic with search demand but no keyword
// coverage in the analyzed set.
type ContentGap struct {
	Topic           string `json:"topic"`
	EstimatedVolume int    `json:"estimated_volume"`
	Description     string `json:"description"`
	Rationale       string `json:"rationale,omitempty"`
}

// SourceStats reports how much of the input actually made it through the
// pipeline.
type SourceStats struct {
	TotalKeywords   int     `json:"total_keywords"`
	TotalSources    int     `json:"total_sources"`
	DedupRate       float64 `json:"dedup_rate"`
	DroppedByCap    int     `json:"dropped_by_cap,omitempty"`
	BrandedFiltered int     `json:"branded_filtered,omitempty"`
	CoercedCells    int     `json:"coerced_cells,omitempty"`
}

// Universe is the terminal artifact of a run: immutable after assembly and
// handed to export and visualization consumers as a read-only value.
type Universe struct {
	Summary     string       `json:"summary"`
	Topics      []Topic      `json:"topics"`
	Gaps        []ContentGap `json:"gaps,omitempty"`
	Unassigned  []string     `json:"unassigned_keywords"`
	GeneratedAt time.Time    `json:"generated_at"`
	Provider    string       `json:"provider,omitempty"`
	Stats       SourceStats  `json:"source_stats"`
	Warnings    []string     `json:"warnings,omitempty"`
	Failures    []string     `json:"batch_failures,omitempty"`
}
