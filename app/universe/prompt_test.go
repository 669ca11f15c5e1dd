package universe

import (
	"errors"
	"strings"
	"testing"

	"github.com/maxsanz/keyword-universe/app/keyword"
)

func buildTable(keywords ...*keyword.Merged) *keyword.Table {
	table := &keyword.Table{Keywords: make(map[string]*keyword.Merged)}
	for _, m := range keywords {
		table.Keywords[m.Keyword] = m
		table.TotalInputRows++
	}
	return table
}

func TestBuilder_Run_InvalidTierCount(t *testing.T) {
	builder := NewBuilder()
	table := buildTable(&keyword.Merged{Keyword: "crm software", Volume: 100})

	for _, tierCount := range []int{1, 6, -1} {
		cfg := Config{GroupingMode: GroupingThematic, TierCount: tierCount}
		_, err := builder.Run(table, cfg)
		if err == nil {
			t.Errorf("Expected error for tier count %d", tierCount)
			continue
		}
		var configErr *ConfigError
		if !errors.As(err, &configErr) {
			t.Errorf("Expected *ConfigError for tier count %d, got %T", tierCount, err)
		}
	}
}

func TestBuilder_Run_UnknownGroupingMode(t *testing.T) {
	builder := NewBuilder()
	table := buildTable(&keyword.Merged{Keyword: "crm software", Volume: 100})

	cfg := Config{GroupingMode: "alphabetical", TierCount: 3}
	_, err := builder.Run(table, cfg)
	if err == nil {
		t.Fatal("Expected error for unknown grouping mode")
	}
	var configErr *ConfigError
	if !errors.As(err, &configErr) {
		t.Fatalf("Expected *ConfigError, got %T", err)
	}
	if configErr.Field != "grouping_mode" {
		t.Errorf("Expected field 'grouping_mode', got %q", configErr.Field)
	}
}

func TestBuilder_Run_BatchSizingAndOrder(t *testing.T) {
	builder := NewBuilder()
	table := buildTable(
		&keyword.Merged{Keyword: "low", Volume: 10},
		&keyword.Merged{Keyword: "mid", Volume: 100},
		&keyword.Merged{Keyword: "high", Volume: 1000},
	)

	cfg := Config{GroupingMode: GroupingThematic, TierCount: 3, BatchSize: 2}
	batches, err := builder.Run(table, cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(batches) != 2 {
		t.Fatalf("Expected 2 batches for 3 keywords at size 2, got %d", len(batches))
	}
	if batches[0].Total != 2 || batches[1].Total != 2 {
		t.Errorf("Expected every batch to carry total 2, got %d and %d", batches[0].Total, batches[1].Total)
	}

	// Highest volume first, so a failed later batch costs the least.
	if batches[0].Keywords[0].Keyword != "high" {
		t.Errorf("Expected first batch to start with highest-volume keyword, got %q", batches[0].Keywords[0].Keyword)
	}
	if len(batches[1].Keywords) != 1 || batches[1].Keywords[0].Keyword != "low" {
		t.Errorf("Expected last batch to hold the remainder, got %v", batches[1].Keywords)
	}
}

func TestBuilder_Run_PromptContract(t *testing.T) {
	builder := NewBuilder()
	table := buildTable(&keyword.Merged{Keyword: "crm software", Volume: 5400, Difficulty: floatPtr(72)})

	cfg := Config{
		GroupingMode:       GroupingIntent,
		TierCount:          4,
		CustomInstructions: "Prioritize B2B topics.",
		SiteContext:        "Site: Example (https://example.com)",
	}
	batches, err := builder.Run(table, cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("Expected 1 batch, got %d", len(batches))
	}

	prompt := batches[0].Prompt
	for _, want := range []string{
		"batch 1 of 1",
		"1 (highest) through 4",
		"# SITE CONTEXT",
		"Prioritize B2B topics.",
		"transactional",
		`"topics"`,
		"crm software | 5400 | 72",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Expected prompt to contain %q", want)
		}
	}

	if batches[0].System == "" {
		t.Error("Expected a system prompt on every batch")
	}
}

func TestBuilder_Run_MissingDifficultyRendersDash(t *testing.T) {
	builder := NewBuilder()
	table := buildTable(&keyword.Merged{Keyword: "niche keyword", Volume: 40})

	batches, err := builder.Run(table, Config{GroupingMode: GroupingThematic, TierCount: 3})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(batches[0].Prompt, "niche keyword | 40 | -") {
		t.Error("Expected missing difficulty to render as '-'")
	}
}

func TestBuilder_Run_EmptyTable(t *testing.T) {
	builder := NewBuilder()
	table := &keyword.Table{Keywords: map[string]*keyword.Merged{}}

	batches, err := builder.Run(table, Config{GroupingMode: GroupingThematic, TierCount: 3})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(batches) != 0 {
		t.Errorf("Expected no batches for empty table, got %d", len(batches))
	}
}

func TestGapPrompt_ListsCurrentTopics(t *testing.T) {
	table := buildTable(&keyword.Merged{Keyword: "crm software", Volume: 5400})
	topics := []Topic{
		{Topic: "CRM Software", Tier: 1, Volume: 5400},
	}

	prompt := GapPrompt(table, topics, Config{GroupingMode: GroupingThematic, TierCount: 3})

	if !strings.Contains(prompt, "CRM Software (tier 1, volume 5400)") {
		t.Error("Expected gap prompt to list assembled topics")
	}
	if !strings.Contains(prompt, `"gaps"`) {
		t.Error("Expected gap prompt to carry the response contract")
	}
}

func floatPtr(v float64) *float64 {
	return &v
}
