package universe

import (
	"testing"

	"github.com/maxsanz/keyword-universe/app/keyword"
)

func TestAssembler_Run_Conservation(t *testing.T) {
	assembler := NewAssembler()
	table := buildTable(
		&keyword.Merged{Keyword: "crm software", Volume: 5400},
		&keyword.Merged{Keyword: "best crm", Volume: 2900},
		&keyword.Merged{Keyword: "email marketing", Volume: 8100},
	)

	results := []*ParsedBatch{{
		BatchIndex: 0,
		Topics: []TopicAssignment{
			{Topic: "CRM", Tier: 1, Keywords: []string{"crm software", "best crm"}},
		},
	}}

	u := assembler.Run(results, nil, nil, table, Config{GroupingMode: GroupingThematic, TierCount: 3})

	assigned := 0
	for _, topic := range u.Topics {
		assigned += len(topic.Keywords)
	}
	if assigned+len(u.Unassigned) != len(table.Keywords) {
		t.Errorf("Conservation violated: %d assigned + %d unassigned != %d table keywords",
			assigned, len(u.Unassigned), len(table.Keywords))
	}
	if len(u.Unassigned) != 1 || u.Unassigned[0] != "email marketing" {
		t.Errorf("Expected 'email marketing' to be unassigned, got %v", u.Unassigned)
	}
}

func TestAssembler_Run_FailedBatchDegradesToUnassigned(t *testing.T) {
	assembler := NewAssembler()
	table := buildTable(
		&keyword.Merged{Keyword: "crm software", Volume: 5400},
		&keyword.Merged{Keyword: "niche keyword", Volume: 20},
	)

	results := []*ParsedBatch{{
		BatchIndex: 0,
		Topics: []TopicAssignment{
			{Topic: "CRM", Tier: 1, Keywords: []string{"crm software"}},
		},
	}}
	failures := []BatchFailure{{BatchIndex: 1, Reason: "completion timed out"}}

	u := assembler.Run(results, failures, nil, table, Config{GroupingMode: GroupingThematic, TierCount: 3})

	if len(u.Unassigned) != 1 || u.Unassigned[0] != "niche keyword" {
		t.Errorf("Expected failed batch's keyword in unassigned set, got %v", u.Unassigned)
	}
	if len(u.Failures) != 1 {
		t.Fatalf("Expected 1 recorded failure, got %d", len(u.Failures))
	}
	if u.Failures[0] != "batch 1: completion timed out" {
		t.Errorf("Unexpected failure record: %q", u.Failures[0])
	}
}

func TestAssembler_Run_ReconcilesTopicNamesAcrossBatches(t *testing.T) {
	assembler := NewAssembler()
	table := buildTable(
		&keyword.Merged{Keyword: "crm software", Volume: 5400},
		&keyword.Merged{Keyword: "crm pricing", Volume: 1300},
	)

	results := []*ParsedBatch{
		{
			BatchIndex: 0,
			Topics: []TopicAssignment{
				{Topic: "CRM Software", Tier: 2, Description: "Core CRM terms", Keywords: []string{"crm software"}},
			},
		},
		{
			BatchIndex: 1,
			Topics: []TopicAssignment{
				{Topic: "crm software", Tier: 1, Keywords: []string{"crm pricing"}},
			},
		},
	}

	u := assembler.Run(results, nil, nil, table, Config{GroupingMode: GroupingThematic, TierCount: 3})

	if len(u.Topics) != 1 {
		t.Fatalf("Expected case-insensitive names to reconcile into 1 topic, got %d", len(u.Topics))
	}
	topic := u.Topics[0]
	if topic.Topic != "CRM Software" {
		t.Errorf("Expected earliest batch to win the display name, got %q", topic.Topic)
	}
	if topic.Tier != 1 {
		t.Errorf("Expected best (lowest) tier to win, got %d", topic.Tier)
	}
	if topic.KeywordCount != 2 {
		t.Errorf("Expected both batches' keywords merged, got %d", topic.KeywordCount)
	}
	if topic.Volume != 6700 {
		t.Errorf("Expected volume recomputed from table (6700), got %d", topic.Volume)
	}
}

func TestAssembler_Run_ContestedKeywordGoesToLargerTopic(t *testing.T) {
	assembler := NewAssembler()
	table := buildTable(
		&keyword.Merged{Keyword: "crm software", Volume: 5400},
		&keyword.Merged{Keyword: "email automation", Volume: 9000},
		&keyword.Merged{Keyword: "shared keyword", Volume: 100},
	)

	results := []*ParsedBatch{
		{
			BatchIndex: 0,
			Topics: []TopicAssignment{
				{Topic: "CRM", Tier: 1, Keywords: []string{"crm software", "shared keyword"}},
			},
		},
		{
			BatchIndex: 1,
			Topics: []TopicAssignment{
				{Topic: "Email Marketing", Tier: 1, Keywords: []string{"email automation", "shared keyword"}},
			},
		},
	}

	u := assembler.Run(results, nil, nil, table, Config{GroupingMode: GroupingThematic, TierCount: 3})

	var winner *Topic
	for i := range u.Topics {
		for _, kw := range u.Topics[i].Keywords {
			if kw == "shared keyword" {
				if winner != nil {
					t.Fatal("Keyword assigned to more than one topic")
				}
				winner = &u.Topics[i]
			}
		}
	}
	if winner == nil {
		t.Fatal("Contested keyword was dropped entirely")
	}
	if winner.Topic != "Email Marketing" {
		t.Errorf("Expected contested keyword to go to the larger topic, got %q", winner.Topic)
	}
	if len(u.Warnings) == 0 {
		t.Error("Expected a conflict warning")
	}
	if len(u.Unassigned) != 0 {
		t.Errorf("Expected no unassigned keywords, got %v", u.Unassigned)
	}
}

func TestAssembler_Run_TopicOrdering(t *testing.T) {
	assembler := NewAssembler()
	table := buildTable(
		&keyword.Merged{Keyword: "alpha", Volume: 100},
		&keyword.Merged{Keyword: "bravo", Volume: 5000},
		&keyword.Merged{Keyword: "charlie", Volume: 300},
	)

	results := []*ParsedBatch{{
		BatchIndex: 0,
		Topics: []TopicAssignment{
			{Topic: "Small Tier One", Tier: 1, Keywords: []string{"alpha"}},
			{Topic: "Big Tier Two", Tier: 2, Keywords: []string{"bravo"}},
			{Topic: "Mid Tier One", Tier: 1, Keywords: []string{"charlie"}},
		},
	}}

	u := assembler.Run(results, nil, nil, table, Config{GroupingMode: GroupingThematic, TierCount: 3})

	want := []string{"Mid Tier One", "Small Tier One", "Big Tier Two"}
	for i, topic := range u.Topics {
		if topic.Topic != want[i] {
			t.Errorf("Position %d: expected %q, got %q", i, want[i], topic.Topic)
		}
	}
}

func TestAssembler_Run_PriorityFromTierAndVolume(t *testing.T) {
	assembler := NewAssembler()
	table := buildTable(
		&keyword.Merged{Keyword: "huge", Volume: 10000},
		&keyword.Merged{Keyword: "big", Volume: 5000},
		&keyword.Merged{Keyword: "mid", Volume: 1000},
		&keyword.Merged{Keyword: "tiny", Volume: 10},
	)

	results := []*ParsedBatch{{
		BatchIndex: 0,
		Topics: []TopicAssignment{
			{Topic: "Huge", Tier: 2, Keywords: []string{"huge"}},
			{Topic: "Big", Tier: 2, Keywords: []string{"big"}},
			{Topic: "Mid", Tier: 3, Keywords: []string{"mid"}},
			{Topic: "Tiny Tier One", Tier: 1, Keywords: []string{"tiny"}},
		},
	}}

	u := assembler.Run(results, nil, nil, table, Config{GroupingMode: GroupingThematic, TierCount: 3})

	priorities := make(map[string]Priority)
	for _, topic := range u.Topics {
		priorities[topic.Topic] = topic.Priority
	}

	if priorities["Huge"] != PriorityHigh {
		t.Errorf("Expected top-quartile volume to be high priority, got %q", priorities["Huge"])
	}
	if priorities["Tiny Tier One"] != PriorityHigh {
		t.Errorf("Expected tier 1 to force high priority regardless of volume, got %q", priorities["Tiny Tier One"])
	}
	if priorities["Big"] != PriorityMedium {
		t.Errorf("Expected second-quartile volume to be medium priority, got %q", priorities["Big"])
	}
	if priorities["Mid"] != PriorityLow {
		t.Errorf("Expected bottom-half volume to be low priority, got %q", priorities["Mid"])
	}
}

func TestAssembler_Run_GapFiltering(t *testing.T) {
	assembler := NewAssembler()
	table := buildTable(&keyword.Merged{Keyword: "crm software", Volume: 5400})

	results := []*ParsedBatch{{
		BatchIndex: 0,
		Topics: []TopicAssignment{
			{Topic: "CRM Software", Tier: 1, Keywords: []string{"crm software"}},
		},
	}}
	gaps := []ContentGap{
		{Topic: "CRM Integrations", EstimatedVolume: 4400},
		{Topic: "crm software", EstimatedVolume: 9000}, // collides with a topic
		{Topic: "Tiny Niche", EstimatedVolume: 20},     // below floor
	}

	u := assembler.Run(results, nil, gaps, table, Config{GroupingMode: GroupingThematic, TierCount: 3, GapVolumeFloor: 100})

	if len(u.Gaps) != 1 {
		t.Fatalf("Expected 1 surviving gap, got %d", len(u.Gaps))
	}
	if u.Gaps[0].Topic != "CRM Integrations" {
		t.Errorf("Expected 'CRM Integrations' to survive filtering, got %q", u.Gaps[0].Topic)
	}
}

func TestAssembler_Run_SummaryFallback(t *testing.T) {
	assembler := NewAssembler()
	table := buildTable(&keyword.Merged{Keyword: "crm software", Volume: 5400})

	results := []*ParsedBatch{{
		BatchIndex: 0,
		Topics: []TopicAssignment{
			{Topic: "CRM", Tier: 1, Keywords: []string{"crm software"}},
		},
	}}

	u := assembler.Run(results, nil, nil, table, Config{GroupingMode: GroupingThematic, TierCount: 3})

	if u.Summary == "" {
		t.Error("Expected a deterministic fallback summary when no batch produced one")
	}

	results[0].Summary = "Model summary"
	u = assembler.Run(results, nil, nil, table, Config{GroupingMode: GroupingThematic, TierCount: 3})
	if u.Summary != "Model summary" {
		t.Errorf("Expected the model summary to be preferred, got %q", u.Summary)
	}
}

func TestAssembler_Run_VolumeConservation(t *testing.T) {
	assembler := NewAssembler()
	table := buildTable(
		&keyword.Merged{Keyword: "crm software", Volume: 5400},
		&keyword.Merged{Keyword: "best crm", Volume: 2900},
		&keyword.Merged{Keyword: "email marketing", Volume: 8100},
	)

	results := []*ParsedBatch{{
		BatchIndex: 0,
		Topics: []TopicAssignment{
			{Topic: "CRM", Tier: 1, Keywords: []string{"crm software", "best crm"}},
			{Topic: "Email", Tier: 1, Keywords: []string{"email marketing"}},
		},
	}}

	u := assembler.Run(results, nil, nil, table, Config{GroupingMode: GroupingThematic, TierCount: 3})

	topicVolume := 0
	for _, topic := range u.Topics {
		topicVolume += topic.Volume
	}
	unassignedVolume := 0
	for _, kw := range u.Unassigned {
		unassignedVolume += table.Keywords[kw].Volume
	}
	if topicVolume+unassignedVolume != table.TotalVolume() {
		t.Errorf("Volume not conserved: topics %d + unassigned %d != table %d",
			topicVolume, unassignedVolume, table.TotalVolume())
	}
}
