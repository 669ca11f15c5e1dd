package universe

import (
	"strings"
	"testing"

	"github.com/maxsanz/keyword-universe/app/keyword"
)

func testBatch(keywords ...string) *Batch {
	batch := &Batch{Index: 0, Total: 1}
	for _, kw := range keywords {
		batch.Keywords = append(batch.Keywords, &keyword.Merged{Keyword: kw})
	}
	return batch
}

func TestParser_Run_StrictJSON(t *testing.T) {
	parser := NewParser()
	batch := testBatch("crm software", "best crm")
	cfg := Config{GroupingMode: GroupingThematic, TierCount: 3}

	raw := `{"summary": "CRM landscape", "topics": [{"topic": "CRM Software", "tier": 1, "intent": "commercial", "description": "Core CRM terms", "keywords": ["crm software", "best crm"]}]}`

	result, err := parser.Run(raw, batch, cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.Summary != "CRM landscape" {
		t.Errorf("Expected summary to survive, got %q", result.Summary)
	}
	if len(result.Topics) != 1 {
		t.Fatalf("Expected 1 topic, got %d", len(result.Topics))
	}
	topic := result.Topics[0]
	if topic.Topic != "CRM Software" || topic.Tier != 1 || topic.Intent != "commercial" {
		t.Errorf("Unexpected topic decoding: %+v", topic)
	}
	if len(topic.Keywords) != 2 {
		t.Errorf("Expected 2 keywords, got %v", topic.Keywords)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings for a clean response, got %v", result.Warnings)
	}
}

func TestParser_Run_RepairsFencedResponse(t *testing.T) {
	parser := NewParser()
	batch := testBatch("crm software")
	cfg := Config{GroupingMode: GroupingThematic, TierCount: 3}

	raw := "Here is the clustering you asked for:\n```json\n{\"topics\": [{\"topic\": \"CRM\", \"tier\": 2, \"keywords\": [\"crm software\"]}]}\n```\nLet me know if you need anything else."

	result, err := parser.Run(raw, batch, cfg)
	if err != nil {
		t.Fatalf("Expected repair to recover fenced JSON, got error: %v", err)
	}
	if len(result.Topics) != 1 {
		t.Fatalf("Expected 1 topic after repair, got %d", len(result.Topics))
	}
}

func TestParser_Run_UnparseableResponse(t *testing.T) {
	parser := NewParser()
	batch := testBatch("crm software")
	cfg := Config{GroupingMode: GroupingThematic, TierCount: 3}

	_, err := parser.Run("I could not cluster these keywords, sorry.", batch, cfg)
	if err == nil {
		t.Fatal("Expected error for a response with no JSON object")
	}
}

func TestParser_Run_ClampsOutOfRangeTier(t *testing.T) {
	parser := NewParser()
	batch := testBatch("crm software", "free crm")
	cfg := Config{GroupingMode: GroupingThematic, TierCount: 3}

	raw := `{"topics": [
		{"topic": "CRM", "tier": 9, "keywords": ["crm software"]},
		{"topic": "Free Tools", "tier": 0, "keywords": ["free crm"]}
	]}`

	result, err := parser.Run(raw, batch, cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.Topics[0].Tier != 3 {
		t.Errorf("Expected tier 9 clamped to 3, got %d", result.Topics[0].Tier)
	}
	if result.Topics[1].Tier != 1 {
		t.Errorf("Expected tier 0 clamped to 1, got %d", result.Topics[1].Tier)
	}
	if len(result.Warnings) != 2 {
		t.Errorf("Expected a warning per clamped tier, got %v", result.Warnings)
	}
}

func TestParser_Run_DiscardsInventedKeywords(t *testing.T) {
	parser := NewParser()
	batch := testBatch("crm software")
	cfg := Config{GroupingMode: GroupingThematic, TierCount: 3}

	raw := `{"topics": [{"topic": "CRM", "tier": 1, "keywords": ["crm software", "enterprise crm pricing"]}]}`

	result, err := parser.Run(raw, batch, cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(result.Topics[0].Keywords) != 1 {
		t.Errorf("Expected invented keyword to be discarded, got %v", result.Topics[0].Keywords)
	}
	found := false
	for _, warning := range result.Warnings {
		if strings.Contains(warning, "not present in the batch input") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a provenance warning, got %v", result.Warnings)
	}
}

func TestParser_Run_FirstAssignmentWinsWithinBatch(t *testing.T) {
	parser := NewParser()
	batch := testBatch("crm software")
	cfg := Config{GroupingMode: GroupingThematic, TierCount: 3}

	raw := `{"topics": [
		{"topic": "CRM", "tier": 1, "keywords": ["crm software"]},
		{"topic": "Software", "tier": 2, "keywords": ["crm software"]}
	]}`

	result, err := parser.Run(raw, batch, cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(result.Topics[0].Keywords) != 1 {
		t.Errorf("Expected first topic to keep the keyword, got %v", result.Topics[0].Keywords)
	}
	if len(result.Topics[1].Keywords) != 0 {
		t.Errorf("Expected duplicate assignment to be dropped, got %v", result.Topics[1].Keywords)
	}
}

func TestParser_Run_AcceptsExampleKeywordsField(t *testing.T) {
	parser := NewParser()
	batch := testBatch("crm software")
	cfg := Config{GroupingMode: GroupingThematic, TierCount: 3}

	raw := `{"topics": [{"topic": "CRM", "tier": 1, "example_keywords": ["crm software"]}]}`

	result, err := parser.Run(raw, batch, cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(result.Topics[0].Keywords) != 1 {
		t.Errorf("Expected example_keywords to be accepted, got %v", result.Topics[0].Keywords)
	}
}

func TestParser_Run_NormalizesIntent(t *testing.T) {
	parser := NewParser()
	batch := testBatch("crm software")
	cfg := Config{GroupingMode: GroupingIntent, TierCount: 3}

	raw := `{"topics": [{"topic": "CRM", "tier": 1, "intent": " Commercial ", "keywords": ["crm software"]}]}`

	result, err := parser.Run(raw, batch, cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Topics[0].Intent != "commercial" {
		t.Errorf("Expected normalized intent 'commercial', got %q", result.Topics[0].Intent)
	}
}

func TestParser_ParseGaps(t *testing.T) {
	parser := NewParser()

	raw := "```json\n{\"gaps\": [{\"topic\": \"CRM Integrations\", \"estimated_volume\": 4400, \"description\": \"Integration guides\", \"rationale\": \"No coverage\"}]}\n```"

	gaps, err := parser.ParseGaps(raw)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(gaps) != 1 {
		t.Fatalf("Expected 1 gap, got %d", len(gaps))
	}
	if gaps[0].Topic != "CRM Integrations" || gaps[0].EstimatedVolume != 4400 {
		t.Errorf("Unexpected gap decoding: %+v", gaps[0])
	}
}
