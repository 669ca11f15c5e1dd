package keyword

import (
	"errors"
	"testing"
)

func TestNormalizer_Run_AhrefsHeaders(t *testing.T) {
	normalizer := NewNormalizer(nil)

	rows := []RawRow{
		{"Keyword": "crm software", "Volume": "5400", "KD": "72", "CPC": "$14.50", "Traffic": "1200"},
		{"Keyword": "best crm", "Volume": "2900", "KD": "65", "CPC": "$11.20", "Traffic": "800"},
	}

	records, coerced, err := normalizer.Run(rows, "competitor-a.com", "ahrefs.csv")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if coerced != 0 {
		t.Errorf("Expected 0 coerced cells, got %d", coerced)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.Keyword != "crm software" {
		t.Errorf("Expected keyword 'crm software', got %q", first.Keyword)
	}
	if first.Volume != 5400 {
		t.Errorf("Expected volume 5400, got %d", first.Volume)
	}
	if first.Difficulty == nil || *first.Difficulty != 72 {
		t.Errorf("Expected difficulty 72, got %v", first.Difficulty)
	}
	if first.CPC == nil || *first.CPC != 14.50 {
		t.Errorf("Expected CPC 14.50 after currency strip, got %v", first.CPC)
	}
	if first.SourceDomain != "competitor-a.com" {
		t.Errorf("Expected source domain to be carried through, got %q", first.SourceDomain)
	}
}

func TestNormalizer_Run_SemrushAPIColumns(t *testing.T) {
	normalizer := NewNormalizer(nil)

	rows := []RawRow{
		{"Ph": "project management tool", "Nq": "8100", "Kd": "78", "Cp": "9.40", "Tr": "2.1"},
	}

	records, _, err := normalizer.Run(rows, "example.com", "semrush:example.com")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].Keyword != "project management tool" {
		t.Errorf("Expected Ph column to map to keyword, got %q", records[0].Keyword)
	}
	if records[0].Volume != 8100 {
		t.Errorf("Expected Nq column to map to volume 8100, got %d", records[0].Volume)
	}
}

func TestNormalizer_Run_SearchConsoleHeaders(t *testing.T) {
	normalizer := NewNormalizer(nil)

	rows := []RawRow{
		{"Query": "how to export keywords", "Impressions": "1,250", "Clicks": "87"},
	}

	records, _, err := normalizer.Run(rows, "", "gsc.csv")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if records[0].Volume != 1250 {
		t.Errorf("Expected thousands separator to be stripped, got volume %d", records[0].Volume)
	}
	if records[0].Traffic == nil || *records[0].Traffic != 87 {
		t.Errorf("Expected clicks to map to traffic 87, got %v", records[0].Traffic)
	}
}

func TestNormalizer_Run_NoKeywordColumn(t *testing.T) {
	normalizer := NewNormalizer(nil)

	rows := []RawRow{
		{"Position": "3", "URL": "https://example.com/page"},
	}

	_, _, err := normalizer.Run(rows, "", "broken.csv")
	if err == nil {
		t.Fatal("Expected schema error for missing keyword column")
	}

	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("Expected *SchemaError, got %T", err)
	}
	if schemaErr.SourceFile != "broken.csv" {
		t.Errorf("Expected source file in error, got %q", schemaErr.SourceFile)
	}
}

func TestNormalizer_Run_CoercedAndDroppedCells(t *testing.T) {
	normalizer := NewNormalizer(nil)

	rows := []RawRow{
		{"Keyword": "good keyword", "Volume": "100", "KD": "n/a"},
		{"Keyword": "   ", "Volume": "50"},
		{"Keyword": "another keyword", "Volume": "not a number"},
	}

	records, coerced, err := normalizer.Run(rows, "", "messy.csv")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Expected empty-keyword row to be dropped, got %d records", len(records))
	}
	if coerced != 2 {
		t.Errorf("Expected 2 coerced cells (KD and Volume), got %d", coerced)
	}
	if records[0].Difficulty != nil {
		t.Errorf("Expected unparseable difficulty to be absent, got %v", records[0].Difficulty)
	}
	if records[1].Volume != 0 {
		t.Errorf("Expected unparseable volume to default to 0, got %d", records[1].Volume)
	}
}

func TestNormalizer_Run_ProfileSynonyms(t *testing.T) {
	normalizer := NewNormalizer(map[string][]string{
		"keyword": {"Suchbegriff"},
		"volume":  {"Suchvolumen"},
	})

	rows := []RawRow{
		{"Suchbegriff": "crm vergleich", "Suchvolumen": "720"},
	}

	records, _, err := normalizer.Run(rows, "", "sistrix.csv")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if records[0].Keyword != "crm vergleich" {
		t.Errorf("Expected profile synonym to map keyword column, got %q", records[0].Keyword)
	}
	if records[0].Volume != 720 {
		t.Errorf("Expected profile synonym to map volume column, got %d", records[0].Volume)
	}
}

func TestNormalizeText_Idempotent(t *testing.T) {
	inputs := []string{
		"  CRM   Software ",
		"CRM Software",
		"crm software",
		"Ｃｒｍ Software", // fullwidth forms
	}

	for _, input := range inputs {
		once := NormalizeText(input)
		twice := NormalizeText(once)
		if once != twice {
			t.Errorf("NormalizeText not idempotent for %q: %q != %q", input, once, twice)
		}
		if once != "crm software" {
			t.Errorf("Expected all variants to normalize to 'crm software', got %q from %q", once, input)
		}
	}
}

func TestParseNumber_Formats(t *testing.T) {
	cases := []struct {
		input string
		want  float64
		ok    bool
	}{
		{"1,250", 1250, true},
		{"$14.50", 14.5, true},
		{"€9.99", 9.99, true},
		{"72%", 72, true},
		{"0", 0, true},
		{"", 0, false},
		{"n/a", 0, false},
	}

	for _, tc := range cases {
		got, ok := parseNumber(tc.input)
		if ok != tc.ok {
			t.Errorf("parseNumber(%q): expected ok=%v, got %v", tc.input, tc.ok, ok)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("parseNumber(%q): expected %v, got %v", tc.input, tc.want, got)
		}
	}
}
