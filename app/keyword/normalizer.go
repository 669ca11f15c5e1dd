package keyword

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// SchemaError indicates a source whose headers could not be mapped onto the
// canonical record. It is fatal for that file, not for the whole run.
type SchemaError struct {
	SourceFile string
	Headers    []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("no keyword column found in %s (headers: %s)", e.SourceFile, strings.Join(e.Headers, ", "))
}

// Canonical field names used by the synonym table.
const (
	fieldKeyword    = "keyword"
	fieldVolume     = "volume"
	fieldDifficulty = "difficulty"
	fieldCPC        = "cpc"
	fieldTraffic    = "traffic"
)

// defaultSynonyms maps cleaned header names to canonical fields. Covers the
// Ahrefs, Semrush and Google Search Console export formats plus the short
// Semrush API column codes (Ph, Nq, Kd, Cp, Tr).
var defaultSynonyms = map[string]string{
	"keyword":     fieldKeyword,
	"keywordtext": fieldKeyword,
	"query":       fieldKeyword,
	"term":        fieldKeyword,
	"searchterm":  fieldKeyword,
	"ph":          fieldKeyword,

	"volume":          fieldVolume,
	"searchvolume":    fieldVolume,
	"monthlysearches": fieldVolume,
	"monthlyvolume":   fieldVolume,
	"impressions":     fieldVolume,
	"nq":              fieldVolume,

	"kd":                fieldDifficulty,
	"difficulty":        fieldDifficulty,
	"keyworddifficulty": fieldDifficulty,

	"cpc":          fieldCPC,
	"cpcusd":       fieldCPC,
	"costperclick": fieldCPC,
	"cp":           fieldCPC,

	"traffic":        fieldTraffic,
	"organictraffic": fieldTraffic,
	"clicks":         fieldTraffic,
	"tr":             fieldTraffic,
}

type Normalizer struct {
	synonyms map[string]string
}

// NewNormalizer builds a normalizer from the default synonym table plus any
// profile-level extras, given as canonical field -> additional header names.
func NewNormalizer(extra map[string][]string) *Normalizer {
	synonyms := make(map[string]string, len(defaultSynonyms))
	for header, field := range defaultSynonyms {
		synonyms[header] = field
	}
	for field, headers := range extra {
		for _, header := range headers {
			synonyms[cleanHeader(header)] = field
		}
	}
	return &Normalizer{synonyms: synonyms}
}

// Run maps raw rows onto canonical records. Row order is preserved and no
// deduplication happens here; that is the Merger's job. Rows whose keyword is
// empty after normalization are dropped. Non-numeric metric cells are treated
// as absent rather than zero, and the count of such cells is reported so the
// caller can surface it without failing the file.
func (n *Normalizer) Run(rows []RawRow, sourceDomain, sourceFile string) ([]Record, int, error) {
	if len(rows) == 0 {
		return nil, 0, nil
	}

	mapping := n.detectColumns(rows[0])
	if _, ok := mapping[fieldKeyword]; !ok {
		headers := make([]string, 0, len(rows[0]))
		for header := range rows[0] {
			headers = append(headers, header)
		}
		return nil, 0, &SchemaError{SourceFile: sourceFile, Headers: headers}
	}

	records := make([]Record, 0, len(rows))
	coerced := 0
	dropped := 0

	for _, row := range rows {
		text := NormalizeText(row[mapping[fieldKeyword]])
		if text == "" {
			dropped++
			continue
		}

		rec := Record{
			Keyword:      text,
			SourceDomain: sourceDomain,
			SourceFile:   sourceFile,
		}

		if header, ok := mapping[fieldVolume]; ok {
			if v, ok := parseNumber(row[header]); ok {
				rec.Volume = int(v)
			} else if strings.TrimSpace(row[header]) != "" {
				coerced++
			}
		}
		if header, ok := mapping[fieldDifficulty]; ok {
			rec.Difficulty = parseOptional(row[header], &coerced)
		}
		if header, ok := mapping[fieldCPC]; ok {
			rec.CPC = parseOptional(row[header], &coerced)
		}
		if header, ok := mapping[fieldTraffic]; ok {
			rec.Traffic = parseOptional(row[header], &coerced)
		}
		if rec.Volume < 0 {
			rec.Volume = 0
		}

		records = append(records, rec)
	}

	if coerced > 0 || dropped > 0 {
		slog.Info("Normalized source",
			"file", sourceFile,
			"rows", len(rows),
			"records", len(records),
			"coerced_cells", coerced,
			"dropped_empty", dropped)
	}

	return records, coerced, nil
}

// detectColumns matches each header against the synonym table. Headers are
// visited in sorted order so detection is deterministic when several headers
// map to the same canonical field; the first match per field wins.
func (n *Normalizer) detectColumns(row RawRow) map[string]string {
	headers := make([]string, 0, len(row))
	for header := range row {
		headers = append(headers, header)
	}
	sort.Strings(headers)

	mapping := make(map[string]string)
	for _, header := range headers {
		field, ok := n.synonyms[cleanHeader(header)]
		if !ok {
			continue
		}
		if _, taken := mapping[field]; !taken {
			mapping[field] = header
		}
	}
	return mapping
}

// cleanHeader lowercases a header and strips everything that is not a letter
// or digit, so "Search Volume", "search_volume" and "Search-Volume" collide.
func cleanHeader(header string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(header)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeText produces the canonical identity form of a keyword:
// NFKC-normalized, case-folded, whitespace-collapsed.
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

func parseOptional(cell string, coerced *int) *float64 {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" {
		return nil
	}
	if v, ok := parseNumber(trimmed); ok {
		return &v
	}
	*coerced++
	return nil
}

// parseNumber accepts the numeric formats seen in SEO exports: thousands
// separators, currency prefixes and trailing percent signs.
func parseNumber(cell string) (float64, bool) {
	s := strings.TrimSpace(cell)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimPrefix(s, "€")
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
