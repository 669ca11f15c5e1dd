package keyword

import (
	"log/slog"
	"strings"
)

// BrandFilter removes branded keywords from a merged table. Competitor
// exports are dominated by the competitor's own brand terms, which are not
// actionable topics for anyone else.
type BrandFilter struct {
	terms []string
}

func NewBrandFilter(terms []string) *BrandFilter {
	normalized := make([]string, 0, len(terms))
	for _, term := range terms {
		t := NormalizeText(term)
		if t != "" {
			normalized = append(normalized, t)
		}
	}
	return &BrandFilter{terms: normalized}
}

// Run deletes keywords containing any brand term and records the removed
// count on the table.
func (f *BrandFilter) Run(table *Table) int {
	if len(f.terms) == 0 {
		return 0
	}

	removed := 0
	for key := range table.Keywords {
		for _, term := range f.terms {
			if strings.Contains(key, term) {
				delete(table.Keywords, key)
				removed++
				break
			}
		}
	}

	table.BrandedFiltered += removed
	if removed > 0 {
		slog.Info("Filtered branded keywords", "removed", removed, "remaining", len(table.Keywords))
	}
	return removed
}
