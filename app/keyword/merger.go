package keyword

import (
	"log/slog"
	"sort"
	"strings"
)

type Merger struct {
	policy      MergePolicy
	maxKeywords int
}

// NewMerger creates a merger with the given policy and keyword cap. A cap of
// zero or less uses the default of 10000. The cap exists because the
// downstream model call has a token budget; without it an oversized table
// would truncate at an arbitrary point instead of keeping the top keywords.
func NewMerger(policy MergePolicy, maxKeywords int) *Merger {
	if maxKeywords <= 0 {
		maxKeywords = 10000
	}
	return &Merger{policy: policy, maxKeywords: maxKeywords}
}

// Run groups records by normalized keyword text across all input sources and
// aggregates each numeric field per the merge policy. The result is
// order-independent: any permutation of the inputs yields identical
// aggregates. When the unique keyword count exceeds the cap, the top keywords
// by volume are retained and the dropped count is reported on the table.
func (m *Merger) Run(sources [][]Record) *Table {
	type accumulator struct {
		merged       *Merged
		diffSum      float64
		diffCount    int
		trafficSum   float64
		trafficCount int
		cpcSum       float64
		cpcCount     int
		domains      map[string]struct{}
		volumeSum    int
	}

	accs := make(map[string]*accumulator)
	totalRows := 0

	for _, records := range sources {
		for _, rec := range records {
			if rec.Keyword == "" {
				continue
			}
			totalRows++

			acc, ok := accs[rec.Keyword]
			if !ok {
				acc = &accumulator{
					merged:  &Merged{Keyword: rec.Keyword},
					domains: make(map[string]struct{}),
				}
				accs[rec.Keyword] = acc
			}

			acc.merged.OccurrenceCount++
			if rec.SourceDomain != "" {
				acc.domains[rec.SourceDomain] = struct{}{}
			}

			acc.volumeSum += rec.Volume
			if rec.Volume > acc.merged.Volume {
				acc.merged.Volume = rec.Volume
			}

			if rec.Difficulty != nil {
				acc.diffSum += *rec.Difficulty
				acc.diffCount++
				acc.merged.Difficulty = maxPtr(acc.merged.Difficulty, *rec.Difficulty)
			}
			if rec.Traffic != nil {
				acc.trafficSum += *rec.Traffic
				acc.trafficCount++
				acc.merged.Traffic = maxPtr(acc.merged.Traffic, *rec.Traffic)
			}
			if rec.CPC != nil {
				acc.cpcSum += *rec.CPC
				acc.cpcCount++
				acc.merged.CPC = maxPtr(acc.merged.CPC, *rec.CPC)
			}
		}
	}

	table := &Table{
		Keywords:       make(map[string]*Merged, len(accs)),
		TotalInputRows: totalRows,
	}

	for key, acc := range accs {
		merged := acc.merged

		if m.policy.Volume == AggSum {
			merged.Volume = acc.volumeSum
		} else if m.policy.Volume == AggMean && merged.OccurrenceCount > 0 {
			merged.Volume = acc.volumeSum / merged.OccurrenceCount
		}
		merged.Difficulty = resolve(m.policy.Difficulty, merged.Difficulty, acc.diffSum, acc.diffCount)
		merged.Traffic = resolve(m.policy.Traffic, merged.Traffic, acc.trafficSum, acc.trafficCount)
		merged.CPC = resolve(m.policy.CPC, merged.CPC, acc.cpcSum, acc.cpcCount)

		merged.SourceDomains = make([]string, 0, len(acc.domains))
		for domain := range acc.domains {
			merged.SourceDomains = append(merged.SourceDomains, domain)
		}
		sort.Strings(merged.SourceDomains)

		merged.WordCount = len(strings.Fields(merged.Keyword))
		merged.Tail = classifyTail(merged.WordCount)
		merged.OpportunityScore = opportunityScore(merged)

		table.Keywords[key] = merged
	}

	if totalRows > 0 {
		table.DedupRate = 1 - float64(len(table.Keywords))/float64(totalRows)
	}

	m.applyCap(table)

	slog.Info("Merged keyword sources",
		"sources", len(sources),
		"input_rows", totalRows,
		"unique_keywords", len(table.Keywords),
		"dedup_rate", table.DedupRate,
		"dropped_by_cap", table.DroppedByCap)

	return table
}

// applyCap retains the top maxKeywords by volume descending, keyword
// ascending as a deterministic tie-break.
func (m *Merger) applyCap(table *Table) {
	if len(table.Keywords) <= m.maxKeywords {
		return
	}

	ranked := RankedKeywords(table)
	for _, merged := range ranked[m.maxKeywords:] {
		delete(table.Keywords, merged.Keyword)
		table.DroppedByCap++
	}
}

// RankedKeywords returns the table's keywords sorted by volume descending,
// keyword ascending on ties.
func RankedKeywords(table *Table) []*Merged {
	ranked := make([]*Merged, 0, len(table.Keywords))
	for _, merged := range table.Keywords {
		ranked = append(ranked, merged)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Volume != ranked[j].Volume {
			return ranked[i].Volume > ranked[j].Volume
		}
		return ranked[i].Keyword < ranked[j].Keyword
	})
	return ranked
}

func resolve(agg Aggregation, maxVal *float64, sum float64, count int) *float64 {
	if count == 0 {
		return nil
	}
	switch agg {
	case AggMean:
		v := sum / float64(count)
		return &v
	case AggSum:
		v := sum
		return &v
	default:
		return maxVal
	}
}

func maxPtr(current *float64, v float64) *float64 {
	if current == nil || v > *current {
		return &v
	}
	return current
}

func classifyTail(wordCount int) string {
	switch {
	case wordCount <= 2:
		return "short-tail"
	case wordCount <= 4:
		return "mid-tail"
	default:
		return "long-tail"
	}
}

// opportunityScore is volume discounted by difficulty; keywords without a
// difficulty estimate score on raw volume.
func opportunityScore(m *Merged) float64 {
	if m.Difficulty == nil {
		return float64(m.Volume)
	}
	return float64(m.Volume) / (*m.Difficulty + 1)
}
