package universe

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/maxsanz/keyword-universe/app/keyword"
)

// Assembler joins parsed batch results back onto the unified table. It runs
// single-threaded after all batches return: topic names are reconciled across
// batches, contested keywords are resolved deterministically, aggregates and
// priorities are recomputed from table data, and every table keyword ends up
// in exactly one topic or in the unassigned set.
type Assembler struct{}

func NewAssembler() *Assembler {
	return &Assembler{}
}

// reconciled is one topic entity after cross-batch name matching.
type reconciled struct {
	name        string
	tier        int
	intent      string
	description string
	keywords    map[string]struct{}
	firstBatch  int
}

// Run builds the terminal Universe value. Failed batches contribute nothing;
// their keywords fall through to the unassigned set, which is always
// reported: silently dropping keywords is a correctness bug here.
func (a *Assembler) Run(results []*ParsedBatch, failures []BatchFailure, gaps []ContentGap, table *keyword.Table, cfg Config) *Universe {
	u := &Universe{
		GeneratedAt: time.Now().UTC(),
		Stats: SourceStats{
			TotalKeywords:   len(table.Keywords),
			DedupRate:       table.DedupRate,
			DroppedByCap:    table.DroppedByCap,
			BrandedFiltered: table.BrandedFiltered,
			CoercedCells:    table.CoercedCells,
		},
	}

	topics := a.reconcile(results, u)
	assignment := a.resolveConflicts(topics, table, u)
	u.Topics = a.aggregate(topics, assignment, table)
	a.assignPriorities(u.Topics)

	sort.SliceStable(u.Topics, func(i, j int) bool {
		if u.Topics[i].Tier != u.Topics[j].Tier {
			return u.Topics[i].Tier < u.Topics[j].Tier
		}
		if u.Topics[i].Volume != u.Topics[j].Volume {
			return u.Topics[i].Volume > u.Topics[j].Volume
		}
		return u.Topics[i].Topic < u.Topics[j].Topic
	})

	u.Unassigned = a.unassigned(assignment, table)
	u.Gaps = a.filterGaps(gaps, u.Topics, cfg)
	u.Summary = a.summary(results, table, u)

	for _, f := range failures {
		u.Failures = append(u.Failures, f.String())
	}
	sort.Strings(u.Failures)

	slog.Info("Universe assembled",
		"topics", len(u.Topics),
		"gaps", len(u.Gaps),
		"unassigned", len(u.Unassigned),
		"failed_batches", len(failures),
		"warnings", len(u.Warnings))

	return u
}

// reconcile merges topic assignments across batches. Two topics are the same
// entity when their normalized names match; no fuzzy semantic merge is
// attempted, since that would need another model call and make assembly
// nondeterministic.
func (a *Assembler) reconcile(results []*ParsedBatch, u *Universe) map[string]*reconciled {
	topics := make(map[string]*reconciled)

	sorted := make([]*ParsedBatch, 0, len(results))
	sorted = append(sorted, results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].BatchIndex < sorted[j].BatchIndex })

	for _, result := range sorted {
		u.Warnings = append(u.Warnings, result.Warnings...)

		for _, assignment := range result.Topics {
			key := keyword.NormalizeText(assignment.Topic)
			if key == "" {
				continue
			}

			topic, ok := topics[key]
			if !ok {
				topic = &reconciled{
					name:        assignment.Topic,
					tier:        assignment.Tier,
					intent:      assignment.Intent,
					description: assignment.Description,
					keywords:    make(map[string]struct{}),
					firstBatch:  result.BatchIndex,
				}
				topics[key] = topic
			} else {
				// Earliest batch wins the display name and description;
				// the lowest (best) tier wins.
				if assignment.Tier < topic.tier {
					topic.tier = assignment.Tier
				}
				if topic.intent == "" {
					topic.intent = assignment.Intent
				}
				if topic.description == "" {
					topic.description = assignment.Description
				}
			}

			for _, kw := range assignment.Keywords {
				topic.keywords[kw] = struct{}{}
			}
		}
	}

	return topics
}

// resolveConflicts enforces the one-topic-per-keyword invariant. A keyword
// claimed by several reconciled topics goes to the topic with the larger
// combined volume over table keywords, name ascending as the tie-break; the
// conflict is logged, never surfaced as a failure.
func (a *Assembler) resolveConflicts(topics map[string]*reconciled, table *keyword.Table, u *Universe) map[string]string {
	keys := make([]string, 0, len(topics))
	for key := range topics {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	volumes := make(map[string]int, len(topics))
	for key, topic := range topics {
		total := 0
		for kw := range topic.keywords {
			if merged, ok := table.Keywords[kw]; ok {
				total += merged.Volume
			}
		}
		volumes[key] = total
	}

	assignment := make(map[string]string)
	for _, key := range keys {
		topic := topics[key]
		for kw := range topic.keywords {
			if _, ok := table.Keywords[kw]; !ok {
				continue
			}
			current, contested := assignment[kw]
			if !contested {
				assignment[kw] = key
				continue
			}
			winner := current
			if volumes[key] > volumes[current] {
				winner = key
			}
			if winner != current {
				assignment[kw] = key
			}
			u.Warnings = append(u.Warnings, fmt.Sprintf(
				"keyword %q assigned to both %q and %q, kept %q",
				kw, topics[current].name, topic.name, topics[winner].name))
			slog.Warn("Contested keyword assignment",
				"keyword", kw,
				"kept", topics[winner].name,
				"dropped_from", topics[pickLoser(current, key, winner)].name)
		}
	}

	return assignment
}

func pickLoser(a, b, winner string) string {
	if winner == a {
		return b
	}
	return a
}

// aggregate computes each topic's metrics over its final assigned keyword
// set, cross-checkable against the unified table.
func (a *Assembler) aggregate(topics map[string]*reconciled, assignment map[string]string, table *keyword.Table) []Topic {
	byTopic := make(map[string][]string)
	for kw, key := range assignment {
		byTopic[key] = append(byTopic[key], kw)
	}

	out := make([]Topic, 0, len(byTopic))
	for key, keywords := range byTopic {
		topic := topics[key]
		sort.Strings(keywords)

		t := Topic{
			Topic:       topic.name,
			Tier:        topic.tier,
			Intent:      topic.intent,
			Description: topic.description,
			Keywords:    keywords,
		}

		diffSum := 0.0
		diffCount := 0
		for _, kw := range keywords {
			merged := table.Keywords[kw]
			t.KeywordCount++
			t.Volume += merged.Volume
			if merged.Traffic != nil {
				t.Traffic += *merged.Traffic
			}
			if merged.Difficulty != nil {
				diffSum += *merged.Difficulty
				diffCount++
			}
		}
		if diffCount > 0 {
			avg := diffSum / float64(diffCount)
			t.AvgDifficulty = &avg
		}

		out = append(out, t)
	}

	return out
}

// assignPriorities derives priority deterministically from tier and the
// topic's volume percentile, independent of whatever label the model emitted,
// so priority is reproducible from volume data alone.
func (a *Assembler) assignPriorities(topics []Topic) {
	if len(topics) == 0 {
		return
	}

	volumes := make([]int, len(topics))
	for i, t := range topics {
		volumes[i] = t.Volume
	}
	sort.Sort(sort.Reverse(sort.IntSlice(volumes)))

	quartile := (len(volumes) + 3) / 4
	topQuartileMin := volumes[quartile-1]
	half := (len(volumes) + 1) / 2
	secondQuartileMin := volumes[half-1]

	for i := range topics {
		switch {
		case topics[i].Tier == 1 || topics[i].Volume >= topQuartileMin:
			topics[i].Priority = PriorityHigh
		case topics[i].Volume >= secondQuartileMin:
			topics[i].Priority = PriorityMedium
		default:
			topics[i].Priority = PriorityLow
		}
	}
}

// unassigned returns every table keyword that no reconciled topic claimed,
// sorted for stable output.
func (a *Assembler) unassigned(assignment map[string]string, table *keyword.Table) []string {
	out := make([]string, 0)
	for kw := range table.Keywords {
		if _, ok := assignment[kw]; !ok {
			out = append(out, kw)
		}
	}
	sort.Strings(out)
	return out
}

// filterGaps drops gaps below the volume floor and gaps whose name collides
// with an assembled topic (those are coverage, not gaps).
func (a *Assembler) filterGaps(gaps []ContentGap, topics []Topic, cfg Config) []ContentGap {
	if len(gaps) == 0 {
		return nil
	}

	covered := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		covered[keyword.NormalizeText(t.Topic)] = struct{}{}
	}

	kept := make([]ContentGap, 0, len(gaps))
	for _, gap := range gaps {
		if gap.EstimatedVolume < cfg.GapVolumeFloor {
			continue
		}
		if _, ok := covered[keyword.NormalizeText(gap.Topic)]; ok {
			continue
		}
		kept = append(kept, gap)
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].EstimatedVolume != kept[j].EstimatedVolume {
			return kept[i].EstimatedVolume > kept[j].EstimatedVolume
		}
		return kept[i].Topic < kept[j].Topic
	})
	return kept
}

// summary prefers the first batch's model summary; when no batch produced
// one, a deterministic fallback is generated from the stats.
func (a *Assembler) summary(results []*ParsedBatch, table *keyword.Table, u *Universe) string {
	best := ""
	bestIndex := -1
	for _, result := range results {
		if result.Summary == "" {
			continue
		}
		if bestIndex == -1 || result.BatchIndex < bestIndex {
			best = result.Summary
			bestIndex = result.BatchIndex
		}
	}
	if best != "" {
		return best
	}
	return fmt.Sprintf("Keyword universe built from %d unique keywords across %d topics; %d keywords left unassigned.",
		len(table.Keywords), len(u.Topics), len(u.Unassigned))
}
