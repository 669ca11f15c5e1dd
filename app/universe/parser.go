package universe

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maxsanz/keyword-universe/app/keyword"
)

// Parser validates and decodes the model's structured output for one batch.
// Decoding is a two-step state machine: strict decode first, then a single
// repair pass that strips surrounding prose and markdown fences. If repair
// also fails the caller records a BatchFailure; the run continues.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

type topicPayload struct {
	Topic       string   `json:"topic"`
	Tier        int      `json:"tier"`
	Intent      string   `json:"intent"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	// Older prompt revisions asked for example_keywords; accept both.
	ExampleKeywords []string `json:"example_keywords"`
}

type responsePayload struct {
	Summary string         `json:"summary"`
	Topics  []topicPayload `json:"topics"`
}

type gapPayload struct {
	Gaps []struct {
		Topic           string `json:"topic"`
		EstimatedVolume int    `json:"estimated_volume"`
		Volume          int    `json:"volume"`
		Description     string `json:"description"`
		Rationale       string `json:"rationale"`
	} `json:"gaps"`
}

// Run decodes one batch response and validates it against the batch's input:
// tiers outside [1, tier_count] are clamped with a warning, keywords the
// model invented are discarded, and a keyword listed under several topics
// within the batch keeps its first assignment.
func (p *Parser) Run(raw string, batch *Batch, cfg Config) (*ParsedBatch, error) {
	payload, err := decode[responsePayload](raw)
	if err != nil {
		return nil, fmt.Errorf("batch %d response: %w", batch.Index, err)
	}

	result := &ParsedBatch{
		BatchIndex: batch.Index,
		Summary:    strings.TrimSpace(payload.Summary),
	}

	input := batch.InputSet()
	seen := make(map[string]struct{})

	for _, t := range payload.Topics {
		name := strings.TrimSpace(t.Topic)
		if name == "" {
			result.warnf("batch %d: dropped unnamed topic", batch.Index)
			continue
		}

		tier := t.Tier
		if tier < 1 {
			result.warnf("batch %d: topic %q tier %d clamped to 1", batch.Index, name, tier)
			tier = 1
		} else if tier > cfg.TierCount {
			result.warnf("batch %d: topic %q tier %d clamped to %d", batch.Index, name, tier, cfg.TierCount)
			tier = cfg.TierCount
		}

		listed := t.Keywords
		if len(listed) == 0 {
			listed = t.ExampleKeywords
		}

		kept := make([]string, 0, len(listed))
		invented := 0
		for _, kw := range listed {
			normalized := keyword.NormalizeText(kw)
			if normalized == "" {
				continue
			}
			if _, ok := input[normalized]; !ok {
				invented++
				continue
			}
			if _, dup := seen[normalized]; dup {
				continue
			}
			seen[normalized] = struct{}{}
			kept = append(kept, normalized)
		}
		if invented > 0 {
			result.warnf("batch %d: topic %q listed %d keywords not present in the batch input", batch.Index, name, invented)
		}

		result.Topics = append(result.Topics, TopicAssignment{
			Topic:       name,
			Tier:        tier,
			Intent:      normalizeIntent(t.Intent),
			Description: strings.TrimSpace(t.Description),
			Keywords:    kept,
		})
	}

	for _, warning := range result.Warnings {
		slog.Warn("Response validation", "warning", warning)
	}

	return result, nil
}

// ParseGaps decodes the trailing gap-detection response.
func (p *Parser) ParseGaps(raw string) ([]ContentGap, error) {
	payload, err := decode[gapPayload](raw)
	if err != nil {
		return nil, fmt.Errorf("gap response: %w", err)
	}

	gaps := make([]ContentGap, 0, len(payload.Gaps))
	for _, g := range payload.Gaps {
		name := strings.TrimSpace(g.Topic)
		if name == "" {
			continue
		}
		volume := g.EstimatedVolume
		if volume == 0 {
			volume = g.Volume
		}
		gaps = append(gaps, ContentGap{
			Topic:           name,
			EstimatedVolume: volume,
			Description:     strings.TrimSpace(g.Description),
			Rationale:       strings.TrimSpace(g.Rationale),
		})
	}
	return gaps, nil
}

func (r *ParsedBatch) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func decode[T any](raw string) (*T, error) {
	var payload T
	if err := json.Unmarshal([]byte(raw), &payload); err == nil {
		return &payload, nil
	}

	repaired, ok := repairJSON(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
		return nil, fmt.Errorf("decode after repair: %w", err)
	}
	return &payload, nil
}

// repairJSON strips markdown fences and any prose the model wrapped around
// the payload, keeping the outermost {...} span.
func repairJSON(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func normalizeIntent(intent string) string {
	switch strings.ToLower(strings.TrimSpace(intent)) {
	case "informational":
		return "informational"
	case "navigational":
		return "navigational"
	case "commercial":
		return "commercial"
	case "transactional":
		return "transactional"
	default:
		return ""
	}
}
