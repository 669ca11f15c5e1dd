package universe

import (
	"fmt"
	"strings"

	"github.com/maxsanz/keyword-universe/app/keyword"
)

// Builder partitions the unified table into model-sized batches and renders
// the instruction template for the configured grouping mode. Each batch is
// self-contained: full instructions, the exact response contract the parser
// validates against, and this batch's keyword rows.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

const systemPrompt = `You are an SEO strategist building a keyword universe: a complete map of search-term topics derived from competitor keyword exports. You group keywords into coherent topics, assign each topic a priority tier, and always respond with valid JSON only.`

const thematicInstructions = `Group the keywords into coherent semantic topics. Each topic must represent one clearly differentiated subject area. Look for co-occurrence patterns and shared intent, not surface string similarity.`

const intentInstructions = `Classify keywords by the searcher's intent, then group by sub-theme within each intent:
- informational: learning something ("how to", "what is", "guide")
- navigational: looking for a specific site or page ("login", "download", brand names)
- commercial: researching before buying ("best", "review", "vs", "alternatives")
- transactional: ready to act ("buy", "price", "discount", "free trial")
Transactional topics often deserve tier 1 despite lower volume. Set the "intent" field on every topic.`

const funnelInstructions = `Classify keywords by their position in the conversion funnel, then group by theme within each stage:
- TOFU (awareness): the user discovers a problem; high volume, low purchase intent
- MOFU (consideration): the user evaluates solutions ("best", "compare", "types of")
- BOFU (decision): the user is ready to decide ("price", "demo", "vs competitor")
Reflect the stage in each topic description and weigh BOFU topics toward tier 1.`

// Run validates the configuration and builds the batch sequence. Keywords
// are sorted by volume descending before batching so a failed later batch
// costs the lowest-value keywords, not the highest.
func (b *Builder) Run(table *keyword.Table, cfg Config) ([]Batch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(table.Keywords) == 0 {
		return nil, nil
	}

	ranked := keyword.RankedKeywords(table)
	total := (len(ranked) + cfg.BatchSize - 1) / cfg.BatchSize

	batches := make([]Batch, 0, total)
	for i := 0; i < total; i++ {
		start := i * cfg.BatchSize
		end := start + cfg.BatchSize
		if end > len(ranked) {
			end = len(ranked)
		}

		batch := Batch{
			Index:    i,
			Total:    total,
			Keywords: ranked[start:end],
			System:   systemPrompt,
		}
		batch.Prompt = b.renderPrompt(&batch, table, cfg)
		batches = append(batches, batch)
	}

	return batches, nil
}

func (b *Builder) renderPrompt(batch *Batch, table *keyword.Table, cfg Config) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# CONTEXT\n")
	fmt.Fprintf(&sb, "- Unified keyword table: %d unique keywords, total volume %d\n", len(table.Keywords), table.TotalVolume())
	fmt.Fprintf(&sb, "- This request covers batch %d of %d (%d keywords, highest volume first)\n", batch.Index+1, batch.Total, len(batch.Keywords))
	fmt.Fprintf(&sb, "- Priority tiers to assign: 1 (highest) through %d (lowest)\n", cfg.TierCount)

	if cfg.SiteContext != "" {
		fmt.Fprintf(&sb, "\n# SITE CONTEXT\n%s\n", cfg.SiteContext)
	}

	fmt.Fprintf(&sb, "\n# INSTRUCTIONS\n%s\n", b.groupingInstructions(cfg.GroupingMode))
	fmt.Fprintf(&sb, "\nAssign every topic a tier between 1 and %d based on total search volume, strategic relevance and realistic opportunity. Every keyword below must appear in exactly one topic's keyword list, spelled exactly as given.\n", cfg.TierCount)

	if cfg.CustomInstructions != "" {
		fmt.Fprintf(&sb, "\n# ADDITIONAL INSTRUCTIONS\n%s\n", cfg.CustomInstructions)
	}

	fmt.Fprintf(&sb, `
# RESPONSE FORMAT
Respond with JSON only, no markdown fences, no text before or after:
{
  "summary": "executive summary of this batch's keyword landscape",
  "topics": [
    {
      "topic": "descriptive topic name",
      "tier": 1,
      "intent": "informational|navigational|commercial|transactional or omit",
      "description": "what this topic covers and why it matters",
      "keywords": ["keyword exactly as listed below", "..."]
    }
  ]
}

# KEYWORDS (keyword | volume | difficulty)
`)

	for _, k := range batch.Keywords {
		difficulty := "-"
		if k.Difficulty != nil {
			difficulty = fmt.Sprintf("%.0f", *k.Difficulty)
		}
		fmt.Fprintf(&sb, "%s | %d | %s\n", k.Keyword, k.Volume, difficulty)
	}

	return sb.String()
}

func (b *Builder) groupingInstructions(mode GroupingMode) string {
	switch mode {
	case GroupingIntent:
		return intentInstructions
	case GroupingFunnel:
		return funnelInstructions
	default:
		return thematicInstructions
	}
}

// GapPrompt renders the trailing content-gap request. It runs as a separate
// call after clustering, over the assembled topic names, so gaps reflect what
// the universe already covers.
func GapPrompt(table *keyword.Table, topics []Topic, cfg Config) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "The keyword universe below was built from competitor keyword exports (%d unique keywords). Identify content gaps: topics with real search demand that have no coverage in the current topic list.\n", len(table.Keywords))

	if cfg.SiteContext != "" {
		fmt.Fprintf(&sb, "\n# SITE CONTEXT\n%s\n", cfg.SiteContext)
	}

	fmt.Fprintf(&sb, "\n# CURRENT TOPICS\n")
	for _, t := range topics {
		fmt.Fprintf(&sb, "- %s (tier %d, volume %d)\n", t.Topic, t.Tier, t.Volume)
	}

	fmt.Fprintf(&sb, `
# RESPONSE FORMAT
Respond with JSON only:
{
  "gaps": [
    {
      "topic": "name of the missing topic",
      "estimated_volume": 50000,
      "description": "what the gap covers",
      "rationale": "why this is an opportunity"
    }
  ]
}
`)

	return sb.String()
}
