package keyword

// Keyword processing types

// RawRow is a single header-keyed row as produced by the ingest readers,
// before any schema mapping has been applied.
type RawRow map[string]string

// Record is one keyword observation from a single source row.
// Optional metrics are nil when the source lacks the column or the
// cell could not be coerced to a number.
type Record struct {
	Keyword      string
	Volume       int
	Difficulty   *float64
	CPC          *float64
	Traffic      *float64
	SourceDomain string
	SourceFile   string
}

// Merged is the per-keyword aggregate produced by the Merger.
type Merged struct {
	Keyword         string
	Volume          int
	Difficulty      *float64
	CPC             *float64
	Traffic         *float64
	OccurrenceCount int
	SourceDomains   []string

	// Derived metrics
	WordCount        int
	Tail             string // short-tail, mid-tail, long-tail
	OpportunityScore float64
}

// Table is the unified keyword table: one entry per normalized keyword,
// plus the reporting counters accumulated while building it.
type Table struct {
	Keywords map[string]*Merged

	TotalInputRows  int
	DedupRate       float64
	DroppedByCap    int
	BrandedFiltered int
	CoercedCells    int
}

// TotalVolume sums search volume over all merged keywords.
func (t *Table) TotalVolume() int {
	total := 0
	for _, m := range t.Keywords {
		total += m.Volume
	}
	return total
}

// Aggregation selects how duplicate values of a numeric field are combined.
type Aggregation string

const (
	AggMax  Aggregation = "max"
	AggMean Aggregation = "mean"
	AggSum  Aggregation = "sum"
)

// MergePolicy controls per-field aggregation across duplicate records.
// Different SEO tools under-report independently, so the default takes the
// maximum observed volume/traffic/cpc as an optimistic upper bound, while
// difficulty is a modeled estimate and averages better.
type MergePolicy struct {
	Volume     Aggregation
	Traffic    Aggregation
	CPC        Aggregation
	Difficulty Aggregation
}

// DefaultMergePolicy returns the documented default policy.
func DefaultMergePolicy() MergePolicy {
	return MergePolicy{
		Volume:     AggMax,
		Traffic:    AggMax,
		CPC:        AggMax,
		Difficulty: AggMean,
	}
}
