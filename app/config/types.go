package config

// Profile is one analysis profile loaded from a YAML file in the profiles
// directory. The profile name is derived from the filename.
type Profile struct {
	Name     string              // Derived from filename (without .yml extension)
	Analysis AnalysisSettings    `yaml:"analysis"`
	Merge    MergeSettings       `yaml:"merge"`
	Brand    BrandSettings       `yaml:"brand"`
	Synonyms map[string][]string `yaml:"synonyms"` // canonical field -> extra header names
}

// AnalysisSettings configures the clustering request.
type AnalysisSettings struct {
	GroupingMode       string `yaml:"grouping_mode"` // thematic, intent or funnel
	TierCount          int    `yaml:"tier_count"`
	BatchSize          int    `yaml:"batch_size"`
	CustomInstructions string `yaml:"custom_instructions"`
	IncludeGaps        bool   `yaml:"include_gaps"`
	GapVolumeFloor     int    `yaml:"gap_volume_floor"`
}

// MergeSettings configures deduplication across sources.
type MergeSettings struct {
	Volume      string `yaml:"volume"` // max, mean or sum
	Traffic     string `yaml:"traffic"`
	CPC         string `yaml:"cpc"`
	Difficulty  string `yaml:"difficulty"`
	MaxKeywords int    `yaml:"max_keywords"`
}

// BrandSettings lists brand terms filtered out between merge and clustering.
type BrandSettings struct {
	Terms []string `yaml:"terms"`
}
