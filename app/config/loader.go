package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and validation of analysis profiles
type Loader struct {
	profilesDir string
}

func NewLoader(profilesDir string) *Loader {
	return &Loader{profilesDir: profilesDir}
}

// LoadAll loads all YAML profile files from the profiles directory. A
// "default" profile is always present; a file named default.yml overrides
// the built-in defaults.
func (l *Loader) LoadAll() (map[string]*Profile, error) {
	profiles := map[string]*Profile{
		"default": DefaultProfile(),
	}

	if _, err := os.Stat(l.profilesDir); os.IsNotExist(err) {
		return profiles, nil
	}

	files, err := filepath.Glob(filepath.Join(l.profilesDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YAML files: %w", err)
	}
	ymlFiles, err := filepath.Glob(filepath.Join(l.profilesDir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YML files: %w", err)
	}
	files = append(files, ymlFiles...)

	for _, file := range files {
		profile, err := l.loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}

		if err := l.validate(profile); err != nil {
			return nil, fmt.Errorf("invalid profile %s: %w", file, err)
		}

		profiles[profile.Name] = profile
		slog.Info("Loaded analysis profile", "name", profile.Name, "file", file)
	}

	return profiles, nil
}

func (l *Loader) loadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	profile.Name = name

	l.setDefaults(&profile)

	return &profile, nil
}

func (l *Loader) setDefaults(profile *Profile) {
	if profile.Analysis.GroupingMode == "" {
		profile.Analysis.GroupingMode = "thematic"
	}
	if profile.Analysis.TierCount == 0 {
		profile.Analysis.TierCount = 3
	}
	if profile.Analysis.BatchSize == 0 {
		profile.Analysis.BatchSize = 1000
	}
	if profile.Analysis.GapVolumeFloor == 0 {
		profile.Analysis.GapVolumeFloor = 100
	}
	if profile.Merge.Volume == "" {
		profile.Merge.Volume = "max"
	}
	if profile.Merge.Traffic == "" {
		profile.Merge.Traffic = "max"
	}
	if profile.Merge.CPC == "" {
		profile.Merge.CPC = "max"
	}
	if profile.Merge.Difficulty == "" {
		profile.Merge.Difficulty = "mean"
	}
	if profile.Merge.MaxKeywords == 0 {
		profile.Merge.MaxKeywords = 10000
	}
}

// validate rejects profiles that would fail every run. Tier bounds are also
// enforced per-run before any model call; checking here surfaces bad files
// at startup instead.
func (l *Loader) validate(profile *Profile) error {
	validModes := map[string]bool{
		"thematic": true,
		"intent":   true,
		"funnel":   true,
	}
	if !validModes[profile.Analysis.GroupingMode] {
		return fmt.Errorf("invalid grouping_mode: %s", profile.Analysis.GroupingMode)
	}

	if profile.Analysis.TierCount < 2 || profile.Analysis.TierCount > 5 {
		return fmt.Errorf("tier_count must be between 2 and 5, got %d", profile.Analysis.TierCount)
	}
	if profile.Analysis.BatchSize < 1 {
		return fmt.Errorf("batch_size must be positive")
	}
	if profile.Analysis.GapVolumeFloor < 0 {
		return fmt.Errorf("gap_volume_floor must be non-negative")
	}
	if profile.Merge.MaxKeywords < 1 {
		return fmt.Errorf("max_keywords must be positive")
	}

	validAggs := map[string]bool{"max": true, "mean": true, "sum": true}
	for field, agg := range map[string]string{
		"volume":     profile.Merge.Volume,
		"traffic":    profile.Merge.Traffic,
		"cpc":        profile.Merge.CPC,
		"difficulty": profile.Merge.Difficulty,
	} {
		if !validAggs[agg] {
			return fmt.Errorf("invalid %s aggregation: %s", field, agg)
		}
	}

	return nil
}

// DefaultProfile returns the built-in profile used when no profiles
// directory is configured.
func DefaultProfile() *Profile {
	profile := &Profile{Name: "default"}
	profile.Analysis.IncludeGaps = true
	(&Loader{}).setDefaults(profile)
	return profile
}
