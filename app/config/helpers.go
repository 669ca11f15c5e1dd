package config

import (
	"github.com/maxsanz/keyword-universe/app/keyword"
)

// MergePolicy converts the profile's merge settings into the keyword
// package's policy value.
func (p *Profile) MergePolicy() keyword.MergePolicy {
	return keyword.MergePolicy{
		Volume:     keyword.Aggregation(p.Merge.Volume),
		Traffic:    keyword.Aggregation(p.Merge.Traffic),
		CPC:        keyword.Aggregation(p.Merge.CPC),
		Difficulty: keyword.Aggregation(p.Merge.Difficulty),
	}
}
