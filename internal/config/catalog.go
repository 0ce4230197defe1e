package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"oreilly-library/internal/models"
)

// FilterThresholds holds the stage cutoffs the Filter Pipeline uses.
// spec.md §9 flags the exact v1-vs-v2 cutoffs as undocumented in the
// original source and instructs implementers to treat them as
// configuration; these defaults reproduce discover_book_ids_v2.py's
// actual behavior.
type FilterThresholds struct {
	MinTitleLength            int `yaml:"min_title_length"`
	MinTitleLengthWithoutISBN int `yaml:"min_title_length_without_isbn"`
	MinTitleLengthNoISBNKept  int `yaml:"min_title_length_no_isbn_kept"`
	StrictTopicMatch          bool `yaml:"strict_topic_match"`
}

// DefaultFilterThresholds mirrors discover_book_ids_v2.py's validation
// block: <5 always rejected, <10 rejected unless ISBN present, and (in
// the no-ISBN branch) <15 rejected even with no disqualifying keyword.
func DefaultFilterThresholds() FilterThresholds {
	return FilterThresholds{
		MinTitleLength:            5,
		MinTitleLengthWithoutISBN: 10,
		MinTitleLengthNoISBNKept:  15,
		StrictTopicMatch:          false,
	}
}

// DiscoveryConfig bounds how hard the Discovery Controller works per
// skill.
type DiscoveryConfig struct {
	PageSize          int     `yaml:"page_size"`
	MaxPagesAbsolute  int     `yaml:"max_pages_absolute"`
	PageSlack         int     `yaml:"page_slack"`
	TooBroadThreshold int     `yaml:"too_broad_threshold"`
	Workers           int     `yaml:"workers"`
	RequestDelay      float64 `yaml:"request_delay_seconds"`
	SkillDelay        float64 `yaml:"skill_delay_seconds"`
	LenientMode       bool    `yaml:"lenient_mode"`
}

// DefaultDiscoveryConfig matches spec.md §4.5's defaults.
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		PageSize:          100,
		MaxPagesAbsolute:  100,
		PageSlack:         2,
		TooBroadThreshold: 500,
		Workers:           3,
		RequestDelay:      0.3,
		SkillDelay:        1.0,
		LenientMode:       true,
	}
}

// DownloadConfig governs the Download Controller's pacing.
type DownloadConfig struct {
	RateLimitDelaySeconds float64 `yaml:"rate_limit_delay_seconds"`
	TokenSaveInterval     int     `yaml:"token_save_interval"`
	CheckpointEverySkills int     `yaml:"checkpoint_every_skills"`
}

// DefaultDownloadConfig matches spec.md §4.8's defaults.
func DefaultDownloadConfig() DownloadConfig {
	return DownloadConfig{
		RateLimitDelaySeconds: 1.0,
		TokenSaveInterval:     5,
		CheckpointEverySkills: 10,
	}
}

// Catalog is the YAML-backed configuration bundle: the skills catalog,
// the built-in alias table override, filter thresholds, discovery
// pacing, and download pacing.
type Catalog struct {
	Skills          []models.Skill      `yaml:"skills"`
	Aliases         map[string][]string `yaml:"aliases,omitempty"`
	FilterThresholds FilterThresholds    `yaml:"filter_thresholds,omitempty"`
	Discovery        DiscoveryConfig     `yaml:"discovery,omitempty"`
	Download         DownloadConfig      `yaml:"download,omitempty"`
}

// LoadCatalog parses a YAML catalog file, filling in defaults for any
// section left unset.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	if cat.FilterThresholds == (FilterThresholds{}) {
		cat.FilterThresholds = DefaultFilterThresholds()
	}
	if cat.Discovery.PageSize == 0 {
		cat.Discovery = DefaultDiscoveryConfig()
	}
	if cat.Download.TokenSaveInterval == 0 {
		cat.Download = DefaultDownloadConfig()
	}

	return &cat, nil
}

// PrioritySkills returns the subset of the catalog's skills marked
// priority, in catalog order, per spec.md §4.8 "Priority skills
// configuration".
func (c *Catalog) PrioritySkills() []models.Skill {
	var out []models.Skill
	for _, s := range c.Skills {
		if s.Priority {
			out = append(out, s)
		}
	}
	return out
}

// OrderedSkills returns priority skills first, then the rest, both in
// catalog order.
func (c *Catalog) OrderedSkills() []models.Skill {
	var priority, rest []models.Skill
	for _, s := range c.Skills {
		if s.Priority {
			priority = append(priority, s)
		} else {
			rest = append(rest, s)
		}
	}
	return append(priority, rest...)
}
