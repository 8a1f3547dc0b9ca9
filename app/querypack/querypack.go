package querypack

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dwatch/displacement-watch/app/item"
)

const DefaultMaxTopDevelopments = 8

var ErrInvalid = errors.New("invalid query pack")

type Feed struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

type Report struct {
	MaxTopDevelopments int `yaml:"max_top_developments" json:"max_top_developments"`
}

// QueryPack is the mission configuration: what to look for, what to ignore,
// whom to trust and where to look. It is read once per run and passed to
// every component that needs it.
type QueryPack struct {
	Version          int                 `yaml:"version,omitempty" json:"version,omitempty"`
	Keywords         []string            `yaml:"keywords" json:"keywords"`
	NegativeKeywords []string            `yaml:"negative_keywords" json:"negative_keywords"`
	SourceTiers      map[string][]string `yaml:"source_tiers" json:"source_tiers"`
	GDELTQuery       string              `yaml:"gdelt_query" json:"gdelt_query"`
	RSSFeeds         []Feed              `yaml:"rss_feeds" json:"rss_feeds"`
	Report           Report              `yaml:"report" json:"report"`
}

// Load reads a query pack from a YAML (or JSON) file.
func Load(path string) (*QueryPack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	qp, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid query pack %s: %w", path, err)
	}

	return qp, nil
}

func Parse(data []byte) (*QueryPack, error) {
	var qp QueryPack
	if err := yaml.Unmarshal(data, &qp); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if qp.Report.MaxTopDevelopments == 0 {
		qp.Report.MaxTopDevelopments = DefaultMaxTopDevelopments
	}

	if err := qp.Validate(); err != nil {
		return nil, err
	}

	return &qp, nil
}

func (qp *QueryPack) Validate() error {
	if qp == nil {
		return fmt.Errorf("%w: query pack is nil", ErrInvalid)
	}

	if !slices.ContainsFunc(qp.Keywords, func(k string) bool { return strings.TrimSpace(k) != "" }) {
		return fmt.Errorf("%w: keywords must not be empty", ErrInvalid)
	}

	if qp.Report.MaxTopDevelopments < 0 {
		return fmt.Errorf("%w: max_top_developments must be non-negative", ErrInvalid)
	}

	for label := range qp.SourceTiers {
		if _, ok := item.ParseTier(label); !ok {
			return fmt.Errorf("%w: unknown tier %q in source_tiers", ErrInvalid, label)
		}
	}

	names := make(map[string]struct{}, len(qp.RSSFeeds))
	for i, f := range qp.RSSFeeds {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%w: rss feed at index %d has no name", ErrInvalid, i)
		}
		if strings.TrimSpace(f.URL) == "" {
			return fmt.Errorf("%w: rss feed %q has no url", ErrInvalid, f.Name)
		}
		if _, dup := names[f.Name]; dup {
			return fmt.Errorf("%w: duplicate rss feed name %q", ErrInvalid, f.Name)
		}
		names[f.Name] = struct{}{}
	}

	return nil
}

// Tiers converts the configured tier labels into typed tiers.
func (qp *QueryPack) Tiers() map[item.Tier][]string {
	tiers := make(map[item.Tier][]string, len(qp.SourceTiers))
	for label, suffixes := range qp.SourceTiers {
		if tier, ok := item.ParseTier(label); ok {
			tiers[tier] = suffixes
		}
	}
	return tiers
}

// MaxTop is the number of items a daily selection keeps, never fewer than five.
func (qp *QueryPack) MaxTop() int {
	return max(5, qp.Report.MaxTopDevelopments)
}

func (qp *QueryPack) Clone() *QueryPack {
	clone := *qp
	clone.Keywords = slices.Clone(qp.Keywords)
	clone.NegativeKeywords = slices.Clone(qp.NegativeKeywords)
	clone.RSSFeeds = slices.Clone(qp.RSSFeeds)
	clone.SourceTiers = make(map[string][]string, len(qp.SourceTiers))
	for k, v := range qp.SourceTiers {
		clone.SourceTiers[k] = slices.Clone(v)
	}
	return &clone
}

func (qp *QueryPack) Save(path string) error {
	data, err := yaml.Marshal(qp)
	if err != nil {
		return fmt.Errorf("failed to encode query pack: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write query pack: %w", err)
	}

	return nil
}
