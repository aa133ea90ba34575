// Package model holds the data types shared across the compilation engine:
// job configurations, rules, snapshots, health records, results, and the
// diagnostic/workflow records that describe a run after the fact.
package model

// SourceType distinguishes the syntax a source's rules are written in.
type SourceType string

const (
	SourceTypeAdblock SourceType = "adblock"
	SourceTypeHosts    SourceType = "hosts"
)

// SourceDescriptor names one source list to fetch and how to treat it.
type SourceDescriptor struct {
	Name            string     `json:"name,omitempty" yaml:"name,omitempty"`
	Location        string     `json:"location" yaml:"location"`
	Type            SourceType `json:"type,omitempty" yaml:"type,omitempty"`
	Transformations []string   `json:"transformations,omitempty" yaml:"transformations,omitempty"`
	Inclusions      []string   `json:"inclusions,omitempty" yaml:"inclusions,omitempty"`
	Exclusions      []string   `json:"exclusions,omitempty" yaml:"exclusions,omitempty"`
	Strict          bool       `json:"strict,omitempty" yaml:"strict,omitempty"`
}

// Metadata is optional descriptive information about a filter-list job.
type Metadata struct {
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Homepage    string `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	License     string `json:"license,omitempty" yaml:"license,omitempty"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
}

// Configuration is a filter-list job: what to fetch, how to filter and
// transform it per-source, and how to filter and transform the merged
// result.
type Configuration struct {
	Name            string             `json:"name" yaml:"name"`
	Metadata        *Metadata          `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Sources         []SourceDescriptor `json:"sources" yaml:"sources"`
	Transformations []string           `json:"transformations,omitempty" yaml:"transformations,omitempty"`
	Inclusions      []string           `json:"inclusions,omitempty" yaml:"inclusions,omitempty"`
	Exclusions      []string           `json:"exclusions,omitempty" yaml:"exclusions,omitempty"`
}

// Validate enforces the configuration invariants: a job must carry at
// least one source, and every source must have a location.
func (c *Configuration) Validate() error {
	if c.Name == "" {
		return NewConfigurationError("configuration name is required")
	}
	if len(c.Sources) == 0 {
		return NewConfigurationError("configuration must declare at least one source")
	}
	for i, src := range c.Sources {
		if src.Location == "" {
			return NewConfigurationError("source at index %d is missing a location", i)
		}
	}
	return nil
}
