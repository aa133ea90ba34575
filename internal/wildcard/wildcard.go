// Package wildcard implements inclusion/exclusion glob matching: "*"
// matches any character run, "?" matches one character, matched against
// full rule text.
//
// Matching is done by path/filepath.Match, so its other syntax applies as
// well: "[...]" is a character class and "\" escapes the next character;
// "[" and "\" are therefore not literal, and a pattern with a malformed
// class is rejected by Compile. filepath.Match also treats "/" specially,
// which rule text may legitimately contain, so patterns and candidates
// are matched with path separators neutralized first.
package wildcard

import (
	"path/filepath"
	"strings"

	"github.com/vitaliisemenov/adblock-compiler/internal/model"
)

const sentinel = "\x00"

// Pattern is a compiled glob pattern, compiled once per compilation.
type Pattern struct {
	raw string
}

// Compile validates pattern and returns a reusable Pattern.
func Compile(pattern string) (*Pattern, error) {
	neutralized := strings.ReplaceAll(pattern, "/", sentinel)
	if _, err := filepath.Match(neutralized, ""); err != nil {
		return nil, model.NewConfigurationError("invalid wildcard pattern %q: %v", pattern, err)
	}
	return &Pattern{raw: pattern}, nil
}

// Match reports whether text matches the pattern, after trimming.
func (p *Pattern) Match(text string) bool {
	trimmed := strings.TrimSpace(text)
	neutralizedPattern := strings.ReplaceAll(p.raw, "/", sentinel)
	neutralizedText := strings.ReplaceAll(trimmed, "/", sentinel)
	ok, err := filepath.Match(neutralizedPattern, neutralizedText)
	return err == nil && ok
}

// Filter is a compiled set of inclusion and exclusion patterns.
type Filter struct {
	inclusions []*Pattern
	exclusions []*Pattern
}

// CompileFilter compiles inclusion and exclusion pattern lists.
func CompileFilter(inclusions, exclusions []string) (*Filter, error) {
	f := &Filter{}
	for _, p := range inclusions {
		compiled, err := Compile(p)
		if err != nil {
			return nil, err
		}
		f.inclusions = append(f.inclusions, compiled)
	}
	for _, p := range exclusions {
		compiled, err := Compile(p)
		if err != nil {
			return nil, err
		}
		f.exclusions = append(f.exclusions, compiled)
	}
	return f, nil
}

// Keep reports whether text should be kept: it matches at least one
// inclusion pattern (or inclusions are empty) and matches no exclusion
// pattern.
func (f *Filter) Keep(text string) bool {
	for _, p := range f.exclusions {
		if p.Match(text) {
			return false
		}
	}
	if len(f.inclusions) == 0 {
		return true
	}
	for _, p := range f.inclusions {
		if p.Match(text) {
			return true
		}
	}
	return false
}

// Apply filters rules, preserving order, returning only kept rules in a
// new slice.
func (f *Filter) Apply(rules []string) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		if f.Keep(r) {
			out = append(out, r)
		}
	}
	return out
}
