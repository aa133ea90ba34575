// Package ruleparser classifies a single filter-list line into a Rule with
// category/type probes, modifier access, and a validity verdict, covering
// exactly the surface the rule-list transformations need. It follows a
// "parse once, probe many ways" shape: one Parse call yields a Rule whose
// fields answer every downstream question a transformation might ask.
package ruleparser

import "strings"

// Category discriminates the broad shape of a parsed rule.
type Category string

const (
	CategoryComment  Category = "comment"
	CategoryNetwork  Category = "network"
	CategoryCosmetic Category = "cosmetic"
	CategoryInvalid  Category = "invalid"
)

// Rule is the parsed form of one filter-list line.
type Rule struct {
	Raw       string
	Category  Category
	IsComment bool
	// IsException reports an AdGuard/uBO exception rule, i.e. one prefixed
	// with "@@".
	IsException bool
	// Host is the bare hostname for a simple host-blocking line
	// ("0.0.0.0 example.com" or "example.com" alone), empty otherwise.
	Host string
	// Domain is the blocked domain for a "||domain^" network rule, empty
	// otherwise.
	Domain     string
	Modifiers  []string
	Valid      bool
	InvalidReason string
}

// Result is the tagged-variant parse outcome: {ok, rule} | {err}.
type Result struct {
	OK   bool
	Rule Rule
	Err  string
}

// Parse classifies a single raw line. It never returns an error for empty
// or malformed input — those become Category=invalid or Category=comment
// results, since the pipeline's Validate transformation is what decides
// whether an invalid rule is dropped.
func Parse(line string) Result {
	trimmed := strings.TrimSpace(line)

	if trimmed == "" {
		return Result{OK: true, Rule: Rule{Raw: line, Category: CategoryComment, IsComment: true, Valid: true}}
	}

	if strings.HasPrefix(trimmed, "!") || strings.HasPrefix(trimmed, "#") {
		return Result{OK: true, Rule: Rule{Raw: line, Category: CategoryComment, IsComment: true, Valid: true}}
	}

	rule := Rule{Raw: line, Valid: true}

	body := trimmed
	if strings.HasPrefix(body, "@@") {
		rule.IsException = true
		body = body[2:]
	}

	if idx := strings.IndexAny(body, "#"); idx >= 0 && strings.Contains(body[idx:], "#") && looksLikeCosmetic(body[idx:]) {
		rule.Category = CategoryCosmetic
		return Result{OK: true, Rule: rule}
	}

	rule.Category = CategoryNetwork

	pattern, modifierStr := splitModifiers(body)
	if modifierStr != "" {
		rule.Modifiers = strings.Split(modifierStr, ",")
		for i := range rule.Modifiers {
			rule.Modifiers[i] = strings.TrimSpace(rule.Modifiers[i])
		}
	}

	switch {
	case strings.HasPrefix(pattern, "||"):
		domain := strings.TrimPrefix(pattern, "||")
		domain = strings.TrimSuffix(domain, "^")
		rule.Domain = domain
		if domain == "" {
			rule.Category = CategoryInvalid
			rule.Valid = false
			rule.InvalidReason = "empty domain in network rule"
		}
	case isPlainHostLine(pattern):
		rule.Host = extractHost(pattern)
		if rule.Host == "" {
			rule.Category = CategoryInvalid
			rule.Valid = false
			rule.InvalidReason = "empty host"
		}
	}

	return Result{OK: true, Rule: rule}
}

// looksLikeCosmetic reports whether the text from the first "#" onward
// matches a cosmetic-rule separator ("##", "#@#", "#?#", "#$#").
func looksLikeCosmetic(fromHash string) bool {
	for _, sep := range []string{"##", "#@#", "#?#", "#$#"} {
		if strings.HasPrefix(fromHash, sep) {
			return true
		}
	}
	return false
}

// splitModifiers separates a network rule's pattern from its
// "$modifier,modifier=value" suffix, if present.
func splitModifiers(body string) (pattern, modifiers string) {
	idx := strings.LastIndex(body, "$")
	if idx < 0 {
		return body, ""
	}
	return body[:idx], body[idx+1:]
}

// isPlainHostLine reports whether pattern contains none of the filter
// syntax characters "*", "^" and "|"; such a pattern ("0.0.0.0 example.com"
// or a bare domain) is treated as a hosts-file entry. No further check of
// its shape is made.
func isPlainHostLine(pattern string) bool {
	if strings.ContainsAny(pattern, "*^|") {
		return false
	}
	return true
}

func extractHost(pattern string) string {
	fields := strings.Fields(pattern)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) == 1 {
		return fields[0]
	}
	return fields[len(fields)-1]
}

// HasModifier reports whether rule carries a modifier whose name (the part
// before "=", if any) equals name.
func (r *Rule) HasModifier(name string) bool {
	for _, m := range r.Modifiers {
		if m == name || strings.HasPrefix(m, name+"=") {
			return true
		}
	}
	return false
}

// WithoutModifiers returns rule's text with its entire "$..." modifier
// suffix removed, used by RemoveModifiers when dropping unsupported ones
// entirely collapses to "no modifiers" rather than a partial rewrite.
func (r *Rule) WithoutModifiers() string {
	pattern, _ := splitModifiers(strings.TrimPrefix(strings.TrimSpace(r.Raw), "@@"))
	prefix := ""
	if r.IsException {
		prefix = "@@"
	}
	return prefix + pattern
}

// WithModifiers renders rule's pattern with exactly the given modifier
// list (used after RemoveModifiers filters the set down).
func (r *Rule) WithModifiers(modifiers []string) string {
	base := r.WithoutModifiers()
	if len(modifiers) == 0 {
		return base
	}
	return base + "$" + strings.Join(modifiers, ",")
}
