package transform

import (
	"strings"

	"github.com/vitaliisemenov/adblock-compiler/internal/ruleparser"
)

func removeComments(rules []string) Outcome {
	out := make([]string, 0, len(rules))
	var diags []Diagnostic
	for _, rule := range rules {
		parsed := ruleparser.Parse(rule)
		if parsed.Rule.IsComment {
			diags = append(diags, Diagnostic{Rule: rule, Reason: "comment removed"})
			continue
		}
		out = append(out, rule)
	}
	return Outcome{Rules: out, Diagnostics: diags}
}

func removeEmptyLines(rules []string) Outcome {
	out := make([]string, 0, len(rules))
	for _, rule := range rules {
		if strings.TrimSpace(rule) == "" {
			continue
		}
		out = append(out, rule)
	}
	return Outcome{Rules: out}
}

func trimLines(rules []string) Outcome {
	out := make([]string, len(rules))
	for i, rule := range rules {
		out[i] = strings.TrimSpace(rule)
	}
	return Outcome{Rules: out}
}

// deduplicate keeps the first occurrence of each distinct line, stable and
// case-sensitive.
func deduplicate(rules []string) Outcome {
	seen := make(map[string]struct{}, len(rules))
	out := make([]string, 0, len(rules))
	var diags []Diagnostic
	for _, rule := range rules {
		if _, ok := seen[rule]; ok {
			diags = append(diags, Diagnostic{Rule: rule, Reason: "duplicate removed"})
			continue
		}
		seen[rule] = struct{}{}
		out = append(out, rule)
	}
	return Outcome{Rules: out, Diagnostics: diags}
}

// compress merges equivalent rules: a network domain-block rule for a
// domain subsumes a plain host-block rule for that same domain. Order of
// kept rules is preserved — the subsuming network rule's position wins and
// the subsumed host rule is simply dropped where it occurred.
func compress(rules []string) Outcome {
	blockedDomains := make(map[string]struct{})
	for _, rule := range rules {
		parsed := ruleparser.Parse(rule).Rule
		if parsed.Category == ruleparser.CategoryNetwork && !parsed.IsException && parsed.Domain != "" {
			blockedDomains[parsed.Domain] = struct{}{}
		}
	}

	out := make([]string, 0, len(rules))
	var diags []Diagnostic
	for _, rule := range rules {
		parsed := ruleparser.Parse(rule).Rule
		if parsed.Category == ruleparser.CategoryNetwork && !parsed.IsException && parsed.Host != "" {
			if _, subsumed := blockedDomains[parsed.Host]; subsumed {
				diags = append(diags, Diagnostic{Rule: rule, Reason: "subsumed by equivalent network rule"})
				continue
			}
		}
		out = append(out, rule)
	}
	return Outcome{Rules: out, Diagnostics: diags}
}

// supportedModifiers are the modifiers this target syntax recognizes; all
// others are dropped by RemoveModifiers.
var supportedModifiers = map[string]struct{}{
	"third-party": {},
	"domain":      {},
	"important":   {},
	"script":      {},
	"image":       {},
	"stylesheet":  {},
	"xmlhttprequest": {},
	"document":    {},
}

// removeModifiers drops modifiers unsupported by the target syntax. If all
// modifiers are dropped and the rule becomes ambiguous (i.e. it had
// modifiers narrowing an otherwise-too-broad pattern), the rule itself is
// dropped — here approximated as: a pattern starting with the "||" domain
// anchor (such as "||domain^") with no remaining modifiers is never
// ambiguous and is kept; any other pattern losing all of its modifiers is
// dropped.
func removeModifiers(rules []string) Outcome {
	out := make([]string, 0, len(rules))
	var diags []Diagnostic
	for _, rule := range rules {
		parsed := ruleparser.Parse(rule).Rule
		if len(parsed.Modifiers) == 0 {
			out = append(out, rule)
			continue
		}

		kept := make([]string, 0, len(parsed.Modifiers))
		for _, m := range parsed.Modifiers {
			name := m
			if idx := strings.IndexByte(m, '='); idx >= 0 {
				name = m[:idx]
			}
			if _, ok := supportedModifiers[name]; ok {
				kept = append(kept, m)
			}
		}

		if len(kept) == len(parsed.Modifiers) {
			out = append(out, rule)
			continue
		}

		if len(kept) == 0 {
			isUnambiguous := strings.HasPrefix(strings.TrimPrefix(strings.TrimSpace(rule), "@@"), "||")
			if isUnambiguous {
				out = append(out, parsed.WithoutModifiers())
				diags = append(diags, Diagnostic{Rule: rule, Reason: "all modifiers dropped"})
				continue
			}
			diags = append(diags, Diagnostic{Rule: rule, Reason: "dropped: ambiguous after modifier removal"})
			continue
		}

		out = append(out, parsed.WithModifiers(kept))
		diags = append(diags, Diagnostic{Rule: rule, Reason: "unsupported modifiers dropped"})
	}
	return Outcome{Rules: out, Diagnostics: diags}
}

func validate(rules []string) Outcome {
	out := make([]string, 0, len(rules))
	var diags []Diagnostic
	for _, rule := range rules {
		parsed := ruleparser.Parse(rule).Rule
		if parsed.IsComment {
			out = append(out, rule)
			continue
		}
		if !parsed.Valid {
			diags = append(diags, Diagnostic{Rule: rule, Reason: parsed.InvalidReason})
			continue
		}
		out = append(out, rule)
	}
	return Outcome{Rules: out, Diagnostics: diags}
}

// invertAllow replaces each exception ("@@") rule with its corresponding
// blocking rule, dropping the original.
func invertAllow(rules []string) Outcome {
	out := make([]string, 0, len(rules))
	var diags []Diagnostic
	for _, rule := range rules {
		parsed := ruleparser.Parse(rule).Rule
		if !parsed.IsException {
			out = append(out, rule)
			continue
		}
		blocking := strings.TrimPrefix(strings.TrimSpace(rule), "@@")
		out = append(out, blocking)
		diags = append(diags, Diagnostic{Rule: rule, Reason: "exception inverted to blocking rule"})
	}
	return Outcome{Rules: out, Diagnostics: diags}
}

func insertFinalNewLine(rules []string) Outcome {
	out := make([]string, len(rules), len(rules)+1)
	copy(out, rules)
	out = append(out, "")
	return Outcome{Rules: out}
}
