// Package transform implements the Transformation Registry: a named pure
// function (ordered rule list) → ordered rule list. The registry follows
// a factory-map pattern (Registry{fns map[Name]Func}) covering nine named
// rule-list transformations.
package transform

import (
	"fmt"

	"github.com/vitaliisemenov/adblock-compiler/internal/model"
)

// Name identifies a recognized transformation.
type Name string

const (
	RemoveComments     Name = "RemoveComments"
	RemoveEmptyLines   Name = "RemoveEmptyLines"
	TrimLines          Name = "TrimLines"
	Deduplicate        Name = "Deduplicate"
	Compress           Name = "Compress"
	RemoveModifiers    Name = "RemoveModifiers"
	Validate           Name = "Validate"
	InvertAllow        Name = "InvertAllow"
	InsertFinalNewLine Name = "InsertFinalNewLine"
)

// IsValid reports whether n names a recognized transformation.
func (n Name) IsValid() bool {
	switch n {
	case RemoveComments, RemoveEmptyLines, TrimLines, Deduplicate, Compress,
		RemoveModifiers, Validate, InvertAllow, InsertFinalNewLine:
		return true
	default:
		return false
	}
}

// Diagnostic reports one dropped rule or other per-rule note a
// transformation wants surfaced, without aborting the transformation.
type Diagnostic struct {
	Rule   string
	Reason string
}

// Outcome is a transformation's result: the transformed rule list plus any
// per-rule diagnostics.
type Outcome struct {
	Rules       []string
	Diagnostics []Diagnostic
}

// Func is the pure function signature every transformation implements.
type Func func(rules []string) Outcome

// Registry maps transformation names to their implementations.
type Registry struct {
	fns map[Name]Func
}

// NewRegistry builds a Registry pre-populated with all nine recognized
// transformations.
func NewRegistry() *Registry {
	r := &Registry{fns: make(map[Name]Func)}
	r.Register(RemoveComments, removeComments)
	r.Register(RemoveEmptyLines, removeEmptyLines)
	r.Register(TrimLines, trimLines)
	r.Register(Deduplicate, deduplicate)
	r.Register(Compress, compress)
	r.Register(RemoveModifiers, removeModifiers)
	r.Register(Validate, validate)
	r.Register(InvertAllow, invertAllow)
	r.Register(InsertFinalNewLine, insertFinalNewLine)
	return r
}

// Register adds or replaces the implementation for name.
func (r *Registry) Register(name Name, fn Func) {
	r.fns[name] = fn
}

// Get looks up the implementation for name.
func (r *Registry) Get(name Name) (Func, error) {
	fn, ok := r.fns[name]
	if !ok {
		return nil, model.NewTransformationError(string(name), fmt.Errorf("unknown transformation"))
	}
	return fn, nil
}

// Apply runs the named transformations in order over rules, threading the
// output of each into the next, and accumulates diagnostics across all of
// them.
func (r *Registry) Apply(names []Name, rules []string) (Outcome, error) {
	out := Outcome{Rules: rules}
	for _, name := range names {
		fn, err := r.Get(name)
		if err != nil {
			return Outcome{}, err
		}
		stepOut := fn(out.Rules)
		out.Rules = stepOut.Rules
		out.Diagnostics = append(out.Diagnostics, stepOut.Diagnostics...)
	}
	return out, nil
}
