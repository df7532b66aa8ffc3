// Package css holds a book's style rules as a flat, document-ordered
// rule list with a compact binary cache representation.
//
// The parser understands the subset of CSS a reflowing text renderer
// can act on: selectors and their declaration blocks. At-rules are
// skipped wholesale, unknown constructs are ignored, and comments may
// appear anywhere. Selector groups are split, so "h1, h2 { ... }"
// yields two rules that match independently.
package css

import (
	"strings"

	"go.uber.org/zap"
)

// Decl is a single property declaration.
type Decl struct {
	Property string
	Value    string
}

// Rule couples one selector with its declarations in source order.
type Rule struct {
	Selector string
	Decls    []Decl
}

// Sheet accumulates the rules of one or more stylesheets.
type Sheet struct {
	rules []Rule
	log   *zap.Logger
}

// NewSheet returns an empty sheet. log may be nil.
func NewSheet(log *zap.Logger) *Sheet {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sheet{log: log}
}

// RuleCount returns the number of parsed rules.
func (s *Sheet) RuleCount() int { return len(s.rules) }

// Rule returns the i-th rule in document order, or a zero Rule when i
// is out of range.
func (s *Sheet) Rule(i int) Rule {
	if i < 0 || i >= len(s.rules) {
		return Rule{}
	}
	return s.rules[i]
}

// DeclarationsFor returns every declaration whose rule selector equals
// selector, in document order, so later declarations override earlier
// ones under cascade rules. It returns nil when nothing matches.
func (s *Sheet) DeclarationsFor(selector string) []Decl {
	selector = strings.TrimSpace(selector)
	var decls []Decl
	for _, r := range s.rules {
		if r.Selector == selector {
			decls = append(decls, r.Decls...)
		}
	}
	return decls
}

// Reset discards all rules.
func (s *Sheet) Reset() {
	s.rules = nil
}
