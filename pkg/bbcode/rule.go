package bbcode

import (
	"regexp"
	"slices"
)

// patternFlags are applied to every rule pattern: case-insensitive, ^ and $
// match at line boundaries, and . matches newlines.
const patternFlags = "(?ims)"

// Rule is a single pattern/template pair of a RuleTable.
type Rule struct {
	// Name is an optional label used in listings and error messages.
	Name string
	// Source is the pattern as written by the rule author, without flags.
	Source string
	// Pattern is Source compiled with the engine's flags.
	Pattern *regexp.Regexp
	// Template is the replacement text with %(i)s placeholders.
	Template string

	segments []segment
}

// Spec returns the portable description of the rule.
func (r Rule) Spec() RuleSpec {
	return RuleSpec{Name: r.Name, Pattern: r.Source, Template: r.Template}
}

// RuleTable is an ordered, append-only collection of rules. Insertion order is
// the order in which a Transformer applies the rules. Duplicates are allowed
// and are applied once each.
//
// A RuleTable is not safe for concurrent appends. Concurrent transformations
// over a table that is no longer being appended to are safe.
type RuleTable struct {
	rules []Rule
}

// NewRuleTable builds a table from the given specs in order. It stops at the
// first spec whose pattern does not compile.
func NewRuleTable(specs ...RuleSpec) (*RuleTable, error) {
	t := &RuleTable{}
	for _, spec := range specs {
		if err := t.Add(spec); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// AddRule compiles patternSource and appends it with template to the table.
// A *PatternCompileError is returned if the pattern is invalid, in which case
// the table is left unchanged. Placeholders in template are not checked here.
func (t *RuleTable) AddRule(patternSource, template string) error {
	return t.Add(RuleSpec{Pattern: patternSource, Template: template})
}

// Add appends a rule described by spec. See AddRule.
func (t *RuleTable) Add(spec RuleSpec) error {
	re, err := regexp.Compile(patternFlags + spec.Pattern)
	if err != nil {
		return &PatternCompileError{Source: spec.Pattern, Err: err}
	}
	t.rules = append(t.rules, Rule{
		Name:     spec.Name,
		Source:   spec.Pattern,
		Pattern:  re,
		Template: spec.Template,
		segments: parseTemplate(spec.Template),
	})
	return nil
}

// MustAddRule is like AddRule but panics if the pattern does not compile.
// It is meant for tables built from static sources.
func (t *RuleTable) MustAddRule(patternSource, template string) {
	if err := t.AddRule(patternSource, template); err != nil {
		panic(err)
	}
}

// mustAdd is MustAddRule for named specs.
func (t *RuleTable) mustAdd(spec RuleSpec) {
	if err := t.Add(spec); err != nil {
		panic(err)
	}
}

// Rules returns the rules in table order. The returned slice is a copy;
// modifying it does not affect the table.
func (t *RuleTable) Rules() []Rule {
	return slices.Clone(t.rules)
}

// Specs returns the portable description of every rule in table order.
func (t *RuleTable) Specs() []RuleSpec {
	specs := make([]RuleSpec, len(t.rules))
	for i, r := range t.rules {
		specs[i] = r.Spec()
	}
	return specs
}

// Len returns the number of rules in the table.
func (t *RuleTable) Len() int {
	return len(t.rules)
}

// Clone returns an independent copy of the table. Appending to the clone does
// not affect the original. Compiled patterns are shared, which is safe since
// *regexp.Regexp is safe for concurrent use.
func (t *RuleTable) Clone() *RuleTable {
	return &RuleTable{rules: slices.Clone(t.rules)}
}
