package bbcode

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// DefaultVerbatimOpen opens a region that is copied through untransformed.
	DefaultVerbatimOpen = "[ignore]"
	// DefaultVerbatimClose closes a verbatim region.
	DefaultVerbatimClose = "[/ignore]"
)

// Transformer applies the rules of a RuleTable to text.
// A Transformer holds no per-call state and may be used concurrently, as long
// as its table is not appended to at the same time.
type Transformer struct {
	table           *RuleTable
	verbatimOpen    string
	verbatimClose   string
	verbatimRegex   *regexp.Regexp
	maxReplacements int
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithVerbatimMarkers sets the literal markers delimiting a verbatim region.
// Empty markers are ignored and the defaults are kept.
// Default: "[ignore]" and "[/ignore]"
func WithVerbatimMarkers(openMarker, closeMarker string) Option {
	return func(t *Transformer) {
		if openMarker == "" || closeMarker == "" {
			return
		}
		t.verbatimOpen = openMarker
		t.verbatimClose = closeMarker
	}
}

// WithMaxReplacements caps the number of substitutions a single call may
// perform over all rules. It turns a rule that matches its own output (or
// matches the empty string) into an ErrReplacementLimit error instead of an
// endless loop.
// Default: 0, no limit
func WithMaxReplacements(n int) Option {
	return func(t *Transformer) {
		if n < 0 {
			n = 0
		}
		t.maxReplacements = n
	}
}

// NewTransformer creates a Transformer over table. The table is read on every
// call, so rules appended later are picked up by later calls.
func NewTransformer(table *RuleTable, opts ...Option) *Transformer {
	t := &Transformer{
		table:         table,
		verbatimOpen:  DefaultVerbatimOpen,
		verbatimClose: DefaultVerbatimClose,
	}
	for _, opt := range opts {
		opt(t)
	}
	// before, payload (nearest close), and everything after the close.
	t.verbatimRegex = regexp.MustCompile(`(?s)\A(.*?)` +
		regexp.QuoteMeta(t.verbatimOpen) + `(.*?)` +
		regexp.QuoteMeta(t.verbatimClose) + `(.*)\z`)
	return t
}

// Table returns the table the Transformer reads its rules from.
func (t *Transformer) Table() *RuleTable {
	return t.table
}

// VerbatimMarkers returns the open and close markers in use.
func (t *Transformer) VerbatimMarkers() (string, string) {
	return t.verbatimOpen, t.verbatimClose
}

// Transform applies every rule in table order. Each rule is applied
// exhaustively: after every replacement the whole text is searched again from
// the start, so a rule also sees text produced by its own earlier
// replacements. Only when the rule no longer matches does the next rule run.
func (t *Transformer) Transform(text string) (string, error) {
	replaced := 0
	for pos := range t.table.rules {
		rule := &t.table.rules[pos]
		loc := rule.Pattern.FindStringSubmatchIndex(text)
		for loc != nil {
			if t.maxReplacements > 0 && replaced >= t.maxReplacements {
				return "", fmt.Errorf("rule %q after %d replacements: %w", rule.Source, replaced, ErrReplacementLimit)
			}
			r, err := rule.render(pos, text, loc)
			if err != nil {
				return "", err
			}
			text = text[:loc[0]] + r + text[loc[1]:]
			replaced++
			loc = rule.Pattern.FindStringSubmatchIndex(text)
		}
	}
	return text, nil
}

// TransformSkippingVerbatim transforms text like Transform, except that the
// content of each verbatim region is copied through unchanged with its markers
// removed. A region ends at the first close marker after its open marker;
// open markers inside a region are ordinary payload. An open marker without a
// close marker is left to Transform like any other text.
//
// The text before a region is transformed on its own, so a rule can never
// match across a region boundary.
func (t *Transformer) TransformSkippingVerbatim(text string) (string, error) {
	var out strings.Builder
	rest := text
	for {
		m := t.verbatimRegex.FindStringSubmatchIndex(rest)
		if m == nil {
			tail, err := t.Transform(rest)
			if err != nil {
				return "", err
			}
			out.WriteString(tail)
			return out.String(), nil
		}
		before, err := t.Transform(rest[m[2]:m[3]])
		if err != nil {
			return "", err
		}
		out.WriteString(before)
		out.WriteString(rest[m[4]:m[5]])
		rest = rest[m[6]:m[7]]
	}
}

// Render transforms text with the default rule set, skipping verbatim
// regions. It is a shortcut for one-off conversions; callers rendering many
// documents should keep their own Transformer.
func Render(text string) (string, error) {
	return NewTransformer(DefaultRules()).TransformSkippingVerbatim(text)
}
