package bbcode

import (
	"errors"
	"fmt"
)

var (
	// ErrPatternCompile is matched by every PatternCompileError.
	ErrPatternCompile = errors.New("rule pattern does not compile")
	// ErrTemplateBinding is matched by every TemplateBindingError.
	ErrTemplateBinding = errors.New("template placeholder has no matching capture group")
	// ErrReplacementLimit is returned when a Transformer configured with
	// WithMaxReplacements performs more substitutions than allowed.
	ErrReplacementLimit = errors.New("replacement limit exceeded")
	// ErrUnknownRule is returned when a rule file or AddExtra names a base
	// set or extra rule that does not exist.
	ErrUnknownRule = errors.New("unknown rule reference")
)

// PatternCompileError is returned when a rule is registered with a pattern
// source that is not a valid regular expression. It is raised at registration
// time, never during a transformation.
type PatternCompileError struct {
	Source string // Pattern source as given by the caller
	Err    error  // Error reported by the regexp package
}

func (e *PatternCompileError) Error() string {
	return fmt.Sprintf("invalid rule pattern %q: %v", e.Source, e.Err)
}

func (e *PatternCompileError) Unwrap() []error {
	return []error{ErrPatternCompile, e.Err}
}

// TemplateBindingError is returned by a transformation when a rule matched and
// its template references a placeholder the pattern does not capture.
type TemplateBindingError struct {
	Rule        int    // Position of the rule in its table
	Name        string // Rule name, may be empty
	Placeholder string // Placeholder key as written in the template
	Groups      int    // Number of capture groups the pattern declares
}

func (e *TemplateBindingError) Error() string {
	name := e.Name
	if name == "" {
		name = fmt.Sprintf("#%d", e.Rule)
	}
	return fmt.Sprintf("rule %s: placeholder %%(%s)s does not match any of %d capture groups", name, e.Placeholder, e.Groups)
}

func (e *TemplateBindingError) Unwrap() error {
	return ErrTemplateBinding
}
