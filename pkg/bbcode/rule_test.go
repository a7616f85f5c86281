package bbcode

import (
	"errors"
	"regexp/syntax"
	"testing"
)

func TestAddRulePatternCompileError(t *testing.T) {
	table := &RuleTable{}

	err := table.AddRule(`\[b(`, "<b>%(0)s</b>")
	if err == nil {
		t.Fatal("expected an error for an invalid pattern")
	}
	if !errors.Is(err, ErrPatternCompile) {
		t.Errorf("expected error to match ErrPatternCompile, got %v", err)
	}
	var compileErr *PatternCompileError
	if !errors.As(err, &compileErr) {
		t.Fatalf("expected a *PatternCompileError, got %T", err)
	}
	if compileErr.Source != `\[b(` {
		t.Errorf("expected source %q, got %q", `\[b(`, compileErr.Source)
	}
	var syntaxErr *syntax.Error
	if !errors.As(err, &syntaxErr) {
		t.Errorf("expected the regexp syntax error to be wrapped, got %v", compileErr.Err)
	}
	if table.Len() != 0 {
		t.Errorf("a failed AddRule must not append, table has %d rules", table.Len())
	}
}

func TestAddRuleDoesNotCheckPlaceholders(t *testing.T) {
	table := &RuleTable{}
	if err := table.AddRule(`\[b\]`, "%(7)s"); err != nil {
		t.Fatalf("placeholders should only be checked when rendering, got %v", err)
	}
}

func TestMustAddRulePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected MustAddRule to panic on an invalid pattern")
		}
	}()
	(&RuleTable{}).MustAddRule(`(`, "")
}

func TestRulesKeepInsertionOrder(t *testing.T) {
	table := &RuleTable{}
	sources := []string{`c`, `a`, `b`, `a`}
	for _, src := range sources {
		table.MustAddRule(src, "x")
	}

	rules := table.Rules()
	if len(rules) != len(sources) {
		t.Fatalf("expected %d rules, got %d", len(sources), len(rules))
	}
	for i, src := range sources {
		if rules[i].Source != src {
			t.Errorf("rule %d: expected source %q, got %q", i, src, rules[i].Source)
		}
		if !rules[i].Pattern.MatchString(src) {
			t.Errorf("rule %d: compiled pattern does not match its own source", i)
		}
	}

	rules[0].Template = "changed"
	if table.Rules()[0].Template != "x" {
		t.Error("modifying the slice returned by Rules must not affect the table")
	}
}

func TestRulePatternFlags(t *testing.T) {
	table := &RuleTable{}
	table.MustAddRule(`^\[h\](.*?)$`, "<h>%(0)s</h>")
	re := table.Rules()[0].Pattern

	if !re.MatchString("[H]x") {
		t.Error("patterns should be case-insensitive")
	}
	if !re.MatchString("first\n[h]second") {
		t.Error("^ should match at the start of a line")
	}

	table.MustAddRule(`a.b`, "")
	if !table.Rules()[1].Pattern.MatchString("a\nb") {
		t.Error(". should match a newline")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	base := DefaultRules()
	clone := base.Clone()
	clone.MustAddRule(`\[s\](.*?)\[/s\]`, "<s>%(0)s</s>")

	if clone.Len() != base.Len()+1 {
		t.Errorf("expected clone to have %d rules, got %d", base.Len()+1, clone.Len())
	}
	if base.Len() != len(DefaultSpecs()) {
		t.Errorf("appending to a clone changed the original: %d rules", base.Len())
	}
}

func TestDefaultRulesAreFresh(t *testing.T) {
	first := DefaultRules()
	first.MustAddRule(`x`, "y")

	second := DefaultRules()
	if second.Len() != len(DefaultSpecs()) {
		t.Errorf("expected a fresh default table of %d rules, got %d", len(DefaultSpecs()), second.Len())
	}
	if first == second {
		t.Error("DefaultRules returned the same table twice")
	}
}

func TestDefaultSpecsRoundTrip(t *testing.T) {
	table, err := NewRuleTable(DefaultSpecs()...)
	if err != nil {
		t.Fatalf("NewRuleTable(DefaultSpecs()) failed: %v", err)
	}
	specs := table.Specs()
	defaults := DefaultSpecs()
	for i := range defaults {
		if specs[i] != defaults[i] {
			t.Errorf("rule %d: expected %+v, got %+v", i, defaults[i], specs[i])
		}
	}
}

func TestExtras(t *testing.T) {
	names := ExtraNames()
	if len(names) != 1 || names[0] != "css" {
		t.Fatalf("expected extras [css], got %v", names)
	}

	table := &RuleTable{}
	if err := AddExtra(table, "css"); err != nil {
		t.Fatalf("AddExtra(css) failed: %v", err)
	}
	if table.Len() != 1 || table.Rules()[0].Name != "css" {
		t.Errorf("expected the css rule to be appended, got %+v", table.Specs())
	}

	if err := AddExtra(table, "nope"); err == nil {
		t.Error("expected an error for an unknown extra")
	}

	tests := []struct {
		input string
		want  string
	}{
		{`[css="contrast"]Look![/css]`, `<span class="bbcode-contrast">Look!</span>`},
		{`[css="café_2"]Look![/css]`, `<span class="bbcode-café_2">Look!</span>`},
		{`[css="日本"]Look![/css]`, `<span class="bbcode-日本">Look!</span>`},
		{`[css="a b"]Look![/css]`, `[css="a b"]Look![/css]`},
		{`[css="a-b"]Look![/css]`, `[css="a-b"]Look![/css]`},
	}
	for _, tt := range tests {
		if got := mustTransform(t, NewTransformer(table), tt.input); got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.input, tt.want, got)
		}
	}
}
