package bbcode

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const forumRules = `
name: forum
description: default tags plus spoilers
extends: default
extras: [css]
rules:
  - name: spoiler
    pattern: '\[spoiler\](.*?)\[/spoiler\]'
    template: '<details>%(0)s</details>'
`

func TestParseRuleFileYAML(t *testing.T) {
	f, err := ParseRuleFile([]byte(forumRules), FormatYAML)
	if err != nil {
		t.Fatalf("ParseRuleFile failed: %v", err)
	}
	if f.Name != "forum" || f.Extends != ExtendsDefault || len(f.Extras) != 1 || len(f.Rules) != 1 {
		t.Fatalf("unexpected rule file: %+v", f)
	}

	table, err := f.Table()
	if err != nil {
		t.Fatalf("Table failed: %v", err)
	}
	if want := len(DefaultSpecs()) + 2; table.Len() != want {
		t.Errorf("expected %d rules, got %d", want, table.Len())
	}

	rules := table.Rules()
	if rules[len(rules)-2].Name != "css" || rules[len(rules)-1].Name != "spoiler" {
		t.Errorf("expected extras before custom rules, got %q then %q", rules[len(rules)-2].Name, rules[len(rules)-1].Name)
	}

	got := mustSkipVerbatim(t, NewTransformer(table), `[spoiler][b]x[/b][/spoiler]`)
	if want := "<details><b>x</b></details>"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestParseRuleFileJSON(t *testing.T) {
	data := `{"name": "tiny", "rules": [{"pattern": "\\[s\\](.*?)\\[/s\\]", "template": "<s>%(0)s</s>"}]}`
	f, err := ParseRuleFile([]byte(data), FormatJSON)
	if err != nil {
		t.Fatalf("ParseRuleFile failed: %v", err)
	}
	table, err := f.Table()
	if err != nil {
		t.Fatalf("Table failed: %v", err)
	}
	if table.Len() != 1 {
		t.Errorf("a file without extends should only hold its own rules, got %d", table.Len())
	}
}

func TestRuleFileErrors(t *testing.T) {
	tests := []struct {
		name   string
		file   RuleFile
		target error
	}{
		{"unknown base", RuleFile{Name: "x", Extends: "phpbb"}, ErrUnknownRule},
		{"unknown extra", RuleFile{Name: "x", Extras: []string{"nope"}}, ErrUnknownRule},
		{"bad pattern", RuleFile{Name: "x", Rules: []RuleSpec{{Pattern: `(`, Template: ""}}}, ErrPatternCompile},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.file.Table()
			if !errors.Is(err, tc.target) {
				t.Errorf("expected %v, got %v", tc.target, err)
			}
		})
	}

	if _, err := ParseRuleFile([]byte("name: x"), "toml"); err == nil {
		t.Error("expected an error for an unsupported format")
	}
}

func TestLoadRuleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yml")
	content := "extends: default\nrules: []\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write rule file: %v", err)
	}

	f, err := LoadRuleFile(path)
	if err != nil {
		t.Fatalf("LoadRuleFile failed: %v", err)
	}
	if f.Name != "custom" {
		t.Errorf("expected the name to default to the file name, got %q", f.Name)
	}

	if _, err = LoadRuleFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestRuleFileMarshal(t *testing.T) {
	f := &RuleFile{Name: "defaults", Rules: DefaultSpecs()}
	for _, format := range []string{FormatYAML, FormatJSON} {
		data, err := f.Marshal(format)
		if err != nil {
			t.Fatalf("Marshal(%s) failed: %v", format, err)
		}
		back, err := ParseRuleFile(data, format)
		if err != nil {
			t.Fatalf("ParseRuleFile(%s) failed: %v", format, err)
		}
		table, err := back.Table()
		if err != nil {
			t.Fatalf("%s: Table failed: %v", format, err)
		}
		if format == FormatJSON && !bytes.Contains(data, []byte(`"<b>%(0)s</b>"`)) {
			t.Errorf("expected templates to be written without HTML escaping, got %s", data)
		}
		got := mustTransform(t, NewTransformer(table), "[size=50]x[/size]")
		if want := `<span style="font-size: 50px">x</span>`; got != want {
			t.Errorf("%s: expected %q, got %q", format, want, got)
		}
	}
}

func TestFormatFromPath(t *testing.T) {
	if FormatFromPath("rules.JSON") != FormatJSON {
		t.Error("expected .JSON to select JSON")
	}
	if FormatFromPath("rules.yaml") != FormatYAML || FormatFromPath("rules") != FormatYAML {
		t.Error("expected everything else to select YAML")
	}
}
