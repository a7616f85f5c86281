package bbcode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// FormatYAML selects the YAML rule file encoding.
	FormatYAML = "yaml"
	// FormatJSON selects the JSON rule file encoding.
	FormatJSON = "json"

	// ExtendsDefault makes a rule file start from the default tag set.
	ExtendsDefault = "default"
)

// RuleFile is the on-disk description of a named rule table.
//
//	name: forum
//	extends: default
//	extras: [css]
//	rules:
//	  - name: spoiler
//	    pattern: '\[spoiler\](.*?)\[/spoiler\]'
//	    template: '<details>%(0)s</details>'
//
// The resulting table holds the base set named by Extends (if any), then the
// extras, then Rules, in that order.
type RuleFile struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Extends     string     `yaml:"extends,omitempty" json:"extends,omitempty"`
	Extras      []string   `yaml:"extras,omitempty" json:"extras,omitempty"`
	Rules       []RuleSpec `yaml:"rules" json:"rules"`
}

// FormatFromPath picks the encoding from a file extension. Anything that is
// not ".json" is treated as YAML.
func FormatFromPath(path string) string {
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		return FormatJSON
	}
	return FormatYAML
}

// LoadRuleFile reads and decodes a rule file. The encoding is chosen by
// FormatFromPath.
func LoadRuleFile(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	f, err := ParseRuleFile(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return f, nil
}

// ParseRuleFile decodes a rule file in the given format.
func ParseRuleFile(data []byte, format string) (*RuleFile, error) {
	var f RuleFile
	switch strings.ToLower(format) {
	case FormatJSON:
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
	case FormatYAML, "yml", "":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported rule file format %q", format)
	}
	return &f, nil
}

// Marshal encodes the rule file in the given format.
func (f *RuleFile) Marshal(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		// Templates are HTML; keep them readable instead of \u003c escaped.
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(f); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatYAML, "yml", "":
		return yaml.Marshal(f)
	default:
		return nil, fmt.Errorf("unsupported rule file format %q", format)
	}
}

// Specs returns every rule the file describes, base set and extras included,
// in application order.
func (f *RuleFile) Specs() ([]RuleSpec, error) {
	var specs []RuleSpec
	switch f.Extends {
	case "":
	case ExtendsDefault:
		specs = append(specs, defaultSpecs()...)
	default:
		return nil, fmt.Errorf("rule file %q extends %q: %w", f.Name, f.Extends, ErrUnknownRule)
	}
	for _, name := range f.Extras {
		spec, ok := Extra(name)
		if !ok {
			return nil, fmt.Errorf("rule file %q: extra %q: %w", f.Name, name, ErrUnknownRule)
		}
		specs = append(specs, spec)
	}
	return append(specs, f.Rules...), nil
}

// Table compiles the rule file into a new RuleTable.
func (f *RuleFile) Table() (*RuleTable, error) {
	specs, err := f.Specs()
	if err != nil {
		return nil, err
	}
	return NewRuleTable(specs...)
}
