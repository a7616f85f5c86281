package bbcode

import (
	"fmt"
	"slices"
)

// Version of the default rule set.
const Version = "1.1"

// RuleSpec is the uncompiled, portable form of a rule. It is what rule files,
// the extras catalog and the rule store exchange.
type RuleSpec struct {
	Name     string `yaml:"name,omitempty" json:"name,omitempty"`
	Pattern  string `yaml:"pattern" json:"pattern"`
	Template string `yaml:"template" json:"template"`
}

// defaultSpecs is the default tag set, in application order.
//
// size accepts a ones place of at least 7, exactly 50, or a tens place from 1
// to 4 followed by any digit, which keeps fonts between 7px and 50px.
// A list item has no closing tag; it runs to the end of its line.
func defaultSpecs() []RuleSpec {
	return []RuleSpec{
		{Name: "b", Pattern: `\[b\](.*?)\[/b\]`, Template: `<b>%(0)s</b>`},
		{Name: "i", Pattern: `\[i\](.*?)\[/i\]`, Template: `<i>%(0)s</i>`},
		{Name: "u", Pattern: `\[u\](.*?)\[/u\]`, Template: `<u>%(0)s</u>`},

		{Name: "img", Pattern: `\[img\](.*?)\[/img\]`, Template: `<img src="%(0)s">`},
		{Name: "url", Pattern: `\[url\](.*?)\[/url\]`, Template: `<a href="%(0)s">%(0)s</a>`},
		{Name: "url=", Pattern: `\[url="(.*?)"\](.*?)\[/url\]`, Template: `<a href="%(0)s">%(1)s</a>`},

		{Name: "color", Pattern: `\[color="(.*?)"\](.*?)\[/color\]`, Template: `<span style="color: %(0)s">%(1)s</span>`},

		{Name: "big", Pattern: `\[big\](.*?)\[/big\]`, Template: `<span style="font-size: 130%">%(0)s</span>`},
		{Name: "small", Pattern: `\[small\](.*?)\[/small\]`, Template: `<small>%(0)s</small>`},
		{Name: "size", Pattern: `\[size=([7-9]|50|[1-4]\d)\](.*?)\[/size\]`, Template: `<span style="font-size: %(0)spx">%(1)s</span>`},

		{Name: "code", Pattern: `\[code\](.*?)\[/code\]`, Template: `<div class="bbcode-code">%(0)s</div>`},

		{Name: "list", Pattern: `\[list\](.*?)\[/list\]`, Template: `<ul>%(0)s</ul>`},
		{Name: "list=", Pattern: `\[list=\](.*?)\[/list\]`, Template: `<ol>%(0)s</ol>`},
		{Name: "*", Pattern: `\[\*\](.*?)$`, Template: `<li>%(0)s</li>`},
	}
}

// DefaultRules returns a new table holding the default tag set. Every call
// returns a fresh table, so callers may append to it freely.
func DefaultRules() *RuleTable {
	t := &RuleTable{}
	for _, spec := range defaultSpecs() {
		t.mustAdd(spec)
	}
	return t
}

// DefaultSpecs returns the portable form of the default tag set.
func DefaultSpecs() []RuleSpec {
	return defaultSpecs()
}

// extras holds optional rules that are not part of the default set.
//
// css lets users pick "bbcode-" prefixed classes the site theme provides, for
// example [css="contrast"]Look![/css], instead of a hard-coded color that is
// unreadable on half of the themes. A class name is made of letters, digits
// and underscores in any script; \w would only accept ASCII.
var extras = map[string]RuleSpec{
	"css": {Name: "css", Pattern: `\[css="([\p{L}\p{N}_]*?)"\](.*?)\[/css\]`, Template: `<span class="bbcode-%(0)s">%(1)s</span>`},
}

// Extra returns the optional rule registered under name.
func Extra(name string) (RuleSpec, bool) {
	spec, ok := extras[name]
	return spec, ok
}

// ExtraNames returns the names of all optional rules, sorted.
func ExtraNames() []string {
	names := make([]string, 0, len(extras))
	for name := range extras {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// AddExtra appends the optional rule called name to t.
func AddExtra(t *RuleTable, name string) error {
	spec, ok := extras[name]
	if !ok {
		return fmt.Errorf("extra %q: %w", name, ErrUnknownRule)
	}
	return t.Add(spec)
}
