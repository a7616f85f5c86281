package main

import (
	"fmt"
	"io"

	"github.com/CTAG07/bbmark/pkg/bbcode"
	"github.com/spf13/cobra"
)

// demoDocument exercises every default tag and the css extra, including the
// cases that surprise people: markup inside a tag attribute is transformed,
// an unclosed tag is left alone, and a list item without a line end of its
// own swallows the closing list tag.
const demoDocument = `
[i][b][u]Hello?[/u][/b][/i]
[css="[i][/i]"]Stuff inside the tags themselves is not immune to parsing![/css]
[ignore]
    [i]This would be italic.[/i]
[/ignore]
[url="https://github.com/CTAG07/bbmark"]bbmark[/url]
[big][url]https://go.dev[/url][/bigg]
[size=50][css="elaborate"]Power of bbmark[/css][/size]
[list][*]Cool[/list]
[list=]
    [*]Cooler
    [*]Coolest
[/list]
[code]
import "github.com/CTAG07/bbmark/pkg/bbcode"
[/code]`

func newDemoCmd() *cobra.Command {
	var showSource bool
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Render a sample document that shows off every default tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table := bbcode.DefaultRules()
			if err := bbcode.AddExtra(table, "css"); err != nil {
				return err
			}
			html, err := bbcode.NewTransformer(table).TransformSkippingVerbatim(demoDocument)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if showSource {
				fmt.Fprintln(out, "--- markup ---")
				_, _ = io.WriteString(out, demoDocument)
				fmt.Fprintln(out, "\n--- html ---")
			}
			_, err = io.WriteString(out, html+"\n")
			return err
		},
	}
	cmd.Flags().BoolVar(&showSource, "source", false, "print the markup before the HTML")
	return cmd
}
