package main

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/CTAG07/bbmark/pkg/bbcode"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
)

func newRulesCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and export rule tables",
	}
	cmd.AddCommand(
		newRulesListCmd(root),
		newRulesExportCmd(root),
		newRulesExtrasCmd(),
	)
	return cmd
}

func newRulesListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the rules of the selected table in the order they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := root.table(root.logger(cmd))
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tNAME\tPATTERN\tTEMPLATE")
			for i, spec := range table.Specs() {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, spec.Name, spec.Pattern, spec.Template)
			}
			return w.Flush()
		},
	}
}

func newRulesExportCmd(root *rootOptions) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the selected table as a self-contained rule file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := root.ruleFile()
			if err != nil {
				return err
			}
			specs, err := f.Specs()
			if err != nil {
				return err
			}
			// Check that the exported file loads back.
			if _, err = bbcode.NewRuleTable(specs...); err != nil {
				return err
			}
			flat := &bbcode.RuleFile{Name: f.Name, Description: f.Description, Rules: specs}
			data, err := flat.Marshal(format)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err = atomic.WriteFile(out, bytes.NewReader(data)); err != nil {
				return fmt.Errorf("failed to write rule file: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", bbcode.FormatYAML, "output format, yaml or json")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	return cmd
}

func newRulesExtrasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extras",
		Short: "List the optional rules that --extra accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPATTERN\tTEMPLATE")
			for _, name := range bbcode.ExtraNames() {
				spec, _ := bbcode.Extra(name)
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, spec.Pattern, spec.Template)
			}
			return w.Flush()
		},
	}
}
