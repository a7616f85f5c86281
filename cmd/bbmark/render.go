package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/CTAG07/bbmark/pkg/bbcode"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
)

type renderOptions struct {
	noIgnore        bool
	out             string
	maxReplacements int
	verbatimOpen    string
	verbatimClose   string
}

func newRenderCmd(root *rootOptions) *cobra.Command {
	opts := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Render BBCode markup to HTML",
		Long: `Reads markup from file, or from stdin when no file is given, and writes the HTML.
Text between [ignore] and [/ignore] is copied through untouched unless --no-ignore is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, root, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.noIgnore, "no-ignore", false, "transform verbatim regions like any other text")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write the HTML to this file instead of stdout")
	cmd.Flags().IntVar(&opts.maxReplacements, "max-replacements", 100000, "abort after this many substitutions, 0 for no limit")
	cmd.Flags().StringVar(&opts.verbatimOpen, "verbatim-open", bbcode.DefaultVerbatimOpen, "marker opening a verbatim region")
	cmd.Flags().StringVar(&opts.verbatimClose, "verbatim-close", bbcode.DefaultVerbatimClose, "marker closing a verbatim region")
	return cmd
}

func runRender(cmd *cobra.Command, root *rootOptions, opts *renderOptions, args []string) error {
	logger := root.logger(cmd)

	table, err := root.table(logger)
	if err != nil {
		return err
	}

	var input []byte
	if len(args) == 1 {
		input, err = os.ReadFile(args[0])
	} else {
		input, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	t := bbcode.NewTransformer(table,
		bbcode.WithVerbatimMarkers(opts.verbatimOpen, opts.verbatimClose),
		bbcode.WithMaxReplacements(opts.maxReplacements),
	)
	var html string
	if opts.noIgnore {
		html, err = t.Transform(string(input))
	} else {
		html, err = t.TransformSkippingVerbatim(string(input))
	}
	if err != nil {
		return err
	}

	if opts.out == "" {
		_, err = io.WriteString(cmd.OutOrStdout(), html)
		return err
	}
	if err = atomic.WriteFile(opts.out, bytes.NewReader([]byte(html))); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	logger.Info("HTML written", "path", opts.out, "bytes", len(html))
	return nil
}
