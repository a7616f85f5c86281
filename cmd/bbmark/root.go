package main

import (
	"fmt"
	"log/slog"

	"github.com/CTAG07/bbmark/pkg/bbcode"
	"github.com/spf13/cobra"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	rulesPath string
	extras    []string
	verbose   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "bbmark",
		Short:         "bbmark turns BBCode markup into HTML",
		Long:          `bbmark applies an ordered table of pattern/template rules to BBCode markup. The default table covers the common forum tags; rule files in YAML or JSON can extend or replace it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.rulesPath, "rules", "", "YAML or JSON rule file to use instead of the default tags")
	cmd.PersistentFlags().StringArrayVar(&opts.extras, "extra", nil, "optional rule to append, may be repeated (see 'bbmark rules extras')")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")

	cmd.AddCommand(
		newRenderCmd(opts),
		newRulesCmd(opts),
		newDemoCmd(),
		newVersionCmd(),
	)
	return cmd
}

// logger writes to the command's stderr, at debug level with --verbose.
func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// ruleFile describes the table selected by --rules and --extra as a rule file.
// Without --rules it extends the default tag set.
func (o *rootOptions) ruleFile() (*bbcode.RuleFile, error) {
	f := &bbcode.RuleFile{Name: "default", Extends: bbcode.ExtendsDefault}
	if o.rulesPath != "" {
		var err error
		if f, err = bbcode.LoadRuleFile(o.rulesPath); err != nil {
			return nil, err
		}
	}
	f.Extras = append(f.Extras, o.extras...)
	return f, nil
}

// table compiles the table selected by --rules and --extra.
func (o *rootOptions) table(logger *slog.Logger) (*bbcode.RuleTable, error) {
	f, err := o.ruleFile()
	if err != nil {
		return nil, err
	}
	table, err := f.Table()
	if err != nil {
		return nil, fmt.Errorf("rule table %q: %w", f.Name, err)
	}
	logger.Debug("Rule table loaded", "name", f.Name, "rules", table.Len())
	return table, nil
}
