package main

import (
	"fmt"

	"github.com/CTAG07/bbmark/pkg/bbcode"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of bbmark",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bbmark version %s (commit %s, built %s, default rules %s)\n",
				Version, Commit, BuildDate, bbcode.Version)
		},
	}
}
