package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set with -ldflags at build time.
var (
	version   = "0.1.0"
	buildDate = "unknown"
	commit    = "unknown"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:     "version",
	Aliases: []string{"ver"},
	Short:   "Print the client version",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Version:    ", version)
		fmt.Fprintln(out, "Build date: ", buildDate)
		fmt.Fprintln(out, "Git commit: ", commit)
	},
}
