package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"railopt/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "railctl %s (%s) built %s\n",
			buildinfo.Version, buildinfo.Commit, buildinfo.BuiltAt)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
