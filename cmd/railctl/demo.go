package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"railopt/internal/demo"
)

var demoCmdSeed int64

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Print a demo optimization request, pipeable into solve",
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(demo.Dataset(demoCmdSeed))
	},
}

func init() {
	demoCmd.Flags().Int64Var(&demoCmdSeed, "seed", 42, "dataset seed")
	rootCmd.AddCommand(demoCmd)
}
