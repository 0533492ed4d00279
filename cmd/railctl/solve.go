package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"railopt/internal/model"
	"railopt/internal/sched"
)

var (
	solveFile    string
	solveBackend string
	solveBudget  float64
	solveWorkers int
	solveSeed    int64
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Optimize a schedule request and print the result as JSON",
	Long: `Reads an optimization request (stations, trains, movements) from a JSON
file or stdin, runs the solver locally, and prints the result. An infeasible
schedule is still a result: the command exits 0 with status "failed".`,
	RunE: runSolve,
}

func init() {
	solveCmd.Flags().StringVarP(&solveFile, "file", "f", "", "request JSON file (default stdin)")
	solveCmd.Flags().StringVar(&solveBackend, "backend", "", "solver backend: bnb or anneal")
	solveCmd.Flags().Float64Var(&solveBudget, "budget", 0, "time budget in seconds")
	solveCmd.Flags().IntVar(&solveWorkers, "workers", 0, "parallel workers")
	solveCmd.Flags().Int64Var(&solveSeed, "seed", 0, "random seed, 0 picks one")
	rootCmd.AddCommand(solveCmd)
}

func runSolve(cmd *cobra.Command, args []string) error {
	raw, err := readInput(solveFile)
	if err != nil {
		return err
	}
	var req model.OptimizeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("parse request: %w", err)
	}
	if solveBackend != "" {
		req.Algorithm = solveBackend
	}
	if solveBudget > 0 {
		req.TimeBudgetSec = solveBudget
	}
	if solveWorkers > 0 {
		req.MaxWorkers = solveWorkers
	}
	if solveSeed != 0 {
		req.Seed = solveSeed
	}

	m, err := sched.Build(req)
	if err != nil {
		return err
	}
	weights := sched.DefaultWeights()
	if req.Weights != nil {
		weights = *req.Weights
	}
	backend := req.Algorithm
	if backend == "" {
		backend = "bnb"
	}
	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	opts := sched.Options{
		TimeBudget: time.Duration(req.TimeBudgetSec * float64(time.Second)),
		Workers:    req.MaxWorkers,
		Seed:       seed,
	}
	obj := sched.Compose(m, weights)
	out, serr := sched.Solve(cmd.Context(), m, obj, backend, opts)
	res := sched.Extract(m, out, weights, backend, seed)
	if serr != nil && res.Message == "" {
		res.Message = serr.Error()
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
