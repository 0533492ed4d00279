package sched

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"railopt/internal/model"
)

// Extract folds a solver outcome back into the wire result: one plan per
// movement plus aggregate delay metrics. An infeasible outcome becomes a
// failed result with a reason and no plans; it is never masked as success.
func Extract(m *Model, out Outcome, w model.Weights, backend string, seed int64) model.OptimizeResult {
	res := model.OptimizeResult{
		Status:  string(out.Status),
		Backend: backend,
		Seed:    seed,
		Weights: w,
		Metrics: model.RunMetrics{
			TotalMovements: m.Len(),
			Objective:      out.Objective,
			Bound:          out.Bound,
			Gap:            out.Gap,
			SolveWallMs:    out.Stats.Wall.Milliseconds(),
			Nodes:          out.Stats.Nodes,
			Iterations:     out.Stats.Iterations,
			Workers:        out.Stats.Workers,
		},
	}

	if out.Status == StatusInfeasible {
		res.Status = "failed"
		if m.InfeasibleReason != "" {
			res.Message = m.InfeasibleReason
		} else {
			res.Message = "no feasible schedule within the operating constraints and time budget"
		}
		return res
	}
	if out.Status == StatusError {
		res.Status = "failed"
		res.Message = "solver failed"
		return res
	}

	plans := make([]model.MovementPlan, m.Len())
	after := make([]float64, m.Len())
	var before, total float64
	resolved := 0
	for i := range m.Movements {
		v := &m.Movements[i]
		sl := out.Assignment[i]
		optimized := v.Baseline + float64(sl.Hour-v.Scheduled)*60
		if optimized < 0 {
			optimized = 0
		}
		changed := sl.Platform != v.Platform
		if changed {
			resolved++
		}
		plans[i] = model.MovementPlan{
			MovementID:        v.ID,
			TrainID:           v.TrainID,
			TrainName:         v.TrainName,
			Station:           v.Station,
			To:                v.Dest,
			ScheduledHour:     v.Scheduled,
			OptimizedHour:     sl.Hour,
			OriginalPlatform:  v.Platform,
			AssignedPlatform:  sl.Platform,
			BaselineDelayMin:  v.Baseline,
			OptimizedDelayMin: optimized,
			DelayReductionMin: v.Baseline - optimized,
			ConflictResolved:  changed,
		}
		before += v.Baseline
		total += optimized
		after[i] = optimized
	}

	res.Movements = plans
	res.Metrics.TotalDelayBeforeMin = before
	res.Metrics.TotalDelayAfterMin = total
	res.Metrics.ConflictsResolved = resolved
	res.Metrics.ImprovementPercent = (before - total) / math.Max(1, before) * 100
	if len(after) > 0 {
		res.Metrics.MeanDelayAfterMin = stat.Mean(after, nil)
	}
	if len(after) > 1 {
		res.Metrics.StdDevDelayAfterMin = stat.StdDev(after, nil)
	}
	return res
}
