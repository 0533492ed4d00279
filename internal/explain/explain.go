// Package explain renders optimization outcomes as operator-facing text:
// one explanation per changed movement plus a system level summary.
package explain

import (
	"fmt"
	"sort"
	"time"

	"railopt/internal/model"
)

// Decision factors and how much confidence each one carries when it
// applies. A movement's confidence is the mean over its applied factors.
var factorConfidence = map[string]float64{
	"platform_conflict_resolution": 0.90,
	"temporal_optimization":        0.80,
	"delay_minimization":           0.95,
	"priority_balancing":           0.85,
}

const baseConfidence = 0.75

// Performance levels by improvement percent, best first.
var levels = []struct {
	min   float64
	label string
}{
	{30, "Excellent"},
	{20, "Very Good"},
	{10, "Good"},
	{0, "Moderate"},
}

type Explanation struct {
	MovementID string   `json:"movementId"`
	TrainID    string   `json:"trainId"`
	TrainName  string   `json:"trainName,omitempty"`
	Primary    string   `json:"primary"`
	Details    []string `json:"details,omitempty"`
	Factors    []string `json:"factors"`
	Impact     string   `json:"impact"`
	Confidence float64  `json:"confidence"`
	TS         string   `json:"ts"`
}

type Summary struct {
	PerformanceLevel string   `json:"performanceLevel"`
	Narrative        string   `json:"narrative"`
	Insights         []string `json:"insights,omitempty"`
	Recommendations  []string `json:"recommendations,omitempty"`
	NextOpportunity  string   `json:"nextOpportunity,omitempty"`
}

// Movement explains one plan entry. Unchanged movements get a short
// confirmation rather than silence so operators see every train covered.
func Movement(p model.MovementPlan) Explanation {
	e := Explanation{
		MovementID: p.MovementID,
		TrainID:    p.TrainID,
		TrainName:  p.TrainName,
		TS:         time.Now().UTC().Format(time.RFC3339),
	}

	retimed := p.OptimizedHour != p.ScheduledHour
	if p.ConflictResolved {
		e.Factors = append(e.Factors, "platform_conflict_resolution")
		e.Details = append(e.Details, fmt.Sprintf("Moved from platform %d to platform %d at %s to clear a conflicting departure.",
			p.OriginalPlatform, p.AssignedPlatform, p.Station))
	}
	if retimed {
		e.Factors = append(e.Factors, "temporal_optimization")
		e.Details = append(e.Details, fmt.Sprintf("Departure shifted from %02d:00 to %02d:00.", p.ScheduledHour, p.OptimizedHour))
		if shift := p.OptimizedHour - p.ScheduledHour; shift >= -2 && shift <= 2 {
			e.Factors = append(e.Factors, "priority_balancing")
		}
	}
	if p.DelayReductionMin > 0 {
		e.Factors = append(e.Factors, "delay_minimization")
		e.Details = append(e.Details, fmt.Sprintf("Recovers %.0f minutes of accumulated delay.", p.DelayReductionMin))
	}

	switch {
	case p.ConflictResolved && retimed:
		e.Primary = fmt.Sprintf("Rescheduled %s to %02d:00 on platform %d to resolve a conflict at %s.",
			trainLabel(p), p.OptimizedHour, p.AssignedPlatform, p.Station)
	case p.ConflictResolved:
		e.Primary = fmt.Sprintf("Moved %s to platform %d at %s; the departure time holds.",
			trainLabel(p), p.AssignedPlatform, p.Station)
	case retimed:
		e.Primary = fmt.Sprintf("Retimed %s from %02d:00 to %02d:00 at %s for a better slot.",
			trainLabel(p), p.ScheduledHour, p.OptimizedHour, p.Station)
	default:
		e.Primary = fmt.Sprintf("%s keeps its planned %02d:00 slot at %s; no conflicts detected.",
			trainLabel(p), p.ScheduledHour, p.Station)
	}

	switch {
	case p.DelayReductionMin > 0:
		e.Impact = fmt.Sprintf("Reduces delay by %.0f minutes.", p.DelayReductionMin)
	case p.DelayReductionMin < 0:
		e.Impact = fmt.Sprintf("Accepts %.0f minutes of additional delay for network throughput.", -p.DelayReductionMin)
	default:
		e.Impact = "No delay impact."
	}

	total := 0.0
	for _, f := range e.Factors {
		total += factorConfidence[f]
	}
	if len(e.Factors) > 0 {
		e.Confidence = total / float64(len(e.Factors))
	} else {
		e.Confidence = baseConfidence
	}
	return e
}

// Movements explains every plan of a result, conflicted and retimed trains
// first so the interesting rows lead.
func Movements(res model.OptimizeResult) []Explanation {
	out := make([]Explanation, 0, len(res.Movements))
	for _, p := range res.Movements {
		out = append(out, Movement(p))
	}
	sort.SliceStable(out, func(a, b int) bool {
		return explainRank(out[a]) > explainRank(out[b])
	})
	return out
}

func explainRank(e Explanation) int {
	rank := 0
	for _, f := range e.Factors {
		if f == "platform_conflict_resolution" {
			rank += 2
		}
		if f == "delay_minimization" {
			rank++
		}
	}
	return rank
}

// Summarize produces the run level narrative.
func Summarize(res model.OptimizeResult) Summary {
	m := res.Metrics
	s := Summary{PerformanceLevel: levelFor(m.ImprovementPercent)}

	if res.Status == "failed" {
		s.PerformanceLevel = "Failed"
		s.Narrative = "The schedule could not be optimized: " + res.Message
		s.Recommendations = append(s.Recommendations,
			"Relax high-priority deviation windows or add platform capacity at the contended station.")
		return s
	}

	s.Narrative = fmt.Sprintf(
		"Optimized %d movements, resolving %d platform conflicts and cutting total delay from %.0f to %.0f minutes (%.1f%% improvement).",
		m.TotalMovements, m.ConflictsResolved, m.TotalDelayBeforeMin, m.TotalDelayAfterMin, m.ImprovementPercent)

	if m.ConflictsResolved > 0 {
		s.Insights = append(s.Insights, fmt.Sprintf("%d movements changed platform to clear conflicts.", m.ConflictsResolved))
	}
	if m.TotalDelayBeforeMin > m.TotalDelayAfterMin {
		s.Insights = append(s.Insights, fmt.Sprintf("Recovered %.0f minutes of delay across the network.", m.TotalDelayBeforeMin-m.TotalDelayAfterMin))
	}
	if m.MeanDelayAfterMin > 0 {
		s.Insights = append(s.Insights, fmt.Sprintf("Residual delay averages %.1f minutes per movement.", m.MeanDelayAfterMin))
	}

	if busiest, count := busiestStation(res); count > 1 {
		s.Recommendations = append(s.Recommendations, fmt.Sprintf("%s handles %d departures; consider spreading departures or adding platform capacity there.", busiest, count))
	}
	if m.MeanDelayAfterMin > 15 {
		s.Recommendations = append(s.Recommendations, "Residual delays stay high; review turnaround buffers on the slowest legs.")
	}

	if worst := worstResidual(res); worst != nil && worst.OptimizedDelayMin > 0 {
		s.NextOpportunity = fmt.Sprintf("%s still carries %.0f minutes of delay; it is the best candidate for the next pass.",
			trainLabel(*worst), worst.OptimizedDelayMin)
	}
	return s
}

func levelFor(improvement float64) string {
	for _, l := range levels {
		if improvement >= l.min {
			return l.label
		}
	}
	return "Moderate"
}

func busiestStation(res model.OptimizeResult) (string, int) {
	counts := make(map[string]int)
	for _, p := range res.Movements {
		counts[p.Station]++
	}
	best, n := "", 0
	for st, c := range counts {
		if c > n || (c == n && st < best) {
			best, n = st, c
		}
	}
	return best, n
}

func worstResidual(res model.OptimizeResult) *model.MovementPlan {
	var worst *model.MovementPlan
	for i := range res.Movements {
		p := &res.Movements[i]
		if worst == nil || p.OptimizedDelayMin > worst.OptimizedDelayMin {
			worst = p
		}
	}
	return worst
}

func trainLabel(p model.MovementPlan) string {
	if p.TrainName != "" {
		return p.TrainName
	}
	return p.TrainID
}
