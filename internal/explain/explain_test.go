package explain

import (
	"math"
	"strings"
	"testing"

	"railopt/internal/model"
)

func plan(mut func(*model.MovementPlan)) model.MovementPlan {
	p := model.MovementPlan{
		MovementID:       "MOV_001",
		TrainID:          "TRN_001",
		TrainName:        "Express 001",
		Station:          "STN_1",
		To:               "STN_2",
		ScheduledHour:    9,
		OptimizedHour:    9,
		OriginalPlatform: 1,
		AssignedPlatform: 1,
	}
	if mut != nil {
		mut(&p)
	}
	return p
}

func TestMovementUnchanged(t *testing.T) {
	e := Movement(plan(nil))
	if len(e.Factors) != 0 {
		t.Fatalf("factors = %v", e.Factors)
	}
	if e.Confidence != baseConfidence {
		t.Fatalf("confidence = %v", e.Confidence)
	}
	if !strings.Contains(e.Primary, "keeps its planned") {
		t.Fatalf("primary = %q", e.Primary)
	}
	if e.Impact != "No delay impact." {
		t.Fatalf("impact = %q", e.Impact)
	}
}

func TestMovementConflictAndRetime(t *testing.T) {
	e := Movement(plan(func(p *model.MovementPlan) {
		p.OptimizedHour = 10
		p.AssignedPlatform = 2
		p.ConflictResolved = true
		p.BaselineDelayMin = 90
		p.OptimizedDelayMin = 30
		p.DelayReductionMin = 60
	}))
	want := map[string]bool{
		"platform_conflict_resolution": true,
		"temporal_optimization":        true,
		"priority_balancing":           true,
		"delay_minimization":           true,
	}
	for _, f := range e.Factors {
		if !want[f] {
			t.Fatalf("unexpected factor %q", f)
		}
		delete(want, f)
	}
	if len(want) != 0 {
		t.Fatalf("missing factors: %v", want)
	}
	// Mean of the four factor confidences.
	exp := (0.90 + 0.80 + 0.85 + 0.95) / 4
	if math.Abs(e.Confidence-exp) > 1e-9 {
		t.Fatalf("confidence = %v, want %v", e.Confidence, exp)
	}
	if !strings.Contains(e.Primary, "Rescheduled Express 001") {
		t.Fatalf("primary = %q", e.Primary)
	}
	if !strings.Contains(e.Impact, "60 minutes") {
		t.Fatalf("impact = %q", e.Impact)
	}
}

func TestMovementsOrdersInterestingFirst(t *testing.T) {
	res := model.OptimizeResult{Movements: []model.MovementPlan{
		plan(nil),
		plan(func(p *model.MovementPlan) {
			p.MovementID = "MOV_002"
			p.ConflictResolved = true
			p.AssignedPlatform = 2
		}),
	}}
	out := Movements(res)
	if out[0].MovementID != "MOV_002" {
		t.Fatalf("order = %s, %s", out[0].MovementID, out[1].MovementID)
	}
}

func TestSummarizeLevels(t *testing.T) {
	for improvement, want := range map[float64]string{
		45: "Excellent", 25: "Very Good", 12: "Good", 3: "Moderate", -5: "Moderate",
	} {
		res := model.OptimizeResult{Status: "optimal", Metrics: model.RunMetrics{ImprovementPercent: improvement}}
		if got := Summarize(res).PerformanceLevel; got != want {
			t.Fatalf("level(%v) = %q, want %q", improvement, got, want)
		}
	}
}

func TestSummarizeNarrative(t *testing.T) {
	res := model.OptimizeResult{
		Status: "optimal",
		Metrics: model.RunMetrics{
			TotalMovements:      12,
			ConflictsResolved:   3,
			TotalDelayBeforeMin: 180,
			TotalDelayAfterMin:  60,
			ImprovementPercent:  66.7,
			MeanDelayAfterMin:   5,
		},
		Movements: []model.MovementPlan{
			plan(nil),
			plan(func(p *model.MovementPlan) { p.MovementID = "MOV_002" }),
			plan(func(p *model.MovementPlan) {
				p.MovementID = "MOV_003"
				p.Station = "STN_2"
				p.OptimizedDelayMin = 40
			}),
		},
	}
	s := Summarize(res)
	if s.PerformanceLevel != "Excellent" {
		t.Fatalf("level = %q", s.PerformanceLevel)
	}
	if !strings.Contains(s.Narrative, "12 movements") || !strings.Contains(s.Narrative, "3 platform conflicts") {
		t.Fatalf("narrative = %q", s.Narrative)
	}
	// STN_1 hosts two of the three departures.
	found := false
	for _, r := range s.Recommendations {
		if strings.Contains(r, "STN_1") {
			found = true
		}
	}
	if !found {
		t.Fatalf("recommendations = %v", s.Recommendations)
	}
	if !strings.Contains(s.NextOpportunity, "40 minutes") {
		t.Fatalf("next = %q", s.NextOpportunity)
	}
}

func TestSummarizeFailed(t *testing.T) {
	res := model.OptimizeResult{Status: "failed", Message: "no feasible schedule"}
	s := Summarize(res)
	if s.PerformanceLevel != "Failed" {
		t.Fatalf("level = %q", s.PerformanceLevel)
	}
	if !strings.Contains(s.Narrative, "no feasible schedule") {
		t.Fatalf("narrative = %q", s.Narrative)
	}
	if len(s.Recommendations) == 0 {
		t.Fatal("failed summary should recommend a relaxation")
	}
}
