package sched

import (
	"context"
	"reflect"
	"testing"
	"time"

	"railopt/internal/model"
)

func solveReq(t *testing.T, req model.OptimizeRequest, backend string, opts Options) (*Model, Outcome) {
	t.Helper()
	m, err := Build(req)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	obj := Compose(m, DefaultWeights())
	out, err := Solve(context.Background(), m, obj, backend, opts)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	return m, out
}

// A conflict-free peak-hour schedule is already optimal and must come back
// untouched, run after run.
func TestSolveKeepsCleanSchedule(t *testing.T) {
	req := baseRequest()
	addTrain(&req, "T1", "medium")
	addTrain(&req, "T2", "medium")
	req.Movements = []model.Movement{
		mov("M1", "T1", "STA_A", "STA_B", 8, 9, 1, 0),
		mov("M2", "T2", "STA_A", "STA_B", 9, 10, 2, 0),
	}
	opts := Options{TimeBudget: MinTimeBudget, Workers: 2, Seed: 1}

	m, out := solveReq(t, req, "bnb", opts)
	if out.Status != StatusOptimal {
		t.Fatalf("status = %s", out.Status)
	}
	if out.Gap != 0 {
		t.Fatalf("gap = %v", out.Gap)
	}
	res := Extract(m, out, DefaultWeights(), "bnb", 1)
	for _, p := range res.Movements {
		if p.OptimizedHour != p.ScheduledHour {
			t.Fatalf("%s moved %d -> %d", p.MovementID, p.ScheduledHour, p.OptimizedHour)
		}
		if p.AssignedPlatform != p.OriginalPlatform {
			t.Fatalf("%s changed platform", p.MovementID)
		}
		if p.DelayReductionMin != 0 || p.ConflictResolved {
			t.Fatalf("%s reports changes: %+v", p.MovementID, p)
		}
	}
	if res.Metrics.ConflictsResolved != 0 || !near(res.Metrics.ImprovementPercent, 0) {
		t.Fatalf("metrics = %+v", res.Metrics)
	}

	_, again := solveReq(t, req, "bnb", opts)
	if !reflect.DeepEqual(out.Assignment, again.Assignment) {
		t.Fatalf("not idempotent: %v vs %v", out.Assignment, again.Assignment)
	}
}

// Two trains fighting over one platform at the same hour: the second one
// gets the other platform, nobody is retimed off the peak.
func TestSolveResolvesPlatformConflict(t *testing.T) {
	req := baseRequest()
	addTrain(&req, "T1", "medium")
	addTrain(&req, "T2", "medium")
	req.Movements = []model.Movement{
		mov("M1", "T1", "STA_A", "STA_B", 8, 9, 1, 0),
		mov("M2", "T2", "STA_A", "STA_B", 8, 9, 1, 0),
	}
	m, out := solveReq(t, req, "bnb", Options{TimeBudget: MinTimeBudget, Workers: 2, Seed: 1})
	if out.Status != StatusOptimal {
		t.Fatalf("status = %s", out.Status)
	}
	res := Extract(m, out, DefaultWeights(), "bnb", 1)
	a, b := res.Movements[0], res.Movements[1]
	if a.OptimizedHour != 8 || b.OptimizedHour != 8 {
		t.Fatalf("hours = %d,%d", a.OptimizedHour, b.OptimizedHour)
	}
	if a.AssignedPlatform == b.AssignedPlatform {
		t.Fatalf("both on platform %d", a.AssignedPlatform)
	}
	if a.AssignedPlatform != 1 {
		t.Fatalf("first mover lost its platform: %d", a.AssignedPlatform)
	}
	if res.Metrics.ConflictsResolved != 1 {
		t.Fatalf("conflictsResolved = %d", res.Metrics.ConflictsResolved)
	}
	if vs := Check(m, Generate(m), out.Assignment); len(vs) != 0 {
		t.Fatalf("violations: %+v", vs)
	}
}

// Four locked high-priority departures into a single platform over a three
// hour window cannot be scheduled; that is proven, not guessed.
func TestSolveProvesInfeasible(t *testing.T) {
	req := model.OptimizeRequest{
		Stations: []model.Station{
			{ID: "STA_S", Name: "Single", Platforms: 1},
			{ID: "STA_B", Name: "Beta", Platforms: 2},
		},
	}
	for _, id := range []string{"T1", "T2", "T3", "T4"} {
		addTrain(&req, id, "high")
		req.Movements = append(req.Movements, mov("M_"+id, id, "STA_S", "STA_B", 23, 23, 1, 0))
	}
	m, out := solveReq(t, req, "bnb", Options{TimeBudget: MinTimeBudget, Workers: 2, Seed: 1})
	if out.Status != StatusInfeasible {
		t.Fatalf("status = %s", out.Status)
	}
	res := Extract(m, out, DefaultWeights(), "bnb", 1)
	if res.Status != "failed" {
		t.Fatalf("extracted status = %s", res.Status)
	}
	if res.Message == "" {
		t.Fatal("failed result needs a reason")
	}
	if len(res.Movements) != 0 {
		t.Fatalf("failed result carries %d plans", len(res.Movements))
	}
}

func TestSolveDeterministic(t *testing.T) {
	req := baseRequest()
	addTrain(&req, "T1", "high")
	addTrain(&req, "T2", "medium")
	addTrain(&req, "T3", "low")
	req.Movements = []model.Movement{
		mov("M1", "T1", "STA_A", "STA_B", 9, 10, 1, 20),
		mov("M2", "T1", "STA_B", "STA_A", 12, 13, 1, 0),
		mov("M3", "T2", "STA_A", "STA_B", 9, 10, 1, 45),
		mov("M4", "T2", "STA_B", "STA_A", 13, 14, 2, 0),
		mov("M5", "T3", "STA_A", "STA_B", 10, 12, 2, 10),
	}
	opts := Options{TimeBudget: MinTimeBudget, Workers: 3, Seed: 7}

	m, first := solveReq(t, req, "bnb", opts)
	_, second := solveReq(t, req, "bnb", opts)
	if first.Status != StatusOptimal || second.Status != StatusOptimal {
		t.Fatalf("statuses = %s, %s", first.Status, second.Status)
	}
	if !reflect.DeepEqual(first.Assignment, second.Assignment) {
		t.Fatalf("assignments differ:\n%v\n%v", first.Assignment, second.Assignment)
	}
	if !near(first.Objective, second.Objective) {
		t.Fatalf("objectives differ: %v vs %v", first.Objective, second.Objective)
	}
	if vs := Check(m, Generate(m), first.Assignment); len(vs) != 0 {
		t.Fatalf("violations: %+v", vs)
	}
}

func TestAnnealFindsOptimumOnSmallInstance(t *testing.T) {
	req := baseRequest()
	addTrain(&req, "T1", "medium")
	addTrain(&req, "T2", "medium")
	req.Movements = []model.Movement{
		mov("M1", "T1", "STA_A", "STA_B", 8, 9, 1, 0),
		mov("M2", "T2", "STA_A", "STA_B", 8, 9, 1, 0),
	}
	m, out := solveReq(t, req, "anneal", Options{TimeBudget: MinTimeBudget, Workers: 2, Seed: 42})
	if out.Status != StatusOptimal && out.Status != StatusFeasible {
		t.Fatalf("status = %s", out.Status)
	}
	// The greedy seed already hits the bound here.
	if !near(out.Objective, out.Bound) {
		t.Fatalf("objective %v below bound %v", out.Objective, out.Bound)
	}
	if out.Assignment[0].Platform == out.Assignment[1].Platform {
		t.Fatal("platforms collide")
	}
	if vs := Check(m, Generate(m), out.Assignment); len(vs) != 0 {
		t.Fatalf("violations: %+v", vs)
	}
}

func TestAnnealReportsInfeasible(t *testing.T) {
	req := model.OptimizeRequest{
		Stations: []model.Station{
			{ID: "STA_S", Name: "Single", Platforms: 1},
			{ID: "STA_B", Name: "Beta", Platforms: 2},
		},
	}
	for _, id := range []string{"T1", "T2", "T3", "T4"} {
		addTrain(&req, id, "high")
		req.Movements = append(req.Movements, mov("M_"+id, id, "STA_S", "STA_B", 23, 23, 1, 0))
	}
	_, out := solveReq(t, req, "anneal", Options{TimeBudget: MinTimeBudget, Workers: 1, Seed: 3})
	if out.Status != StatusInfeasible {
		t.Fatalf("status = %s", out.Status)
	}
}

func TestSolveEmptySchedule(t *testing.T) {
	m, out := solveReq(t, baseRequest(), "bnb", Options{TimeBudget: MinTimeBudget, Seed: 1})
	if out.Status != StatusOptimal || len(out.Assignment) != 0 || out.Objective != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	res := Extract(m, out, DefaultWeights(), "bnb", 1)
	if res.Status != "optimal" || res.Metrics.TotalMovements != 0 || res.Metrics.ImprovementPercent != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestSolveUnknownBackend(t *testing.T) {
	req := baseRequest()
	m, _ := Build(req)
	obj := Compose(m, DefaultWeights())
	out, err := Solve(context.Background(), m, obj, "dijkstra", Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	if out.Status != StatusError {
		t.Fatalf("status = %s", out.Status)
	}
}

func TestSolveCancelledContext(t *testing.T) {
	req := baseRequest()
	addTrain(&req, "T1", "medium")
	req.Movements = []model.Movement{mov("M1", "T1", "STA_A", "STA_B", 10, 11, 1, 0)}
	m, err := Build(req)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	obj := Compose(m, DefaultWeights())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := Solve(ctx, m, obj, "bnb", Options{Seed: 1})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if out.Status != StatusInfeasible {
		t.Fatalf("status = %s, want infeasible when cut off with no incumbent", out.Status)
	}
}

func TestClampOptions(t *testing.T) {
	o := clampOptions(Options{})
	if o.TimeBudget != DefaultTimeBudget {
		t.Fatalf("default budget = %v", o.TimeBudget)
	}
	if o.Workers < 1 || o.Workers > MaxSolverWorkers {
		t.Fatalf("workers = %d", o.Workers)
	}
	if o.Seed == 0 {
		t.Fatal("seed not assigned")
	}
	if o := clampOptions(Options{TimeBudget: 100 * time.Millisecond}); o.TimeBudget != MinTimeBudget {
		t.Fatalf("short budget = %v", o.TimeBudget)
	}
	if o := clampOptions(Options{TimeBudget: time.Minute}); o.TimeBudget != MaxTimeBudget {
		t.Fatalf("long budget = %v", o.TimeBudget)
	}
	if o := clampOptions(Options{Workers: 64}); o.Workers != MaxSolverWorkers {
		t.Fatalf("workers = %d", o.Workers)
	}
}

func TestAssignSlotsKeepsPreferredPlatform(t *testing.T) {
	req := baseRequest()
	addTrain(&req, "T1", "medium")
	addTrain(&req, "T2", "medium")
	req.Movements = []model.Movement{
		mov("M1", "T1", "STA_A", "STA_B", 8, 9, 2, 0),
		mov("M2", "T2", "STA_A", "STA_B", 10, 11, 1, 0),
	}
	m, _ := Build(req)
	slots, ok := assignSlots(m, []int{8, 10})
	if !ok {
		t.Fatal("feasible vector rejected")
	}
	if slots[0].Platform != 2 || slots[1].Platform != 1 {
		t.Fatalf("platforms = %+v", slots)
	}
	if _, ok := assignSlots(m, []int{8}); ok {
		t.Fatal("short vector accepted")
	}
	if _, ok := assignSlots(m, []int{5, 10}); ok {
		t.Fatal("out of window hour accepted")
	}
}
