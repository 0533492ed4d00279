package sched

import (
	"testing"

	"railopt/internal/model"
)

func TestThroughputValuePeaks(t *testing.T) {
	for h, want := range map[int]float64{6: 10, 7: 30, 9: 30, 12: 10, 17: 30, 19: 30, 20: 10, 23: 10} {
		if got := throughputValue(h); got != want {
			t.Fatalf("throughputValue(%d) = %v, want %v", h, got, want)
		}
	}
}

func TestDelayMinutes(t *testing.T) {
	if got := delayMinutes(10, 12); got != 120 {
		t.Fatalf("late by two hours = %v, want 120", got)
	}
	if got := delayMinutes(10, 10); got != 0 {
		t.Fatalf("on time = %v, want 0", got)
	}
	if got := delayMinutes(10, 8); got != 0 {
		t.Fatalf("early = %v, want 0", got)
	}
}

func TestPriorityWeights(t *testing.T) {
	if prioWeight("high") != 3 || prioWeight("medium") != 2 || prioWeight("low") != 1 {
		t.Fatal("priority multipliers off")
	}
	if prioWeight("") != 2 {
		t.Fatal("unset priority should count as medium")
	}
}

func TestComposeMovementValue(t *testing.T) {
	req := baseRequest()
	addTrain(&req, "T1", "medium")
	req.Movements = []model.Movement{mov("M1", "T1", "STA_A", "STA_B", 10, 11, 1, 0)}
	m, err := Build(req)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	obj := Compose(m, DefaultWeights())

	// Two hours late, medium priority: -0.4*2*120 + 0.3*10 - 0.2*2*120.
	if got := obj.MovementValue(0, 12); !near(got, -141) {
		t.Fatalf("value at 12 = %v, want -141", got)
	}
	// One hour early inside the morning peak: no delay, bonused slot.
	if got := obj.MovementValue(0, 9); !near(got, 9) {
		t.Fatalf("value at 9 = %v, want 9", got)
	}
	if got := obj.MovementUpper(0); !near(got, 9) {
		t.Fatalf("upper = %v, want 9", got)
	}
	if got := obj.UpperBound(); !near(got, 9) {
		t.Fatalf("bound = %v, want 9", got)
	}
	if got := obj.Evaluate([]Slot{{Hour: 9, Platform: 1}}); !near(got, 9) {
		t.Fatalf("evaluate = %v, want 9", got)
	}
	if got := obj.Evaluate(nil); got != 0 {
		t.Fatalf("empty evaluate = %v, want 0", got)
	}
}

func TestGapGuard(t *testing.T) {
	if got := Gap(10, 12); !near(got, 0.2) {
		t.Fatalf("gap = %v, want 0.2", got)
	}
	if got := Gap(0, 0); got != 0 {
		t.Fatalf("zero gap = %v", got)
	}
	// Zero incumbent with a positive bound must not divide by zero.
	if got := Gap(0, 5); got <= 0 {
		t.Fatalf("gap = %v, want positive", got)
	}
}

func TestDefaultWeights(t *testing.T) {
	w := DefaultWeights()
	if w.Delay != 0.4 || w.Throughput != 0.3 || w.Priority != 0.2 || w.Conflict != 0.1 {
		t.Fatalf("defaults = %+v", w)
	}
}
