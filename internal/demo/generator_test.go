package demo

import (
	"reflect"
	"testing"

	"railopt/internal/sched"
)

func TestDatasetShape(t *testing.T) {
	req := Dataset(1)
	if len(req.Stations) != 4 {
		t.Fatalf("stations = %d", len(req.Stations))
	}
	if len(req.Trains) != 6 {
		t.Fatalf("trains = %d", len(req.Trains))
	}
	if len(req.Movements) != 12 {
		t.Fatalf("movements = %d", len(req.Movements))
	}
	for _, mv := range req.Movements {
		if mv.DelayMin < 0 || mv.DelayMin > 30 {
			t.Fatalf("%s delay = %v", mv.ID, mv.DelayMin)
		}
		if mv.DepartureHour < 8 || mv.DepartureHour > 16 {
			t.Fatalf("%s departs at %d", mv.ID, mv.DepartureHour)
		}
	}
}

func TestDatasetDeterministic(t *testing.T) {
	if !reflect.DeepEqual(Dataset(7), Dataset(7)) {
		t.Fatal("same seed produced different datasets")
	}
	a, b := Dataset(1), Dataset(2)
	if reflect.DeepEqual(a.Movements, b.Movements) {
		t.Fatal("different seeds produced identical movements")
	}
}

func TestDatasetBuilds(t *testing.T) {
	m, err := sched.Build(Dataset(1))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if m.Infeasible {
		t.Fatalf("demo data infeasible: %s", m.InfeasibleReason)
	}
}
