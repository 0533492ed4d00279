package sched

import (
	"errors"
	"math"
	"strings"
	"testing"

	"railopt/internal/model"
)

func baseRequest() model.OptimizeRequest {
	return model.OptimizeRequest{
		Stations: []model.Station{
			{ID: "STA_A", Name: "Alpha", Platforms: 2},
			{ID: "STA_B", Name: "Beta", Platforms: 2},
		},
	}
}

func addTrain(req *model.OptimizeRequest, id, priority string) {
	req.Trains = append(req.Trains, model.Train{ID: id, Name: id, Type: "express", Priority: priority})
}

func mov(id, train, from, to string, dep, arr, platform int, delay float64) model.Movement {
	return model.Movement{
		ID: id, TrainID: train, From: from, To: to,
		DepartureHour: dep, ArrivalHour: arr, Platform: platform, DelayMin: delay,
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestBuildDomains(t *testing.T) {
	req := baseRequest()
	addTrain(&req, "T1", "medium")
	addTrain(&req, "T2", "high")
	req.Movements = []model.Movement{
		mov("M1", "T1", "STA_A", "STA_B", 10, 11, 1, 0),
		mov("M2", "T2", "STA_A", "STA_B", 10, 11, 2, 15),
	}
	m, err := Build(req)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if m.Infeasible {
		t.Fatalf("unexpected infeasible: %s", m.InfeasibleReason)
	}
	if d := m.Movements[0].Domain; d.Lo != WindowStart || d.Hi != WindowEnd {
		t.Fatalf("medium domain = [%d,%d], want full window", d.Lo, d.Hi)
	}
	if d := m.Movements[1].Domain; d.Lo != 8 || d.Hi != 12 {
		t.Fatalf("high domain = [%d,%d], want [8,12]", d.Lo, d.Hi)
	}
	if m.Movements[1].Baseline != 15 {
		t.Fatalf("baseline = %v", m.Movements[1].Baseline)
	}
	if m.Movements[0].Journey != 1 {
		t.Fatalf("journey = %d", m.Movements[0].Journey)
	}
}

func TestBuildSequencingPropagation(t *testing.T) {
	req := baseRequest()
	addTrain(&req, "T1", "medium")
	req.Movements = []model.Movement{
		mov("LEG1", "T1", "STA_A", "STA_B", 8, 10, 1, 0),
		mov("LEG2", "T1", "STA_B", "STA_A", 12, 13, 1, 0),
	}
	m, err := Build(req)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	// LEG1 has journey 2, so LEG2 cannot leave before lo(LEG1)+3 and LEG1
	// cannot leave after hi(LEG2)-3.
	if d := m.Movements[1].Domain; d.Lo != WindowStart+3 {
		t.Fatalf("leg2 lo = %d, want %d", d.Lo, WindowStart+3)
	}
	if d := m.Movements[0].Domain; d.Hi != WindowEnd-3 {
		t.Fatalf("leg1 hi = %d, want %d", d.Hi, WindowEnd-3)
	}
}

func TestBuildInfeasibleChain(t *testing.T) {
	req := baseRequest()
	addTrain(&req, "T1", "medium")
	// Ten chained legs need 2h of spacing each; the window cannot hold them.
	from, to := "STA_A", "STA_B"
	for k := 0; k < 10; k++ {
		req.Movements = append(req.Movements, mov(
			idFor(k), "T1", from, to, 6+k, 7+k, 1, 0,
		))
		from, to = to, from
	}
	m, err := Build(req)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !m.Infeasible {
		t.Fatal("expected infeasible model")
	}
	if m.InfeasibleReason == "" || !strings.Contains(m.InfeasibleReason, "T1") {
		t.Fatalf("reason = %q", m.InfeasibleReason)
	}
}

func idFor(k int) string {
	return "CHAIN_" + string(rune('A'+k))
}

func TestBuildValidation(t *testing.T) {
	cases := []struct {
		name  string
		mut   func(*model.OptimizeRequest)
		field string
	}{
		{"unknown station", func(r *model.OptimizeRequest) {
			r.Movements[0].From = "STA_X"
		}, "movements[0].from"},
		{"unknown train", func(r *model.OptimizeRequest) {
			r.Movements[0].TrainID = "T9"
		}, "movements[0].trainId"},
		{"platform out of range", func(r *model.OptimizeRequest) {
			r.Movements[0].Platform = 3
		}, "movements[0].platform"},
		{"origin equals destination", func(r *model.OptimizeRequest) {
			r.Movements[0].To = "STA_A"
		}, "movements[0].to"},
		{"hour out of range", func(r *model.OptimizeRequest) {
			r.Movements[0].DepartureHour = 24
		}, "movements[0].departureHour"},
		{"negative delay", func(r *model.OptimizeRequest) {
			r.Movements[0].DelayMin = -1
		}, "movements[0].delayMin"},
		{"duplicate movement id", func(r *model.OptimizeRequest) {
			r.Movements = append(r.Movements, r.Movements[0])
		}, "movements[1].id"},
		{"duplicate station", func(r *model.OptimizeRequest) {
			r.Stations = append(r.Stations, r.Stations[0])
		}, "stations[2].id"},
		{"zero platforms", func(r *model.OptimizeRequest) {
			r.Stations[0].Platforms = 0
		}, "stations[0].platforms"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := baseRequest()
			addTrain(&req, "T1", "medium")
			req.Movements = []model.Movement{mov("M1", "T1", "STA_A", "STA_B", 10, 11, 1, 0)}
			tc.mut(&req)
			_, err := Build(req)
			if err == nil {
				t.Fatal("expected error")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error type = %T", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("field = %q, want %q", verr.Field, tc.field)
			}
		})
	}
}

func TestBuildEmptyMovements(t *testing.T) {
	req := baseRequest()
	m, err := Build(req)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if m.Len() != 0 || m.Infeasible {
		t.Fatalf("unexpected model: len=%d infeasible=%v", m.Len(), m.Infeasible)
	}
}
