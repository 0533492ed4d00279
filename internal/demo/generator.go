package demo

import (
	"fmt"
	"math/rand"

	"railopt/internal/model"
)

// Canned network and fleet for demos and smoke tests. Traffic rotates over
// the three core stations; East Station stays quiet.
var stations = []model.Station{
	{ID: "STN_1", Name: "Central Junction", Platforms: 4},
	{ID: "STN_2", Name: "North Terminal", Platforms: 3},
	{ID: "STN_3", Name: "South Gate", Platforms: 2},
	{ID: "STN_4", Name: "East Station", Platforms: 3},
}

var fleet = []struct {
	name     string
	typ      string
	priority string
}{
	{"Express 001", "express", "high"},
	{"Local 102", "local", "medium"},
	{"Freight 203", "freight", "low"},
	{"Express 104", "express", "high"},
	{"Local 205", "local", "medium"},
	{"Express 306", "express", "high"},
}

// Dataset builds the demo request: two legs per train starting from hour
// 8+i, with seeded random platforms, speeds, and accumulated delays. The
// same seed always produces the same request.
func Dataset(seed int64) model.OptimizeRequest {
	rng := rand.New(rand.NewSource(seed))
	req := model.OptimizeRequest{
		Stations: append([]model.Station(nil), stations...),
		Seed:     seed,
	}
	n := 0
	for i, f := range fleet {
		train := model.Train{
			ID:       fmt.Sprintf("TRN_%03d", i+1),
			Name:     f.name,
			Type:     f.typ,
			Priority: f.priority,
			SpeedKmh: float64(60 + rng.Intn(41)),
		}
		req.Trains = append(req.Trains, train)

		from := i % 3
		dep := 8 + i
		for leg := 0; leg < 2; leg++ {
			to := (from + 1) % 3
			n++
			req.Movements = append(req.Movements, model.Movement{
				ID:            fmt.Sprintf("MOV_%03d", n),
				TrainID:       train.ID,
				From:          stations[from].ID,
				To:            stations[to].ID,
				DepartureHour: dep,
				ArrivalHour:   dep + 1,
				Platform:      1 + rng.Intn(stations[from].Platforms),
				DelayMin:      float64(rng.Intn(31)),
			})
			from = to
			dep += 3
		}
	}
	return req
}
