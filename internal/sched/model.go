package sched

import "railopt/internal/model"

// Operational day window for departures, in whole hours.
const (
	WindowStart = 6
	WindowEnd   = 23

	// PriorityWindowRadius bounds how far a high priority movement may
	// move from its scheduled hour.
	PriorityWindowRadius = 2

	// PlatformGapHours is the minimum separation between two departures
	// sharing a platform at the same station.
	PlatformGapHours = 1

	// TurnaroundHours is the spacing required between consecutive legs of
	// the same train on top of the journey time.
	TurnaroundHours = 1
)

// Domain is an inclusive hour range a movement may depart in.
type Domain struct {
	Lo, Hi int
}

func (d Domain) Empty() bool         { return d.Lo > d.Hi }
func (d Domain) Width() int          { return d.Hi - d.Lo + 1 }
func (d Domain) Contains(h int) bool { return h >= d.Lo && h <= d.Hi }

// Slot is one decided departure: the hour and the platform it occupies.
type Slot struct {
	Hour     int
	Platform int
}

// MovementVar is one decision variable of the model, denormalized from the
// request so the solvers never touch the wire types.
type MovementVar struct {
	Index     int
	ID        string
	TrainID   string
	TrainName string
	Priority  string
	Station   string // origin station id
	Dest      string
	Scheduled int // scheduled departure hour
	Arrival   int // scheduled arrival hour
	Platform  int // scheduled platform at the origin
	Platforms int // platform count at the origin
	Baseline  float64
	Journey   int // max(1, arrival-scheduled)
	Domain    Domain
}

// Model is the validated, propagated decision model for one request.
type Model struct {
	Movements []MovementVar
	Stations  map[string]int   // station id -> platform count
	ByTrain   map[string][]int // train id -> movement indexes, scheduled order

	// Set when domain propagation proves the request unsatisfiable before
	// any search starts.
	Infeasible       bool
	InfeasibleReason string
}

func (m *Model) Len() int { return len(m.Movements) }

// prioWeight maps a train priority to its objective multiplier. Unknown or
// empty priorities count as medium, matching the request validation default.
func prioWeight(priority string) float64 {
	switch priority {
	case "high":
		return 3
	case "low":
		return 1
	default:
		return 2
	}
}

// throughputValue is the per-departure value of an hour slot. Peak windows
// add to the base so the objective prefers movements kept inside them.
func throughputValue(hour int) float64 {
	v := 10.0
	if hour >= 7 && hour <= 9 {
		v += 20
	}
	if hour >= 17 && hour <= 19 {
		v += 20
	}
	return v
}

// delayMinutes converts an assigned hour into delay minutes against the
// scheduled hour. Departing earlier than scheduled is not counted as delay.
func delayMinutes(scheduled, hour int) float64 {
	if hour <= scheduled {
		return 0
	}
	return float64(hour-scheduled) * 60
}

// journeyHours is the travel time of a leg, never below one hour.
func journeyHours(dep, arr int) int {
	if arr-dep < 1 {
		return 1
	}
	return arr - dep
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// DefaultWeights is the objective weighting used when neither the request
// nor the tenant config overrides it.
func DefaultWeights() model.Weights {
	return model.Weights{Delay: 0.4, Throughput: 0.3, Priority: 0.2, Conflict: 0.1}
}
