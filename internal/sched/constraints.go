package sched

import "fmt"

// Constraint is one hard condition an assignment must satisfy. The solvers
// enforce these structurally during search; the explicit form exists so a
// finished assignment can be audited independently of how it was found.
type Constraint interface {
	Kind() string
	// Violated reports whether the constraint is broken under the given
	// assignment. Assignments must cover every movement of the model.
	Violated(m *Model, a []Slot) bool
	Describe(m *Model) string
}

// PlatformConflict forbids two departures on the same platform of the same
// station within Gap hours of each other.
type PlatformConflict struct {
	I, J int
	Gap  int
}

func (c PlatformConflict) Kind() string { return "platform_conflict" }

func (c PlatformConflict) Violated(m *Model, a []Slot) bool {
	if a[c.I].Platform != a[c.J].Platform {
		return false
	}
	return abs(a[c.I].Hour-a[c.J].Hour) < c.Gap
}

func (c PlatformConflict) Describe(m *Model) string {
	return fmt.Sprintf("movements %s and %s may not share a platform at %s within %dh",
		m.Movements[c.I].ID, m.Movements[c.J].ID, m.Movements[c.I].Station, c.Gap)
}

// Capacity caps simultaneous departures at one station hour to the platform
// count. Members lists every movement departing from the station.
type Capacity struct {
	Station string
	Hour    int
	Limit   int
	Members []int
}

func (c Capacity) Kind() string { return "capacity" }

func (c Capacity) Violated(m *Model, a []Slot) bool {
	n := 0
	for _, i := range c.Members {
		if a[i].Hour == c.Hour {
			n++
		}
	}
	return n > c.Limit
}

func (c Capacity) Describe(m *Model) string {
	return fmt.Sprintf("station %s hour %02d:00 holds at most %d departures", c.Station, c.Hour, c.Limit)
}

// Precedence sequences two legs of the same train: the later leg departs at
// least MinSep hours after the earlier one.
type Precedence struct {
	Before, After int
	MinSep        int
}

func (c Precedence) Kind() string { return "precedence" }

func (c Precedence) Violated(m *Model, a []Slot) bool {
	return a[c.After].Hour < a[c.Before].Hour+c.MinSep
}

func (c Precedence) Describe(m *Model) string {
	return fmt.Sprintf("movement %s departs at least %dh after %s",
		m.Movements[c.After].ID, c.MinSep, m.Movements[c.Before].ID)
}

// PriorityWindow pins a high priority movement to within Radius hours of its
// scheduled departure.
type PriorityWindow struct {
	I      int
	Center int
	Radius int
}

func (c PriorityWindow) Kind() string { return "priority_window" }

func (c PriorityWindow) Violated(m *Model, a []Slot) bool {
	return abs(a[c.I].Hour-c.Center) > c.Radius
}

func (c PriorityWindow) Describe(m *Model) string {
	return fmt.Sprintf("movement %s stays within %dh of %02d:00", m.Movements[c.I].ID, c.Radius, c.Center)
}

// Generate materializes the constraint set for a model: pairwise platform
// exclusions and hourly capacity caps per station, leg sequencing per train,
// and deviation windows for high priority movements.
func Generate(m *Model) []Constraint {
	var cons []Constraint

	byStation := make(map[string][]int)
	for i := range m.Movements {
		byStation[m.Movements[i].Station] = append(byStation[m.Movements[i].Station], i)
	}
	for station, members := range byStation {
		for x := 0; x < len(members); x++ {
			for y := x + 1; y < len(members); y++ {
				cons = append(cons, PlatformConflict{I: members[x], J: members[y], Gap: PlatformGapHours})
			}
		}
		limit := m.Stations[station]
		for h := WindowStart; h <= WindowEnd; h++ {
			cons = append(cons, Capacity{Station: station, Hour: h, Limit: limit, Members: members})
		}
	}

	for _, idxs := range m.ByTrain {
		for k := 1; k < len(idxs); k++ {
			before := idxs[k-1]
			cons = append(cons, Precedence{
				Before: before,
				After:  idxs[k],
				MinSep: m.Movements[before].Journey + TurnaroundHours,
			})
		}
	}

	for i := range m.Movements {
		if m.Movements[i].Priority == "high" {
			cons = append(cons, PriorityWindow{I: i, Center: m.Movements[i].Scheduled, Radius: PriorityWindowRadius})
		}
	}
	return cons
}

// CountByKind is used for logging and the status endpoint.
func CountByKind(cons []Constraint) map[string]int {
	out := make(map[string]int)
	for _, c := range cons {
		out[c.Kind()]++
	}
	return out
}
