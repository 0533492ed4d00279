package sched

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// Status classifies a solver outcome.
type Status string

const (
	// StatusOptimal means the search proved no better assignment exists.
	StatusOptimal Status = "optimal"
	// StatusFeasible means an assignment was found but optimality was not
	// proven inside the budget.
	StatusFeasible Status = "feasible"
	// StatusInfeasible means no assignment satisfies the constraints, or
	// none was found before the budget ran out.
	StatusInfeasible Status = "infeasible"
	// StatusError means the backend itself failed.
	StatusError Status = "error"
)

// Time budget and parallelism clamps. Callers may ask for less, never more.
const (
	DefaultTimeBudget = 12 * time.Second
	MinTimeBudget     = 1 * time.Second
	MaxTimeBudget     = 15 * time.Second
	MaxSolverWorkers  = 4
)

// Options tunes one solve call. Zero values select the defaults.
type Options struct {
	TimeBudget time.Duration
	Workers    int
	Seed       int64
}

// SearchStats counts solver work for run metrics and logs.
type SearchStats struct {
	Nodes         int64
	Iterations    int64
	Improvements  int64
	AcceptedWorse int64
	Restarts      int64
	Workers       int
	Wall          time.Duration
}

// Outcome is the result of one solve call. Assignment lines up with the
// model's movements and is nil when Status is infeasible or error.
type Outcome struct {
	Status     Status
	Assignment []Slot
	Objective  float64
	Bound      float64
	Gap        float64
	Stats      SearchStats
}

// Backend is a search strategy over the shared model and objective.
type Backend interface {
	Name() string
	Solve(ctx context.Context, m *Model, obj *Objective, opts Options) (Outcome, error)
}

// Backends lists the selectable backend names, default first.
func Backends() []string { return []string{"bnb", "anneal"} }

// NewBackend resolves a backend by name; empty selects the default.
func NewBackend(name string) (Backend, error) {
	switch name {
	case "", "bnb":
		return &BranchBound{}, nil
	case "anneal":
		return &Annealer{}, nil
	default:
		return nil, fmt.Errorf("unknown algorithm %q", name)
	}
}

func clampOptions(o Options) Options {
	if o.TimeBudget == 0 {
		o.TimeBudget = DefaultTimeBudget
	}
	if o.TimeBudget < MinTimeBudget {
		o.TimeBudget = MinTimeBudget
	}
	if o.TimeBudget > MaxTimeBudget {
		o.TimeBudget = MaxTimeBudget
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Workers > MaxSolverWorkers {
		o.Workers = MaxSolverWorkers
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	return o
}

// Solve runs the named backend under a clamped time budget. The caller's
// context still applies: an earlier deadline or cancellation cuts the solve
// short. A panicking backend is recovered into a StatusError outcome so one
// bad request can never take the process down, and every returned incumbent
// is re-audited against the full constraint set before it is handed back.
func Solve(ctx context.Context, m *Model, obj *Objective, backend string, opts Options) (out Outcome, err error) {
	b, berr := NewBackend(backend)
	if berr != nil {
		return Outcome{Status: StatusError}, berr
	}
	opts = clampOptions(opts)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Status: StatusError, Stats: SearchStats{Workers: opts.Workers}}
			err = fmt.Errorf("solver panic: %v", r)
		}
		out.Stats.Wall = time.Since(start)
	}()

	ctx, cancel := context.WithTimeout(ctx, opts.TimeBudget)
	defer cancel()
	out, err = b.Solve(ctx, m, obj, opts)
	if err == nil && (out.Status == StatusOptimal || out.Status == StatusFeasible) {
		if vs := Check(m, Generate(m), out.Assignment); len(vs) > 0 {
			out = Outcome{Status: StatusError, Stats: out.Stats}
			err = fmt.Errorf("backend %s returned an invalid assignment: %s", b.Name(), vs[0].Detail)
		}
	}
	return out, err
}

// board is the incremental assignment state used by both backends: which
// hours are taken per station platform, departure counts per station hour,
// and the leg neighbors of every movement.
type board struct {
	m      *Model
	hours  []int
	slots  []Slot
	taken  map[string]map[int][]int
	counts map[string]map[int]int
	prev   []int
	next   []int
}

func newBoard(m *Model) *board {
	b := &board{
		m:      m,
		hours:  make([]int, m.Len()),
		slots:  make([]Slot, m.Len()),
		taken:  make(map[string]map[int][]int, len(m.Stations)),
		counts: make(map[string]map[int]int, len(m.Stations)),
		prev:   make([]int, m.Len()),
		next:   make([]int, m.Len()),
	}
	for i := range b.hours {
		b.hours[i] = -1
		b.prev[i] = -1
		b.next[i] = -1
	}
	for st := range m.Stations {
		b.taken[st] = make(map[int][]int)
		b.counts[st] = make(map[int]int)
	}
	for _, idxs := range m.ByTrain {
		for k := 1; k < len(idxs); k++ {
			b.prev[idxs[k]] = idxs[k-1]
			b.next[idxs[k-1]] = idxs[k]
		}
	}
	return b
}

// place assigns movement i to hour h when every hard condition holds and
// derives its platform, scheduled platform first, lowest free index
// otherwise. Mutates nothing on failure. Sequencing is only checked against
// neighbors that are already placed; placing a full vector in any order
// still checks every pair once.
func (b *board) place(i, h int) bool {
	v := &b.m.Movements[i]
	if !v.Domain.Contains(h) {
		return false
	}
	if p := b.prev[i]; p >= 0 && b.hours[p] >= 0 {
		if h < b.hours[p]+b.m.Movements[p].Journey+TurnaroundHours {
			return false
		}
	}
	if nx := b.next[i]; nx >= 0 && b.hours[nx] >= 0 {
		if b.hours[nx] < h+v.Journey+TurnaroundHours {
			return false
		}
	}
	if b.counts[v.Station][h]+1 > v.Platforms {
		return false
	}
	plat := freePlatform(b.taken[v.Station], v.Platform, v.Platforms, h)
	if plat == 0 {
		return false
	}
	b.hours[i] = h
	b.slots[i] = Slot{Hour: h, Platform: plat}
	b.counts[v.Station][h]++
	b.taken[v.Station][plat] = append(b.taken[v.Station][plat], h)
	return true
}

// unplace undoes the most recent place of movement i. Places and unplaces
// must nest like a stack, which depth-first search guarantees.
func (b *board) unplace(i int) {
	v := &b.m.Movements[i]
	sl := b.slots[i]
	onPlat := b.taken[v.Station][sl.Platform]
	b.taken[v.Station][sl.Platform] = onPlat[:len(onPlat)-1]
	b.counts[v.Station][sl.Hour]--
	b.hours[i] = -1
}

// assignSlots derives platform assignments for a full hour vector, checking
// every hard condition on the way. Returns ok=false when the vector is
// infeasible.
func assignSlots(m *Model, hours []int) ([]Slot, bool) {
	if len(hours) != len(m.Movements) {
		return nil, false
	}
	b := newBoard(m)
	for i, h := range hours {
		if !b.place(i, h) {
			return nil, false
		}
	}
	out := make([]Slot, len(b.slots))
	copy(out, b.slots)
	return out, true
}

// freePlatform picks a platform for hour h at one station: the preferred
// one when it is clear of other departures within the gap, otherwise the
// lowest clear index. Returns 0 when every platform is blocked.
func freePlatform(taken map[int][]int, preferred, platforms, h int) int {
	isFree := func(p int) bool {
		for _, used := range taken[p] {
			if abs(used-h) < PlatformGapHours {
				return false
			}
		}
		return true
	}
	if preferred >= 1 && preferred <= platforms && isFree(preferred) {
		return preferred
	}
	for p := 1; p <= platforms; p++ {
		if p != preferred && isFree(p) {
			return p
		}
	}
	return 0
}
