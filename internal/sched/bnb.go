package sched

import (
	"context"
	"math"
	"sort"
	"sync"
)

const eps = 1e-9

// BranchBound is the exact backend: depth-first search over hour
// assignments with an admissible bound for pruning, platforms derived per
// node. The root movement's candidate hours are split across workers
// sharing one incumbent; full exhaustion proves optimality or
// infeasibility.
type BranchBound struct{}

func (*BranchBound) Name() string { return "bnb" }

// incumbent is the best full assignment found so far, shared by all
// workers. Ties on value resolve toward the lower root rank so the
// reported assignment does not depend on goroutine timing.
type incumbent struct {
	mu    sync.Mutex
	found bool
	value float64
	rank  int
	slots []Slot
}

func (in *incumbent) offer(value float64, rank int, slots []Slot) {
	in.mu.Lock()
	defer in.mu.Unlock()
	better := !in.found || value > in.value+eps ||
		(math.Abs(value-in.value) <= eps && rank < in.rank)
	if !better {
		return
	}
	in.found = true
	in.value = value
	in.rank = rank
	in.slots = append(in.slots[:0], slots...)
}

func (in *incumbent) snapshot() (float64, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.value, in.found
}

func (in *incumbent) take() ([]Slot, float64, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.found {
		return nil, 0, false
	}
	out := make([]Slot, len(in.slots))
	copy(out, in.slots)
	return out, in.value, true
}

func (b *BranchBound) Solve(ctx context.Context, m *Model, obj *Objective, opts Options) (Outcome, error) {
	if m.Infeasible {
		return Outcome{Status: StatusInfeasible, Bound: obj.UpperBound()}, nil
	}
	n := m.Len()
	if n == 0 {
		return Outcome{Status: StatusOptimal, Assignment: []Slot{}}, nil
	}

	order := searchOrder(m)
	cands := make([][]int, n)
	for t, i := range order {
		cands[t] = candidateHours(m, obj, i)
	}
	suffix := make([]float64, n+1)
	for t := n - 1; t >= 0; t-- {
		suffix[t] = suffix[t+1] + obj.MovementUpper(order[t])
	}

	workers := opts.Workers
	if workers > len(cands[0]) {
		workers = len(cands[0])
	}
	if workers < 1 {
		workers = 1
	}

	inc := &incumbent{}
	searchers := make([]*searcher, workers)
	completed := make([]bool, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		var positions []int
		for rp := w; rp < len(cands[0]); rp += workers {
			positions = append(positions, rp)
		}
		searchers[w] = newSearcher(ctx, m, obj, order, cands, suffix, inc)
		wg.Add(1)
		go func(w int, s *searcher, positions []int) {
			defer wg.Done()
			completed[w] = s.exploreRoot(positions)
		}(w, searchers[w], positions)
	}
	wg.Wait()

	stats := SearchStats{Workers: workers}
	proven := true
	for w := range searchers {
		stats.Nodes += searchers[w].nodes
		if !completed[w] {
			proven = false
		}
	}

	out := Outcome{Stats: stats, Bound: obj.UpperBound()}
	slots, value, found := inc.take()
	switch {
	case found && proven:
		out.Status = StatusOptimal
		out.Assignment = slots
		out.Objective = value
		out.Bound = value
	case found:
		out.Status = StatusFeasible
		out.Assignment = slots
		out.Objective = value
		out.Gap = Gap(value, out.Bound)
	default:
		// Exhausted with no assignment proves infeasibility; running out
		// of budget without one is reported the same way.
		out.Status = StatusInfeasible
	}
	return out, nil
}

// searchOrder walks the tightest domains first so dead ends surface early.
func searchOrder(m *Model) []int {
	order := make([]int, m.Len())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		da, db := m.Movements[order[a]].Domain.Width(), m.Movements[order[b]].Domain.Width()
		if da != db {
			return da < db
		}
		return m.Movements[order[a]].Scheduled < m.Movements[order[b]].Scheduled
	})
	return order
}

// candidateHours orders a movement's domain by objective contribution, best
// first. Ties prefer the hour closest to the scheduled one, then the
// earlier hour, so a movement that is already optimal stays where it is.
func candidateHours(m *Model, obj *Objective, i int) []int {
	v := &m.Movements[i]
	hs := make([]int, 0, v.Domain.Width())
	for h := v.Domain.Lo; h <= v.Domain.Hi; h++ {
		hs = append(hs, h)
	}
	sort.SliceStable(hs, func(a, b int) bool {
		va, vb := obj.MovementValue(i, hs[a]), obj.MovementValue(i, hs[b])
		if math.Abs(va-vb) > eps {
			return va > vb
		}
		da, db := abs(hs[a]-v.Scheduled), abs(hs[b]-v.Scheduled)
		if da != db {
			return da < db
		}
		return hs[a] < hs[b]
	})
	return hs
}

// searcher is the per-worker depth-first state. All mutation is local; only
// the incumbent is shared.
type searcher struct {
	ctx    context.Context
	b      *board
	obj    *Objective
	order  []int
	cands  [][]int
	suffix []float64
	inc    *incumbent

	value   float64
	rank    int
	nodes   int64
	stopped bool
}

func newSearcher(ctx context.Context, m *Model, obj *Objective, order []int, cands [][]int, suffix []float64, inc *incumbent) *searcher {
	return &searcher{
		ctx:    ctx,
		b:      newBoard(m),
		obj:    obj,
		order:  order,
		cands:  cands,
		suffix: suffix,
		inc:    inc,
	}
}

func (s *searcher) explore(pos int) {
	if s.ctx.Err() != nil {
		s.stopped = true
		return
	}
	if pos == len(s.order) {
		s.inc.offer(s.value, s.rank, s.b.slots)
		return
	}
	i := s.order[pos]
	for _, h := range s.cands[pos] {
		// Candidates are sorted by value, so the first one that cannot
		// beat the incumbent ends the whole level. Ties are explored to
		// keep the reported assignment rank-deterministic.
		val := s.obj.MovementValue(i, h)
		if best, found := s.inc.snapshot(); found && s.value+val+s.suffix[pos+1] < best-eps {
			break
		}
		s.nodes++
		if !s.b.place(i, h) {
			continue
		}
		s.value += val
		s.explore(pos + 1)
		s.value -= val
		s.b.unplace(i)
		if s.stopped {
			return
		}
	}
}

// exploreRoot walks this worker's share of the root candidates. It reports
// whether the share was exhausted rather than cut off by the context.
func (s *searcher) exploreRoot(positions []int) bool {
	root := s.order[0]
	for _, rp := range positions {
		if s.ctx.Err() != nil {
			s.stopped = true
			break
		}
		h := s.cands[0][rp]
		val := s.obj.MovementValue(root, h)
		if best, found := s.inc.snapshot(); found && val+s.suffix[1] < best-eps {
			continue
		}
		s.rank = rp
		s.nodes++
		if !s.b.place(root, h) {
			continue
		}
		s.value += val
		s.explore(1)
		s.value -= val
		s.b.unplace(root)
		if s.stopped {
			break
		}
	}
	return !s.stopped
}
