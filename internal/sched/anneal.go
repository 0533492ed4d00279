package sched

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
)

// Annealing schedule and operator adaptation parameters.
const (
	annealInitTemp   = 100.0
	annealCooling    = 0.995
	annealStuckLimit = 500
	annealMaxIters   = 120000 // per chain, keeps seeded runs reproducible
)

// Move operators. Weights adapt during the run: big reward for a new best,
// small reward for an accepted move, slow decay otherwise.
const (
	opRandomShift = iota
	opNudgeScheduled
	opTrainShift
	opBestHour
	opCount
)

// Annealer is the stochastic backend: parallel simulated annealing chains
// over hour vectors with adaptively weighted move operators. It only claims
// optimality when the incumbent meets the bound exactly.
type Annealer struct{}

func (*Annealer) Name() string { return "anneal" }

type chainResult struct {
	found bool
	value float64
	slots []Slot
	stats SearchStats
}

func (a *Annealer) Solve(ctx context.Context, m *Model, obj *Objective, opts Options) (Outcome, error) {
	if m.Infeasible {
		return Outcome{Status: StatusInfeasible, Bound: obj.UpperBound()}, nil
	}
	if m.Len() == 0 {
		return Outcome{Status: StatusOptimal, Assignment: []Slot{}}, nil
	}

	chains := opts.Workers
	if chains < 1 {
		chains = 1
	}
	results := make([]chainResult, chains)
	var wg sync.WaitGroup
	for c := 0; c < chains; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			results[c] = runChain(ctx, m, obj, opts.Seed+int64(c)*7919)
		}(c)
	}
	wg.Wait()

	out := Outcome{Bound: obj.UpperBound(), Stats: SearchStats{Workers: chains}}
	best := -1
	for c := range results {
		out.Stats.Iterations += results[c].stats.Iterations
		out.Stats.Improvements += results[c].stats.Improvements
		out.Stats.AcceptedWorse += results[c].stats.AcceptedWorse
		out.Stats.Restarts += results[c].stats.Restarts
		if results[c].found && (best < 0 || results[c].value > results[best].value+eps) {
			best = c
		}
	}
	if best < 0 {
		out.Status = StatusInfeasible
		return out, nil
	}
	out.Assignment = results[best].slots
	out.Objective = results[best].value
	out.Gap = Gap(out.Objective, out.Bound)
	if out.Objective >= out.Bound-eps {
		out.Status = StatusOptimal
		out.Gap = 0
	} else {
		out.Status = StatusFeasible
	}
	return out, nil
}

// runChain is one independent annealing chain with its own rng.
func runChain(ctx context.Context, m *Model, obj *Objective, seed int64) chainResult {
	rng := rand.New(rand.NewSource(seed))
	var res chainResult

	order := searchOrder(m)
	cands := make([][]int, len(order))
	for t, i := range order {
		cands[t] = candidateHours(m, obj, i)
	}
	cur, ok := seedVector(ctx, m, order, cands)
	for !ok && ctx.Err() == nil {
		res.stats.Restarts++
		cur, ok = seedVector(ctx, m, order, shuffleCands(cands, rng))
	}
	if !ok {
		return res
	}

	curVal := vectorValue(obj, cur)
	bestHours := append([]int(nil), cur...)
	bestVal := curVal
	res.found = true

	weights := make([]float64, opCount)
	for i := range weights {
		weights[i] = 1
	}
	temp := annealInitTemp
	stuck := 0
	cand := make([]int, len(cur))

	for iter := int64(0); iter < annealMaxIters && ctx.Err() == nil; iter++ {
		res.stats.Iterations++
		op := selectOp(weights, rng)
		copy(cand, cur)
		if !applyMove(m, obj, rng, op, cand) {
			weights[op] = math.Max(0.01, weights[op]*0.999)
			continue
		}
		if _, feasible := assignSlots(m, cand); !feasible {
			weights[op] = math.Max(0.01, weights[op]*0.999)
			continue
		}
		candVal := vectorValue(obj, cand)
		delta := candVal - curVal
		switch {
		case delta > eps:
			copy(cur, cand)
			curVal = candVal
			if candVal > bestVal+eps {
				bestVal = candVal
				copy(bestHours, cand)
				res.stats.Improvements++
				weights[op] += 0.1
				stuck = 0
			} else {
				weights[op] += 0.01
			}
		case rng.Float64() < math.Exp(delta/(temp+1e-9)):
			copy(cur, cand)
			curVal = candVal
			res.stats.AcceptedWorse++
			weights[op] += 0.01
			stuck++
		default:
			weights[op] = math.Max(0.01, weights[op]*0.999)
			stuck++
		}
		temp *= annealCooling
		if stuck >= annealStuckLimit {
			res.stats.Restarts++
			copy(cur, bestHours)
			curVal = bestVal
			temp = annealInitTemp
			stuck = 0
		}
	}

	res.value = bestVal
	res.slots, ok = assignSlots(m, bestHours)
	if !ok {
		// Chains only keep vectors that passed the full check, so this
		// cannot happen; stay safe anyway.
		res.found = false
	}
	return res
}

// seedVector builds one feasible hour vector by depth-first descent over
// the candidate orders, backtracking on dead ends.
func seedVector(ctx context.Context, m *Model, order []int, cands [][]int) ([]int, bool) {
	b := newBoard(m)
	var dfs func(pos int) bool
	dfs = func(pos int) bool {
		if ctx.Err() != nil {
			return false
		}
		if pos == len(order) {
			return true
		}
		i := order[pos]
		for _, h := range cands[pos] {
			if !b.place(i, h) {
				continue
			}
			if dfs(pos + 1) {
				return true
			}
			b.unplace(i)
		}
		return false
	}
	if !dfs(0) {
		return nil, false
	}
	out := make([]int, len(b.hours))
	copy(out, b.hours)
	return out, true
}

func shuffleCands(cands [][]int, rng *rand.Rand) [][]int {
	out := make([][]int, len(cands))
	for t := range cands {
		row := append([]int(nil), cands[t]...)
		rng.Shuffle(len(row), func(a, b int) { row[a], row[b] = row[b], row[a] })
		out[t] = row
	}
	return out
}

func vectorValue(obj *Objective, hours []int) float64 {
	total := 0.0
	for i, h := range hours {
		total += obj.MovementValue(i, h)
	}
	return total
}

// selectOp picks an operator by roulette over the current weights.
func selectOp(weights []float64, rng *rand.Rand) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	r := rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return i
		}
	}
	return len(weights) - 1
}

// applyMove mutates the candidate hour vector in place. Returns false when
// the operator has nothing to do on this vector; the caller treats that as
// a rejected move.
func applyMove(m *Model, obj *Objective, rng *rand.Rand, op int, cand []int) bool {
	switch op {
	case opRandomShift:
		i := rng.Intn(len(cand))
		d := m.Movements[i].Domain
		h := d.Lo + rng.Intn(d.Width())
		if h == cand[i] {
			return false
		}
		cand[i] = h
		return true

	case opNudgeScheduled:
		// Move one late movement an hour back toward its schedule.
		var late []int
		for i := range cand {
			if cand[i] > m.Movements[i].Scheduled && m.Movements[i].Domain.Contains(cand[i]-1) {
				late = append(late, i)
			}
		}
		if len(late) == 0 {
			return false
		}
		i := late[rng.Intn(len(late))]
		cand[i]--
		return true

	case opTrainShift:
		// Shift every leg of one train by the same offset, which keeps
		// the legs' relative sequencing intact.
		trains := make([]string, 0, len(m.ByTrain))
		for id := range m.ByTrain {
			trains = append(trains, id)
		}
		if len(trains) == 0 {
			return false
		}
		sort.Strings(trains)
		idxs := m.ByTrain[trains[rng.Intn(len(trains))]]
		offsets := []int{-2, -1, 1, 2}
		off := offsets[rng.Intn(len(offsets))]
		for _, i := range idxs {
			if !m.Movements[i].Domain.Contains(cand[i] + off) {
				return false
			}
		}
		for _, i := range idxs {
			cand[i] += off
		}
		return true

	case opBestHour:
		// Jump one movement straight to its best-valued hour.
		i := rng.Intn(len(cand))
		d := m.Movements[i].Domain
		best := d.Lo
		for h := d.Lo + 1; h <= d.Hi; h++ {
			if obj.MovementValue(i, h) > obj.MovementValue(i, best)+eps {
				best = h
			}
		}
		if best == cand[i] {
			return false
		}
		cand[i] = best
		return true
	}
	return false
}
