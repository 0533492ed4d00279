package sched

import "railopt/internal/model"

// Objective scores assignments, to be maximized. The score decomposes per
// movement: a departure at hour h contributes
//
//	-w.Delay*prio*delay(h) + w.Throughput*value(h) - w.Priority*prio*delay(h)
//
// where delay(h) is in minutes against the scheduled hour and prio is the
// train's priority multiplier. Platform choice never changes the score.
// Conflicts are hard constraints here, so w.Conflict contributes no term;
// it is kept in the weight set for wire compatibility.
type Objective struct {
	Weights model.Weights

	tables [][]float64 // [movement][hour-WindowStart]
	uppers []float64   // per-movement maximum over its domain
	upper  float64
}

// Compose precomputes the per-movement value tables for a model under the
// given weights. Hours outside a movement's domain keep a table entry so
// Evaluate stays total, but never enter the bound.
func Compose(m *Model, w model.Weights) *Objective {
	o := &Objective{
		Weights: w,
		tables:  make([][]float64, len(m.Movements)),
		uppers:  make([]float64, len(m.Movements)),
	}
	for i := range m.Movements {
		v := &m.Movements[i]
		prio := prioWeight(v.Priority)
		row := make([]float64, WindowEnd-WindowStart+1)
		best := 0.0
		for h := WindowStart; h <= WindowEnd; h++ {
			d := delayMinutes(v.Scheduled, h)
			row[h-WindowStart] = -w.Delay*prio*d + w.Throughput*throughputValue(h) - w.Priority*prio*d
		}
		o.tables[i] = row
		if !v.Domain.Empty() {
			best = row[v.Domain.Lo-WindowStart]
			for h := v.Domain.Lo + 1; h <= v.Domain.Hi; h++ {
				if row[h-WindowStart] > best {
					best = row[h-WindowStart]
				}
			}
		}
		o.uppers[i] = best
		o.upper += best
	}
	return o
}

// MovementValue is the contribution of assigning movement i to hour h.
func (o *Objective) MovementValue(i, h int) float64 {
	return o.tables[i][h-WindowStart]
}

// MovementUpper is the best contribution movement i can reach in its domain.
func (o *Objective) MovementUpper(i int) float64 {
	return o.uppers[i]
}

// Evaluate scores a full assignment. An empty assignment scores zero.
func (o *Objective) Evaluate(a []Slot) float64 {
	total := 0.0
	for i := range a {
		total += o.tables[i][a[i].Hour-WindowStart]
	}
	return total
}

// UpperBound is an admissible bound: the sum of every movement's best
// reachable contribution, ignoring cross-movement constraints.
func (o *Objective) UpperBound() float64 {
	return o.upper
}

// Gap is the relative distance between an incumbent objective and a bound,
// guarded against division by zero.
func Gap(objective, bound float64) float64 {
	diff := bound - objective
	if diff < 0 {
		diff = -diff
	}
	den := objective
	if den < 0 {
		den = -den
	}
	if den < 1e-9 {
		den = 1e-9
	}
	return diff / den
}
