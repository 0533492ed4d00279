package sched

// Violation is one broken hard condition found while auditing an assignment.
type Violation struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Check audits a full assignment against the constraint set and the hour
// domains. Backends enforce all of this structurally; Check is the
// independent audit Solve applies to every incumbent, and tests lean on it
// directly.
func Check(m *Model, cons []Constraint, a []Slot) []Violation {
	var out []Violation
	if len(a) != len(m.Movements) {
		return []Violation{{Kind: "assignment", Detail: "assignment does not cover every movement"}}
	}
	for i := range m.Movements {
		v := &m.Movements[i]
		if !v.Domain.Contains(a[i].Hour) {
			out = append(out, Violation{Kind: "domain", Detail: v.ID + " departs outside its feasible hours"})
		}
		if a[i].Platform < 1 || a[i].Platform > v.Platforms {
			out = append(out, Violation{Kind: "platform_range", Detail: v.ID + " is assigned a platform the station does not have"})
		}
	}
	for _, c := range cons {
		if c.Violated(m, a) {
			out = append(out, Violation{Kind: c.Kind(), Detail: c.Describe(m)})
		}
	}
	return out
}
