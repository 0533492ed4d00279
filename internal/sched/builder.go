package sched

import (
	"fmt"
	"sort"

	"railopt/internal/model"
)

// ValidationError reports a semantically invalid request field. The API maps
// it to a 400 problem response.
type ValidationError struct {
	Field   string
	Subject string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Reason, e.Subject)
}

func invalid(field, subject, format string, args ...any) error {
	return &ValidationError{Field: field, Subject: subject, Reason: fmt.Sprintf(format, args...)}
}

// Build validates a request and turns it into a decision model: one variable
// per movement with an hour domain already narrowed by priority windows and
// train sequencing. A request that propagation proves unsatisfiable still
// builds; the model comes back flagged infeasible.
func Build(req model.OptimizeRequest) (*Model, error) {
	stations := make(map[string]int, len(req.Stations))
	names := make(map[string]bool, len(req.Stations))
	for i, st := range req.Stations {
		field := fmt.Sprintf("stations[%d]", i)
		if st.ID == "" {
			return nil, invalid(field+".id", "", "required")
		}
		if names[st.ID] {
			return nil, invalid(field+".id", st.ID, "duplicate station id")
		}
		if st.Platforms < 1 {
			return nil, invalid(field+".platforms", st.ID, "must be at least 1")
		}
		names[st.ID] = true
		stations[st.ID] = st.Platforms
	}

	trains := make(map[string]model.Train, len(req.Trains))
	for i, tr := range req.Trains {
		field := fmt.Sprintf("trains[%d]", i)
		if tr.ID == "" {
			return nil, invalid(field+".id", "", "required")
		}
		if _, dup := trains[tr.ID]; dup {
			return nil, invalid(field+".id", tr.ID, "duplicate train id")
		}
		trains[tr.ID] = tr
	}

	m := &Model{
		Movements: make([]MovementVar, 0, len(req.Movements)),
		Stations:  stations,
		ByTrain:   make(map[string][]int),
	}
	seen := make(map[string]bool, len(req.Movements))
	for i, mv := range req.Movements {
		field := fmt.Sprintf("movements[%d]", i)
		if mv.ID == "" {
			return nil, invalid(field+".id", "", "required")
		}
		if seen[mv.ID] {
			return nil, invalid(field+".id", mv.ID, "duplicate movement id")
		}
		seen[mv.ID] = true
		tr, ok := trains[mv.TrainID]
		if !ok {
			return nil, invalid(field+".trainId", mv.ID, "unknown train %s", mv.TrainID)
		}
		platforms, ok := stations[mv.From]
		if !ok {
			return nil, invalid(field+".from", mv.ID, "unknown station %s", mv.From)
		}
		if _, ok := stations[mv.To]; !ok {
			return nil, invalid(field+".to", mv.ID, "unknown station %s", mv.To)
		}
		if mv.From == mv.To {
			return nil, invalid(field+".to", mv.ID, "destination equals origin")
		}
		if mv.DepartureHour < 0 || mv.DepartureHour > 23 {
			return nil, invalid(field+".departureHour", mv.ID, "hour %d out of range", mv.DepartureHour)
		}
		if mv.ArrivalHour < 0 || mv.ArrivalHour > 23 {
			return nil, invalid(field+".arrivalHour", mv.ID, "hour %d out of range", mv.ArrivalHour)
		}
		if mv.Platform < 1 || mv.Platform > platforms {
			return nil, invalid(field+".platform", mv.ID, "platform %d out of range for %s (1..%d)", mv.Platform, mv.From, platforms)
		}
		if mv.DelayMin < 0 {
			return nil, invalid(field+".delayMin", mv.ID, "must not be negative")
		}

		v := MovementVar{
			Index:     len(m.Movements),
			ID:        mv.ID,
			TrainID:   mv.TrainID,
			TrainName: tr.Name,
			Priority:  tr.Priority,
			Station:   mv.From,
			Dest:      mv.To,
			Scheduled: mv.DepartureHour,
			Arrival:   mv.ArrivalHour,
			Platform:  mv.Platform,
			Platforms: platforms,
			Baseline:  mv.DelayMin,
			Journey:   journeyHours(mv.DepartureHour, mv.ArrivalHour),
			Domain:    Domain{Lo: WindowStart, Hi: WindowEnd},
		}
		if tr.Priority == "high" {
			if lo := mv.DepartureHour - PriorityWindowRadius; lo > v.Domain.Lo {
				v.Domain.Lo = lo
			}
			if hi := mv.DepartureHour + PriorityWindowRadius; hi < v.Domain.Hi {
				v.Domain.Hi = hi
			}
		}
		m.Movements = append(m.Movements, v)
		m.ByTrain[mv.TrainID] = append(m.ByTrain[mv.TrainID], v.Index)
	}

	for _, idxs := range m.ByTrain {
		sort.SliceStable(idxs, func(a, b int) bool {
			return m.Movements[idxs[a]].Scheduled < m.Movements[idxs[b]].Scheduled
		})
	}
	m.propagate()
	return m, nil
}

// propagate narrows hour domains along each train's leg chain. A later leg
// cannot depart before the earlier leg's departure plus journey and
// turnaround; symmetrically an earlier leg cannot depart so late that the
// chain no longer fits in the window. An emptied domain proves the request
// infeasible before any search runs.
func (m *Model) propagate() {
	for train, idxs := range m.ByTrain {
		for k := 1; k < len(idxs); k++ {
			prev, cur := &m.Movements[idxs[k-1]], &m.Movements[idxs[k]]
			if lo := prev.Domain.Lo + prev.Journey + TurnaroundHours; lo > cur.Domain.Lo {
				cur.Domain.Lo = lo
			}
		}
		for k := len(idxs) - 2; k >= 0; k-- {
			cur, next := &m.Movements[idxs[k]], &m.Movements[idxs[k+1]]
			if hi := next.Domain.Hi - cur.Journey - TurnaroundHours; hi < cur.Domain.Hi {
				cur.Domain.Hi = hi
			}
		}
		for _, i := range idxs {
			if m.Movements[i].Domain.Empty() && !m.Infeasible {
				m.Infeasible = true
				m.InfeasibleReason = fmt.Sprintf("movement %s of train %s has no feasible departure hour", m.Movements[i].ID, train)
			}
		}
	}
	if m.Infeasible {
		return
	}
	// A station hour can never host more departures than it has platforms.
	// With single-hour domains this is already decided now.
	counts := make(map[string]map[int]int)
	for i := range m.Movements {
		v := &m.Movements[i]
		if v.Domain.Width() != 1 {
			continue
		}
		if counts[v.Station] == nil {
			counts[v.Station] = make(map[int]int)
		}
		counts[v.Station][v.Domain.Lo]++
		if counts[v.Station][v.Domain.Lo] > v.Platforms {
			m.Infeasible = true
			m.InfeasibleReason = fmt.Sprintf("station %s hour %02d:00 needs more than %d platforms", v.Station, v.Domain.Lo, v.Platforms)
			return
		}
	}
}
