// ABOUTME: Tracker mirrors every live solver's roster entry, state, and reasoning graph
// ABOUTME: Fed by engine events; read by the snapshot builder

package engine

import (
	"slices"

	"github.com/2389/coco-gateway/internal/event"
)

// Solver is the mirrored view of one solver instance.
type Solver struct {
	ID    uint64
	Name  string
	State event.ExecState

	EngineState map[string]any
	Time        event.Rational
	Executing   []string

	flaws           []*event.Flaw
	flawIndex       map[string]*event.Flaw
	resolvers       []*event.Resolver
	resolverIndex   map[string]*event.Resolver
	CurrentFlaw     string
	CurrentResolver string
}

// Flaws returns copies of the solver's flaws in creation order.
func (s *Solver) Flaws() []event.Flaw {
	out := make([]event.Flaw, 0, len(s.flaws))
	for _, f := range s.flaws {
		c := *f
		c.Causes = nonNil(slices.Clone(f.Causes))
		out = append(out, c)
	}
	return out
}

// Resolvers returns copies of the solver's resolvers in creation order.
func (s *Solver) Resolvers() []event.Resolver {
	out := make([]event.Resolver, 0, len(s.resolvers))
	for _, r := range s.resolvers {
		c := *r
		c.Preconditions = nonNil(slices.Clone(r.Preconditions))
		out = append(out, c)
	}
	return out
}

// Tracker holds the mirrored solvers. It is not safe for concurrent use; the
// hub owns it on its event loop.
type Tracker struct {
	solvers map[uint64]*Solver
	order   []uint64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{solvers: make(map[uint64]*Solver)}
}

// Solvers returns live solvers in creation order.
func (t *Tracker) Solvers() []*Solver {
	out := make([]*Solver, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.solvers[id])
	}
	return out
}

// Solver returns the solver with the given ID, or nil.
func (t *Tracker) Solver(id uint64) *Solver {
	return t.solvers[id]
}

// Apply folds an engine event into the mirror. Events for unknown solvers,
// flaws, or resolvers are ignored. Non-engine events are ignored. It reports
// whether the event was an engine event.
func (t *Tracker) Apply(e event.Event) bool {
	switch e := e.(type) {
	case event.SolverCreated:
		if s, ok := t.solvers[e.SolverID]; ok {
			s.Name, s.State = e.Name, e.State
			return true
		}
		t.solvers[e.SolverID] = &Solver{
			ID:            e.SolverID,
			Name:          e.Name,
			State:         e.State,
			Time:          event.Rational{Num: 0, Den: 1},
			flawIndex:     make(map[string]*event.Flaw),
			resolverIndex: make(map[string]*event.Resolver),
		}
		t.order = append(t.order, e.SolverID)

	case event.SolverDeleted:
		if _, ok := t.solvers[e.SolverID]; ok {
			delete(t.solvers, e.SolverID)
			t.order = slices.DeleteFunc(t.order, func(id uint64) bool { return id == e.SolverID })
		}

	case event.StateChanged:
		if s := t.solvers[e.SolverID]; s != nil {
			s.EngineState = e.State
			s.Time = e.Time
			s.Executing = slices.Clone(e.Executing)
		}

	case event.FlawCreated:
		if s := t.solvers[e.SolverID]; s != nil {
			f := e.Flaw
			f.Causes = slices.Clone(f.Causes)
			if _, ok := s.flawIndex[f.ID]; !ok {
				s.flaws = append(s.flaws, &f)
			} else {
				idx := slices.IndexFunc(s.flaws, func(x *event.Flaw) bool { return x.ID == f.ID })
				s.flaws[idx] = &f
			}
			s.flawIndex[f.ID] = &f
			for _, cause := range f.Causes {
				if r := s.resolverIndex[cause]; r != nil && !slices.Contains(r.Preconditions, f.ID) {
					r.Preconditions = append(r.Preconditions, f.ID)
				}
			}
		}

	case event.FlawStateChanged:
		if f := t.flaw(e.SolverID, e.FlawID); f != nil {
			f.State = e.State
		}

	case event.FlawCostChanged:
		if f := t.flaw(e.SolverID, e.FlawID); f != nil {
			f.Cost = e.Cost
		}

	case event.FlawPositionChanged:
		if f := t.flaw(e.SolverID, e.FlawID); f != nil {
			f.Pos = e.Position
		}

	case event.CurrentFlaw:
		if s := t.solvers[e.SolverID]; s != nil {
			s.CurrentFlaw = e.FlawID
			s.CurrentResolver = ""
		}

	case event.ResolverCreated:
		if s := t.solvers[e.SolverID]; s != nil {
			r := e.Resolver
			r.Preconditions = slices.Clone(r.Preconditions)
			if _, ok := s.resolverIndex[r.ID]; !ok {
				s.resolvers = append(s.resolvers, &r)
			} else {
				idx := slices.IndexFunc(s.resolvers, func(x *event.Resolver) bool { return x.ID == r.ID })
				s.resolvers[idx] = &r
			}
			s.resolverIndex[r.ID] = &r
		}

	case event.ResolverStateChanged:
		if s := t.solvers[e.SolverID]; s != nil {
			if r := s.resolverIndex[e.ResolverID]; r != nil {
				r.State = e.State
			}
		}

	case event.CurrentResolver:
		if s := t.solvers[e.SolverID]; s != nil {
			s.CurrentResolver = e.ResolverID
		}

	case event.CausalLinkAdded:
		if s := t.solvers[e.SolverID]; s != nil {
			f, r := s.flawIndex[e.FlawID], s.resolverIndex[e.ResolverID]
			if f != nil && r != nil {
				f.Causes = append(f.Causes, r.ID)
				r.Preconditions = append(r.Preconditions, f.ID)
			}
		}

	case event.ExecutionStateChanged:
		if s := t.solvers[e.SolverID]; s != nil {
			s.State = e.State
			if e.State.ClearsSelection() {
				s.CurrentFlaw, s.CurrentResolver = "", ""
			}
		}

	case event.Tick:
		if s := t.solvers[e.SolverID]; s != nil {
			s.Time = e.Time
		}

	case event.Actions:
		if s := t.solvers[e.SolverID]; s != nil {
			switch e.Phase {
			case event.PhaseStart:
				for _, task := range e.Tasks {
					if !slices.Contains(s.Executing, task) {
						s.Executing = append(s.Executing, task)
					}
				}
			case event.PhaseEnd:
				s.Executing = slices.DeleteFunc(s.Executing, func(task string) bool {
					return slices.Contains(e.Tasks, task)
				})
			}
		}

	default:
		return false
	}
	return true
}

func (t *Tracker) flaw(solverID uint64, flawID string) *event.Flaw {
	s := t.solvers[solverID]
	if s == nil {
		return nil
	}
	return s.flawIndex[flawID]
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
