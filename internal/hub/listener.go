// ABOUTME: Listener dispatch: one type switch turning each event into outbound frames
// ABOUTME: Engine events update the solver mirror before they are broadcast

package hub

import (
	"fmt"

	"github.com/2389/coco-gateway/internal/engine"
	"github.com/2389/coco-gateway/internal/event"
	"github.com/2389/coco-gateway/internal/protocol"
	"github.com/2389/coco-gateway/internal/session"
	"github.com/2389/coco-gateway/internal/store"
)

// dispatch applies e to hub state and broadcasts the resulting frames. It runs
// on the loop.
func (h *Hub) dispatch(e event.Event) {
	h.tracker.Apply(e)

	switch e := e.(type) {
	case event.TypeCreated:
		h.broadcast(h.change(protocol.All, protocol.KindNewType, protocol.NewTypeView(e.Type)))
	case event.TypeUpdated:
		h.broadcast(h.change(protocol.All, protocol.KindUpdatedType, protocol.NewTypeView(e.Type)))
	case event.TypeDeleted:
		h.broadcast(h.deleted(protocol.All, protocol.KindDeletedType, e.ID))

	case event.ItemCreated:
		h.broadcast(h.change(protocol.All, protocol.KindNewItem, protocol.NewItemView(e.Item)))
	case event.ItemUpdated:
		h.broadcast(h.change(protocol.All, protocol.KindUpdatedItem, protocol.NewItemView(e.Item)))
	case event.ItemDeleted:
		h.broadcast(h.deleted(protocol.All, protocol.KindDeletedItem, e.ID))

	case event.DataRecorded:
		data := e.Reading.Data
		if data == nil {
			data = map[string]any{}
		}
		h.broadcast(h.encode(protocol.All, protocol.NewData{
			Header:    protocol.Header{Type: protocol.KindNewData},
			ItemID:    e.Reading.ItemID,
			Timestamp: e.Reading.Timestamp,
			Data:      data,
		}))

	case event.RuleCreated:
		h.broadcast(h.change(protocol.All, ruleKind(e.Rule.Kind, protocol.KindNewReactiveRule, protocol.KindNewDeliberativeRule), protocol.NewRuleView(e.Rule)))
	case event.RuleUpdated:
		h.broadcast(h.change(protocol.All, ruleKind(e.Rule.Kind, protocol.KindUpdatedReactiveRule, protocol.KindUpdatedDeliberativeRule), protocol.NewRuleView(e.Rule)))
	case event.RuleDeleted:
		h.broadcast(h.deleted(protocol.All, ruleKind(e.Kind, protocol.KindDeletedReactiveRule, protocol.KindDeletedDeliberativeRule), e.ID))

	case event.UserCreated:
		h.broadcast(h.change(protocol.PrivilegedOnly, protocol.KindNewUser, protocol.NewUserView(e.User)))
	case event.UserUpdated:
		// A role change takes effect before the notification goes out.
		h.registry.SetPrivileged(e.User.ID, e.User.IsPrivileged())
		h.broadcast(h.change(protocol.PrivilegedOnly, protocol.KindUpdatedUser, protocol.NewUserView(e.User)))
	case event.UserDeleted:
		h.broadcast(h.deleted(protocol.PrivilegedOnly, protocol.KindDeletedUser, e.ID))
		if id, ok := h.registry.LookupSession(e.ID); ok {
			h.registry.Close(id, session.ReasonUserDeleted)
		}

	case event.SolverCreated:
		h.broadcast(h.encode(protocol.All, protocol.NewSolver{
			Header:     protocol.Header{Type: protocol.KindNewSolver},
			SolverView: protocol.SolverView{ID: e.SolverID, Name: e.Name, State: e.State},
		}))
	case event.SolverDeleted:
		h.broadcast(h.encode(protocol.All, protocol.SolverRef{
			Header: protocol.Header{Type: protocol.KindDeletedSolver},
			ID:     e.SolverID,
		}))
	case event.StateChanged:
		if s := h.tracker.Solver(e.SolverID); s != nil {
			h.broadcast(h.solverStateFrame(s))
			h.broadcast(h.solverGraphFrame(s))
		} else {
			h.broadcast(h.solverStateFrame(&engine.Solver{ID: e.SolverID, EngineState: e.State, Time: e.Time, Executing: e.Executing}))
		}

	case event.FlawCreated:
		h.broadcast(h.encode(protocol.All, protocol.NewFlawCreated(e.SolverID, e.Flaw)))
	case event.FlawStateChanged:
		h.broadcast(h.encode(protocol.All, protocol.NodeState{
			Header:   protocol.Header{Type: protocol.KindFlawStateChanged},
			SolverID: e.SolverID,
			ID:       e.FlawID,
			State:    e.State,
		}))
	case event.FlawCostChanged:
		h.broadcast(h.encode(protocol.All, protocol.FlawCost{
			Header:   protocol.Header{Type: protocol.KindFlawCostChanged},
			SolverID: e.SolverID,
			ID:       e.FlawID,
			Cost:     e.Cost,
		}))
	case event.FlawPositionChanged:
		h.broadcast(h.encode(protocol.All, protocol.FlawPosition{
			Header:   protocol.Header{Type: protocol.KindFlawPositionChanged},
			SolverID: e.SolverID,
			ID:       e.FlawID,
			Position: e.Position,
		}))
	case event.CurrentFlaw:
		h.broadcast(h.current(protocol.KindCurrentFlaw, e.SolverID, e.FlawID))

	case event.ResolverCreated:
		h.broadcast(h.encode(protocol.All, protocol.NewResolverCreated(e.SolverID, e.Resolver)))
	case event.ResolverStateChanged:
		h.broadcast(h.encode(protocol.All, protocol.NodeState{
			Header:   protocol.Header{Type: protocol.KindResolverStateChanged},
			SolverID: e.SolverID,
			ID:       e.ResolverID,
			State:    e.State,
		}))
	case event.CurrentResolver:
		h.broadcast(h.current(protocol.KindCurrentResolver, e.SolverID, e.ResolverID))

	case event.CausalLinkAdded:
		h.broadcast(h.encode(protocol.All, protocol.CausalLink{
			Header:     protocol.Header{Type: protocol.KindCausalLinkAdded},
			SolverID:   e.SolverID,
			FlawID:     e.FlawID,
			ResolverID: e.ResolverID,
		}))
	case event.ExecutionStateChanged:
		h.broadcast(h.encode(protocol.All, protocol.ExecutionState{
			Header: protocol.Header{Type: protocol.KindSolverExecutionStateChanged},
			ID:     e.SolverID,
			State:  e.State,
		}))
	case event.Tick:
		h.broadcast(h.encode(protocol.All, protocol.Tick{
			Header: protocol.Header{Type: protocol.KindTick},
			ID:     e.SolverID,
			Time:   e.Time,
		}))
	case event.Actions:
		tasks := e.Tasks
		if tasks == nil {
			tasks = []string{}
		}
		h.broadcast(h.encode(protocol.All, protocol.Tasks{
			Header: protocol.Header{Type: protocol.Kind(e.Phase)},
			ID:     e.SolverID,
			Tasks:  tasks,
		}))

	default:
		h.logger.Error("unhandled event", "event", eventName(e))
	}
}

func (h *Hub) change(audience protocol.Audience, kind protocol.Kind, entity any) protocol.Frame {
	return h.encode(audience, protocol.EntityChange{
		Header: protocol.Header{Type: kind},
		Entity: entity,
	})
}

func (h *Hub) deleted(audience protocol.Audience, kind protocol.Kind, id string) protocol.Frame {
	return h.encode(audience, protocol.Deleted{
		Header: protocol.Header{Type: kind},
		ID:     id,
	})
}

func (h *Hub) current(kind protocol.Kind, solverID uint64, id string) protocol.Frame {
	return h.encode(protocol.All, protocol.Current{
		Header:   protocol.Header{Type: kind},
		SolverID: solverID,
		ID:       id,
	})
}

func ruleKind(kind store.RuleKind, reactive, deliberative protocol.Kind) protocol.Kind {
	if kind == store.RuleDeliberative {
		return deliberative
	}
	return reactive
}

// solverStateFrame encodes a solver's full state.
func (h *Hub) solverStateFrame(s *engine.Solver) protocol.Frame {
	return h.encode(protocol.All, protocol.SolverState{
		Header:         protocol.Header{Type: protocol.KindSolverState},
		ID:             s.ID,
		State:          s.EngineState,
		Time:           s.Time,
		ExecutingTasks: s.Executing,
	})
}

// solverGraphFrame encodes a solver's full reasoning graph.
func (h *Hub) solverGraphFrame(s *engine.Solver) protocol.Frame {
	return h.encode(protocol.All, protocol.SolverGraph{
		Header:          protocol.Header{Type: protocol.KindSolverGraph},
		ID:              s.ID,
		Flaws:           s.Flaws(),
		Resolvers:       s.Resolvers(),
		CurrentFlaw:     s.CurrentFlaw,
		CurrentResolver: s.CurrentResolver,
	})
}

// encode builds a frame, logging instead of failing. Broadcasting a zero
// frame is a no-op.
func (h *Hub) encode(audience protocol.Audience, msg protocol.Message) protocol.Frame {
	f, err := protocol.Encode(audience, msg)
	if err != nil {
		h.logger.Error("encoding frame", "kind", msg.Kind(), "error", err)
	}
	return f
}

func eventName(e event.Event) string {
	return fmt.Sprintf("%T", e)
}
