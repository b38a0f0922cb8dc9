// ABOUTME: Decodes engine events pushed over HTTP into event.Event values
// ABOUTME: Accepts the same documents the gateway broadcasts, singly or as an array

package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/coco-gateway/internal/event"
	"github.com/2389/coco-gateway/internal/protocol"
)

// Decoding errors
var (
	ErrUnknownEvent = errors.New("unknown engine event")
	ErrInvalidEvent = errors.New("invalid engine event")
)

// DecodeAll decodes either one event document or a JSON array of them.
func DecodeAll(data []byte) ([]event.Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var docs []json.RawMessage
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		events := make([]event.Event, 0, len(docs))
		for i, doc := range docs {
			e, err := Decode(doc)
			if err != nil {
				return nil, fmt.Errorf("event %d: %w", i, err)
			}
			events = append(events, e)
		}
		return events, nil
	}

	e, err := Decode(trimmed)
	if err != nil {
		return nil, err
	}
	return []event.Event{e}, nil
}

// Decode converts one engine event document.
func Decode(data []byte) (event.Event, error) {
	var header protocol.Header
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	switch header.Type {
	case protocol.KindNewSolver:
		var m protocol.NewSolver
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if err := validExec(m.State); err != nil {
			return nil, err
		}
		return event.SolverCreated{SolverID: m.ID, Name: m.Name, State: m.State}, nil

	case protocol.KindDeletedSolver:
		var m protocol.SolverRef
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return event.SolverDeleted{SolverID: m.ID}, nil

	case protocol.KindSolverState:
		return decodeState(data)

	case protocol.KindFlawCreated:
		var m protocol.FlawCreated
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if m.Flaw.ID == "" {
			return nil, fmt.Errorf("%w: flaw_created without id", ErrInvalidEvent)
		}
		return event.FlawCreated{SolverID: m.SolverID, Flaw: m.Flaw}, nil

	case protocol.KindFlawStateChanged:
		var m protocol.NodeState
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return event.FlawStateChanged{SolverID: m.SolverID, FlawID: m.ID, State: m.State}, nil

	case protocol.KindFlawCostChanged:
		var m protocol.FlawCost
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return event.FlawCostChanged{SolverID: m.SolverID, FlawID: m.ID, Cost: m.Cost}, nil

	case protocol.KindFlawPositionChanged:
		var m protocol.FlawPosition
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return event.FlawPositionChanged{SolverID: m.SolverID, FlawID: m.ID, Position: m.Position}, nil

	case protocol.KindCurrentFlaw:
		var m protocol.Current
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return event.CurrentFlaw{SolverID: m.SolverID, FlawID: m.ID}, nil

	case protocol.KindResolverCreated:
		var m protocol.ResolverCreated
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if m.Resolver.ID == "" {
			return nil, fmt.Errorf("%w: resolver_created without id", ErrInvalidEvent)
		}
		return event.ResolverCreated{SolverID: m.SolverID, Resolver: m.Resolver}, nil

	case protocol.KindResolverStateChanged:
		var m protocol.NodeState
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return event.ResolverStateChanged{SolverID: m.SolverID, ResolverID: m.ID, State: m.State}, nil

	case protocol.KindCurrentResolver:
		var m protocol.Current
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return event.CurrentResolver{SolverID: m.SolverID, ResolverID: m.ID}, nil

	case protocol.KindCausalLinkAdded:
		var m protocol.CausalLink
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return event.CausalLinkAdded{SolverID: m.SolverID, FlawID: m.FlawID, ResolverID: m.ResolverID}, nil

	case protocol.KindSolverExecutionStateChanged:
		var m protocol.ExecutionState
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if err := validExec(m.State); err != nil {
			return nil, err
		}
		return event.ExecutionStateChanged{SolverID: m.ID, State: m.State}, nil

	case protocol.KindTick:
		var m protocol.Tick
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return event.Tick{SolverID: m.ID, Time: m.Time}, nil

	case protocol.KindStarting, protocol.KindStart, protocol.KindEnding, protocol.KindEnd:
		var m protocol.Tasks
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return event.Actions{SolverID: m.ID, Phase: event.ActionPhase(m.Type), Tasks: m.Tasks}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, header.Type)
	}
}

func unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}

func validExec(s event.ExecState) error {
	if !s.Valid() {
		return fmt.Errorf("%w: unknown execution state %q", ErrInvalidEvent, s)
	}
	return nil
}

// decodeState splits a solver_state document into its reserved fields and
// the opaque engine state.
func decodeState(data []byte) (event.Event, error) {
	var fixed struct {
		ID             uint64         `json:"id"`
		Time           event.Rational `json:"time"`
		ExecutingTasks []string       `json:"executing_tasks"`
	}
	if err := unmarshal(data, &fixed); err != nil {
		return nil, err
	}
	var rest map[string]any
	if err := unmarshal(data, &rest); err != nil {
		return nil, err
	}
	for _, k := range []string{"type", "id", "time", "executing_tasks"} {
		delete(rest, k)
	}
	if fixed.Time.Den == 0 {
		fixed.Time.Den = 1
	}
	return event.StateChanged{
		SolverID:  fixed.ID,
		State:     rest,
		Time:      fixed.Time,
		Executing: fixed.ExecutingTasks,
	}, nil
}
