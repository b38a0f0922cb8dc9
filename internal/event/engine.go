// ABOUTME: Planning engine events: solver lifecycle, reasoning graph, and execution
// ABOUTME: Field values are copied out of the engine; nothing here references engine objects

package event

import "fmt"

// ExecState is a solver's execution state.
type ExecState string

const (
	ExecReasoning ExecState = "reasoning"
	ExecAdapting  ExecState = "adapting"
	ExecIdle      ExecState = "idle"
	ExecExecuting ExecState = "executing"
	ExecFinished  ExecState = "finished"
	ExecFailed    ExecState = "failed"
)

// Valid reports whether s is a known execution state.
func (s ExecState) Valid() bool {
	switch s {
	case ExecReasoning, ExecAdapting, ExecIdle, ExecExecuting, ExecFinished, ExecFailed:
		return true
	}
	return false
}

// ClearsSelection reports whether entering s ends the current reasoning
// step, leaving no current flaw or resolver.
func (s ExecState) ClearsSelection() bool {
	switch s {
	case ExecIdle, ExecExecuting, ExecFinished, ExecFailed:
		return true
	}
	return false
}

// GraphState is the state of a flaw or resolver.
type GraphState string

const (
	GraphActive    GraphState = "active"
	GraphInactive  GraphState = "inactive"
	GraphForbidden GraphState = "forbidden"
)

// Rational is an exact fraction as produced by the engine.
type Rational struct {
	Num int64 `json:"num"`
	Den int64 `json:"den"`
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Flaw is a node of a solver's reasoning graph.
type Flaw struct {
	ID     string         `json:"id"`
	Causes []string       `json:"causes"` // resolver IDs
	Phi    string         `json:"phi"`
	State  GraphState     `json:"state"`
	Cost   Rational       `json:"cost"`
	Pos    int64          `json:"pos"`
	Data   map[string]any `json:"data,omitempty"`
}

// Resolver is an edge candidate of a solver's reasoning graph.
type Resolver struct {
	ID            string         `json:"id"`
	Preconditions []string       `json:"preconditions"` // flaw IDs
	Flaw          string         `json:"flaw"`
	Rho           string         `json:"rho"`
	State         GraphState     `json:"state"`
	IntrinsicCost Rational       `json:"intrinsic_cost"`
	Data          map[string]any `json:"data,omitempty"`
}

// SolverCreated is emitted when a solver instance starts.
type SolverCreated struct {
	SolverID uint64
	Name     string
	State    ExecState
}

// SolverDeleted is emitted when a solver instance is removed.
type SolverDeleted struct {
	SolverID uint64
}

// StateChanged carries a solver's full state after a reasoning step.
// State is opaque engine output (items, atoms, timelines).
type StateChanged struct {
	SolverID  uint64
	State     map[string]any
	Time      Rational
	Executing []string // task IDs currently in flight
}

// FlawCreated is emitted when the engine adds a flaw.
type FlawCreated struct {
	SolverID uint64
	Flaw     Flaw
}

// FlawStateChanged is emitted when a flaw changes state.
type FlawStateChanged struct {
	SolverID uint64
	FlawID   string
	State    GraphState
}

// FlawCostChanged is emitted when a flaw's estimated cost changes.
type FlawCostChanged struct {
	SolverID uint64
	FlawID   string
	Cost     Rational
}

// FlawPositionChanged is emitted when a flaw moves in the agenda.
type FlawPositionChanged struct {
	SolverID uint64
	FlawID   string
	Position int64
}

// CurrentFlaw is emitted when the engine selects a flaw to resolve.
type CurrentFlaw struct {
	SolverID uint64
	FlawID   string
}

// ResolverCreated is emitted when the engine adds a resolver.
type ResolverCreated struct {
	SolverID uint64
	Resolver Resolver
}

// ResolverStateChanged is emitted when a resolver changes state.
type ResolverStateChanged struct {
	SolverID   uint64
	ResolverID string
	State      GraphState
}

// CurrentResolver is emitted when the engine applies a resolver.
type CurrentResolver struct {
	SolverID   uint64
	ResolverID string
}

// CausalLinkAdded is emitted when a flaw becomes a precondition of a resolver.
type CausalLinkAdded struct {
	SolverID   uint64
	FlawID     string
	ResolverID string
}

// ExecutionStateChanged is emitted on every execution state transition.
type ExecutionStateChanged struct {
	SolverID uint64
	State    ExecState
}

// Tick is emitted when a solver's clock advances.
type Tick struct {
	SolverID uint64
	Time     Rational
}

// ActionPhase distinguishes the four task notifications of the executor.
type ActionPhase string

const (
	PhaseStarting ActionPhase = "starting"
	PhaseStart    ActionPhase = "start"
	PhaseEnding   ActionPhase = "ending"
	PhaseEnd      ActionPhase = "end"
)

// Valid reports whether p is a known phase.
func (p ActionPhase) Valid() bool {
	switch p {
	case PhaseStarting, PhaseStart, PhaseEnding, PhaseEnd:
		return true
	}
	return false
}

// Actions is emitted when tasks are about to start, start, are about to end,
// or end.
type Actions struct {
	SolverID uint64
	Phase    ActionPhase
	Tasks    []string
}

func (SolverCreated) isEvent()         {}
func (SolverDeleted) isEvent()         {}
func (StateChanged) isEvent()          {}
func (FlawCreated) isEvent()           {}
func (FlawStateChanged) isEvent()      {}
func (FlawCostChanged) isEvent()       {}
func (FlawPositionChanged) isEvent()   {}
func (CurrentFlaw) isEvent()           {}
func (ResolverCreated) isEvent()       {}
func (ResolverStateChanged) isEvent()  {}
func (CurrentResolver) isEvent()       {}
func (CausalLinkAdded) isEvent()       {}
func (ExecutionStateChanged) isEvent() {}
func (Tick) isEvent()                  {}
func (Actions) isEvent()               {}
