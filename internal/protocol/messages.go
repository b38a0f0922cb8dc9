// ABOUTME: Outbound message payloads for session, snapshot, and change notifications
// ABOUTME: Each struct embeds Header so its "type" field and Kind agree

package protocol

import (
	"bytes"
	"encoding/json"
	"maps"

	"github.com/2389/coco-gateway/internal/event"
)

// Header carries the discriminator of every outbound message.
type Header struct {
	Type Kind `json:"type"`
}

// Kind returns the message kind.
func (h Header) Kind() Kind { return h.Type }

// Ack answers a connect or login request.
type Ack struct {
	Header
	Success bool      `json:"success"`
	User    *UserView `json:"user,omitempty"`
}

// Presence announces that a user connected or disconnected.
type Presence struct {
	Header
	ID string `json:"id"`
}

// Error reports a rejected WebSocket action.
type Error struct {
	Header
	Message string `json:"message"`
}

// Types is the taxonomy snapshot.
type Types struct {
	Header
	Types []TypeView `json:"types"`
}

// Items is the item snapshot.
type Items struct {
	Header
	Items []ItemView `json:"items"`
}

// Rules is the snapshot of one rule kind.
type Rules struct {
	Header
	Rules []RuleView `json:"rules"`
}

// Solvers is the solver roster snapshot.
type Solvers struct {
	Header
	Solvers []SolverView `json:"solvers"`
}

// Users is the privileged user roster snapshot.
type Users struct {
	Header
	Users []UserStatus `json:"users"`
}

// SolverState is a solver's full state. The engine's opaque state fields are
// flattened into the document alongside id, time, and executing_tasks.
type SolverState struct {
	Header
	ID             uint64
	State          map[string]any
	Time           event.Rational
	ExecutingTasks []string
}

// MarshalJSON flattens the engine state. Reserved keys always win.
func (s SolverState) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(s.State)+4)
	maps.Copy(doc, s.State)
	tasks := s.ExecutingTasks
	if tasks == nil {
		tasks = []string{}
	}
	doc["type"] = s.Type
	doc["id"] = s.ID
	doc["time"] = s.Time
	doc["executing_tasks"] = tasks
	return json.Marshal(doc)
}

// SolverGraph is a solver's full reasoning graph.
type SolverGraph struct {
	Header
	ID              uint64           `json:"id"`
	Flaws           []event.Flaw     `json:"flaws"`
	Resolvers       []event.Resolver `json:"resolvers"`
	CurrentFlaw     string           `json:"current_flaw,omitempty"`
	CurrentResolver string           `json:"current_resolver,omitempty"`
}

// EntityChange carries a created or updated entity under a key equal to its
// kind, e.g. {"type":"new_type","new_type":{...}}.
type EntityChange struct {
	Header
	Entity any
}

// MarshalJSON writes the type field first, then the entity.
func (c EntityChange) MarshalJSON() ([]byte, error) {
	kind, err := json.Marshal(c.Type)
	if err != nil {
		return nil, err
	}
	entity, err := json.Marshal(c.Entity)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(kind)
	buf.WriteString(`,`)
	buf.Write(kind)
	buf.WriteString(`:`)
	buf.Write(entity)
	buf.WriteString(`}`)
	return buf.Bytes(), nil
}

// Deleted announces the removal of an entity.
type Deleted struct {
	Header
	ID string `json:"id"`
}

// NewData announces a sensor reading.
type NewData struct {
	Header
	ItemID    string         `json:"item_id"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// NewSolver announces a solver instance.
type NewSolver struct {
	Header
	SolverView
}

// SolverRef names a solver, used by deleted_solver.
type SolverRef struct {
	Header
	ID uint64 `json:"id"`
}

// FlawCreated announces a new flaw.
type FlawCreated struct {
	Header
	SolverID uint64 `json:"solver_id"`
	event.Flaw
}

// NewFlawCreated builds a flaw_created message. A flaw without causes
// encodes them as [], matching solver_graph.
func NewFlawCreated(solverID uint64, f event.Flaw) FlawCreated {
	f.Causes = orEmpty(f.Causes)
	return FlawCreated{
		Header:   Header{Type: KindFlawCreated},
		SolverID: solverID,
		Flaw:     f,
	}
}

// ResolverCreated announces a new resolver.
type ResolverCreated struct {
	Header
	SolverID uint64 `json:"solver_id"`
	event.Resolver
}

// NewResolverCreated builds a resolver_created message. A resolver without
// preconditions encodes them as [].
func NewResolverCreated(solverID uint64, r event.Resolver) ResolverCreated {
	r.Preconditions = orEmpty(r.Preconditions)
	return ResolverCreated{
		Header:   Header{Type: KindResolverCreated},
		SolverID: solverID,
		Resolver: r,
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// NodeState announces a flaw or resolver state change.
type NodeState struct {
	Header
	SolverID uint64           `json:"solver_id"`
	ID       string           `json:"id"`
	State    event.GraphState `json:"state"`
}

// FlawCost announces a flaw cost change.
type FlawCost struct {
	Header
	SolverID uint64         `json:"solver_id"`
	ID       string         `json:"id"`
	Cost     event.Rational `json:"cost"`
}

// FlawPosition announces a flaw position change.
type FlawPosition struct {
	Header
	SolverID uint64 `json:"solver_id"`
	ID       string `json:"id"`
	Position int64  `json:"position"`
}

// Current announces the current flaw or resolver.
type Current struct {
	Header
	SolverID uint64 `json:"solver_id"`
	ID       string `json:"id"`
}

// CausalLink announces a new causal link.
type CausalLink struct {
	Header
	SolverID   uint64 `json:"solver_id"`
	FlawID     string `json:"flaw_id"`
	ResolverID string `json:"resolver_id"`
}

// ExecutionState announces a solver execution state transition.
type ExecutionState struct {
	Header
	ID    uint64          `json:"id"`
	State event.ExecState `json:"state"`
}

// Tick announces that a solver's clock advanced.
type Tick struct {
	Header
	ID   uint64         `json:"id"`
	Time event.Rational `json:"time"`
}

// Tasks announces a task phase (starting, start, ending, end).
type Tasks struct {
	Header
	ID    uint64   `json:"id"`
	Tasks []string `json:"tasks"`
}
