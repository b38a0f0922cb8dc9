// ABOUTME: Message kind discriminators for the /coco WebSocket protocol
// ABOUTME: Every outbound and inbound document carries one of these in its "type" field

package protocol

// Kind is the value of a message's "type" field.
type Kind string

// Session management
const (
	KindConnect          Kind = "connect"
	KindLogin            Kind = "login"
	KindUserConnected    Kind = "user_connected"
	KindUserDisconnected Kind = "user_disconnected"
	KindError            Kind = "error"
)

// Snapshot
const (
	KindTypes             Kind = "types"
	KindItems             Kind = "items"
	KindReactiveRules     Kind = "reactive_rules"
	KindDeliberativeRules Kind = "deliberative_rules"
	KindSolvers           Kind = "solvers"
	KindSolverState       Kind = "solver_state"
	KindSolverGraph       Kind = "solver_graph"
	KindUsers             Kind = "users"
)

// Domain changes
const (
	KindNewType                 Kind = "new_type"
	KindUpdatedType             Kind = "updated_type"
	KindDeletedType             Kind = "deleted_type"
	KindNewItem                 Kind = "new_item"
	KindUpdatedItem             Kind = "updated_item"
	KindDeletedItem             Kind = "deleted_item"
	KindNewData                 Kind = "new_data"
	KindNewReactiveRule         Kind = "new_reactive_rule"
	KindUpdatedReactiveRule     Kind = "updated_reactive_rule"
	KindDeletedReactiveRule     Kind = "deleted_reactive_rule"
	KindNewDeliberativeRule     Kind = "new_deliberative_rule"
	KindUpdatedDeliberativeRule Kind = "updated_deliberative_rule"
	KindDeletedDeliberativeRule Kind = "deleted_deliberative_rule"
	KindNewUser                 Kind = "new_user"
	KindUpdatedUser             Kind = "updated_user"
	KindDeletedUser             Kind = "deleted_user"
)

// Engine changes
const (
	KindNewSolver                   Kind = "new_solver"
	KindDeletedSolver               Kind = "deleted_solver"
	KindFlawCreated                 Kind = "flaw_created"
	KindFlawStateChanged            Kind = "flaw_state_changed"
	KindFlawCostChanged             Kind = "flaw_cost_changed"
	KindFlawPositionChanged         Kind = "flaw_position_changed"
	KindCurrentFlaw                 Kind = "current_flaw"
	KindResolverCreated             Kind = "resolver_created"
	KindResolverStateChanged        Kind = "resolver_state_changed"
	KindCurrentResolver             Kind = "current_resolver"
	KindCausalLinkAdded             Kind = "causal_link_added"
	KindSolverExecutionStateChanged Kind = "solver_execution_state_changed"
	KindTick                        Kind = "tick"
	KindStarting                    Kind = "starting"
	KindStart                       Kind = "start"
	KindEnding                      Kind = "ending"
	KindEnd                         Kind = "end"
)

// IsLogin reports whether k is one of the two authentication request kinds.
func (k Kind) IsLogin() bool {
	return k == KindConnect || k == KindLogin
}
