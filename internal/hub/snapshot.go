// ABOUTME: Snapshot builder: the ordered full-state frames a session receives after login
// ABOUTME: Order is types, items, rules, solver roster, per-solver state and graph, then users

package hub

import (
	"context"
	"fmt"

	"github.com/2389/coco-gateway/internal/protocol"
	"github.com/2389/coco-gateway/internal/store"
)

// snapshot builds the frames describing current state as seen by user. The
// user's own session counts as online. It runs on the loop.
func (h *Hub) snapshot(ctx context.Context, user *store.User) ([]protocol.Frame, error) {
	var frames []protocol.Frame
	add := func(audience protocol.Audience, msg protocol.Message) error {
		f, err := protocol.Encode(audience, msg)
		if err != nil {
			return err
		}
		frames = append(frames, f)
		return nil
	}

	types, err := h.store.ListTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing types: %w", err)
	}
	typeViews := make([]protocol.TypeView, 0, len(types))
	for _, t := range types {
		typeViews = append(typeViews, protocol.NewTypeView(t))
	}
	if err := add(protocol.All, protocol.Types{Header: protocol.Header{Type: protocol.KindTypes}, Types: typeViews}); err != nil {
		return nil, err
	}

	items, err := h.store.ListItems(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	itemViews := make([]protocol.ItemView, 0, len(items))
	for _, item := range items {
		itemViews = append(itemViews, protocol.NewItemView(item))
	}
	if err := add(protocol.All, protocol.Items{Header: protocol.Header{Type: protocol.KindItems}, Items: itemViews}); err != nil {
		return nil, err
	}

	for _, rk := range []struct {
		kind store.RuleKind
		msg  protocol.Kind
	}{
		{store.RuleReactive, protocol.KindReactiveRules},
		{store.RuleDeliberative, protocol.KindDeliberativeRules},
	} {
		rules, err := h.store.ListRules(ctx, rk.kind)
		if err != nil {
			return nil, fmt.Errorf("listing %s rules: %w", rk.kind, err)
		}
		views := make([]protocol.RuleView, 0, len(rules))
		for _, r := range rules {
			views = append(views, protocol.NewRuleView(r))
		}
		if err := add(protocol.All, protocol.Rules{Header: protocol.Header{Type: rk.msg}, Rules: views}); err != nil {
			return nil, err
		}
	}

	solvers := h.tracker.Solvers()
	roster := make([]protocol.SolverView, 0, len(solvers))
	for _, s := range solvers {
		roster = append(roster, protocol.SolverView{ID: s.ID, Name: s.Name, State: s.State})
	}
	if err := add(protocol.All, protocol.Solvers{Header: protocol.Header{Type: protocol.KindSolvers}, Solvers: roster}); err != nil {
		return nil, err
	}
	for _, s := range solvers {
		state, graph := h.solverStateFrame(s), h.solverGraphFrame(s)
		if state.IsZero() || graph.IsZero() {
			return nil, fmt.Errorf("encoding solver %d", s.ID)
		}
		frames = append(frames, state, graph)
	}

	if !user.IsPrivileged() {
		return frames, nil
	}

	users, err := h.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	statuses := make([]protocol.UserStatus, 0, len(users))
	for _, u := range users {
		_, online := h.registry.LookupSession(u.ID)
		statuses = append(statuses, protocol.UserStatus{
			UserView: protocol.NewUserView(u),
			Online:   online || u.ID == user.ID,
		})
	}
	if err := add(protocol.PrivilegedOnly, protocol.Users{Header: protocol.Header{Type: protocol.KindUsers}, Users: statuses}); err != nil {
		return nil, err
	}
	return frames, nil
}
