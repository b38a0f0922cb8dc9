// ABOUTME: HTTP API handlers for login and CRUD over types, items, rules, and users
// ABOUTME: Every mutation goes through the hub so that it is broadcast in order

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/2389/coco-gateway/internal/auth"
	"github.com/2389/coco-gateway/internal/hub"
	"github.com/2389/coco-gateway/internal/protocol"
	"github.com/2389/coco-gateway/internal/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// LoginRequest is the JSON request body for POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the JSON response for POST /login.
type LoginResponse struct {
	Token string            `json:"token"`
	User  protocol.UserView `json:"user"`
}

// TypeRequest is the JSON body for creating or replacing an entity type.
type TypeRequest struct {
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	Parents           []string       `json:"parents"`
	StaticProperties  map[string]any `json:"static_properties"`
	DynamicProperties map[string]any `json:"dynamic_properties"`
}

func (req TypeRequest) toType(id string) *store.Type {
	return &store.Type{
		ID:                id,
		Name:              req.Name,
		Description:       req.Description,
		Parents:           req.Parents,
		StaticProperties:  req.StaticProperties,
		DynamicProperties: req.DynamicProperties,
	}
}

// ItemRequest is the JSON body for creating or replacing an item.
type ItemRequest struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Properties  map[string]any `json:"properties"`
}

func (req ItemRequest) toItem(id string) *store.Item {
	return &store.Item{
		ID:          id,
		TypeID:      req.Type,
		Name:        req.Name,
		Description: req.Description,
		Properties:  req.Properties,
	}
}

// RuleRequest is the JSON body for creating or replacing a rule.
type RuleRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// UserRequest is the JSON body for creating or replacing a user. An empty
// password on update keeps the current one.
type UserRequest struct {
	Username string         `json:"username"`
	Password string         `json:"password,omitempty"`
	Role     store.Role     `json:"role"`
	Roots    []string       `json:"roots"`
	Data     map[string]any `json:"data"`
}

func (req UserRequest) toUser(id string) *store.User {
	return &store.User{
		ID:       id,
		Username: req.Username,
		Role:     req.Role,
		Roots:    req.Roots,
		Data:     req.Data,
	}
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeBody decodes a JSON request body into v, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// statusFor maps a hub or store error to an HTTP status.
func statusFor(err error) int {
	if status := auth.StatusCode(err); status != 0 {
		return status
	}
	switch {
	case errors.Is(err, hub.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate), errors.Is(err, store.ErrInUse):
		return http.StatusConflict
	case errors.Is(err, hub.ErrStopped), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// sendError answers with the status for err. Server-side failures are logged
// and reported without detail.
func (g *Gateway) sendError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		g.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		sendJSONError(w, status, http.StatusText(status))
		return
	}
	g.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	sendJSONError(w, status, err.Error())
}

// mapSlice converts a list of store entities to their views.
func mapSlice[T, V any](in []T, fn func(T) V) []V {
	out := make([]V, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}

// handleLogin handles POST /login.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		sendJSONError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	token, user, err := g.hub.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredential) {
			// Same answer for unknown users and wrong passwords.
			sendJSONError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		g.sendError(w, r, err)
		return
	}

	g.logger.Info("user logged in", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: protocol.NewUserView(user)})
}

// Types

func (g *Gateway) handleListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := g.hub.ListTypes(r.Context())
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(types, protocol.NewTypeView))
}

func (g *Gateway) handleGetType(w http.ResponseWriter, r *http.Request) {
	t, err := g.hub.GetType(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewTypeView(t))
}

func (g *Gateway) handleCreateType(w http.ResponseWriter, r *http.Request) {
	var req TypeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	t, err := g.hub.CreateType(r.Context(), req.toType(""))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, protocol.NewTypeView(t))
}

func (g *Gateway) handleUpdateType(w http.ResponseWriter, r *http.Request) {
	var req TypeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	t, err := g.hub.UpdateType(r.Context(), req.toType(chi.URLParam(r, "id")))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewTypeView(t))
}

func (g *Gateway) handleDeleteType(w http.ResponseWriter, r *http.Request) {
	if err := g.hub.DeleteType(r.Context(), chi.URLParam(r, "id")); err != nil {
		g.sendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Items

func (g *Gateway) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := g.hub.ListItems(r.Context(), r.URL.Query().Get("type_id"))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(items, protocol.NewItemView))
}

func (g *Gateway) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := g.hub.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewItemView(item))
}

func (g *Gateway) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := g.hub.CreateItem(r.Context(), req.toItem(""))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, protocol.NewItemView(item))
}

func (g *Gateway) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := g.hub.UpdateItem(r.Context(), req.toItem(chi.URLParam(r, "id")))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewItemView(item))
}

func (g *Gateway) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := g.hub.DeleteItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		g.sendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Rules

// ruleKind reads the {kind} path segment. Unknown kinds are a 404 since the
// route does not exist.
func ruleKind(w http.ResponseWriter, r *http.Request) (store.RuleKind, bool) {
	kind := store.RuleKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		sendJSONError(w, http.StatusNotFound, "unknown rule kind")
		return "", false
	}
	return kind, true
}

func (g *Gateway) handleListRules(w http.ResponseWriter, r *http.Request) {
	kind, ok := ruleKind(w, r)
	if !ok {
		return
	}
	rules, err := g.hub.ListRules(r.Context(), kind)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(rules, protocol.NewRuleView))
}

func (g *Gateway) handleGetRule(w http.ResponseWriter, r *http.Request) {
	kind, ok := ruleKind(w, r)
	if !ok {
		return
	}
	rule, err := g.hub.GetRule(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewRuleView(rule))
}

func (g *Gateway) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	kind, ok := ruleKind(w, r)
	if !ok {
		return
	}
	var req RuleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rule, err := g.hub.CreateRule(r.Context(), &store.Rule{Kind: kind, Name: req.Name, Content: req.Content})
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, protocol.NewRuleView(rule))
}

func (g *Gateway) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	kind, ok := ruleKind(w, r)
	if !ok {
		return
	}
	var req RuleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rule, err := g.hub.UpdateRule(r.Context(), &store.Rule{
		ID:      chi.URLParam(r, "id"),
		Kind:    kind,
		Name:    req.Name,
		Content: req.Content,
	})
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewRuleView(rule))
}

func (g *Gateway) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	kind, ok := ruleKind(w, r)
	if !ok {
		return
	}
	if err := g.hub.DeleteRule(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
		g.sendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Users

func (g *Gateway) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := g.hub.ListUsers(r.Context())
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(users, protocol.NewUserView))
}

func (g *Gateway) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := g.hub.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewUserView(user))
}

func (g *Gateway) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := g.hub.CreateUser(r.Context(), req.toUser(""), req.Password)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.logger.Info("user created", "user_id", user.ID, "username", user.Username,
		"by", auth.MustFromContext(r.Context()).UserID)
	writeJSON(w, http.StatusCreated, protocol.NewUserView(user))
}

func (g *Gateway) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := g.hub.UpdateUser(r.Context(), req.toUser(chi.URLParam(r, "id")), req.Password)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewUserView(user))
}

func (g *Gateway) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := g.hub.DeleteUser(r.Context(), id); err != nil {
		g.sendError(w, r, err)
		return
	}
	g.logger.Info("user deleted", "user_id", id, "by", auth.MustFromContext(r.Context()).UserID)
	w.WriteHeader(http.StatusNoContent)
}
