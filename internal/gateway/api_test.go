// ABOUTME: Tests for the HTTP API: authentication, CRUD status codes, data ingestion, and engine ingest
// ABOUTME: Runs against a live gateway over httptest with an in-memory store

package gateway

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coco-gateway/internal/protocol"
	"github.com/2389/coco-gateway/internal/store"
)

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, testConfig())

	resp := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t, testConfig())

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"missing token", "/types", "", http.StatusUnauthorized},
		{"unknown user", "/types", "nobody", http.StatusUnauthorized},
		{"standard user reads", "/types", "bob", http.StatusOK},
		{"standard user on users", "/users", "bob", http.StatusForbidden},
		{"privileged user on users", "/users", "alice", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, tt.path, tt.token, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestTypesCRUD(t *testing.T) {
	env := newTestEnv(t, testConfig())

	resp := env.do(t, http.MethodPost, "/types", "bob", TypeRequest{Name: "sensor", Description: "A sensor"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeJSON[protocol.TypeView](t, resp)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "sensor", created.Name)

	resp = env.do(t, http.MethodGet, "/types/"+created.ID, "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeJSON[protocol.TypeView](t, resp)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "A sensor", got.Description)

	resp = env.do(t, http.MethodPut, "/types/"+created.ID, "bob", TypeRequest{Name: "thermometer"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "thermometer", decodeJSON[protocol.TypeView](t, resp).Name)

	resp = env.do(t, http.MethodPost, "/types", "bob", TypeRequest{Name: "thermometer"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "duplicate names are rejected")

	resp = env.do(t, http.MethodPost, "/types", "bob", TypeRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "name is required")

	resp = env.do(t, http.MethodPost, "/types", "bob", TypeRequest{Name: "child", Parents: []string{"missing"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "parents must exist")

	resp = env.do(t, http.MethodGet, "/types", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeJSON[[]protocol.TypeView](t, resp), 1)

	resp = env.do(t, http.MethodDelete, "/types/"+created.ID, "bob", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/types/"+created.ID, "bob", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBadBody(t *testing.T) {
	env := newTestEnv(t, testConfig())

	resp := env.do(t, http.MethodPost, "/types", "bob", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeJSON[map[string]string](t, resp)
	assert.Equal(t, "invalid JSON body", body["error"])
}

func TestItemsCRUD(t *testing.T) {
	env := newTestEnv(t, testConfig())

	resp := env.do(t, http.MethodPost, "/items", "bob", ItemRequest{Type: "missing", Name: "s1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "item type must exist")

	resp = env.do(t, http.MethodPost, "/types", "bob", TypeRequest{Name: "sensor"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	typ := decodeJSON[protocol.TypeView](t, resp)

	resp = env.do(t, http.MethodPost, "/items", "bob", ItemRequest{Type: typ.ID, Name: "s1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	item := decodeJSON[protocol.ItemView](t, resp)
	assert.Equal(t, typ.ID, item.Type)
	assert.Nil(t, item.Value)

	resp = env.do(t, http.MethodGet, "/items?type_id="+typ.ID, "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeJSON[[]protocol.ItemView](t, resp), 1)

	resp = env.do(t, http.MethodGet, "/items?type_id=other", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeJSON[[]protocol.ItemView](t, resp))

	resp = env.do(t, http.MethodPut, "/items/"+item.ID, "bob", ItemRequest{Type: typ.ID, Name: "s1-renamed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "s1-renamed", decodeJSON[protocol.ItemView](t, resp).Name)

	resp = env.do(t, http.MethodDelete, "/types/"+typ.ID, "bob", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "a type with items cannot be deleted")

	resp = env.do(t, http.MethodDelete, "/items/"+item.ID, "bob", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/items/"+item.ID, "bob", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/types/"+typ.ID, "bob", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRulesCRUD(t *testing.T) {
	env := newTestEnv(t, testConfig())

	resp := env.do(t, http.MethodPost, "/rules/reactive", "bob", RuleRequest{Name: "alarm", Content: "(defrule alarm)"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	rule := decodeJSON[protocol.RuleView](t, resp)

	resp = env.do(t, http.MethodGet, "/rules/reactive", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeJSON[[]protocol.RuleView](t, resp), 1)

	resp = env.do(t, http.MethodGet, "/rules/deliberative", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeJSON[[]protocol.RuleView](t, resp))

	resp = env.do(t, http.MethodGet, "/rules/deliberative/"+rule.ID, "bob", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "rule IDs are scoped by kind")

	resp = env.do(t, http.MethodGet, "/rules/bogus", "bob", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/rules/reactive/"+rule.ID, "bob", RuleRequest{Name: "alarm", Content: "(defrule alarm2)"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "(defrule alarm2)", decodeJSON[protocol.RuleView](t, resp).Content)

	resp = env.do(t, http.MethodDelete, "/rules/reactive/"+rule.ID, "bob", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestUsersAndPasswordLogin(t *testing.T) {
	env := newTestEnv(t, testConfig())

	resp := env.do(t, http.MethodPost, "/users", "alice", UserRequest{
		Username: "carol",
		Password: "s3cret-pass",
		Roots:    []string{testRoot},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	carol := decodeJSON[protocol.UserView](t, resp)
	assert.Equal(t, "standard", string(carol.Role), "role defaults to standard")

	resp = env.do(t, http.MethodPost, "/users", "alice", UserRequest{Username: "carol", Password: "x"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/login", "", LoginRequest{Username: "carol", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/login", "", LoginRequest{Username: "nobody", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/login", "", LoginRequest{Username: "carol"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/login", "", LoginRequest{Username: "carol", Password: "s3cret-pass"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decodeJSON[LoginResponse](t, resp)
	assert.Equal(t, carol.ID, login.User.ID)

	resp = env.do(t, http.MethodGet, "/types", login.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "issued token authenticates")

	resp = env.do(t, http.MethodPut, "/users/"+carol.ID, "alice", UserRequest{Username: "carol", Role: "privileged", Roots: []string{testRoot}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/users", login.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "promotion applies to the existing token")

	resp = env.do(t, http.MethodPost, "/login", "", LoginRequest{Username: "carol", Password: "s3cret-pass"})
	assert.Equal(t, http.StatusOK, resp.StatusCode, "password survives an update without one")

	resp = env.do(t, http.MethodPut, "/users/"+carol.ID, "alice", UserRequest{Username: "carol", Role: "admin"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/users/"+carol.ID, "alice", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/types", login.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "deleted users lose access")
}

func TestLogin_JWT(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
	env := newTestEnv(t, cfg)

	carol, err := env.gw.Hub().CreateUser(t.Context(), &store.User{Username: "carol", Roots: []string{testRoot}}, "s3cret-pass")
	require.NoError(t, err)

	resp := env.do(t, http.MethodPost, "/login", "", LoginRequest{Username: "carol", Password: "s3cret-pass"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decodeJSON[LoginResponse](t, resp)
	assert.NotEqual(t, carol.ID, login.Token, "tokens are signed, not bare IDs")

	resp = env.do(t, http.MethodGet, "/types", login.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Plain user IDs are not accepted once a secret is configured.
	resp = env.do(t, http.MethodGet, "/types", carol.ID, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// The same token logs in over the WebSocket.
	c := env.dial(t)
	c.send(`{"type":"login","token":"` + login.Token + `"}`)
	assert.Equal(t, true, c.next()["success"])
}

func TestLogin_RootMismatch(t *testing.T) {
	env := newTestEnv(t, testConfig())

	resp := env.do(t, http.MethodPost, "/users", "alice", UserRequest{
		Username: "mallory",
		Password: "s3cret-pass",
		Roots:    []string{"elsewhere"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/login", "", LoginRequest{Username: "mallory", Password: "guess"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "the root is not revealed without the password")

	resp = env.do(t, http.MethodPost, "/login", "", LoginRequest{Username: "mallory", Password: "s3cret-pass"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRecordData(t *testing.T) {
	env := newTestEnv(t, testConfig())

	resp := env.do(t, http.MethodPost, "/types", "bob", TypeRequest{Name: "sensor"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	typ := decodeJSON[protocol.TypeView](t, resp)
	resp = env.do(t, http.MethodPost, "/items", "bob", ItemRequest{Type: typ.ID, Name: "s1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	item := decodeJSON[protocol.ItemView](t, resp)

	resp = env.do(t, http.MethodPost, "/data/"+item.ID, "bob", DataRequest{Timestamp: 1000, Data: map[string]any{"temperature": 21.5}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	reading := decodeJSON[ReadingResponse](t, resp)
	assert.Equal(t, item.ID, reading.ItemID)
	assert.Equal(t, int64(1000), reading.Timestamp)

	resp = env.do(t, http.MethodPost, "/data/"+item.ID, "bob", DataRequest{Data: map[string]any{"temperature": 22.0}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotZero(t, decodeJSON[ReadingResponse](t, resp).Timestamp, "zero timestamp means now")

	resp = env.do(t, http.MethodGet, "/data/"+item.ID+"?from=0&to=2000", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeJSON[[]ReadingResponse](t, resp), 1)

	resp = env.do(t, http.MethodGet, "/data/"+item.ID+"?from=abc", "bob", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/items/"+item.ID, "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeJSON[protocol.ItemView](t, resp)
	require.NotNil(t, got.Value, "the latest reading becomes the item's value")
	assert.InDelta(t, 22.0, got.Value.Data["temperature"], 0.001)

	resp = env.do(t, http.MethodPost, "/data/missing", "bob", DataRequest{Data: map[string]any{}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecordData_IdempotencyKey(t *testing.T) {
	env := newTestEnv(t, testConfig())

	resp := env.do(t, http.MethodPost, "/types", "bob", TypeRequest{Name: "sensor"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	typ := decodeJSON[protocol.TypeView](t, resp)
	resp = env.do(t, http.MethodPost, "/items", "bob", ItemRequest{Type: typ.ID, Name: "s1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	item := decodeJSON[protocol.ItemView](t, resp)

	post := func(key string, ts int64) *http.Response {
		req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, env.srv.URL+"/data/"+item.ID,
			jsonReader(t, DataRequest{Timestamp: ts, Data: map[string]any{"v": ts}}))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer bob")
		req.Header.Set(IdempotencyKeyHeader, key)
		resp, err := env.srv.Client().Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	first := post("k1", 100)
	require.Equal(t, http.StatusCreated, first.StatusCode)
	second := post("k1", 200)
	require.Equal(t, http.StatusCreated, second.StatusCode)
	assert.Equal(t, int64(100), decodeJSON[ReadingResponse](t, second).Timestamp, "retry replays the first result")

	post("k2", 300)

	resp = env.do(t, http.MethodGet, "/data/"+item.ID, "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeJSON[[]ReadingResponse](t, resp), 2)

	// A key still being processed elsewhere is refused.
	env.gw.dedupe.Claim("data:" + item.ID + ":k3")
	assert.Equal(t, http.StatusConflict, post("k3", 400).StatusCode)
}

func TestRecordData_FailureReleasesKey(t *testing.T) {
	env := newTestEnv(t, testConfig())

	for range 2 {
		req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, env.srv.URL+"/data/missing",
			jsonReader(t, DataRequest{Data: map[string]any{}}))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer bob")
		req.Header.Set(IdempotencyKeyHeader, "retry-me")
		resp, err := env.srv.Client().Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
}

func TestEngineEvents(t *testing.T) {
	env := newTestEnv(t, testConfig())

	resp := env.do(t, http.MethodPost, "/engine/events", "bob", `{"type":"new_solver","id":1,"name":"s","state":"reasoning"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/engine/events", "alice", `{"type":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/engine/events", "alice", `{"type":"new_solver","id":1,"name":"s","state":"sleeping"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/engine/events", "alice", `{"type":"new_solver","id":1,"name":"s","state":"reasoning"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, decodeJSON[EngineEventsResponse](t, resp).Accepted)
}
