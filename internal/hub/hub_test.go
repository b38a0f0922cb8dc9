// ABOUTME: Tests for the hub: login, snapshot order, broadcast audiences, and close semantics
// ABOUTME: Sessions write to in-memory transports; the store is a MockStore

package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coco-gateway/internal/auth"
	"github.com/2389/coco-gateway/internal/event"
	"github.com/2389/coco-gateway/internal/session"
	"github.com/2389/coco-gateway/internal/store"
)

const testRoot = "coco"

// recorder is a session transport that hands every written document to the test.
type recorder struct {
	frames chan string

	mu      sync.Mutex
	reasons []session.CloseReason
	gate    chan struct{} // when non-nil, writes wait for it to close
}

func newRecorder() *recorder {
	return &recorder{frames: make(chan string, 1024)}
}

func (r *recorder) Write(ctx context.Context, data []byte) error {
	r.mu.Lock()
	gate := r.gate
	r.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.frames <- string(data)
	return nil
}

func (r *recorder) Close(reason session.CloseReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
	if r.gate != nil {
		select {
		case <-r.gate:
		default:
			close(r.gate)
		}
	}
	return nil
}

func (r *recorder) closeReasons() []session.CloseReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.CloseReason(nil), r.reasons...)
}

// next returns the next written document, failing after a timeout.
func (r *recorder) next(t *testing.T) string {
	t.Helper()
	select {
	case f := <-r.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return ""
	}
}

// nextType returns the "type" of the next written document.
func (r *recorder) nextType(t *testing.T) string {
	t.Helper()
	var doc struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.next(t)), &doc))
	return doc.Type
}

// quiet asserts that nothing is written for a short while.
func (r *recorder) quiet(t *testing.T) {
	t.Helper()
	select {
	case f := <-r.frames:
		t.Fatalf("unexpected frame: %s", f)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestHub(t *testing.T) (*Hub, *store.MockStore) {
	t.Helper()
	st := store.NewMockStore()
	ctx := t.Context()
	require.NoError(t, st.CreateUser(ctx, &store.User{ID: "alice", Username: "alice", Role: store.RolePrivileged, Roots: []string{testRoot}}))
	require.NoError(t, st.CreateUser(ctx, &store.User{ID: "bob", Username: "bob", Role: store.RoleStandard, Roots: []string{testRoot}}))
	require.NoError(t, st.CreateUser(ctx, &store.User{ID: "mallory", Username: "mallory", Role: store.RoleStandard, Roots: []string{"elsewhere"}}))

	h := New(Config{Store: st, Tokens: auth.PlainTokens{}, Root: testRoot})
	runCtx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.Run(runCtx) }()
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	<-h.Ready()
	return h, st
}

func open(t *testing.T, h *Hub) (*session.Session, *recorder) {
	t.Helper()
	rec := newRecorder()
	s, err := h.Open(t.Context(), rec)
	require.NoError(t, err)
	return s, rec
}

// login opens a session for user and consumes the ack and snapshot.
func login(t *testing.T, h *Hub, user string) (*session.Session, *recorder) {
	t.Helper()
	s, rec := open(t, h)
	require.NoError(t, h.Receive(t.Context(), s.ID(), []byte(`{"type":"login","token":"`+user+`"}`)))

	ack := rec.next(t)
	assert.Contains(t, ack, `"success":true`)
	want := []string{"types", "items", "reactive_rules", "deliberative_rules", "solvers"}
	if strings.Contains(ack, `"role":"privileged"`) {
		want = append(want, "users")
	}
	for _, kind := range want {
		require.Equal(t, kind, rec.nextType(t))
	}
	return s, rec
}

func TestLogin_BadThenGood(t *testing.T) {
	h, _ := newTestHub(t)
	s, rec := open(t, h)
	ctx := t.Context()

	require.NoError(t, h.Receive(ctx, s.ID(), []byte(`{"type":"login","token":"bad"}`)))
	assert.JSONEq(t, `{"type":"login","success":false}`, rec.next(t))
	assert.False(t, s.Closed(), "a failed login leaves the session open")

	require.NoError(t, h.Receive(ctx, s.ID(), []byte(`{"type":"connect","token":"mallory"}`)))
	assert.JSONEq(t, `{"type":"connect","success":false}`, rec.next(t), "root mismatch is a failed login")

	require.NoError(t, h.Receive(ctx, s.ID(), []byte(`{"type":"login","token":"bob"}`)))
	assert.JSONEq(t, `{"type":"login","success":true,"user":{"id":"bob","username":"bob","role":"standard","roots":["coco"]}}`, rec.next(t))
	for _, kind := range []string{"types", "items", "reactive_rules", "deliberative_rules", "solvers"} {
		assert.Equal(t, kind, rec.nextType(t))
	}
	rec.quiet(t)

	require.NoError(t, h.Receive(ctx, s.ID(), []byte(`{"type":"login","token":"bob"}`)))
	assert.JSONEq(t, `{"type":"error","message":"session already authenticated"}`, rec.next(t))
}

func TestReceive_ProtocolViolation(t *testing.T) {
	h, _ := newTestHub(t)

	for _, doc := range []string{`[]`, `"login"`, `{"type":"login"}`, `{"token":"x"}`, `{"type":1,"token":"x"}`, `not json`} {
		s, rec := open(t, h)
		err := h.Receive(t.Context(), s.ID(), []byte(doc))
		require.Error(t, err, doc)
		<-s.Done()
		assert.Equal(t, []session.CloseReason{session.ReasonProtocolViolation}, rec.closeReasons(), doc)
	}
}

func TestReceive_UnknownTypeKeepsSessionOpen(t *testing.T) {
	h, _ := newTestHub(t)
	s, rec := login(t, h, "bob")

	require.NoError(t, h.Receive(t.Context(), s.ID(), []byte(`{"type":"subscribe","token":"bob"}`)))
	assert.JSONEq(t, `{"type":"error","message":"unsupported request type \"subscribe\""}`, rec.next(t))
	assert.False(t, s.Closed())
}

func TestScenario_AliceAndBob(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := t.Context()

	_, alice := login(t, h, "alice")
	bobSession, bob := login(t, h, "bob")
	assert.JSONEq(t, `{"type":"user_connected","id":"bob"}`, alice.next(t))

	created, err := h.CreateType(ctx, &store.Type{Name: "sensor", Description: "T1"})
	require.NoError(t, err)

	fromAlice, fromBob := alice.next(t), bob.next(t)
	assert.Equal(t, fromAlice, fromBob, "every recipient gets identical bytes")
	assert.JSONEq(t, `{"type":"new_type","new_type":{"id":"`+created.ID+`","name":"sensor","description":"T1"}}`, fromAlice)

	require.NoError(t, h.Disconnect(ctx, bobSession.ID(), session.ReasonNormal))
	require.NoError(t, h.Disconnect(ctx, bobSession.ID(), session.ReasonNormal))
	assert.JSONEq(t, `{"type":"user_disconnected","id":"bob"}`, alice.next(t))
	alice.quiet(t)

	_, err = h.Check(ctx, bobSession.ID(), store.RoleStandard)
	assert.ErrorIs(t, err, auth.ErrMissingCredential)
}

func TestAudienceIsolation(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := t.Context()

	_, alice := login(t, h, "alice")
	_, bob := login(t, h, "bob")
	require.Equal(t, "user_connected", alice.nextType(t))

	carol, err := h.CreateUser(ctx, &store.User{Username: "carol", Roots: []string{testRoot}}, "")
	require.NoError(t, err)
	carol.Data = map[string]any{"team": "ops"}
	_, err = h.UpdateUser(ctx, carol, "")
	require.NoError(t, err)
	require.NoError(t, h.DeleteUser(ctx, carol.ID))

	assert.Equal(t, "new_user", alice.nextType(t))
	assert.Equal(t, "updated_user", alice.nextType(t))
	assert.Equal(t, "deleted_user", alice.nextType(t))

	// The first thing bob sees after the user churn is a public change.
	_, err = h.CreateType(ctx, &store.Type{Name: "marker"})
	require.NoError(t, err)
	assert.Equal(t, "new_type", bob.nextType(t))
	assert.Equal(t, "new_type", alice.nextType(t))
}

func TestRoleChangeAppliesToLiveSession(t *testing.T) {
	h, st := newTestHub(t)
	ctx := t.Context()

	bobSession, bob := login(t, h, "bob")
	_, err := h.Check(ctx, bobSession.ID(), store.RolePrivileged)
	assert.ErrorIs(t, err, auth.ErrInsufficientRole)

	u, err := st.GetUser(ctx, "bob")
	require.NoError(t, err)
	u.Role = store.RolePrivileged
	_, err = h.UpdateUser(ctx, u, "")
	require.NoError(t, err)

	assert.Equal(t, "updated_user", bob.nextType(t), "promotion applies before the notification")
	userID, err := h.Check(ctx, bobSession.ID(), store.RolePrivileged)
	require.NoError(t, err)
	assert.Equal(t, "bob", userID)
}

func TestDeleteUserClosesSession(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := t.Context()

	_, alice := login(t, h, "alice")
	bobSession, bob := login(t, h, "bob")
	require.Equal(t, "user_connected", alice.nextType(t))

	require.NoError(t, h.DeleteUser(ctx, "bob"))
	assert.JSONEq(t, `{"type":"deleted_user","id":"bob"}`, alice.next(t))
	<-bobSession.Done()
	assert.Equal(t, []session.CloseReason{session.ReasonUserDeleted}, bob.closeReasons())
	alice.quiet(t)
}

func TestSecondLoginReplacesSession(t *testing.T) {
	h, _ := newTestHub(t)

	_, alice := login(t, h, "alice")
	first, firstRec := login(t, h, "bob")
	require.Equal(t, "user_connected", alice.nextType(t))

	login(t, h, "bob")
	<-first.Done()
	assert.Equal(t, []session.CloseReason{session.ReasonReplaced}, firstRec.closeReasons())
	alice.quiet(t)
}

// newBufferedHub starts a hub with a small outbound buffer and no root. Alice
// and carol are privileged, bob is standard.
func newBufferedHub(t *testing.T, buffer int) *Hub {
	t.Helper()
	st := store.NewMockStore()
	ctx := t.Context()
	require.NoError(t, st.CreateUser(ctx, &store.User{ID: "alice", Username: "alice", Role: store.RolePrivileged}))
	require.NoError(t, st.CreateUser(ctx, &store.User{ID: "bob", Username: "bob", Role: store.RoleStandard}))
	require.NoError(t, st.CreateUser(ctx, &store.User{ID: "carol", Username: "carol", Role: store.RolePrivileged}))

	h := New(Config{Store: st, OutboundBuffer: buffer, WriteTimeout: time.Minute})
	runCtx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.Run(runCtx) }()
	t.Cleanup(func() { cancel(); <-h.Done() })
	<-h.Ready()
	return h
}

// stall makes every later write on r block until the session closes.
func (r *recorder) stall() {
	r.mu.Lock()
	r.gate = make(chan struct{})
	r.mu.Unlock()
}

// kindsUntil reads documents until one of type kind and returns every type seen.
func (r *recorder) kindsUntil(t *testing.T, kind string) []string {
	t.Helper()
	var seen []string
	for {
		k := r.nextType(t)
		seen = append(seen, k)
		if k == kind {
			return seen
		}
	}
}

func TestOverflowDropsOnlySlowSession(t *testing.T) {
	h := newBufferedHub(t, 16)

	_, alice := login(t, h, "alice")
	bobSession, bob := login(t, h, "bob")
	require.Equal(t, "user_connected", alice.nextType(t))

	bob.stall()

	// Pace the ticks on alice so only bob's queue can fill.
	disconnects := 0
	for i := 0; i < 40; i++ {
		h.Handle(event.Tick{SolverID: 1, Time: event.Rational{Num: int64(i), Den: 1}})
		for {
			kind := alice.nextType(t)
			if kind == "user_disconnected" {
				disconnects++
				continue
			}
			require.Equal(t, "tick", kind)
			break
		}
	}
	<-bobSession.Done()
	assert.Equal(t, []session.CloseReason{session.ReasonOverflow}, bob.closeReasons())

	if disconnects == 0 {
		assert.Equal(t, "user_disconnected", alice.nextType(t))
		disconnects++
	}
	assert.Equal(t, 1, disconnects)
	alice.quiet(t)
}

func TestOverflowKeepsOrderAcrossRecipients(t *testing.T) {
	h := newBufferedHub(t, 16)

	// Open order is alice, bob, carol, so the slow session sits mid fan-out.
	_, alice := login(t, h, "alice")
	bobSession, bob := login(t, h, "bob")
	require.Equal(t, "user_connected", alice.nextType(t))
	_, carol := login(t, h, "carol")
	require.Equal(t, "user_connected", alice.nextType(t))

	bob.stall()

	var aliceSeen, carolSeen []string
	for i := 0; i < 40; i++ {
		h.Handle(event.Tick{SolverID: 1, Time: event.Rational{Num: int64(i), Den: 1}})
		aliceSeen = append(aliceSeen, alice.kindsUntil(t, "tick")...)
		carolSeen = append(carolSeen, carol.kindsUntil(t, "tick")...)
	}
	<-bobSession.Done()
	assert.Equal(t, []session.CloseReason{session.ReasonOverflow}, bob.closeReasons())

	h.Handle(event.Tick{SolverID: 1, Time: event.Rational{Num: 40, Den: 1}})
	aliceSeen = append(aliceSeen, alice.kindsUntil(t, "tick")...)
	carolSeen = append(carolSeen, carol.kindsUntil(t, "tick")...)

	assert.Equal(t, aliceSeen, carolSeen, "every privileged session sees one order")
	disconnects := 0
	for _, k := range aliceSeen {
		if k == "user_disconnected" {
			disconnects++
		}
	}
	assert.Equal(t, 1, disconnects)
	alice.quiet(t)
	carol.quiet(t)
}

func TestLoginSnapshotLargerThanBuffer(t *testing.T) {
	h := newBufferedHub(t, 4)
	for i := range 10 {
		h.Handle(event.SolverCreated{SolverID: uint64(i + 1), Name: "s", State: event.ExecReasoning})
	}

	s, rec := open(t, h)
	require.NoError(t, h.Receive(t.Context(), s.ID(), []byte(`{"type":"login","token":"bob"}`)))

	assert.Contains(t, rec.next(t), `"success":true`)
	for _, kind := range []string{"types", "items", "reactive_rules", "deliberative_rules", "solvers"} {
		require.Equal(t, kind, rec.nextType(t))
	}
	for range 10 {
		require.Equal(t, "solver_state", rec.nextType(t))
		require.Equal(t, "solver_graph", rec.nextType(t))
	}
	assert.False(t, s.Closed(), "a large snapshot is not an overflow")
	assert.Empty(t, rec.closeReasons())

	h.Handle(event.Tick{SolverID: 1, Time: event.Rational{Num: 1, Den: 1}})
	assert.Equal(t, "tick", rec.nextType(t))
}

func TestFailedMutationDoesNotBroadcast(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := t.Context()
	_, bob := login(t, h, "bob")

	err := h.DeleteType(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = h.CreateItem(ctx, &store.Item{Name: "orphan", TypeID: "missing"})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = h.CreateType(ctx, &store.Type{Name: "dup"})
	require.NoError(t, err)
	require.Equal(t, "new_type", bob.nextType(t))
	_, err = h.CreateType(ctx, &store.Type{Name: "dup"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
	bob.quiet(t)
}

func TestEventsArriveInMutationOrder(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := t.Context()
	_, bob := login(t, h, "bob")

	typ, err := h.CreateType(ctx, &store.Type{Name: "bus"})
	require.NoError(t, err)
	item, err := h.CreateItem(ctx, &store.Item{Name: "b1", TypeID: typ.ID})
	require.NoError(t, err)
	_, err = h.RecordData(ctx, &store.Reading{ItemID: item.ID, Timestamp: 42, Data: map[string]any{"speed": 3.0}})
	require.NoError(t, err)
	h.Handle(event.SolverCreated{SolverID: 7, Name: "plan", State: event.ExecReasoning})
	_, err = h.CreateRule(ctx, &store.Rule{Kind: store.RuleDeliberative, Name: "goal", Content: "goal g {}"})
	require.NoError(t, err)
	require.NoError(t, h.DeleteItem(ctx, item.ID))

	var kinds []string
	for range 6 {
		kinds = append(kinds, bob.nextType(t))
	}
	assert.Equal(t, []string{"new_type", "new_item", "new_data", "new_solver", "new_deliberative_rule", "deleted_item"}, kinds)
}

func TestEngineEvents(t *testing.T) {
	h, _ := newTestHub(t)
	_, bob := login(t, h, "bob")

	h.Handle(event.SolverCreated{SolverID: 1, Name: "s", State: event.ExecReasoning})
	h.Handle(event.FlawCreated{SolverID: 1, Flaw: event.Flaw{ID: "f0", State: event.GraphActive, Cost: event.Rational{Num: 1, Den: 1}}})
	h.Handle(event.ResolverCreated{SolverID: 1, Resolver: event.Resolver{ID: "r0", Flaw: "f0", State: event.GraphActive, IntrinsicCost: event.Rational{Num: 1, Den: 1}}})
	h.Handle(event.FlawPositionChanged{SolverID: 1, FlawID: "f0", Position: 2})
	h.Handle(event.StateChanged{SolverID: 1, State: map[string]any{"atoms": []any{}}, Time: event.Rational{Num: 0, Den: 1}})
	h.Handle(event.Actions{SolverID: 1, Phase: event.PhaseStart, Tasks: []string{"t1"}})

	assert.JSONEq(t, `{"type":"new_solver","id":1,"name":"s","state":"reasoning"}`, bob.next(t))
	assert.JSONEq(t, `{"type":"flaw_created","solver_id":1,"id":"f0","causes":[],"phi":"","state":"active","cost":{"num":1,"den":1},"pos":0}`, bob.next(t))
	assert.JSONEq(t, `{"type":"resolver_created","solver_id":1,"id":"r0","preconditions":[],"flaw":"f0","rho":"","state":"active","intrinsic_cost":{"num":1,"den":1}}`, bob.next(t))
	assert.JSONEq(t, `{"type":"flaw_position_changed","solver_id":1,"id":"f0","position":2}`, bob.next(t))
	assert.JSONEq(t, `{"type":"solver_state","id":1,"atoms":[],"time":{"num":0,"den":1},"executing_tasks":[]}`, bob.next(t))
	assert.JSONEq(t, `{"type":"solver_graph","id":1,"flaws":[{"id":"f0","causes":[],"phi":"","state":"active","cost":{"num":1,"den":1},"pos":2}],"resolvers":[{"id":"r0","preconditions":[],"flaw":"f0","rho":"","state":"active","intrinsic_cost":{"num":1,"den":1}}]}`, bob.next(t))
	assert.JSONEq(t, `{"type":"start","id":1,"tasks":["t1"]}`, bob.next(t))
}

func TestSnapshot_Golden(t *testing.T) {
	h, st := newTestHub(t)
	ctx := t.Context()

	require.NoError(t, st.CreateType(ctx, &store.Type{ID: "T1", Name: "sensor", Description: "A sensor", DynamicProperties: map[string]any{"temperature": "float"}}))
	require.NoError(t, st.CreateItem(ctx, &store.Item{ID: "I1", TypeID: "T1", Name: "s1"}))
	require.NoError(t, st.AddReading(ctx, &store.Reading{ItemID: "I1", Timestamp: 1000, Data: map[string]any{"temperature": 21.5}}))
	require.NoError(t, st.CreateRule(ctx, &store.Rule{ID: "R1", Kind: store.RuleReactive, Name: "r", Content: "(defrule r)"}))

	h.Handle(event.SolverCreated{SolverID: 1, Name: "city", State: event.ExecReasoning})
	h.Handle(event.FlawCreated{SolverID: 1, Flaw: event.Flaw{ID: "f0", Phi: "b0", State: event.GraphActive, Cost: event.Rational{Num: 1, Den: 1}}})
	h.Handle(event.ResolverCreated{SolverID: 1, Resolver: event.Resolver{ID: "r0", Flaw: "f0", Rho: "b1", State: event.GraphActive, IntrinsicCost: event.Rational{Num: 1, Den: 1}}})
	h.Handle(event.CurrentFlaw{SolverID: 1, FlawID: "f0"})
	h.Handle(event.StateChanged{SolverID: 1, State: map[string]any{"atoms": []any{}}, Time: event.Rational{Num: 0, Den: 1}})

	s, rec := open(t, h)
	require.NoError(t, h.Receive(ctx, s.ID(), []byte(`{"type":"login","token":"bob"}`)))

	var buf bytes.Buffer
	for range 8 {
		buf.WriteString(rec.next(t))
		buf.WriteByte('\n')
	}
	rec.quiet(t)

	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "snapshot_standard", buf.Bytes())
}

func TestAuthorize(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := t.Context()

	ac, err := h.Authorize(ctx, "alice", store.RolePrivileged)
	require.NoError(t, err)
	assert.Equal(t, "alice", ac.UserID)
	assert.True(t, ac.IsPrivileged())

	_, err = h.Authorize(ctx, "bob", store.RolePrivileged)
	assert.ErrorIs(t, err, auth.ErrInsufficientRole)

	_, err = h.Authorize(ctx, "nobody", store.RoleStandard)
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)

	_, err = h.Authorize(ctx, "mallory", store.RoleStandard)
	assert.ErrorIs(t, err, auth.ErrRootMismatch)

	_, err = h.Authorize(ctx, "", store.RoleStandard)
	assert.ErrorIs(t, err, auth.ErrMissingCredential)
}

func TestLoginWithPassword(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := t.Context()

	_, err := h.CreateUser(ctx, &store.User{Username: "dana", Roots: []string{testRoot}}, "s3cret")
	require.NoError(t, err)

	token, user, err := h.Login(ctx, "dana", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, token, "plain tokens carry the user ID")

	_, _, err = h.Login(ctx, "dana", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)
	_, _, err = h.Login(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)
}

func TestLoginWithPassword_RootCheckedAfterPassword(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := t.Context()

	_, err := h.CreateUser(ctx, &store.User{Username: "erin", Roots: []string{"elsewhere"}}, "s3cret")
	require.NoError(t, err)

	_, _, err = h.Login(ctx, "erin", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredential, "a wrong password must look like an unknown user")
	assert.NotErrorIs(t, err, auth.ErrRootMismatch)

	_, _, err = h.Login(ctx, "erin", "s3cret")
	assert.ErrorIs(t, err, auth.ErrRootMismatch)
}

func TestStoppedHub(t *testing.T) {
	h := New(Config{Store: store.NewMockStore()})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.Run(ctx) }()
	<-h.Ready()
	assert.True(t, h.Running())

	cancel()
	<-h.Done()
	assert.False(t, h.Running())

	_, err := h.ListTypes(t.Context())
	assert.True(t, errors.Is(err, ErrStopped))
	h.Handle(event.Tick{SolverID: 1})
}
