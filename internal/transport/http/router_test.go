package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/auth"
	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/events"
	"github.com/cwrk-planet/huddle-service/internal/repository/repotest"
	"github.com/cwrk-planet/huddle-service/internal/repository/sqlite"
	"github.com/cwrk-planet/huddle-service/internal/service"
	transporthttp "github.com/cwrk-planet/huddle-service/internal/transport/http"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type api struct {
	t     *testing.T
	h     http.Handler
	clock *testClock
}

// Пользователи: 1=a, 2=b, 3=c в "ws" (a и b в канале general), 5=x в "other".
func newAPI(t *testing.T, ready func(*http.Request) error) *api {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, sqlite.Config{Path: filepath.Join(t.TempDir(), "huddle.db")})
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	repotest.Seed(t, store, "ws", "a", 1)
	repotest.Seed(t, store, "ws", "b", 2)
	repotest.Seed(t, store, "ws", "c", 3)
	repotest.Seed(t, store, "other", "x", 5)
	for _, m := range []domain.MemberID{"a", "b"} {
		if err := store.Directory().GrantChannel(ctx, "general", m); err != nil {
			t.Fatalf("GrantChannel: %v", err)
		}
	}

	clock := &testClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	huddles := service.NewHuddleService(store, events.NewLocalBus(), service.HuddleConfig{Now: clock.Now})
	signals := service.NewSignalService(store, service.SignalConfig{Now: clock.Now})

	h := transporthttp.NewRouter(transporthttp.Deps{
		Handler: transporthttp.NewHandler(huddles, signals, service.NewPresenceService(store)),
		Auth:    auth.HeaderAuthenticator{},
		Members: huddles.Members(),
		Ready:   ready,
	})
	return &api{t: t, h: h, clock: clock}
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *api) do(method, path string, user int, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			a.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != 0 {
		req.Header.Set("X-User-ID", strconv.Itoa(user))
	}
	rec := httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)
	return rec
}

func data[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return env.Data
}

func errOf(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var e errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error %q: %v", rec.Body.String(), err)
	}
	return e
}

const huddles = "/v1/workspaces/ws/huddles"

func (a *api) start(user int) transporthttp.HuddleItem {
	a.t.Helper()
	rec := a.do(http.MethodPost, huddles, user, map[string]string{"scope_type": "channel", "target": "general"})
	if rec.Code != http.StatusOK {
		a.t.Fatalf("start by %d: %d %s", user, rec.Code, rec.Body.String())
	}
	return data[transporthttp.HuddleItem](a.t, rec)
}

func TestHealthz(t *testing.T) {
	a := newAPI(t, nil)
	if rec := a.do(http.MethodGet, "/healthz", 0, nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}

	down := newAPI(t, func(*http.Request) error { return errors.New("db down") })
	if rec := down.do(http.MethodGet, "/healthz", 0, nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz with failing readiness = %d", rec.Code)
	}
}

func TestAuthAndMembership(t *testing.T) {
	a := newAPI(t, nil)

	tests := []struct {
		name string
		path string
		user int
		code int
	}{
		{"no credentials", huddles + "/me", 0, http.StatusUnauthorized},
		{"member of another workspace", huddles + "/me", 5, http.StatusForbidden},
		{"unknown workspace", "/v1/workspaces/nope/huddles/me", 1, http.StatusForbidden},
		{"member", huddles + "/me", 1, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := a.do(http.MethodGet, tt.path, tt.user, nil); rec.Code != tt.code {
				t.Fatalf("got %d want %d: %s", rec.Code, tt.code, rec.Body.String())
			}
		})
	}
}

func TestStartOrJoinFlow(t *testing.T) {
	a := newAPI(t, nil)

	first := a.start(1)
	if !first.Active || first.ScopeType != "channel" || first.ScopeID != "general" || first.CreatedBy != "a" {
		t.Fatalf("unexpected huddle: %+v", first)
	}
	second := a.start(2)
	if second.ID != first.ID {
		t.Fatalf("second caller must join %s, got %s", first.ID, second.ID)
	}

	rec := a.do(http.MethodGet, huddles+"/"+first.ID+"/participants", 2, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("participants: %d", rec.Code)
	}
	ps := data[[]transporthttp.ParticipantItem](t, rec)
	if len(ps) != 2 || ps[0].MemberID != "a" || ps[0].Role != "host" || ps[1].Role != "participant" {
		t.Fatalf("participants = %+v", ps)
	}

	me := data[*transporthttp.HuddleItem](t, a.do(http.MethodGet, huddles+"/me", 2, nil))
	if me == nil || me.ID != first.ID {
		t.Fatalf("me = %+v", me)
	}

	rec = a.do(http.MethodGet, huddles+"/active?scope_type=channel&target=general", 1, nil)
	if got := data[*transporthttp.HuddleItem](t, rec); got == nil || got.ID != first.ID {
		t.Fatalf("active = %s", rec.Body.String())
	}

	if rec := a.do(http.MethodPost, huddles+"/"+first.ID+"/leave", 1, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("leave: %d", rec.Code)
	}
	ps = data[[]transporthttp.ParticipantItem](t, a.do(http.MethodGet, huddles+"/"+first.ID+"/participants", 2, nil))
	if len(ps) != 1 || ps[0].MemberID != "b" || ps[0].Role != "host" {
		t.Fatalf("host must pass to b: %+v", ps)
	}

	if rec := a.do(http.MethodPost, huddles+"/"+first.ID+"/end", 2, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("end: %d %s", rec.Code, rec.Body.String())
	}
	rec = a.do(http.MethodGet, huddles+"/active?scope_type=channel&target=general", 1, nil)
	if rec.Code != http.StatusOK || data[*transporthttp.HuddleItem](t, rec) != nil {
		t.Fatalf("no active huddle expected after end: %s", rec.Body.String())
	}
}

func TestErrorMapping(t *testing.T) {
	a := newAPI(t, nil)
	h := a.start(1)
	a.start(2)

	tests := []struct {
		name   string
		method string
		path   string
		user   int
		body   any
		code   int
		errMsg string
	}{
		{"bad scope type", http.MethodPost, huddles, 1, map[string]string{"scope_type": "room", "target": "x"}, http.StatusBadRequest, ""},
		{"missing target", http.MethodPost, huddles, 1, map[string]string{"scope_type": "channel"}, http.StatusBadRequest, ""},
		{"broken json", http.MethodPost, huddles, 1, "{", http.StatusBadRequest, ""},
		{"no channel access", http.MethodPost, huddles, 3, map[string]string{"scope_type": "channel", "target": "general"}, http.StatusForbidden, "no access to the huddle scope"},
		{"unknown counterpart", http.MethodPost, huddles, 1, map[string]string{"scope_type": "conversation", "target": "ghost"}, http.StatusNotFound, ""},
		{"join unknown huddle", http.MethodPost, huddles + "/nope/join", 1, nil, http.StatusNotFound, "huddle not found"},
		{"end by non-host", http.MethodPost, huddles + "/" + h.ID + "/end", 2, nil, http.StatusForbidden, "only the host can end this huddle"},
		{"participants without access", http.MethodGet, huddles + "/" + h.ID + "/participants", 3, nil, http.StatusForbidden, ""},
		{"active query without params", http.MethodGet, huddles + "/active", 1, nil, http.StatusBadRequest, ""},
		{"bad max age", http.MethodGet, huddles + "/" + h.ID + "/signals?max_age_ms=soon", 1, nil, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(tt.method, tt.path, tt.user, tt.body)
			if rec.Code != tt.code {
				t.Fatalf("got %d want %d: %s", rec.Code, tt.code, rec.Body.String())
			}
			if tt.errMsg != "" {
				if e := errOf(t, rec); e.Error.Message != tt.errMsg {
					t.Fatalf("message = %q want %q", e.Error.Message, tt.errMsg)
				}
			}
		})
	}
}

func TestConversationByCounterpart(t *testing.T) {
	a := newAPI(t, nil)

	rec := a.do(http.MethodPost, huddles, 1, map[string]string{"scope_type": "conversation", "target": "c"})
	if rec.Code != http.StatusOK {
		t.Fatalf("start 1:1: %d %s", rec.Code, rec.Body.String())
	}
	h := data[transporthttp.HuddleItem](t, rec)
	if h.ScopeType != "conversation" || h.ScopeID == "" || h.ScopeID == "c" {
		t.Fatalf("scope must be the canonical conversation: %+v", h)
	}

	// c видит входящий звонок и присоединяется по id беседы
	incoming := data[[]transporthttp.HuddleItem](t, a.do(http.MethodGet, huddles+"/incoming", 3, nil))
	if len(incoming) != 1 || incoming[0].ID != h.ID {
		t.Fatalf("incoming for c = %+v", incoming)
	}
	rec = a.do(http.MethodPost, huddles, 3, map[string]string{"scope_type": "conversation", "target": h.ScopeID})
	if rec.Code != http.StatusOK || data[transporthttp.HuddleItem](t, rec).ID != h.ID {
		t.Fatalf("join by conversation id: %d %s", rec.Code, rec.Body.String())
	}
	if incoming := data[[]transporthttp.HuddleItem](t, a.do(http.MethodGet, huddles+"/incoming", 3, nil)); len(incoming) != 0 {
		t.Fatalf("joined huddle is no longer incoming: %+v", incoming)
	}
}

func TestSignals(t *testing.T) {
	a := newAPI(t, nil)
	h := a.start(1)
	a.start(2)
	path := huddles + "/" + h.ID + "/signals"

	payloads := []string{`{"kind":"offer","sdp":"v=0"}`, `{"kind":"candidate","candidate":{"candidate":"c1"}}`}
	for _, p := range payloads {
		rec := a.do(http.MethodPost, path, 1, map[string]any{"to": "b", "payload": json.RawMessage(p)})
		if rec.Code != http.StatusCreated {
			t.Fatalf("send: %d %s", rec.Code, rec.Body.String())
		}
	}

	got := data[[]transporthttp.SignalItem](t, a.do(http.MethodGet, path, 2, nil))
	if len(got) != 2 || got[0].From != "a" || string(got[0].Payload) != payloads[0] || string(got[1].Payload) != payloads[1] {
		t.Fatalf("receive = %+v", got)
	}
	if mine := data[[]transporthttp.SignalItem](t, a.do(http.MethodGet, path, 1, nil)); len(mine) != 0 {
		t.Fatalf("sender must not see its own envelopes: %+v", mine)
	}

	if rec := a.do(http.MethodPost, path, 3, map[string]any{"to": "b", "payload": json.RawMessage(`{}`)}); rec.Code != http.StatusForbidden {
		t.Fatalf("non-participant send = %d", rec.Code)
	}
	if rec := a.do(http.MethodPost, path, 1, map[string]any{"to": "a", "payload": json.RawMessage(`{}`)}); rec.Code != http.StatusBadRequest {
		t.Fatalf("send to self = %d", rec.Code)
	}

	a.clock.Advance(10 * time.Second)
	if rec := a.do(http.MethodDelete, path+"?older_than_ms=5000", 2, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("purge by non-host = %d", rec.Code)
	}
	rec := a.do(http.MethodDelete, path+"?older_than_ms=5000", 1, nil)
	if rec.Code != http.StatusOK || data[transporthttp.PurgeResponse](t, rec).Deleted != 2 {
		t.Fatalf("purge by host: %d %s", rec.Code, rec.Body.String())
	}
	if left := data[[]transporthttp.SignalItem](t, a.do(http.MethodGet, path, 2, nil)); len(left) != 0 {
		t.Fatalf("purged envelopes still delivered: %+v", left)
	}
}
