package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/events"
	httpmw "github.com/cwrk-planet/huddle-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/huddle-service/internal/transport/ws"

	"github.com/gorilla/websocket"
)

type fakeHuddles struct{ active *domain.Session }

func (f fakeHuddles) ActiveForMember(context.Context, domain.MemberID) (*domain.Session, error) {
	return f.active, nil
}

type fakePresence struct{ incoming []domain.Session }

func (f fakePresence) Incoming(context.Context, domain.MemberID) ([]domain.Session, error) {
	return f.incoming, nil
}

type received struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg received
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestFeed(t *testing.T) {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	active := &domain.Session{ID: "h1", WorkspaceID: "ws", Scope: domain.Scope{Type: domain.ScopeChannel, ID: "general"}, StartedAt: started}
	ringing := domain.Session{ID: "h2", WorkspaceID: "ws", Scope: domain.Scope{Type: domain.ScopeConversation, ID: "conv"}, StartedAt: started}

	hub := ws.NewHub(nil)
	server := ws.NewServer(hub, fakeHuddles{active: active}, fakePresence{incoming: []domain.Session{ringing}})
	me := &domain.Member{ID: "a", WorkspaceID: "ws"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		server.ServeHTTP(w, r.WithContext(httpmw.WithMember(r.Context(), me)))
	}))
	defer srv.Close()

	conn := dial(t, srv)

	snap := read(t, conn)
	if snap.Type != ws.TypeSnapshot {
		t.Fatalf("first message = %s", snap.Type)
	}
	var p ws.SnapshotPayload
	if err := json.Unmarshal(snap.Payload, &p); err != nil {
		t.Fatalf("snapshot payload: %v", err)
	}
	if p.Active == nil || p.Active.ID != "h1" || len(p.Incoming) != 1 || p.Incoming[0].ScopeID != "conv" {
		t.Fatalf("snapshot = %+v", p)
	}
	if n := hub.Connected("a"); n != 1 {
		t.Fatalf("Connected(a) = %d", n)
	}

	// событие для другого участника не должно прийти
	hub.Dispatch(context.Background(), events.Event{Type: events.HuddleEnded, SessionID: "other", Recipients: []domain.MemberID{"b"}})
	hub.Dispatch(context.Background(), events.Event{
		Type:       events.ParticipantJoined,
		SessionID:  "h1",
		Scope:      active.Scope,
		MemberID:   "b",
		Recipients: []domain.MemberID{"a", "b"},
		At:         started,
	})

	msg := read(t, conn)
	if msg.Type != string(events.ParticipantJoined) {
		t.Fatalf("event type = %s", msg.Type)
	}
	var ev ws.EventPayload
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		t.Fatalf("event payload: %v", err)
	}
	if ev.HuddleID != "h1" || ev.MemberID != "b" || ev.ScopeID != "general" {
		t.Fatalf("event = %+v", ev)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	deadline := time.Now().Add(2 * time.Second)
	for hub.Connected("a") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("closed feed must leave the hub")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFeedRequiresMember(t *testing.T) {
	server := ws.NewServer(ws.NewHub(nil), fakeHuddles{}, fakePresence{})
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d", rec.Code)
	}
}
