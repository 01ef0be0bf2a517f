package client_test

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/auth"
	"github.com/cwrk-planet/huddle-service/internal/client"
	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/events"
	"github.com/cwrk-planet/huddle-service/internal/repository/repotest"
	"github.com/cwrk-planet/huddle-service/internal/repository/sqlite"
	"github.com/cwrk-planet/huddle-service/internal/service"
	grpcx "github.com/cwrk-planet/huddle-service/internal/transport/grpc"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

// startServer поднимает HuddleService на bufconn и возвращает dial-опцию к нему.
func startServer(t *testing.T) grpc.DialOption {
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
	for _, m := range []domain.MemberID{"a", "b"} {
		if err := store.Directory().GrantChannel(ctx, "general", m); err != nil {
			t.Fatalf("GrantChannel: %v", err)
		}
	}

	huddles := service.NewHuddleService(store, events.NewLocalBus(), service.HuddleConfig{})
	signals := service.NewSignalService(store, service.SignalConfig{})

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcx.UnaryServerInterceptor(nil, 0)))
	grpcx.Register(srv, grpcx.NewServer(auth.HeaderAuthenticator{}, huddles.Members(), huddles, signals, service.NewPresenceService(store)))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

func newClient(t *testing.T, dial grpc.DialOption, user string) *client.Client {
	t.Helper()
	c, err := client.New(client.Options{
		Target:      "passthrough:///bufnet",
		WorkspaceID: "ws",
		UserID:      user,
		DialOptions: []grpc.DialOption{dial},
	})
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

var general = domain.Target{Type: domain.ScopeChannel, ID: "general"}

func TestHuddleLifecycleOverGRPC(t *testing.T) {
	ctx := context.Background()
	dial := startServer(t)
	a, b := newClient(t, dial, "1"), newClient(t, dial, "2")

	if got, err := a.ActiveHuddle(ctx, general); err != nil || got != nil {
		t.Fatalf("ActiveHuddle before start = %+v, %v", got, err)
	}

	j, err := a.StartOrJoin(ctx, general)
	if err != nil {
		t.Fatalf("StartOrJoin(a): %v", err)
	}
	h := j.Session
	if j.Self != "a" {
		t.Fatalf("Self = %q", j.Self)
	}
	if !h.Active || h.Scope.ID != "general" || h.CreatedBy != "a" || h.StartedAt.IsZero() {
		t.Fatalf("huddle = %+v", h)
	}

	incoming, err := b.Incoming(ctx)
	if err != nil || len(incoming) != 1 || incoming[0].ID != h.ID {
		t.Fatalf("Incoming(b) = %+v, %v", incoming, err)
	}
	if joined, err := b.Join(ctx, h.ID); err != nil || joined.Session.ID != h.ID || joined.Self != "b" {
		t.Fatalf("Join(b) = %+v, %v", joined, err)
	}

	ps, err := b.ListParticipants(ctx, h.ID)
	if err != nil || len(ps) != 2 {
		t.Fatalf("ListParticipants = %+v, %v", ps, err)
	}
	if ps[0].MemberID != "a" || ps[0].Role != domain.RoleHost || ps[0].JoinedAt.IsZero() {
		t.Fatalf("host row = %+v", ps[0])
	}

	if err := b.End(ctx, h.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("End by participant must be Forbidden, got %v", err)
	}
	if err := a.Leave(ctx, h.ID); err != nil {
		t.Fatalf("Leave(a): %v", err)
	}
	mine, err := b.MyActiveHuddle(ctx)
	if err != nil || mine == nil || mine.ID != h.ID {
		t.Fatalf("MyActiveHuddle(b) = %+v, %v", mine, err)
	}
	if err := b.End(ctx, h.ID); err != nil {
		t.Fatalf("End by new host: %v", err)
	}
	if _, err := a.Join(ctx, h.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("joining an ended huddle must be NotFound, got %v", err)
	}
}

func TestRelayOverGRPC(t *testing.T) {
	ctx := context.Background()
	dial := startServer(t)
	a, b := newClient(t, dial, "1"), newClient(t, dial, "2")

	j, err := a.StartOrJoin(ctx, general)
	if err != nil {
		t.Fatalf("StartOrJoin: %v", err)
	}
	h := j.Session
	if _, err := b.StartOrJoin(ctx, general); err != nil {
		t.Fatalf("StartOrJoin(b): %v", err)
	}

	payloads := []string{`{"kind":"offer","sdp":"v=0"}`, `{"kind":"candidate","candidate":{"candidate":"x"}}`}
	for _, p := range payloads {
		if err := a.Send(ctx, h.ID, "b", []byte(p)); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	got, err := b.Receive(ctx, h.ID, 0)
	if err != nil || len(got) != 2 {
		t.Fatalf("Receive = %+v, %v", got, err)
	}
	for i, e := range got {
		if string(e.Payload) != payloads[i] || e.From != "a" || e.To != "b" || e.SessionID != h.ID || e.ID == "" {
			t.Fatalf("envelope %d = %+v", i, e)
		}
	}

	if err := a.Send(ctx, h.ID, "b", nil); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("empty payload must be invalid, got %v", err)
	}
	if err := b.Purge(ctx, h.ID, time.Millisecond); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("purge by non-host must be Forbidden, got %v", err)
	}
	if err := a.Purge(ctx, h.ID, time.Hour); err != nil {
		t.Fatalf("purge by host: %v", err)
	}
}

func TestAuthOverGRPC(t *testing.T) {
	ctx := context.Background()
	dial := startServer(t)

	anon := newClient(t, dial, "")
	if _, err := anon.MyActiveHuddle(ctx); err == nil || !errors.Is(err, client.ErrUpstream) {
		t.Fatalf("missing user must be rejected as upstream error, got %v", err)
	}

	stranger := newClient(t, dial, "99")
	if _, err := stranger.MyActiveHuddle(ctx); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("non-member must be Forbidden, got %v", err)
	}

	c := newClient(t, dial, "3")
	if _, err := c.StartOrJoin(ctx, general); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("no channel access must be Forbidden, got %v", err)
	}
}
