package service_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/events"
	"github.com/cwrk-planet/huddle-service/internal/repository"
	"github.com/cwrk-planet/huddle-service/internal/repository/repotest"
	"github.com/cwrk-planet/huddle-service/internal/repository/sqlite"
	"github.com/cwrk-planet/huddle-service/internal/service"
)

// clock ticks one millisecond per reading so every write gets a distinct time.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu  sync.Mutex
	evs []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	r.evs = append(r.evs, e)
	r.mu.Unlock()
	return nil
}

func (r *recorder) Types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.evs))
	for _, e := range r.evs {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) Last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evs[len(r.evs)-1]
}

func (r *recorder) Reset() {
	r.mu.Lock()
	r.evs = nil
	r.mu.Unlock()
}

type fixture struct {
	store    repository.Store
	clock    *clock
	pub      *recorder
	huddles  *service.HuddleService
	signals  *service.SignalService
	presence *service.PresenceService

	a, b, c, d, x *domain.Member
}

var general = domain.Target{Type: domain.ScopeChannel, ID: "general"}

func openStore(t *testing.T) repository.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), sqlite.Config{Path: filepath.Join(t.TempDir(), "huddle.db")})
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func newFixture(t *testing.T) *fixture {
	return newFixtureOn(t, openStore(t), nil)
}

// newFixtureOn seeds base and builds the services on wrap(base) when wrap is set.
func newFixtureOn(t *testing.T, base repository.Store, wrap func(repository.Store) repository.Store) *fixture {
	t.Helper()
	ctx := context.Background()

	member := func(ws domain.WorkspaceID, id domain.MemberID, user domain.UserID) *domain.Member {
		m := repotest.Seed(t, base, ws, id, user)
		return &m
	}
	f := &fixture{
		clock: &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		pub:   &recorder{},
		a:     member("ws", "a", 1),
		b:     member("ws", "b", 2),
		c:     member("ws", "c", 3),
		d:     member("ws", "d", 4),
		x:     member("other", "x", 5),
	}
	for _, m := range []*domain.Member{f.a, f.b, f.c} {
		if err := base.Directory().GrantChannel(ctx, "general", m.ID); err != nil {
			t.Fatalf("GrantChannel: %v", err)
		}
	}

	f.store = base
	if wrap != nil {
		f.store = wrap(base)
	}

	var seq atomic.Int64
	newID := func() string { return fmt.Sprintf("id-%03d", seq.Add(1)) }

	f.huddles = service.NewHuddleService(f.store, f.pub, service.HuddleConfig{
		StartRetries: 3,
		Now:          f.clock.Now,
		NewID:        newID,
	})
	f.signals = service.NewSignalService(f.store, service.SignalConfig{
		Now:   f.clock.Now,
		NewID: newID,
	})
	f.presence = service.NewPresenceService(f.store)
	return f
}

func (f *fixture) start(t *testing.T, m *domain.Member, target domain.Target) *domain.Session {
	t.Helper()
	s, err := f.huddles.StartOrJoin(context.Background(), m, target)
	if err != nil {
		t.Fatalf("StartOrJoin(%s): %v", m.ID, err)
	}
	return s
}

// roster returns member id -> role of the active participants.
func (f *fixture) roster(t *testing.T, id domain.SessionID) map[domain.MemberID]domain.Role {
	t.Helper()
	ps, err := f.huddles.Roster(context.Background(), id)
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	out := make(map[domain.MemberID]domain.Role, len(ps))
	for _, p := range ps {
		out[p.MemberID] = p.Role
	}
	return out
}

func hostsIn(r map[domain.MemberID]domain.Role) []domain.MemberID {
	var hs []domain.MemberID
	for id, role := range r {
		if role == domain.RoleHost {
			hs = append(hs, id)
		}
	}
	return hs
}
