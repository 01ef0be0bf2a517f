// Package repotest holds the behaviour every repository.Store must share,
// run against each backing database from its own package tests.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/repository"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Seed inserts a workspace member and returns it.
func Seed(t *testing.T, s repository.Store, ws domain.WorkspaceID, id domain.MemberID, user domain.UserID) domain.Member {
	t.Helper()
	m := domain.Member{ID: id, WorkspaceID: ws, UserID: user, DisplayName: string(id), CreatedAt: base}
	if err := s.Directory().AddMember(context.Background(), &m); err != nil {
		t.Fatalf("AddMember(%s): %v", id, err)
	}
	return m
}

func Run(t *testing.T, open func(t *testing.T) repository.Store) {
	t.Run("ActiveScopeUnique", func(t *testing.T) { testActiveScopeUnique(t, open(t)) })
	t.Run("ParticipantLifecycle", func(t *testing.T) { testParticipantLifecycle(t, open(t)) })
	t.Run("SignalOrderingAndPurge", func(t *testing.T) { testSignals(t, open(t)) })
	t.Run("Directory", func(t *testing.T) { testDirectory(t, open(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, open(t)) })
}

func newSession(id string, scope domain.Scope) *domain.Session {
	return &domain.Session{
		ID:          domain.SessionID(id),
		WorkspaceID: "ws",
		Scope:       scope,
		CreatedBy:   "m1",
		Active:      true,
		CreatedAt:   base,
		StartedAt:   base,
	}
}

func testActiveScopeUnique(t *testing.T, s repository.Store) {
	ctx := context.Background()
	scope := domain.Scope{Type: domain.ScopeChannel, ID: "general"}
	h := s.Huddles()

	if err := h.CreateSession(ctx, newSession("s1", scope)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	err := h.CreateSession(ctx, newSession("s2", scope))
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("second active session must conflict, got %v", err)
	}

	got, err := h.ActiveByScope(ctx, scope)
	if err != nil || got.ID != "s1" || !got.Active {
		t.Fatalf("ActiveByScope = %+v, %v", got, err)
	}

	if err := h.EndSession(ctx, "s1", base.Add(time.Minute)); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if err := h.EndSession(ctx, "s1", base.Add(time.Minute)); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("ending an inactive session must be NotFound, got %v", err)
	}
	if _, err := h.ActiveByScope(ctx, scope); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected no active session, got %v", err)
	}

	ended, err := h.GetSession(ctx, "s1")
	if err != nil || ended.Active || ended.EndedAt == nil || !ended.EndedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("ended session = %+v, %v", ended, err)
	}

	// после завершения scope снова свободен
	if err := h.CreateSession(ctx, newSession("s2", scope)); err != nil {
		t.Fatalf("CreateSession after end: %v", err)
	}

	other := domain.Scope{Type: domain.ScopeConversation, ID: "general"}
	if err := h.CreateSession(ctx, newSession("s3", other)); err != nil {
		t.Fatalf("same id under another scope type must not conflict: %v", err)
	}

	list, err := h.ActiveByScopes(ctx, []domain.Scope{scope, other, {Type: domain.ScopeChannel, ID: "nope"}})
	if err != nil || len(list) != 2 {
		t.Fatalf("ActiveByScopes = %+v, %v", list, err)
	}
}

func testParticipantLifecycle(t *testing.T, s repository.Store) {
	ctx := context.Background()
	Seed(t, s, "ws", "m1", 1)
	Seed(t, s, "ws", "m2", 2)
	h := s.Huddles()

	scope := domain.Scope{Type: domain.ScopeChannel, ID: "c1"}
	if err := h.CreateSession(ctx, newSession("s1", scope)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	p1 := &domain.Participant{SessionID: "s1", MemberID: "m1", Role: domain.RoleHost, JoinedAt: base.Add(2 * time.Second)}
	p2 := &domain.Participant{SessionID: "s1", MemberID: "m2", Role: domain.RoleParticipant, JoinedAt: base.Add(time.Second)}
	for _, p := range []*domain.Participant{p1, p2} {
		if err := h.InsertParticipant(ctx, p); err != nil {
			t.Fatalf("InsertParticipant: %v", err)
		}
	}
	if err := h.InsertParticipant(ctx, p1); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("duplicate participant row must conflict, got %v", err)
	}

	list, err := h.ListParticipants(ctx, "s1", true)
	if err != nil || len(list) != 2 || list[0].MemberID != "m2" {
		t.Fatalf("ListParticipants must order by joined_at: %+v, %v", list, err)
	}

	left := base.Add(time.Minute)
	p2.LeftAt = &left
	if err := h.UpdateParticipant(ctx, p2); err != nil {
		t.Fatalf("UpdateParticipant: %v", err)
	}
	active, _ := h.ListParticipants(ctx, "s1", true)
	all, _ := h.ListParticipants(ctx, "s1", false)
	if len(active) != 1 || len(all) != 2 {
		t.Fatalf("active=%d all=%d", len(active), len(all))
	}

	got, err := h.GetParticipant(ctx, "s1", "m2")
	if err != nil || got.LeftAt == nil || !got.LeftAt.Equal(left) {
		t.Fatalf("GetParticipant = %+v, %v", got, err)
	}
	if _, err := h.GetParticipant(ctx, "s1", "m9"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing participant must be NotFound, got %v", err)
	}

	mine, err := h.ActiveForMember(ctx, "m1")
	if err != nil || len(mine) != 1 || mine[0].ID != "s1" {
		t.Fatalf("ActiveForMember(m1) = %+v, %v", mine, err)
	}
	if mine, _ := h.ActiveForMember(ctx, "m2"); len(mine) != 0 {
		t.Fatalf("left member must have no active huddle: %+v", mine)
	}
}

func testSignals(t *testing.T, s repository.Store) {
	ctx := context.Background()
	sig := s.Signals()

	for i := 0; i < 5; i++ {
		e := &domain.SignalEnvelope{
			ID:        fmt.Sprintf("e%d", i),
			SessionID: "s1",
			From:      "m1",
			To:        "m2",
			Payload:   []byte(fmt.Sprintf(`{"n":%d}`, i)),
			// одинаковое время у пары соседей — порядок держит seq
			CreatedAt: base.Add(time.Duration(i/2) * time.Second),
		}
		if err := sig.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if e.Seq == 0 {
			t.Fatalf("Append must assign seq")
		}
	}
	if err := sig.Append(ctx, &domain.SignalEnvelope{ID: "x", SessionID: "s1", From: "m2", To: "m1", Payload: []byte("{}"), CreatedAt: base}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := sig.ListFor(ctx, "s1", "m2", base.Add(-time.Second))
	if err != nil || len(got) != 5 {
		t.Fatalf("ListFor = %d, %v", len(got), err)
	}
	for i, e := range got {
		if e.ID != fmt.Sprintf("e%d", i) {
			t.Fatalf("position %d holds %s", i, e.ID)
		}
	}

	got, _ = sig.ListFor(ctx, "s1", "m2", base)
	if len(got) != 3 {
		t.Fatalf("window must exclude envelopes at or before since: got %d", len(got))
	}

	// часы инстансов расходятся: порядок отправки держит seq
	for i, at := range []time.Time{base.Add(2 * time.Second), base.Add(time.Second)} {
		e := &domain.SignalEnvelope{ID: fmt.Sprintf("k%d", i), SessionID: "skew", From: "m1", To: "m2", Payload: []byte("{}"), CreatedAt: at}
		if err := sig.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, err = sig.ListFor(ctx, "skew", "m2", base)
	if err != nil || len(got) != 2 || got[0].ID != "k0" || got[1].ID != "k1" {
		t.Fatalf("skewed clocks must not reorder sends: %+v, %v", got, err)
	}

	n, err := sig.PurgeSession(ctx, "s1", base.Add(time.Second))
	if err != nil || n != 3 {
		t.Fatalf("PurgeSession = %d, %v", n, err)
	}
	n, err = sig.PurgeBefore(ctx, base.Add(time.Hour))
	if err != nil || n != 5 {
		t.Fatalf("PurgeBefore = %d, %v", n, err)
	}
}

func testDirectory(t *testing.T, s repository.Store) {
	ctx := context.Background()
	d := s.Directory()
	Seed(t, s, "ws", "m1", 1)
	Seed(t, s, "ws", "m2", 2)

	m, err := d.MemberByUser(ctx, "ws", 2)
	if err != nil || m.ID != "m2" {
		t.Fatalf("MemberByUser = %+v, %v", m, err)
	}
	if _, err := d.MemberByUser(ctx, "other", 2); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("member of another workspace must be NotFound, got %v", err)
	}

	if err := d.GrantChannel(ctx, "c1", "m1"); err != nil {
		t.Fatalf("GrantChannel: %v", err)
	}
	if err := d.GrantChannel(ctx, "c1", "m1"); err != nil {
		t.Fatalf("GrantChannel must be idempotent: %v", err)
	}
	if ok, err := d.HasChannelAccess(ctx, "m1", "c1"); err != nil || !ok {
		t.Fatalf("HasChannelAccess(m1) = %v, %v", ok, err)
	}
	if ok, _ := d.HasChannelAccess(ctx, "m2", "c1"); ok {
		t.Fatalf("m2 must not have access")
	}

	c := &domain.Conversation{ID: "conv1", WorkspaceID: "ws", MemberA: "m2", MemberB: "m1", CreatedAt: base}
	if err := d.CreateConversation(ctx, c); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if c.MemberA != "m1" || c.MemberB != "m2" {
		t.Fatalf("pair must be stored ordered: %+v", c)
	}
	dup := &domain.Conversation{ID: "conv2", WorkspaceID: "ws", MemberA: "m1", MemberB: "m2", CreatedAt: base}
	if err := d.CreateConversation(ctx, dup); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("duplicate pair must conflict, got %v", err)
	}
	found, err := d.FindConversation(ctx, "ws", "m2", "m1")
	if err != nil || found.ID != "conv1" {
		t.Fatalf("FindConversation = %+v, %v", found, err)
	}

	scopes, err := d.ListMemberScopes(ctx, "m1")
	if err != nil || len(scopes) != 2 {
		t.Fatalf("ListMemberScopes = %+v, %v", scopes, err)
	}
	members, err := d.ListScopeMembers(ctx, domain.Scope{Type: domain.ScopeConversation, ID: "conv1"})
	if err != nil || len(members) != 2 {
		t.Fatalf("ListScopeMembers = %+v, %v", members, err)
	}

	if err := d.RemoveMember(ctx, "m1"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if ok, _ := d.HasChannelAccess(ctx, "m1", "c1"); ok {
		t.Fatalf("channel access must cascade on member removal")
	}
}

func testTxRollback(t *testing.T, s repository.Store) {
	ctx := context.Background()
	scope := domain.Scope{Type: domain.ScopeChannel, ID: "rb"}
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Huddles().CreateSession(ctx, newSession("s-rb", scope)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx must return fn error, got %v", err)
	}
	if _, err := s.Huddles().GetSession(ctx, "s-rb"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("rolled back session must not exist, got %v", err)
	}

	err = s.InTx(ctx, func(tx repository.Tx) error {
		return tx.Huddles().CreateSession(ctx, newSession("s-ok", scope))
	})
	if err != nil {
		t.Fatalf("InTx commit: %v", err)
	}
	if _, err := s.Huddles().GetSession(ctx, "s-ok"); err != nil {
		t.Fatalf("committed session missing: %v", err)
	}
}
