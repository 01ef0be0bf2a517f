package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/service"
)

func TestSignal_SendReceiveOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.start(t, f.a, general)
	f.start(t, f.b, general)

	for _, p := range []string{"offer", "cand-1", "cand-2"} {
		if _, err := f.signals.Send(ctx, s.ID, "a", "b", []byte(p)); err != nil {
			t.Fatalf("Send(%s): %v", p, err)
		}
	}
	if _, err := f.signals.Send(ctx, s.ID, "b", "a", []byte("answer")); err != nil {
		t.Fatalf("Send(answer): %v", err)
	}

	got, err := f.signals.Receive(ctx, s.ID, "b", 0)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d envelopes, want 3", len(got))
	}
	for i, want := range []string{"offer", "cand-1", "cand-2"} {
		if string(got[i].Payload) != want || got[i].From != "a" || got[i].ID == "" {
			t.Fatalf("envelope %d = %+v", i, got[i])
		}
	}

	// чтение не потребляет конверты
	again, _ := f.signals.Receive(ctx, s.ID, "b", 0)
	if len(again) != 3 {
		t.Fatalf("second read returned %d envelopes", len(again))
	}
}

func TestSignal_ReadWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.start(t, f.a, general)
	f.start(t, f.b, general)

	if _, err := f.signals.Send(ctx, s.ID, "a", "b", []byte("old")); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(31 * time.Second)
	if _, err := f.signals.Send(ctx, s.ID, "a", "b", []byte("new")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		maxAge time.Duration
		want   int
	}{
		{"default window", 0, 1},
		{"wide window", time.Minute, 2},
		{"narrow window", time.Nanosecond, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.signals.Receive(ctx, s.ID, "b", tt.maxAge)
			if err != nil {
				t.Fatalf("Receive: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d envelopes, want %d", len(got), tt.want)
			}
		})
	}
}

func TestSignal_SendRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.start(t, f.a, general)

	tests := []struct {
		name    string
		id      domain.SessionID
		from    domain.MemberID
		to      domain.MemberID
		payload string
		want    error
	}{
		{"to self", s.ID, "a", "a", "x", domain.ErrInvalid},
		{"empty payload", s.ID, "a", "b", "", domain.ErrInvalid},
		{"not a participant", s.ID, "c", "a", "x", domain.ErrForbidden},
		{"unknown huddle", "missing", "a", "b", "x", domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.signals.Send(ctx, tt.id, tt.from, tt.to, []byte(tt.payload))
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}

	if err := f.huddles.End(ctx, f.a, s.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.signals.Send(ctx, s.ID, "a", "b", []byte("x")); !errors.Is(err, domain.ErrHuddleNotFound) {
		t.Fatalf("send into ended huddle: got %v", err)
	}
}

func TestSignal_Purge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.start(t, f.a, general)
	f.start(t, f.b, general)

	if _, err := f.signals.Send(ctx, s.ID, "a", "b", []byte("stale")); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(2 * time.Minute)
	if _, err := f.signals.Send(ctx, s.ID, "a", "b", []byte("fresh")); err != nil {
		t.Fatal(err)
	}

	if _, err := f.signals.PurgeAsHost(ctx, s.ID, "b", 0); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("non-host purge: got %v", err)
	}
	n, err := f.signals.PurgeAsHost(ctx, s.ID, "a", 0)
	if err != nil || n != 1 {
		t.Fatalf("PurgeAsHost = %d, %v", n, err)
	}
	left, _ := f.signals.Receive(ctx, s.ID, "b", time.Hour)
	if len(left) != 1 || string(left[0].Payload) != "fresh" {
		t.Fatalf("after purge = %+v", left)
	}
}

func TestCleaner_RunOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.start(t, f.a, general)
	f.start(t, f.b, general)

	if _, err := f.signals.Send(ctx, s.ID, "b", "a", []byte("offer")); err != nil {
		t.Fatal(err)
	}
	c, err := service.NewCleaner(f.signals, "@every 1m", nil)
	if err != nil {
		t.Fatalf("NewCleaner: %v", err)
	}

	if n, err := c.RunOnce(ctx); err != nil || n != 0 {
		t.Fatalf("fresh envelopes purged: %d, %v", n, err)
	}
	f.clock.Advance(61 * time.Second)
	if n, err := c.RunOnce(ctx); err != nil || n != 1 {
		t.Fatalf("RunOnce = %d, %v", n, err)
	}
}

func TestCleaner_BadSchedule(t *testing.T) {
	if _, err := service.NewCleaner(nil, "every now and then", nil); err == nil {
		t.Fatal("expected a schedule parse error")
	}
}
