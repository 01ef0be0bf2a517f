package domain

import (
	"errors"
	"testing"
	"time"
)

func TestErrorKinds(t *testing.T) {
	if !errors.Is(ErrHuddleNotFound, ErrNotFound) || ErrHuddleNotFound.Error() != "huddle not found" {
		t.Fatalf("ErrHuddleNotFound = %v", ErrHuddleNotFound)
	}
	if !errors.Is(ErrNotHost, ErrForbidden) {
		t.Fatalf("ErrNotHost must be Forbidden")
	}
	if errors.Is(ErrNotHost, ErrNotFound) {
		t.Fatalf("ErrNotHost must not be NotFound")
	}
}

func TestEarliestJoined(t *testing.T) {
	t0 := time.Unix(100, 0)
	left := t0.Add(time.Second)
	ps := []Participant{
		{MemberID: "c", JoinedAt: t0.Add(3 * time.Second)},
		{MemberID: "a", JoinedAt: t0, LeftAt: &left},
		{MemberID: "d", JoinedAt: t0.Add(2 * time.Second)},
		{MemberID: "b", JoinedAt: t0.Add(2 * time.Second)},
	}
	got, ok := EarliestJoined(ps)
	if !ok || got.MemberID != "b" {
		t.Fatalf("expected b (tie broken by id), got %+v ok=%v", got, ok)
	}

	if _, ok := EarliestJoined([]Participant{{MemberID: "a", LeftAt: &left}}); ok {
		t.Fatalf("no active participants must yield none")
	}
}

func TestOrderedPair(t *testing.T) {
	a, b := OrderedPair("m2", "m1")
	if a != "m1" || b != "m2" {
		t.Fatalf("got %s,%s", a, b)
	}
	c := Conversation{MemberA: a, MemberB: b}
	if c.Counterpart("m1") != "m2" || !c.Has("m2") || c.Has("m3") {
		t.Fatalf("conversation helpers broken: %+v", c)
	}
}
