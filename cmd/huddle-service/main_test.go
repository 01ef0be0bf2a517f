package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwrk-planet/huddle-service/config"
	"github.com/cwrk-planet/huddle-service/internal/auth"
	"github.com/cwrk-planet/huddle-service/internal/events"
)

func TestPeerToken(t *testing.T) {
	cfg := config.Auth{Mode: config.AuthModeJWT, Secret: "s3cret", Issuer: "iss", Audience: "aud"}

	tok, err := peerToken(cfg, 42)
	if err != nil || tok == "" {
		t.Fatalf("peerToken = %q, %v", tok, err)
	}
	uid, err := auth.NewHS256Verifier([]byte("s3cret"), "iss", "aud", time.Second).
		Authenticate(context.Background(), auth.Credentials{Bearer: tok})
	if err != nil || uid != 42 {
		t.Fatalf("signed token verifies as %d, %v", uid, err)
	}

	if tok, _ := peerToken(config.Auth{Mode: config.AuthModeHeader}, 42); tok != "" {
		t.Fatalf("header mode must not sign, got %q", tok)
	}
}

func TestOpenStoreAndBus(t *testing.T) {
	ctx := context.Background()
	store, err := openStore(ctx, config.Storage{
		Driver: config.DriverSQLite,
		SQLite: config.SQLite{Path: filepath.Join(t.TempDir(), "huddle.db")},
	})
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	bus, err := openBus(ctx, config.Events{Backend: config.EventsLocal}, nil)
	if err != nil {
		t.Fatalf("openBus: %v", err)
	}
	if _, ok := bus.(*events.LocalBus); !ok {
		t.Fatalf("local backend must give LocalBus, got %T", bus)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"serve": false, "migrate": false, "purge": false, "peer": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, ok := range want {
		if !ok {
			t.Errorf("command %q is not registered", name)
		}
	}
}
