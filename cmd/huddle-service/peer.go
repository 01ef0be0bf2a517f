package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cwrk-planet/huddle-service/config"
	"github.com/cwrk-planet/huddle-service/internal/auth"
	"github.com/cwrk-planet/huddle-service/internal/client"
	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/mesh"
	"github.com/cwrk-planet/huddle-service/internal/mesh/pionrtc"

	"github.com/spf13/cobra"
)

var peerFlags struct {
	server    string
	workspace string
	user      int64
	token     string
	channel   string
	with      string
	huddle    string
	audio     bool
	every     time.Duration
}

var peerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Join a huddle as a headless mesh participant",
	Long: `Join (or start) a huddle over gRPC and run the mesh orchestrator with a
pion WebRTC transport until interrupted. Useful for smoke tests and load.

Exactly one of --channel, --with or --huddle selects the huddle.`,
	RunE: runPeer,
}

func init() {
	f := peerCmd.Flags()
	f.StringVar(&peerFlags.server, "server", "", "gRPC address (default: grpc.addr from config)")
	f.StringVar(&peerFlags.workspace, "workspace", "", "workspace id")
	f.Int64Var(&peerFlags.user, "user", 0, "user id to act as")
	f.StringVar(&peerFlags.token, "token", "", "access token (default: signed with auth.secret)")
	f.StringVar(&peerFlags.channel, "channel", "", "start or join the huddle of this channel")
	f.StringVar(&peerFlags.with, "with", "", "start or join the 1:1 huddle with this member or conversation")
	f.StringVar(&peerFlags.huddle, "huddle", "", "join this huddle id")
	f.BoolVar(&peerFlags.audio, "audio", false, "publish a local audio track")
	f.DurationVar(&peerFlags.every, "report", 5*time.Second, "peer state report interval")
	_ = peerCmd.MarkFlagRequired("workspace")
	_ = peerCmd.MarkFlagRequired("user")
	peerCmd.MarkFlagsMutuallyExclusive("channel", "with", "huddle")
	peerCmd.MarkFlagsOneRequired("channel", "with", "huddle")
}

// peerToken: явный --token, иначе подписываем сами (dev с HS256 secret), иначе header-режим.
func peerToken(cfg config.Auth, user domain.UserID) (string, error) {
	if peerFlags.token != "" {
		return peerFlags.token, nil
	}
	if cfg.Mode != config.AuthModeJWT || cfg.Secret == "" {
		return "", nil
	}
	return auth.NewSigner([]byte(cfg.Secret), cfg.Issuer, cfg.Audience, time.Hour).Sign(user, time.Now())
}

func runPeer(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, lg, err := loadConfig()
	if err != nil {
		return err
	}
	user := domain.UserID(peerFlags.user)
	token, err := peerToken(cfg.Auth, user)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	server := peerFlags.server
	if server == "" {
		server = cfg.GRPC.Addr
	}

	cl, err := client.New(client.Options{
		Target:      server,
		WorkspaceID: domain.WorkspaceID(peerFlags.workspace),
		Token:       token,
		UserID:      strconv.FormatInt(peerFlags.user, 10),
	})
	if err != nil {
		return err
	}
	defer cl.Close()

	var joined *client.Joined
	switch {
	case peerFlags.huddle != "":
		joined, err = cl.Join(ctx, domain.SessionID(peerFlags.huddle))
	case peerFlags.channel != "":
		joined, err = cl.StartOrJoin(ctx, domain.Target{Type: domain.ScopeChannel, ID: peerFlags.channel})
	default:
		joined, err = cl.StartOrJoin(ctx, domain.Target{Type: domain.ScopeConversation, ID: peerFlags.with})
	}
	if err != nil {
		return fmt.Errorf("join huddle: %w", err)
	}
	lg = lg.With("huddle", joined.Session.ID, "self", joined.Self)
	lg.Info("joined huddle", "scope", joined.Session.Scope.String())

	transport, err := pionrtc.New(pionrtc.Config{
		ICEServers: cfg.Mesh.ICEServers,
		UDPPortMin: cfg.Mesh.UDPPortMin,
		UDPPortMax: cfg.Mesh.UDPPortMax,
		Logger:     lg,
	})
	if err != nil {
		return fmt.Errorf("webrtc: %w", err)
	}

	orch := mesh.New(mesh.Config{
		Session:        joined.Session.ID,
		Self:           joined.Self,
		PollInterval:   cfg.Mesh.PollInterval,
		RosterInterval: cfg.Mesh.RosterInterval,
		ConnectTimeout: cfg.Mesh.ConnectTimeout,
		ReadWindow:     cfg.Huddle.SignalReadWindow,
		PurgeInterval:  cfg.Huddle.SignalPurgeWindow,
		PurgeWindow:    cfg.Huddle.SignalPurgeWindow,
		Logger:         lg,
	}, transport, cl, cl)

	if peerFlags.audio {
		tr, err := pionrtc.NewLocalTrack("audio", "audio-"+string(joined.Self), string(joined.Self))
		if err != nil {
			return fmt.Errorf("local track: %w", err)
		}
		if err := orch.SetLocalTracks([]mesh.Track{tr}); err != nil {
			return fmt.Errorf("set local tracks: %w", err)
		}
	}
	if err := orch.Start(ctx); err != nil {
		if errors.Is(err, mesh.ErrNotInRoster) {
			return errors.New("start mesh: huddle ended before the mesh started")
		}
		return fmt.Errorf("start mesh: %w", err)
	}

	report := time.NewTicker(peerFlags.every)
	defer report.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-orch.Done():
			// хадл закончился или нас убрали из ростера
			lg.Info("mesh stopped: no longer in the huddle")
			return nil
		case <-report.C:
			reportPeers(lg, orch.Peers())
		}
	}

	orch.Stop()
	leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cl.Leave(leaveCtx, joined.Session.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("leave huddle: %w", err)
	}
	lg.Info("left huddle")
	return nil
}

func reportPeers(lg *slog.Logger, peers []mesh.PeerInfo) {
	if len(peers) == 0 {
		lg.Info("mesh: waiting for peers")
		return
	}
	for _, p := range peers {
		lg.Info("mesh peer",
			"member", p.Member,
			"initiator", p.Initiator,
			"state", p.State,
			"negotiated", p.Negotiated,
			"tracks", p.Tracks)
	}
}
