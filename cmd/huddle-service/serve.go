package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/cwrk-planet/huddle-service/internal/auth"
	"github.com/cwrk-planet/huddle-service/internal/service"
	grpcx "github.com/cwrk-planet/huddle-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/huddle-service/internal/transport/http"
	"github.com/cwrk-planet/huddle-service/internal/transport/ws"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, WebSocket and gRPC APIs",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply migrations before serving")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, lg, err := loadConfig()
	if err != nil {
		return err
	}
	lg.Info("starting huddle-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "storage", cfg.Storage.Driver)

	// --- storage ---
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	if serveMigrate {
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// --- events ---
	bus, err := openBus(ctx, cfg.Events, lg)
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	defer bus.Close()

	authn, err := auth.New(cfg.Auth)
	if err != nil {
		return err
	}

	// --- services ---
	huddles := service.NewHuddleService(store, bus, service.HuddleConfig{
		StartRetries: cfg.Huddle.StartRetries,
		Logger:       lg,
	})
	signals := service.NewSignalService(store, service.SignalConfig{
		ReadWindow:  cfg.Huddle.SignalReadWindow,
		PurgeWindow: cfg.Huddle.SignalPurgeWindow,
	})
	presence := service.NewPresenceService(store)
	cleaner, err := service.NewCleaner(signals, cfg.Huddle.CleanupSchedule, lg)
	if err != nil {
		return fmt.Errorf("cleaner: %w", err)
	}

	// --- WS Hub & feed ---
	hub := ws.NewHub(lg)
	bus.Subscribe(ctx, hub.Dispatch)

	// --- HTTP ---
	router := httpx.NewRouter(httpx.Deps{
		Handler:        httpx.NewHandler(huddles, signals, presence),
		Auth:           authn,
		Members:        huddles.Members(),
		Events:         ws.NewServer(hub, huddles, presence),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Ready:          func(r *http.Request) error { return store.Ping(r.Context()) },
	})
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		// WS-соединения закрываются по отмене ctx, Shutdown их не трогает
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// --- gRPC ---
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcx.UnaryServerInterceptor(lg, 0)))
	grpcx.Register(grpcServer, grpcx.NewServer(authn, huddles.Members(), huddles, signals, presence))

	// --- run ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		lg.Info("grpc listen", "addr", cfg.GRPC.Addr)
		return grpcServer.Serve(lis)
	})
	cleaner.Start()

	// --- graceful shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		cleaner.Stop(shutdownCtx)
		grpcServer.GracefulStop()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	lg.Info("stopped")
	return nil
}
