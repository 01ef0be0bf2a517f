package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/cwrk-planet/huddle-service/config"
	"github.com/cwrk-planet/huddle-service/internal/events"
	"github.com/cwrk-planet/huddle-service/internal/repository"
	"github.com/cwrk-planet/huddle-service/internal/repository/postgres"
	"github.com/cwrk-planet/huddle-service/internal/repository/sqlite"
	"github.com/cwrk-planet/huddle-service/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "dev"

	configPath string
)

var rootCmd = &cobra.Command{
	Use:           "huddle-service",
	Short:         "Huddle sessions, signal relay and mesh peer for workspace chat",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: $CONFIG_PATH or ./config/config.yaml)")
	rootCmd.AddCommand(serveCmd, migrateCmd, purgeCmd, peerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig подхватывает .env (если есть), затем YAML, и инициализирует логгер.
func loadConfig() (*config.Config, *slog.Logger, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	ver := cfg.Logging.Version
	if ver == "" {
		ver = version
	}
	lg := logger.Init(logger.Config{
		Service:    cfg.Logging.Service,
		Version:    ver,
		InstanceID: cfg.Logging.InstanceID,
		Env:        logger.ParseEnv(cfg.Logging.Env),
		Backend:    logger.Backend(cfg.Logging.Backend),
		Level:      logger.ParseLevel(cfg.Logging.Level),
		AddSource:  cfg.Logging.AddSource,
		Debug:      cfg.Logging.Debug,
	})
	return cfg, lg, nil
}

func openStore(ctx context.Context, cfg config.Storage) (repository.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.Open(ctx, sqlite.Config{Path: cfg.SQLite.Path, BusyTimeout: cfg.SQLite.BusyTimeout})
	default:
		return postgres.New(ctx, cfg.Postgres.ToPGConfig())
	}
}

func openBus(ctx context.Context, cfg config.Events, lg *slog.Logger) (events.Bus, error) {
	if cfg.Backend == config.EventsRedis {
		return events.NewRedisBus(ctx, cfg.RedisURL, cfg.Channel, lg)
	}
	return events.NewLocalBus(), nil
}
