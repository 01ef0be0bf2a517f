package main

import (
	"fmt"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/service"

	"github.com/spf13/cobra"
)

var purgeOlderThan time.Duration

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete relayed signals older than the purge window once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, lg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg.Storage)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()

		window := cfg.Huddle.SignalPurgeWindow
		if purgeOlderThan > 0 {
			window = purgeOlderThan
		}
		signals := service.NewSignalService(store, service.SignalConfig{
			ReadWindow:  min(cfg.Huddle.SignalReadWindow, window),
			PurgeWindow: window,
		})
		cleaner, err := service.NewCleaner(signals, cfg.Huddle.CleanupSchedule, lg)
		if err != nil {
			return fmt.Errorf("cleaner: %w", err)
		}

		n, err := cleaner.RunOnce(cmd.Context())
		if err != nil {
			return fmt.Errorf("purge: %w", err)
		}
		lg.Info("signals purged", "deleted", n, "older_than", window)
		return nil
	},
}

func init() {
	purgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 0, "override huddle.signalPurgeWindow")
}
