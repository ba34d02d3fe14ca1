package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BharathGovindula/medisync/internal/connectivity"
	"github.com/BharathGovindula/medisync/internal/logging"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync client until interrupted",
	Long: "Watches the platform connectivity signal and drains the offline queue " +
		"whenever the client comes back online. Runs until SIGINT/SIGTERM.",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Start offline; the probe reports the real state immediately.
		a, err := openApp(connectivity.Offline)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		go a.monitor.Run(ctx, a.probeSource())

		sched := newScheduler(a)
		sched.Start(ctx)
		defer sched.Stop()

		logging.Info("medisync running", map[string]interface{}{
			"base_url": a.cfg.API.BaseURL,
			"database": a.database.Path,
		})

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		logging.Info("medisync shutting down")
		return nil
	},
}
