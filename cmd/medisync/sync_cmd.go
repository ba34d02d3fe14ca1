package main

import (
	"github.com/spf13/cobra"

	"github.com/BharathGovindula/medisync/internal/connectivity"
	"github.com/BharathGovindula/medisync/internal/sync/scheduler"
)

func init() {
	rootCmd.AddCommand(syncCmd)
}

// newScheduler wires the drain scheduler for an app.
func newScheduler(a *app) *scheduler.Scheduler {
	return scheduler.New(a.engine, a.queue, a.monitor, a.schedulerConfig())
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the offline queue now",
	Long:  "Manually replays all locally queued dose actions against the remote API, then replays any transport-level retry queue entries.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(connectivity.Online)
		if err != nil {
			return err
		}
		defer a.close()

		result, err := a.engine.Drain(cmd.Context())
		if err != nil {
			return err
		}
		printDrainResult(result)

		// Independent lower net: replay transport-level captures too.
		transport := newNetTransport(a)
		replayed, discarded, err := transport.ReplayPending(cmd.Context())
		if err != nil {
			return err
		}
		if replayed > 0 || discarded > 0 {
			cmd.Printf("Retry net: replayed %d, discarded %d\n", replayed, discarded)
		}
		return nil
	},
}
