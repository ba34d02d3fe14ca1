package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BharathGovindula/medisync/internal/connectivity"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local sync state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(connectivity.Offline)
		if err != nil {
			return err
		}
		defer a.close()

		pending, err := a.queue.Len(cmd.Context())
		if err != nil {
			return err
		}
		retryPending, err := a.netStore.PendingCount(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("API:            %s\n", a.cfg.API.BaseURL)
		fmt.Printf("Database:       %s\n", a.database.Path)
		fmt.Printf("Queued actions: %d\n", pending)
		fmt.Printf("Retry net:      %d request(s)\n", retryPending)
		return nil
	},
}
