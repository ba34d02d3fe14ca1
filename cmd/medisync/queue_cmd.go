package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/BharathGovindula/medisync/internal/connectivity"
)

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueClearCmd)
	rootCmd.AddCommand(queueCmd)
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the offline queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued dose actions in sync order",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(connectivity.Offline)
		if err != nil {
			return err
		}
		defer a.close()

		events, err := a.queue.ReadAll(cmd.Context())
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}
		for _, ev := range events {
			fmt.Printf("%4d  %-10s %-8s captured %s  %s\n",
				ev.Seq, ev.MedicationID, ev.Status,
				ev.CreatedAt.Local().Format(time.RFC3339), ev.Notes)
		}
		return nil
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard all queued dose actions",
	Long:  "Discards every queued action without syncing. The actions are lost; use 'medisync sync' to deliver them instead.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(connectivity.Offline)
		if err != nil {
			return err
		}
		defer a.close()

		n, err := a.queue.Len(cmd.Context())
		if err != nil {
			return err
		}
		if err := a.queue.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("Discarded %d queued action(s).\n", n)
		return nil
	},
}
