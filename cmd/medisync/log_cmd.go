package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BharathGovindula/medisync/internal/connectivity"
	"github.com/BharathGovindula/medisync/internal/models"
	syncpkg "github.com/BharathGovindula/medisync/internal/sync"
)

var logNotes string

func init() {
	logCmd.Flags().StringVar(&logNotes, "notes", "", "free-form note attached to the action")
	rootCmd.AddCommand(logCmd)
}

var logCmd = &cobra.Command{
	Use:   "log <medication-id> <taken|missed|skipped>",
	Short: "Record a dose action",
	Long: "Records a dose action for a medication. Online, the action goes straight " +
		"to the server; if the network is unreachable it is saved to the durable " +
		"offline queue and synced later.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(connectivity.Online)
		if err != nil {
			return err
		}
		defer a.close()

		result, err := a.gateway.Submit(cmd.Context(), syncpkg.Action{
			MedicationID: args[0],
			Status:       models.ActionStatus(args[1]),
			Notes:        logNotes,
		})
		if err != nil {
			return err
		}

		fmt.Println(result.Message)
		if result.Outcome == syncpkg.OutcomeQueuedOffline {
			n, err := a.queue.Len(cmd.Context())
			if err == nil {
				fmt.Printf("%d action(s) waiting to sync.\n", n)
			}
		}
		return nil
	},
}
