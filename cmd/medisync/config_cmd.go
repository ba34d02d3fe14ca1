package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/BharathGovindula/medisync/internal/config"
)

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage medisync configuration",
	Long:  "View or modify the configuration stored in ~/.medisync/config.toml.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Path()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Println("No configuration file found. Run 'medisync config set api.base_url <url>' to create one.")
				return nil
			}
			return fmt.Errorf("cannot read config file: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value using dot notation.\nExample: medisync config set api.base_url https://meds.example.com",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		cfg, err := config.Read("")
		if err != nil {
			return err
		}

		switch key {
		case "api.base_url":
			cfg.API.BaseURL = value
		case "api.token":
			cfg.API.Token = value
		case "api.events_url":
			cfg.API.EventsURL = value
		case "sync.data_dir":
			cfg.Sync.DataDir = value
		case "sync.retry_interval_seconds":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("sync.retry_interval_seconds must be an integer: %w", err)
			}
			cfg.Sync.RetryIntervalSeconds = n
		case "sync.probe_redial_seconds":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("sync.probe_redial_seconds must be an integer: %w", err)
			}
			cfg.Sync.ProbeRedialSeconds = n
		default:
			return fmt.Errorf("unknown configuration key %q", key)
		}

		if err := config.Save(cfg); err != nil {
			return err
		}
		fmt.Printf("Set %s.\n", key)
		return nil
	},
}
