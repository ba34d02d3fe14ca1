package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BharathGovindula/medisync/internal/api"
	"github.com/BharathGovindula/medisync/internal/config"
	"github.com/BharathGovindula/medisync/internal/connectivity"
	"github.com/BharathGovindula/medisync/internal/db"
	"github.com/BharathGovindula/medisync/internal/httpnet"
	"github.com/BharathGovindula/medisync/internal/logging"
	"github.com/BharathGovindula/medisync/internal/queue"
	syncpkg "github.com/BharathGovindula/medisync/internal/sync"
	"github.com/BharathGovindula/medisync/internal/sync/scheduler"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "medisync",
	Short:         "Offline-first sync client for the medication tracker",
	Long:          "medisync durably queues dose actions taken while offline and replays them against the medication API when connectivity returns.",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelInfo
		if verbose {
			level = logging.LevelDebug
		}
		logging.Init(os.Stderr, level)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (default ~/.medisync/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// app bundles the wired client components commands work with.
type app struct {
	cfg      *config.Config
	database *db.DB
	queue    *queue.Store
	client   *api.Client
	monitor  *connectivity.Monitor
	engine   *syncpkg.Engine
	gateway  *syncpkg.Gateway
	netStore *httpnet.Store
}

// openApp loads configuration and wires the component graph. The monitor
// starts in the given state; long-running commands feed it from the
// websocket probe, one-shot commands assume online and rely on the
// gateway's queue fallback.
func openApp(initial connectivity.State) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	database, err := db.OpenAndMigrate(cfg.Sync.DataDir)
	if err != nil {
		return nil, err
	}

	store := queue.NewStore(database.DB)
	client := api.NewClient(cfg.API.BaseURL, api.StaticToken(cfg.API.Token), nil)
	monitor := connectivity.NewMonitor(initial)
	engine := syncpkg.NewEngine(store, client)

	return &app{
		cfg:      cfg,
		database: database,
		queue:    store,
		client:   client,
		monitor:  monitor,
		engine:   engine,
		gateway:  syncpkg.NewGateway(store, client, monitor),
		netStore: httpnet.NewStore(database.DB),
	}, nil
}

// close releases the app's resources.
func (a *app) close() {
	a.queue.Close()
	a.database.Close()
}

// probeSource builds the websocket connectivity source from config.
func (a *app) probeSource() *connectivity.WebSocketSource {
	header := http.Header{}
	if a.cfg.API.Token != "" {
		header.Set("Authorization", a.cfg.API.Token)
	}
	return &connectivity.WebSocketSource{
		URL:            a.cfg.API.EventsURL,
		Header:         header,
		RedialInterval: time.Duration(a.cfg.Sync.ProbeRedialSeconds) * time.Second,
	}
}

// schedulerConfig builds the drain scheduler config from config.
func (a *app) schedulerConfig() *scheduler.Config {
	return &scheduler.Config{
		RetryInterval: time.Duration(a.cfg.Sync.RetryIntervalSeconds) * time.Second,
	}
}

// newNetTransport builds the transport-level retry net over the app's
// storage.
func newNetTransport(a *app) *httpnet.Transport {
	return httpnet.NewTransport(nil, a.netStore)
}

// printDrainResult summarizes a drain cycle for the terminal.
func printDrainResult(result *syncpkg.DrainResult) {
	if result == nil {
		fmt.Println("Sync already in progress.")
		return
	}
	fmt.Printf("Sent %d, dropped %d, remaining %d", result.Sent, result.Dropped, result.Remaining)
	if result.Halted {
		fmt.Printf(" (halted: %s)", result.Error)
	}
	fmt.Println()
}
