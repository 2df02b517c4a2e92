package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pitsense/pitsense/internal/alerts"
	"github.com/pitsense/pitsense/internal/api"
	"github.com/pitsense/pitsense/internal/auth"
	"github.com/pitsense/pitsense/internal/broker"
	"github.com/pitsense/pitsense/internal/commands"
	"github.com/pitsense/pitsense/internal/config"
	"github.com/pitsense/pitsense/internal/firmware"
	"github.com/pitsense/pitsense/internal/identity"
	"github.com/pitsense/pitsense/internal/ingest"
	"github.com/pitsense/pitsense/internal/license"
	"github.com/pitsense/pitsense/internal/lifecycle"
	"github.com/pitsense/pitsense/internal/logging"
	"github.com/pitsense/pitsense/internal/provisioning"
	"github.com/pitsense/pitsense/internal/store"
	"github.com/pitsense/pitsense/internal/websocket"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const (
	ingestQueueSize = 256
	ingestWorkers   = 4
	shutdownTimeout = 30 * time.Second
)

var rootCmd = &cobra.Command{
	Use:     "pitsense",
	Short:   "PitSense - workshop sensor fleet control plane",
	Long:    `PitSense ingests MQTT sensor telemetry from workshop pit gateways, enforces device licensing, raises environment alerts, and serves the operator API.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("PitSense %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	// Baseline logger for early startup; re-initialized from config below.
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "pitsense",
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "pitsense",
	})

	log.Info().Str("version", Version).Msg("Starting PitSense control plane")

	clock := identity.SystemClock{}

	db, err := store.New(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := db.SeedSensorTypes(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed sensor catalog")
	}

	tokens := auth.NewManager(cfg.Auth, clock)
	hub := websocket.NewHub(tokens)

	mqtt := broker.New(cfg.Broker, ingestQueueSize)
	dispatcher := commands.NewDispatcher(db, mqtt, clock)
	gate := license.NewGate(db, clock)
	engine := alerts.NewEngine(clock)
	prov := provisioning.NewHandler(db, dispatcher, clock, cfg.Subscriptions.TrialDays, cfg.Subscriptions.GracePeriodDays)
	registry := firmware.NewRegistry(db, dispatcher, clock, cfg.Firmware.UploadDir, cfg.Firmware.BaseURL)
	sweeper := lifecycle.NewSweeper(db, dispatcher, hub, clock,
		time.Duration(cfg.Subscriptions.SweepIntervalS)*time.Second, cfg.Sensors.DeviceOfflineS)
	pipeline := ingest.New(db, gate, engine, dispatcher, hub, prov, clock)

	server := api.NewServer(db, tokens, hub, prov, registry, sweeper, clock)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := mqtt.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start broker client")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return pipeline.Run(gctx, mqtt.Messages(), ingestWorkers)
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", httpSrv.Addr).Msg("HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown did not complete cleanly")
		}
		if err := mqtt.Stop(); err != nil {
			log.Warn().Err(err).Msg("Broker disconnect did not complete cleanly")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
	log.Info().Msg("Shutdown complete")
}
