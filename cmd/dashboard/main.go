package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Pope4464/SmartGateS10/internal/alerts"
	"github.com/Pope4464/SmartGateS10/internal/dashboard"
	"github.com/Pope4464/SmartGateS10/internal/database"
	"github.com/Pope4464/SmartGateS10/internal/mqtt"
	"github.com/Pope4464/SmartGateS10/pkg/config"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatalf("dashboard: %v", err)
	}
}

func rootCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Cloud dashboard for the SmartGate fleet",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, debug)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging and gin debug mode")
	return cmd
}

func run(ctx context.Context, debug bool) error {
	log.Println("Starting SmartGate dashboard...")

	// Load configuration
	cfg := config.Load()

	ledger := alerts.NewLedger()
	registry := dashboard.NewRegistry(cfg.GateOfflineAfter)

	// === ClickHouse event history (optional) ===
	var store dashboard.EventStore
	if cfg.ClickHouseEnabled {
		db, err := database.NewClickHouseDB(
			cfg.ClickHouseAddr,
			cfg.ClickHouseDB,
			cfg.ClickHouseUser,
			cfg.ClickHousePass,
		)
		if err != nil {
			return fmt.Errorf("failed to initialize ClickHouse: %w", err)
		}
		defer db.Close()
		store = db
	}

	// === MQTT connection ===
	// Unlike the edge controller, the dashboard is nothing without the
	// broker, so a failed connect is fatal.
	conn, err := mqtt.Dial(mqtt.ConnConfig{
		Broker:   cfg.MQTTBroker,
		ClientID: fmt.Sprintf("%s-dashboard-%s", cfg.MQTTClientID, uuid.NewString()[:8]),
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	defer conn.Close()

	// === Gate topic listener ===
	// Gates publish under their own id; subscribe across the fleet.
	listener := dashboard.NewListener(conn, dashboard.ListenerConfig{
		DetectionTopic: mqtt.FormatTopic(cfg.MQTTTopicDetection, "+"),
		StatusTopic:    mqtt.FormatTopic(cfg.MQTTTopicStatus, "+"),
		HeartbeatTopic: mqtt.FormatTopic(cfg.MQTTTopicHeartbeat, "+"),
	}, registry, ledger, store)

	if err := listener.SubscribeAll(); err != nil {
		return fmt.Errorf("failed to subscribe to gate topics: %w", err)
	}

	// === JSON API ===
	api := dashboard.NewAPI(dashboard.APIConfig{
		Addr:         cfg.DashboardAddr,
		CommandTopic: cfg.MQTTTopicCommands,
		Debug:        debug,
	}, conn, conn, registry, ledger, store)

	// === Log startup info ===
	log.Println("=== SmartGate dashboard is running ===")
	log.Printf("API:             %s", cfg.DashboardAddr)
	log.Printf("Detection topic: %s", mqtt.FormatTopic(cfg.MQTTTopicDetection, "+"))
	log.Printf("Status topic:    %s", mqtt.FormatTopic(cfg.MQTTTopicStatus, "+"))
	log.Printf("Heartbeat topic: %s", mqtt.FormatTopic(cfg.MQTTTopicHeartbeat, "+"))
	log.Printf("Offline after:   %v", cfg.GateOfflineAfter)

	err = api.Run(ctx)

	log.Println("Dashboard: shutdown complete")
	return err
}
