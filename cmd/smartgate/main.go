package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Pope4464/SmartGateS10/internal/alerts"
	"github.com/Pope4464/SmartGateS10/internal/controller"
	"github.com/Pope4464/SmartGateS10/internal/detector"
	"github.com/Pope4464/SmartGateS10/internal/gate"
	"github.com/Pope4464/SmartGateS10/internal/mqtt"
	"github.com/Pope4464/SmartGateS10/internal/relay"
	"github.com/Pope4464/SmartGateS10/internal/rules"
	"github.com/Pope4464/SmartGateS10/internal/server"
	"github.com/Pope4464/SmartGateS10/internal/tunnel"
	"github.com/Pope4464/SmartGateS10/pkg/config"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatalf("smartgate: %v", err)
	}
}

func rootCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "smartgate",
		Short: "Detection-driven gate controller",
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
	log.Println("Starting SmartGate edge controller...")

	// Load configuration
	cfg := config.Load()

	// === Rule engine ===
	engine, err := rules.Load(cfg.RulesPath)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	log.Printf("Rules: loaded %d rules from %s", len(engine.Rules()), cfg.RulesPath)

	// === Alert ledger and gate state machine ===
	ledger := alerts.NewLedger()
	stateMachine := gate.NewStateMachine(gate.LogActuator{}, ledger)

	// === MQTT connection ===
	// The controller keeps running without a broker: door automation is
	// local, only the cloud relay degrades.
	var (
		pub     mqtt.Publisher
		sub     mqtt.Subscriber
		connSrc server.ConnSource
	)
	conn, err := mqtt.Dial(mqtt.ConnConfig{
		Broker:   cfg.MQTTBroker,
		ClientID: fmt.Sprintf("%s-%s", cfg.MQTTClientID, uuid.NewString()[:8]),
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	})
	if err != nil {
		log.Printf("MQTT unavailable, continuing without broker: %v", err)
	} else {
		defer conn.Close()
		pub = conn
		sub = conn
		connSrc = conn
	}

	// === Outbound relay ===
	relayClient := relay.NewClient(pub, relay.ClientConfig{
		DashboardURL:      cfg.DashboardURL,
		GateID:            cfg.GateID,
		Timeout:           cfg.RelayTimeout,
		StatusTopic:       cfg.MQTTTopicStatus,
		HeartbeatTopic:    cfg.MQTTTopicHeartbeat,
		HeartbeatInterval: cfg.HeartbeatInterval,
	})

	// === Tunnel supervisor ===
	tunnelConfig := tunnel.DefaultConfig()
	tunnelConfig.SSHUser = cfg.TunnelSSHUser
	tunnelConfig.SSHHost = cfg.TunnelSSHHost
	tunnelConfig.IdentityFile = cfg.TunnelIdentityFile
	tunnelConfig.RemotePort = cfg.TunnelRemotePort
	tunnelConfig.LocalPort = cfg.TunnelLocalPort

	supervisor := tunnel.NewSupervisor(tunnelConfig, ledger)
	defer supervisor.Stop()
	if cfg.TunnelEnabled {
		supervisor.Start()
	}

	// === Inbound command listener ===
	var listener *relay.Listener
	if sub != nil {
		listener = relay.NewListener(sub, relay.ListenerConfig{
			CommandTopic: cfg.MQTTTopicCommands,
			GateID:       cfg.GateID,
		}, stateMachine, supervisor, relayClient, ledger)

		if err := listener.Subscribe(); err != nil {
			return fmt.Errorf("failed to subscribe to commands: %w", err)
		}
	}

	// === Detection loop ===
	infer := detector.New(detector.Config{
		URL:           cfg.DetectorURL,
		PollInterval:  cfg.DetectorPollInterval,
		Timeout:       cfg.DetectorTimeout,
		MinConfidence: cfg.DetectorMinConfidence,
	})

	loop := controller.NewLoop(infer, engine, stateMachine, relayClient, ledger, controller.LoopConfig{
		RetryDelay: cfg.DetectionRetryDelay,
	})

	// === Edge HTTP server ===
	srv := server.New(server.Config{
		Addr:         cfg.ServerAddr,
		GateID:       cfg.GateID,
		StreamSource: cfg.CameraStreamURL,
		Debug:        debug,
	}, stateMachine, loop, supervisor, connSrc, ledger)

	// === Start background tasks ===
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		loop.Run(runCtx)
	}()

	if listener != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			listener.Run(runCtx)
		}()
	}

	if pub != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			relayClient.RunHeartbeat(runCtx)
		}()
	}

	// === Log startup info ===
	log.Println("=== SmartGate edge controller is running ===")
	log.Printf("Gate ID:         %s", cfg.GateID)
	log.Printf("Inference:       %s", cfg.DetectorURL)
	log.Printf("Dashboard:       %s", cfg.DashboardURL)
	log.Printf("Command topic:   %s", mqtt.FormatTopic(cfg.MQTTTopicCommands, cfg.GateID))
	log.Printf("Status topic:    %s", mqtt.FormatTopic(cfg.MQTTTopicStatus, cfg.GateID))
	log.Printf("Heartbeat topic: %s", mqtt.FormatTopic(cfg.MQTTTopicHeartbeat, cfg.GateID))

	// Serve until shutdown; the server follows ctx.
	err = srv.Run(runCtx)

	cancel()
	wg.Wait()
	supervisor.Stop()

	log.Println("SmartGate: shutdown complete")
	return err
}
