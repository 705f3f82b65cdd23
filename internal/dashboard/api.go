package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Pope4464/SmartGateS10/internal/alerts"
	"github.com/Pope4464/SmartGateS10/internal/models"
	"github.com/Pope4464/SmartGateS10/internal/mqtt"
)

// ConnChecker reports broker connectivity for the health endpoint.
// *mqtt.Conn implements it.
type ConnChecker interface {
	IsConnected() bool
}

// API is the dashboard's JSON surface: detection intake over HTTP, command
// fan-out to gates, and read access to the registry and the alert ledger.
type API struct {
	recorder
	pub          mqtt.Publisher
	conn         ConnChecker
	addr         string
	commandTopic string

	engine *gin.Engine
}

// APIConfig holds dashboard HTTP configuration.
type APIConfig struct {
	Addr         string // listen address, e.g. ":5000"
	CommandTopic string // e.g. "gates/{gate_id}/commands"
	Debug        bool
}

// DefaultAPIConfig returns the default dashboard HTTP configuration.
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		Addr:         ":5000",
		CommandTopic: "gates/{gate_id}/commands",
	}
}

// NewAPI builds the dashboard API and its routes. store and conn may be nil.
func NewAPI(
	config APIConfig,
	pub mqtt.Publisher,
	conn ConnChecker,
	registry *Registry,
	ledger *alerts.Ledger,
	store EventStore,
) *API {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.CommandTopic == "" {
		config.CommandTopic = DefaultAPIConfig().CommandTopic
	}

	a := &API{
		recorder: recorder{
			registry: registry,
			ledger:   ledger,
			store:    store,
		},
		pub:          pub,
		conn:         conn,
		addr:         config.Addr,
		commandTopic: config.CommandTopic,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.POST("/detection", a.handleDetection)
	engine.POST("/send_command", a.handleSendCommand)
	engine.GET("/alerts", a.handleAlerts)
	engine.GET("/gate-status", a.handleGateStatus)
	engine.GET("/gates", a.handleGates)
	engine.GET("/healthz", a.handleHealthz)

	a.engine = engine
	return a
}

// Handler returns the HTTP handler, used by tests.
func (a *API) Handler() http.Handler {
	return a.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	srv := &http.Server{Addr: a.addr, Handler: a.engine}

	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()
	log.Printf("Dashboard: listening on %s", a.addr)

	select {
	case err := <-errs:
		return fmt.Errorf("dashboard server failed: %w", err)
	case <-ctx.Done():
		log.Println("Dashboard: shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// handleDetection is the HTTP intake for detection reports, the path gates
// use when they reach the dashboard over plain HTTP instead of the broker.
func (a *API) handleDetection(c *gin.Context) {
	var report models.DetectionReport
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid detection payload"})
		return
	}
	if report.GateID == "" {
		report.GateID = "1"
	}
	if report.Timestamp.IsZero() {
		report.Timestamp = time.Now()
	}

	a.recordDetection(report)
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

type sendCommandRequest struct {
	Command string `json:"command"`
	Gate    string `json:"gate"`
}

func (a *API) handleSendCommand(c *gin.Context) {
	var req sendCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Command == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "No command provided"})
		return
	}
	if req.Gate == "" {
		req.Gate = "1"
	}

	cmd := models.Command{
		ID:        uuid.NewString(),
		Action:    req.Command,
		GateID:    req.Gate,
		Timestamp: time.Now(),
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to encode command"})
		return
	}

	topic := mqtt.FormatTopic(a.commandTopic, req.Gate)
	if err := a.pub.Publish(topic, payload); err != nil {
		log.Printf("Dashboard: failed to send command to gate %s: %v", req.Gate, err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to deliver command"})
		return
	}

	a.ledger.Add(fmt.Sprintf("Command sent to Gate %s: %s", req.Gate, req.Command), alerts.LevelInfo)
	c.JSON(http.StatusOK, gin.H{"status": "sent", "gate": req.Gate})
}

func (a *API) handleAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alerts": a.ledger.List(0)})
}

// handleGateStatus returns the registry keyed by gate id.
func (a *API) handleGateStatus(c *gin.Context) {
	gates := a.registry.Gates()
	statuses := make(map[string]models.GateSummary, len(gates))
	for _, g := range gates {
		statuses[g.ID] = g
	}
	c.JSON(http.StatusOK, statuses)
}

func (a *API) handleGates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"gates": a.registry.Gates()})
}

func (a *API) handleHealthz(c *gin.Context) {
	connected := a.conn != nil && a.conn.IsConnected()
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"gates":          a.registry.Len(),
		"mqtt_connected": connected,
	})
}
