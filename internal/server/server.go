package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Pope4464/SmartGateS10/internal/alerts"
	"github.com/Pope4464/SmartGateS10/internal/gate"
	"github.com/Pope4464/SmartGateS10/internal/models"
	"github.com/Pope4464/SmartGateS10/internal/tunnel"
)

// GateSource exposes the gate state to the status endpoints.
// *gate.StateMachine implements it.
type GateSource interface {
	State() gate.State
	LastChange() time.Time
}

// CaptureSource exposes the latest detection snapshot.
// *controller.Loop implements it.
type CaptureSource interface {
	LatestCapture() (models.DetectionReport, bool)
}

// TunnelSource exposes tunnel health. *tunnel.Supervisor implements it.
type TunnelSource interface {
	Status() tunnel.Status
}

// ConnSource exposes broker connectivity. *mqtt.Conn implements it.
type ConnSource interface {
	IsConnected() bool
}

// Server is the edge HTTP surface. It rides the reverse tunnel, so the
// remote dashboard reaches it through the forwarded port: gate status,
// alerts, the latest capture and the raw camera stream.
type Server struct {
	addr     string
	gateID   string
	streamed string // upstream camera MJPEG URL

	engine   *gin.Engine
	gate     GateSource
	captures CaptureSource
	tunnel   TunnelSource
	conn     ConnSource
	ledger   *alerts.Ledger

	// The camera stream is long-lived; its client carries no timeout.
	streamClient *http.Client
}

// Config holds edge HTTP server configuration.
type Config struct {
	Addr         string // listen address, e.g. ":5000"
	GateID       string
	StreamSource string // camera MJPEG URL to proxy on /stream
	Debug        bool
}

// New builds the edge server and its routes.
func New(
	config Config,
	gateSrc GateSource,
	captures CaptureSource,
	tun TunnelSource,
	conn ConnSource,
	ledger *alerts.Ledger,
) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		addr:         config.Addr,
		gateID:       config.GateID,
		streamed:     config.StreamSource,
		gate:         gateSrc,
		captures:     captures,
		tunnel:       tun,
		conn:         conn,
		ledger:       ledger,
		streamClient: &http.Client{},
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/gate-status", s.handleGateStatus)
	engine.GET("/alerts", s.handleAlerts)
	engine.GET("/latest-capture", s.handleLatestCapture)
	engine.GET("/stream", s.handleStream)
	engine.GET("/healthz", s.handleHealthz)

	s.engine = engine
	return s
}

// Handler returns the HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.engine}

	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()
	log.Printf("Server: listening on %s", s.addr)

	select {
	case err := <-errs:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		log.Println("Server: shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleGateStatus(c *gin.Context) {
	capture, _ := s.captures.LatestCapture()
	c.JSON(http.StatusOK, gin.H{
		"gate_id":           s.gateID,
		"status":            string(s.gate.State()),
		"last_update":       s.gate.LastChange(),
		"detection_context": capture.Objects,
	})
}

func (s *Server) handleAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alerts": s.ledger.List(0)})
}

func (s *Server) handleLatestCapture(c *gin.Context) {
	capture, ok := s.captures.LatestCapture()
	if !ok {
		capture = models.DetectionReport{
			Objects:     []string{},
			Confidences: []float64{},
		}
	}
	c.JSON(http.StatusOK, gin.H{"capture": capture})
}

// handleStream proxies the camera stream byte-for-byte. The payload is
// opaque here: no decoding, no re-encoding, just a copy with the upstream
// content type.
func (s *Server) handleStream(c *gin.Context) {
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, s.streamed, nil)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "camera stream unavailable"})
		return
	}

	resp, err := s.streamClient.Do(req)
	if err != nil {
		log.Printf("Server: stream source unreachable: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "camera stream unavailable"})
		return
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Status(resp.StatusCode)

	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		log.Printf("Server: stream copy ended: %v", err)
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	mqttConnected := false
	if s.conn != nil {
		mqttConnected = s.conn.IsConnected()
	}
	tunnelStatus := string(tunnel.StatusStopped)
	if s.tunnel != nil {
		tunnelStatus = string(s.tunnel.Status())
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"gate_id":        s.gateID,
		"gate_state":     string(s.gate.State()),
		"mqtt_connected": mqttConnected,
		"tunnel":         tunnelStatus,
	})
}
