package tunnel

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Pope4464/SmartGateS10/internal/alerts"
)

// Status is the observable tunnel lifecycle state.
type Status string

const (
	StatusStopped  Status = "STOPPED"
	StatusStarting Status = "STARTING"
	StatusHealthy  Status = "HEALTHY"
	StatusFailed   Status = "FAILED"
)

// Config holds tunnel connection and supervision settings.
type Config struct {
	SSHUser      string
	SSHHost      string
	IdentityFile string
	RemotePort   int // port opened on the remote side
	LocalPort    int // local stream server the tunnel forwards to

	ReadinessWindow time.Duration // child must survive this long to be HEALTHY
	BackoffBase     time.Duration
	BackoffMax      time.Duration
}

// DefaultConfig returns the default supervision tuning.
func DefaultConfig() Config {
	return Config{
		RemotePort:      8022,
		LocalPort:       5000,
		ReadinessWindow: 2 * time.Second,
		BackoffBase:     1 * time.Second,
		BackoffMax:      60 * time.Second,
	}
}

// Supervisor owns the reverse-tunnel child process that carries the camera
// stream to the remote side. It restarts the child when it dies, backing off
// between rapid failures, and records every detected death as one critical
// alert. The handle is never shared: all mutation happens here.
type Supervisor struct {
	runtime runtime
	ledger  *alerts.Ledger
	config  Config

	mu      sync.Mutex
	status  Status
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSupervisor creates a supervisor for the ssh reverse tunnel described by
// config. The supervisor is idle until Start.
func NewSupervisor(config Config, ledger *alerts.Ledger) *Supervisor {
	return newSupervisor(&execRuntime{config: config}, config, ledger)
}

func newSupervisor(rt runtime, config Config, ledger *alerts.Ledger) *Supervisor {
	if config.ReadinessWindow <= 0 {
		config.ReadinessWindow = 2 * time.Second
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = 1 * time.Second
	}
	if config.BackoffMax < config.BackoffBase {
		config.BackoffMax = 60 * time.Second
	}
	return &Supervisor{
		runtime: rt,
		ledger:  ledger,
		config:  config,
		status:  StatusStopped,
	}
}

// Start launches the supervision loop. Calling Start while already running
// is a no-op.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		log.Println("Tunnel: already running, start ignored")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})

	log.Println("Tunnel: starting supervisor")
	go s.supervise(ctx, s.done)
}

// Stop terminates the child and the supervision loop, then waits for both.
// Calling Stop while stopped is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		log.Println("Tunnel: not running, stop ignored")
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	log.Println("Tunnel: stopped")
}

// Status returns the current lifecycle state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Supervisor) setStatus(status Status) {
	s.mu.Lock()
	prev := s.status
	s.status = status
	s.mu.Unlock()
	if prev != status {
		log.Printf("Tunnel: status %s -> %s", prev, status)
	}
}

// supervise runs the start/monitor/restart cycle until ctx is cancelled.
// Exactly one critical alert is recorded per detected death; a child that
// survives the readiness window resets the restart backoff.
func (s *Supervisor) supervise(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.setStatus(StatusStopped)

	backoff := s.config.BackoffBase

	for {
		if ctx.Err() != nil {
			return
		}

		s.setStatus(StatusStarting)
		proc, err := s.runtime.Start(ctx)
		if err != nil {
			s.setStatus(StatusFailed)
			s.ledger.Add(fmt.Sprintf("failed to start camera tunnel: %v", err), alerts.LevelCritical)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = s.nextBackoff(backoff)
			continue
		}

		exited := make(chan error, 1)
		go func() { exited <- proc.Wait() }()

		// Readiness window: the child must survive it before the tunnel
		// counts as healthy.
		ready := time.NewTimer(s.config.ReadinessWindow)
		select {
		case <-ctx.Done():
			ready.Stop()
			_ = proc.Kill()
			<-exited
			return

		case err := <-exited:
			ready.Stop()
			if ctx.Err() != nil {
				return
			}
			s.setStatus(StatusStopped)
			s.ledger.Add(fmt.Sprintf("camera tunnel exited during startup: %v", exitReason(err)), alerts.LevelCritical)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = s.nextBackoff(backoff)
			continue

		case <-ready.C:
			s.setStatus(StatusHealthy)
			backoff = s.config.BackoffBase
		}

		// Healthy: wait for death or shutdown.
		select {
		case <-ctx.Done():
			_ = proc.Kill()
			<-exited
			return

		case err := <-exited:
			if ctx.Err() != nil {
				return
			}
			s.setStatus(StatusStopped)
			s.ledger.Add(fmt.Sprintf("camera tunnel died: %v", exitReason(err)), alerts.LevelCritical)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = s.nextBackoff(backoff)
		}
	}
}

func (s *Supervisor) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > s.config.BackoffMax {
		next = s.config.BackoffMax
	}
	return next
}

func exitReason(err error) string {
	if err == nil {
		return "exited cleanly"
	}
	return err.Error()
}

// sleepCtx waits for d and reports false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
