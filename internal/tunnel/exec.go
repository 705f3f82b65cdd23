package tunnel

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"time"
)

// process is one running tunnel child.
type process interface {
	// Wait blocks until the child exits and returns its exit error.
	Wait() error
	// Kill asks the child to terminate. It does not wait for exit.
	Kill() error
}

// runtime launches tunnel children. The supervisor only ever talks to this
// boundary so tests can swap the real ssh child for a scripted one.
type runtime interface {
	Start(ctx context.Context) (process, error)
}

// execRuntime runs the reverse tunnel as an ssh child process. The local
// stream server cannot be reached from outside, so the edge side initiates
// the connection and holds it open: ssh -N -R remote:localhost:local host.
type execRuntime struct {
	config Config
}

func (r *execRuntime) Start(ctx context.Context) (process, error) {
	args := r.config.sshArgs()

	cmd := exec.CommandContext(ctx, "ssh", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ssh tunnel: %w", err)
	}

	log.Printf("Tunnel: ssh started (pid %d): ssh %v", cmd.Process.Pid, args)
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		return p.cmd.Process.Kill()
	}
	// Escalate if ssh ignores the interrupt. Kill on an already-exited
	// process returns an error we do not care about.
	time.AfterFunc(3*time.Second, func() {
		_ = p.cmd.Process.Kill()
	})
	return nil
}

// sshArgs builds the reverse-forward invocation. ExitOnForwardFailure makes
// a dead forward kill the child, which is how the supervisor detects that
// the tunnel is no longer carrying the stream.
func (c Config) sshArgs() []string {
	args := []string{
		"-N",
		"-o", "ServerAliveInterval=30",
		"-o", "ServerAliveCountMax=3",
		"-o", "ExitOnForwardFailure=yes",
		"-o", "StrictHostKeyChecking=accept-new",
		"-R", fmt.Sprintf("%d:localhost:%d", c.RemotePort, c.LocalPort),
	}
	if c.IdentityFile != "" {
		args = append(args, "-i", c.IdentityFile)
	}
	target := c.SSHHost
	if c.SSHUser != "" {
		target = c.SSHUser + "@" + c.SSHHost
	}
	args = append(args, target)
	return args
}
