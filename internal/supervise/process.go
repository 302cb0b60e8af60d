// Package supervise is the control process: it spawns the worker with the
// pipe pair, relays its fate reports into the chat, and exposes the
// start/stop/restart surface to the operators.
package supervise

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/dabneyhovse/further/internal/ipc"
)

// Process is one spawned worker. The worker inherits the downward pipe's read
// end as fd 3 and the upward pipe's write end as fd 4.
type Process struct {
	cmd      *exec.Cmd
	endpoint *ipc.SupervisorEndpoint
	downW    *os.File
	upR      *os.File
	done     chan error
}

// Spawn re-executes the current binary in worker mode and wires the pipe
// pair.
func Spawn(configPath string) (*Process, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("supervise: locate binary: %w", err)
	}

	downR, downW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("supervise: pipe: %w", err)
	}
	upR, upW, err := os.Pipe()
	if err != nil {
		downR.Close()
		downW.Close()
		return nil, fmt.Errorf("supervise: pipe: %w", err)
	}

	cmd := exec.Command(self, "-worker", "-config", configPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{downR, upW}

	if err := cmd.Start(); err != nil {
		downR.Close()
		downW.Close()
		upR.Close()
		upW.Close()
		return nil, fmt.Errorf("supervise: start worker: %w", err)
	}

	// The child holds its own copies now.
	downR.Close()
	upW.Close()

	p := &Process{
		cmd:      cmd,
		endpoint: ipc.NewSupervisorEndpoint(upR, downW),
		downW:    downW,
		upR:      upR,
		done:     make(chan error, 1),
	}
	go func() {
		p.done <- cmd.Wait()
	}()
	return p, nil
}

// Order sends a shutdown order down the pipe. force 1 demands an immediate
// exit; 0 asks for a graceful unwind.
func (p *Process) Order(force int) error {
	return p.endpoint.Send(ipc.ShutDown{Force: force})
}

// Listen pumps upward messages to handler until the pipe closes or ctx is
// cancelled.
func (p *Process) Listen(ctx context.Context, handler func(ipc.Upward)) error {
	return p.endpoint.Listen(ctx, handler)
}

// Done delivers the worker's exit status once.
func (p *Process) Done() <-chan error {
	return p.done
}

// PID returns the worker's process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Kill terminates the worker outright. Used when even a forced shutdown
// order goes unanswered.
func (p *Process) Kill() error {
	return p.cmd.Process.Kill()
}

// Close releases the supervisor's pipe ends.
func (p *Process) Close() {
	p.downW.Close()
	p.upR.Close()
}
