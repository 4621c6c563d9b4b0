package actions

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"dhe/internal/config"
)

// Spawner starts a detached process.
type Spawner interface {
	Start(name string, args ...string) error
}

// ExecSpawner starts processes with os/exec and reaps them in the
// background.
type ExecSpawner struct {
	log *slog.Logger
}

// NewExecSpawner returns an ExecSpawner logging to log.
func NewExecSpawner(log *slog.Logger) *ExecSpawner {
	return &ExecSpawner{log: log}
}

// Start launches name and returns once the process is running.
func (s *ExecSpawner) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	pid := cmd.Process.Pid
	s.log.Info("process started", "command", name, "args", args, "pid", pid)
	go func() {
		if err := cmd.Wait(); err != nil {
			s.log.Warn("process exited", "command", name, "pid", pid, "error", err)
			return
		}
		s.log.Debug("process exited", "command", name, "pid", pid)
	}()
	return nil
}

// CommandError reports a starter command that failed to launch.
type CommandError struct {
	Name string
	Args []string
	Err  error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("failed to execute command %s with args %q: %v", e.Name, e.Args, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// RunStarters launches every bash-starter command in order, waiting delay
// before each one. It stops at the first command that fails to start.
func RunStarters(ctx context.Context, cmds []config.Command, delay time.Duration, sp Spawner) error {
	for _, c := range cmds {
		if err := sleepContext(ctx, delay); err != nil {
			return err
		}
		if err := sp.Start(c.Name, c.Args...); err != nil {
			return &CommandError{Name: c.Name, Args: c.Args, Err: err}
		}
	}
	return nil
}
