// Package process runs the external collaborator tools. A Handle wraps one
// started process: callers wait with a timeout, or stop it gracefully with
// SIGINT before falling back to a hard kill. Collaborators flush their
// result files on SIGINT, so the graceful path matters.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ErrTimeout reports that Wait gave up and stopped the process.
var ErrTimeout = errors.New("process timed out")

// stopTimeout is how long Stop waits after SIGINT before killing.
const stopTimeout = 10 * time.Second

// Handle is one started external process.
type Handle struct {
	name   string
	cmd    *exec.Cmd
	log    *zap.SugaredLogger
	start  time.Time
	done   chan struct{}
	stderr bytes.Buffer

	runTime time.Duration
}

// Start launches a process in the given working directory, creating the
// directory if needed. Stdout is discarded; stderr is captured for error
// classification after exit.
func Start(log *zap.SugaredLogger, dir, name string, args ...string) (*Handle, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = dir

	h := &Handle{
		name: name,
		cmd:  cmd,
		log:  log,
		done: make(chan struct{}),
	}
	cmd.Stderr = &h.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}
	h.start = time.Now()
	log.Debugw("process started", "name", name, "pid", cmd.Process.Pid, "args", args)

	go func() {
		_ = cmd.Wait()
		h.runTime = time.Since(h.start)
		close(h.done)
	}()
	return h, nil
}

// Wait blocks until the process exits, the timeout elapses, or the context
// is canceled. On timeout or cancellation the process is stopped and the
// exit code observed after stopping is returned along with ErrTimeout or
// the context error.
func (h *Handle) Wait(ctx context.Context, timeout time.Duration) (int, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-h.done:
		h.log.Debugw("process exited", "name", h.name, "code", h.ExitCode(), "runtime", h.runTime)
		return h.ExitCode(), nil
	case <-expired:
		h.log.Debugw("process wait timed out, stopping", "name", h.name, "timeout", timeout)
		h.Stop()
		return h.ExitCode(), ErrTimeout
	case <-ctx.Done():
		h.Stop()
		return h.ExitCode(), ctx.Err()
	}
}

// Stop ends the process gracefully with SIGINT, killing it if it has not
// exited within stopTimeout. Returns the exit code.
func (h *Handle) Stop() int {
	if h.Running() {
		h.log.Debugw("stopping process", "name", h.name, "pid", h.cmd.Process.Pid)
		_ = h.cmd.Process.Signal(syscall.SIGINT)

		select {
		case <-h.done:
		case <-time.After(stopTimeout):
			h.log.Debugw("process ignored SIGINT, killing", "name", h.name)
			h.Kill()
		}
	}
	return h.ExitCode()
}

// Kill ends the process immediately.
func (h *Handle) Kill() {
	if h.Running() {
		_ = h.cmd.Process.Kill()
		<-h.done
	}
}

// Running reports whether the process has not yet exited.
func (h *Handle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the process exit code, or -1 if it is still running or
// was killed by a signal.
func (h *Handle) ExitCode() int {
	if h.Running() {
		return -1
	}
	return h.cmd.ProcessState.ExitCode()
}

// RunTime returns how long the process ran. Valid after exit.
func (h *Handle) RunTime() time.Duration {
	return h.runTime
}

// Stderr returns everything the process wrote to stderr. Valid after exit.
func (h *Handle) Stderr() string {
	return h.stderr.String()
}
