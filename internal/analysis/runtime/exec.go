package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ExecRuntime implements the Runtime interface using raw OS processes.
type ExecRuntime struct{}

// NewExecRuntime creates a new process-based runtime.
func NewExecRuntime() *ExecRuntime {
	return &ExecRuntime{}
}

// Start launches the command in its own process group so Stop can kill the
// whole tree, not just the direct child.
func (e *ExecRuntime) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("no command configured")
	}

	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Dir = opts.WorkDir
	cmd.Env = os.Environ()
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	h := &ExecHandle{
		cmd:  cmd,
		done: make(chan error, 1),
	}
	cmd.Stdout = &h.output
	cmd.Stderr = &h.output

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %q: %w", opts.Command[0], err)
	}

	go func() {
		h.done <- cmd.Wait()
	}()

	return h, nil
}

// ExecHandle represents a running process.
type ExecHandle struct {
	cmd    *exec.Cmd
	done   chan error
	output lockedBuffer
}

// Wait blocks until the process exits or ctx is done, in which case the
// process group is killed first.
func (h *ExecHandle) Wait(ctx context.Context) (ExitResult, error) {
	select {
	case err := <-h.done:
		return exitResultFrom(err), nil
	case <-ctx.Done():
		_ = h.Stop(context.Background())
		// Reap the process so the wait goroutine doesn't linger.
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
		}
		return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	}
}

// Stop kills the whole process group.
func (h *ExecHandle) Stop(ctx context.Context) error {
	if h.cmd.Process == nil {
		return nil
	}
	// Negative pid targets the group created by Setpgid.
	if err := syscall.Kill(-h.cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return h.cmd.Process.Kill()
	}
	return nil
}

// Output returns the combined stdout/stderr captured so far.
func (h *ExecHandle) Output() string {
	return h.output.String()
}

func exitResultFrom(err error) ExitResult {
	if err == nil {
		return ExitResult{ExitCode: 0}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return ExitResult{ExitCode: exitErr.ExitCode()}
	}
	return ExitResult{ExitCode: -1, Error: err}
}

// lockedBuffer guards concurrent writes from the process against Output reads.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
