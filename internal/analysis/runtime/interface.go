// Package runtime provides the Runtime interface for analysis execution
// backends.
package runtime

import (
	"context"
)

// Runtime defines the interface for executing one analysis command.
// Implementations include raw process execution and Docker containers.
type Runtime interface {
	// Start begins execution of a command against a working copy and
	// returns a handle.
	Start(ctx context.Context, opts StartOptions) (Handle, error)
}

// StartOptions contains the parameters for starting an analysis command.
type StartOptions struct {
	// WorkDir is the host path of the working copy the command runs against.
	WorkDir string
	Command []string
	Env     map[string]string
	// Image is the container image, used only by the docker runtime.
	Image string
}

// ExitResult carries the command's exit status.
type ExitResult struct {
	ExitCode int
	Error    error
}

// Handle represents a running analysis command. Stop must terminate it
// promptly; a hung command never leaks a worker.
type Handle interface {
	// Wait blocks until the command completes or ctx is done. When ctx
	// expires the command is killed before Wait returns.
	Wait(ctx context.Context) (ExitResult, error)

	// Stop forcefully terminates the command.
	Stop(ctx context.Context) error

	// Output returns the combined stdout/stderr captured so far.
	Output() string
}
