// Package fetcher materializes remote repositories into per-job working
// copies using the provisioned git binary over SSH.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"feedbacker/internal/store"
)

// Config holds fetcher settings.
type Config struct {
	// SSHKeyPath points to the private key mounted for git-over-SSH.
	SSHKeyPath string
}

// WorkingCopy is the filesystem materialization of a repository at a
// revision, private to one job attempt.
type WorkingCopy struct {
	Path string
}

// Remove deletes the working copy from disk.
func (w *WorkingCopy) Remove() error {
	return os.RemoveAll(w.Path)
}

// runCommandFunc executes one git invocation and returns its stderr.
// Swapped out in tests.
type runCommandFunc func(ctx context.Context, dir string, env []string, args ...string) (string, error)

// Fetcher clones repositories at a revision. Safe for concurrent use; each
// Fetch works in its own directory.
type Fetcher struct {
	cfg Config
	log *slog.Logger
	run runCommandFunc
}

// New creates a Fetcher driving the git binary.
func New(cfg Config, log *slog.Logger) *Fetcher {
	return &Fetcher{cfg: cfg, log: log, run: runGit}
}

// Fetch clones repoURL and checks out revision into dest. The destination is
// all-or-nothing: work happens in a sibling temp directory that is renamed
// into place only after checkout succeeds, so a later step never reads a
// partial tree. Errors are classified into the auth/network/revision
// taxonomy via store.PipelineError.
func (f *Fetcher) Fetch(ctx context.Context, repoURL, revision, dest string) (*WorkingCopy, error) {
	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	tmp, err := os.MkdirTemp(parent, ".fetch-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	env := f.gitEnv()

	if stderr, err := f.run(ctx, parent, env, "clone", "--quiet", "--no-tags", repoURL, tmp); err != nil {
		return nil, f.classify(ctx, err, stderr)
	}
	if stderr, err := f.run(ctx, tmp, env, "checkout", "--quiet", "--detach", revision); err != nil {
		return nil, f.classify(ctx, err, stderr)
	}

	// A leftover dest from a crashed attempt must not survive the rename.
	if err := os.RemoveAll(dest); err != nil {
		return nil, fmt.Errorf("failed to clear destination: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return nil, fmt.Errorf("failed to move working copy into place: %w", err)
	}

	f.log.DebugContext(ctx, "repository fetched", "repo", repoURL, "revision", revision, "dest", dest)
	return &WorkingCopy{Path: dest}, nil
}

func (f *Fetcher) gitEnv() []string {
	sshCmd := fmt.Sprintf(
		"ssh -i %s -o IdentitiesOnly=yes -o BatchMode=yes -o StrictHostKeyChecking=accept-new",
		f.cfg.SSHKeyPath,
	)
	return []string{
		"GIT_SSH_COMMAND=" + sshCmd,
		"GIT_TERMINAL_PROMPT=0",
	}
}

// classify maps a git failure onto the error taxonomy. Auth markers are
// checked before network ones: "could not read from remote repository"
// accompanies both, and the auth lines are the more specific signal.
func (f *Fetcher) classify(ctx context.Context, err error, stderr string) error {
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return store.NewPipelineError(store.KindCancelled, ctx.Err())
		}
		// A clone that outlives its deadline is a transient transport
		// failure, distinct from the analysis timeout.
		return store.NewPipelineError(store.KindNetwork, fmt.Errorf("fetch timed out: %w", ctx.Err()))
	}

	msg := strings.ToLower(stderr)
	wrapped := fmt.Errorf("git: %w: %s", err, strings.TrimSpace(stderr))

	for _, marker := range authMarkers {
		if strings.Contains(msg, marker) {
			return store.NewPipelineError(store.KindAuth, wrapped)
		}
	}
	for _, marker := range revisionMarkers {
		if strings.Contains(msg, marker) {
			return store.NewPipelineError(store.KindRevisionNotFound, wrapped)
		}
	}
	// Everything else on this path is treated as transient transport
	// trouble and left to the retry policy.
	return store.NewPipelineError(store.KindNetwork, wrapped)
}

var authMarkers = []string{
	"permission denied",
	"authentication failed",
	"host key verification failed",
	"access denied",
	"invalid credentials",
}

var revisionMarkers = []string{
	"unknown revision",
	"couldn't find remote ref",
	"not our ref",
	"reference is not a tree",
	"did not match any file(s) known to git",
	"repository not found",
}

func runGit(ctx context.Context, dir string, env []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = nil

	err := cmd.Run()
	return stderr.String(), err
}
