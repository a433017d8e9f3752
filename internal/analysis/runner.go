// Package analysis executes the closed set of analysis steps against a
// fetched working copy and aggregates findings deterministically.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"feedbacker/internal/analysis/runtime"
	"feedbacker/internal/store"

	"golang.org/x/sync/errgroup"
)

// maxScanFileSize bounds how much of a single file the secrets step reads.
const maxScanFileSize = 1 << 20

// maxCommandOutput caps how much check output lands in a finding message.
const maxCommandOutput = 2000

// Config holds runner settings.
type Config struct {
	// CheckCommand is the external check run by the command step.
	CheckCommand []string
	// CheckImage is the container image for the docker runtime.
	CheckImage string
	// ScanConcurrency bounds parallel file scans within one job.
	ScanConcurrency int
}

// Runner executes analysis steps. Each invocation works against its own
// working copy; there is no shared mutable state across concurrent runs.
type Runner struct {
	cfg     Config
	secrets *secretsScanner
	rt      runtime.Runtime
	log     *slog.Logger
}

// New creates a Runner using rt for command steps.
func New(cfg Config, rt runtime.Runtime, log *slog.Logger) (*Runner, error) {
	if cfg.ScanConcurrency <= 0 {
		cfg.ScanConcurrency = 4
	}
	secrets, err := newSecretsScanner()
	if err != nil {
		return nil, err
	}
	return &Runner{cfg: cfg, secrets: secrets, rt: rt, log: log}, nil
}

// Run executes the requested steps in order and returns the aggregated
// result. Findings are stably sorted by file, line, then rule id, so
// identical inputs always produce byte-identical ordered output. On a missed
// deadline no partial findings are returned; the caller gets a timeout
// classification instead.
func (r *Runner) Run(ctx context.Context, workDir string, kinds []store.AnalysisKind) (*store.AnalysisResult, error) {
	var findings []store.Finding

	for _, kind := range kinds {
		var (
			stepFindings []store.Finding
			err          error
		)
		switch kind {
		case store.AnalysisSecrets:
			stepFindings, err = r.scanSecrets(ctx, workDir)
		case store.AnalysisCommand:
			stepFindings, err = r.runCommand(ctx, workDir)
		default:
			return nil, fmt.Errorf("unknown analysis kind %q", kind)
		}
		if err != nil {
			return nil, r.classify(ctx, kind, err)
		}
		findings = append(findings, stepFindings...)
	}

	sortFindings(findings)

	passed := true
	for _, f := range findings {
		if f.Severity == store.SeverityError {
			passed = false
			break
		}
	}

	return &store.AnalysisResult{Passed: passed, Findings: findings}, nil
}

// classify maps step failures onto the taxonomy. A deadline hit means the
// run was killed mid-flight; its outcome is ambiguous and must not be
// retried or mistaken for success.
func (r *Runner) classify(ctx context.Context, kind store.AnalysisKind, err error) error {
	var pe *store.PipelineError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return store.NewPipelineError(store.KindTimeout, fmt.Errorf("analysis step %s timed out: %w", kind, err))
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return store.NewPipelineError(store.KindCancelled, err)
	}
	return store.NewPipelineError(store.KindRunFailed, fmt.Errorf("analysis step %s failed: %w", kind, err))
}

// scanSecrets walks the working copy and runs the leak detector over every
// regular file, a bounded number in parallel.
func (r *Runner) scanSecrets(ctx context.Context, workDir string) ([]store.Finding, error) {
	var paths []string
	err := filepath.WalkDir(workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > maxScanFileSize {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking working copy: %w", err)
	}

	var (
		mu       sync.Mutex
		findings []store.Finding
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.ScanConcurrency)

	for _, path := range paths {
		g.Go(func() error {
			b, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			rel, err := filepath.Rel(workDir, path)
			if err != nil {
				rel = path
			}
			found, err := r.secrets.scan(gctx, b, rel)
			if err != nil {
				return err
			}
			if len(found) > 0 {
				mu.Lock()
				findings = append(findings, found...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return findings, nil
}

// runCommand runs the configured external check through the runtime and
// turns a non-zero exit into a failing finding.
func (r *Runner) runCommand(ctx context.Context, workDir string) ([]store.Finding, error) {
	if len(r.cfg.CheckCommand) == 0 {
		return nil, fmt.Errorf("command analysis requested but no check command configured")
	}

	handle, err := r.rt.Start(ctx, runtime.StartOptions{
		WorkDir: workDir,
		Command: r.cfg.CheckCommand,
		Image:   r.cfg.CheckImage,
	})
	if err != nil {
		return nil, fmt.Errorf("starting check command: %w", err)
	}

	result, err := handle.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, result.Error
	}

	if result.ExitCode == 0 {
		return nil, nil
	}

	output := strings.TrimSpace(handle.Output())
	if len(output) > maxCommandOutput {
		output = output[:maxCommandOutput]
	}
	return []store.Finding{{
		Severity: store.SeverityError,
		RuleID:   "check-command",
		Message:  fmt.Sprintf("check exited with code %d: %s", result.ExitCode, output),
	}}, nil
}

// sortFindings orders findings by file path, then line, then rule id.
func sortFindings(findings []store.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].File != findings[j].File {
			return findings[i].File < findings[j].File
		}
		if findings[i].Line != findings[j].Line {
			return findings[i].Line < findings[j].Line
		}
		return findings[i].RuleID < findings[j].RuleID
	})
}
