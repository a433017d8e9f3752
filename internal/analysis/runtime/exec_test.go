package runtime

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestExecRuntime_Success(t *testing.T) {
	t.Parallel()

	rt := NewExecRuntime()
	h, err := rt.Start(context.Background(), StartOptions{
		WorkDir: t.TempDir(),
		Command: []string{"sh", "-c", "echo hello"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	result, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("got exit code %d, want 0", result.ExitCode)
	}
	if !strings.Contains(h.Output(), "hello") {
		t.Errorf("output missing command stdout: %q", h.Output())
	}
}

func TestExecRuntime_NonZeroExit(t *testing.T) {
	t.Parallel()

	rt := NewExecRuntime()
	h, err := rt.Start(context.Background(), StartOptions{
		WorkDir: t.TempDir(),
		Command: []string{"sh", "-c", "echo broken >&2; exit 3"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	result, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("got exit code %d, want 3", result.ExitCode)
	}
	if !strings.Contains(h.Output(), "broken") {
		t.Errorf("output missing stderr: %q", h.Output())
	}
}

func TestExecRuntime_DeadlineKillsProcess(t *testing.T) {
	t.Parallel()

	rt := NewExecRuntime()
	h, err := rt.Start(context.Background(), StartOptions{
		WorkDir: t.TempDir(),
		Command: []string{"sleep", "60"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := h.Wait(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("got %v, want DeadlineExceeded", err)
	}
	if result.ExitCode != -1 {
		t.Errorf("got exit code %d, want -1", result.ExitCode)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("kill took too long: %v", elapsed)
	}
}

func TestExecRuntime_EmptyCommand(t *testing.T) {
	t.Parallel()

	rt := NewExecRuntime()
	if _, err := rt.Start(context.Background(), StartOptions{WorkDir: t.TempDir()}); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestExecRuntime_EnvPassedThrough(t *testing.T) {
	t.Parallel()

	rt := NewExecRuntime()
	h, err := rt.Start(context.Background(), StartOptions{
		WorkDir: t.TempDir(),
		Command: []string{"sh", "-c", "echo $FEEDBACKER_JOB_ID"},
		Env:     map[string]string{"FEEDBACKER_JOB_ID": "job-42"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := h.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if !strings.Contains(h.Output(), "job-42") {
		t.Errorf("env not passed through: %q", h.Output())
	}
}
