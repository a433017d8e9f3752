package observability

import (
	"context"
	"testing"
	"time"
)

func TestInit_InvalidEndpoint(t *testing.T) {
	// An unreachable endpoint should still succeed because the gRPC
	// connection is lazy by default.
	ctx := context.Background()

	shutdown, err := Init(ctx, "test-service", "invalid-endpoint:9999")
	if err != nil {
		// Some environments may fail immediately, that's also acceptable
		t.Logf("Init failed as expected in this environment: %v", err)
		return
	}

	if shutdown == nil {
		t.Error("expected shutdown function to be non-nil")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	_ = shutdown(shutdownCtx)
}

func TestInit_ValidServiceName(t *testing.T) {
	ctx := context.Background()

	// Using localhost which won't connect but won't error on init
	shutdown, err := Init(ctx, "feedbacker-test", "localhost:4317")
	if err != nil {
		t.Logf("Init returned error (may be expected in test environment): %v", err)
		return
	}

	if shutdown == nil {
		t.Error("expected shutdown function to be non-nil")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	_ = shutdown(shutdownCtx)
}
