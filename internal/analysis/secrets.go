package analysis

import (
	"context"
	"fmt"
	"sync"

	"feedbacker/internal/store"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// secretsScanner wraps a pool of gitleaks detectors so concurrent file scans
// never share one instance.
type secretsScanner struct {
	pool sync.Pool
	mx   sync.Mutex
}

func newSecretsScanner() (*secretsScanner, error) {
	first, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("creating gitleaks detector: %w", err)
	}
	s := &secretsScanner{}
	s.pool = sync.Pool{
		New: func() any {
			s.mx.Lock()
			defer s.mx.Unlock()
			detector, err := detect.NewDetectorDefaultConfig()
			if err != nil {
				panic(err)
			}
			return detector
		},
	}
	s.pool.Put(first)
	return s, nil
}

// scan detects leaked credentials in one file's contents. Callers may run
// scans concurrently; each borrows its own detector from the pool.
func (s *secretsScanner) scan(ctx context.Context, b []byte, path string) ([]store.Finding, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	detector := s.pool.Get().(*detect.Detector)
	defer s.pool.Put(detector)

	var ret []store.Finding
	for _, finding := range detector.DetectString(string(b)) {
		ret = append(ret, store.Finding{
			Severity: store.SeverityError,
			RuleID:   finding.RuleID,
			Message:  finding.Description,
			File:     path,
			Line:     finding.StartLine,
		})
	}
	return ret, nil
}
