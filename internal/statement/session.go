package statement

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"etat-statement-service/internal/metrics"
	"etat-statement-service/pkg/logger"
)

// ErrStaleResult is returned by Session.Refresh when a newer request was
// issued while the computation was in flight; its result was discarded
var ErrStaleResult = stderrors.New("statement result superseded by a newer request")

// Session holds the currently displayed statement of one interactive view.
// Every Refresh takes a new generation; only the result of the latest
// generation is ever published.
type Session struct {
	computer Computer
	metrics  *metrics.Metrics
	logger   logger.Logger

	generation atomic.Uint64

	mu      sync.RWMutex
	current *Result
}

// NewSession creates a session over computer
func NewSession(computer Computer, m *metrics.Metrics) *Session {
	return &Session{
		computer: computer,
		metrics:  m,
		logger:   logger.WithComponent("session"),
	}
}

// Refresh computes req and publishes the result if no newer request was
// issued meanwhile. A rejected request leaves the displayed statement as it was.
func (s *Session) Refresh(ctx context.Context, req Request) (*Result, error) {
	gen := s.generation.Add(1)

	result, err := s.computer.Compute(ctx, req)
	if err != nil {
		if s.generation.Load() != gen {
			return nil, ErrStaleResult
		}
		return nil, err
	}
	result.Generation = gen

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation.Load() || (s.current != nil && s.current.Generation > gen) {
		s.metrics.IncrStaleDiscarded()
		s.logger.WithFields(logger.Fields{
			"generation": gen,
			"latest":     s.generation.Load(),
		}).Debug("Discarded stale statement result")
		return nil, ErrStaleResult
	}

	s.current = result
	return result, nil
}

// Current returns the published statement, or nil before the first publish
func (s *Session) Current() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Generation returns the generation of the most recently issued request
func (s *Session) Generation() uint64 {
	return s.generation.Load()
}
