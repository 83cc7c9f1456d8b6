// Package health holds the process-wide degraded flag.
package health

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mmynk/equb/internal/metrics"
)

// Status records whether financial writes are currently blocked.
//
// The integrity check is the only writer; the write guard and the metrics
// endpoint read it. One Status is created per process and passed by pointer.
type Status struct {
	mu       sync.RWMutex
	degraded bool
	reason   string
	since    time.Time

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewStatus returns a healthy Status. m and logger may be nil.
func NewStatus(m *metrics.Metrics, logger *slog.Logger) *Status {
	if logger == nil {
		logger = slog.Default()
	}
	m.SetDegraded(false)
	return &Status{metrics: m, logger: logger}
}

// MarkDegraded blocks financial writes until Restore is called.
func (s *Status) MarkDegraded(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.degraded {
		s.since = time.Now().UTC()
		s.logger.Error("System degraded, financial writes blocked", "reason", reason)
	}
	s.degraded = true
	s.reason = reason
	s.metrics.SetDegraded(true)
}

// Restore clears the degraded flag.
func (s *Status) Restore() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.degraded {
		s.logger.Info("System restored, financial writes allowed", "degraded_for", time.Since(s.since))
	}
	s.degraded = false
	s.reason = ""
	s.since = time.Time{}
	s.metrics.SetDegraded(false)
}

// IsDegraded reports whether financial writes are blocked.
func (s *Status) IsDegraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// Reason returns why the system is degraded, or "".
func (s *Status) Reason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}
