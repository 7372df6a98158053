// Package cleanup runs the time-driven sweep of expired login attempts,
// SMS verification sessions and idle send throttles.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"medfayda/internal/auth/metrics"
)

// DefaultInterval is the sweep period when none is configured.
const DefaultInterval = 5 * time.Minute

// AttemptSweeper removes expired federated login attempts.
type AttemptSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// CodeStore removes expired SMS verification sessions.
type CodeStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Pruner forgets idle per-key limiters.
type Pruner interface {
	Prune(now time.Time) int
}

// CleanupResult summarizes one sweep.
type CleanupResult struct {
	SweptAttempts   int
	DeletedCodes    int
	PrunedThrottles int
}

// CleanupService periodically removes expired auth artifacts.
type CleanupService struct {
	attempts AttemptSweeper
	codes    CodeStore
	throttle Pruner
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// CleanupOption configures CleanupService.
type CleanupOption func(*CleanupService)

// WithCleanupInterval overrides the cleanup interval when greater than zero.
func WithCleanupInterval(interval time.Duration) CleanupOption {
	return func(s *CleanupService) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithCleanupLogger(logger *slog.Logger) CleanupOption {
	return func(s *CleanupService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithCleanupMetrics(m *metrics.Metrics) CleanupOption {
	return func(s *CleanupService) { s.metrics = m }
}

// WithCodeStore adds SMS verification sessions to the sweep.
func WithCodeStore(codes CodeStore) CleanupOption {
	return func(s *CleanupService) { s.codes = codes }
}

// WithThrottle adds idle send limiters to the sweep.
func WithThrottle(p Pruner) CleanupOption {
	return func(s *CleanupService) { s.throttle = p }
}

func WithClock(now func() time.Time) CleanupOption {
	return func(s *CleanupService) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a CleanupService. The attempt sweeper is required; the
// other targets are optional because the SMS fallback may be disabled.
func New(attempts AttemptSweeper, opts ...CleanupOption) (*CleanupService, error) {
	if attempts == nil {
		return nil, fmt.Errorf("attempt sweeper is required")
	}
	svc := &CleanupService{
		attempts: attempts,
		interval: DefaultInterval,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Start runs cleanup periodically until ctx is cancelled.
func (s *CleanupService) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "auth cleanup failed", "error", err)
			}
			if res.SweptAttempts+res.DeletedCodes+res.PrunedThrottles > 0 {
				s.logger.DebugContext(ctx, "auth cleanup finished",
					"swept_attempts", res.SweptAttempts,
					"deleted_codes", res.DeletedCodes,
					"pruned_throttles", res.PrunedThrottles,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single sweep. Failures of one target do not stop the
// others; they are joined into the returned error.
func (s *CleanupService) RunOnce(ctx context.Context) (CleanupResult, error) {
	now := s.now()
	var res CleanupResult
	var errs []error

	swept, err := s.attempts.Sweep(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep login attempts: %w", err))
	} else {
		res.SweptAttempts = swept
		if s.metrics != nil {
			s.metrics.AddAttemptsSwept(swept)
		}
	}

	if s.codes != nil {
		deleted, err := s.codes.DeleteExpired(ctx, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete expired verification sessions: %w", err))
		} else {
			res.DeletedCodes = deleted
		}
	}

	if s.throttle != nil {
		res.PrunedThrottles = s.throttle.Prune(now)
	}

	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}
	return res, nil
}
