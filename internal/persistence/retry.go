package persistence

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"canvas-backend/internal/config"
	cerrors "canvas-backend/internal/errors"

	"go.uber.org/zap"
)

// Retrier runs an operation with bounded exponential backoff and jitter.
// Only errors classified as retryable are retried and context cancellation
// always stops the loop.
type Retrier struct {
	cfg     config.Retry
	logger  *zap.Logger
	onRetry func(operation string, attempt int, err error)

	mu   sync.Mutex
	rand *rand.Rand
}

// NewRetrier builds a Retrier from cfg.
func NewRetrier(cfg config.Retry, logger *zap.Logger) *Retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{
		cfg:    cfg,
		logger: logger.Named("retry"),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// OnRetry registers a callback invoked before every retry attempt.
func (r *Retrier) OnRetry(fn func(operation string, attempt int, err error)) *Retrier {
	r.onRetry = fn
	return r
}

// MaxRetries returns the configured retry budget.
func (r *Retrier) MaxRetries() int { return r.cfg.MaxRetries }

// Do runs fn until it succeeds, fails with a permanent error, the retry
// budget is spent or ctx is done. The last error is returned.
func (r *Retrier) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.backoff(attempt)
			if r.onRetry != nil {
				r.onRetry(operation, attempt, lastErr)
			}
			r.logger.Debug("retrying operation",
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !r.shouldRetry(ctx, lastErr) {
			return lastErr
		}
	}

	r.logger.Warn("operation failed after retries",
		zap.String("operation", operation),
		zap.Int("max_retries", r.cfg.MaxRetries),
		zap.Error(lastErr))
	return lastErr
}

func (r *Retrier) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if cerrors.Is(err, context.Canceled) || cerrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return cerrors.IsRetryable(err)
}

// backoff returns InitialDelay * BackoffFactor^(attempt-1), capped at
// MaxDelay, with +/- JitterFactor random variation.
func (r *Retrier) backoff(attempt int) time.Duration {
	base := float64(r.cfg.InitialDelay) * math.Pow(r.cfg.BackoffFactor, float64(attempt-1))
	if r.cfg.MaxDelay > 0 && base > float64(r.cfg.MaxDelay) {
		base = float64(r.cfg.MaxDelay)
	}
	if r.cfg.JitterFactor > 0 {
		r.mu.Lock()
		j := (r.rand.Float64()*2 - 1) * r.cfg.JitterFactor
		r.mu.Unlock()
		base += base * j
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}
