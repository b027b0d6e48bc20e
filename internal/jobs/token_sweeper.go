// token_sweeper.go implements the TokenSweeper background job, which
// periodically deletes access token rows whose stored expiry has passed.
// Sweeping is pure hygiene: verification already denies expired tokens, so a
// missed sweep never grants access, and a concurrent sweep never deletes a row
// a verification could still accept (only already-expired rows are touched).
// The job is therefore safe to run on every instance of the service at once.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/formgate/formgate/internal/telemetry"
)

// TokenPurger is the slice of the token store the sweeper needs.
type TokenPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// TokenSweeper periodically purges expired token rows.
type TokenSweeper struct {
	repo     TokenPurger
	interval time.Duration
	stopChan chan struct{}
}

// NewTokenSweeper creates a TokenSweeper running every interval
// (default 1h when interval <= 0).
func NewTokenSweeper(repo TokenPurger, interval time.Duration) *TokenSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &TokenSweeper{
		repo:     repo,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background sweep loop. It runs an initial sweep
// immediately, then repeats on the configured interval. The loop exits when
// ctx is cancelled or Stop() is called.
func (s *TokenSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("token retention sweeper started", "interval", s.interval)

	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			slog.Info("token retention sweeper stopped")
			return
		case <-ctx.Done():
			slog.Info("token retention sweeper context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (s *TokenSweeper) Stop() {
	close(s.stopChan)
}

// RunOnce performs a single sweep and returns the number of rows deleted.
// Exposed for the manual maintenance endpoint and tests.
func (s *TokenSweeper) RunOnce(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx)
}

func (s *TokenSweeper) sweep(ctx context.Context) {
	count, err := s.RunOnce(ctx)
	if err != nil {
		slog.Error("token retention sweep failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("token retention sweep completed", "deleted", count)
	}
	telemetry.TokensSweptTotal.Add(float64(count))
}
