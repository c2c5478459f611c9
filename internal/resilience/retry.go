package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/shubhsaxena/catalog-search/internal/config"
)

type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

func RetryConfigFrom(c config.RetryConfig) RetryConfig {
	return RetryConfig{
		MaxAttempts: c.MaxAttempts,
		InitialWait: c.InitialWait,
		MaxWait:     c.MaxWait,
		Multiplier:  c.Multiplier,
	}
}

// Retry runs fn until it succeeds, MaxAttempts is reached, or ctx is done.
// Waits grow by Multiplier and are capped at MaxWait.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	wait := cfg.InitialWait

	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}

		wait = time.Duration(float64(wait) * cfg.Multiplier)
		if cfg.MaxWait > 0 && wait > cfg.MaxWait {
			wait = cfg.MaxWait
		}
	}

	return fmt.Errorf("all %d retry attempts failed: %w", attempts, lastErr)
}
