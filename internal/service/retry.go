package service

import (
	"context"
	"errors"
	"time"

	"github.com/neofi/eventapi/internal/domain"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 25 * time.Millisecond
)

// sleepFunc waits for the given duration or until the context is done.
// Injectable so retry tests run without real delays.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryAppend runs fn up to maxAttempts times, retrying only on
// ConcurrentModification with exponential backoff. StorageTimeout is never
// retried: it is ambiguous whether the write committed.
func retryAppend(ctx context.Context, maxAttempts int, backoffBase time.Duration, sleep sleepFunc, fn func() (domain.EventVersion, error)) (domain.EventVersion, error) {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	var lastErr error
	backoff := backoffBase
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		version, err := fn()
		if err == nil {
			return version, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrConcurrentModification) || attempt == maxAttempts {
			return domain.EventVersion{}, err
		}
		if err := sleep(ctx, backoff); err != nil {
			return domain.EventVersion{}, lastErr
		}
		backoff *= 2
	}
	return domain.EventVersion{}, lastErr
}
