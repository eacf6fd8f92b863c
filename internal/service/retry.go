package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/iliyamo/event-reservation/internal/apperr"
	"github.com/iliyamo/event-reservation/internal/config"
	"github.com/iliyamo/event-reservation/internal/repository"
)

// Transactor runs fn inside a single store transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// runner executes a unit of work in a transaction and retries it while it
// fails with a transient error. Business errors end the loop immediately.
type runner struct {
	tx     Transactor
	policy config.RetryConfig
	log    *zap.Logger
}

func (r runner) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialBackoff
	b.MaxInterval = r.policy.MaxBackoff

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := apperr.Transient(r.tx.WithTx(ctx, fn))
		if err == nil {
			return struct{}{}, nil
		}
		if apperr.KindOf(err) != apperr.KindTransient {
			return struct{}{}, backoff.Permanent(err)
		}
		fields := []zap.Field{zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err)}
		if repository.IsContention(err) {
			r.log.Debug("transaction contention", fields...)
		} else {
			r.log.Warn("transient store failure", fields...)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(max(r.policy.Attempts, 1))), backoff.WithMaxElapsedTime(r.policy.MaxElapsed))
	if err == nil {
		return nil
	}
	// Retry returns the last error or a context error once attempts run out.
	return apperr.Transient(err)
}

func defaultRetry() config.RetryConfig {
	return config.RetryConfig{
		Attempts:       3,
		InitialBackoff: 25 * time.Millisecond,
		MaxBackoff:     250 * time.Millisecond,
		MaxElapsed:     5 * time.Second,
	}
}
