// Package service implements the reservation and event lifecycle
// operations. Every multi-record mutation runs inside one store
// transaction; side effects outside the store (messages, cache
// invalidation, asset cleanup) happen only after commit and never change
// the outcome reported to the caller.
package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iliyamo/event-reservation/internal/clock"
	"github.com/iliyamo/event-reservation/internal/config"
	"github.com/iliyamo/event-reservation/internal/queue"
)

const tracerName = "github.com/iliyamo/event-reservation/internal/service"

// Notifier publishes domain messages after a transaction commits.
type Notifier interface {
	PublishActivity(ctx context.Context, msg queue.ActivityMessage) error
	PublishAssetCleanup(ctx context.Context, msg queue.AssetCleanupMessage) error
}

// CacheInvalidator drops cached reads of one event.
type CacheInvalidator interface {
	InvalidateEvent(ctx context.Context, eventID string) error
}

type options struct {
	clock  clock.Clock
	log    *zap.Logger
	retry  config.RetryConfig
	notify Notifier
	cache  CacheInvalidator
	tracer trace.Tracer
}

// Option configures a service.
type Option func(*options)

// WithClock sets the time source. Defaults to the system clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRetry sets the transient retry policy.
func WithRetry(r config.RetryConfig) Option {
	return func(o *options) { o.retry = r }
}

// WithNotifier enables activity and asset cleanup messages.
func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notify = n }
}

// WithCache enables per-event cache invalidation after mutations.
func WithCache(c CacheInvalidator) Option {
	return func(o *options) { o.cache = c }
}

func buildOptions(opts []Option) options {
	o := options{
		clock: clock.NewSystem(),
		log:   zap.NewNop(),
		retry: defaultRetry(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.retry.Attempts < 1 {
		o.retry.Attempts = 1
	}
	if o.retry.InitialBackoff <= 0 {
		o.retry.InitialBackoff = defaultRetry().InitialBackoff
	}
	if o.retry.MaxBackoff < o.retry.InitialBackoff {
		o.retry.MaxBackoff = o.retry.InitialBackoff
	}
	if o.retry.MaxElapsed <= 0 {
		o.retry.MaxElapsed = defaultRetry().MaxElapsed
	}
	o.tracer = otel.Tracer(tracerName)
	return o
}

// invalidate drops cached reads of the event. Failures only cost freshness
// until the entry expires.
func (o options) invalidate(ctx context.Context, eventID string) {
	if o.cache == nil {
		return
	}
	if err := o.cache.InvalidateEvent(context.WithoutCancel(ctx), eventID); err != nil {
		o.log.Warn("cache invalidation failed", zap.String("event_id", eventID), zap.Error(err))
	}
}

func (o options) publishActivity(ctx context.Context, msg queue.ActivityMessage) {
	if o.notify == nil {
		return
	}
	msg.OccurredAt = o.clock.Now().Format(timeLayout)
	if err := o.notify.PublishActivity(context.WithoutCancel(ctx), msg); err != nil {
		o.log.Warn("publish activity failed",
			zap.String("type", msg.Type), zap.String("event_id", msg.EventID), zap.Error(err))
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
