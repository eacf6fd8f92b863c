package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/event-reservation/internal/asset"
)

// Handler processes one delivery body. A returned error rejects the message:
// it is requeued once and dropped if it fails again on redelivery.
type Handler func(ctx context.Context, body []byte) error

// Consume connects to the broker, declares queueName (durable) and feeds
// deliveries to handle until ctx is cancelled. Connection failures are
// retried with exponential backoff capped at 30s.
func Consume(ctx context.Context, url string, dialTimeout time.Duration, queueName string, handle Handler, log *zap.Logger) error {
	log = log.With(zap.String("queue", queueName))
	retry := reconnectBackOff()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := dial(url, dialTimeout)
		if err != nil {
			wait := retry.NextBackOff()
			log.Warn("failed to dial broker", zap.Error(err), zap.Duration("retry_in", wait))
			if !sleep(ctx, wait) {
				return ctx.Err()
			}
			continue
		}
		retry.Reset()

		err = consumeLoop(ctx, conn, queueName, handle, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, retry.NextBackOff()) {
			return ctx.Err()
		}
	}
}

// reconnectBackOff starts at 1s and doubles up to 30s. It never stops on
// its own; Consume gives up only when ctx ends.
func reconnectBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.Reset()
	return b
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queueName string, handle Handler, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handle(ctx, d.Body); err != nil {
				log.Warn("handle message failed", zap.Error(err), zap.Bool("redelivered", d.Redelivered))
				_ = d.Nack(false, !d.Redelivered)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// ActivityLogHandler writes each activity message as one structured entry
// to out.
func ActivityLogHandler(out *zap.Logger) Handler {
	return func(_ context.Context, body []byte) error {
		var msg ActivityMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("unmarshal activity: %w", err)
		}
		out.Info(msg.Type,
			zap.String("event_id", msg.EventID),
			zap.String("participant_id", msg.ParticipantID),
			zap.String("actor_id", msg.ActorID),
			zap.String("reservation_id", msg.ReservationID),
			zap.Int("attendee_count", msg.AttendeeCount),
			zap.Int("removed_reservations", msg.RemovedReservations),
			zap.Int("likes_count", msg.LikesCount),
			zap.String("occurred_at", msg.OccurredAt),
		)
		return nil
	}
}

// AssetCleanupHandler retries deletion of assets left behind by failed
// inline deletes. Already missing assets count as cleaned up.
func AssetCleanupHandler(store asset.Store, log *zap.Logger) Handler {
	return func(ctx context.Context, body []byte) error {
		var msg AssetCleanupMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("unmarshal asset cleanup: %w", err)
		}
		if msg.Ref == "" {
			return nil
		}
		if err := store.Delete(ctx, msg.Ref); err != nil && !errors.Is(err, asset.ErrNotFound) {
			return fmt.Errorf("delete asset %s: %w", msg.Ref, err)
		}
		log.Info("orphaned asset removed", zap.String("asset_ref", msg.Ref), zap.String("event_id", msg.EventID))
		return nil
	}
}
