package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultDialTimeout bounds the TCP connect and AMQP handshake.
const DefaultDialTimeout = 5 * time.Second

// ErrNotifierFull is returned when the outbound buffer has no room left.
var ErrNotifierFull = errors.New("notifier buffer full")

// dial opens a broker connection whose connect and handshake are bounded by
// timeout. A silent peer fails instead of stalling the caller.
func dial(url string, timeout time.Duration) (*amqp.Connection, error) {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
}

// Publisher publishes JSON messages to durable queues on the default
// exchange. The connection is opened lazily and reopened after a failure.
type Publisher struct {
	url         string
	dialTimeout time.Duration

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

// NewPublisher returns a publisher for the broker at url. A non-positive
// dialTimeout selects DefaultDialTimeout.
func NewPublisher(url string, dialTimeout time.Duration) *Publisher {
	return &Publisher{url: url, dialTimeout: dialTimeout, declared: make(map[string]bool)}
}

// Publish marshals body and sends it to queueName as a persistent message.
func (p *Publisher) Publish(ctx context.Context, queueName string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	if !p.declared[queueName] {
		// Durable so messages survive broker restarts.
		if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
			p.reset()
			return fmt.Errorf("queue declare: %w", err)
		}
		p.declared[queueName] = true
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		p.reset()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// channel returns the open channel, dialing when needed. Callers hold p.mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	conn, err := dial(p.url, p.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
	p.declared = make(map[string]bool)
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

// MessagePublisher sends one message body to a named queue.
type MessagePublisher interface {
	Publish(ctx context.Context, queueName string, body any) error
}

type outbound struct {
	queue string
	body  any
}

// Notifier routes domain messages to their configured queues. Messages are
// buffered and sent by Run, so callers never wait on the broker. When the
// buffer is full new messages are dropped.
type Notifier struct {
	pub           MessagePublisher
	activityQueue string
	cleanupQueue  string
	timeout       time.Duration
	log           *zap.Logger
	out           chan outbound
}

// NotifierConfig sizes the outbound buffer and bounds each send.
type NotifierConfig struct {
	ActivityQueue  string
	CleanupQueue   string
	Buffer         int
	PublishTimeout time.Duration
}

// NewNotifier binds pub to the activity and asset cleanup queues. Run must
// be started for messages to leave the buffer.
func NewNotifier(pub MessagePublisher, cfg NotifierConfig, log *zap.Logger) *Notifier {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		pub:           pub,
		activityQueue: cfg.ActivityQueue,
		cleanupQueue:  cfg.CleanupQueue,
		timeout:       cfg.PublishTimeout,
		log:           log,
		out:           make(chan outbound, cfg.Buffer),
	}
}

// PublishActivity queues msg for the activity queue.
func (n *Notifier) PublishActivity(_ context.Context, msg ActivityMessage) error {
	return n.enqueue(n.activityQueue, msg)
}

// PublishAssetCleanup queues msg for the asset cleanup queue.
func (n *Notifier) PublishAssetCleanup(_ context.Context, msg AssetCleanupMessage) error {
	return n.enqueue(n.cleanupQueue, msg)
}

func (n *Notifier) enqueue(queueName string, body any) error {
	select {
	case n.out <- outbound{queue: queueName, body: body}:
		return nil
	default:
		return fmt.Errorf("queue %s: %w", queueName, ErrNotifierFull)
	}
}

// Run sends buffered messages until ctx is cancelled. Each send gets its own
// timeout; failures are logged and the message is dropped. Messages still
// buffered at shutdown are dropped.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if left := len(n.out); left > 0 {
				n.log.Warn("notifier stopped with pending messages", zap.Int("dropped", left))
			}
			return
		case m := <-n.out:
			n.send(ctx, m)
		}
	}
}

func (n *Notifier) send(ctx context.Context, m outbound) {
	sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.pub.Publish(sendCtx, m.queue, m.body); err != nil {
		n.log.Warn("publish message failed", zap.String("queue", m.queue), zap.Error(err))
	}
}
