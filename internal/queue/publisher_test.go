package queue

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// silentBroker accepts TCP connections and never answers the AMQP handshake.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestPublisherGivesUpOnSilentBroker(t *testing.T) {
	pub := NewPublisher(silentBroker(t), 200*time.Millisecond)
	defer pub.Close()

	began := time.Now()
	err := pub.Publish(context.Background(), "activity", ActivityMessage{Type: TypeReservationJoined})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial broker")
	assert.Less(t, time.Since(began), 2*time.Second)
}

type recordingPublisher struct {
	mu    sync.Mutex
	sent  []string
	block chan struct{}
	fail  error
}

func (p *recordingPublisher) Publish(ctx context.Context, queueName string, _ any) error {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, queueName)
	return p.fail
}

func (p *recordingPublisher) queues() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sent...)
}

func TestNotifierDeliversInOrder(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewNotifier(pub, NotifierConfig{ActivityQueue: "activity", CleanupQueue: "cleanup", Buffer: 8}, nil)

	require.NoError(t, n.PublishActivity(context.Background(), ActivityMessage{Type: TypeReservationJoined}))
	require.NoError(t, n.PublishAssetCleanup(context.Background(), AssetCleanupMessage{Ref: "img.png"}))
	require.NoError(t, n.PublishActivity(context.Background(), ActivityMessage{Type: TypeReservationLeft}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { n.Run(ctx); close(done) }()

	assert.Eventually(t, func() bool { return len(pub.queues()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"activity", "cleanup", "activity"}, pub.queues())
	cancel()
	<-done
}

func TestNotifierDropsWhenBufferFull(t *testing.T) {
	n := NewNotifier(&recordingPublisher{}, NotifierConfig{ActivityQueue: "activity", Buffer: 2}, nil)

	began := time.Now()
	require.NoError(t, n.PublishActivity(context.Background(), ActivityMessage{}))
	require.NoError(t, n.PublishActivity(context.Background(), ActivityMessage{}))
	err := n.PublishActivity(context.Background(), ActivityMessage{})
	assert.True(t, errors.Is(err, ErrNotifierFull))
	assert.Less(t, time.Since(began), 100*time.Millisecond)
}

func TestNotifierBoundsEachSend(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	pub := &recordingPublisher{block: make(chan struct{})}
	n := NewNotifier(pub, NotifierConfig{ActivityQueue: "activity", Buffer: 4, PublishTimeout: 20 * time.Millisecond}, zap.New(core))

	require.NoError(t, n.PublishActivity(context.Background(), ActivityMessage{}))
	require.NoError(t, n.PublishActivity(context.Background(), ActivityMessage{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("publish message failed").Len() == 2
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, pub.queues())
}

func TestNotifierOverSilentBrokerDoesNotBlockCallers(t *testing.T) {
	pub := NewPublisher(silentBroker(t), 200*time.Millisecond)
	defer pub.Close()
	n := NewNotifier(pub, NotifierConfig{ActivityQueue: "activity", Buffer: 16}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	began := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, n.PublishActivity(context.Background(), ActivityMessage{Type: TypeReservationJoined}))
	}
	assert.Less(t, time.Since(began), 100*time.Millisecond)
}

func TestReconnectBackOffIsCapped(t *testing.T) {
	b := reconnectBackOff()
	var last time.Duration
	for i := 0; i < 20; i++ {
		last = b.NextBackOff()
		assert.LessOrEqual(t, last, 45*time.Second)
		assert.Positive(t, last)
	}
	b.Reset()
	assert.LessOrEqual(t, b.NextBackOff(), 1500*time.Millisecond)
}
