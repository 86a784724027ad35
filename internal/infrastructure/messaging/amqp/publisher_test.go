package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/event"
)

type published struct {
	exchange, key string
	msg           amqp091.Publishing
}

type fakeChannel struct {
	mu          sync.Mutex
	declared    []string
	published   []published
	publishErrs []error
	closed      bool
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error {
	c.declared = append(c.declared, name+":"+kind)
	return nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.publishErrs) > 0 {
		err := c.publishErrs[0]
		c.publishErrs = c.publishErrs[1:]
		if err != nil {
			return err
		}
	}
	c.published = append(c.published, published{exchange, key, msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

type fakeConn struct{ closed bool }

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type fakeBroker struct {
	channels []*fakeChannel
	dialErr  error
	next     func() *fakeChannel
}

func (b *fakeBroker) dial(url string) (channel, io.Closer, error) {
	if b.dialErr != nil {
		return nil, nil, b.dialErr
	}
	ch := &fakeChannel{}
	if b.next != nil {
		ch = b.next()
	}
	b.channels = append(b.channels, ch)
	return ch, &fakeConn{}, nil
}

func newTestPublisher(t *testing.T, b *fakeBroker) *Publisher {
	t.Helper()
	p, err := newPublisher(Config{URL: "amqp://test", Exchange: "imprest.events"}, b.dial, zap.NewNop())
	require.NoError(t, err)
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestPublisher_Publish(t *testing.T) {
	b := &fakeBroker{}
	p := newTestPublisher(t, b)
	defer p.Close()

	require.Len(t, b.channels, 1)
	assert.Equal(t, []string{"imprest.events:topic"}, b.channels[0].declared)

	evt := event.NewEvent(event.TypeDisbursed, "imp-1", map[string]interface{}{"amount": "100"})
	require.NoError(t, p.Publish(context.Background(), evt))

	ch := b.channels[0]
	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, "imprest.events", got.exchange)
	assert.Equal(t, "imprest.disbursed", got.key)
	assert.Equal(t, evt.ID, got.msg.MessageId)
	assert.Equal(t, uint8(amqp091.Persistent), got.msg.DeliveryMode)

	var decoded event.Event
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	assert.Equal(t, evt.ImprestID, decoded.ImprestID)
	assert.Equal(t, "100", decoded.Payload["amount"])
}

func TestPublisher_ReconnectsOnConnectionLoss(t *testing.T) {
	b := &fakeBroker{}
	first := true
	b.next = func() *fakeChannel {
		if first {
			first = false
			return &fakeChannel{publishErrs: []error{amqp091.ErrClosed}}
		}
		return &fakeChannel{}
	}
	p := newTestPublisher(t, b)
	defer p.Close()

	require.NoError(t, p.Publish(context.Background(), event.NewEvent(event.TypeRejected, "imp-2", nil)))
	require.Len(t, b.channels, 2)
	assert.True(t, b.channels[0].closed)
	assert.Len(t, b.channels[1].published, 1)
}

func TestPublisher_NonConnectionErrorIsNotRetried(t *testing.T) {
	b := &fakeBroker{next: func() *fakeChannel {
		return &fakeChannel{publishErrs: []error{errors.New("NOT_FOUND - no exchange")}}
	}}
	p := newTestPublisher(t, b)
	defer p.Close()

	err := p.Publish(context.Background(), event.NewEvent(event.TypeRejected, "imp-3", nil))
	require.Error(t, err)
	assert.Len(t, b.channels, 1)
}

func TestPublisher_DialFailure(t *testing.T) {
	_, err := newPublisher(Config{URL: "amqp://down"}, (&fakeBroker{dialErr: errors.New("connection refused")}).dial, zap.NewNop())
	assert.Error(t, err)
}

func TestPublisher_Closed(t *testing.T) {
	p := newTestPublisher(t, &fakeBroker{})
	require.NoError(t, p.Close())
	assert.Error(t, p.Publish(context.Background(), event.NewEvent(event.TypeRejected, "imp-4", nil)))
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{15, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.expected, exponentialBackoff(tt.attempt))
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, isConnectionError(nil))
	assert.True(t, isConnectionError(amqp091.ErrClosed))
	assert.True(t, isConnectionError(errors.New("unexpected EOF")))
	assert.True(t, isConnectionError(errors.New("connection refused")))
	assert.False(t, isConnectionError(errors.New("NOT_FOUND - no exchange")))
}
