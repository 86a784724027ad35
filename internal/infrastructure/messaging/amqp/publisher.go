// Package amqp publishes committed imprest events to a RabbitMQ exchange.
// The routing key is the event type, so consumers bind to the transitions they care about.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/port"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/event"
)

const maxPublishAttempts = 3

// Config holds broker configuration
type Config struct {
	URL            string
	Exchange       string
	ExchangeKind   string
	PublishTimeout time.Duration
}

type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

type dialFunc func(url string) (channel, io.Closer, error)

func dialAMQP(url string) (channel, io.Closer, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, conn, nil
}

// Publisher implements port.EventPublisher
type Publisher struct {
	cfg    Config
	dial   dialFunc
	sleep  func(ctx context.Context, d time.Duration) error
	logger *zap.Logger

	mu     sync.Mutex
	conn   io.Closer
	ch     channel
	closed bool
}

// NewPublisher connects to the broker and declares the exchange
func NewPublisher(cfg Config, logger *zap.Logger) (*Publisher, error) {
	return newPublisher(cfg, dialAMQP, logger)
}

func newPublisher(cfg Config, dial dialFunc, logger *zap.Logger) (*Publisher, error) {
	if cfg.ExchangeKind == "" {
		cfg.ExchangeKind = "topic"
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	p := &Publisher{
		cfg:    cfg,
		dial:   dial,
		sleep:  sleepContext,
		logger: logger,
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect must be called with mu held or before the publisher is shared
func (p *Publisher) connect() error {
	ch, conn, err := p.dial(p.cfg.URL)
	if err != nil {
		return err
	}

	err = ch.ExchangeDeclare(
		p.cfg.Exchange,     // name
		p.cfg.ExchangeKind, // type
		true,               // durable
		false,              // auto-deleted
		false,              // internal
		false,              // no-wait
		nil,                // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}

	p.ch, p.conn = ch, conn
	p.logger.Info("Connected to message broker",
		zap.String("exchange", p.cfg.Exchange),
		zap.String("kind", p.cfg.ExchangeKind))
	return nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Publish sends the event as a persistent JSON message, reconnecting on connection loss
func (p *Publisher) Publish(ctx context.Context, evt *event.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     evt.ID,
		CorrelationId: evt.CorrelationID,
		Type:          evt.Type.String(),
		Timestamp:     evt.Timestamp,
		Body:          body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < maxPublishAttempts; attempt++ {
		if p.closed {
			return errors.New("publisher is closed")
		}
		if attempt > 0 {
			if err := p.sleep(ctx, exponentialBackoff(attempt-1)); err != nil {
				return err
			}
		}
		if p.ch == nil {
			if err := p.connect(); err != nil {
				lastErr = err
				p.logger.Warn("Reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
		}

		pubCtx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
		err := p.ch.PublishWithContext(pubCtx,
			p.cfg.Exchange,    // exchange
			evt.Type.String(), // routing key
			false,             // mandatory
			false,             // immediate
			msg,
		)
		cancel()
		if err == nil {
			p.logger.Debug("Published event",
				zap.String("event_type", evt.Type.String()),
				zap.String("event_id", evt.ID),
				zap.String("imprest_id", evt.ImprestID))
			return nil
		}

		lastErr = err
		if !isConnectionError(err) {
			break
		}
		p.logger.Warn("Connection lost while publishing", zap.Int("attempt", attempt), zap.Error(err))
		p.reset()
	}

	p.logger.Error("Failed to publish event",
		zap.String("event_type", evt.Type.String()),
		zap.String("event_id", evt.ID),
		zap.Error(lastErr))
	return fmt.Errorf("publish message: %w", lastErr)
}

// Close closes the channel and connection
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	var err error
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		err = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
	return err
}

// exponentialBackoff doubles from one second and caps at thirty
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return 30 * time.Second
	}
	d := time.Second << attempt
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) || errors.Is(err, io.EOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection") || strings.Contains(msg, "closed") || strings.Contains(msg, "eof")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ port.EventPublisher = (*Publisher)(nil)
