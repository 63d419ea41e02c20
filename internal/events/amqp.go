package events

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

// amqpChannel is the subset of *amqp.Channel the pool relies on.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type channelFactory func() (amqpChannel, error)

// ChannelPool keeps a fixed set of open AMQP channels on one connection.
type ChannelPool struct {
	channels chan amqpChannel
	create   channelFactory
	closeFn  func() error
	logger   *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewChannelPool dials the broker, declares the durable queue and pre-creates size channels.
func NewChannelPool(url, queue string, size int, logger *zap.Logger) (*ChannelPool, error) {
	if queue == "" {
		return nil, errors.New("amqp pool: queue is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	factory := func() (amqpChannel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("failed to declare queue: %w", err)
		}
		return ch, nil
	}
	pool, err := newChannelPool(factory, size, conn.Close, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return pool, nil
}

func newChannelPool(create channelFactory, size int, closeFn func() error, logger *zap.Logger) (*ChannelPool, error) {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool := &ChannelPool{
		channels: make(chan amqpChannel, size),
		create:   create,
		closeFn:  closeFn,
		logger:   logger,
	}
	for i := 0; i < size; i++ {
		ch, err := create()
		if err != nil {
			pool.drain()
			return nil, fmt.Errorf("failed to create channel %d: %w", i, err)
		}
		pool.channels <- ch
	}
	logger.Info("amqp channel pool ready", zap.Int("size", size))
	return pool, nil
}

// Get waits for a free channel, replacing one the broker has closed.
func (p *ChannelPool) Get(ctx context.Context) (amqpChannel, error) {
	select {
	case ch, ok := <-p.channels:
		if !ok {
			return nil, ErrPublisherClosed
		}
		if ch.IsClosed() {
			fresh, err := p.create()
			if err != nil {
				return nil, err
			}
			return fresh, nil
		}
		return ch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put returns a channel to the pool. Closed channels are dropped and extras are closed.
func (p *ChannelPool) Put(ch amqpChannel) {
	if ch == nil || ch.IsClosed() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = ch.Close()
		return
	}
	select {
	case p.channels <- ch:
	default:
		_ = ch.Close()
	}
}

// Close closes all pooled channels and the connection.
func (p *ChannelPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.drain()
	var err error
	if p.closeFn != nil {
		err = p.closeFn()
	}
	p.logger.Info("amqp channel pool closed")
	return err
}

func (p *ChannelPool) drain() {
	close(p.channels)
	for ch := range p.channels {
		_ = ch.Close()
	}
}

// AMQPPublisher publishes checkout events as persistent JSON messages on a queue.
type AMQPPublisher struct {
	pool  *ChannelPool
	queue string
	now   func() time.Time
}

// NewAMQPPublisher wires a publisher onto an existing pool.
func NewAMQPPublisher(pool *ChannelPool, queue string) (*AMQPPublisher, error) {
	if pool == nil {
		return nil, errors.New("amqp publisher: pool is required")
	}
	if queue == "" {
		return nil, errors.New("amqp publisher: queue is required")
	}
	return &AMQPPublisher{pool: pool, queue: queue, now: time.Now}, nil
}

// PublishPaymentCreated publishes through the default exchange using the queue as routing key.
func (p *AMQPPublisher) PublishPaymentCreated(ctx context.Context, event PaymentCreated) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal payment event: %w", err)
	}

	ch, err := p.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get channel from pool: %w", err)
	}
	defer p.pool.Put(ch)

	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Type:         TypePaymentCreated,
		MessageId:    event.OrderRef,
		Timestamp:    p.now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish payment event: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (p *AMQPPublisher) Close() error {
	return p.pool.Close()
}
