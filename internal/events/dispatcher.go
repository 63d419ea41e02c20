package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	defaultDispatchWorkers = 2
	defaultDispatchBuffer  = 64
	defaultDispatchTimeout = 5 * time.Second
)

// Logger mirrors the structured hook used across the service.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Dispatcher hands events to a Publisher on background workers so request handlers never
// wait on the sink. Delivery is best effort: full buffers and sink failures are logged and
// the event is dropped.
type Dispatcher struct {
	publisher Publisher
	logger    Logger
	timeout   time.Duration

	queue chan PaymentCreated
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchLogger sets the failure logger.
func WithDispatchLogger(logger Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDispatchTimeout bounds each publish call.
func WithDispatchTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithDispatchBuffer sets how many events may wait for a worker.
func WithDispatchBuffer(size int) DispatcherOption {
	return func(d *Dispatcher) {
		if size > 0 {
			d.queue = make(chan PaymentCreated, size)
		}
	}
}

// NewDispatcher starts workers goroutines draining into publisher.
func NewDispatcher(publisher Publisher, workers int, opts ...DispatcherOption) *Dispatcher {
	if publisher == nil {
		publisher = Noop{}
	}
	if workers <= 0 {
		workers = defaultDispatchWorkers
	}
	d := &Dispatcher{
		publisher: publisher,
		logger:    func(context.Context, string, map[string]any) {},
		timeout:   defaultDispatchTimeout,
		queue:     make(chan PaymentCreated, defaultDispatchBuffer),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.run()
	}
	return d
}

// PublishPaymentCreated enqueues the event without blocking.
func (d *Dispatcher) PublishPaymentCreated(ctx context.Context, event PaymentCreated) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrPublisherClosed
	}
	select {
	case d.queue <- event:
		return nil
	default:
		d.logger(ctx, "events.dispatch.dropped", map[string]any{
			"orderRef": event.OrderRef,
			"reason":   "buffer full",
		})
		return errors.New("events: dispatch buffer full")
	}
}

// Close stops accepting events and waits for queued ones to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.publisher.PublishPaymentCreated(ctx, event); err != nil {
			d.logger(ctx, "events.dispatch.failed", map[string]any{
				"orderRef": event.OrderRef,
				"error":    err.Error(),
			})
		}
		cancel()
	}
}
