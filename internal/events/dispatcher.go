package events

import (
	"context"
	"errors"
	"sync"

	"github.com/Harardin/nft-custody/pkg/log"
)

// Dispatcher hands events to a sink from a single goroutine, keeping their order.
// Publish blocks only when the buffer is full.
type Dispatcher struct {
	logger log.Logger
	next   Sink

	mu     sync.RWMutex
	closed bool
	ch     chan Event
	done   chan struct{}
}

var ErrDispatcherClosed = errors.New("dispatcher is closed")

func NewDispatcher(logger log.Logger, next Sink, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 128
	}

	return &Dispatcher{
		logger: logger,
		next:   next,
		ch:     make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

// Run delivers events until Close is called and the buffer is drained
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)

	for e := range d.ch {
		if err := d.next.Publish(ctx, e); err != nil {
			d.logger.Errorf("failed to deliver %s: %v", e, err)
		}
	}
}

func (d *Dispatcher) Publish(ctx context.Context, e Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for Run to drain the buffer. Run must have been started.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
	d.mu.Unlock()

	<-d.done
}
