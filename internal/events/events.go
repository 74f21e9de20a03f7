// Package events carries custody notifications emitted by the vault.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Harardin/nft-custody/pkg/chain"
	"github.com/Harardin/nft-custody/pkg/log"
)

type Kind string

const (
	KindHold    Kind = "Hold"
	KindRelease Kind = "Release"
)

// RoutingKey used on the bus
func (k Kind) RoutingKey() string {
	switch k {
	case KindHold:
		return "custody.hold"
	case KindRelease:
		return "custody.release"
	default:
		return "custody.unknown"
	}
}

type Event struct {
	Kind      Kind          `json:"kind"`
	Depositor chain.Address `json:"depositor"`
	Token     chain.Address `json:"token"`
	TokenID   uint64        `json:"token_id"`
	Vault     chain.Address `json:"vault"`
	At        time.Time     `json:"at"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s(%s, %s, %d)", e.Kind, e.Depositor, e.Token, e.TokenID)
}

type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Publish(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Discard drops every event
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// Multi publishes to every sink, one failing sink does not stop the others
type Multi []Sink

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to publish %s to %d of %d sinks: %v", e.Kind, len(errs), len(m), errs)
	}

	return nil
}

// Recorder keeps the last `limit` events in memory
type Recorder struct {
	mu     sync.RWMutex
	limit  int
	events []Event
}

func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 1000
	}
	return &Recorder{limit: limit}
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, e)
	if len(r.events) > r.limit {
		r.events = append([]Event(nil), r.events[len(r.events)-r.limit:]...)
	}

	return nil
}

// Events returns copy of recorded events, oldest first
func (r *Recorder) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]Event(nil), r.events...)
}

// Logged writes every event to the logger before passing it on
func Logged(logger log.Logger, next Sink) Sink {
	return SinkFunc(func(ctx context.Context, e Event) error {
		logger.Infof("custody event %s", e)
		return next.Publish(ctx, e)
	})
}
