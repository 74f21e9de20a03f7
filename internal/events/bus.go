package events

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// ExchangeWriter is satisfied by rabbitbus.Writer
type ExchangeWriter interface {
	WriteToExchange(ctx context.Context, exchangeName, routingKey string, data []byte) error
}

type BusPublisher struct {
	w        ExchangeWriter
	exchange string
}

func NewBusPublisher(w ExchangeWriter, exchange string) *BusPublisher {
	return &BusPublisher{w: w, exchange: exchange}
}

func (p *BusPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	if err := p.w.WriteToExchange(ctx, p.exchange, e.Kind.RoutingKey(), data); err != nil {
		return errors.Wrapf(err, "failed to publish %s to exchange %s", e.Kind, p.exchange)
	}

	return nil
}

// Decode parses bus payload
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return e, errors.Wrap(err, "failed to unmarshal event")
	}
	return e, nil
}
