package rabbitbus

import (
	"context"

	"github.com/Harardin/nft-custody/pkg/log"

	"github.com/pkg/errors"
	mq "github.com/rabbitmq/amqp091-go"
)

type Reader struct {
	ch *mq.Channel

	m chan Msg

	logger log.Logger
}

type Msg struct {
	d *mq.Delivery
}

// NewReader declares queue, binds it to exchange with routing key pattern and starts consuming
func (s *Service) NewReader(ctx context.Context, exchange, queue, pattern, consumer string) (*Reader, error) {
	ch, err := s.channel()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open rabbitmq channel")
	}

	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, errors.Wrapf(err, "failed to declare queue %s", queue)
	}

	if err := ch.QueueBind(q.Name, pattern, exchange, false, nil); err != nil {
		ch.Close()
		return nil, errors.Wrapf(err, "failed to bind queue %s to %s", q.Name, exchange)
	}

	d, err := ch.Consume(q.Name, consumer, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, errors.Wrap(err, "failed to start consuming from channel")
	}

	r := &Reader{
		ch:     ch,
		m:      make(chan Msg),
		logger: s.logger,
	}

	go r.read(ctx, d)

	return r, nil
}

func (r *Reader) read(ctx context.Context, d <-chan mq.Delivery) {
	defer close(r.m)
	defer r.ch.Close()

	for {
		select {
		case m, ok := <-d:
			if !ok {
				r.logger.Info("stop reading from channel due to closed deliveries")
				return
			}
			select {
			case r.m <- Msg{d: &m}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			r.logger.Info("stop reading from channel due to exit by context")
			return
		}
	}
}

// ReceiveMsg is closed when reading stops
func (r *Reader) ReceiveMsg() <-chan Msg {
	return r.m
}

func (m Msg) RoutingKey() string {
	return m.d.RoutingKey
}

func (m Msg) Read() []byte {
	return m.d.Body
}

func (m Msg) Ack() error {
	return m.d.Ack(false)
}
