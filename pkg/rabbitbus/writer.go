package rabbitbus

import (
	"context"
	"sync"

	"github.com/Harardin/nft-custody/pkg/log"

	"github.com/pkg/errors"
	mq "github.com/rabbitmq/amqp091-go"
)

// Writer publishes persistent json messages. A closed channel is reopened on the next write.
type Writer struct {
	s  *Service
	mu sync.Mutex
	ch *mq.Channel

	logger log.Logger
}

func (s *Service) NewWriter() (*Writer, error) {
	ch, err := s.channel()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open rabbitmq channel")
	}

	return &Writer{
		s:      s,
		ch:     ch,
		logger: s.logger,
	}, nil
}

func (w *Writer) WriteToExchange(ctx context.Context, exchangeName, routingKey string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ch.IsClosed() {
		w.logger.Info("rabbitmq channel is closed, reopening")

		ch, err := w.s.channel()
		if err != nil {
			return errors.Wrap(err, "failed to reopen rabbitmq channel")
		}
		w.ch = ch
	}

	return w.ch.PublishWithContext(
		ctx,
		exchangeName,
		routingKey,
		false,
		false,
		mq.Publishing{
			DeliveryMode: mq.Persistent,
			ContentType:  "application/json",
			Body:         data,
		},
	)
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ch.IsClosed() {
		return nil
	}
	return w.ch.Close()
}
