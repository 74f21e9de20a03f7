package rabbitbus

import (
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/Harardin/nft-custody/pkg/log"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pkg/errors"
	mq "github.com/rabbitmq/amqp091-go"
)

type Service struct {
	logger log.Logger
	config Config

	conn *mq.Connection

	mu sync.RWMutex
}

type Config struct {
	User     string `json:"RABBIT_USER" secret:"true"`
	Pass     string `json:"RABBIT_PASS" secret:"true"`
	IsSecure bool   `json:"RABBIT_IS_SECURE"`
	// Exchange custody events are published to
	Exchange string `json:"RABBIT_EXCHANGE" default:"custody"`
	// Disabled - default false
	Disabled bool `json:"RABBIT_DISABLED"`
	// For local development
	Addr string `json:"RABBIT_ADDR"`
}

func (c *Config) Validate() error {
	if c.Disabled {
		return nil
	}

	return validation.ValidateStruct(
		c,
		validation.Field(&c.User, validation.Required),
		validation.Field(&c.Pass, validation.Required),
		validation.Field(&c.Exchange, validation.Required),
	)
}

func (c *Config) getDSN(addr string) string {
	scheme := "amqp"
	if c.IsSecure {
		scheme = "amqps"
	}

	return fmt.Sprintf("%s://%s:%s@%s", scheme, c.User, c.Pass, addr)
}

func dial(c Config, addr string) (*mq.Connection, error) {
	if c.IsSecure {
		return mq.DialTLS(c.getDSN(addr), &tls.Config{
			InsecureSkipVerify: true,
		})
	}

	return mq.Dial(c.getDSN(addr))
}

func NewBus(logger log.Logger, c Config, addr string) (*Service, error) {
	logger.Info("opening rabbitmq connection")

	conn, err := dial(c, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open rabbitmq connection to %s", addr)
	}

	return &Service{
		logger: logger,
		config: c,
		conn:   conn,
	}, nil
}

// DeclareExchange declares durable topic exchange
func (s *Service) DeclareExchange(name string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, err := s.conn.Channel()
	if err != nil {
		return errors.Wrap(err, "failed to open rabbitmq channel")
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(name, mq.ExchangeTopic, true, false, false, false, nil); err != nil {
		return errors.Wrapf(err, "failed to declare exchange %s", name)
	}

	return nil
}

func (s *Service) Close() error {
	s.logger.Info("closing rabbitmq connection")

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.conn == nil || s.conn.IsClosed() {
		return nil
	}

	return s.conn.Close()
}

func (s *Service) channel() (*mq.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.conn.Channel()
}
