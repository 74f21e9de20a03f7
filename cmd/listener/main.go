// Command listener tails custody events from the bus and writes them to the log.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harardin/nft-custody/internal/config"
	"github.com/Harardin/nft-custody/internal/events"
	"github.com/Harardin/nft-custody/pkg/initialconfig"
	"github.com/Harardin/nft-custody/pkg/log"
	"github.com/Harardin/nft-custody/pkg/rabbitbus"
)

const routingPattern = "custody.#"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := new(config.Config)
	_ = initialconfig.LoadConfig(ctx, log.New(), cfg)

	logger := log.New(log.WithLevel(cfg.LogLevel), log.WithSentry(cfg.SentryDSN, cfg.StandName))
	defer logger.Sync()

	if cfg.Rabbit.Disabled {
		logger.Fatal("rabbitmq is disabled, nothing to listen")
	}

	bus, err := rabbitbus.NewBus(logger, cfg.Rabbit, cfg.GetRabbitAddr())
	if err != nil {
		logger.Fatalf("failed to connect rabbitmq: %v", err)
	}
	defer bus.Close()

	if err := bus.DeclareExchange(cfg.Rabbit.Exchange); err != nil {
		logger.Fatalf("failed to declare exchange: %v", err)
	}

	queue := cfg.ServiceName + "-listener"
	reader, err := bus.NewReader(ctx, cfg.Rabbit.Exchange, queue, routingPattern, queue)
	if err != nil {
		logger.Fatalf("failed to init rabbitmq reader: %v", err)
	}

	logger.Infof("listening %s on exchange %s", routingPattern, cfg.Rabbit.Exchange)

	for msg := range reader.ReceiveMsg() {
		e, err := events.Decode(msg.Read())
		if err != nil {
			logger.Errorf("bad message with routing key %s: %v", msg.RoutingKey(), err)
		} else {
			logger.With("routing_key", msg.RoutingKey()).Infof("%s on vault %s at %s", e, e.Vault, e.At.Format(time.RFC3339))
		}

		if err := msg.Ack(); err != nil {
			logger.Errorf("failed to ack message: %v", err)
		}
	}

	logger.Info("listener stopped")
}
