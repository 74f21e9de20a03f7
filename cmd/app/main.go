package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/Harardin/nft-custody/internal/config"
	"github.com/Harardin/nft-custody/internal/events"
	"github.com/Harardin/nft-custody/internal/journal"
	"github.com/Harardin/nft-custody/internal/server"
	"github.com/Harardin/nft-custody/pkg/initialconfig"
	"github.com/Harardin/nft-custody/pkg/log"
	"github.com/Harardin/nft-custody/pkg/notify"
	"github.com/Harardin/nft-custody/pkg/postgres"
	"github.com/Harardin/nft-custody/pkg/rabbitbus"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Loading service config
	cfg := new(config.Config)
	configChangedEnvsCh := initialconfig.LoadConfig(ctx, log.New(), cfg)

	// Init logger
	logger := log.New(log.WithLevel(cfg.LogLevel), log.WithSentry(cfg.SentryDSN, cfg.StandName))
	defer logger.Sync()

	// Event destinations
	sinks, closeSinks := connectSinks(ctx, logger, cfg)
	defer closeSinks()

	dispatcher := events.NewDispatcher(logger, sinks, cfg.Custody.EventsBuffer)
	go dispatcher.Run(context.Background())
	defer dispatcher.Close()

	// Init Server
	srv, err := server.New(logger, cfg, server.WithSink(dispatcher))
	if err != nil {
		logger.Fatalf("init server error: %v", err)
	}
	defer srv.Stop()

	wg := new(sync.WaitGroup)
	wg.Add(1)
	go startServer(ctx, logger, wg, srv, configChangedEnvsCh)

	// Wait system signals
	<-ctx.Done()
	wg.Wait()
}

// startServer restarts http api when its listener config changes, contracts state is kept
func startServer(ctx context.Context, logger log.Logger, wg *sync.WaitGroup, srv *server.Server, configChangedEnvsCh chan []string) {
	defer wg.Done()

	for {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})

		go func() {
			defer close(done)
			if err := srv.Start(runCtx); err != nil {
				logger.Fatalf("start server error: %v", err)
			}
		}()

	wait:
		for {
			select {
			case <-ctx.Done():
				cancel()
				<-done
				return
			case changedEnvs := <-configChangedEnvsCh:
				logger.Infof("changed enviroments: %v", changedEnvs)
				if server.NeedsRestart(changedEnvs) {
					break wait
				}
			}
		}

		cancel()
		<-done
	}
}

func connectSinks(ctx context.Context, logger log.Logger, cfg *config.Config) (events.Sink, func()) {
	sinks := make(events.Multi, 0, 3)
	closers := make([]func(), 0, 2)

	if !cfg.Rabbit.Disabled {
		bus, err := rabbitbus.NewBus(logger, cfg.Rabbit, cfg.GetRabbitAddr())
		if err != nil {
			logger.Fatalf("failed to connect rabbitmq: %v", err)
		}

		if err := bus.DeclareExchange(cfg.Rabbit.Exchange); err != nil {
			logger.Fatalf("failed to declare exchange: %v", err)
		}

		writer, err := bus.NewWriter()
		if err != nil {
			logger.Fatalf("failed to init rabbitmq writer: %v", err)
		}

		sinks = append(sinks, events.NewBusPublisher(writer, cfg.Rabbit.Exchange))
		closers = append(closers, func() {
			if err := writer.Close(); err != nil {
				logger.Errorf("failed to close rabbitmq writer: %v", err)
			}
			if err := bus.Close(); err != nil {
				logger.Errorf("failed to stop rabbit: %v", err)
			}
		})

		logger.Infof("custody events are published to exchange %s", cfg.Rabbit.Exchange)
	}

	if !cfg.Postgres.Disabled {
		pool, err := postgres.Connect(ctx, logger, cfg.Postgres, cfg.GetPostgresAddr())
		if err != nil {
			logger.Fatalf("failed to connect postgres: %v", err)
		}

		j := journal.New(pool)
		if err := j.Migrate(ctx); err != nil {
			logger.Fatalf("failed to migrate journal: %v", err)
		}

		sinks = append(sinks, j)
		closers = append(closers, pool.Close)
	}

	if cfg.Notify.URL != "" {
		sinks = append(sinks, events.NewWebhook(notify.NewNotifyService(cfg.Notify, logger)))
	}

	if len(sinks) == 0 {
		logger.Info("no external event sinks configured")
	} else {
		logger.Infof("custody events are delivered to %s", strings.Join(sinkNames(cfg), ", "))
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}

func sinkNames(cfg *config.Config) []string {
	res := make([]string, 0, 3)
	if !cfg.Rabbit.Disabled {
		res = append(res, "rabbitmq")
	}
	if !cfg.Postgres.Disabled {
		res = append(res, "postgres")
	}
	if cfg.Notify.URL != "" {
		res = append(res, "webhook")
	}
	return res
}
