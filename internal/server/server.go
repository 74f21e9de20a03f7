package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Harardin/nft-custody/internal/config"
	"github.com/Harardin/nft-custody/internal/consumer"
	"github.com/Harardin/nft-custody/internal/events"
	"github.com/Harardin/nft-custody/internal/token"
	"github.com/Harardin/nft-custody/internal/vault"
	"github.com/Harardin/nft-custody/pkg/chain"
	"github.com/Harardin/nft-custody/pkg/log"
	"github.com/Harardin/nft-custody/pkg/prometheus"
	"github.com/Harardin/nft-custody/pkg/utils"
)

const (
	recordedEvents  = 1000
	shutdownTimeout = 5 * time.Second
)

type Server struct {
	logger log.Logger
	config *config.Config
	pm     *prometheus.Server
	pmOnce sync.Once

	registry *chain.Registry
	token    *token.Collection
	vault    *vault.Vault
	consumer *consumer.Consumer
	recorder *events.Recorder
}

type options struct {
	sink  events.Sink
	clock chain.Clock
}

type Option func(*options)

// WithSink adds external destination of custody events
func WithSink(s events.Sink) Option {
	return func(o *options) { o.sink = s }
}

func WithClock(c chain.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New deploys token collection, vault and consumer from the configured deployer
func New(logger log.Logger, cfg *config.Config, opts ...Option) (*Server, error) {
	o := options{clock: chain.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		logger:   logger,
		config:   cfg,
		pm:       prometheus.NewServer(logger, cfg.Prometheus, cfg.ServiceName),
		registry: chain.NewRegistry(),
		recorder: events.NewRecorder(recordedEvents),
	}

	sinks := events.Multi{s.recorder}
	if o.sink != nil {
		sinks = append(sinks, o.sink)
	}

	deployer := cfg.Deployer()

	var err error
	if s.token, err = token.Deploy(logger, s.registry, deployer); err != nil {
		return nil, err
	}

	s.vault, err = vault.Deploy(logger, s.registry, deployer, s.token, cfg.Custody.Timelock,
		vault.WithClock(o.clock),
		vault.WithSink(events.Logged(logger, sinks)),
	)
	if err != nil {
		return nil, err
	}

	if s.consumer, err = consumer.Deploy(s.registry, deployer, s.token); err != nil {
		return nil, err
	}

	logger.Infof("token %s, vault %s, consumer %s deployed by %s", s.token.Address(), s.vault.Address(), s.consumer.Address(), deployer)

	return s, nil
}

// Start serves http api until ctx is done. Contracts state survives restarts.
func (s *Server) Start(ctx context.Context) error {
	s.pmOnce.Do(func() { s.pm.Start(ctx) })

	srv := &http.Server{
		Addr:    ":" + s.config.HTTPPort,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Infof("http api listening on port %s", s.config.HTTPPort)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Errorf("failed to stop http server: %v", err)
	}

	return nil
}

// listenerKeys are config keys read when the http listener starts
var listenerKeys = []string{"HTTP_PORT"}

// NeedsRestart reports whether changed config keys affect the running listener
func NeedsRestart(changed []string) bool {
	for _, key := range listenerKeys {
		if utils.ExistInArray(changed, key) {
			return true
		}
	}
	return false
}

func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// stop prometheus
	s.pm.Stop(ctx)

	s.logger.Info("server stopped")
}

func (s *Server) Metrics() *prometheus.Server {
	return s.pm
}

func (s *Server) Vault() *vault.Vault {
	return s.vault
}

func (s *Server) Token() *token.Collection {
	return s.token
}

func (s *Server) Consumer() *consumer.Consumer {
	return s.consumer
}
