package prometheus

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"strings"

	"github.com/Harardin/nft-custody/pkg/log"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	// Port - default 10001
	Port string `json:"PROMETHEUS_PORT" default:"10001"`
	// Endpoint - default /metrics
	Endpoint string `json:"PROMETHEUS_ENDPOINT" default:"/metrics"`
	// Disabled - default false
	Disabled bool `json:"PROMETHEUS_DISABLED"`
}

type Server struct {
	logger log.Logger
	config Config

	srv      *http.Server
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	held       prometheus.Gauge
}

func NewServer(logger log.Logger, config Config, serviceName string) *Server {
	if serviceName == "" {
		logger.Errorf("prometheus error: service name is empty")
	}

	namespace := strings.NewReplacer("-", "_", "/", "_", ".", "_").Replace(serviceName)

	s := &Server{
		logger:   logger,
		config:   config,
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Custody operations by name and result status",
			}, []string{"operation", "status"}),
		held: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "held_tokens",
			Help:      "Tokens currently kept in custody",
		}),
	}

	s.registry.MustRegister(s.operations, s.held)

	return s
}

// Start prometheus server
func (s *Server) Start(ctx context.Context) {
	if s.config.Disabled {
		return
	}

	port := s.config.Port
	if port == "" {
		port = "10001"
	}

	endpoint := s.config.Endpoint
	if endpoint == "" {
		endpoint = "/metrics"
	}

	r := mux.NewRouter()
	r.Path(endpoint).Handler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.srv = &http.Server{Addr: ":" + port, Handler: r}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatalf("failed to start prometheus on port %s: %v", port, err)
		}
	}()
}

func (s *Server) IncrementOperation(operation, status string) {
	s.operations.WithLabelValues(operation, status).Inc()
}

func (s *Server) SetHeld(n int) {
	s.held.Set(float64(n))
}

// Operations exposes counter for tests
func (s *Server) Operations() *prometheus.CounterVec {
	return s.operations
}

func (s *Server) Stop(ctx context.Context) {
	if s.srv == nil {
		return
	}

	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Errorf("failed to stop prometheus http server: %v", err)
	}
}
