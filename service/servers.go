package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/ethereum-optimism/infra/op-webcept/metrics"
)

const readHeaderTimeout = 10 * time.Second

// HealthzHandler answers liveness probes on /healthz.
func HealthzHandler() http.Handler {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		log.Debug("Received health check request", "path", r.URL.Path, "remote", r.RemoteAddr)
		w.Write([]byte("OK")) //nolint:errcheck
	})
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(hdlr)
}

// MetricsHandler exposes the Prometheus registry on /metrics.
func MetricsHandler() http.Handler {
	hdlr := http.NewServeMux()
	hdlr.Handle("/metrics", promhttp.Handler())
	return hdlr
}

// httpServer is a named listener started in the background
type httpServer struct {
	name    string
	addr    string
	handler http.Handler

	mu     sync.Mutex
	server *http.Server
	bound  net.Addr
	ready  chan struct{}
}

func newHTTPServer(name, addr string, handler http.Handler) *httpServer {
	return &httpServer{
		name:    name,
		addr:    addr,
		handler: handler,
		ready:   make(chan struct{}),
	}
}

// start listens and serves until shutdown. It returns http.ErrServerClosed
// after a clean shutdown.
func (h *httpServer) start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		close(h.ready)
		return err
	}
	server := &http.Server{
		Handler:           h.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	h.mu.Lock()
	h.server = server
	h.bound = ln.Addr()
	h.mu.Unlock()
	close(h.ready)

	return server.Serve(ln)
}

// Addr returns the bound address once the listener is up, or nil.
func (h *httpServer) Addr() net.Addr {
	<-h.ready
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bound
}

func (h *httpServer) shutdown(ctx context.Context) error {
	h.mu.Lock()
	server := h.server
	h.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// Config holds the listen addresses of the service. An empty address
// disables that listener.
type Config struct {
	HealthzAddr string
	MetricsAddr string
	APIAddr     string
	API         http.Handler
	Log         log.Logger
}

// Service runs the healthz, metrics and API listeners
type Service struct {
	log     log.Logger
	servers []*httpServer
	started bool
	wg      sync.WaitGroup
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	s := &Service{log: cfg.Log}
	if cfg.HealthzAddr != "" {
		s.servers = append(s.servers, newHTTPServer("healthz", cfg.HealthzAddr, HealthzHandler()))
	}
	if cfg.MetricsAddr != "" {
		s.servers = append(s.servers, newHTTPServer("metrics", cfg.MetricsAddr, MetricsHandler()))
	}
	if cfg.APIAddr != "" && cfg.API != nil {
		s.servers = append(s.servers, newHTTPServer("api", cfg.APIAddr, cfg.API))
	}
	return s
}

func (s *Service) Start(ctx context.Context) {
	s.log.Info("service starting")
	s.started = true

	for _, srv := range s.servers {
		s.wg.Add(1)
		go func(srv *httpServer) {
			defer s.wg.Done()
			s.log.Info("starting server", "name", srv.name, "addr", srv.addr)
			if err := srv.start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("error starting server", "name", srv.name, "err", err)
				metrics.RecordErrorDetails("server_"+srv.name, err)
			}
		}(srv)
	}

	s.log.Info("service started")
}

// Addr returns the bound address of a named listener, waiting for it to
// come up. It returns nil for unknown names or failed listeners.
func (s *Service) Addr(name string) net.Addr {
	for _, srv := range s.servers {
		if srv.name == name {
			return srv.Addr()
		}
	}
	return nil
}

func (s *Service) Shutdown(ctx context.Context) error {
	s.log.Info("service shutting down")

	var errs []error
	for _, srv := range s.servers {
		if s.started {
			<-srv.ready
		}
		if err := srv.shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		s.log.Info("server stopped", "name", srv.name)
	}
	s.wg.Wait()

	s.log.Info("service stopped")
	return errors.Join(errs...)
}
