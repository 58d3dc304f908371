// Package http exposes the step ledger over a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"stepledger/internal/cache"
	"stepledger/internal/core"
	"stepledger/internal/ledger"
	"stepledger/internal/log"
	"stepledger/internal/middleware/ratelimit"
	"stepledger/internal/middleware/security"
	"stepledger/internal/middleware/trace"
)

const viewCacheTTL = 10 * time.Second

// Server wires the ledger service behind the HTTP surface.
type Server struct {
	http.Server

	ledger *ledger.Service
	logger *log.Logger
	ready  func(context.Context) error

	limiter   *ratelimit.Limiter
	extractor *security.ClientIPExtractor

	// Derived views are cached briefly and flushed on every mutation.
	historyCache *cache.LRUCache[[]core.DayEntry]
	summaryCache *cache.LRUCache[*core.Summary]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// Options carries the optional wiring for NewServer.
type Options struct {
	// Ready is probed by /readyz, typically a storage ping. Nil means
	// always ready.
	Ready func(context.Context) error
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, svc *ledger.Service, logger *log.Logger, opts Options) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ledger:       svc,
		logger:       logger.WithComponent(log.ComponentHTTP),
		ready:        opts.Ready,
		limiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		extractor:    security.NewClientIPExtractor(),
		historyCache: cache.NewLRUCache[[]core.DayEntry](4, viewCacheTTL),
		summaryCache: cache.NewLRUCache[*core.Summary](4, viewCacheTTL),
		cacheManager: cache.NewManager(),
	}
	s.cacheManager.Register(s.historyCache)
	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(time.Minute)

	// Mutations arrive through HTTP and through the sensor worker; the
	// service's hook covers both, so cached views never outlive a write.
	svc.SetOnMutate(s.invalidateViews)

	tracer := trace.NewMiddleware(logger, s.extractor.ExtractClientIP)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limited := s.limiter.Middleware(s.extractor.ExtractClientIP)

	wrap := func(h http.HandlerFunc) http.Handler {
		return tracer.Middleware(headers.Middleware(limited(h)))
	}

	mux.Handle("GET /v1/steps/today", wrap(s.handleToday))
	mux.Handle("POST /v1/steps/deltas", wrap(s.handleRecordDelta))
	mux.Handle("POST /v1/lifecycle", wrap(s.handleLifecycle))
	mux.Handle("GET /v1/steps/history", wrap(s.handleHistory))
	mux.Handle("DELETE /v1/steps/history", wrap(s.handleClearHistory))
	mux.Handle("GET /v1/steps/summary", wrap(s.handleSummary))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	return s
}

// Shutdown stops background goroutines and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.cacheManager.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// invalidateViews drops cached history and summary responses. Registered as
// the service's mutation hook so reads never serve a stale ledger.
func (s *Server) invalidateViews() {
	s.historyCache.Clear()
	s.summaryCache.Clear()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "readiness check failed", log.FieldError, err.Error())
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
