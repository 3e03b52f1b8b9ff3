package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

const (
	idleTimeout       = 2 * time.Minute
	readHeaderTimeout = 10 * time.Second
	maxHeaderBytes    = 1 << 20
)

// Server serves the report, dispute and risk API.
type Server struct {
	router *chi.Mux
	http   *http.Server
	cfg    domain.ServerConfig
}

// NewServer wires the handlers and middleware. Nothing listens until Start.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	h := NewHandler(deps)
	r := chi.NewRouter()

	r.Use(
		CORSMiddleware,
		RecoverMiddleware,
		middleware.RealIP,
		TracingMiddleware,
		LoggingMiddleware,
		MetricsMiddleware(deps.Metrics),
		middleware.Compress(5),
	)

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	r.Route("/v1", func(r chi.Router) {
		mountReports(r, h, NewIntakeLimiter(deps.Intake))
		mountDisputes(r, h)
		r.Post("/risk/assess", h.AssessRisk)
		r.Delete("/admin/reports/{id}", h.PurgeReport)
	})

	return &Server{router: r, cfg: cfg}
}

func mountReports(r chi.Router, h *Handler, intake *IntakeLimiter) {
	r.Route("/reports", func(r chi.Router) {
		r.With(intake.Middleware).Post("/", h.SubmitReport)
		r.Get("/", h.ListReports)
		r.Get("/stats", h.ReportStats)
		r.Get("/nearby", h.NearbyReports)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetReport)
			r.Get("/notice.pdf", h.ReportNotice)

			r.With(RequireOfficer).Post("/verify", h.VerifyReport)
			r.With(RequireOfficer).Post("/reject", h.RejectReport)
			r.With(RequireOfficer).Post("/challan", h.IssueChallan)
		})
	})
}

func mountDisputes(r chi.Router, h *Handler) {
	r.Route("/disputes", func(r chi.Router) {
		r.Post("/", h.OpenDispute)
		r.Get("/", h.ListDisputes)
		r.Get("/{id}", h.GetDispute)
		r.Post("/{id}/analysis", h.AttachAnalysis)
		r.With(RequireOfficer).Post("/{id}/decision", h.RecordDecision)
	})
}

// Start listens on Host:Port and blocks until the server stops.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:           s.router,
		ReadTimeout:       time.Duration(s.cfg.ReadTimeout) * time.Second,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      time.Duration(s.cfg.WriteTimeout) * time.Second,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}
	return s.http.ListenAndServe()
}

// Shutdown waits for in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Router exposes the routes to httptest.
func (s *Server) Router() http.Handler {
	return s.router
}
