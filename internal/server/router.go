// Package server exposes the extraction service over HTTP.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/joseph-ayodele/rxscan/internal/common"
	"github.com/joseph-ayodele/rxscan/internal/entity"
)

// Extractor is the slice of extract.Service the handlers call.
type Extractor interface {
	Extract(ctx context.Context, req entity.ExtractionRequest) (*entity.Extraction, error)
	ListBySubmitter(ctx context.Context, submitter string) ([]*entity.Extraction, error)
	OpenImage(ctx context.Context, id, variant string) (io.ReadCloser, error)
	Ping(ctx context.Context) error
}

// Exporter renders a submitter's history as a workbook.
type Exporter interface {
	ExportXLSX(ctx context.Context, submitter string, from, to *time.Time) ([]byte, int, error)
}

type Config struct {
	RequestTimeout time.Duration
	MaxUploadBytes int64 // zero or less disables the cap, as in extract.WithMaxUploadBytes
}

type Server struct {
	svc      Extractor
	exporter Exporter
	cfg      Config
	logger   *slog.Logger
}

func New(svc Extractor, exporter Exporter, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 3 * time.Minute
	}
	return &Server{svc: svc, exporter: exporter, cfg: cfg, logger: logger}
}

// Routes builds the router with all routes configured.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors)
	r.Use(chimiddleware.Timeout(s.cfg.RequestTimeout))

	r.Get("/healthz", s.health)

	r.Post("/extract-text", s.extractText)
	r.Route("/user-prescriptions", func(r chi.Router) {
		r.Get("/", s.userPrescriptions)
		r.Get("/export", s.exportPrescriptions)
	})
	r.Get("/view-image/{image_id}/{image_type}", s.viewImage)

	return r
}

// requestLogger attaches a request-scoped slog logger and logs each request once.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := chimiddleware.GetReqID(r.Context())
		ctx := common.WithRequestID(r.Context(), reqID)
		ctx = common.WithLogger(ctx, s.logger)

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		s.logger.Info("http request",
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// cors allows any origin, matching the browser client's expectations.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
