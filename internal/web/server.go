package web

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/rileyhales/hydrologic-bias-correction/internal/store"
	"github.com/rileyhales/hydrologic-bias-correction/internal/telemetry"
)

//go:embed all:static
var staticFS embed.FS

// Server serves the assignment map and its API.
type Server struct {
	Store *store.Store
	Addr  string
	Log   logrus.FieldLogger
}

// Handler returns the routed, traced HTTP handler.
func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/assignments", s.handleAssignments)
	mux.HandleFunc("GET /api/propagation", s.handlePropagation)
	mux.HandleFunc("GET /api/geojson", s.handleGeoJSON)
	mux.HandleFunc("GET /api/links", s.handleLinks)

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("creating sub filesystem: %w", err)
	}
	mux.Handle("/", http.FileServer(http.FS(staticSub)))

	return s.traced(mux), nil
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	h, err := s.Handler()
	if err != nil {
		return err
	}
	fmt.Printf("Serving at http://%s\n", s.Addr)
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// traced wraps every request in a span and counts requests by route and
// status.
func (s *Server) traced(next http.Handler) http.Handler {
	tracer := telemetry.Tracer("web")
	requests, _ := telemetry.Meter("web").Int64Counter("http.server.request_count")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithAttributes(attribute.String("http.method", r.Method)))
		defer span.End()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", sw.status))
		if requests != nil {
			requests.Add(ctx, 1, metric.WithAttributes(
				attribute.String("http.route", r.URL.Path),
				attribute.Int("http.status_code", sw.status),
			))
		}
		if s.Log != nil {
			s.Log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   sw.status,
				"duration": time.Since(start).String(),
			}).Debug("request")
		}
	})
}
