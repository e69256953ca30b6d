package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RouteRegistrar adds its handlers to a mux.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// NewRouter mounts the registrars next to /health and logs every request.
func NewRouter(logger *zap.Logger, registrars ...RouteRegistrar) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	for _, reg := range registrars {
		if reg != nil {
			reg.RegisterRoutes(mux)
		}
	}
	return withLogging(logger, mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func withLogging(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
