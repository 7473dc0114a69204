package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"mediagrab_bot/internal/logging"
	"mediagrab_bot/internal/metrics"
)

// metricsMiddleware records request counts and latency per route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := routePattern(r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// routePattern keeps label cardinality bounded for unknown paths.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

func requestLogger(logger *logrus.Entry) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.WithFields(logging.Fields{
					"event":       "http_request",
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      ww.Status(),
					"latency_ms":  time.Since(start).Milliseconds(),
					"request_id":  chimw.GetReqID(r.Context()),
					"remote_addr": r.RemoteAddr,
				}).Info("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// recoverJSON turns handler panics into a logged 500 JSON error.
func recoverJSON(logger *logrus.Entry) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logging.WithStack(logger).WithFields(logging.Fields{
					"event":      "http_panic",
					"path":       r.URL.Path,
					"request_id": chimw.GetReqID(r.Context()),
					"panic":      rec,
				}).Error("request handler panicked")

				writeError(w, http.StatusInternalServerError, fmt.Sprint(rec))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
