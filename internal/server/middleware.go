package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// requestLogger logs each request once it completes and records its latency
// under the matched route pattern, so path parameters never become labels.
func requestLogger(rec Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				elapsed := time.Since(start)
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}

				route := "unmatched"
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					route = rctx.RoutePattern()
				}
				rec.HTTPObserve(route, status, elapsed.Seconds())

				var evt *zerolog.Event
				switch {
				case status >= 500:
					evt = log.Error()
				case status >= 400:
					evt = log.Warn()
				default:
					evt = log.Debug()
				}
				evt.
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("route", route).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", elapsed).
					Str("remote", r.RemoteAddr).
					Msg("http request")
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}
