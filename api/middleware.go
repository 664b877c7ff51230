/*
middleware.go - HTTP middleware

PURPOSE:
  requestID:      propagate or assign X-Request-Id
  requestLogger:  log request start and completion with status and duration
  recoverer:      turn a handler panic into a 500 envelope
  authenticate:   bearer token to auth.Actor on the request context

SEE ALSO:
  - server.go: middleware order
*/
package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/warp/channel-ledger/auth"
	"github.com/warp/channel-ledger/config"
	"github.com/warp/channel-ledger/logger"
)

const requestIDHeader = "X-Request-Id"

// requestID propagates or assigns X-Request-Id and puts it on the log context.
func requestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(logg.WithRequestID(r.Context(), id)))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func requestLogger(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()

			logg.Debug(ctx, "request.start")
			next.ServeHTTP(rec, r.WithContext(ctx))

			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			logg.Info(logg.WithFields(ctx, map[string]any{
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
			}), "request.complete")
		})
	}
}

func recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					ctx := logg.WithField(r.Context(), "panic", rec)
					writeError(ctx, logg, w, fmt.Errorf("panic: %v", rec))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate resolves the bearer token into an auth.Actor on the context.
func authenticate(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			token := raw
			if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				writeError(r.Context(), logg, w, unauthorized("missing credentials", nil))
				return
			}

			actor, err := auth.Parse(cfg, token)
			if err != nil {
				writeError(r.Context(), logg, w, unauthorized("invalid token", err))
				return
			}

			ctx := auth.WithActor(r.Context(), actor)
			ctx = logg.WithOwnerID(ctx, actor.OwnerID)
			ctx = logg.WithField(ctx, "actor_id", actor.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
