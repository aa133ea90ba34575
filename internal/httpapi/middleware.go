package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vitaliisemenov/adblock-compiler/internal/ratelimit"
)

type contextKey string

const requestIDKey contextKey = "request_id"

const (
	maxRequestBodyBytes = 10 << 20 // 10 MiB
	requestTimeout      = 2 * time.Minute
)

// buildMiddlewareStack composes the server's middleware outermost-to-
// innermost: security headers, recovery, request id, logging, metrics,
// rate limiting, CORS, size limit, timeout.
func (s *Server) buildMiddlewareStack() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := next

		handler = s.withTimeout(handler)
		handler = s.withSizeLimit(handler)
		handler = s.withCORS(handler)
		handler = s.withRateLimit(handler)
		handler = s.withHTTPMetrics(handler)
		handler = s.withLogging(handler)
		handler = s.withRequestID(handler)
		handler = s.withRecovery(handler)
		handler = s.withSecurityHeaders(handler)

		return handler
	}
}

func (s *Server) withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestIDFromContext(r.Context()),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, err := s.limiter.Allow(r.Context(), clientID(r))
		if err != nil {
			s.logger.Warn("rate limiter unavailable, allowing request", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !decision.Allowed {
			w.Header().Set("Retry-After", ratelimit.RetryAfterHeader(decision.RetryAfter))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withHTTPMetrics applies the Prometheus request-counter middleware to
// everything except the WebSocket session route: HTTPMetrics.Middleware
// wraps the ResponseWriter in a type that only promotes the plain
// http.ResponseWriter method set, so it drops the http.Hijacker the
// WebSocket upgrade needs.
func (s *Server) withHTTPMetrics(next http.Handler) http.Handler {
	wrapped := s.httpMetrics.Middleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws/compile" {
			next.ServeHTTP(w, r)
			return
		}
		wrapped.ServeHTTP(w, r)
	})
}

func clientID(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	host := r.RemoteAddr
	return host
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withSizeLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// withTimeout bounds the request context's deadline rather than wrapping
// the ResponseWriter the way http.TimeoutHandler does, since an SSE
// handler needs the underlying http.Flusher to still be reachable through
// a type assertion. The WebSocket session path is exempt: a session is
// long-lived by design and enforces its own heartbeat timeout instead.
func (s *Server) withTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws/compile" {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
