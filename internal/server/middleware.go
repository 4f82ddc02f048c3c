// File: internal/server/middleware.go
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/apperr"
)

type principalKey struct{}

// PrincipalFrom returns the caller resolved by the authentication
// middleware, or the guest principal.
func PrincipalFrom(ctx context.Context) schemas.Principal {
	if p, ok := ctx.Value(principalKey{}).(schemas.Principal); ok {
		return p
	}
	return schemas.Guest
}

func withPrincipal(ctx context.Context, p schemas.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// authenticate resolves the bearer token on every request. A missing
// header yields the guest principal; a bad one is rejected outright.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.deps.Resolver.Bearer(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

// apiKey lets scripted loaders authenticate with X-API-Key instead of a
// bearer token. A present but wrong key is a 401.
func (s *Server) apiKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		p, ok := s.deps.Resolver.APIKey(key)
		if !ok {
			s.fail(w, r, apperr.Unauthenticated("auth.apikey", "invalid API key"))
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

// limiterSet hands out one token bucket per principal. Guests share a
// bucket per remote address.
type limiterSet struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
}

func newLimiterSet(perSecond float64, burst int) *limiterSet {
	return &limiterSet{limit: rate.Limit(perSecond), burst: burst, buckets: make(map[string]*rate.Limiter)}
}

func (l *limiterSet) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	return b
}

// throttle applies the write limiter to mutating methods only.
func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
		default:
			next.ServeHTTP(w, r)
			return
		}
		key := PrincipalFrom(r.Context()).UserID
		if key == "" {
			key = "guest:" + remoteHost(r)
		}
		if !s.writes.get(key).Allow() {
			w.Header().Set("Retry-After", "1")
			s.fail(w, r, &apperr.Error{Kind: apperr.KindRateLimited, Op: "server", Message: "too many write requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requestLogger logs one line per request through zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("Request served",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)))
	})
}
