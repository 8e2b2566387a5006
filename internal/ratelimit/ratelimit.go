// Package ratelimit implements fixed-window, per-client-IP request limits
// shared across API instances through Redis, or kept in process memory
// when no Redis is configured.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	DefaultWindow = 15 * time.Minute
	GeneralLimit  = 100
	StrictLimit   = 10
)

// Counter increments the hit count of key in the current window and
// reports how long until that window resets.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetIn time.Duration, err error)
}

type Rule struct {
	Name   string
	Limit  int64
	Window time.Duration
}

// RejectFunc writes the 429 response.
type RejectFunc func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration)

type Limiter struct {
	counter    Counter
	trustProxy bool
	reject     RejectFunc
	logger     *logrus.Logger
}

func New(counter Counter, trustProxy bool, reject RejectFunc, logger *logrus.Logger) *Limiter {
	return &Limiter{counter: counter, trustProxy: trustProxy, reject: reject, logger: logger}
}

// Middleware enforces rule per client IP. Counter errors let the request
// through.
func (l *Limiter) Middleware(rule Rule) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := fmt.Sprintf(KeyRateLimit, rule.Name, l.clientIP(r))
			count, resetIn, err := l.counter.Incr(r.Context(), key, rule.Window)
			if err != nil {
				l.logger.WithError(err).WithField("rule", rule.Name).Error("Rate limit counter unavailable")
				next.ServeHTTP(w, r)
				return
			}

			remaining := rule.Limit - count
			if remaining < 0 {
				remaining = 0
			}
			resetSeconds := int64(math.Ceil(resetIn.Seconds()))
			w.Header().Set("RateLimit-Limit", strconv.FormatInt(rule.Limit, 10))
			w.Header().Set("RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			w.Header().Set("RateLimit-Reset", strconv.FormatInt(resetSeconds, 10))

			if count > rule.Limit {
				w.Header().Set("Retry-After", strconv.FormatInt(resetSeconds, 10))
				l.logger.WithFields(logrus.Fields{
					"rule": rule.Name,
					"key":  key,
				}).Warn("Rate limit exceeded")
				l.reject(w, r, resetIn)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *Limiter) clientIP(r *http.Request) string {
	if l.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
