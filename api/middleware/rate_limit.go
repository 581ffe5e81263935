package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/api/responses"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy caps requests per caller per window, with a separate
// budget for mutating methods.
type RateLimitPolicy struct {
	Window     time.Duration
	ReadLimit  int
	WriteLimit int
}

func (p RateLimitPolicy) enabled() bool {
	return p.Window > 0 && (p.ReadLimit > 0 || p.WriteLimit > 0)
}

func (p RateLimitPolicy) limitFor(method string) (string, int) {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return "read", p.ReadLimit
	}
	return "write", p.WriteLimit
}

// RateLimit throttles authenticated callers by user id, falling back to the
// client IP. Redis failures fail open.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			class, limit := policy.limitFor(r.Method)
			if limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			caller := clientIP(r)
			if userID := UserIDFromContext(ctx); userID != uuid.Nil {
				caller = userID.String()
			}
			scope := fmt.Sprintf("%s:%s", class, caller)

			allowed, count, err := store.FixedWindowAllow(ctx, scope, int64(limit), policy.Window)
			if err != nil {
				if logg != nil {
					logg.Error(ctx, "rate_limit.unavailable", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"scope":          class,
						"caller":         caller,
						"attempts":       count,
						"limit":          limit,
						"window_seconds": int(policy.Window.Seconds()),
					})
					logg.Warn(logCtx, "rate_limit.blocked")
				}
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(policy.Window.Seconds())))
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
