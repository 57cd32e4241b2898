package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/af-corp/conduit/internal/auth"
	"github.com/af-corp/conduit/internal/httputil"
	"github.com/af-corp/conduit/internal/telemetry"
)

const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
)

// Middleware returns chi middleware that enforces the per-identity request
// limit before the pipeline runs. Identity is the authenticated key ID,
// falling back to the remote address for unauthenticated routes.
func Middleware(limiter *Limiter, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			identity := r.RemoteAddr
			limit := 0
			if info, ok := auth.IdentityFromContext(r.Context()); ok {
				identity = info.KeyID
				if info.RequestLimit != nil {
					limit = *info.RequestLimit
				}
			}

			result, err := limiter.EnforceWithLimit(identity, limit)

			w.Header().Set(headerRateLimitLimit, strconv.Itoa(result.Limit))
			w.Header().Set(headerRateLimitRemaining, strconv.Itoa(result.Remaining))
			w.Header().Set(headerRateLimitReset, result.ResetAt.Format(time.RFC3339))

			var limitErr *LimitError
			if errors.As(err, &limitErr) {
				slog.Warn("rate limit exceeded",
					"request_id", reqID,
					"identity", identity,
					"limit", limitErr.Limit,
					"retry_after", limitErr.RetryAfter.Round(time.Second).String(),
				)
				if metrics != nil {
					metrics.RecordRateLimitHit()
				}
				httputil.WriteRateLimitError(w, reqID, limitErr.RetryAfter,
					fmt.Sprintf("Rate limit exceeded: %d requests per window. Retry after %s",
						limitErr.Limit, limitErr.ResetAt.Format(time.RFC3339)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
