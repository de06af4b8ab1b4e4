package middleware

import (
	"log/slog"
	"net/http"
)

// IPConnectionCounter reports how many live connections an address holds.
type IPConnectionCounter func(ip string) int

// NewConnectionLimiter rejects upgrade requests from addresses that already
// hold maxPerIP live connections. A limit of zero or less disables the
// check.
func NewConnectionLimiter(logger *slog.Logger, counter IPConnectionCounter, maxPerIP int) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxPerIP <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				logger.Error("connection limiter requires request metadata middleware")
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			if counter(reqMeta.IP) >= maxPerIP {
				logger.Warn("connection limit reached",
					slog.String("ip", reqMeta.IP),
					slog.Int("limit", maxPerIP),
				)
				http.Error(w, "too many connections", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
