package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/fieldsync/api/responses"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
	"github.com/angelmondragon/fieldsync/pkg/logger"
	"github.com/angelmondragon/fieldsync/pkg/redis"
)

// maxLoginBody bounds how much of the request is buffered to find the rep code.
const maxLoginBody = 64 << 10

// LoginRateLimitPolicy defines fixed-window limits for sign-in attempts.
type LoginRateLimitPolicy struct {
	Window   time.Duration
	IPLimit  int
	RepLimit int
}

func (p LoginRateLimitPolicy) enabled() bool {
	return p.Window > 0 && (p.IPLimit > 0 || p.RepLimit > 0)
}

// LoginRateLimit counts attempts per client IP and per rep code. A nil
// counter disables the middleware.
func LoginRateLimit(policy LoginRateLimitPolicy, counter redis.Counter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || counter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if policy.IPLimit > 0 {
				if ip := clientIP(r); ip != "" {
					if !check(ctx, w, counter, logg, policy, "ip", ip, policy.IPLimit) {
						return
					}
				}
			}

			if policy.RepLimit > 0 {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxLoginBody))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))

				if code := normalizeRepCode(extractRepCode(body)); code != "" {
					if !check(ctx, w, counter, logg, policy, "rep", hashValue(code), policy.RepLimit) {
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// check increments the scope counter and writes the rejection when the
// limit is exceeded. It reports whether the request may continue.
func check(ctx context.Context, w http.ResponseWriter, counter redis.Counter, logg *logger.Logger, policy LoginRateLimitPolicy, scope, subject string, limit int) bool {
	key := counter.RateLimitKey("login:" + scope + ":" + subject)
	count, err := counter.IncrWithTTL(ctx, key, policy.Window)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "rate limiting"))
		return false
	}
	if count <= int64(limit) {
		return true
	}
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"scope":          scope,
			"attempts":       count,
			"limit":          limit,
			"window_seconds": int(policy.Window.Seconds()),
		}), "login.rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(policy.Window.Seconds())))
	responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many sign-in attempts"))
	return false
}

func clientIP(r *http.Request) string {
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

func extractRepCode(payload []byte) string {
	var body struct {
		RepCode string `json:"rep_code"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return body.RepCode
}

func normalizeRepCode(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
