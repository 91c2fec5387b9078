package api

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"ledgermate-backend/internal/auth"
	"ledgermate-backend/pkg/httputil"
	"ledgermate-backend/pkg/logger"
)

// JwtAuthMiddleware verifies the JWT from the Authorization header and, when
// valid, injects the caller's user id, org id and role into the request
// context.
func JwtAuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	log := logger.Get().WithComponent("auth_middleware")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.RespondError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				httputil.RespondError(w, http.StatusUnauthorized, "Malformed Authorization header (Expected: Bearer <token>)")
				return
			}

			claims, err := auth.ParseToken(parts[1], jwtSecret)
			if err != nil {
				log.Debug("token rejected", "error", err.Error())
				switch {
				case errors.Is(err, jwt.ErrTokenExpired):
					httputil.RespondError(w, http.StatusUnauthorized, "Token has expired")
				case errors.Is(err, jwt.ErrTokenMalformed):
					httputil.RespondError(w, http.StatusUnauthorized, "Malformed token")
				default:
					httputil.RespondError(w, http.StatusUnauthorized, "Invalid token")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), claims)))
		})
	}
}

const (
	limiterIdleTTL       = 10 * time.Minute
	limiterSweepInterval = time.Minute
)

type orgLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// orgLimiters hands out one token bucket per organization. Entries for
// organizations idle longer than limiterIdleTTL are dropped during the
// periodic sweep so the map does not grow with tenant count forever.
type orgLimiters struct {
	mu        sync.Mutex
	entries   map[uuid.UUID]*orgLimiterEntry
	rate      rate.Limit
	burst     int
	lastSweep time.Time
}

func newOrgLimiters(perSec float64, burst int) *orgLimiters {
	return &orgLimiters{
		entries:   make(map[uuid.UUID]*orgLimiterEntry),
		rate:      rate.Limit(perSec),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

func (l *orgLimiters) allow(orgID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > limiterSweepInterval {
		for id, e := range l.entries {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(l.entries, id)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.entries[orgID]
	if !ok {
		e = &orgLimiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.entries[orgID] = e
	}
	e.lastSeen = now
	return e.limiter.Allow()
}

// AssistantRateLimit applies a per-organization token bucket to the routes it
// wraps. Runs after JwtAuthMiddleware, which puts the org id on the context.
func AssistantRateLimit(perSec float64, burst int) func(http.Handler) http.Handler {
	limiters := newOrgLimiters(perSec, burst)
	log := logger.Get().WithComponent("rate_limit")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID, ok := auth.GetOrgIDFromContext(r.Context())
			if !ok {
				httputil.RespondError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !limiters.allow(orgID) {
				log.Warn("assistant rate limit hit", "org_id", orgID.String())
				httputil.RespondError(w, http.StatusTooManyRequests, "Too many assistant requests, slow down and retry.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
