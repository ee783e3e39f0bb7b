package api

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/riptide-project/riptide/internal/governor"
)

// publicPaths never require credentials, so health probes and metrics
// scrapes keep working when an operator rotates keys.
var publicPaths = map[string]bool{
	"/health":              true,
	"/healthz":             true,
	"/metrics":             true,
	"/api/v1/health":       true,
	"/api/v1/metrics":      true,
	"/api/health/detailed": true,
}

// credentialFrom pulls the API key out of X-API-Key or a bearer token.
func credentialFrom(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// clientID identifies the caller for auth rate limiting. The remote IP is
// used rather than the presented credential so an attacker rotating bad
// keys still shares one counter.
func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// withAuth enforces API-key authentication on every non-public route.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.API.RequireAuth || publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		client := clientID(r)
		now := time.Now()

		allowed, retryAfter := s.authLimiter.Allow(client, now)
		if !allowed {
			secs := int(retryAfter.Seconds())
			if secs < 1 {
				secs = 1
			}
			s.logger.Warn("auth_blocked", "client", client, "retry_after_secs", secs)
			w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"error":               "Rate limit exceeded",
				"message":             "too many authentication attempts",
				"retry_after_seconds": secs,
			})
			return
		}

		cred := credentialFrom(r)
		if cred == "" || !governor.ConstantTimeCompare(cred, s.cfg.API.APIKeys) {
			reason := "invalid_key"
			if cred == "" {
				reason = "missing_key"
			}
			s.authLimiter.RecordFailure(client, now)
			s.logger.Warn("auth_failure", "client", client, "reason", reason,
				"key_prefix", governor.AuditPrefix(cred))
			w.Header().Set("WWW-Authenticate", "Bearer")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{
				"error":   "Unauthorized",
				"message": "missing or invalid API key",
			})
			return
		}

		s.authLimiter.RecordSuccess(client)
		s.logger.Debug("auth_success", "client", client, "key_prefix", governor.AuditPrefix(cred))
		next.ServeHTTP(w, r)
	})
}
