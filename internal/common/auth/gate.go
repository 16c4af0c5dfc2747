// internal/common/auth/gate.go
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"orgdiag-pipeline/internal/common/logger"
)

// Gate enforces the administrator bearer token on pipeline routes. Health and
// metrics endpoints are mounted outside the gate.
type Gate struct {
	token  string
	logger logger.Logger
}

// NewGate creates the admin gate. An empty token is rejected at config
// validation, never here.
func NewGate(token string, log logger.Logger) *Gate {
	return &Gate{token: token, logger: log}
}

// Authorize checks the Authorization header of r. It returns false when the
// bearer token is absent or does not match the configured admin token.
func (g *Gate) Authorize(r *http.Request) bool {
	presented := extractBearer(r.Header.Get("Authorization"))
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(g.token)) == 1
}

// Middleware wraps next, replying 401 to requests without a valid admin token.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Authorize(r) {
			g.logger.Warn("unauthorized request", map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
				"remote": r.RemoteAddr,
			})

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "administrator credential required",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
