package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const adminHeader = "X-Admin-Token"

// requireAdmin accepts the token from ?token= or the X-Admin-Token header.
// Without a configured token every write route is forbidden.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.deps.AdminToken == "" {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "write access disabled (no admin token)"})
			return
		}
		token := strings.TrimSpace(r.URL.Query().Get("token"))
		if token == "" {
			token = strings.TrimSpace(r.Header.Get(adminHeader))
		}
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing admin token"})
			return
		}
		if !tokensEqual(token, h.deps.AdminToken) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid admin token"})
			return
		}
		next(w, r)
	}
}

func tokensEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
