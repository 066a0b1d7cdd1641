package httpadapter

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"freightbid/internal/domain"
)

// requireCronSecret rejects requests whose bearer token does not match the
// configured secret. With no secret configured every request is rejected.
func (s *Server) requireCronSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok || s.cronSecret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.cronSecret)) != 1 {
			s.log.WarnContext(r.Context(), "sweep trigger rejected", "remote_addr", r.RemoteAddr)
			writeError(w, r, domain.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
