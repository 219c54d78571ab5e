package daemon

import (
	"net/http"
	"strings"

	"handout/internal/api"
)

// tokenAuth returns a middleware that validates bearer JWTs signed with
// secret. An empty secret disables authentication.
func tokenAuth(secret string, h *handlers) func(http.HandlerFunc) http.Handler {
	secret = strings.TrimSpace(secret)
	return func(next http.HandlerFunc) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				h.writeError(w, http.StatusUnauthorized, api.ErrUnauthorized.Error())
				return
			}
			if _, err := api.ParseToken(secret, auth); err != nil {
				h.writeError(w, http.StatusUnauthorized, api.ErrUnauthorized.Error())
				return
			}
			next(w, r)
		})
	}
}
