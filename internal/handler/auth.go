package handler

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/fluentedge/placement/internal/i18n"
)

// requireToken checks the Authorization bearer token against the configured
// bcrypt hash. A nil hash disables the check (local development).
func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.tokenHash == nil {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			respondError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "Unauthorized"))
			return
		}

		if err := bcrypt.CompareHashAndPassword(h.tokenHash, []byte(token)); err != nil {
			respondError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "Unauthorized"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
