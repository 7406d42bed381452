// Package auth gates the admin surface behind a shared secret. The operator
// provisions a token with cmd/tokengen and configures its bcrypt hash; every
// admin request carries the raw token as a bearer credential.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type AdminGuard struct {
	tokenHash []byte
	log       *slog.Logger
}

// NewAdminGuard builds a guard from the bcrypt hash of the admin token. An
// empty hash disables the admin surface entirely.
func NewAdminGuard(tokenHash string, log *slog.Logger) *AdminGuard {
	return &AdminGuard{tokenHash: []byte(tokenHash), log: log}
}

// Require wraps a handler so it only runs for requests presenting the admin
// token.
func (g *AdminGuard) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(g.tokenHash) == 0 {
			http.Error(w, "admin access disabled", http.StatusForbidden)
			return
		}

		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || token == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		if err := bcrypt.CompareHashAndPassword(g.tokenHash, []byte(token)); err != nil {
			g.log.Warn("admin auth rejected", "remote", r.RemoteAddr, "path", r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}
