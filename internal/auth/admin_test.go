package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testGuard(t *testing.T, token string) *AdminGuard {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	require.NoError(t, err)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAdminGuard(string(hash), log)
}

func requestWithAuth(header string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/admin/questions", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return r
}

func TestAdminGuard(t *testing.T) {
	guard := testGuard(t, "correct-horse")
	handler := guard.Require(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer correct-horse", http.StatusNoContent},
		{"wrong token", "Bearer battery-staple", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic correct-horse", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler(w, requestWithAuth(tt.header))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAdminGuardDisabledWithoutHash(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	guard := NewAdminGuard("", log)
	handler := guard.Require(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})

	w := httptest.NewRecorder()
	handler(w, requestWithAuth("Bearer anything"))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
