package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"dilemma.fyi/internal/store"
)

type subscribeRequest struct {
	Email string `json:"email"`
}

func (a *App) subscribe(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !a.SubscribeLimiter.Allow(ip) {
		a.errorJSON(w, http.StatusTooManyRequests, "rate_limited", "too many subscription attempts")
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.errorJSON(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		a.errorJSON(w, http.StatusBadRequest, "validation_failed", "a valid email address is required")
		return
	}

	_, err := a.Queries.CreateSubscriber(r.Context(), email, a.now())
	if errors.Is(err, store.ErrDuplicate) {
		// Already on the list; do not leak membership.
		a.writeJSON(w, http.StatusOK, map[string]bool{"subscribed": true})
		return
	}
	if err != nil {
		a.serverError(w, r, "create subscriber", err)
		return
	}
	a.writeJSON(w, http.StatusCreated, map[string]bool{"subscribed": true})
}

// unsubscribe handles the link embedded in notification emails, so it is a
// plain GET returning text a browser can show.
func (a *App) unsubscribe(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	err := a.Queries.Unsubscribe(r.Context(), token)
	if isNotFound(err) {
		http.Error(w, "unknown unsubscribe link", http.StatusNotFound)
		return
	}
	if err != nil {
		a.serverError(w, r, "unsubscribe", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("You have been unsubscribed. Sorry to see you go.\n"))
}
