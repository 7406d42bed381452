// Package app is the HTTP surface of the platform: public listing, detail,
// response, and subscription endpoints plus the token-gated admin surface.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"dilemma.fyi/internal/auth"
	"dilemma.fyi/internal/cache"
	"dilemma.fyi/internal/question"
	"dilemma.fyi/internal/ratelimit"
	"dilemma.fyi/internal/store"
)

// Store is the persistence surface the handlers need. *store.Queries
// implements it; tests substitute an in-memory fake.
type Store interface {
	CreateQuestion(ctx context.Context, q *question.Question) error
	GetQuestion(ctx context.Context, category, slug string) (*question.Question, error)
	RecordView(ctx context.Context, category, slug string, v question.View) error
	AppendResponse(ctx context.Context, category, slug string, payload question.ResponsePayload, id question.Identity, now time.Time) (*question.Question, error)
	SetFeatured(ctx context.Context, category, slug string, featured bool, now time.Time) (*question.Question, error)
	ListQuestions(ctx context.Context, p store.ListParams) ([]store.Summary, bool, error)
	ListCategoryStats(ctx context.Context) ([]store.CategoryStats, error)
	CreateSubscriber(ctx context.Context, email string, now time.Time) (store.Subscriber, error)
	Unsubscribe(ctx context.Context, token string) error
	RecalculateAll(ctx context.Context, now time.Time, log *slog.Logger) (int, error)
}

// Notifier announces new questions to the mailing list.
type Notifier interface {
	AnnounceQuestion(ctx context.Context, q *question.Question) (int, error)
}

type App struct {
	Queries          Store
	Notifier         Notifier
	Admin            *auth.AdminGuard
	Listings         *cache.ListingCache
	ResponseLimiter  *ratelimit.Limiter
	SubscribeLimiter *ratelimit.Limiter
	Log              *slog.Logger
	Now              func() time.Time
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}

func (a *App) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/questions", a.listQuestions)
	mux.HandleFunc("GET /api/questions/{category}/{slug}", a.showQuestion)
	mux.HandleFunc("POST /api/questions/{category}/{slug}/responses", a.submitResponse)
	mux.HandleFunc("GET /api/categories", a.categoryStats)
	mux.HandleFunc("POST /api/subscribe", a.subscribe)
	mux.HandleFunc("GET /unsubscribe/{token}", a.unsubscribe)
	mux.HandleFunc("GET /healthz", a.health)

	mux.HandleFunc("POST /api/admin/questions", a.Admin.Require(a.createQuestion))
	mux.HandleFunc("POST /api/admin/questions/{category}/{slug}/feature", a.Admin.Require(a.setFeatured))
	mux.HandleFunc("POST /api/admin/recalculate", a.Admin.Require(a.recalculate))

	return a.securityHeaders(a.requestLog(mux))
}

func (a *App) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (a *App) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)
		a.Log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr,
		)
	})
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.Log.Error("encode response", "error", err)
	}
}

// writeJSONCached writes the payload and stores it in the listing cache
// under the given key.
func (a *App) writeJSONCached(w http.ResponseWriter, r *http.Request, key string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		a.Log.Error("encode listing", "error", err)
		a.errorJSON(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	a.Listings.Set(r.Context(), key, payload)
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (a *App) errorJSON(w http.ResponseWriter, status int, code, message string) {
	a.writeJSON(w, status, errorBody{Error: code, Message: message})
}

// serverError hides internals from the client but logs them in full. Store
// outages surface as a generic try-again signal.
func (a *App) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	a.Log.Error(msg, "error", err, "method", r.Method, "path", r.URL.Path)
	a.errorJSON(w, http.StatusServiceUnavailable, "unavailable", "temporarily unavailable, try again")
}

func (a *App) notFound(w http.ResponseWriter) {
	a.errorJSON(w, http.StatusNotFound, "not_found", "question not found")
}

func isNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// clientIP extracts the coarse identity IP from the connection. Proxy headers
// are deliberately not trusted; the IP only feeds uniqueness heuristics.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parsePage(r *http.Request) (page, limit int) {
	page = 1
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	limit = store.DefaultPageSize
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = min(l, store.MaxPageSize)
	}
	return page, limit
}
