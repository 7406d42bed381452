package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"dilemma.fyi/internal/question"
	"dilemma.fyi/internal/store"
)

// notifyTimeout bounds the background announcement fan-out so a slow mail
// provider cannot pin a goroutine forever.
const notifyTimeout = 2 * time.Minute

type createQuestionRequest struct {
	Category string   `json:"category"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Tags     []string `json:"tags"`
	Type     string   `json:"type"`
	Choices  []string `json:"choices"`
	Featured bool     `json:"featured"`
}

// createQuestion publishes a new dilemma. Type and choices are fixed from
// here on; there is no edit path that could invalidate recorded votes. On
// success the notifier fans out to subscribers in the background.
func (a *App) createQuestion(w http.ResponseWriter, r *http.Request) {
	var req createQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.errorJSON(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	qst, err := question.New(question.Draft{
		Category: question.Category(req.Category),
		Title:    req.Title,
		Body:     req.Body,
		Tags:     req.Tags,
		Type:     question.Type(req.Type),
		Choices:  req.Choices,
		Featured: req.Featured,
	}, a.now())
	if err != nil {
		var ve *question.ValidationError
		if errors.As(err, &ve) {
			a.errorJSON(w, http.StatusBadRequest, "validation_failed", ve.Error())
			return
		}
		a.serverError(w, r, "build question", err)
		return
	}

	if err := a.Queries.CreateQuestion(r.Context(), qst); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			a.errorJSON(w, http.StatusConflict, "duplicate_slug",
				"a question with this title already exists in the category")
			return
		}
		a.serverError(w, r, "create question", err)
		return
	}

	if a.Notifier != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			sent, err := a.Notifier.AnnounceQuestion(ctx, qst)
			if err != nil {
				a.Log.Error("announce question", "error", err, "slug", qst.Slug)
				return
			}
			a.Log.Info("question announced", "slug", qst.Slug, "recipients", sent)
		}()
	}

	a.writeJSON(w, http.StatusCreated, map[string]any{
		"id":       qst.ID,
		"category": string(qst.Category),
		"slug":     qst.Slug,
	})
}

type featureRequest struct {
	Featured bool `json:"featured"`
}

// setFeatured flips the editorial boost and returns the refreshed scores.
func (a *App) setFeatured(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")
	slug := r.PathValue("slug")
	if !question.ValidCategory(category) {
		a.notFound(w)
		return
	}

	var req featureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.errorJSON(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	qst, err := a.Queries.SetFeatured(r.Context(), category, slug, req.Featured, a.now())
	if err != nil {
		if isNotFound(err) {
			a.notFound(w)
			return
		}
		a.serverError(w, r, "set featured", err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"featured":         qst.Featured,
		"popularity_score": qst.Metrics.PopularityScore,
	})
}

// recalculate triggers an on-demand full metrics sweep.
func (a *App) recalculate(w http.ResponseWriter, r *http.Request) {
	updated, err := a.Queries.RecalculateAll(r.Context(), a.now(), a.Log)
	if err != nil {
		a.serverError(w, r, "recalculate metrics", err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}
