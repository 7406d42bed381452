package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"dilemma.fyi/internal/question"
)

type responseRequest struct {
	Choice       string `json:"choice"`
	ResponseText string `json:"response_text"`
	Explanation  string `json:"explanation"`
}

type responseAccepted struct {
	OK             bool              `json:"ok"`
	TotalResponses int               `json:"total_responses"`
	Choices        []question.Choice `json:"choices,omitempty"`
}

// submitResponse validates and appends one response. The append and the vote
// increment commit atomically in the store; failures here are terminal for
// the request and the caller decides whether to retry.
func (a *App) submitResponse(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")
	slug := r.PathValue("slug")
	if !question.ValidCategory(category) {
		a.notFound(w)
		return
	}

	ip := clientIP(r)
	if !a.ResponseLimiter.Allow(ip) {
		retry := int(a.ResponseLimiter.RetryAfter(ip).Seconds()) + 1
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		a.errorJSON(w, http.StatusTooManyRequests, "rate_limited", "too many responses, slow down")
		return
	}

	var req responseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.errorJSON(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	payload := question.ResponsePayload{
		Choice:      req.Choice,
		Text:        req.ResponseText,
		Explanation: req.Explanation,
	}
	id := question.Identity{IP: ip, UserAgent: r.UserAgent()}

	qst, err := a.Queries.AppendResponse(r.Context(), category, slug, payload, id, a.now())
	if err != nil {
		var ve *question.ValidationError
		switch {
		case errors.Is(err, question.ErrWrongType):
			a.errorJSON(w, http.StatusBadRequest, "wrong_type_for_question",
				"response kind does not match the question type")
		case errors.Is(err, question.ErrInvalidChoice):
			a.errorJSON(w, http.StatusBadRequest, "invalid_choice",
				"choice does not match any option of this question")
		case errors.As(err, &ve):
			a.errorJSON(w, http.StatusBadRequest, "validation_failed", ve.Error())
		case isNotFound(err):
			a.notFound(w)
		default:
			a.serverError(w, r, "append response", err)
		}
		return
	}

	resp := responseAccepted{OK: true, TotalResponses: len(qst.Responses)}
	if mc, ok := qst.Prompt.(*question.MultipleChoice); ok {
		resp.Choices = mc.Choices
	}
	a.writeJSON(w, http.StatusCreated, resp)
}
