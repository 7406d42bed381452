package app

import (
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"dilemma.fyi/internal/cache"
	"dilemma.fyi/internal/markdown"
	"dilemma.fyi/internal/metrics"
	"dilemma.fyi/internal/question"
	"dilemma.fyi/internal/store"
)

const sessionCookie = "dilemma_session"

type listResponse struct {
	Questions []store.Summary `json:"questions"`
	Page      int             `json:"page"`
	Limit     int             `json:"limit"`
	HasMore   bool            `json:"has_more"`
}

// listQuestions serves ranked, filtered, paginated listings, optionally
// combined with a free-text search term. Results may be a cache interval
// stale, which is within the consistency budget for derived scores.
func (a *App) listQuestions(w http.ResponseWriter, r *http.Request) {
	qv := r.URL.Query()
	sort := qv.Get("sort")
	if sort == "" {
		sort = store.SortPopularity
	}
	if !store.ValidSort(sort) {
		a.errorJSON(w, http.StatusBadRequest, "invalid_sort",
			"sort must be one of popularity, trending, newest, most_responses")
		return
	}
	category := qv.Get("category")
	if category != "" && !question.ValidCategory(category) {
		a.notFound(w)
		return
	}
	qtype := qv.Get("type")
	if qtype != "" && qtype != string(question.TypeMultipleChoice) && qtype != string(question.TypeParagraph) {
		a.errorJSON(w, http.StatusBadRequest, "invalid_type",
			"type must be multiple_choice or paragraph")
		return
	}
	page, limit := parsePage(r)

	params := store.ListParams{
		Sort:     sort,
		Category: category,
		Type:     qtype,
		Search:   qv.Get("q"),
		Page:     page,
		Limit:    limit,
	}
	if f := qv.Get("featured"); f != "" {
		featured, err := strconv.ParseBool(f)
		if err != nil {
			a.errorJSON(w, http.StatusBadRequest, "invalid_featured", "featured must be true or false")
			return
		}
		params.Featured = &featured
	}

	key := cache.Key(map[string]string{
		"sort": sort, "category": category, "type": qtype,
		"featured": qv.Get("featured"), "q": params.Search,
		"page": strconv.Itoa(page), "limit": strconv.Itoa(limit),
	})
	if payload := a.Listings.Get(r.Context(), key); payload != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Write(payload)
		return
	}

	summaries, hasMore, err := a.Queries.ListQuestions(r.Context(), params)
	if err != nil {
		a.serverError(w, r, "list questions", err)
		return
	}
	if summaries == nil {
		summaries = []store.Summary{}
	}

	resp := listResponse{Questions: summaries, Page: page, Limit: limit, HasMore: hasMore}
	a.writeJSONCached(w, r, key, resp)
}

type responseItem struct {
	Choice      string    `json:"choice,omitempty"`
	Text        string    `json:"text,omitempty"`
	Explanation string    `json:"explanation,omitempty"`
	At          time.Time `json:"at"`
}

type questionDetail struct {
	ID        int64             `json:"id"`
	Category  string            `json:"category"`
	Slug      string            `json:"slug"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	BodyHTML  template.HTML     `json:"body_html"`
	Type      string            `json:"type"`
	Tags      []string          `json:"tags"`
	Featured  bool              `json:"featured"`
	Choices   []question.Choice `json:"choices,omitempty"`
	Responses []responseItem    `json:"responses"`
	Metrics   metrics.Snapshot  `json:"metrics"`
	CreatedAt time.Time         `json:"created_at"`
}

// showQuestion serves the full question and records a view. Submitter
// identity never leaves the server: response items carry no IP or agent.
func (a *App) showQuestion(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")
	slug := r.PathValue("slug")
	if !question.ValidCategory(category) {
		a.notFound(w)
		return
	}

	qst, err := a.Queries.GetQuestion(r.Context(), category, slug)
	if err != nil {
		if isNotFound(err) {
			a.notFound(w)
			return
		}
		a.serverError(w, r, "get question", err)
		return
	}

	a.recordView(w, r, category, slug)

	detail := questionDetail{
		ID:        qst.ID,
		Category:  string(qst.Category),
		Slug:      qst.Slug,
		Title:     qst.Title,
		Body:      qst.Body,
		BodyHTML:  markdown.Render(qst.Body),
		Type:      string(qst.Type()),
		Tags:      qst.Tags,
		Featured:  qst.Featured,
		Metrics:   qst.Metrics,
		CreatedAt: qst.CreatedAt,
	}
	if detail.Tags == nil {
		detail.Tags = []string{}
	}
	if mc, ok := qst.Prompt.(*question.MultipleChoice); ok {
		detail.Choices = mc.Choices
	}
	detail.Responses = make([]responseItem, 0, len(qst.Responses))
	for i := len(qst.Responses) - 1; i >= 0; i-- { // newest first
		res := qst.Responses[i]
		item := responseItem{At: res.At}
		switch answer := res.Answer.(type) {
		case question.ChoiceAnswer:
			item.Choice = answer.Choice
			item.Explanation = answer.Explanation
		case question.TextAnswer:
			item.Text = answer.Text
			item.Explanation = answer.Explanation
		}
		detail.Responses = append(detail.Responses, item)
	}

	a.writeJSON(w, http.StatusOK, detail)
}

// recordView appends view telemetry for the request. Never fails the request:
// a telemetry write error is logged and the page is served anyway.
func (a *App) recordView(w http.ResponseWriter, r *http.Request, category, slug string) {
	session := ""
	if c, err := r.Cookie(sessionCookie); err == nil {
		session = c.Value
	} else {
		session = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    session,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	v := question.View{
		At:        a.now(),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		SessionID: session,
		Referrer:  r.Referer(),
	}
	if err := a.Queries.RecordView(r.Context(), category, slug, v); err != nil {
		a.Log.Error("record view", "error", err, "category", category, "slug", slug)
	}
}

func (a *App) categoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Queries.ListCategoryStats(r.Context())
	if err != nil {
		a.serverError(w, r, "category stats", err)
		return
	}
	if stats == nil {
		stats = []store.CategoryStats{}
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"categories": stats})
}
