package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dilemma.fyi/internal/metrics"
	"dilemma.fyi/internal/question"
)

// Sort orders over question listings. Every order breaks ties by created_at
// descending so paging is stable.
const (
	SortPopularity    = "popularity"
	SortTrending      = "trending"
	SortNewest        = "newest"
	SortMostResponses = "most_responses"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListParams selects, filters, and pages a question listing. Zero values mean
// "no filter"; Search combines with every other option.
type ListParams struct {
	Sort     string
	Category string
	Type     string
	Featured *bool
	Search   string
	Page     int
	Limit    int
}

// Summary is the listing projection of a question: identity, content header,
// and the derived metrics, without the embedded event logs.
type Summary struct {
	ID        int64             `json:"id"`
	Category  string            `json:"category"`
	Slug      string            `json:"slug"`
	Title     string            `json:"title"`
	Type      string            `json:"type"`
	Tags      []string          `json:"tags"`
	Featured  bool              `json:"featured"`
	Metrics   metrics.Snapshot  `json:"metrics"`
	Choices   []question.Choice `json:"choices,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

var sortClauses = map[string]string{
	SortPopularity:    `(metrics->>'popularity_score')::float8 DESC, created_at DESC`,
	SortTrending:      `(metrics->>'trending_score')::float8 DESC, created_at DESC`,
	SortNewest:        `created_at DESC`,
	SortMostResponses: `(metrics->>'total_responses')::bigint DESC, created_at DESC`,
}

// ValidSort reports whether s is a recognized sort order.
func ValidSort(s string) bool {
	_, ok := sortClauses[s]
	return ok
}

// ListQuestions returns one page of summaries for the given sort, filters,
// and optional search term, plus whether a following page exists. Scores
// reflect the most recent recalculation; bounded staleness between sweeps is
// accepted.
func (q *Queries) ListQuestions(ctx context.Context, p ListParams) ([]Summary, bool, error) {
	orderBy, ok := sortClauses[p.Sort]
	if !ok {
		orderBy = sortClauses[SortNewest]
	}
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	page := p.Page
	if page < 1 {
		page = 1
	}

	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if p.Category != "" {
		where = append(where, "category = "+arg(p.Category))
	}
	if p.Type != "" {
		where = append(where, "question_type = "+arg(p.Type))
	}
	if p.Featured != nil {
		where = append(where, "featured = "+arg(*p.Featured))
	}
	if p.Search != "" {
		pattern := arg("%" + p.Search + "%")
		term := arg(p.Search)
		where = append(where, fmt.Sprintf(
			"(title ILIKE %s OR body ILIKE %s OR EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE tag ILIKE %s))",
			pattern, pattern, term))
	}

	sql := `SELECT id, category, slug, title, tags, question_type, featured,
		choices, metrics, created_at FROM questions`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY " + orderBy
	// Fetch one row past the page so the offset stays a multiple of the
	// display limit while still revealing whether a next page exists.
	sql += fmt.Sprintf(" LIMIT %s OFFSET %s", arg(limit+1), arg((page-1)*limit))

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var (
			s           Summary
			choicesData []byte
			metricsData []byte
		)
		if err := rows.Scan(&s.ID, &s.Category, &s.Slug, &s.Title, &s.Tags, &s.Type,
			&s.Featured, &choicesData, &metricsData, &s.CreatedAt); err != nil {
			return nil, false, err
		}
		if err := decodeMetrics(metricsData, &s.Metrics); err != nil {
			return nil, false, err
		}
		if s.Type == string(question.TypeMultipleChoice) {
			prompt, err := question.DecodePrompt(s.Type, choicesData)
			if err != nil {
				return nil, false, err
			}
			s.Choices = prompt.(*question.MultipleChoice).Choices
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	hasMore := len(summaries) > limit
	if hasMore {
		summaries = summaries[:limit]
	}
	return summaries, hasMore, nil
}

// CategoryStats is the per-category rollup of the aggregate query layer.
type CategoryStats struct {
	Category          string  `json:"category"`
	Questions         int64   `json:"questions"`
	MultipleChoice    int64   `json:"multiple_choice"`
	Paragraph         int64   `json:"paragraph"`
	AvgPopularity     float64 `json:"avg_popularity"`
	TotalViews        int64   `json:"total_views"`
	TotalResponses    int64   `json:"total_responses"`
	AvgEngagementRate float64 `json:"avg_engagement_rate"`
}

// ListCategoryStats rolls up counts, averaged scores, and totals per category,
// split by question type.
func (q *Queries) ListCategoryStats(ctx context.Context) ([]CategoryStats, error) {
	rows, err := q.db.Query(ctx, `
		SELECT category,
			count(*),
			count(*) FILTER (WHERE question_type = 'multiple_choice'),
			count(*) FILTER (WHERE question_type = 'paragraph'),
			COALESCE(avg((metrics->>'popularity_score')::float8), 0),
			COALESCE(sum((metrics->>'total_views')::bigint), 0),
			COALESCE(sum((metrics->>'total_responses')::bigint), 0),
			COALESCE(avg((metrics->>'engagement_rate')::float8), 0)
		FROM questions
		GROUP BY category
		ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []CategoryStats
	for rows.Next() {
		var cs CategoryStats
		if err := rows.Scan(&cs.Category, &cs.Questions, &cs.MultipleChoice,
			&cs.Paragraph, &cs.AvgPopularity, &cs.TotalViews, &cs.TotalResponses,
			&cs.AvgEngagementRate); err != nil {
			return nil, err
		}
		stats = append(stats, cs)
	}
	return stats, rows.Err()
}

func encodeMetrics(s metrics.Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

func decodeMetrics(data []byte, s *metrics.Snapshot) error {
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("decode metrics: %w", err)
	}
	return nil
}
