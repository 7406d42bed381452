// Package store persists questions and subscribers in PostgreSQL. Each
// question is a single self-contained row: choices, responses, views, and the
// metrics snapshot live in JSONB columns, which keeps the response append and
// the vote increment inside one atomic row update.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dilemma.fyi/internal/question"
)

// ErrDuplicate is returned when a unique constraint is violated, e.g. a second
// question with the same (category, slug) or a re-subscribed email.
var ErrDuplicate = errors.New("already exists")

// DBTX is the subset of pgx used by queries, satisfied by both *pgxpool.Pool
// and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Queries struct {
	db   DBTX
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Queries {
	return &Queries{db: pool, pool: pool}
}

const questionColumns = `id, category, slug, title, body, tags, question_type,
	featured, choices, responses, views, metrics, created_at, updated_at`

func scanQuestion(row pgx.Row) (*question.Question, error) {
	var (
		qst           question.Question
		category      string
		qtype         string
		choicesData   []byte
		responsesData []byte
		viewsData     []byte
		metricsData   []byte
	)
	err := row.Scan(&qst.ID, &category, &qst.Slug, &qst.Title, &qst.Body, &qst.Tags,
		&qtype, &qst.Featured, &choicesData, &responsesData, &viewsData, &metricsData,
		&qst.CreatedAt, &qst.UpdatedAt)
	if err != nil {
		return nil, err
	}
	qst.Category = question.Category(category)
	if qst.Prompt, err = question.DecodePrompt(qtype, choicesData); err != nil {
		return nil, err
	}
	if qst.Responses, err = question.DecodeResponses(responsesData); err != nil {
		return nil, err
	}
	if qst.Views, err = question.DecodeViews(viewsData); err != nil {
		return nil, err
	}
	if err := decodeMetrics(metricsData, &qst.Metrics); err != nil {
		return nil, err
	}
	return &qst, nil
}

// CreateQuestion inserts the aggregate and returns it with the assigned id.
func (q *Queries) CreateQuestion(ctx context.Context, qst *question.Question) error {
	choicesData, err := question.EncodeChoices(qst.Prompt)
	if err != nil {
		return fmt.Errorf("encode choices: %w", err)
	}
	metricsData, err := encodeMetrics(qst.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	tags := qst.Tags
	if tags == nil {
		tags = []string{}
	}

	err = q.db.QueryRow(ctx, `
		INSERT INTO questions (category, slug, title, body, tags, question_type,
			featured, choices, responses, views, metrics, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '[]', '[]', $9, $10, $10)
		RETURNING id`,
		string(qst.Category), qst.Slug, qst.Title, qst.Body, tags,
		string(qst.Type()), qst.Featured, choicesData, metricsData, qst.CreatedAt,
	).Scan(&qst.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetQuestion loads the full aggregate by its natural key. Returns
// pgx.ErrNoRows for an unknown category/slug.
func (q *Queries) GetQuestion(ctx context.Context, category, slug string) (*question.Question, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE category = $1 AND slug = $2`,
		category, slug)
	return scanQuestion(row)
}

// RecordView appends one view record in a single atomic statement. The sweep
// picks up the metrics change later; views are telemetry and never rejected.
func (q *Queries) RecordView(ctx context.Context, category, slug string, v question.View) error {
	data, err := question.EncodeView(v)
	if err != nil {
		return fmt.Errorf("encode view: %w", err)
	}
	tag, err := q.db.Exec(ctx, `
		UPDATE questions SET views = views || $3::jsonb
		WHERE category = $1 AND slug = $2`,
		category, slug, data)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// AppendResponse validates and appends a response, incrementing the matched
// choice's vote tally and refreshing the metrics snapshot, all within one
// transaction holding the row lock. Validation errors from the question
// package pass through untouched so the caller can map them.
func (q *Queries) AppendResponse(ctx context.Context, category, slug string, payload question.ResponsePayload, id question.Identity, now time.Time) (*question.Question, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE category = $1 AND slug = $2 FOR UPDATE`,
		category, slug)
	qst, err := scanQuestion(row)
	if err != nil {
		return nil, err
	}

	if err := qst.ApplyResponse(payload, id, now); err != nil {
		return nil, err
	}
	qst.Recalculate(now)

	choicesData, err := question.EncodeChoices(qst.Prompt)
	if err != nil {
		return nil, fmt.Errorf("encode choices: %w", err)
	}
	responsesData, err := question.EncodeResponses(qst.Responses)
	if err != nil {
		return nil, fmt.Errorf("encode responses: %w", err)
	}
	metricsData, err := encodeMetrics(qst.Metrics)
	if err != nil {
		return nil, fmt.Errorf("encode metrics: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE questions
		SET choices = $2, responses = $3, metrics = $4, updated_at = $5
		WHERE id = $1`,
		qst.ID, choicesData, responsesData, metricsData, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return qst, nil
}

// SetFeatured flips the editorial featured flag and refreshes the metrics
// snapshot so the popularity bonus applies immediately.
func (q *Queries) SetFeatured(ctx context.Context, category, slug string, featured bool, now time.Time) (*question.Question, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE category = $1 AND slug = $2 FOR UPDATE`,
		category, slug)
	qst, err := scanQuestion(row)
	if err != nil {
		return nil, err
	}

	qst.Featured = featured
	qst.Recalculate(now)
	metricsData, err := encodeMetrics(qst.Metrics)
	if err != nil {
		return nil, fmt.Errorf("encode metrics: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE questions SET featured = $2, metrics = $3, updated_at = $4 WHERE id = $1`,
		qst.ID, featured, metricsData, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return qst, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
