package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Subscriber is a mailing-list member. Unsubscribing soft-deletes via the
// active flag; rows are never removed automatically.
type Subscriber struct {
	ID               int64
	Email            string
	Active           bool
	UnsubscribeToken string
	SubscribedAt     time.Time
	LastNotifiedAt   *time.Time
}

// CreateSubscriber adds an email to the list, or reactivates it if it was
// previously unsubscribed. A fresh unsubscribe token is issued either way.
// Returns ErrDuplicate if the email is already actively subscribed.
func (q *Queries) CreateSubscriber(ctx context.Context, email string, now time.Time) (Subscriber, error) {
	token := uuid.NewString()
	var s Subscriber
	err := q.db.QueryRow(ctx, `
		INSERT INTO subscribers (email, active, unsubscribe_token, subscribed_at)
		VALUES ($1, true, $2, $3)
		ON CONFLICT (email) DO UPDATE
			SET active = true, unsubscribe_token = $2, subscribed_at = $3
			WHERE subscribers.active = false
		RETURNING id, email, active, unsubscribe_token, subscribed_at, last_notified_at`,
		email, token, now,
	).Scan(&s.ID, &s.Email, &s.Active, &s.UnsubscribeToken, &s.SubscribedAt, &s.LastNotifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict on an already-active row: the WHERE clause suppressed the
		// update, so nothing came back.
		return Subscriber{}, ErrDuplicate
	}
	return s, err
}

// Unsubscribe flips the active flag off for the holder of the token. Returns
// pgx.ErrNoRows for an unknown token.
func (q *Queries) Unsubscribe(ctx context.Context, token string) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE subscribers SET active = false WHERE unsubscribe_token = $1`, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListActiveSubscribers returns everyone who should be notified of a new
// question.
func (q *Queries) ListActiveSubscribers(ctx context.Context) ([]Subscriber, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, email, active, unsubscribe_token, subscribed_at, last_notified_at
		FROM subscribers WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subscribers []Subscriber
	for rows.Next() {
		var s Subscriber
		if err := rows.Scan(&s.ID, &s.Email, &s.Active, &s.UnsubscribeToken,
			&s.SubscribedAt, &s.LastNotifiedAt); err != nil {
			return nil, err
		}
		subscribers = append(subscribers, s)
	}
	return subscribers, rows.Err()
}

// MarkNotified stamps last_notified_at after a successful send.
func (q *Queries) MarkNotified(ctx context.Context, subscriberID int64, at time.Time) error {
	_, err := q.db.Exec(ctx,
		`UPDATE subscribers SET last_notified_at = $2 WHERE id = $1`, subscriberID, at)
	return err
}
