package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dilemma.fyi/internal/metrics"
	"dilemma.fyi/internal/question"
)

// SweepBatchSize bounds how many questions a single recalculation batch
// loads. A crash mid-sweep loses at most one batch, and recomputation is
// cheap to retry.
const SweepBatchSize = 200

// RecalculateAll recomputes the metrics snapshot for every question at the
// given instant, in id-ordered batches. A failing entity is logged and
// skipped so one bad row cannot block the sweep. Returns the number of
// questions updated.
func (q *Queries) RecalculateAll(ctx context.Context, now time.Time, log *slog.Logger) (int, error) {
	var cursor int64
	updated := 0
	for {
		rows, err := q.db.Query(ctx, `
			SELECT id, responses, views, created_at, featured
			FROM questions WHERE id > $1 ORDER BY id LIMIT $2`,
			cursor, SweepBatchSize)
		if err != nil {
			return updated, fmt.Errorf("load batch after id %d: %w", cursor, err)
		}

		type item struct {
			id        int64
			in        metrics.Input
			decodeErr error
		}
		var batch []item
		for rows.Next() {
			var (
				it            item
				responsesData []byte
				viewsData     []byte
			)
			if err := rows.Scan(&it.id, &responsesData, &viewsData, &it.in.CreatedAt, &it.in.Featured); err != nil {
				rows.Close()
				return updated, fmt.Errorf("scan batch row: %w", err)
			}
			it.in.Views, it.decodeErr = decodeViewEvents(viewsData)
			if it.decodeErr == nil {
				it.in.Responses, it.decodeErr = decodeResponseEvents(responsesData)
			}
			batch = append(batch, it)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return updated, fmt.Errorf("read batch: %w", err)
		}
		if len(batch) == 0 {
			return updated, nil
		}

		for _, it := range batch {
			cursor = it.id
			if it.decodeErr != nil {
				log.Error("sweep: skip question", "id", it.id, "error", it.decodeErr)
				continue
			}
			snapshot := metrics.Calculate(it.in, now)
			data, err := encodeMetrics(snapshot)
			if err != nil {
				log.Error("sweep: skip question", "id", it.id, "error", err)
				continue
			}
			if _, err := q.db.Exec(ctx, `UPDATE questions SET metrics = $2 WHERE id = $1`, it.id, data); err != nil {
				log.Error("sweep: skip question", "id", it.id, "error", err)
				continue
			}
			updated++
		}
	}
}

// PurgeOldViews drops view records older than the cutoff from every question.
// Responses are never purged. Returns the number of questions touched.
func (q *Queries) PurgeOldViews(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE questions
		SET views = COALESCE((
			SELECT jsonb_agg(v)
			FROM jsonb_array_elements(views) AS v
			WHERE (v->>'at')::timestamptz >= $1
		), '[]'::jsonb)
		WHERE EXISTS (
			SELECT 1 FROM jsonb_array_elements(views) AS v
			WHERE (v->>'at')::timestamptz < $1
		)`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func decodeViewEvents(data []byte) ([]metrics.Event, error) {
	views, err := question.DecodeViews(data)
	if err != nil {
		return nil, err
	}
	events := make([]metrics.Event, len(views))
	for i, v := range views {
		events[i] = metrics.Event{At: v.At, IP: v.IP}
	}
	return events, nil
}

func decodeResponseEvents(data []byte) ([]metrics.Event, error) {
	responses, err := question.DecodeResponses(data)
	if err != nil {
		return nil, err
	}
	events := make([]metrics.Event, len(responses))
	for i, r := range responses {
		events[i] = metrics.Event{At: r.At, IP: r.IP}
	}
	return events, nil
}
