package store_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"dilemma.fyi/internal/database"
	"dilemma.fyi/internal/question"
	"dilemma.fyi/internal/store"
)

func setupQueries(t *testing.T) *store.Queries {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test needs docker")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("dilemma_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, database.Migrate(dbURL))

	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return store.New(pool)
}

func mustQuestion(t *testing.T, title string, category question.Category, qtype question.Type, createdAt time.Time) *question.Question {
	t.Helper()
	d := question.Draft{
		Category: category,
		Title:    title,
		Body:     "Body for " + title,
		Tags:     []string{"integration", "seed"},
		Type:     qtype,
	}
	if qtype == question.TypeMultipleChoice {
		d.Choices = []string{"Yes", "No"}
	}
	q, err := question.New(d, createdAt)
	require.NoError(t, err)
	return q
}

func TestStoreIntegration(t *testing.T) {
	queries := setupQueries(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("create and get round-trip", func(t *testing.T) {
		q := mustQuestion(t, "Would you return a lost wallet", question.CategoryMoney, question.TypeMultipleChoice, now.Add(-72*time.Hour))
		require.NoError(t, queries.CreateQuestion(ctx, q))
		assert.NotZero(t, q.ID)

		got, err := queries.GetQuestion(ctx, "money", q.Slug)
		require.NoError(t, err)
		assert.Equal(t, q.ID, got.ID)
		assert.Equal(t, q.Title, got.Title)
		assert.Equal(t, question.TypeMultipleChoice, got.Type())
		mc, ok := got.Prompt.(*question.MultipleChoice)
		require.True(t, ok)
		require.Len(t, mc.Choices, 2)
		assert.Equal(t, "Yes", mc.Choices[0].Text)

		// Same title in the same category hits the unique pair.
		dup := mustQuestion(t, "Would you return a lost wallet", question.CategoryMoney, question.TypeMultipleChoice, now)
		err = queries.CreateQuestion(ctx, dup)
		assert.ErrorIs(t, err, store.ErrDuplicate)

		// Same title elsewhere is fine.
		other := mustQuestion(t, "Would you return a lost wallet", question.CategoryWork, question.TypeMultipleChoice, now)
		assert.NoError(t, queries.CreateQuestion(ctx, other))

		_, err = queries.GetQuestion(ctx, "money", "no-such-slug")
		assert.ErrorIs(t, err, pgx.ErrNoRows)
	})

	t.Run("append response updates votes and metrics atomically", func(t *testing.T) {
		q := mustQuestion(t, "Would you confront a queue jumper", question.CategoryHonesty, question.TypeMultipleChoice, now.Add(-24*time.Hour))
		require.NoError(t, queries.CreateQuestion(ctx, q))

		payload := question.ResponsePayload{Choice: "Yes", Explanation: "Silence just rewards the behavior."}
		id := question.Identity{IP: "203.0.113.7", UserAgent: "test"}
		updated, err := queries.AppendResponse(ctx, "honesty", q.Slug, payload, id, now)
		require.NoError(t, err)

		assert.Equal(t, 1, updated.VoteTotal())
		require.Len(t, updated.Responses, 1)
		assert.Equal(t, len(updated.Responses), updated.VoteTotal())
		assert.Greater(t, updated.Metrics.PopularityScore, 0.0)
		assert.Equal(t, 1, updated.Metrics.Responses24h)

		// The persisted row matches what the call returned.
		got, err := queries.GetQuestion(ctx, "honesty", q.Slug)
		require.NoError(t, err)
		assert.Equal(t, 1, got.VoteTotal())
		assert.Equal(t, updated.Metrics.PopularityScore, got.Metrics.PopularityScore)

		// Invalid choice leaves the row untouched.
		_, err = queries.AppendResponse(ctx, "honesty", q.Slug,
			question.ResponsePayload{Choice: "Maybe", Explanation: "Long enough explanation."}, id, now)
		assert.ErrorIs(t, err, question.ErrInvalidChoice)
		got, err = queries.GetQuestion(ctx, "honesty", q.Slug)
		require.NoError(t, err)
		assert.Equal(t, 1, got.VoteTotal())
		assert.Len(t, got.Responses, 1)
	})

	t.Run("record view appends telemetry", func(t *testing.T) {
		q := mustQuestion(t, "Would you read a partner's diary", question.CategoryRelationships, question.TypeParagraph, now.Add(-6*time.Hour))
		require.NoError(t, queries.CreateQuestion(ctx, q))

		v := question.View{At: now, IP: "198.51.100.2", UserAgent: "test", SessionID: "s1"}
		require.NoError(t, queries.RecordView(ctx, "relationships", q.Slug, v))
		require.NoError(t, queries.RecordView(ctx, "relationships", q.Slug, v))

		got, err := queries.GetQuestion(ctx, "relationships", q.Slug)
		require.NoError(t, err)
		assert.Len(t, got.Views, 2)

		err = queries.RecordView(ctx, "relationships", "missing", v)
		assert.ErrorIs(t, err, pgx.ErrNoRows)
	})

	t.Run("set featured recalculates", func(t *testing.T) {
		q := mustQuestion(t, "Would you take credit for team work", question.CategoryWork, question.TypeMultipleChoice, now.Add(-12*time.Hour))
		require.NoError(t, queries.CreateQuestion(ctx, q))

		plain, err := queries.GetQuestion(ctx, "work", q.Slug)
		require.NoError(t, err)

		boosted, err := queries.SetFeatured(ctx, "work", q.Slug, true, now)
		require.NoError(t, err)
		assert.True(t, boosted.Featured)
		assert.Greater(t, boosted.Metrics.PopularityScore, plain.Metrics.PopularityScore)
	})

	t.Run("list questions sorts and filters", func(t *testing.T) {
		older := mustQuestion(t, "Would you rehome an aggressive cat", question.CategoryAnimals, question.TypeMultipleChoice, now.Add(-96*time.Hour))
		newer := mustQuestion(t, "Would you feed a stray every day", question.CategoryAnimals, question.TypeParagraph, now.Add(-1*time.Hour))
		require.NoError(t, queries.CreateQuestion(ctx, older))
		require.NoError(t, queries.CreateQuestion(ctx, newer))

		got, hasMore, err := queries.ListQuestions(ctx, store.ListParams{
			Sort: store.SortNewest, Category: "animals", Limit: 10,
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.False(t, hasMore)
		assert.Equal(t, newer.Slug, got[0].Slug)
		assert.Equal(t, older.Slug, got[1].Slug)

		got, _, err = queries.ListQuestions(ctx, store.ListParams{
			Sort: store.SortNewest, Category: "animals", Type: "paragraph", Limit: 10,
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, newer.Slug, got[0].Slug)

		got, _, err = queries.ListQuestions(ctx, store.ListParams{
			Sort: store.SortNewest, Search: "stray", Limit: 10,
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, newer.Slug, got[0].Slug)

		// One-row pages serve both questions with no gap at the boundary.
		got, hasMore, err = queries.ListQuestions(ctx, store.ListParams{
			Sort: store.SortNewest, Category: "animals", Page: 1, Limit: 1,
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, hasMore)
		assert.Equal(t, newer.Slug, got[0].Slug)
		got, hasMore, err = queries.ListQuestions(ctx, store.ListParams{
			Sort: store.SortNewest, Category: "animals", Page: 2, Limit: 1,
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.False(t, hasMore)
		assert.Equal(t, older.Slug, got[0].Slug)

		// A response pushes the older question to the top of most_responses.
		_, err = queries.AppendResponse(ctx, "animals", older.Slug,
			question.ResponsePayload{Choice: "Yes", Explanation: "The cat deserves a calmer home."},
			question.Identity{IP: "203.0.113.8"}, now)
		require.NoError(t, err)
		got, _, err = queries.ListQuestions(ctx, store.ListParams{
			Sort: store.SortMostResponses, Category: "animals", Limit: 10,
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, older.Slug, got[0].Slug)

		// Page past the end comes back empty, not an error.
		got, hasMore, err = queries.ListQuestions(ctx, store.ListParams{
			Sort: store.SortNewest, Category: "animals", Page: 50, Limit: 10,
		})
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.False(t, hasMore)
	})

	t.Run("category stats aggregate by category", func(t *testing.T) {
		stats, err := queries.ListCategoryStats(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, stats)

		byCat := make(map[string]store.CategoryStats, len(stats))
		for _, s := range stats {
			byCat[s.Category] = s
		}
		animals, ok := byCat["animals"]
		require.True(t, ok)
		assert.Equal(t, int64(2), animals.Questions)
		assert.Equal(t, int64(1), animals.MultipleChoice)
		assert.Equal(t, int64(1), animals.Paragraph)
	})

	t.Run("subscriber lifecycle", func(t *testing.T) {
		sub, err := queries.CreateSubscriber(ctx, "reader@example.com", now)
		require.NoError(t, err)
		assert.True(t, sub.Active)
		assert.NotEmpty(t, sub.UnsubscribeToken)

		_, err = queries.CreateSubscriber(ctx, "reader@example.com", now)
		assert.ErrorIs(t, err, store.ErrDuplicate)

		active, err := queries.ListActiveSubscribers(ctx)
		require.NoError(t, err)
		require.Len(t, active, 1)

		require.NoError(t, queries.MarkNotified(ctx, sub.ID, now))

		require.NoError(t, queries.Unsubscribe(ctx, sub.UnsubscribeToken))
		active, err = queries.ListActiveSubscribers(ctx)
		require.NoError(t, err)
		assert.Empty(t, active)

		err = queries.Unsubscribe(ctx, "bogus-token")
		assert.ErrorIs(t, err, pgx.ErrNoRows)

		// Resubscribing reactivates with a fresh token.
		again, err := queries.CreateSubscriber(ctx, "reader@example.com", now)
		require.NoError(t, err)
		assert.True(t, again.Active)
		assert.NotEqual(t, sub.UnsubscribeToken, again.UnsubscribeToken)
	})

	t.Run("recalculate all and purge old views", func(t *testing.T) {
		log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

		updated, err := queries.RecalculateAll(ctx, now, log)
		require.NoError(t, err)
		assert.Greater(t, updated, 0)

		q := mustQuestion(t, "Would you report a friend's tax fraud", question.CategoryLaw, question.TypeParagraph, now.Add(-200*24*time.Hour))
		require.NoError(t, queries.CreateQuestion(ctx, q))
		old := question.View{At: now.Add(-120 * 24 * time.Hour), IP: "192.0.2.9", SessionID: "old"}
		fresh := question.View{At: now.Add(-time.Hour), IP: "192.0.2.9", SessionID: "fresh"}
		require.NoError(t, queries.RecordView(ctx, "law", q.Slug, old))
		require.NoError(t, queries.RecordView(ctx, "law", q.Slug, fresh))

		purged, err := queries.PurgeOldViews(ctx, now.Add(-90*24*time.Hour))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, purged, int64(1))

		got, err := queries.GetQuestion(ctx, "law", q.Slug)
		require.NoError(t, err)
		require.Len(t, got.Views, 1)
		assert.Equal(t, "fresh", got.Views[0].SessionID)
	})
}
