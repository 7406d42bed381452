package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRecorderStop = errors.New("recorder stop")

// queryRecorder captures the SQL and bound args of the first Query call.
type queryRecorder struct {
	sql  string
	args []any
}

func (r *queryRecorder) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errRecorderStop
}

func (r *queryRecorder) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	r.sql = sql
	r.args = args
	return nil, errRecorderStop
}

func (r *queryRecorder) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

// The offset must advance by the display limit even though one extra row is
// fetched to detect a following page; otherwise every page boundary skips a
// row.
func TestListQuestionsOffsetUsesDisplayLimit(t *testing.T) {
	tests := []struct {
		name       string
		params     ListParams
		wantLimit  int
		wantOffset int
	}{
		{"first page default limit", ListParams{Sort: SortPopularity}, DefaultPageSize + 1, 0},
		{"second page default limit", ListParams{Sort: SortPopularity, Page: 2}, DefaultPageSize + 1, DefaultPageSize},
		{"second page custom limit", ListParams{Sort: SortNewest, Page: 2, Limit: 20}, 21, 20},
		{"fifth page", ListParams{Sort: SortTrending, Page: 5, Limit: 10}, 11, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &queryRecorder{}
			q := &Queries{db: rec}

			_, _, err := q.ListQuestions(context.Background(), tt.params)
			require.ErrorIs(t, err, errRecorderStop)

			require.GreaterOrEqual(t, len(rec.args), 2)
			assert.Equal(t, tt.wantLimit, rec.args[len(rec.args)-2])
			assert.Equal(t, tt.wantOffset, rec.args[len(rec.args)-1])
		})
	}
}
