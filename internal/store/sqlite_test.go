package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propbooks/invoice-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	summary := &model.RunSummary{
		RunID:      run.ID,
		StartedAt:  time.Now().UTC(),
		FinishedAt: time.Now().UTC(),
		Outcomes: []model.ProcessingOutcome{
			{MessageID: "m1", Status: model.OutcomeCommitted, RowsWritten: 2},
			{MessageID: "m2", Status: model.OutcomeSkipped, SkipReason: model.SkipNoValidItems},
		},
	}
	require.NoError(t, st.CompleteRun(ctx, run.ID, model.RunStatusComplete, summary))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Summary)
	assert.Len(t, got.Summary.Outcomes, 2)
	assert.Equal(t, 2, got.Summary.Counts().RowsWritten)
}

func TestSQLite_CompleteRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.CompleteRun(context.Background(), "missing", model.RunStatusComplete, &model.RunSummary{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := st.CreateRun(ctx)
	require.NoError(t, err)
	_, err = st.CreateRun(ctx)
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, first.ID, model.RunStatusAborted, &model.RunSummary{Aborted: true}))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	aborted, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusAborted})
	require.NoError(t, err)
	require.Len(t, aborted, 1)
	assert.Equal(t, first.ID, aborted[0].ID)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLite_CommittedIndex(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)

	ok, err := st.IsMessageCommitted(ctx, "<msg-1@example.com>")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.MarkMessageCommitted(ctx, "<msg-1@example.com>", run.ID, 3))

	ok, err = st.IsMessageCommitted(ctx, "<msg-1@example.com>")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLite_MarkCommittedIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)

	require.NoError(t, st.MarkMessageCommitted(ctx, "<dup@example.com>", run.ID, 1))
	require.NoError(t, st.MarkMessageCommitted(ctx, "<dup@example.com>", run.ID, 1))

	ok, err := st.IsMessageCommitted(ctx, "<dup@example.com>")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLite_InMemory(t *testing.T) {
	st, err := NewSQLite(":memory:")
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	run, err := st.CreateRun(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
}
