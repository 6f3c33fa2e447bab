package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecraft-foods/reconcile-cli/internal/model"
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

func testItem(sourceFile string, rowIndex int) *model.ReviewItem {
	return &model.ReviewItem{
		SourceFile: sourceFile,
		RowIndex:   rowIndex,
		Candidate: model.CandidateRecord{
			SourceFile: sourceFile,
			RowIndex:   rowIndex,
			Name:       "organic cane sugar",
			Type:       model.EntityProduct,
			Country:    "united states",
		},
		Matches: []model.Match{
			{EntityID: "e1", EntityName: "cane sugar", Score: 84.9},
			{EntityID: "e2", EntityName: "raw sugar", Score: 81.2},
		},
		TopScore: 84.9,
	}
}

// --- Ingestions ---

func TestSQLite_IngestionLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ing, err := st.CreateIngestion(ctx, "suppliers.csv")
	require.NoError(t, err)
	require.NotEmpty(t, ing.ID)
	assert.Equal(t, model.IngestionRunning, ing.Status)

	summary := &model.IngestionSummary{
		SourceFile:    "suppliers.csv",
		RowsProcessed: 10,
		AutoResolved:  4,
		Queued:        3,
		Created:       2,
		Failed:        1,
		Errors:        []model.RowError{{RowIndex: 7, Message: "unknown entity type"}},
	}
	require.NoError(t, st.CompleteIngestion(ctx, ing.ID, model.IngestionComplete, summary))

	got, err := st.GetIngestion(ctx, ing.ID)
	require.NoError(t, err)
	assert.Equal(t, model.IngestionComplete, got.Status)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 10, got.Summary.RowsProcessed)
	require.Len(t, got.Summary.Errors, 1)
	assert.Equal(t, 7, got.Summary.Errors[0].RowIndex)
}

func TestSQLite_GetIngestion_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetIngestion(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_CompleteIngestion_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.CompleteIngestion(context.Background(), "missing", model.IngestionComplete, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Review items ---

func TestSQLite_CreateReviewItem(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	item := testItem("suppliers.csv", 3)
	created, err := st.CreateReviewItem(ctx, item)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotEmpty(t, item.ID)

	got, err := st.GetReviewItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewPending, got.Status)
	assert.Equal(t, "organic cane sugar", got.Candidate.Name)
	require.Len(t, got.Matches, 2)
	assert.Equal(t, "e1", got.Matches[0].EntityID)
	assert.InDelta(t, 84.9, got.TopScore, 0.001)
}

func TestSQLite_CreateReviewItem_DuplicateRowIsIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := testItem("suppliers.csv", 3)
	created, err := st.CreateReviewItem(ctx, first)
	require.NoError(t, err)
	require.True(t, created)

	// Same (source_file, row_index) again, as on re-ingestion.
	second := testItem("suppliers.csv", 3)
	created, err = st.CreateReviewItem(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)

	// Different row index is a distinct item.
	third := testItem("suppliers.csv", 4)
	created, err = st.CreateReviewItem(ctx, third)
	require.NoError(t, err)
	assert.True(t, created)

	items, err := st.ListReviewItems(ctx, ReviewFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestSQLite_GetReviewItem_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetReviewItem(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_MarkDecided(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	item := testItem("suppliers.csv", 0)
	_, err := st.CreateReviewItem(ctx, item)
	require.NoError(t, err)

	require.NoError(t, st.MarkDecided(ctx, item.ID, model.ReviewApprovedMatch, "alice", "e1"))

	got, err := st.GetReviewItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewApprovedMatch, got.Status)
	require.NotNil(t, got.DecidedBy)
	assert.Equal(t, "alice", *got.DecidedBy)
	require.NotNil(t, got.DecidedAt)
	assert.Equal(t, "e1", got.ResolvedEntityID)
}

func TestSQLite_MarkDecided_AlreadyDecided(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	item := testItem("suppliers.csv", 0)
	_, err := st.CreateReviewItem(ctx, item)
	require.NoError(t, err)

	require.NoError(t, st.MarkDecided(ctx, item.ID, model.ReviewIgnored, "", ""))

	err = st.MarkDecided(ctx, item.ID, model.ReviewApprovedMatch, "bob", "e1")
	assert.ErrorIs(t, err, ErrInvalidState)

	// The first decision sticks.
	got, err := st.GetReviewItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewIgnored, got.Status)
}

func TestSQLite_MarkDecided_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.MarkDecided(context.Background(), "missing", model.ReviewIgnored, "", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_MarkDecided_RejectsNonTerminalStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	item := testItem("suppliers.csv", 0)
	_, err := st.CreateReviewItem(ctx, item)
	require.NoError(t, err)

	assert.Error(t, st.MarkDecided(ctx, item.ID, model.ReviewPending, "", ""))
}

func TestSQLite_ListReviewItems_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sugar := testItem("a.csv", 0)
	_, err := st.CreateReviewItem(ctx, sugar)
	require.NoError(t, err)

	paprika := testItem("b.csv", 0)
	paprika.Candidate.Name = "smoked paprika"
	paprika.Candidate.Type = model.EntityIngredient
	paprika.TopScore = 91.5
	_, err = st.CreateReviewItem(ctx, paprika)
	require.NoError(t, err)

	require.NoError(t, st.MarkDecided(ctx, sugar.ID, model.ReviewIgnored, "", ""))

	t.Run("by status", func(t *testing.T) {
		items, err := st.ListReviewItems(ctx, ReviewFilter{Status: model.ReviewPending})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, paprika.ID, items[0].ID)
	})

	t.Run("by type", func(t *testing.T) {
		items, err := st.ListReviewItems(ctx, ReviewFilter{Type: model.EntityIngredient})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, paprika.ID, items[0].ID)
	})

	t.Run("by search", func(t *testing.T) {
		items, err := st.ListReviewItems(ctx, ReviewFilter{Search: "paprika"})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, paprika.ID, items[0].ID)
	})

	t.Run("by min score", func(t *testing.T) {
		items, err := st.ListReviewItems(ctx, ReviewFilter{MinScore: 90})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, paprika.ID, items[0].ID)
	})

	t.Run("by source file", func(t *testing.T) {
		items, err := st.ListReviewItems(ctx, ReviewFilter{SourceFile: "a.csv"})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, sugar.ID, items[0].ID)
	})

	t.Run("limit and offset", func(t *testing.T) {
		items, err := st.ListReviewItems(ctx, ReviewFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, items, 1)

		rest, err := st.ListReviewItems(ctx, ReviewFilter{Limit: 10, Offset: 1})
		require.NoError(t, err)
		assert.Len(t, rest, 1)
		assert.NotEqual(t, items[0].ID, rest[0].ID)
	})

	t.Run("no match", func(t *testing.T) {
		items, err := st.ListReviewItems(ctx, ReviewFilter{Search: "vanilla"})
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}
