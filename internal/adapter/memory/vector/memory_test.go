package vector

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websearch/internal/domain"
)

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	m, err := New(filepath.Join(t.TempDir(), "memory.db"), slog.New(slog.NewTextHandler(io.Discard, nil)),
		Options{EmbedderName: "test", Dimensions: 3})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestCollectionLifecycle(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	assert.False(t, m.HasCollection("search"))
	_, err := m.Collection("search")
	require.ErrorIs(t, err, domain.ErrCollectionNotFound)
	assert.Equal(t, domain.CodeCollectionNotFound, domain.ErrorCodeOf(err))

	c, err := m.CreateCollection(ctx, "search")
	require.NoError(t, err)
	assert.Equal(t, "search", c.Name())
	assert.True(t, m.HasCollection("search"))

	again, err := m.CreateCollection(ctx, "search")
	require.NoError(t, err)
	assert.Same(t, c, again, "CreateCollection must be idempotent")

	_, err = m.CreateCollection(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAddGetDeletePoints(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	c, err := m.CreateCollection(ctx, "search")
	require.NoError(t, err)

	meta := domain.SearchMetadata(domain.PageInfo{URL: "https://go.dev", Title: "Go", Description: "d"})
	meta["source"] = "https://go.dev"

	p1, err := c.AddPoint(ctx, "first chunk", []float32{1, 0, 0}, meta)
	require.NoError(t, err)
	p2, err := c.AddPoint(ctx, "second chunk", []float32{0, 1, 0}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, p1.ID, p2.ID)
	assert.Less(t, p1.ID, p2.ID, "ULIDs are time ordered")

	points, err := c.GetAllPoints(ctx)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "first chunk", points[0].Content)

	cit, ok := domain.CitationFromMetadata(points[0].Metadata)
	require.True(t, ok, "metadata must survive storage")
	assert.Equal(t, domain.Citation{Title: "Go", Link: "https://go.dev"}, cit)

	require.NoError(t, c.DeletePoints(ctx, []string{p1.ID, "unknown"}))
	points, err = c.GetAllPoints(ctx)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, p2.ID, points[0].ID)

	_, err = c.AddPoint(ctx, "no vector", nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	a, _ := m.CreateCollection(ctx, "a")
	b, _ := m.CreateCollection(ctx, "b")

	_, err := a.AddPoint(ctx, "in a", []float32{1, 0, 0}, nil)
	require.NoError(t, err)

	pb, err := b.GetAllPoints(ctx)
	require.NoError(t, err)
	assert.Empty(t, pb)

	recalled, err := b.RecallByEmbedding(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, recalled)
}

func TestRecallByEmbedding(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	c, _ := m.CreateCollection(ctx, "search")

	_, err := c.AddPoint(ctx, "x", []float32{1, 0, 0}, nil)
	require.NoError(t, err)
	_, err = c.AddPoint(ctx, "xy", []float32{1, 1, 0}, nil)
	require.NoError(t, err)

	// First recall loads the index from the database.
	got, err := c.RecallByEmbedding(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].Point.Content)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)

	// Later inserts update the loaded index incrementally.
	_, err = c.AddPoint(ctx, "y", []float32{0, 1, 0}, nil)
	require.NoError(t, err)
	got, err = c.RecallByEmbedding(ctx, []float32{0, 1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "y", got[0].Point.Content)
	assert.Equal(t, "xy", got[1].Point.Content)
	assert.GreaterOrEqual(t, got[1].Score, got[2].Score)

	none, err := c.RecallByEmbedding(ctx, []float32{0, 1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteUpdatesLoadedIndex(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	c, _ := m.CreateCollection(ctx, "search")

	p, _ := c.AddPoint(ctx, "gone", []float32{1, 0, 0}, nil)
	_, err := c.RecallByEmbedding(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)

	require.NoError(t, c.DeletePoints(ctx, []string{p.ID}))
	got, err := c.RecallByEmbedding(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIndexLoadsStoredPoints(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	c, _ := m.CreateCollection(ctx, "search")
	for _, v := range [][]float32{{1, 0, 0}, {0, 1, 0}} {
		_, err := c.AddPoint(ctx, "p", v, nil)
		require.NoError(t, err)
	}

	coll := c.(*Collection)
	assert.False(t, coll.vecIdx.isLoaded())
	_, err := c.RecallByEmbedding(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.True(t, coll.vecIdx.isLoaded())
	assert.Equal(t, 2, coll.vecIdx.size())
}

func TestUnreadablePointIsAnError(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	c, _ := m.CreateCollection(ctx, "search")
	_, err := c.AddPoint(ctx, "fine", []float32{1, 0, 0}, nil)
	require.NoError(t, err)

	// Rebuild points without constraints so a row can carry a NULL content.
	_, err = m.db.ExecContext(ctx, `
		CREATE TABLE points_loose AS SELECT * FROM points;
		DROP TABLE points;
		CREATE TABLE points (id TEXT, collection TEXT, content TEXT, metadata TEXT, embedding BLOB, created_at TEXT);
		INSERT INTO points SELECT * FROM points_loose;
		INSERT INTO points VALUES ('zzz', 'search', NULL, '{}', x'0000803f', '2026-01-01T00:00:00Z');`)
	require.NoError(t, err)

	_, err = c.GetAllPoints(ctx)
	assert.ErrorIs(t, err, domain.ErrVectorStore)

	_, err = c.RecallByEmbedding(ctx, []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrVectorSearch)
}

func TestCollectionsPersistAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	m, err := New(path, logger, Options{})
	require.NoError(t, err)
	c, _ := m.CreateCollection(ctx, "search")
	_, err = c.AddPoint(ctx, "kept", []float32{0.5, 0.5}, map[string]any{"when": 1.5})
	require.NoError(t, err)
	require.NoError(t, m.Close())

	m2, err := New(path, logger, Options{})
	require.NoError(t, err)
	defer m2.Close()
	require.True(t, m2.HasCollection("search"))
	c2, err := m2.Collection("search")
	require.NoError(t, err)
	points, err := c2.GetAllPoints(ctx)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 1.5, points[0].Metadata["when"])
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		a, b []float32
		want float32
	}{
		{[]float32{1, 0}, []float32{1, 0}, 1},
		{[]float32{1, 0}, []float32{0, 1}, 0},
		{[]float32{1, 0}, []float32{-1, 0}, -1},
		{[]float32{1, 0}, []float32{1, 0, 0}, 0},
		{nil, nil, 0},
		{[]float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		if got := cosineSimilarity(tt.a, tt.b); got < tt.want-1e-6 || got > tt.want+1e-6 {
			t.Errorf("cosineSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestFloat32Bytes(t *testing.T) {
	v := []float32{0.25, -1.5, 3}
	assert.Equal(t, v, bytesToFloat32(float32ToBytes(v)))
	assert.Nil(t, bytesToFloat32([]byte{1, 2, 3}))
	assert.Nil(t, bytesToFloat32(nil))
}
