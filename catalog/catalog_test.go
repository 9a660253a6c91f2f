package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "db", "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateGetList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	second := Record{ID: "b", DocumentName: "Second", FileURL: "pdf/b.pdf", Pages: 2, Bytes: 900, CreatedAt: base.Add(time.Minute)}
	first := Record{ID: "a", DocumentName: "First", FileURL: "pdf/a.pdf", Pages: 5, Bytes: 1200, CreatedAt: base}
	require.NoError(t, s.Create(ctx, second))
	require.NoError(t, s.Create(ctx, first))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, first, got)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Record{first, second}, list)

	assert.Error(t, s.Create(ctx, first), "duplicate id accepted")
}

func TestDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, Record{ID: "x", DocumentName: "X", FileURL: "pdf/x.pdf", CreatedAt: time.Now()}))

	require.NoError(t, s.Delete(ctx, "x"))
	_, err := s.Get(ctx, "x")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, "x"), ErrNotFound)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")
	s, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), Record{ID: "keep", DocumentName: "K", FileURL: "pdf/k.pdf", CreatedAt: time.Now()}))
	require.NoError(t, s.Close())

	s, err = NewStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(context.Background(), "keep")
	require.NoError(t, err)
	assert.Equal(t, "K", got.DocumentName)
}

func TestMemoryStore(t *testing.T) {
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Create(context.Background(), Record{ID: "m", DocumentName: "M", FileURL: "pdf/m.pdf", CreatedAt: time.Now()}))
	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
