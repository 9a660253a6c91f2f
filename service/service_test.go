package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfmerge/catalog"
	"github.com/wudi/pdfmerge/merge"
	"github.com/wudi/pdfmerge/store"
	"github.com/wudi/pdfmerge/verify"
)

type fixture struct {
	svc   *Service
	store *store.Local
	cat   *catalog.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := merge.DefaultConfig()
	cfg.StagingRoot = filepath.Join(dir, "tmp")
	engine, err := merge.New(cfg)
	require.NoError(t, err)
	st, err := store.NewLocal(filepath.Join(dir, "wwwroot"), store.WithVerify(verify.Pages(0)))
	require.NoError(t, err)
	cat, err := catalog.NewStore(filepath.Join(dir, "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	n := 0
	svc := New(engine, st, cat, Options{
		Now: func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	})
	return fixture{svc: svc, store: st, cat: cat}
}

func pngInput(t *testing.T, name string) merge.Input {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 20, 10))))
	return merge.BytesInput(name, buf.Bytes())
}

func TestCreateRecordPublishesAndRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.CreateRecord(ctx, " Scans ", []merge.Input{pngInput(t, "a.png"), pngInput(t, "b.png")})
	require.NoError(t, err)

	assert.Equal(t, "id-2", rec.ID)
	assert.Equal(t, "Scans", rec.DocumentName)
	assert.Equal(t, "pdf/id-1.pdf", rec.FileURL)
	assert.Equal(t, 2, rec.Pages)
	assert.Positive(t, rec.Bytes)

	got, err := f.svc.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	all, err := f.svc.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, file, err := f.svc.Open(ctx, rec.ID)
	require.NoError(t, err)
	data, err := io.ReadAll(file)
	file.Close()
	require.NoError(t, err)
	assert.Equal(t, rec.Bytes, int64(len(data)))
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-1.7")))
}

func TestFailedMergeLeavesNoRecordOrFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateRecord(ctx, "bad", []merge.Input{pngInput(t, "a.png"), merge.BytesInput("b.gif", []byte("GIF89a"))})
	require.ErrorIs(t, err, merge.ErrUnsupportedType)

	all, err := f.svc.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	entries, err := os.ReadDir(filepath.Join(f.store.Root(), DefaultOutputDir))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateRecordRequiresName(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateRecord(context.Background(), "  ", []merge.Input{pngInput(t, "a.png")})
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.CreateRecord(ctx, "doc", []merge.Input{pngInput(t, "a.png")})
	require.NoError(t, err)
	path, err := f.store.Path(rec.FileURL)
	require.NoError(t, err)
	require.FileExists(t, path)

	require.NoError(t, f.svc.Delete(ctx, rec.ID))
	assert.NoFileExists(t, path)
	_, err = f.svc.GetByID(ctx, rec.ID)
	require.ErrorIs(t, err, catalog.ErrNotFound)

	require.NoError(t, f.svc.Delete(ctx, rec.ID), "deleting twice")
	require.NoError(t, f.svc.Delete(ctx, "never-existed"))
}
