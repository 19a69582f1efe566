package localblob_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubestore/metastore/internal/blobstore/localblob"
)

func TestUploadListDownloadDelete(t *testing.T) {
	ctx := context.Background()
	store, err := localblob.New(t.TempDir())
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "src.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	require.NoError(t, store.UploadFile(ctx, "metastore-1000/foo.sst", src))
	require.NoError(t, store.UploadFile(ctx, "metastore-1000/bar.sst", src))
	require.NoError(t, store.UploadFile(ctx, "metastore-2000-logs/5.log", src))

	paths, err := store.List(ctx, "metastore-1000/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"metastore-1000/foo.sst", "metastore-1000/bar.sst"}, paths)

	dst := filepath.Join(t.TempDir(), "dst.bin")
	require.NoError(t, store.DownloadFile(ctx, "metastore-1000/foo.sst", dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	require.NoError(t, store.DeleteFile(ctx, "metastore-1000/foo.sst"))
	paths, err = store.List(ctx, "metastore-1000/")
	require.NoError(t, err)
	assert.Equal(t, []string{"metastore-1000/bar.sst"}, paths)
}

func TestDownloadMissingFileReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	store, err := localblob.New(t.TempDir())
	require.NoError(t, err)

	err = store.DownloadFile(ctx, "metastore-current", filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)
}
