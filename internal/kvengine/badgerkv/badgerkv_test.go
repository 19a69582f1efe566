package badgerkv_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubestore/metastore/internal/blobstore/localblob"
	"github.com/cubestore/metastore/internal/durability"
	"github.com/cubestore/metastore/internal/kvengine"
	"github.com/cubestore/metastore/internal/kvengine/badgerkv"
	"github.com/cubestore/metastore/internal/txn"
)

// TestCheckpointThenOpenRoundTrips exercises Checkpoint/Open directly: the
// rows a snapshot carries must survive being backed up and reloaded into a
// freshly opened store at a different directory, the same way a downloaded
// snapshot is loaded during cold-start recovery.
func TestCheckpointThenOpenRoundTrips(t *testing.T) {
	ctx := context.Background()

	source, err := badgerkv.Open(t.TempDir())
	require.NoError(t, err)
	defer source.Close()

	_, err = source.WriteBatch(ctx, []kvengine.Mutation{
		{Op: kvengine.OpPut, Key: []byte("a"), Value: []byte("1")},
		{Op: kvengine.OpPut, Key: []byte("b"), Value: []byte("2")},
	})
	require.NoError(t, err)

	snapshotDir := t.TempDir()
	require.NoError(t, source.Checkpoint(ctx, snapshotDir))

	restored, err := badgerkv.Open(snapshotDir)
	require.NoError(t, err)

	va, found, err := restored.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("1"), va)

	vb, found, err := restored.Get(ctx, []byte("b"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("2"), vb)

	// The backup file is consumed on load so re-opening the same directory
	// doesn't try to replay it again.
	require.NoError(t, restored.Close())
	reopened, err := badgerkv.Open(snapshotDir)
	require.NoError(t, err)
	defer reopened.Close()
}

// TestRecoverDownloadsSnapshotAndReplaysLogsWithBadger runs the exact
// cold-start path cmd/metastored wires in production — durability.Recover
// backed by badgerkv.Open — end to end: a row that only exists in the
// checkpointed snapshot (older than any surviving incremental log) must
// still be present after recovery.
func TestRecoverDownloadsSnapshotAndReplaysLogsWithBadger(t *testing.T) {
	ctx := context.Background()
	remote, err := localblob.New(t.TempDir())
	require.NoError(t, err)
	signal := txn.NewNotifier()

	source, err := badgerkv.Open(t.TempDir())
	require.NoError(t, err)
	defer source.Close()

	_, err = source.WriteBatch(ctx, []kvengine.Mutation{{Op: kvengine.OpPut, Key: []byte("a"), Value: []byte("1")}})
	require.NoError(t, err)

	p := durability.New(source, remote, signal, t.TempDir(), durability.WithCheckpointInterval(time.Hour))
	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	_ = p.Run(runCtx)
	cancel()

	// A write after the checkpoint lands only in an incremental log.
	_, err = source.WriteBatch(ctx, []kvengine.Mutation{{Op: kvengine.OpPut, Key: []byte("b"), Value: []byte("2")}})
	require.NoError(t, err)
	runCtx2, cancel2 := context.WithTimeout(ctx, 200*time.Millisecond)
	_ = p.Run(runCtx2)
	cancel2()

	destDir := filepath.Join(t.TempDir(), "restored")
	eng, err := durability.Recover(ctx, destDir, remote, func(dir string) (kvengine.Engine, error) {
		return badgerkv.Open(dir)
	})
	require.NoError(t, err)
	defer eng.Close()

	// "a" is only reachable via the snapshot, not any surviving log: if
	// Recover fails to load the downloaded badger.backup, this lookup
	// returns not-found even though the incremental replay succeeds.
	va, found, err := eng.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("1"), va)

	vb, found, err := eng.Get(ctx, []byte("b"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("2"), vb)
}
