package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubestore/metastore/internal/catalog"
	"github.com/cubestore/metastore/internal/eventbus"
	"github.com/cubestore/metastore/internal/kvengine/memkv"
	"github.com/cubestore/metastore/internal/metaerr"
	"github.com/cubestore/metastore/internal/txn"
)

func newCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	kv := memkv.New()
	bus := eventbus.New()
	co := txn.New(kv, bus, 4)
	return catalog.New(co)
}

func TestCreateSchemaThenDuplicateFailsUnlessIfNotExists(t *testing.T) {
	ctx := context.Background()
	cat := newCatalog(t)

	s1, err := cat.CreateSchema(ctx, "analytics", false)
	require.NoError(t, err)
	assert.Equal(t, "analytics", s1.Row.Name)

	_, err = cat.CreateSchema(ctx, "analytics", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, metaerr.ErrUniqueViolation)

	s2, err := cat.CreateSchema(ctx, "analytics", true)
	require.NoError(t, err)
	assert.Equal(t, s1.ID, s2.ID)
}

func columns(names ...string) []catalog.Column {
	cols := make([]catalog.Column, len(names))
	for i, n := range names {
		cols[i] = catalog.Column{Name: n, Type: catalog.ColumnString, ColumnIndex: uint32(i)}
	}
	return cols
}

func TestCreateTableBuildsDefaultIndexAndUserIndexes(t *testing.T) {
	ctx := context.Background()
	cat := newCatalog(t)

	_, err := cat.CreateSchema(ctx, "analytics", false)
	require.NoError(t, err)

	tbl, err := cat.CreateTable(ctx, "analytics", "events", columns("id", "user_id", "ts"), nil, nil,
		[]catalog.UserIndexDef{{Name: "by_user", Columns: []string{"user_id"}}})
	require.NoError(t, err)
	assert.Equal(t, "events", tbl.Row.Name)

	indexes, err := cat.GetTableIndexes(ctx, tbl.ID)
	require.NoError(t, err)
	require.Len(t, indexes, 2)
	assert.Equal(t, "by_user", indexes[0].Row.Name)
	assert.Equal(t, uint32(1), indexes[0].Row.SortKeySize)
	assert.Equal(t, "user_id", indexes[0].Row.Columns[0].Name)
	assert.Equal(t, "default", indexes[1].Row.Name)

	active, err := cat.GetActivePartitionsByIndexID(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, active, "a freshly created table's partitions start inactive")
}

func TestCreateTableFailsOnUnknownSchema(t *testing.T) {
	ctx := context.Background()
	cat := newCatalog(t)

	_, err := cat.CreateTable(ctx, "nope", "events", columns("id"), nil, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, metaerr.ErrUser)
}

func TestCreateTableDuplicateNameInSchemaFails(t *testing.T) {
	ctx := context.Background()
	cat := newCatalog(t)

	_, err := cat.CreateSchema(ctx, "analytics", false)
	require.NoError(t, err)
	_, err = cat.CreateTable(ctx, "analytics", "events", columns("id"), nil, nil, nil)
	require.NoError(t, err)

	_, err = cat.CreateTable(ctx, "analytics", "events", columns("id"), nil, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, metaerr.ErrUniqueViolation)
}

func TestDropTableCascadesIndexesPartitionsChunks(t *testing.T) {
	ctx := context.Background()
	cat := newCatalog(t)

	_, err := cat.CreateSchema(ctx, "analytics", false)
	require.NoError(t, err)
	tbl, err := cat.CreateTable(ctx, "analytics", "events", columns("id"), nil, nil, nil)
	require.NoError(t, err)

	err = cat.DropTable(ctx, tbl.ID)
	require.NoError(t, err)

	// Re-creating the same (schema, name) must now succeed — the unique
	// index entry from the dropped table is gone too.
	_, err = cat.CreateTable(ctx, "analytics", "events", columns("id"), nil, nil, nil)
	require.NoError(t, err)
}

func TestSwapActivePartitionsAtomicCutover(t *testing.T) {
	ctx := context.Background()
	cat := newCatalog(t)

	_, err := cat.CreateSchema(ctx, "analytics", false)
	require.NoError(t, err)
	_, err = cat.CreateTable(ctx, "analytics", "events", columns("id"), nil, nil, nil)
	require.NoError(t, err)

	// With no user indexes, the default index is the only (and first) index
	// created, so it gets id 1; its initial partition also gets id 1 and
	// starts inactive. Activate it via SwapActivePartitions with an empty
	// "current" set, the same path compaction uses for its first cut-over.
	active, err := cat.GetActivePartitionsByIndexID(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, active)

	err = cat.SwapActivePartitions(ctx, nil, []uint64{1}, nil, []catalog.PartitionBounds{{RowCount: 10}})
	require.NoError(t, err)

	active, err = cat.GetActivePartitionsByIndexID(ctx, 1)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, uint64(10), active[0].Row.MainTableRowCount)

	// Naming partition 1, which is now active, as a new partition must fail
	// and change nothing.
	err = cat.SwapActivePartitions(ctx, []uint64{1}, []uint64{1}, nil, []catalog.PartitionBounds{{RowCount: 99}})
	require.Error(t, err)
	assert.ErrorIs(t, err, metaerr.ErrInvalidState)

	active, err = cat.GetActivePartitionsByIndexID(ctx, 1)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, uint64(10), active[0].Row.MainTableRowCount, "failed swap must not have changed anything")
}

func TestAddJobDedupsByRowReferenceAndType(t *testing.T) {
	ctx := context.Background()
	cat := newCatalog(t)

	job := catalog.Job{
		RowReference: catalog.RowReference{EntityTableID: catalog.TableIDPartition, RowID: 1},
		JobType:      "compact",
		Shard:        "shard-a",
	}

	row1, added1, err := cat.AddJob(ctx, job)
	require.NoError(t, err)
	assert.True(t, added1)
	assert.Equal(t, catalog.JobScheduled, row1.Row.Status)

	row2, added2, err := cat.AddJob(ctx, job)
	require.NoError(t, err)
	assert.False(t, added2)
	assert.Equal(t, row1.ID, row2.ID)
}

func TestStartProcessingJobPicksMatchingShardAndMarksProcessing(t *testing.T) {
	ctx := context.Background()
	cat := newCatalog(t)

	job := catalog.Job{
		RowReference: catalog.RowReference{EntityTableID: catalog.TableIDPartition, RowID: 1},
		JobType:      "compact",
		Shard:        "shard-a",
	}
	_, _, err := cat.AddJob(ctx, job)
	require.NoError(t, err)

	_, found, err := cat.StartProcessingJob(ctx, "shard-b")
	require.NoError(t, err)
	assert.False(t, found, "no job scheduled on shard-b")

	row, found, err := cat.StartProcessingJob(ctx, "shard-a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, catalog.JobProcessing, row.Row.Status)
	require.NotNil(t, row.Row.ProcessingBy)
	assert.Equal(t, "shard-a", *row.Row.ProcessingBy)

	_, found, err = cat.StartProcessingJob(ctx, "shard-a")
	require.NoError(t, err)
	assert.False(t, found, "the job is no longer Scheduled once picked up")
}

func TestSchemaCRUDScenario(t *testing.T) {
	ctx := context.Background()
	cat := newCatalog(t)

	foo, err := cat.CreateSchema(ctx, "foo", false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), foo.ID)
	bar, err := cat.CreateSchema(ctx, "bar", false)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), bar.ID)
	boo, err := cat.CreateSchema(ctx, "boo", false)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), boo.ID)

	_, err = cat.CreateSchema(ctx, "foo", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, metaerr.ErrUniqueViolation)

	renamed, err := cat.RenameSchema(ctx, "foo", "foo1")
	require.NoError(t, err)
	assert.Equal(t, foo.ID, renamed.ID)
	assert.Equal(t, "foo1", renamed.Row.Name)

	_, err = cat.GetSchema(ctx, "foo")
	require.Error(t, err)
	assert.ErrorIs(t, err, metaerr.ErrNotFound)

	require.NoError(t, cat.DeleteSchema(ctx, "bar"))
	err = cat.DeleteSchema(ctx, "bar")
	require.Error(t, err)
	assert.ErrorIs(t, err, metaerr.ErrNotFound)
}

func TestTableWithDefaultIndexScenario(t *testing.T) {
	ctx := context.Background()
	cat := newCatalog(t)

	_, err := cat.CreateSchema(ctx, "foo", false)
	require.NoError(t, err)

	cols := []catalog.Column{
		{Name: "col1", Type: catalog.ColumnInt, ColumnIndex: 0},
		{Name: "col2", Type: catalog.ColumnString, ColumnIndex: 1},
		{Name: "col3", Type: catalog.ColumnDecimal, ColumnIndex: 2},
	}
	tbl, err := cat.CreateTable(ctx, "foo", "boo", cols, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tbl.ID)

	indexes, err := cat.GetTableIndexes(ctx, tbl.ID)
	require.NoError(t, err)
	require.Len(t, indexes, 1)
	assert.Equal(t, "default", indexes[0].Row.Name)
	assert.Equal(t, tbl.ID, indexes[0].Row.TableID)
	assert.Equal(t, cols, indexes[0].Row.Columns)
	assert.Equal(t, uint32(3), indexes[0].Row.SortKeySize)
}

func TestListTablesWithSchemaJoinsEachTableToItsSchema(t *testing.T) {
	ctx := context.Background()
	cat := newCatalog(t)

	_, err := cat.CreateSchema(ctx, "analytics", false)
	require.NoError(t, err)
	_, err = cat.CreateSchema(ctx, "billing", false)
	require.NoError(t, err)

	_, err = cat.CreateTable(ctx, "analytics", "events", columns("id"), nil, nil, nil)
	require.NoError(t, err)
	_, err = cat.CreateTable(ctx, "analytics", "sessions", columns("id"), nil, nil, nil)
	require.NoError(t, err)
	_, err = cat.CreateTable(ctx, "billing", "invoices", columns("id"), nil, nil, nil)
	require.NoError(t, err)

	joined, err := cat.ListTablesWithSchema(ctx)
	require.NoError(t, err)
	require.Len(t, joined, 3)

	bySchemaName := make(map[string][]string)
	for _, j := range joined {
		bySchemaName[j.Parent.Row.Name] = append(bySchemaName[j.Parent.Row.Name], j.Child.Row.Name)
	}
	assert.ElementsMatch(t, []string{"events", "sessions"}, bySchemaName["analytics"])
	assert.ElementsMatch(t, []string{"invoices"}, bySchemaName["billing"])
}

func TestDeleteJobEmitsFullRowEvent(t *testing.T) {
	ctx := context.Background()
	kv := memkv.New()
	bus := eventbus.New()
	var deletedJobs []catalog.DeleteJob
	bus.AddListener(eventbus.ListenerFunc(func(_ context.Context, e any) error {
		if dj, ok := e.(catalog.DeleteJob); ok {
			deletedJobs = append(deletedJobs, dj)
		}
		return nil
	}))
	co := txn.New(kv, bus, 4)
	cat := catalog.New(co)

	job := catalog.Job{
		RowReference: catalog.RowReference{EntityTableID: catalog.TableIDPartition, RowID: 7},
		JobType:      "compact",
		Shard:        "shard-a",
	}
	row, _, err := cat.AddJob(ctx, job)
	require.NoError(t, err)

	require.NoError(t, cat.DeleteJob(ctx, row.ID))
	require.Len(t, deletedJobs, 1)
	assert.Equal(t, uint64(7), deletedJobs[0].Row.RowReference.RowID)
}
