package catalog

import (
	"context"
	"time"

	"github.com/cubestore/metastore/internal/batchpipe"
	"github.com/cubestore/metastore/internal/kvengine"
	"github.com/cubestore/metastore/internal/metaerr"
	"github.com/cubestore/metastore/internal/table"
	"github.com/cubestore/metastore/internal/txn"
)

// Catalog is the metastore's domain API (spec §4.H), built entirely on the
// generic table engine instantiated once per entity and driven through the
// transaction coordinator.
type Catalog struct {
	co *txn.Coordinator

	schemas    *table.Table[Schema]
	tables     *table.Table[Table]
	indexes    *table.Table[Index]
	partitions *table.Table[Partition]
	chunks     *table.Table[Chunk]
	wals       *table.Table[Wal]
	jobs       *table.Table[Job]
}

// New builds a Catalog driven through co.
func New(co *txn.Coordinator) *Catalog {
	return &Catalog{
		co:         co,
		schemas:    schemaTable(),
		tables:     tableTable(),
		indexes:    indexTable(),
		partitions: partitionTable(),
		chunks:     chunkTable(),
		wals:       walTable(),
		jobs:       jobTable(),
	}
}

// CreateSchema inserts a new Schema, or — when ifNotExists is set — returns
// the existing one if name is already taken.
func (c *Catalog) CreateSchema(ctx context.Context, name string, ifNotExists bool) (table.IdRow[Schema], error) {
	return txn.WriteOperation(ctx, c.co, func(kv kvengine.Engine, pipe *batchpipe.Pipe) (table.IdRow[Schema], error) {
		if ifNotExists {
			existing, err := c.schemas.RowsByIndex(ctx, kv, c.schemas.Indexes[0], name)
			if err != nil {
				return table.IdRow[Schema]{}, err
			}
			if len(existing) == 1 {
				return existing[0], nil
			}
		}
		id, err := c.schemas.Insert(ctx, kv, pipe, Schema{Name: name})
		if err != nil {
			return table.IdRow[Schema]{}, err
		}
		return table.IdRow[Schema]{ID: id, Row: Schema{Name: name}}, nil
	})
}

// GetSchema looks up a Schema by name.
func (c *Catalog) GetSchema(ctx context.Context, name string) (table.IdRow[Schema], error) {
	return txn.ReadOperation(ctx, c.co, func(kv kvengine.Engine) (table.IdRow[Schema], error) {
		rows, err := c.schemas.RowsByIndex(ctx, kv, c.schemas.Indexes[0], name)
		if err != nil {
			return table.IdRow[Schema]{}, err
		}
		if len(rows) == 0 {
			return table.IdRow[Schema]{}, metaerr.NotFound("catalog.GetSchema")
		}
		return rows[0], nil
	})
}

// RenameSchema renames the schema named oldName to newName, re-probing the
// unique name index for a collision the way every generic Update does.
func (c *Catalog) RenameSchema(ctx context.Context, oldName, newName string) (table.IdRow[Schema], error) {
	return txn.WriteOperation(ctx, c.co, func(kv kvengine.Engine, pipe *batchpipe.Pipe) (table.IdRow[Schema], error) {
		rows, err := c.schemas.RowsByIndex(ctx, kv, c.schemas.Indexes[0], oldName)
		if err != nil {
			return table.IdRow[Schema]{}, err
		}
		if len(rows) == 0 {
			return table.IdRow[Schema]{}, metaerr.NotFound("catalog.RenameSchema")
		}
		id := rows[0].ID
		updated, err := c.schemas.UpdateWith(ctx, kv, pipe, id, func(s Schema) Schema {
			s.Name = newName
			return s
		})
		if err != nil {
			return table.IdRow[Schema]{}, err
		}
		return table.IdRow[Schema]{ID: id, Row: updated}, nil
	})
}

// DeleteSchema removes the schema named name, emitting DeleteSchema with its
// full contents.
func (c *Catalog) DeleteSchema(ctx context.Context, name string) error {
	_, err := txn.WriteOperation(ctx, c.co, func(kv kvengine.Engine, pipe *batchpipe.Pipe) (struct{}, error) {
		rows, err := c.schemas.RowsByIndex(ctx, kv, c.schemas.Indexes[0], name)
		if err != nil {
			return struct{}{}, err
		}
		if len(rows) == 0 {
			return struct{}{}, metaerr.NotFound("catalog.DeleteSchema")
		}
		deleted, err := c.schemas.Delete(ctx, kv, pipe, rows[0].ID)
		if err != nil {
			return struct{}{}, err
		}
		pipe.Emit(DeleteSchema{Row: deleted})
		return struct{}{}, nil
	})
	return err
}

// UserIndexDef is a caller-supplied secondary index definition for
// create_table: the named columns, in the order they should sort by.
type UserIndexDef struct {
	Name    string
	Columns []string
}

// reorderColumns places the columns named in order first (in that order),
// followed by every remaining table column in table order, reassigning
// ColumnIndex by the resulting position (spec §4.H create_table).
func reorderColumns(tableColumns []Column, order []string) []Column {
	byName := make(map[string]Column, len(tableColumns))
	for _, c := range tableColumns {
		byName[c.Name] = c
	}

	seen := make(map[string]bool, len(tableColumns))
	out := make([]Column, 0, len(tableColumns))
	for _, name := range order {
		if c, ok := byName[name]; ok && !seen[name] {
			out = append(out, c)
			seen[name] = true
		}
	}
	for _, c := range tableColumns {
		if !seen[c.Name] {
			out = append(out, c)
			seen[c.Name] = true
		}
	}
	for i := range out {
		out[i].ColumnIndex = uint32(i)
	}
	return out
}

// CreateTable inserts a Table under schemaName (which must already exist),
// then inserts one Index + one initial inactive Partition per entry in
// userIndexes, plus a final "default" Index covering every column in table
// order, per spec §4.H.
func (c *Catalog) CreateTable(ctx context.Context, schemaName, tableName string, columns []Column, location *string, importFormat *ImportFormat, userIndexes []UserIndexDef) (table.IdRow[Table], error) {
	return txn.WriteOperation(ctx, c.co, func(kv kvengine.Engine, pipe *batchpipe.Pipe) (table.IdRow[Table], error) {
		schemaRows, err := c.schemas.RowsByIndex(ctx, kv, c.schemas.Indexes[0], schemaName)
		if err != nil {
			return table.IdRow[Table]{}, err
		}
		if len(schemaRows) == 0 {
			return table.IdRow[Table]{}, metaerr.Wrap("catalog.CreateTable: unknown schema "+schemaName, metaerr.ErrUser)
		}
		schemaID := schemaRows[0].ID

		newTable := Table{SchemaID: schemaID, Name: tableName, Columns: columns, Location: location, ImportFormat: importFormat}
		tableID, err := c.tables.Insert(ctx, kv, pipe, newTable)
		if err != nil {
			return table.IdRow[Table]{}, err
		}

		for _, def := range userIndexes {
			cols := reorderColumns(columns, def.Columns)
			ixID, err := c.indexes.Insert(ctx, kv, pipe, Index{
				TableID:     tableID,
				Name:        def.Name,
				Columns:     cols,
				SortKeySize: uint32(len(def.Columns)),
			})
			if err != nil {
				return table.IdRow[Table]{}, err
			}
			if _, err := c.partitions.Insert(ctx, kv, pipe, Partition{IndexID: ixID, Active: false}); err != nil {
				return table.IdRow[Table]{}, err
			}
		}

		defaultCols := reorderColumns(columns, nil)
		defaultIxID, err := c.indexes.Insert(ctx, kv, pipe, Index{
			TableID:     tableID,
			Name:        "default",
			Columns:     defaultCols,
			SortKeySize: uint32(len(columns)),
		})
		if err != nil {
			return table.IdRow[Table]{}, err
		}
		if _, err := c.partitions.Insert(ctx, kv, pipe, Partition{IndexID: defaultIxID, Active: false}); err != nil {
			return table.IdRow[Table]{}, err
		}

		return table.IdRow[Table]{ID: tableID, Row: newTable}, nil
	})
}

// DropTable cascades: every Index of tableID, every Partition of each of
// those indexes, every Chunk of each of those partitions — chunks first,
// then partitions, then indexes, then the table itself — all staged into
// one batch so the cascade is atomic (spec §4.H drop_table).
func (c *Catalog) DropTable(ctx context.Context, tableID uint64) error {
	_, err := txn.WriteOperation(ctx, c.co, func(kv kvengine.Engine, pipe *batchpipe.Pipe) (struct{}, error) {
		indexRows, err := c.indexes.RowsByIndex(ctx, kv, c.indexes.Indexes[0], tableID)
		if err != nil {
			return struct{}{}, err
		}
		for _, ixRow := range indexRows {
			partRows, err := c.partitions.RowsByIndex(ctx, kv, c.partitions.Indexes[0], ixRow.ID)
			if err != nil {
				return struct{}{}, err
			}
			for _, partRow := range partRows {
				chunkRows, err := c.chunks.RowsByIndex(ctx, kv, c.chunks.Indexes[0], partRow.ID)
				if err != nil {
					return struct{}{}, err
				}
				for _, chunkRow := range chunkRows {
					deleted, err := c.chunks.Delete(ctx, kv, pipe, chunkRow.ID)
					if err != nil {
						return struct{}{}, err
					}
					pipe.Emit(DeleteChunk{Row: deleted})
				}
				deletedPart, err := c.partitions.Delete(ctx, kv, pipe, partRow.ID)
				if err != nil {
					return struct{}{}, err
				}
				pipe.Emit(DeletePartition{Row: deletedPart})
			}
			deletedIx, err := c.indexes.Delete(ctx, kv, pipe, ixRow.ID)
			if err != nil {
				return struct{}{}, err
			}
			pipe.Emit(DeleteIndexEvent{Row: deletedIx})
		}
		deletedTable, err := c.tables.Delete(ctx, kv, pipe, tableID)
		if err != nil {
			return struct{}{}, err
		}
		pipe.Emit(DeleteTable{Row: deletedTable})
		return struct{}{}, nil
	})
	return err
}

// PartitionBounds is the (min, max, row_count) triple swap_active_partitions
// assigns to each newly activated partition, paired by index with
// newActiveIDs.
type PartitionBounds struct {
	Min      RowTuple
	Max      RowTuple
	RowCount uint64
}

// SwapActivePartitions implements the atomic compaction/merge cut-over
// (spec §4.H): every id in currentActiveIDs must currently be an active
// partition, every id in newActiveIDs must currently be an inactive
// partition; on success the actives flip off, the news flip on with their
// paired bounds, and the named chunks are deactivated — all in one batch.
// Any precondition failure aborts the whole operation with ErrInvalidState.
func (c *Catalog) SwapActivePartitions(ctx context.Context, currentActiveIDs, newActiveIDs []uint64, compactedChunkIDs []uint64, newBounds []PartitionBounds) error {
	if len(newActiveIDs) != len(newBounds) {
		return metaerr.Wrap("catalog.SwapActivePartitions: newActiveIDs/newBounds length mismatch", metaerr.ErrUser)
	}

	_, err := txn.WriteOperation(ctx, c.co, func(kv kvengine.Engine, pipe *batchpipe.Pipe) (struct{}, error) {
		for _, id := range currentActiveIDs {
			p, err := c.partitions.GetOrFail(ctx, kv, id)
			if err != nil {
				return struct{}{}, err
			}
			if !p.Active {
				return struct{}{}, metaerr.InvalidState("catalog.SwapActivePartitions: current partition not active")
			}
		}
		for _, id := range newActiveIDs {
			p, err := c.partitions.GetOrFail(ctx, kv, id)
			if err != nil {
				return struct{}{}, err
			}
			if p.Active {
				return struct{}{}, metaerr.InvalidState("catalog.SwapActivePartitions: new partition already active")
			}
		}

		for _, id := range currentActiveIDs {
			if _, err := c.partitions.UpdateWith(ctx, kv, pipe, id, func(p Partition) Partition {
				p.Active = false
				return p
			}); err != nil {
				return struct{}{}, err
			}
		}
		for i, id := range newActiveIDs {
			bounds := newBounds[i]
			if _, err := c.partitions.UpdateWith(ctx, kv, pipe, id, func(p Partition) Partition {
				p.Active = true
				p.MinValue = bounds.Min
				p.MaxValue = bounds.Max
				p.MainTableRowCount = bounds.RowCount
				return p
			}); err != nil {
				return struct{}{}, err
			}
		}
		for _, id := range compactedChunkIDs {
			if _, err := c.chunks.UpdateWith(ctx, kv, pipe, id, func(ch Chunk) Chunk {
				ch.Active = false
				return ch
			}); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	return err
}

// GetTableIndexes returns every Index belonging to tableID, including the
// "default" index create_table always adds.
func (c *Catalog) GetTableIndexes(ctx context.Context, tableID uint64) ([]table.IdRow[Index], error) {
	return txn.ReadOperation(ctx, c.co, func(kv kvengine.Engine) ([]table.IdRow[Index], error) {
		return c.indexes.RowsByIndex(ctx, kv, c.indexes.Indexes[0], tableID)
	})
}

// GetActivePartitionsByIndexID returns every Partition of indexID with
// Active == true.
func (c *Catalog) GetActivePartitionsByIndexID(ctx context.Context, indexID uint64) ([]table.IdRow[Partition], error) {
	return txn.ReadOperation(ctx, c.co, func(kv kvengine.Engine) ([]table.IdRow[Partition], error) {
		rows, err := c.partitions.RowsByIndex(ctx, kv, c.partitions.Indexes[0], indexID)
		if err != nil {
			return nil, err
		}
		out := rows[:0]
		for _, r := range rows {
			if r.Row.Active {
				out = append(out, r)
			}
		}
		return out, nil
	})
}

// GetChunksByPartition returns every Chunk of partitionID with
// Uploaded && Active.
func (c *Catalog) GetChunksByPartition(ctx context.Context, partitionID uint64) ([]table.IdRow[Chunk], error) {
	return txn.ReadOperation(ctx, c.co, func(kv kvengine.Engine) ([]table.IdRow[Chunk], error) {
		rows, err := c.chunks.RowsByIndex(ctx, kv, c.chunks.Indexes[0], partitionID)
		if err != nil {
			return nil, err
		}
		out := rows[:0]
		for _, r := range rows {
			if r.Row.Uploaded && r.Row.Active {
				out = append(out, r)
			}
		}
		return out, nil
	})
}

// AddJob inserts job with status Scheduled unless a job with the same
// (RowReference, JobType) already exists, in which case it returns the
// existing job and added=false.
func (c *Catalog) AddJob(ctx context.Context, job Job) (row table.IdRow[Job], added bool, err error) {
	type result struct {
		row   table.IdRow[Job]
		added bool
	}
	r, err := txn.WriteOperation(ctx, c.co, func(kv kvengine.Engine, pipe *batchpipe.Pipe) (result, error) {
		dedupKey := jobDedupKey{job.RowReference.EntityTableID, job.RowReference.RowID, job.JobType}
		existing, err := c.jobs.RowsByIndex(ctx, kv, c.jobs.Indexes[0], dedupKey)
		if err != nil {
			return result{}, err
		}
		if len(existing) == 1 {
			return result{row: existing[0], added: false}, nil
		}
		job.Status = JobScheduled
		id, err := c.jobs.Insert(ctx, kv, pipe, job)
		if err != nil {
			return result{}, err
		}
		return result{row: table.IdRow[Job]{ID: id, Row: job}, added: true}, nil
	})
	if err != nil {
		return table.IdRow[Job]{}, false, err
	}
	return r.row, r.added, nil
}

// StartProcessingJob picks the first Scheduled job whose shard matches
// node, marks it ProcessingBy(node) with a fresh heartbeat, and returns it.
// found is false if no such job exists.
func (c *Catalog) StartProcessingJob(ctx context.Context, node string) (row table.IdRow[Job], found bool, err error) {
	type result struct {
		row   table.IdRow[Job]
		found bool
	}
	r, err := txn.WriteOperation(ctx, c.co, func(kv kvengine.Engine, pipe *batchpipe.Pipe) (result, error) {
		candidates, err := c.jobs.RowsByIndex(ctx, kv, c.jobs.Indexes[1], jobShardScheduledKey{node, true})
		if err != nil {
			return result{}, err
		}
		if len(candidates) == 0 {
			return result{}, nil
		}
		candidate := candidates[0]
		if candidate.Row.Status != JobScheduled {
			return result{}, metaerr.InternalConsistency("catalog.StartProcessingJob: shard_scheduled index yielded a non-scheduled job")
		}

		nodeCopy := node
		updated, err := c.jobs.UpdateWith(ctx, kv, pipe, candidate.ID, func(j Job) Job {
			j.Status = JobProcessing
			j.ProcessingBy = &nodeCopy
			j.HeartBeat = time.Now().UnixMilli()
			return j
		})
		if err != nil {
			return result{}, err
		}
		return result{row: table.IdRow[Job]{ID: candidate.ID, Row: updated}, found: true}, nil
	})
	if err != nil {
		return table.IdRow[Job]{}, false, err
	}
	return r.row, r.found, nil
}

// UpdateHeartBeat refreshes id's heartbeat to now.
func (c *Catalog) UpdateHeartBeat(ctx context.Context, id uint64) error {
	_, err := txn.WriteOperation(ctx, c.co, func(kv kvengine.Engine, pipe *batchpipe.Pipe) (struct{}, error) {
		_, err := c.jobs.UpdateWith(ctx, kv, pipe, id, func(j Job) Job {
			j.HeartBeat = time.Now().UnixMilli()
			return j
		})
		return struct{}{}, err
	})
	return err
}

// UpdateStatus sets id's status.
func (c *Catalog) UpdateStatus(ctx context.Context, id uint64, status JobStatus) error {
	_, err := txn.WriteOperation(ctx, c.co, func(kv kvengine.Engine, pipe *batchpipe.Pipe) (struct{}, error) {
		_, err := c.jobs.UpdateWith(ctx, kv, pipe, id, func(j Job) Job {
			j.Status = status
			return j
		})
		return struct{}{}, err
	})
	return err
}

// ListSchemas returns every Schema, for inspection tooling.
func (c *Catalog) ListSchemas(ctx context.Context) ([]table.IdRow[Schema], error) {
	return txn.ReadOperation(ctx, c.co, func(kv kvengine.Engine) ([]table.IdRow[Schema], error) {
		cursor, err := c.schemas.Scan(ctx, kv)
		if err != nil {
			return nil, err
		}
		return table.CollectAll(cursor)
	})
}

// ListTables returns every Table, for inspection tooling.
func (c *Catalog) ListTables(ctx context.Context) ([]table.IdRow[Table], error) {
	return txn.ReadOperation(ctx, c.co, func(kv kvengine.Engine) ([]table.IdRow[Table], error) {
		cursor, err := c.tables.Scan(ctx, kv)
		if err != nil {
			return nil, err
		}
		return table.CollectAll(cursor)
	})
}

// ListTablesWithSchema returns every Table zipped with its owning Schema,
// fetching each distinct schema at most once via table.PathJoin regardless
// of how many tables share it (spec §4.D).
func (c *Catalog) ListTablesWithSchema(ctx context.Context) ([]table.Joined[Table, Schema], error) {
	return txn.ReadOperation(ctx, c.co, func(kv kvengine.Engine) ([]table.Joined[Table, Schema], error) {
		cursor, err := c.tables.Scan(ctx, kv)
		if err != nil {
			return nil, err
		}
		rows, err := table.CollectAll(cursor)
		if err != nil {
			return nil, err
		}
		return table.PathJoin(ctx, kv, c.schemas, rows, func(t Table) uint64 { return t.SchemaID })
	})
}

// ListJobs returns every Job, for inspection tooling.
func (c *Catalog) ListJobs(ctx context.Context) ([]table.IdRow[Job], error) {
	return txn.ReadOperation(ctx, c.co, func(kv kvengine.Engine) ([]table.IdRow[Job], error) {
		cursor, err := c.jobs.Scan(ctx, kv)
		if err != nil {
			return nil, err
		}
		return table.CollectAll(cursor)
	})
}

// QueueDepth counts jobs whose Status is not Completed or Failed, for the
// job_queue_depth gauge (spec §4.M).
func (c *Catalog) QueueDepth(ctx context.Context) (int64, error) {
	return txn.ReadOperation(ctx, c.co, func(kv kvengine.Engine) (int64, error) {
		cursor, err := c.jobs.Scan(ctx, kv)
		if err != nil {
			return 0, err
		}
		defer cursor.Close()

		var depth int64
		for cursor.Next() {
			switch cursor.Row().Row.Status {
			case JobCompleted, JobFailed:
			default:
				depth++
			}
		}
		return depth, cursor.Err()
	})
}

// DeleteJob removes the job, emitting DeleteJob with its full contents.
func (c *Catalog) DeleteJob(ctx context.Context, id uint64) error {
	_, err := txn.WriteOperation(ctx, c.co, func(kv kvengine.Engine, pipe *batchpipe.Pipe) (struct{}, error) {
		deleted, err := c.jobs.Delete(ctx, kv, pipe, id)
		if err != nil {
			return struct{}{}, err
		}
		pipe.Emit(DeleteJob{Row: deleted})
		return struct{}{}, nil
	})
	return err
}
