package catalog

import (
	"encoding/binary"

	"github.com/cubestore/metastore/internal/secindex"
	"github.com/cubestore/metastore/internal/table"
)

// Well-known table_id constants (spec §3.1): a published wire contract,
// never reassigned.
const (
	TableIDSchema    uint32 = 0x0100
	TableIDTable     uint32 = 0x0200
	TableIDIndex     uint32 = 0x0300
	TableIDPartition uint32 = 0x0400
	TableIDChunk     uint32 = 0x0500
	TableIDWal       uint32 = 0x0600
	TableIDJob       uint32 = 0x0700
)

// putLenPrefixed appends a uvarint-length-prefixed byte string, the same
// length framing package rowcodec uses, so composite index keys built
// here stay unambiguous regardless of what bytes a component contains.
func putLenPrefixed(buf []byte, b []byte) []byte {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], uint64(len(b)))
	buf = append(buf, scratch[:n]...)
	return append(buf, b...)
}

func putUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func putUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

// --- Schema: unique index on Name ---

func schemaTable() *table.Table[Schema] {
	nameIdx := secindex.Index[Schema]{
		ID:         TableIDSchema,
		Name:       "name",
		Unique:     true,
		ExtractKey: func(s Schema) any { return s.Name },
		EncodeKey:  func(k any) []byte { return []byte(k.(string)) },
	}
	return table.New(TableIDSchema, []secindex.Index[Schema]{nameIdx}, encodeSchema, decodeSchema)
}

// --- Table: unique index on (schema_id, name) ---

type tableNameKey struct {
	SchemaID uint64
	Name     string
}

func encodeTableNameKey(k tableNameKey) []byte {
	buf := putUint64(nil, k.SchemaID)
	return append(buf, []byte(k.Name)...)
}

func tableTable() *table.Table[Table] {
	nameIdx := secindex.Index[Table]{
		ID:         TableIDTable,
		Name:       "schema_name",
		Unique:     true,
		ExtractKey: func(t Table) any { return tableNameKey{t.SchemaID, t.Name} },
		EncodeKey:  func(k any) []byte { return encodeTableNameKey(k.(tableNameKey)) },
	}
	bySchemaIdx := secindex.Index[Table]{
		ID:         TableIDTable + 1,
		Name:       "schema_id",
		Unique:     false,
		ExtractKey: func(t Table) any { return t.SchemaID },
		EncodeKey:  func(k any) []byte { return putUint64(nil, k.(uint64)) },
	}
	return table.New(TableIDTable, []secindex.Index[Table]{nameIdx, bySchemaIdx}, encodeTable, decodeTable)
}

// --- Index: non-unique index on table_id (cascade lookups), unique on (table_id, name) ---

type indexNameKey struct {
	TableID uint64
	Name    string
}

func encodeIndexNameKey(k indexNameKey) []byte {
	buf := putUint64(nil, k.TableID)
	return append(buf, []byte(k.Name)...)
}

func indexTable() *table.Table[Index] {
	byTableIdx := secindex.Index[Index]{
		ID:         TableIDIndex,
		Name:       "table_id",
		Unique:     false,
		ExtractKey: func(ix Index) any { return ix.TableID },
		EncodeKey:  func(k any) []byte { return putUint64(nil, k.(uint64)) },
	}
	nameIdx := secindex.Index[Index]{
		ID:         TableIDIndex + 1,
		Name:       "table_name",
		Unique:     true,
		ExtractKey: func(ix Index) any { return indexNameKey{ix.TableID, ix.Name} },
		EncodeKey:  func(k any) []byte { return encodeIndexNameKey(k.(indexNameKey)) },
	}
	return table.New(TableIDIndex, []secindex.Index[Index]{byTableIdx, nameIdx}, encodeIndex, decodeIndex)
}

// --- Partition: non-unique index on index_id ---

func partitionTable() *table.Table[Partition] {
	byIndexIdx := secindex.Index[Partition]{
		ID:         TableIDPartition,
		Name:       "index_id",
		Unique:     false,
		ExtractKey: func(p Partition) any { return p.IndexID },
		EncodeKey:  func(k any) []byte { return putUint64(nil, k.(uint64)) },
	}
	return table.New(TableIDPartition, []secindex.Index[Partition]{byIndexIdx}, encodePartition, decodePartition)
}

// --- Chunk: non-unique index on partition_id ---

func chunkTable() *table.Table[Chunk] {
	byPartitionIdx := secindex.Index[Chunk]{
		ID:         TableIDChunk,
		Name:       "partition_id",
		Unique:     false,
		ExtractKey: func(c Chunk) any { return c.PartitionID },
		EncodeKey:  func(k any) []byte { return putUint64(nil, k.(uint64)) },
	}
	return table.New(TableIDChunk, []secindex.Index[Chunk]{byPartitionIdx}, encodeChunk, decodeChunk)
}

// --- Wal: non-unique index on table_id ---

func walTable() *table.Table[Wal] {
	byTableIdx := secindex.Index[Wal]{
		ID:         TableIDWal,
		Name:       "table_id",
		Unique:     false,
		ExtractKey: func(w Wal) any { return w.TableID },
		EncodeKey:  func(k any) []byte { return putUint64(nil, k.(uint64)) },
	}
	return table.New(TableIDWal, []secindex.Index[Wal]{byTableIdx}, encodeWal, decodeWal)
}

// --- Job: unique index on (row_reference, job_type); non-unique on (shard, scheduled) ---

type jobDedupKey struct {
	EntityTableID uint32
	RowID         uint64
	JobType       string
}

func encodeJobDedupKey(k jobDedupKey) []byte {
	buf := putUint32(nil, k.EntityTableID)
	buf = putUint64(buf, k.RowID)
	return append(buf, []byte(k.JobType)...)
}

type jobShardScheduledKey struct {
	Shard     string
	Scheduled bool
}

func encodeJobShardScheduledKey(k jobShardScheduledKey) []byte {
	buf := putLenPrefixed(nil, []byte(k.Shard))
	if k.Scheduled {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func jobTable() *table.Table[Job] {
	dedupIdx := secindex.Index[Job]{
		ID:     TableIDJob,
		Name:   "dedup",
		Unique: true,
		ExtractKey: func(j Job) any {
			return jobDedupKey{j.RowReference.EntityTableID, j.RowReference.RowID, j.JobType}
		},
		EncodeKey: func(k any) []byte { return encodeJobDedupKey(k.(jobDedupKey)) },
	}
	shardScheduledIdx := secindex.Index[Job]{
		ID:     TableIDJob + 1,
		Name:   "shard_scheduled",
		Unique: false,
		ExtractKey: func(j Job) any {
			return jobShardScheduledKey{j.Shard, j.Status == JobScheduled}
		},
		EncodeKey: func(k any) []byte { return encodeJobShardScheduledKey(k.(jobShardScheduledKey)) },
	}
	return table.New(TableIDJob, []secindex.Index[Job]{dedupIdx, shardScheduledIdx}, encodeJob, decodeJob)
}
