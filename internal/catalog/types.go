// Package catalog implements the high-level metastore domain API (spec
// §4.H): schemas, tables, indexes, partitions, chunks, the WAL, and the job
// queue, built entirely on top of the generic table engine (package table)
// and the transaction coordinator (package txn). This package is the only
// place in the module that knows what a Schema or a Job actually is — every
// layer below it is generic over Row.
package catalog

// ColumnType is the domain type of one table column (spec §6.4).
type ColumnType byte

const (
	ColumnString ColumnType = iota
	ColumnInt
	ColumnBytes
	ColumnTimestamp
	ColumnDecimal
	ColumnBoolean
)

// ImportFormat names how a table's source location should be read.
type ImportFormat byte

const (
	ImportFormatUnspecified ImportFormat = iota
	ImportFormatCSV
)

// Column is one column of a Table, in declared table order.
type Column struct {
	Name        string
	Type        ColumnType
	ColumnIndex uint32
}

// Schema is the root namespace for tables.
type Schema struct {
	Name string
}

// Table belongs to exactly one Schema and carries its column list plus an
// optional external source location and import format.
type Table struct {
	SchemaID     uint64
	Name         string
	Columns      []Column
	Location     *string
	ImportFormat *ImportFormat
}

// Index describes one ordered column layout over a Table: the columns
// named in a user index definition, in definition order, followed by the
// table's remaining columns in table order (spec §4.H create_table).
type Index struct {
	TableID     uint64
	Name        string
	Columns     []Column
	SortKeySize uint32
}

// RowTuple is a serialized min/max row boundary for a Partition, opaque to
// the metastore core — it is compared and stored but never interpreted.
type RowTuple []byte

// Partition is one key-range segment of an Index.
type Partition struct {
	IndexID           uint64
	ParentPartitionID *uint64
	MinValue          RowTuple
	MaxValue          RowTuple
	Active            bool
	MainTableRowCount uint64
}

// Chunk is a unit of physical data belonging to a Partition. It is visible
// to readers only once Uploaded && Active.
type Chunk struct {
	PartitionID uint64
	RowCount    uint64
	Uploaded    bool
	Active      bool
}

// Wal is a staging record for rows ingested into a Table before they
// become partitions and chunks.
type Wal struct {
	TableID  uint64
	RowCount uint64
	Uploaded bool
}

// JobStatus is the lifecycle state of one background Job.
type JobStatus byte

const (
	JobScheduled JobStatus = iota
	JobProcessing
	JobCompleted
	JobFailed
)

// RowReference names the entity a Job acts on: an entity kind (by
// table_id) plus the row id within that entity's table.
type RowReference struct {
	EntityTableID uint32
	RowID         uint64
}

// Job is one unit of background work, deduplicated on (RowReference,
// JobType).
type Job struct {
	RowReference RowReference
	JobType      string
	Status       JobStatus
	ProcessingBy *string
	HeartBeat    int64 // unix millis; 0 means unset
	Shard        string
}
