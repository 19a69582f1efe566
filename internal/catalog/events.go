package catalog

// The generic batchpipe.InsertEvent/UpdateEvent/DeleteEvent (table_id,
// row_id) fire for every table op. In addition, spec §4.I calls for a
// per-entity Delete<Kind> event carrying the deleted row's full contents,
// for collaborators (e.g. the compute layer's cache) that need the data
// without a follow-up read of an already-deleted row.
type DeleteSchema struct{ Row Schema }
type DeleteTable struct{ Row Table }
type DeleteIndexEvent struct{ Row Index }
type DeletePartition struct{ Row Partition }
type DeleteChunk struct{ Row Chunk }
type DeleteWal struct{ Row Wal }
type DeleteJob struct{ Row Job }
