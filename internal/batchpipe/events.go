package batchpipe

// InsertEvent is emitted by the generic table engine whenever a row is
// inserted into any table.
type InsertEvent struct {
	TableID uint32
	RowID   uint64
}

// UpdateEvent is emitted whenever a row is updated.
type UpdateEvent struct {
	TableID uint32
	RowID   uint64
}

// DeleteEvent is emitted whenever a row is deleted, alongside the richer
// per-entity Delete<Kind> event a catalog operation emits separately so
// collaborators that need the deleted row's contents don't have to look it
// up themselves after the fact.
type DeleteEvent struct {
	TableID uint32
	RowID   uint64
}
