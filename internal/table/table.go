// Package table implements the generic relational overlay on top of the
// ordered key-value engine (spec §4.D): CRUD on a primary table plus all of
// its secondary indexes, atomically staged into a batchpipe.Pipe; scans;
// point and index lookups; row-id sequence allocation.
//
// One Table[Row] is instantiated per catalog entity (Schema, Table, Index,
// Partition, Chunk, WAL, Job); the engine itself never knows what those
// types mean — it drives everything through the Codec and []secindex.Index
// the entity declares. This is option (i) of spec.md §9's design notes:
// compile-time generics rather than a runtime-typed descriptor table, since
// Go monomorphizes Table[Row] per instantiation at zero dispatch cost.
package table

import (
	"context"

	"github.com/cubestore/metastore/internal/batchpipe"
	"github.com/cubestore/metastore/internal/keycodec"
	"github.com/cubestore/metastore/internal/kvengine"
	"github.com/cubestore/metastore/internal/metaerr"
	"github.com/cubestore/metastore/internal/secindex"
)

// IdRow pairs a row id with its body. Per spec.md §9's design notes this
// pairing is a domain value, not a database row shape: Row's own encoding
// never includes the id, so the body's serialized form stays id-independent
// across update/relocate.
type IdRow[Row any] struct {
	ID  uint64
	Row Row
}

// Table is the generic engine for one entity's primary table and secondary
// indexes.
type Table[Row any] struct {
	TableID uint32
	Indexes []secindex.Index[Row]
	Encode  func(Row) []byte
	Decode  func([]byte) (Row, error)
}

// New constructs a Table engine. encode/decode must round-trip: decode(encode(r)) == r.
func New[Row any](tableID uint32, indexes []secindex.Index[Row], encode func(Row) []byte, decode func([]byte) (Row, error)) *Table[Row] {
	return &Table[Row]{TableID: tableID, Indexes: indexes, Encode: encode, Decode: decode}
}

// nextID reads and stages the increment of this table's sequence counter.
// The current value is the last increment already staged in pipe for this
// key (several inserts into one table within one operation), or else the
// value committed in the live engine; the increment is staged into pipe so
// a rolled-back commit never burns an id.
func (t *Table[Row]) nextID(ctx context.Context, kv kvengine.Engine, pipe *batchpipe.Pipe) (uint64, error) {
	seqKey := keycodec.EncodeSeq(t.TableID)
	var cur uint64
	staged := false
	muts := pipe.Mutations()
	for i := len(muts) - 1; i >= 0; i-- {
		if muts[i].Op == kvengine.OpPut && bytesEqual(muts[i].Key, seqKey) {
			cur = decodeSeq(muts[i].Value)
			staged = true
			break
		}
	}
	if !staged {
		raw, found, err := kv.Get(ctx, seqKey)
		if err != nil {
			return 0, metaerr.Wrap("table.nextID", metaerr.ErrKvEngine)
		}
		if found {
			cur = decodeSeq(raw)
		}
	}
	next := cur + 1
	pipe.StagePut(seqKey, encodeSeq(next))
	return next, nil
}

// Insert allocates the next row id, validates every unique index, stages
// the primary row and all index entries, and emits InsertEvent.
func (t *Table[Row]) Insert(ctx context.Context, kv kvengine.Engine, pipe *batchpipe.Pipe, row Row) (uint64, error) {
	id, err := t.nextID(ctx, kv, pipe)
	if err != nil {
		return 0, err
	}

	for _, idx := range t.Indexes {
		key := idx.ExtractKey(row)
		encoded := idx.EncodeKey(key)
		hash := secindex.Hash64(encoded)

		if idx.Unique {
			collision, err := t.probeUnique(ctx, kv, idx, hash, encoded, nil)
			if err != nil {
				return 0, err
			}
			if collision {
				return 0, metaerr.UniqueViolation("table.Insert")
			}
		}
		pipe.StagePut(keycodec.EncodeIndex(idx.ID, hash, id), encoded)
	}

	pipe.StagePut(keycodec.EncodePrimary(t.TableID, id), t.Encode(row))
	pipe.Emit(batchpipe.InsertEvent{TableID: t.TableID, RowID: id})
	return id, nil
}

// probeUnique reports whether any existing index entry for (idx, hash)
// already stores exactly encoded, other than excludeRowID (used by Update
// to ignore the row being updated's own pre-existing entry).
func (t *Table[Row]) probeUnique(ctx context.Context, kv kvengine.Engine, idx secindex.Index[Row], hash uint64, encoded []byte, excludeRowID *uint64) (bool, error) {
	it, err := kv.ScanPrefix(ctx, keycodec.IndexPrefix(idx.ID, hash))
	if err != nil {
		return false, metaerr.Wrap("table.probeUnique", metaerr.ErrKvEngine)
	}
	defer it.Close()

	for it.Next() {
		k, err := keycodec.Decode(it.Key())
		if err != nil {
			return false, err
		}
		if excludeRowID != nil && k.RowID == *excludeRowID {
			continue
		}
		if bytesEqual(it.Value(), encoded) {
			return true, nil
		}
	}
	return false, nil
}

// Update stages the new primary body for the given id and, for each index
// whose extracted key changed, a delete of oldRow's entry and an insert of
// newRow's entry (entries of unchanged keys are left as they are), re-probing
// uniqueness for any unique index whose extracted key changed. This
// resolves the open question in spec.md §9: the generic update path DOES
// recheck unique-index violations when a unique key changes.
func (t *Table[Row]) Update(ctx context.Context, kv kvengine.Engine, pipe *batchpipe.Pipe, id uint64, newRow, oldRow Row) error {
	for _, idx := range t.Indexes {
		oldEncoded := idx.EncodeKey(idx.ExtractKey(oldRow))
		newEncoded := idx.EncodeKey(idx.ExtractKey(newRow))
		oldHash := secindex.Hash64(oldEncoded)
		newHash := secindex.Hash64(newEncoded)

		keyChanged := !bytesEqual(oldEncoded, newEncoded)

		if idx.Unique && keyChanged {
			collision, err := t.probeUnique(ctx, kv, idx, newHash, newEncoded, &id)
			if err != nil {
				return err
			}
			if collision {
				return metaerr.UniqueViolation("table.Update")
			}
		}

		if keyChanged {
			pipe.StageDelete(keycodec.EncodeIndex(idx.ID, oldHash, id))
			pipe.StagePut(keycodec.EncodeIndex(idx.ID, newHash, id), newEncoded)
		}
	}

	pipe.StagePut(keycodec.EncodePrimary(t.TableID, id), t.Encode(newRow))
	pipe.Emit(batchpipe.UpdateEvent{TableID: t.TableID, RowID: id})
	return nil
}

// UpdateWith reads the current row, applies mutate, and stages the result
// via Update. This is the only update path callers should use directly —
// the bare Update above exists so callers that already hold both old and
// new rows (e.g. a cascading rename) can skip the extra read.
func (t *Table[Row]) UpdateWith(ctx context.Context, kv kvengine.Engine, pipe *batchpipe.Pipe, id uint64, mutate func(Row) Row) (Row, error) {
	var zero Row
	old, err := t.GetOrFail(ctx, kv, id)
	if err != nil {
		return zero, err
	}
	newRow := mutate(old)
	if err := t.Update(ctx, kv, pipe, id, newRow, old); err != nil {
		return zero, err
	}
	return newRow, nil
}

// Delete reads the current row, stages deletes of its primary entry and
// every index entry, and emits DeleteEvent. It returns the deleted row so
// callers can build their own entity-specific Delete<Kind> event.
func (t *Table[Row]) Delete(ctx context.Context, kv kvengine.Engine, pipe *batchpipe.Pipe, id uint64) (Row, error) {
	row, err := t.GetOrFail(ctx, kv, id)
	if err != nil {
		var zero Row
		return zero, err
	}

	for _, idx := range t.Indexes {
		encoded := idx.EncodeKey(idx.ExtractKey(row))
		hash := secindex.Hash64(encoded)
		pipe.StageDelete(keycodec.EncodeIndex(idx.ID, hash, id))
	}
	pipe.StageDelete(keycodec.EncodePrimary(t.TableID, id))
	pipe.Emit(batchpipe.DeleteEvent{TableID: t.TableID, RowID: id})
	return row, nil
}

// Get performs a primary point lookup.
func (t *Table[Row]) Get(ctx context.Context, kv kvengine.Engine, id uint64) (Row, bool, error) {
	var zero Row
	raw, found, err := kv.Get(ctx, keycodec.EncodePrimary(t.TableID, id))
	if err != nil {
		return zero, false, metaerr.Wrap("table.Get", metaerr.ErrKvEngine)
	}
	if !found {
		return zero, false, nil
	}
	row, err := t.Decode(raw)
	if err != nil {
		return zero, false, err
	}
	return row, true, nil
}

// GetOrFail is Get but fails with ErrNotFound when the row is absent.
func (t *Table[Row]) GetOrFail(ctx context.Context, kv kvengine.Engine, id uint64) (Row, error) {
	row, found, err := t.Get(ctx, kv, id)
	if err != nil {
		return row, err
	}
	if !found {
		return row, metaerr.NotFound("table.GetOrFail")
	}
	return row, nil
}

// RowsByIndex resolves every row whose idx-extracted key equals key. Hash
// collisions are rejected by comparing the stored plaintext encoding; if idx
// is unique and more than one row survives that comparison, this is an
// internal consistency failure, not a user-facing condition.
func (t *Table[Row]) RowsByIndex(ctx context.Context, kv kvengine.Engine, idx secindex.Index[Row], key any) ([]IdRow[Row], error) {
	encoded := idx.EncodeKey(key)
	hash := secindex.Hash64(encoded)

	it, err := kv.ScanPrefix(ctx, keycodec.IndexPrefix(idx.ID, hash))
	if err != nil {
		return nil, metaerr.Wrap("table.RowsByIndex", metaerr.ErrKvEngine)
	}
	defer it.Close()

	var ids []uint64
	for it.Next() {
		if !bytesEqual(it.Value(), encoded) {
			continue // hash collision with a different key; not a match
		}
		k, err := keycodec.Decode(it.Key())
		if err != nil {
			return nil, err
		}
		ids = append(ids, k.RowID)
	}

	if idx.Unique && len(ids) > 1 {
		return nil, metaerr.InternalConsistency("table.RowsByIndex: unique index returned multiple matches")
	}

	out := make([]IdRow[Row], 0, len(ids))
	for _, id := range ids {
		row, err := t.GetOrFail(ctx, kv, id)
		if err != nil {
			return nil, err
		}
		out = append(out, IdRow[Row]{ID: id, Row: row})
	}
	return out, nil
}

// Cursor walks every row of a table in ascending row-id order.
type Cursor[Row any] struct {
	it     kvengine.Iterator
	decode func([]byte) (Row, error)
	cur    IdRow[Row]
	err    error
}

// Scan returns a fresh Cursor over every row currently in the table. Each
// call restarts from the beginning; a Cursor is not affected by mutations
// made after it was created (it iterates a snapshot the underlying engine's
// ScanPrefix returned at call time).
func (t *Table[Row]) Scan(ctx context.Context, kv kvengine.Engine) (*Cursor[Row], error) {
	it, err := kv.ScanPrefix(ctx, keycodec.PrimaryPrefix(t.TableID))
	if err != nil {
		return nil, metaerr.Wrap("table.Scan", metaerr.ErrKvEngine)
	}
	return &Cursor[Row]{it: it, decode: t.Decode}, nil
}

// Next advances the cursor. It returns false at end of table or on error;
// callers must check Err() after a false return to distinguish the two.
func (c *Cursor[Row]) Next() bool {
	if !c.it.Next() {
		return false
	}
	k, err := keycodec.Decode(c.it.Key())
	if err != nil {
		c.err = err
		return false
	}
	row, err := c.decode(c.it.Value())
	if err != nil {
		c.err = err
		return false
	}
	c.cur = IdRow[Row]{ID: k.RowID, Row: row}
	return true
}

func (c *Cursor[Row]) Row() IdRow[Row] { return c.cur }
func (c *Cursor[Row]) Err() error      { return c.err }
func (c *Cursor[Row]) Close() error    { return c.it.Close() }

// CollectAll drains a Cursor into a slice, ordered ascending by row id
// (guaranteed by the primary key's big-endian row-id suffix).
func CollectAll[Row any](c *Cursor[Row]) ([]IdRow[Row], error) {
	defer c.Close()
	var out []IdRow[Row]
	for c.Next() {
		out = append(out, c.Row())
	}
	if c.Err() != nil {
		return nil, c.Err()
	}
	return out, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
