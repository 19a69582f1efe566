// Package kvengine specifies the embedded ordered key-value engine contract
// the metastore core is built against (spec §6.1): atomic batched writes,
// point gets, prefix scans over the ordered key space, a monotonically
// increasing per-batch sequence number, a replayable change feed, and a
// snapshot/checkpoint primitive. Concrete adapters live in sibling packages
// (badgerkv for production, memkv for tests).
package kvengine

import "context"

// Op is the kind of a single key mutation within a Batch.
type Op byte

const (
	OpPut Op = iota
	OpDelete
)

// Mutation is one staged key-value operation.
type Mutation struct {
	Op    Op
	Key   []byte
	Value []byte // unused for OpDelete
}

// Batch is a committed, sequence-numbered group of mutations, as produced by
// one WriteBatch call and later replayed by UpdatesSince / cold-start log
// replay.
type Batch struct {
	Seq       uint64
	Mutations []Mutation
}

// KVPair is a single key/value observed while scanning.
type KVPair struct {
	Key   []byte
	Value []byte
}

// Iterator walks an ordered range of keys, lowest first.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Close() error
}

// Engine is the embedded ordered key-value store the metastore's Batch Pipe
// commits against and the durability pipeline polls for change data.
type Engine interface {
	// Get performs a point lookup. found is false when the key is absent.
	Get(ctx context.Context, key []byte) (value []byte, found bool, err error)

	// ScanPrefix returns an iterator over every key with the given prefix,
	// in ascending key order. The iterator must be Closed by the caller.
	ScanPrefix(ctx context.Context, prefix []byte) (Iterator, error)

	// WriteBatch atomically applies muts and returns the sequence number
	// assigned to the resulting commit. An empty batch still consumes a
	// sequence number's worth of bookkeeping only if the engine chooses to;
	// callers never depend on that.
	WriteBatch(ctx context.Context, muts []Mutation) (seq uint64, err error)

	// LatestSeq returns the highest sequence number committed so far.
	LatestSeq() uint64

	// UpdatesSince returns every committed batch with Seq > since, ordered
	// ascending by Seq. This is the replayable change feed the durability
	// pipeline's incremental upload loop drains.
	UpdatesSince(ctx context.Context, since uint64) ([]Batch, error)

	// Checkpoint writes a self-contained, consistent snapshot of the
	// engine's current state as a set of files under dir. dir is created
	// if it does not already exist.
	Checkpoint(ctx context.Context, dir string) error

	// Close releases the engine's resources.
	Close() error
}
