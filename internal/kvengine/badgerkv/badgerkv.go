// Package badgerkv implements kvengine.Engine over a Badger v4 embedded
// store. Badger gives us atomic batched writes (via a single transaction),
// efficient ordered prefix iteration, and a Backup/Load pair that is exactly
// the snapshot/restore primitive the durability pipeline's checkpoint step
// needs.
//
// Badger's own internal MVCC version counter is not exposed as a simple
// "sequence number since commit N" feed, so this adapter keeps its own:
// every WriteBatch appends an internal log entry (key prefix 0xFE, followed
// by the big-endian sequence number) inside the same transaction as the
// caller's mutations, and persists the next sequence number under a
// reserved key (0xFD). UpdatesSince replays that internal log; it never
// leaks into the keyspace the rest of the metastore operates on because no
// catalog key ever begins with those two reserved bytes (catalog keys
// always begin with 1, 2, or 3 — see package keycodec).
package badgerkv

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/cubestore/metastore/internal/kvengine"
	"github.com/cubestore/metastore/internal/metaerr"
)

const (
	logPrefix   = 0xFE
	seqCountKey = 0xFD
)

// Engine adapts a *badger.DB to kvengine.Engine.
type Engine struct {
	db  *badger.DB
	dir string

	mu  sync.Mutex
	seq uint64
}

// Open opens (or creates) a Badger store rooted at dir. If dir holds a
// badger.backup file left there by a cold-start download (see
// durability.Recover), it is loaded into the freshly opened store and then
// removed, so a snapshot downloaded from the remote blob store actually
// populates the database instead of sitting next to an empty one.
func Open(dir string) (*Engine, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, metaerr.Wrap("badgerkv.Open", metaerr.ErrKvEngine)
	}

	if err := loadBackupIfPresent(db, dir); err != nil {
		_ = db.Close()
		return nil, err
	}

	e := &Engine{db: db, dir: dir}
	if err := e.loadSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return e, nil
}

func loadBackupIfPresent(db *badger.DB, dir string) error {
	backupPath := filepath.Join(dir, "badger.backup")
	f, err := os.Open(backupPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return metaerr.Wrap("badgerkv.Open", metaerr.ErrKvEngine)
	}
	defer f.Close()

	if err := db.Load(f, 256); err != nil {
		return metaerr.Wrap("badgerkv.Open", metaerr.ErrKvEngine)
	}
	if err := os.Remove(backupPath); err != nil {
		return metaerr.Wrap("badgerkv.Open", metaerr.ErrKvEngine)
	}
	return nil
}

func (e *Engine) loadSeq() error {
	return e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte{seqCountKey})
		if err == badger.ErrKeyNotFound {
			e.seq = 0
			return nil
		}
		if err != nil {
			return metaerr.Wrap("badgerkv.loadSeq", metaerr.ErrKvEngine)
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return metaerr.Wrap("badgerkv.loadSeq", metaerr.ErrCodec)
			}
			e.seq = binary.BigEndian.Uint64(val)
			return nil
		})
	})
}

func (e *Engine) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	var out []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, metaerr.Wrap("badgerkv.Get", metaerr.ErrKvEngine)
	}
	return out, out != nil, nil
}

func (e *Engine) ScanPrefix(_ context.Context, prefix []byte) (kvengine.Iterator, error) {
	txn := e.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	it.Seek(prefix)
	return &badgerIterator{txn: txn, it: it, prefix: prefix, started: false}, nil
}

type badgerIterator struct {
	txn     *badger.Txn
	it      *badger.Iterator
	prefix  []byte
	started bool
	key     []byte
	value   []byte
}

func (bi *badgerIterator) Next() bool {
	if !bi.started {
		bi.started = true
	} else {
		bi.it.Next()
	}
	if !bi.it.ValidForPrefix(bi.prefix) {
		return false
	}
	item := bi.it.Item()
	bi.key = item.KeyCopy(nil)
	val, err := item.ValueCopy(nil)
	if err != nil {
		return false
	}
	bi.value = val
	return true
}

func (bi *badgerIterator) Key() []byte   { return bi.key }
func (bi *badgerIterator) Value() []byte { return bi.value }
func (bi *badgerIterator) Close() error {
	bi.it.Close()
	bi.txn.Discard()
	return nil
}

// WriteBatch applies muts and the internal sequence-log bookkeeping in a
// single Badger transaction so a crash can never leave the log entry
// committed without its mutations or vice versa.
func (e *Engine) WriteBatch(_ context.Context, muts []kvengine.Mutation) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	nextSeq := e.seq + 1

	err := e.db.Update(func(txn *badger.Txn) error {
		for _, m := range muts {
			switch m.Op {
			case kvengine.OpPut:
				if err := txn.Set(m.Key, m.Value); err != nil {
					return err
				}
			case kvengine.OpDelete:
				if err := txn.Delete(m.Key); err != nil {
					return err
				}
			default:
				return metaerr.Wrap("badgerkv.WriteBatch", metaerr.ErrKvEngine)
			}
		}

		logKey := append([]byte{logPrefix}, seqBytes(nextSeq)...)
		logVal := encodeBatch(kvengine.Batch{Seq: nextSeq, Mutations: muts})
		if err := txn.Set(logKey, logVal); err != nil {
			return err
		}

		seqVal := seqBytes(nextSeq)
		return txn.Set([]byte{seqCountKey}, seqVal)
	})
	if err != nil {
		return 0, metaerr.Wrap("badgerkv.WriteBatch", metaerr.ErrKvEngine)
	}

	e.seq = nextSeq
	return nextSeq, nil
}

func (e *Engine) LatestSeq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// UpdatesSince replays the internal sequence log, not the live keyspace, so
// a key that was put then deleted still shows up as two distinct mutations
// in the feed even though it leaves no trace in Get/ScanPrefix.
func (e *Engine) UpdatesSince(_ context.Context, since uint64) ([]kvengine.Batch, error) {
	var out []kvengine.Batch
	prefix := []byte{logPrefix}
	err := e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			keyCopy := item.KeyCopy(nil)
			if len(keyCopy) != 9 {
				continue
			}
			seq := binary.BigEndian.Uint64(keyCopy[1:])
			if seq <= since {
				continue
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			b, err := decodeBatch(val)
			if err != nil {
				return err
			}
			b.Seq = seq
			out = append(out, b)
		}
		return nil
	})
	if err != nil {
		return nil, metaerr.Wrap("badgerkv.UpdatesSince", metaerr.ErrKvEngine)
	}
	return out, nil
}

// Checkpoint writes a single Badger backup stream file into dir, using
// Badger's native Backup format so Load can restore it byte-for-byte.
func (e *Engine) Checkpoint(_ context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return metaerr.Wrap("badgerkv.Checkpoint", metaerr.ErrKvEngine)
	}
	f, err := os.Create(filepath.Join(dir, "badger.backup"))
	if err != nil {
		return metaerr.Wrap("badgerkv.Checkpoint", metaerr.ErrKvEngine)
	}
	defer f.Close()

	if _, err := e.db.Backup(f, 0); err != nil {
		return metaerr.Wrap("badgerkv.Checkpoint", metaerr.ErrKvEngine)
	}
	return nil
}

func (e *Engine) Close() error {
	if err := e.db.Close(); err != nil {
		return metaerr.Wrap("badgerkv.Close", metaerr.ErrKvEngine)
	}
	return nil
}

func seqBytes(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

// encodeBatch/decodeBatch serialize the internal change-log entries. This is
// a private on-disk format for this adapter only, independent of the
// metastore's own rowcodec (which describes catalog records, not raw KV
// mutations).
func encodeBatch(b kvengine.Batch) []byte {
	var buf bytes.Buffer
	var scratch [binary.MaxVarintLen64]byte

	n := binary.PutUvarint(scratch[:], uint64(len(b.Mutations)))
	buf.Write(scratch[:n])

	for _, m := range b.Mutations {
		buf.WriteByte(byte(m.Op))
		n = binary.PutUvarint(scratch[:], uint64(len(m.Key)))
		buf.Write(scratch[:n])
		buf.Write(m.Key)
		n = binary.PutUvarint(scratch[:], uint64(len(m.Value)))
		buf.Write(scratch[:n])
		buf.Write(m.Value)
	}
	return buf.Bytes()
}

func decodeBatch(raw []byte) (kvengine.Batch, error) {
	buf := raw
	count, n := binary.Uvarint(buf)
	if n <= 0 {
		return kvengine.Batch{}, metaerr.Wrap("badgerkv.decodeBatch", metaerr.ErrCodec)
	}
	buf = buf[n:]

	muts := make([]kvengine.Mutation, 0, count)
	for i := uint64(0); i < count; i++ {
		if len(buf) < 1 {
			return kvengine.Batch{}, metaerr.Wrap("badgerkv.decodeBatch", metaerr.ErrCodec)
		}
		op := kvengine.Op(buf[0])
		buf = buf[1:]

		klen, n := binary.Uvarint(buf)
		if n <= 0 {
			return kvengine.Batch{}, metaerr.Wrap("badgerkv.decodeBatch", metaerr.ErrCodec)
		}
		buf = buf[n:]
		key := buf[:klen]
		buf = buf[klen:]

		vlen, n := binary.Uvarint(buf)
		if n <= 0 {
			return kvengine.Batch{}, metaerr.Wrap("badgerkv.decodeBatch", metaerr.ErrCodec)
		}
		buf = buf[n:]
		val := buf[:vlen]
		buf = buf[vlen:]

		muts = append(muts, kvengine.Mutation{Op: op, Key: append([]byte(nil), key...), Value: append([]byte(nil), val...)})
	}
	return kvengine.Batch{Mutations: muts}, nil
}
