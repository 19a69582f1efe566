// Package memkv is an in-memory implementation of kvengine.Engine used by
// unit tests for the table engine, transaction coordinator, and catalog
// operations, so they don't need a real Badger directory on disk.
package memkv

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cubestore/metastore/internal/kvengine"
	"github.com/cubestore/metastore/internal/metaerr"
)

// Engine is a goroutine-safe, ordered, in-memory kvengine.Engine.
type Engine struct {
	mu      sync.RWMutex
	data    map[string][]byte
	seq     uint64
	history []kvengine.Batch // retained for UpdatesSince; unbounded, fine for tests
}

func New() *Engine {
	return &Engine{data: make(map[string][]byte)}
}

func (e *Engine) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (e *Engine) ScanPrefix(_ context.Context, prefix []byte) (kvengine.Iterator, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var keys []string
	for k := range e.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]kvengine.KVPair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, kvengine.KVPair{Key: []byte(k), Value: e.data[k]})
	}
	return &sliceIterator{pairs: pairs, idx: -1}, nil
}

func (e *Engine) WriteBatch(_ context.Context, muts []kvengine.Mutation) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	seq := e.seq

	applied := make([]kvengine.Mutation, len(muts))
	for i, m := range muts {
		switch m.Op {
		case kvengine.OpPut:
			v := make([]byte, len(m.Value))
			copy(v, m.Value)
			e.data[string(m.Key)] = v
		case kvengine.OpDelete:
			delete(e.data, string(m.Key))
		default:
			return 0, metaerr.Wrap("memkv.WriteBatch", metaerr.ErrKvEngine)
		}
		applied[i] = m
	}
	e.history = append(e.history, kvengine.Batch{Seq: seq, Mutations: applied})
	return seq, nil
}

func (e *Engine) LatestSeq() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.seq
}

func (e *Engine) UpdatesSince(_ context.Context, since uint64) ([]kvengine.Batch, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []kvengine.Batch
	for _, b := range e.history {
		if b.Seq > since {
			out = append(out, b)
		}
	}
	return out, nil
}

// Checkpoint serializes the full key space into a single file named
// "snapshot.kv" under dir, in one big TLV stream. This is a test-only
// format private to memkv; it has no bearing on the wire contract published
// by the durability pipeline, which only cares that Checkpoint produces a
// directory of files and that re-opening against that directory recovers
// the same key space.
func (e *Engine) Checkpoint(_ context.Context, dir string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return metaerr.Wrap("memkv.Checkpoint", metaerr.ErrKvEngine)
	}

	var buf bytes.Buffer
	keys := make([]string, 0, len(e.data))
	for k := range e.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeFrame(&buf, []byte(k))
		writeFrame(&buf, e.data[k])
	}
	return os.WriteFile(filepath.Join(dir, "snapshot.kv"), buf.Bytes(), 0o644)
}

// Open reconstructs an Engine from a directory produced by Checkpoint.
func Open(dir string) (*Engine, error) {
	e := New()
	path := filepath.Join(dir, "snapshot.kv")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return e, nil
	}
	if err != nil {
		return nil, metaerr.Wrap("memkv.Open", metaerr.ErrKvEngine)
	}
	buf := raw
	for len(buf) > 0 {
		var k, v []byte
		k, buf, err = readFrame(buf)
		if err != nil {
			return nil, err
		}
		v, buf, err = readFrame(buf)
		if err != nil {
			return nil, err
		}
		e.data[string(k)] = v
	}
	return e, nil
}

func (e *Engine) Close() error { return nil }

type sliceIterator struct {
	pairs []kvengine.KVPair
	idx   int
}

func (it *sliceIterator) Next() bool {
	it.idx++
	return it.idx < len(it.pairs)
}

func (it *sliceIterator) Key() []byte   { return it.pairs[it.idx].Key }
func (it *sliceIterator) Value() []byte { return it.pairs[it.idx].Value }
func (it *sliceIterator) Close() error  { return nil }
