// Package txn implements the Transaction Coordinator (spec §4.F): it
// serializes writes with a single exclusive lock, runs each caller closure
// on its own goroutine with a semaphore bounding how many run at once (the
// calling goroutine waits for the result or for its context to end), commits
// each write's batch atomically, and fans out its events through the event
// bus.
package txn

import (
	"context"
	"sync"
	"time"

	"github.com/cubestore/metastore/internal/batchpipe"
	"github.com/cubestore/metastore/internal/eventbus"
	"github.com/cubestore/metastore/internal/kvengine"
	"github.com/cubestore/metastore/internal/metaerr"
)

// OperationRecorder receives a duration for every read/write operation the
// coordinator runs, for the metastore.{read,write}_operation.* instruments
// (spec §4.M). package metrics implements this; package txn never imports
// metrics directly to avoid a cycle.
type OperationRecorder interface {
	RecordReadOperation(ctx context.Context, d time.Duration)
	RecordWriteOperation(ctx context.Context, d time.Duration)
}

// Notifier is an edge-triggered "something happened" signal: Signal never
// blocks, and C() delivers at most one pending signal per receive — extra
// Signal calls between receives collapse into one wakeup, which is exactly
// what the durability pipeline's poll loop needs (spec §4.G step 1).
type Notifier struct {
	ch chan struct{}
}

func NewNotifier() *Notifier { return &Notifier{ch: make(chan struct{}, 1)} }

func (n *Notifier) Signal() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

func (n *Notifier) C() <-chan struct{} { return n.ch }

// Coordinator is the single-writer, multi-reader gate in front of a
// kvengine.Engine.
type Coordinator struct {
	kv  kvengine.Engine
	bus *eventbus.Bus

	mu  sync.RWMutex
	sem chan struct{} // bounds concurrent worker-pool dispatch

	metrics OperationRecorder

	WriteSignal *Notifier // signaled after every successful commit
}

// CoordinatorOption configures a Coordinator at construction time.
type CoordinatorOption func(*Coordinator)

// WithMetrics attaches an OperationRecorder that every ReadOperation and
// WriteOperation call reports its duration to.
func WithMetrics(m OperationRecorder) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// New constructs a Coordinator. workerPoolSize bounds how many read/write
// closures may run concurrently; it does not bound how many are queued.
func New(kv kvengine.Engine, bus *eventbus.Bus, workerPoolSize int, opts ...CoordinatorOption) *Coordinator {
	if workerPoolSize < 1 {
		workerPoolSize = 1
	}
	c := &Coordinator{
		kv:          kv,
		bus:         bus,
		sem:         make(chan struct{}, workerPoolSize),
		WriteSignal: NewNotifier(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KV exposes the underlying engine for components that must bypass the
// coordinator's locking (namely the durability pipeline, which polls the
// change feed using its own synchronization against a "write happened"
// signal rather than the read/write lock here).
func (c *Coordinator) KV() kvengine.Engine { return c.kv }

func (c *Coordinator) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) release() { <-c.sem }

// ReadOperation acquires a shared lock on the KV handle, runs f on a worker
// goroutine, and returns its result. f must not stage mutations — reads
// only observe the engine directly.
func ReadOperation[T any](ctx context.Context, c *Coordinator, f func(kv kvengine.Engine) (T, error)) (T, error) {
	var zero T
	if err := c.acquire(ctx); err != nil {
		return zero, err
	}
	defer c.release()

	c.mu.RLock()
	defer c.mu.RUnlock()

	start := time.Now()
	if c.metrics != nil {
		defer func() { c.metrics.RecordReadOperation(ctx, time.Since(start)) }()
	}

	type result struct {
		val T
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		v, err := f(c.kv)
		resCh <- result{v, err}
	}()

	select {
	case r := <-resCh:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// WriteOperation acquires the exclusive lock, runs f with a fresh
// batchpipe.Pipe on a worker goroutine, and — only if f returns no error —
// commits the pipe's staged mutations atomically, signals the durability
// pipeline, and broadcasts the pipe's staged events in emission order. If f
// fails, nothing is committed and nothing is broadcast.
func WriteOperation[T any](ctx context.Context, c *Coordinator, f func(kv kvengine.Engine, pipe *batchpipe.Pipe) (T, error)) (T, error) {
	var zero T
	if err := c.acquire(ctx); err != nil {
		return zero, err
	}
	defer c.release()

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	if c.metrics != nil {
		defer func() { c.metrics.RecordWriteOperation(ctx, time.Since(start)) }()
	}

	type result struct {
		val  T
		pipe *batchpipe.Pipe
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		pipe := batchpipe.New()
		v, err := f(c.kv, pipe)
		resCh <- result{v, pipe, err}
	}()

	var r result
	select {
	case r = <-resCh:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	if r.err != nil {
		return zero, r.err
	}

	muts := r.pipe.Mutations()
	if len(muts) > 0 {
		if _, err := c.kv.WriteBatch(ctx, muts); err != nil {
			return zero, metaerr.Wrap("txn.WriteOperation", metaerr.ErrKvEngine)
		}
		c.WriteSignal.Signal()
	}

	staged := r.pipe.Events()
	events := make([]any, len(staged))
	for i, e := range staged {
		events[i] = e
	}
	if err := c.bus.Broadcast(ctx, events); err != nil {
		// The write already committed; a listener failure is an
		// observation-channel problem, not a transaction failure, but it
		// must still reach the caller per spec §4.I.
		return r.val, err
	}
	return r.val, nil
}
