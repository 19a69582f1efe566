// Package batchpipe implements the write-scoped scratch structure (spec
// §4.E) that every Generic Table Engine operation stages mutations and
// events into. A Pipe is never shared across operations: the Transaction
// Coordinator creates one per write_operation closure invocation and, on
// successful return, commits its staged batch atomically and hands its
// events to the event bus.
package batchpipe

import "github.com/cubestore/metastore/internal/kvengine"

// Event is any domain event a table-engine operation emits while it runs.
// Concrete event types live in package catalog; this package only needs to
// collect them in emission order.
type Event interface{}

// Pipe accumulates staged KV mutations and domain events for one write
// operation.
type Pipe struct {
	muts   []kvengine.Mutation
	events []Event
}

func New() *Pipe { return &Pipe{} }

// StagePut stages a put of key -> value, to be applied atomically when the
// coordinator commits this pipe.
func (p *Pipe) StagePut(key, value []byte) {
	p.muts = append(p.muts, kvengine.Mutation{Op: kvengine.OpPut, Key: key, Value: value})
}

// StageDelete stages a delete of key.
func (p *Pipe) StageDelete(key []byte) {
	p.muts = append(p.muts, kvengine.Mutation{Op: kvengine.OpDelete, Key: key})
}

// Emit appends a domain event to this pipe's event list, preserving the
// order operations produced them in — this is the ordering the event bus
// must reproduce per spec §4.I.
func (p *Pipe) Emit(e Event) {
	p.events = append(p.events, e)
}

// Mutations returns the staged mutations in emission order.
func (p *Pipe) Mutations() []kvengine.Mutation { return p.muts }

// Events returns the staged events in emission order.
func (p *Pipe) Events() []Event { return p.events }
