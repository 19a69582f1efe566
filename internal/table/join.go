package table

import (
	"context"

	"github.com/cubestore/metastore/internal/kvengine"
)

// Joined pairs a child row with its resolved parent.
type Joined[Child, Parent any] struct {
	Child  IdRow[Child]
	Parent IdRow[Parent]
}

// PathJoin batches parent lookups for a set of children: it collects the
// distinct parent ids referenced by parentIDFn, fetches each parent exactly
// once regardless of how many children share it, and zips every child with
// its resolved parent. This is the utility spec.md §4.D calls out for
// avoiding N+1 lookups when walking the table→index→partition→chunk chain.
func PathJoin[Child, Parent any](ctx context.Context, kv kvengine.Engine, parentTable *Table[Parent], children []IdRow[Child], parentIDFn func(Child) uint64) ([]Joined[Child, Parent], error) {
	parents := make(map[uint64]IdRow[Parent], len(children))
	for _, c := range children {
		pid := parentIDFn(c.Row)
		if _, ok := parents[pid]; ok {
			continue
		}
		row, err := parentTable.GetOrFail(ctx, kv, pid)
		if err != nil {
			return nil, err
		}
		parents[pid] = IdRow[Parent]{ID: pid, Row: row}
	}

	out := make([]Joined[Child, Parent], 0, len(children))
	for _, c := range children {
		pid := parentIDFn(c.Row)
		out = append(out, Joined[Child, Parent]{Child: c, Parent: parents[pid]})
	}
	return out, nil
}
