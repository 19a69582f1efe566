package metrics

import (
	"context"

	"github.com/cubestore/metastore/internal/batchpipe"
	"github.com/cubestore/metastore/internal/eventbus"
)

// RowMutationListener adapts Metrics into an eventbus.Listener that counts
// the generic Insert/Update/Delete events every table engine operation
// emits, independent of which catalog entity produced them.
func (m *Metrics) RowMutationListener() eventbus.Listener {
	return eventbus.ListenerFunc(func(ctx context.Context, e any) error {
		switch e.(type) {
		case batchpipe.InsertEvent:
			m.RowsInserted.Add(ctx, 1)
		case batchpipe.UpdateEvent:
			m.RowsUpdated.Add(ctx, 1)
		case batchpipe.DeleteEvent:
			m.RowsDeleted.Add(ctx, 1)
		}
		return nil
	})
}
