package journal

import (
	"context"

	"github.com/steveyegge/projsync/internal/filewatch"
	"github.com/steveyegge/projsync/internal/workspace"
)

// Attach records every event the store publishes from now on. The returned
// function stops recording.
//
// Events are written on the store's delivery goroutine, so rows are in
// commit order.
func (db *DB) Attach(store *workspace.Store) (detach func()) {
	return store.Subscribe(func(e workspace.ChangeEvent) {
		if err := db.RecordEvent(context.Background(), e); err != nil {
			db.logger.Printf("%v", err)
		}
	})
}

// AttachWatches records every reference-change notification of registry.
func (db *DB) AttachWatches(registry *filewatch.Registry) {
	registry.Subscribe(func(path string) {
		if err := db.RecordReferenceChange(context.Background(), path); err != nil {
			db.logger.Printf("%v", err)
		}
	})
}
