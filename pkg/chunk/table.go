// Package chunk maps build-time route ids to controller loaders.
//
// The build/bundling collaborator produces one loader per page route's
// controller code. The table coalesces concurrent first loads of the
// same chunk, so the unresolved → resolved upgrade of a route happens
// exactly once per process and never exposes a partially constructed
// controller.
package chunk

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/traverse-web/traverse/pkg/router"
)

// ErrUnknownChunk is returned when no loader is registered for an id.
var ErrUnknownChunk = errors.New("chunk: unknown chunk id")

// Table is the id → loader lookup table. It is a pure data structure;
// registration happens at boot, loads at any time afterwards.
type Table struct {
	mu      sync.RWMutex
	loaders map[string]router.ControllerLoader
	group   singleflight.Group
}

// NewTable creates an empty chunk table.
func NewTable() *Table {
	return &Table{loaders: make(map[string]router.ControllerLoader)}
}

// Register binds a loader to a chunk id. Later registrations for the
// same id replace earlier ones; the build system owns the mapping.
func (t *Table) Register(id string, loader router.ControllerLoader) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loaders[id] = loader
}

// RegisterResolved binds an already-loaded controller to a chunk id.
// Used on the server, where registration code holds the controller.
func (t *Table) RegisterResolved(id string, ctrl router.Controller) {
	t.Register(id, func(ctx context.Context) (router.Controller, error) {
		return ctrl, nil
	})
}

// Loader returns the loader for an id, or nil.
func (t *Table) Loader(id string) router.ControllerLoader {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loaders[id]
}

// Has reports whether a loader is registered for an id.
func (t *Table) Has(id string) bool {
	return t.Loader(id) != nil
}

// Load resolves the controller for a chunk id. Concurrent loads of the
// same id are coalesced into one loader invocation; every caller
// observes the same fully constructed controller.
func (t *Table) Load(ctx context.Context, id string) (router.Controller, error) {
	loader := t.Loader(id)
	if loader == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChunk, id)
	}

	v, err, _ := t.group.Do(id, func() (any, error) {
		return loader(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("chunk: load %q: %w", id, err)
	}
	ctrl, ok := v.(router.Controller)
	if !ok || ctrl == nil {
		return nil, fmt.Errorf("chunk: loader for %q returned no controller", id)
	}
	return ctrl, nil
}

// IDs returns the registered chunk ids.
func (t *Table) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.loaders))
	for id := range t.loaders {
		ids = append(ids, id)
	}
	return ids
}
