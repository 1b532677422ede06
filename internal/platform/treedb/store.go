// Package treedb provides a loosely-typed real-time tree store: nested
// map[string]any values addressed by slash-separated paths, multi-path
// atomic updates, and per-path change subscriptions.
package treedb

import (
	"context"
	"strings"

	crerr "github.com/cockroachdb/errors"
)

// Snapshot is the value of a watched subtree at a point in time. Value is a
// nested map[string]any / scalar tree, or nil when the subtree is absent.
type Snapshot struct {
	Path  string
	Value any
}

// Store is the shared tree substrate. Update applies every path in the map
// atomically: either all writes land or none do. A nil value deletes the
// subtree at that path.
type Store interface {
	Get(ctx context.Context, path string) (any, error)
	Update(ctx context.Context, updates map[string]any) error
	Set(ctx context.Context, path string, value any) error
	Delete(ctx context.Context, path string) error

	// PushID returns a new key, unique and roughly ordered by creation time.
	// It never touches the backing store.
	PushID() string

	// Watch subscribes to a subtree. The returned channel carries an initial
	// snapshot followed by one snapshot per observed change; intermediate
	// states may be coalesced. The cancel func releases the subscription.
	Watch(ctx context.Context, path string) (<-chan Snapshot, func(), error)

	Close() error
}

func normalizePath(path string) string {
	return strings.Trim(strings.TrimSpace(path), "/")
}

func splitPath(path string) []string {
	path = normalizePath(path)
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func validateUpdatePaths(updates map[string]any) error {
	for path := range updates {
		if normalizePath(path) == "" {
			return crerr.Newf("update path %q is empty", path)
		}
	}
	return nil
}

// pathsOverlap reports whether one path is equal to or an ancestor of the
// other, segment-wise ("aste/a1" overlaps "aste/a1/teams" but not "aste/a10").
func pathsOverlap(a, b string) bool {
	as, bs := splitPath(a), splitPath(b)
	n := len(as)
	if len(bs) < n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
