// Package resource manages per-element scratch directories. Every queue
// element claims one uniquely numbered directory under a common root and
// owns it until it is closed; closing removes the directory and everything
// in it. The root is wiped on process start so no stale downloads survive a
// restart.
package resource

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// ErrClosed is returned when a resource is closed twice.
var ErrClosed = errors.New("resource: already closed")

// Handler hands out numbered scratch directories under a root.
type Handler struct {
	mu     sync.Mutex
	root   string
	nextID int
}

// NewHandler wipes root and recreates it, then returns a Handler rooted
// there.
func NewHandler(root string) (*Handler, error) {
	if err := os.RemoveAll(root); err != nil {
		return nil, fmt.Errorf("resource: wipe root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("resource: create root: %w", err)
	}
	return &Handler{root: root}, nil
}

// Claim creates and returns the next numbered resource directory.
func (h *Handler) Claim() (*Resource, error) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.mu.Unlock()

	path := filepath.Join(h.root, strconv.Itoa(id))
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, fmt.Errorf("resource: claim %d: %w", id, err)
	}
	return &Resource{path: path, open: true}, nil
}

// Resource is one scratch directory, exclusively owned by its claimant from
// claim to close.
type Resource struct {
	mu   sync.Mutex
	path string
	open bool
}

// Path returns the directory path.
func (r *Resource) Path() string {
	return r.path
}

// Open reports whether the resource still owns its directory.
func (r *Resource) Open() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// Close removes the directory. A second Close returns [ErrClosed].
func (r *Resource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return ErrClosed
	}
	r.open = false
	if err := os.RemoveAll(r.path); err != nil {
		return fmt.Errorf("resource: remove %s: %w", r.path, err)
	}
	return nil
}
