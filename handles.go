package sqfuse

import (
	"sync"
	"sync/atomic"

	"emperror.dev/errors"

	"github.com/absfs/sqfuse/internal/squashfs"
)

// HandleID identifies an open directory or file. IDs are never reused
// within a session, so a stale ID cannot reach another open's state.
type HandleID uint64

type handleKind uint8

const (
	kindDir handleKind = iota + 1
	kindFile
)

func (k handleKind) String() string {
	switch k {
	case kindDir:
		return "directory"
	case kindFile:
		return "file"
	}
	return "unknown"
}

// HandleTracker manages open handles and their lifecycle.
//
// It provides:
//   - Unique handle ID allocation
//   - Typed storage of the entity each handle refers to
//   - An optional cap on concurrently open handles
//
// All methods are thread-safe and can be called concurrently.
type HandleTracker struct {
	mu         sync.RWMutex
	handles    map[HandleID]*handleEntry
	nextHandle atomic.Uint64
	limit      int
}

// handleEntry represents an open handle
type handleEntry struct {
	inode squashfs.Inode
	kind  handleKind
	path  string
}

// NewHandleTracker creates a tracker that allows at most limit open
// handles. limit <= 0 means no limit.
func NewHandleTracker(limit int) *HandleTracker {
	return &HandleTracker{
		handles: make(map[HandleID]*handleEntry),
		limit:   limit,
	}
}

// Add allocates a new handle for in.
func (ht *HandleTracker) Add(in squashfs.Inode, kind handleKind, path string) (HandleID, error) {
	ht.mu.Lock()
	defer ht.mu.Unlock()

	if ht.limit > 0 && len(ht.handles) >= ht.limit {
		return 0, errors.Wrapf(ErrAllocation, "%d handles open", len(ht.handles))
	}

	fh := HandleID(ht.nextHandle.Add(1))
	ht.handles[fh] = &handleEntry{
		inode: in,
		kind:  kind,
		path:  path,
	}
	return fh, nil
}

// Get returns the entity behind a handle of the given kind and the path
// it was opened under.
func (ht *HandleTracker) Get(fh HandleID, kind handleKind) (squashfs.Inode, string, error) {
	ht.mu.RLock()
	defer ht.mu.RUnlock()

	entry := ht.handles[fh]
	if entry == nil || entry.kind != kind {
		return squashfs.Inode{}, "", errors.Wrapf(ErrBadHandle, "%s handle %d", kind, fh)
	}
	return entry.inode, entry.path, nil
}

// Release removes a handle. Releasing an unknown or already released
// handle, or one of the wrong kind, fails with ErrBadHandle.
func (ht *HandleTracker) Release(fh HandleID, kind handleKind) error {
	ht.mu.Lock()
	defer ht.mu.Unlock()

	entry := ht.handles[fh]
	if entry == nil || entry.kind != kind {
		return errors.Wrapf(ErrBadHandle, "release %s handle %d", kind, fh)
	}
	delete(ht.handles, fh)
	return nil
}

// CloseAll drops every open handle and reports how many there were.
func (ht *HandleTracker) CloseAll() int {
	ht.mu.Lock()
	defer ht.mu.Unlock()

	n := len(ht.handles)
	clear(ht.handles)
	return n
}

// Count returns the number of open handles
func (ht *HandleTracker) Count() int {
	ht.mu.RLock()
	defer ht.mu.RUnlock()

	return len(ht.handles)
}
