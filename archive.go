package sqfuse

import (
	"sync"

	"github.com/absfs/sqfuse/internal/squashfs"
)

// Archive is the read side of an opened image that a Session serves.
// *squashfs.Archive satisfies it through NewArchive.
type Archive interface {
	Root() (squashfs.Inode, error)
	Lookup(root *squashfs.Inode, path string) (squashfs.Inode, error)
	Stat(in *squashfs.Inode) (squashfs.Stat, error)

	// OpenDir starts iterating the directory in at a continuation offset
	// taken from an earlier DirEntry, or 0.
	OpenDir(in *squashfs.Inode, offset int64) (DirIterator, error)

	ReadAt(in *squashfs.Inode, p []byte, off int64) (int, error)
	Readlink(in *squashfs.Inode) ([]byte, error)
	ListXattr(in *squashfs.Inode) ([]string, error)
	GetXattr(in *squashfs.Inode, name string) ([]byte, error)

	Info() squashfs.Info
	Close() error
}

// DirIterator walks one directory listing.
type DirIterator interface {
	Next(e *squashfs.DirEntry) bool
	Err() error
}

// squashArchive adapts *squashfs.Archive to Archive.
type squashArchive struct {
	*squashfs.Archive
}

// NewArchive wraps an opened squashfs image.
func NewArchive(a *squashfs.Archive) Archive {
	return squashArchive{a}
}

func (a squashArchive) OpenDir(in *squashfs.Inode, offset int64) (DirIterator, error) {
	d, err := a.Archive.OpenDir(in, offset)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// lockedArchive runs every call of an Archive that is not safe for
// concurrent use under one mutex. Iterators share the same lock.
type lockedArchive struct {
	mu sync.Mutex
	a  Archive
}

func serialize(a Archive) Archive {
	if _, ok := a.(*lockedArchive); ok {
		return a
	}
	return &lockedArchive{a: a}
}

func (l *lockedArchive) Root() (squashfs.Inode, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Root()
}

func (l *lockedArchive) Lookup(root *squashfs.Inode, path string) (squashfs.Inode, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Lookup(root, path)
}

func (l *lockedArchive) Stat(in *squashfs.Inode) (squashfs.Stat, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Stat(in)
}

func (l *lockedArchive) OpenDir(in *squashfs.Inode, offset int64) (DirIterator, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, err := l.a.OpenDir(in, offset)
	if err != nil {
		return nil, err
	}
	return &lockedDir{mu: &l.mu, d: d}, nil
}

func (l *lockedArchive) ReadAt(in *squashfs.Inode, p []byte, off int64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.ReadAt(in, p, off)
}

func (l *lockedArchive) Readlink(in *squashfs.Inode) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Readlink(in)
}

func (l *lockedArchive) ListXattr(in *squashfs.Inode) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.ListXattr(in)
}

func (l *lockedArchive) GetXattr(in *squashfs.Inode, name string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.GetXattr(in, name)
}

func (l *lockedArchive) Info() squashfs.Info {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Info()
}

func (l *lockedArchive) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Close()
}

type lockedDir struct {
	mu *sync.Mutex
	d  DirIterator
}

func (d *lockedDir) Next(e *squashfs.DirEntry) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.d.Next(e)
}

func (d *lockedDir) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.d.Err()
}
