package squashfs

import (
	"encoding/binary"
	"path"
	"strings"

	"emperror.dev/errors"
)

const (
	dirHeaderSize = 12
	dirEntrySize  = 8
	dirMaxEntries = 256

	// Continuation offsets count listing bytes from 3, matching the
	// on-disk file_size of a directory. 0 always means "from the start".
	dirOffsetBase = 3
)

// DirEntry is one name in a directory listing.
type DirEntry struct {
	Name   string
	Type   Type
	Number uint32

	// Offset resumes a listing right after this entry.
	Offset int64

	ref uint64
}

// Mode returns the S_IF* type bits of the entry.
func (e *DirEntry) Mode() uint32 { return e.Type.Mode() }

// Dir iterates a directory listing in on-disk (name-sorted) order.
type Dir struct {
	a         *Archive
	c         *metaCursor
	remaining int64
	pos       int64
	count     int
	start     uint32
	base      uint32
	err       error
}

// OpenDir starts a listing of in at a continuation offset previously
// returned in DirEntry.Offset, or at 0 for the beginning. An offset
// that does not fall right after an entry fails with ErrInvalidOffset.
func (a *Archive) OpenDir(in *Inode, offset int64) (*Dir, error) {
	if !in.IsDir() {
		return nil, errors.WithStack(ErrNotDir)
	}

	d := &Dir{
		a:   a,
		c:   a.cursor(int64(a.sb.DirTable+in.start), int(in.offset)),
		pos: dirOffsetBase,
	}
	if in.size > dirOffsetBase {
		d.remaining = int64(in.size) - dirOffsetBase
	}
	if offset == 0 {
		return d, nil
	}

	var e DirEntry
	for d.pos < offset && d.Next(&e) {
	}
	if d.err != nil {
		return nil, d.err
	}
	if d.pos != offset {
		return nil, errors.Wrapf(ErrInvalidOffset, "offset %d", offset)
	}
	return d, nil
}

// Next fills e with the next entry. It returns false at the end of the
// listing or on error; Err distinguishes the two.
func (d *Dir) Next(e *DirEntry) bool {
	if d.err != nil {
		return false
	}
	if d.remaining <= 0 {
		if d.count > 0 {
			d.err = errors.Wrap(ErrCorrupt, "directory listing ends inside a header run")
		}
		return false
	}

	le := binary.LittleEndian
	if d.count == 0 {
		var hdr [dirHeaderSize]byte
		if err := d.c.read(hdr[:]); err != nil {
			d.err = err
			return false
		}
		d.count = int(le.Uint32(hdr[0:])) + 1
		d.start = le.Uint32(hdr[4:])
		d.base = le.Uint32(hdr[8:])
		if d.count > dirMaxEntries {
			d.err = errors.Wrapf(ErrCorrupt, "directory header with %d entries", d.count)
			return false
		}
		d.remaining -= dirHeaderSize
		d.pos += dirHeaderSize
	}

	var raw [dirEntrySize]byte
	if err := d.c.read(raw[:]); err != nil {
		d.err = err
		return false
	}
	name := make([]byte, int(le.Uint16(raw[6:]))+1)
	if err := d.c.read(name); err != nil {
		d.err = err
		return false
	}

	t := le.Uint16(raw[4:])
	if t == 0 || t > 2*extendedTypeOffset {
		d.err = errors.Wrapf(ErrCorrupt, "directory entry %q has type %d", name, t)
		return false
	}

	n := int64(dirEntrySize + len(name))
	d.remaining -= n
	d.pos += n
	d.count--

	e.Name = string(name)
	e.Type = Type((t-1)%extendedTypeOffset + 1)
	e.Number = uint32(int64(d.base) + int64(int16(le.Uint16(raw[2:]))))
	e.Offset = d.pos
	e.ref = uint64(d.start)<<16 | uint64(le.Uint16(raw[0:]))
	return true
}

// Err returns the error that stopped iteration, if any.
func (d *Dir) Err() error {
	return d.err
}

// entryInode loads the inode an entry refers to.
func (a *Archive) entryInode(e *DirEntry) (Inode, error) {
	return a.inode(e.ref)
}

// Lookup resolves p relative to root. Paths are cleaned lexically, so
// ".." never climbs above root.
func (a *Archive) Lookup(root *Inode, p string) (Inode, error) {
	cur := *root
	for _, name := range strings.Split(path.Clean("/"+p), "/") {
		if name == "" {
			continue
		}
		if !cur.IsDir() {
			return Inode{}, errors.Wrapf(ErrNotFound, "%s", p)
		}
		next, err := a.lookupName(&cur, name)
		if err != nil {
			return Inode{}, errors.WithMessagef(err, "%s", p)
		}
		cur = next
	}
	return cur, nil
}

func (a *Archive) lookupName(dir *Inode, name string) (Inode, error) {
	d, err := a.OpenDir(dir, 0)
	if err != nil {
		return Inode{}, err
	}
	var e DirEntry
	for d.Next(&e) {
		switch {
		case e.Name == name:
			return a.entryInode(&e)
		case e.Name > name:
			return Inode{}, errors.WithStack(ErrNotFound)
		}
	}
	if err := d.Err(); err != nil {
		return Inode{}, err
	}
	return Inode{}, errors.WithStack(ErrNotFound)
}
