package sqfuse

import (
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/absfs/sqfuse/internal/squashfs"
)

// GetAttr returns the attributes of the entity at p. Every failure,
// including archive read errors, is reported as ErrNotFound.
func (s *Session) GetAttr(p string) (squashfs.Stat, error) {
	if err := s.enter(); err != nil {
		return squashfs.Stat{}, err
	}
	defer s.leave()

	a, in, err := s.resolve(p)
	if err != nil {
		return squashfs.Stat{}, s.fail("getattr", p, classifyAs(ErrNotFound, err))
	}
	st, err := a.Stat(&in)
	if err != nil {
		return squashfs.Stat{}, s.fail("getattr", p, classifyAs(ErrNotFound, err))
	}
	return st, nil
}

// classifyAs files err under kind even when it already carries another
// session sentinel.
func classifyAs(kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, cause: err}
}

// fillAttr fills a FUSE Attr structure from archive attributes
func fillAttr(attr *fuse.Attr, st squashfs.Stat) {
	attr.Ino = st.Ino
	attr.Size = st.Size
	attr.Mode = st.Mode
	attr.Nlink = st.Nlink
	attr.Owner = fuse.Owner{Uid: st.UID, Gid: st.GID}
	attr.Rdev = st.Rdev

	t := uint64(st.ModTime.Unix())
	attr.Mtime, attr.Atime, attr.Ctime = t, t, t

	attr.Blocks = (attr.Size + 511) / 512
	attr.Blksize = st.Blksize
}
