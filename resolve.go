package sqfuse

import (
	"path"

	"emperror.dev/errors"

	"github.com/absfs/sqfuse/internal/squashfs"
)

// archiveHandle returns the archive of an operation that has no path.
// The caller must have entered the session.
func (s *Session) archiveHandle() (Archive, error) {
	if s.archive == nil {
		return nil, errors.WithStack(ErrClosed)
	}
	return s.archive, nil
}

// resolve maps p to the entity it names. Paths are cleaned lexically
// and resolved from the session root; symlinks along the way are not
// followed. The caller must have entered the session.
func (s *Session) resolve(p string) (Archive, squashfs.Inode, error) {
	a, err := s.archiveHandle()
	if err != nil {
		return nil, squashfs.Inode{}, err
	}

	root := s.root
	in, err := a.Lookup(&root, path.Clean("/"+p))
	switch {
	case err == nil:
		return a, in, nil
	case errors.Is(err, squashfs.ErrNotFound):
		return nil, squashfs.Inode{}, classify(ErrNotFound, err)
	default:
		return nil, squashfs.Inode{}, classify(ErrIO, err)
	}
}
