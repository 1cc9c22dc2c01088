package sqfuse

import (
	"context"
	"syscall"

	"emperror.dev/errors"
	"github.com/hanwen/go-fuse/v2/fs"

	"github.com/absfs/sqfuse/internal/squashfs"
)

// Readlink returns the target of the symlink at p. A positive capacity
// is the size of the caller's buffer including its terminating NUL, so
// at most capacity-1 bytes are returned. capacity <= 0 returns the whole
// target.
func (s *Session) Readlink(p string, capacity int) ([]byte, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer s.leave()

	a, in, err := s.resolve(p)
	if err != nil {
		return nil, s.fail("readlink", p, err)
	}
	if !in.IsSymlink() {
		return nil, s.fail("readlink", p, errors.WithStack(ErrNotSymlink))
	}
	target, err := a.Readlink(&in)
	if err != nil {
		return nil, s.fail("readlink", p, classify(ErrIO, err))
	}
	if capacity > 0 && len(target) > capacity-1 {
		target = target[:capacity-1]
	}
	return target, nil
}

// Listxattr writes the NUL-terminated names of the attributes of p into
// dest and returns their total size. With an empty dest it only reports
// the size; a dest that is too small fails with ErrRange.
func (s *Session) Listxattr(p string, dest []byte) (int, error) {
	if err := s.enter(); err != nil {
		return 0, err
	}
	defer s.leave()

	a, in, err := s.resolve(p)
	if err != nil {
		return 0, s.fail("listxattr", p, err)
	}
	names, err := a.ListXattr(&in)
	if err != nil {
		return 0, s.fail("listxattr", p, classify(ErrIO, err))
	}

	size := 0
	for _, name := range names {
		size += len(name) + 1
	}
	if len(dest) == 0 {
		return size, nil
	}
	if len(dest) < size {
		return size, s.fail("listxattr", p, errors.Wrapf(ErrRange, "need %d bytes, have %d", size, len(dest)))
	}

	off := 0
	for _, name := range names {
		off += copy(dest[off:], name)
		dest[off] = 0
		off++
	}
	return off, nil
}

// Getxattr copies the value of the named attribute of p into dest and
// returns its size. The size protocol is that of Listxattr. An
// attribute with an empty value is present and has size 0.
func (s *Session) Getxattr(p, name string, dest []byte) (int, error) {
	if err := s.enter(); err != nil {
		return 0, err
	}
	defer s.leave()

	a, in, err := s.resolve(p)
	if err != nil {
		return 0, s.fail("getxattr", p, err)
	}
	value, err := a.GetXattr(&in, name)
	switch {
	case errors.Is(err, squashfs.ErrNoXattr):
		return 0, s.fail("getxattr", p, classify(ErrNoAttribute, err))
	case err != nil:
		return 0, s.fail("getxattr", p, classify(ErrIO, err))
	}

	if len(dest) == 0 {
		return len(value), nil
	}
	if len(dest) < len(value) {
		return len(value), s.fail("getxattr", p, errors.Wrapf(ErrRange, "%s: need %d bytes, have %d", name, len(value), len(dest)))
	}
	return copy(dest, value), nil
}

// Getxattr retrieves an extended attribute value
func (n *fuseNode) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	size, err := n.session().Getxattr(n.path, attr, dest)
	return uint32(size), mapError(err)
}

// Listxattr lists all extended attribute names
func (n *fuseNode) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	size, err := n.session().Listxattr(n.path, dest)
	return uint32(size), mapError(err)
}

// Setxattr fails: attributes are part of the image.
func (n *fuseNode) Setxattr(ctx context.Context, attr string, data []byte, flags uint32) syscall.Errno {
	return n.readOnly("setxattr")
}

// Removexattr fails: attributes are part of the image.
func (n *fuseNode) Removexattr(ctx context.Context, attr string) syscall.Errno {
	return n.readOnly("removexattr")
}

// Ensure fuseNode implements xattr interfaces
var _ fs.NodeGetxattrer = (*fuseNode)(nil)
var _ fs.NodeSetxattrer = (*fuseNode)(nil)
var _ fs.NodeListxattrer = (*fuseNode)(nil)
var _ fs.NodeRemovexattrer = (*fuseNode)(nil)
