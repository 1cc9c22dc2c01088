package sqfuse

import (
	"context"
	"os"
	"syscall"

	"emperror.dev/errors"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"
)

// Access checks whether a caller with the given uid and gid may access
// p. mask is a bitwise OR of unix.R_OK, unix.W_OK and unix.X_OK, or
// unix.F_OK to test existence.
//
// Write access is never granted. For read and execute the owner, group
// and other permission bits of the entry are checked in that order;
// uid 0 may read anything and execute anything with an execute bit.
func (s *Session) Access(p string, mask, uid, gid uint32) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	if mask&unix.W_OK != 0 {
		return s.fail("access", p, errors.Wrapf(ErrReadOnly, "write access to %s", p))
	}

	a, in, err := s.resolve(p)
	if err != nil {
		return s.fail("access", p, err)
	}
	if mask == unix.F_OK {
		return nil
	}
	st, err := a.Stat(&in)
	if err != nil {
		return s.fail("access", p, classify(ErrIO, err))
	}

	perm := st.Mode & 0o777
	if uid == 0 {
		if mask&unix.X_OK != 0 && perm&0o111 == 0 {
			return s.fail("access", p, errors.WithStack(os.ErrPermission))
		}
		return nil
	}

	var granted uint32
	switch {
	case uid == st.UID:
		granted = (perm >> 6) & 0x7
	case gid == st.GID:
		granted = (perm >> 3) & 0x7
	default:
		granted = perm & 0x7
	}
	if mask&^granted&(unix.R_OK|unix.X_OK) != 0 {
		return s.fail("access", p, errors.WithStack(os.ErrPermission))
	}
	return nil
}

// Access checks if the caller has permission to access the file/directory.
//
// If DefaultPermissions mount option is set, the kernel performs permission
// checks and only write access is refused here.
func (n *fuseNode) Access(ctx context.Context, mask uint32) syscall.Errno {
	if errno := n.checkUnmounting(); errno != 0 {
		return errno
	}

	if n.fusefs.opts.DefaultPermissions && mask&unix.W_OK == 0 {
		return 0
	}

	var uid, gid uint32
	if caller, ok := fuse.FromContext(ctx); ok {
		uid, gid = caller.Uid, caller.Gid
	} else if mask&unix.W_OK == 0 {
		// No caller info, deny access
		return syscall.EACCES
	}
	return mapError(n.session().Access(n.path, mask, uid, gid))
}

// Ensure fuseNode implements Access interface
var _ fs.NodeAccesser = (*fuseNode)(nil)
