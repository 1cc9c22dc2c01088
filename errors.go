package sqfuse

import (
	"io"
	"os"
	"syscall"

	"emperror.dev/errors"
	"github.com/hanwen/go-fuse/v2/fs"
)

// Errors returned by Session operations. Each maps to one errno; the
// cause, when there is one, stays reachable through errors.Is/As.
var (
	ErrNotFound      = errors.NewPlain("no such file or directory")
	ErrNotDir        = errors.NewPlain("not a directory")
	ErrIsDir         = errors.NewPlain("is a directory")
	ErrNotSymlink    = errors.NewPlain("not a symbolic link")
	ErrReadOnly      = errors.NewPlain("read-only file system")
	ErrNoAttribute   = errors.NewPlain("no such attribute")
	ErrRange         = errors.NewPlain("buffer too small")
	ErrAllocation    = errors.NewPlain("cannot allocate handle")
	ErrIO            = errors.NewPlain("archive read failed")
	ErrBadHandle     = errors.NewPlain("bad handle")
	ErrClosed        = errors.NewPlain("session closed")
	ErrInvalidOffset = errors.NewPlain("invalid directory offset")
)

// kindError files cause under one of the sentinels above.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() []error {
	return []error{e.kind, e.cause}
}

// classify tags err with kind unless it already carries one of the
// session sentinels.
func classify(kind, err error) error {
	if err == nil {
		return nil
	}
	if sessionError(err) {
		return err
	}
	return errors.WithStack(&kindError{kind: kind, cause: err})
}

func sessionError(err error) bool {
	for _, target := range errnos {
		if errors.Is(err, target.err) {
			return true
		}
	}
	return false
}

var errnos = []struct {
	err   error
	errno syscall.Errno
}{
	{ErrNotFound, syscall.ENOENT},
	{ErrNotDir, syscall.ENOTDIR},
	{ErrIsDir, syscall.EISDIR},
	{ErrNotSymlink, syscall.EINVAL},
	{ErrReadOnly, syscall.EROFS},
	{ErrNoAttribute, fs.ENOATTR},
	{ErrRange, syscall.ERANGE},
	{ErrAllocation, syscall.ENOMEM},
	{ErrIO, syscall.EIO},
	{ErrBadHandle, syscall.EBADF},
	{ErrClosed, syscall.ENOTCONN},
	{ErrInvalidOffset, syscall.EINVAL},
}

// mapError translates session and OS errors to FUSE error codes
func mapError(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	for _, target := range errnos {
		if errors.Is(err, target.err) {
			return target.errno
		}
	}

	switch {
	case errors.Is(err, os.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, os.ErrExist):
		return syscall.EEXIST
	case errors.Is(err, os.ErrPermission):
		return syscall.EACCES
	case errors.Is(err, os.ErrClosed):
		return syscall.EBADF
	case errors.Is(err, os.ErrInvalid):
		return syscall.EINVAL
	case errors.Is(err, io.EOF):
		return 0 // EOF is not an error for FUSE
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	return syscall.EIO
}
