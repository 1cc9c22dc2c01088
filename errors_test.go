package sqfuse

import (
	"io"
	"os"
	"syscall"
	"testing"

	"emperror.dev/errors"
	"github.com/hanwen/go-fuse/v2/fs"
)

func TestMapError(t *testing.T) {
	cause := errors.New("metadata block 7 is corrupt")

	tests := []struct {
		name     string
		err      error
		expected syscall.Errno
	}{
		{"nil error", nil, 0},
		{"not found", ErrNotFound, syscall.ENOENT},
		{"not a directory", ErrNotDir, syscall.ENOTDIR},
		{"is a directory", ErrIsDir, syscall.EISDIR},
		{"not a symlink", ErrNotSymlink, syscall.EINVAL},
		{"read-only", ErrReadOnly, syscall.EROFS},
		{"no attribute", ErrNoAttribute, fs.ENOATTR},
		{"range", ErrRange, syscall.ERANGE},
		{"allocation", ErrAllocation, syscall.ENOMEM},
		{"io", ErrIO, syscall.EIO},
		{"bad handle", ErrBadHandle, syscall.EBADF},
		{"closed", ErrClosed, syscall.ENOTCONN},
		{"invalid offset", ErrInvalidOffset, syscall.EINVAL},
		{"wrapped sentinel", errors.Wrap(ErrNotFound, "/docs/missing"), syscall.ENOENT},
		{"classified cause", classify(ErrIO, cause), syscall.EIO},
		{"classified os error", classify(ErrIO, os.ErrNotExist), syscall.EIO},
		{"os.ErrNotExist", os.ErrNotExist, syscall.ENOENT},
		{"os.ErrExist", os.ErrExist, syscall.EEXIST},
		{"os.ErrPermission", os.ErrPermission, syscall.EACCES},
		{"os.ErrClosed", os.ErrClosed, syscall.EBADF},
		{"os.ErrInvalid", os.ErrInvalid, syscall.EINVAL},
		{"io.EOF", io.EOF, 0},
		{"syscall.Errno directly", syscall.ENOSPC, syscall.ENOSPC},
		{"unknown error", cause, syscall.EIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := mapError(tt.err)
			if result != tt.expected {
				t.Errorf("mapError(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	cause := errors.New("short read")

	err := classify(ErrIO, cause)
	if !errors.Is(err, ErrIO) {
		t.Errorf("errors.Is(%v, ErrIO) = false, want true", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(%v, cause) = false, want true", err)
	}

	// An error that already carries a kind keeps it.
	notFound := errors.Wrap(ErrNotFound, "/x")
	if got := classify(ErrIO, notFound); got != notFound {
		t.Errorf("classify(ErrIO, %v) = %v, want unchanged", notFound, got)
	}

	if got := classify(ErrIO, nil); got != nil {
		t.Errorf("classify(ErrIO, nil) = %v, want nil", got)
	}
}
