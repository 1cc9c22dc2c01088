package squashfs

import (
	"emperror.dev/errors"
)

var (
	// ErrBadMagic is returned when the superblock does not start with "hsqs".
	ErrBadMagic = errors.NewPlain("squashfs: bad magic")

	// ErrUnsupportedVersion is returned for images other than squashfs 4.0.
	ErrUnsupportedVersion = errors.NewPlain("squashfs: unsupported version")

	// ErrUnsupportedCompression is returned when the image uses a
	// compressor this package cannot decode (LZO, or an unknown id).
	ErrUnsupportedCompression = errors.NewPlain("squashfs: unsupported compression")

	// ErrCorrupt is returned when on-disk structures are inconsistent.
	ErrCorrupt = errors.NewPlain("squashfs: corrupt image")

	ErrNotFound      = errors.NewPlain("squashfs: not found")
	ErrNotDir        = errors.NewPlain("squashfs: not a directory")
	ErrNotRegular    = errors.NewPlain("squashfs: not a regular file")
	ErrNotSymlink    = errors.NewPlain("squashfs: not a symlink")
	ErrNoXattr       = errors.NewPlain("squashfs: no such attribute")
	ErrInvalidOffset = errors.NewPlain("squashfs: invalid directory offset")
)
