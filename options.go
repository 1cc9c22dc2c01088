package sqfuse

import (
	"time"

	"github.com/rs/zerolog"
)

// MountOptions configures the FUSE mount behavior.
//
// Use DefaultMountOptions() to get a set of sensible defaults, then customize
// as needed for your use case. The mount is always read-only.
type MountOptions struct {
	// Mountpoint is the directory where the filesystem will be mounted
	Mountpoint string

	// AllowOther allows other users to access the mounted filesystem
	// Requires 'user_allow_other' in /etc/fuse.conf on Linux
	AllowOther bool

	// AllowRoot allows root to access the mounted filesystem
	AllowRoot bool

	// DefaultPermissions enables kernel permission checking
	DefaultPermissions bool

	// UID/GID override file ownership; 0 keeps the owner recorded in the image
	UID uint32
	GID uint32

	// DirectIO disables the page cache for reads
	DirectIO bool

	// MaxReadahead sets maximum readahead (bytes)
	MaxReadahead uint32

	// AttrTimeout sets attribute cache timeout
	AttrTimeout time.Duration

	// EntryTimeout sets directory entry cache timeout
	EntryTimeout time.Duration

	// FSName is the name shown in mount table
	FSName string

	// Options contains additional FUSE options
	Options []string

	// Debug enables go-fuse request logging
	Debug bool

	// Logger receives mount lifecycle events; nil uses the session logger
	Logger *zerolog.Logger
}

// DefaultMountOptions returns mount options with sensible defaults.
//
// The image never changes while mounted, so attributes and entries are
// cached far longer than for a live filesystem:
//   - AttrTimeout: 1 hour
//   - EntryTimeout: 1 hour
//   - MaxReadahead: 128KB (good for sequential reads)
//   - DefaultPermissions: true (kernel enforces permissions)
func DefaultMountOptions(mountpoint string) *MountOptions {
	return &MountOptions{
		Mountpoint:         mountpoint,
		DefaultPermissions: true,
		MaxReadahead:       128 * 1024, // 128KB
		AttrTimeout:        time.Hour,
		EntryTimeout:       time.Hour,
		FSName:             "squashfuse",
	}
}
