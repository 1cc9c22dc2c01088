package sqfuse

import (
	"os"
	"path/filepath"

	"emperror.dev/errors"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Mount serves session at the mountpoint named in opts. The mount is
// read-only whatever opts.Options says. The session is destroyed by
// Unmount.
func Mount(session *Session, opts *MountOptions) (*FuseFS, error) {
	if session == nil {
		return nil, errors.New("session cannot be nil")
	}
	if opts == nil {
		return nil, errors.New("mount options cannot be nil")
	}
	if opts.Mountpoint == "" {
		return nil, errors.New("mountpoint cannot be empty")
	}

	// Create mountpoint if it doesn't exist
	if err := os.MkdirAll(opts.Mountpoint, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create mountpoint")
	}

	// Check if mountpoint is empty
	entries, err := os.ReadDir(opts.Mountpoint)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read mountpoint")
	}
	if len(entries) > 0 {
		return nil, errors.Errorf("mountpoint %s is not empty", opts.Mountpoint)
	}

	// The root node needs the image's own inode number.
	st, err := session.GetAttr("/")
	if err != nil {
		return nil, errors.WithMessage(err, "failed to stat image root")
	}

	fuseFS := newFuseFS(session, opts)

	fuseOpts := &fs.Options{
		MountOptions: fuse.MountOptions{
			Name:          opts.FSName,
			FsName:        opts.FSName,
			DirectMount:   false,
			Debug:         opts.Debug,
			AllowOther:    opts.AllowOther,
			MaxReadAhead:  int(opts.MaxReadahead),
			Options:       append([]string{"ro"}, opts.Options...),
			MaxBackground: 12,
		},
		AttrTimeout:    &opts.AttrTimeout,
		EntryTimeout:   &opts.EntryTimeout,
		RootStableAttr: &fs.StableAttr{Ino: st.Ino, Mode: unix.S_IFDIR},
	}

	if opts.DefaultPermissions {
		fuseOpts.MountOptions.Options = append(fuseOpts.MountOptions.Options, "default_permissions")
	}
	if opts.AllowRoot {
		fuseOpts.MountOptions.Options = append(fuseOpts.MountOptions.Options, "allow_root")
	}

	server, err := fs.Mount(opts.Mountpoint, fuseFS.root, fuseOpts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to mount filesystem")
	}
	fuseFS.server = server

	fuseFS.logger().Info().
		Str("mountpoint", opts.Mountpoint).
		Str("fsname", opts.FSName).
		Bool("allowOther", opts.AllowOther).
		Msg("mounted")
	return fuseFS, nil
}

// Unmount unmounts the filesystem and destroys its session
func (f *FuseFS) Unmount() error {
	// Signal all operations to complete
	f.unmounting.Store(true)

	var err error
	if f.server != nil {
		err = errors.WithStack(f.server.Unmount())
	}
	err = errors.Combine(err, f.session.Destroy())

	ev := f.logger().Info().Str("mountpoint", f.opts.Mountpoint)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("unmounted")
	return err
}

func (f *FuseFS) logger() *zerolog.Logger {
	if f.opts.Logger != nil {
		return f.opts.Logger
	}
	return f.session.Logger()
}

// Wait blocks until the filesystem is unmounted
func (f *FuseFS) Wait() error {
	if f.server == nil {
		return errors.New("filesystem not mounted")
	}

	f.server.Wait()
	return nil
}

// MountAndWait mounts a session and waits for it to be unmounted
func MountAndWait(session *Session, opts *MountOptions) error {
	fuseFS, err := Mount(session, opts)
	if err != nil {
		return err
	}

	return fuseFS.Wait()
}

// IsMounted checks if a directory is a mountpoint
func IsMounted(path string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, errors.WithStack(err)
	}

	var stat unix.Stat_t
	if err := unix.Stat(absPath, &stat); err != nil {
		return false, errors.WithStack(err)
	}

	var parentStat unix.Stat_t
	if err := unix.Stat(filepath.Dir(absPath), &parentStat); err != nil {
		return false, errors.WithStack(err)
	}

	// If device IDs differ, it's a mount point
	return stat.Dev != parentStat.Dev, nil
}
