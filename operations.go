package sqfuse

import (
	"context"
	"os"
	"path"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/absfs/sqfuse/internal/squashfs"
)

// dirBatch is how many entries a directory handle pulls from the
// session per refill.
const dirBatch = 128

// Lookup looks up a child node by name
func (n *fuseNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if errno := n.checkUnmounting(); errno != 0 {
		return nil, errno
	}

	fullPath := path.Join(n.path, name)
	st, err := n.session().GetAttr(fullPath)
	if err != nil {
		return nil, mapError(err)
	}

	n.fillAttr(&out.Attr, st)
	out.SetEntryTimeout(n.fusefs.opts.EntryTimeout)
	out.SetAttrTimeout(n.fusefs.opts.AttrTimeout)

	child := &fuseNode{
		fusefs: n.fusefs,
		path:   fullPath,
	}
	return n.NewInode(ctx, child, fs.StableAttr{
		Mode: st.Mode & syscall.S_IFMT,
		Ino:  st.Ino,
	}), 0
}

// Getattr gets file attributes
func (n *fuseNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if errno := n.checkUnmounting(); errno != 0 {
		return errno
	}

	st, err := n.session().GetAttr(n.path)
	if err != nil {
		return mapError(err)
	}
	n.fillAttr(&out.Attr, st)
	out.SetTimeout(n.fusefs.opts.AttrTimeout)
	return 0
}

// fillAttr fills attributes and applies the mount's owner override
func (n *fuseNode) fillAttr(attr *fuse.Attr, st squashfs.Stat) {
	fillAttr(attr, st)
	if n.fusefs.opts.UID != 0 {
		attr.Uid = n.fusefs.opts.UID
	}
	if n.fusefs.opts.GID != 0 {
		attr.Gid = n.fusefs.opts.GID
	}
}

// OpendirHandle opens a directory for listing
func (n *fuseNode) OpendirHandle(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if errno := n.checkUnmounting(); errno != 0 {
		return nil, 0, errno
	}

	h, err := n.session().OpenDir(n.path)
	if err != nil {
		return nil, 0, mapError(err)
	}
	// Listings never change, so the kernel may keep them.
	return &dirHandle{node: n, handle: h}, fuse.FOPEN_CACHE_DIR, 0
}

// dirHandle streams a listing to go-fuse in batches and remembers the
// continuation offset of the last entry handed out.
type dirHandle struct {
	node   *fuseNode
	handle HandleID

	offset  int64
	pending []DirEntry
	err     error
	done    bool
}

// Readdirent returns the next entry, or nil at the end of the listing
func (d *dirHandle) Readdirent(ctx context.Context) (*fuse.DirEntry, syscall.Errno) {
	if len(d.pending) == 0 && !d.done {
		d.refill()
	}
	if len(d.pending) == 0 {
		if d.err != nil {
			err := d.err
			d.err = nil
			return nil, mapError(err)
		}
		return nil, 0
	}

	e := d.pending[0]
	d.pending = d.pending[1:]
	d.offset = e.Offset
	return &fuse.DirEntry{
		Name: e.Name,
		Mode: e.Mode,
		Ino:  e.Ino,
		Off:  uint64(e.Offset),
	}, 0
}

func (d *dirHandle) refill() {
	d.pending = d.pending[:0]
	err := d.node.session().ReadDir(d.handle, d.offset, func(e DirEntry) bool {
		if len(d.pending) == dirBatch {
			return false
		}
		d.pending = append(d.pending, e)
		return true
	})
	if err != nil {
		d.err = err
		d.done = true
		return
	}
	d.done = len(d.pending) < dirBatch
}

// Seekdir moves the listing to a continuation offset handed out earlier
func (d *dirHandle) Seekdir(ctx context.Context, off uint64) syscall.Errno {
	d.offset = int64(off)
	d.pending = d.pending[:0]
	d.err = nil
	d.done = false
	return 0
}

// Releasedir closes the directory handle
func (d *dirHandle) Releasedir(ctx context.Context, releaseFlags uint32) {
	d.node.session().ReleaseDir(d.handle)
}

var _ fs.FileReaddirenter = (*dirHandle)(nil)
var _ fs.FileSeekdirer = (*dirHandle)(nil)
var _ fs.FileReleasedirer = (*dirHandle)(nil)

// Open opens a file
func (n *fuseNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if errno := n.checkUnmounting(); errno != 0 {
		return nil, 0, errno
	}

	h, keepCache, err := n.session().Open(n.path, int(flags))
	if err != nil {
		return nil, 0, mapError(err)
	}

	var fuseFlags uint32
	if keepCache && !n.fusefs.opts.DirectIO {
		fuseFlags |= fuse.FOPEN_KEEP_CACHE
	}
	if n.fusefs.opts.DirectIO {
		fuseFlags |= fuse.FOPEN_DIRECT_IO
	}
	return &fileHandle{node: n, handle: h}, fuseFlags, 0
}

// fileHandle represents an open file handle
type fileHandle struct {
	node   *fuseNode
	handle HandleID
}

// Read reads data from the file
func (fh *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := fh.node.session().Read(fh.handle, dest, off)
	if err != nil {
		return nil, mapError(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

// Release closes the file handle
func (fh *fileHandle) Release(ctx context.Context) syscall.Errno {
	return mapError(fh.node.session().Release(fh.handle))
}

var _ fs.FileHandle = (*fileHandle)(nil)
var _ fs.FileReader = (*fileHandle)(nil)
var _ fs.FileReleaser = (*fileHandle)(nil)

// Readlink reads the target of a symbolic link
func (n *fuseNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	if errno := n.checkUnmounting(); errno != 0 {
		return nil, errno
	}

	target, err := n.session().Readlink(n.path, 0)
	if err != nil {
		return nil, mapError(err)
	}
	return target, 0
}

// Create fails: the image is read-only
func (n *fuseNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	err := n.session().Create(path.Join(n.path, name), int(flags), os.FileMode(mode).Perm())
	return nil, nil, 0, mapError(err)
}

// Mkdir fails: the image is read-only
func (n *fuseNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, n.readOnly("mkdir")
}

// Mknod fails: the image is read-only
func (n *fuseNode) Mknod(ctx context.Context, name string, mode uint32, dev uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, n.readOnly("mknod")
}

// Unlink fails: the image is read-only
func (n *fuseNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return n.readOnly("unlink")
}

// Rmdir fails: the image is read-only
func (n *fuseNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	return n.readOnly("rmdir")
}

// Rename fails: the image is read-only
func (n *fuseNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	return n.readOnly("rename")
}

// Setattr fails: the image is read-only
func (n *fuseNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return n.readOnly("setattr")
}

// Symlink fails: the image is read-only
func (n *fuseNode) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, n.readOnly("symlink")
}

// Link fails: the image is read-only
func (n *fuseNode) Link(ctx context.Context, target fs.InodeEmbedder, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, n.readOnly("link")
}
