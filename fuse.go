// Package sqfuse serves a SquashFS image as a read-only FUSE filesystem.
//
// A Session owns the opened image and implements the filesystem
// operations on paths and handles; Mount exposes a Session through
// go-fuse, and Session.FileSystem exposes it as an absfs filesystem.
package sqfuse

import (
	"sync/atomic"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// FuseFS represents a mounted FUSE filesystem
type FuseFS struct {
	// session serves every node of the tree
	session *Session

	// opts contains mount options
	opts *MountOptions

	// server is the FUSE server instance
	server *fuse.Server

	// unmounting indicates if the filesystem is being unmounted
	unmounting atomic.Bool

	// Root node for go-fuse
	root *fuseNode
}

// fuseNode implements the fs.InodeEmbedder interface for go-fuse v2.
// Nodes carry their path in the image; the session resolves it on each
// call.
type fuseNode struct {
	fs.Inode
	fusefs *FuseFS
	path   string
}

// Ensure fuseNode implements required interfaces
var _ fs.NodeLookuper = (*fuseNode)(nil)
var _ fs.NodeOpener = (*fuseNode)(nil)
var _ fs.NodeOpendirHandler = (*fuseNode)(nil)
var _ fs.NodeGetattrer = (*fuseNode)(nil)
var _ fs.NodeReadlinker = (*fuseNode)(nil)
var _ fs.NodeCreater = (*fuseNode)(nil)
var _ fs.NodeMkdirer = (*fuseNode)(nil)
var _ fs.NodeMknoder = (*fuseNode)(nil)
var _ fs.NodeUnlinker = (*fuseNode)(nil)
var _ fs.NodeRmdirer = (*fuseNode)(nil)
var _ fs.NodeRenamer = (*fuseNode)(nil)
var _ fs.NodeSetattrer = (*fuseNode)(nil)
var _ fs.NodeSymlinker = (*fuseNode)(nil)
var _ fs.NodeLinker = (*fuseNode)(nil)

// newFuseFS creates the node tree for a session
func newFuseFS(session *Session, opts *MountOptions) *FuseFS {
	fuseFS := &FuseFS{
		session: session,
		opts:    opts,
	}

	fuseFS.root = &fuseNode{
		fusefs: fuseFS,
		path:   "/",
	}

	return fuseFS
}

// Session returns the session behind the mount
func (f *FuseFS) Session() *Session {
	return f.session
}

// Stats returns filesystem statistics
func (f *FuseFS) Stats() Stats {
	stats := f.session.Stats()
	stats.Mountpoint = f.opts.Mountpoint
	return stats
}

func (n *fuseNode) session() *Session {
	return n.fusefs.session
}

// checkUnmounting reports ENOTCONN once unmounting has started
func (n *fuseNode) checkUnmounting() syscall.Errno {
	if n.fusefs.unmounting.Load() {
		return syscall.ENOTCONN
	}
	return 0
}

// readOnly answers every namespace or attribute change.
func (n *fuseNode) readOnly(op string) syscall.Errno {
	return mapError(n.session().refuse(op, n.path))
}
