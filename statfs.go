package sqfuse

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// nameMax is the longest entry name a squashfs directory can hold.
const nameMax = 256

// FSInfo holds filesystem-level statistics. An image has no free space
// and no free inodes.
type FSInfo struct {
	Blocks    uint64
	Files     uint64
	BlockSize uint32
	NameMax   uint32
}

// Statfs reports the size of the image in blocks and its inode count.
func (s *Session) Statfs() (FSInfo, error) {
	if err := s.enter(); err != nil {
		return FSInfo{}, err
	}
	defer s.leave()

	a, err := s.archiveHandle()
	if err != nil {
		return FSInfo{}, s.fail("statfs", "", err)
	}
	info := a.Info()
	bs := uint64(info.BlockSize)
	return FSInfo{
		Blocks:    (info.BytesUsed + bs - 1) / bs,
		Files:     uint64(info.Inodes),
		BlockSize: info.BlockSize,
		NameMax:   nameMax,
	}, nil
}

// Statfs returns filesystem statistics
func (n *fuseNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	if errno := n.checkUnmounting(); errno != 0 {
		return errno
	}

	info, err := n.session().Statfs()
	if err != nil {
		return mapError(err)
	}

	out.Blocks = info.Blocks
	out.Bfree = 0
	out.Bavail = 0
	out.Files = info.Files
	out.Ffree = 0
	out.Bsize = info.BlockSize
	out.NameLen = info.NameMax
	out.Frsize = info.BlockSize // Fragment size same as block size
	return 0
}

// Ensure fuseNode implements Statfs interface
var _ fs.NodeStatfser = (*fuseNode)(nil)
