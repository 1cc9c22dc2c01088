package squashfs

import (
	"encoding/binary"
	"time"

	"emperror.dev/errors"
	"golang.org/x/sys/unix"
)

// Type is the basic inode type. Extended inodes report the same Type
// as their basic counterpart.
type Type uint16

const (
	TypeDir      Type = 1
	TypeFile     Type = 2
	TypeSymlink  Type = 3
	TypeBlockDev Type = 4
	TypeCharDev  Type = 5
	TypeFifo     Type = 6
	TypeSocket   Type = 7

	extendedTypeOffset = 7
)

const (
	// NoFragment marks a file whose tail is stored in a full block.
	NoFragment uint32 = 0xFFFFFFFF

	// NoXattr marks an inode without extended attributes.
	NoXattr uint32 = 0xFFFFFFFF
)

// Mode returns the S_IF* file type bits for t.
func (t Type) Mode() uint32 {
	switch t {
	case TypeDir:
		return unix.S_IFDIR
	case TypeFile:
		return unix.S_IFREG
	case TypeSymlink:
		return unix.S_IFLNK
	case TypeBlockDev:
		return unix.S_IFBLK
	case TypeCharDev:
		return unix.S_IFCHR
	case TypeFifo:
		return unix.S_IFIFO
	case TypeSocket:
		return unix.S_IFSOCK
	default:
		return 0
	}
}

func (t Type) String() string {
	switch t {
	case TypeDir:
		return "dir"
	case TypeFile:
		return "file"
	case TypeSymlink:
		return "symlink"
	case TypeBlockDev:
		return "blockdev"
	case TypeCharDev:
		return "chardev"
	case TypeFifo:
		return "fifo"
	case TypeSocket:
		return "socket"
	default:
		return "unknown"
	}
}

// Inode is a decoded inode. It is a plain value: copying it is cheap
// and a copy stays valid for the lifetime of the Archive it came from.
type Inode struct {
	typ      Type
	extended bool
	perm     uint16
	uidIdx   uint16
	gidIdx   uint16
	mtime    uint32
	number   uint32
	nlink    uint32
	size     uint64
	rdev     uint32
	xattr    uint32

	// Directories: listing position relative to the directory table.
	// Files: absolute position of the first data block.
	start  uint64
	offset uint16
	parent uint32

	frag       uint32
	fragOffset uint32

	// Where the block list of a file or the target of a symlink starts.
	tailBlock  int64
	tailOffset int
}

func (in *Inode) Type() Type { return in.typ }
func (in *Inode) IsDir() bool { return in.typ == TypeDir }
func (in *Inode) IsRegular() bool { return in.typ == TypeFile }
func (in *Inode) IsSymlink() bool { return in.typ == TypeSymlink }
func (in *Inode) Number() uint32 { return in.number }
func (in *Inode) Size() uint64 { return in.size }
func (in *Inode) Nlink() uint32 { return in.nlink }
func (in *Inode) Parent() uint32 { return in.parent }
func (in *Inode) HasXattrs() bool { return in.xattr != NoXattr }
func (in *Inode) Mode() uint32 { return in.typ.Mode() | uint32(in.perm&0o7777) }
func (in *Inode) ModTime() time.Time { return time.Unix(int64(in.mtime), 0) }

// blockCount is the number of entries in a file's block list.
func (in *Inode) blockCount(blockSize uint32) uint64 {
	n := in.size / uint64(blockSize)
	if in.frag == NoFragment && in.size%uint64(blockSize) != 0 {
		n++
	}
	return n
}

// inode decodes the inode referenced by ref, a (block<<16 | offset)
// pair relative to the inode table.
func (a *Archive) inode(ref uint64) (Inode, error) {
	c := a.cursor(int64(a.sb.InodeTable+ref>>16), int(ref&0xFFFF))
	le := binary.LittleEndian

	var hdr [16]byte
	if err := c.read(hdr[:]); err != nil {
		return Inode{}, errors.WithMessagef(err, "inode %#x", ref)
	}
	t := le.Uint16(hdr[0:])
	if t == 0 || t > 2*extendedTypeOffset {
		return Inode{}, errors.Wrapf(ErrCorrupt, "inode %#x has type %d", ref, t)
	}

	in := Inode{
		typ:      Type((t-1)%extendedTypeOffset + 1),
		extended: t > extendedTypeOffset,
		perm:     le.Uint16(hdr[2:]),
		uidIdx:   le.Uint16(hdr[4:]),
		gidIdx:   le.Uint16(hdr[6:]),
		mtime:    le.Uint32(hdr[8:]),
		number:   le.Uint32(hdr[12:]),
		xattr:    NoXattr,
		frag:     NoFragment,
	}

	var err error
	switch in.typ {
	case TypeDir:
		err = a.readDirInode(c, &in)
	case TypeFile:
		err = a.readFileInode(c, &in)
	case TypeSymlink:
		var b [8]byte
		if err = c.read(b[:]); err != nil {
			break
		}
		in.nlink = le.Uint32(b[0:])
		in.size = uint64(le.Uint32(b[4:]))
		in.tailBlock, in.tailOffset = c.block, c.offset
		if in.extended {
			if err = c.skip(int(in.size)); err == nil {
				in.xattr, err = c.uint32()
			}
		}
	case TypeBlockDev, TypeCharDev:
		var b [8]byte
		if err = c.read(b[:]); err != nil {
			break
		}
		in.nlink = le.Uint32(b[0:])
		in.rdev = le.Uint32(b[4:])
		if in.extended {
			in.xattr, err = c.uint32()
		}
	case TypeFifo, TypeSocket:
		if in.nlink, err = c.uint32(); err == nil && in.extended {
			in.xattr, err = c.uint32()
		}
	}
	if err != nil {
		return Inode{}, errors.WithMessagef(err, "inode %#x", ref)
	}
	return in, nil
}

func (a *Archive) readDirInode(c *metaCursor, in *Inode) error {
	le := binary.LittleEndian
	if !in.extended {
		var b [16]byte
		if err := c.read(b[:]); err != nil {
			return err
		}
		in.start = uint64(le.Uint32(b[0:]))
		in.nlink = le.Uint32(b[4:])
		in.size = uint64(le.Uint16(b[8:]))
		in.offset = le.Uint16(b[10:])
		in.parent = le.Uint32(b[12:])
		return nil
	}

	var b [24]byte
	if err := c.read(b[:]); err != nil {
		return err
	}
	in.nlink = le.Uint32(b[0:])
	in.size = uint64(le.Uint32(b[4:]))
	in.start = uint64(le.Uint32(b[8:]))
	in.parent = le.Uint32(b[12:])
	in.offset = le.Uint16(b[18:])
	in.xattr = le.Uint32(b[20:])
	return nil
}

func (a *Archive) readFileInode(c *metaCursor, in *Inode) error {
	le := binary.LittleEndian
	if !in.extended {
		var b [16]byte
		if err := c.read(b[:]); err != nil {
			return err
		}
		in.start = uint64(le.Uint32(b[0:]))
		in.frag = le.Uint32(b[4:])
		in.fragOffset = le.Uint32(b[8:])
		in.size = uint64(le.Uint32(b[12:]))
		in.nlink = 1
	} else {
		var b [40]byte
		if err := c.read(b[:]); err != nil {
			return err
		}
		in.start = le.Uint64(b[0:])
		in.size = le.Uint64(b[8:])
		in.nlink = le.Uint32(b[24:])
		in.frag = le.Uint32(b[28:])
		in.fragOffset = le.Uint32(b[32:])
		in.xattr = le.Uint32(b[36:])
	}
	in.tailBlock, in.tailOffset = c.block, c.offset
	return nil
}

// Stat is the subset of inode metadata a filesystem reports.
type Stat struct {
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	UID     uint32
	GID     uint32
	Size    uint64
	Rdev    uint32
	ModTime time.Time
	Blksize uint32
}

// Stat resolves the owner ids of in and returns its attributes.
func (a *Archive) Stat(in *Inode) (Stat, error) {
	uid, err := a.id(in.uidIdx)
	if err != nil {
		return Stat{}, err
	}
	gid, err := a.id(in.gidIdx)
	if err != nil {
		return Stat{}, err
	}
	return Stat{
		Ino:     uint64(in.number),
		Mode:    in.Mode(),
		Nlink:   in.nlink,
		UID:     uid,
		GID:     gid,
		Size:    in.size,
		Rdev:    in.rdev,
		ModTime: in.ModTime(),
		Blksize: a.sb.BlockSize,
	}, nil
}
