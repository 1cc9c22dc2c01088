package squashfs

import (
	"encoding/binary"
	"io"
	"time"

	"emperror.dev/errors"
)

const (
	// Magic is the little-endian superblock magic, "hsqs" on disk.
	Magic uint32 = 0x73717368

	// SuperblockSize is the on-disk size of a version 4 superblock.
	SuperblockSize = 96

	// NoTable marks an absent optional table in the superblock.
	NoTable uint64 = 0xFFFFFFFFFFFFFFFF

	// MetadataSize is the uncompressed capacity of one metadata block.
	MetadataSize = 8192

	minBlockLog = 12
	maxBlockLog = 20
)

// Superblock flags.
const (
	FlagUncompressedInodes    uint16 = 0x0001
	FlagUncompressedData      uint16 = 0x0002
	FlagUncompressedFragments uint16 = 0x0008
	FlagNoFragments           uint16 = 0x0010
	FlagAlwaysFragments       uint16 = 0x0020
	FlagDuplicates            uint16 = 0x0040
	FlagExportable            uint16 = 0x0080
	FlagUncompressedXattrs    uint16 = 0x0100
	FlagNoXattrs              uint16 = 0x0200
	FlagCompressorOptions     uint16 = 0x0400
	FlagUncompressedIDs       uint16 = 0x0800
)

// Superblock is the fixed header at the start of every image. Table
// positions are relative to the start of the image, not the file.
type Superblock struct {
	Magic        uint32
	InodeCount   uint32
	ModTime      uint32
	BlockSize    uint32
	FragCount    uint32
	Compression  Compression
	BlockLog     uint16
	Flags        uint16
	IDCount      uint16
	VersionMajor uint16
	VersionMinor uint16
	RootInode    uint64
	BytesUsed    uint64
	IDTable      uint64
	XattrTable   uint64
	InodeTable   uint64
	DirTable     uint64
	FragTable    uint64
	ExportTable  uint64
}

// UnmarshalBinary decodes a superblock without validating it.
func (sb *Superblock) UnmarshalBinary(b []byte) error {
	if len(b) < SuperblockSize {
		return errors.WithStack(io.ErrUnexpectedEOF)
	}
	le := binary.LittleEndian
	sb.Magic = le.Uint32(b[0:])
	sb.InodeCount = le.Uint32(b[4:])
	sb.ModTime = le.Uint32(b[8:])
	sb.BlockSize = le.Uint32(b[12:])
	sb.FragCount = le.Uint32(b[16:])
	sb.Compression = Compression(le.Uint16(b[20:]))
	sb.BlockLog = le.Uint16(b[22:])
	sb.Flags = le.Uint16(b[24:])
	sb.IDCount = le.Uint16(b[26:])
	sb.VersionMajor = le.Uint16(b[28:])
	sb.VersionMinor = le.Uint16(b[30:])
	sb.RootInode = le.Uint64(b[32:])
	sb.BytesUsed = le.Uint64(b[40:])
	sb.IDTable = le.Uint64(b[48:])
	sb.XattrTable = le.Uint64(b[56:])
	sb.InodeTable = le.Uint64(b[64:])
	sb.DirTable = le.Uint64(b[72:])
	sb.FragTable = le.Uint64(b[80:])
	sb.ExportTable = le.Uint64(b[88:])
	return nil
}

// MarshalBinary encodes the superblock in its on-disk layout.
func (sb *Superblock) MarshalBinary() ([]byte, error) {
	b := make([]byte, SuperblockSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:], sb.Magic)
	le.PutUint32(b[4:], sb.InodeCount)
	le.PutUint32(b[8:], sb.ModTime)
	le.PutUint32(b[12:], sb.BlockSize)
	le.PutUint32(b[16:], sb.FragCount)
	le.PutUint16(b[20:], uint16(sb.Compression))
	le.PutUint16(b[22:], sb.BlockLog)
	le.PutUint16(b[24:], sb.Flags)
	le.PutUint16(b[26:], sb.IDCount)
	le.PutUint16(b[28:], sb.VersionMajor)
	le.PutUint16(b[30:], sb.VersionMinor)
	le.PutUint64(b[32:], sb.RootInode)
	le.PutUint64(b[40:], sb.BytesUsed)
	le.PutUint64(b[48:], sb.IDTable)
	le.PutUint64(b[56:], sb.XattrTable)
	le.PutUint64(b[64:], sb.InodeTable)
	le.PutUint64(b[72:], sb.DirTable)
	le.PutUint64(b[80:], sb.FragTable)
	le.PutUint64(b[88:], sb.ExportTable)
	return b, nil
}

// Validate checks the fields a reader depends on.
func (sb *Superblock) Validate() error {
	if sb.Magic != Magic {
		return errors.WithStack(ErrBadMagic)
	}
	if sb.VersionMajor != 4 || sb.VersionMinor != 0 {
		return errors.Wrapf(ErrUnsupportedVersion, "version %d.%d", sb.VersionMajor, sb.VersionMinor)
	}
	if sb.BlockLog < minBlockLog || sb.BlockLog > maxBlockLog || sb.BlockSize != 1<<sb.BlockLog {
		return errors.Wrapf(ErrCorrupt, "block size %d with log %d", sb.BlockSize, sb.BlockLog)
	}
	if sb.InodeTable >= sb.BytesUsed || sb.DirTable >= sb.BytesUsed || sb.InodeTable > sb.DirTable {
		return errors.Wrap(ErrCorrupt, "table positions out of range")
	}
	if sb.IDCount == 0 {
		return errors.Wrap(ErrCorrupt, "empty id table")
	}
	return nil
}

// Time returns the image modification time.
func (sb *Superblock) Time() time.Time {
	return time.Unix(int64(sb.ModTime), 0)
}
