// Package squashfs reads SquashFS 4.0 images.
//
// An Archive is safe for concurrent use: it reads through an
// io.ReaderAt and guards its block caches internally. Inodes are plain
// values that can be copied freely and stay valid for the lifetime of
// the Archive.
package squashfs

import (
	"io"
	"os"
	"time"

	"emperror.dev/errors"
)

const defaultCacheBlocks = 256

type config struct {
	cacheBlocks int
}

// Option configures an Archive.
type Option func(*config)

// WithCacheSize sets how many decoded metadata blocks and fragment
// blocks are kept in memory (each cache holds up to n). 0 disables
// caching.
func WithCacheSize(n int) Option {
	return func(c *config) {
		c.cacheBlocks = n
	}
}

// Archive is an opened squashfs image.
type Archive struct {
	r      io.ReaderAt
	closer io.Closer
	base   int64
	sb     Superblock

	decompress decompressor
	meta       *lruCache[metaBlock]
	frags      *lruCache[[]byte]
	pool       *bufferPool

	ids        []uint32
	xattrKV    uint64
	xattrIDs   uint64 // first block of the xattr id entries, ends the key/value area
	xattrLimit uint64
	xattrCount uint32
}

// Open opens the image stored in the named file, starting offset bytes
// into it. Closing the Archive closes the file.
func Open(name string, offset int64, opts ...Option) (*Archive, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	a, err := New(f, offset, opts...)
	if err != nil {
		f.Close()
		return nil, errors.WithMessagef(err, "open %s", name)
	}
	a.closer = f
	return a, nil
}

// New reads the image found offset bytes into r. Images using features
// this package cannot decode are rejected here rather than failing on
// first use.
func New(r io.ReaderAt, offset int64, opts ...Option) (*Archive, error) {
	if offset < 0 {
		return nil, errors.Errorf("squashfs: negative image offset %d", offset)
	}

	cfg := config{cacheBlocks: defaultCacheBlocks}
	for _, opt := range opts {
		opt(&cfg)
	}

	a := &Archive{
		r:     r,
		base:  offset,
		meta:  newLRUCache[metaBlock](cfg.cacheBlocks),
		frags: newLRUCache[[]byte](cfg.cacheBlocks),
		pool:  newBufferPool(),
	}

	raw := make([]byte, SuperblockSize)
	if err := a.readFull(raw, 0); err != nil {
		return nil, errors.WithMessage(err, "superblock")
	}
	if err := a.sb.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	if err := a.sb.Validate(); err != nil {
		return nil, err
	}

	var err error
	if a.decompress, err = lookupDecompressor(a.sb.Compression); err != nil {
		return nil, err
	}
	if err := a.loadIDs(); err != nil {
		return nil, err
	}
	if err := a.loadXattrTable(); err != nil {
		return nil, err
	}
	return a, nil
}

// Superblock returns a copy of the image superblock.
func (a *Archive) Superblock() Superblock {
	return a.sb
}

// Root returns the root directory inode.
func (a *Archive) Root() (Inode, error) {
	in, err := a.inode(a.sb.RootInode)
	if err != nil {
		return Inode{}, errors.WithMessage(err, "root inode")
	}
	if !in.IsDir() {
		return Inode{}, errors.Wrap(ErrCorrupt, "root inode is not a directory")
	}
	return in, nil
}

// Info summarizes an image.
type Info struct {
	Compression   Compression
	BlockSize     uint32
	BytesUsed     uint64
	Inodes        uint32
	Fragments     uint32
	IDs           uint16
	ModTime       time.Time
	MetadataCache CacheStats
	FragmentCache CacheStats
}

// Info reports image-wide figures and cache counters.
func (a *Archive) Info() Info {
	return Info{
		Compression:   a.sb.Compression,
		BlockSize:     a.sb.BlockSize,
		BytesUsed:     a.sb.BytesUsed,
		Inodes:        a.sb.InodeCount,
		Fragments:     a.sb.FragCount,
		IDs:           a.sb.IDCount,
		ModTime:       a.sb.Time(),
		MetadataCache: a.meta.Stats(),
		FragmentCache: a.frags.Stats(),
	}
}

// Close releases the underlying file when the Archive was created by
// Open. Archives built with New leave r to the caller.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return errors.WithStack(err)
}
