package squashfs

import (
	"encoding/binary"
	"io"

	"emperror.dev/errors"
)

const (
	// dataUncompressed is set in a block size word when the block is
	// stored as-is. A size word of 0 denotes a sparse (all-zero) block.
	dataUncompressed uint32 = 1 << 24
	dataSizeMask            = dataUncompressed - 1

	// maxSymlinkSize is PATH_MAX; longer targets cannot be resolved by
	// the host anyway.
	maxSymlinkSize = 4096
)

// ReadAt reads from the regular file in at byte offset off. As with
// io.ReaderAt, a short read at the end of the file returns io.EOF.
func (a *Archive) ReadAt(in *Inode, p []byte, off int64) (int, error) {
	if !in.IsRegular() {
		return 0, errors.WithStack(ErrNotRegular)
	}
	if off < 0 {
		return 0, errors.Errorf("squashfs: negative read offset %d", off)
	}
	size := int64(in.size)
	if off >= size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	bs := int64(a.sb.BlockSize)
	end := min(off+int64(len(p)), size)
	nblocks := int64(in.blockCount(a.sb.BlockSize))
	first, last := off/bs, (end-1)/bs

	var sizes []uint32
	pos := int64(in.start)
	if first < nblocks {
		var err error
		if sizes, err = a.blockList(in, min(last+1, nblocks)); err != nil {
			return 0, err
		}
		for _, w := range sizes[:first] {
			pos += int64(w & dataSizeMask)
		}
	}

	buf := a.pool.Get(int(bs))
	defer a.pool.Put(buf)

	n := 0
	for idx := first; idx <= last; idx++ {
		want := int(min(bs, size-idx*bs))
		var block []byte
		var err error
		switch {
		case idx >= nblocks:
			block, err = a.fragmentTail(in, want)
		case sizes[idx] == 0:
			block = buf[:want]
			clear(block)
		default:
			block, err = a.dataBlock(buf[:0:bs], pos, sizes[idx])
			pos += int64(sizes[idx] & dataSizeMask)
		}
		if err != nil {
			return n, err
		}
		if len(block) != want {
			return n, errors.Wrapf(ErrCorrupt, "block %d decodes to %d bytes, want %d", idx, len(block), want)
		}

		from := int64(0)
		if idx == first {
			from = off - idx*bs
		}
		to := min(int64(want), end-idx*bs)
		n += copy(p[n:], block[from:to])
	}

	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// blockList reads the first n size words of a file's block list.
func (a *Archive) blockList(in *Inode, n int64) ([]uint32, error) {
	if uint64(4*n) > metaCapacity(a.sb.InodeTable, a.sb.DirTable) {
		return nil, errors.Wrapf(ErrCorrupt, "block list of %d entries exceeds the inode table", n)
	}
	raw := make([]byte, 4*n)
	if err := a.cursor(in.tailBlock, in.tailOffset).read(raw); err != nil {
		return nil, errors.WithMessage(err, "block list")
	}
	sizes := make([]uint32, n)
	for i := range sizes {
		sizes[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	return sizes, nil
}

// dataBlock reads and decodes the data block at pos into dst, whose
// capacity bounds the decoded size.
func (a *Archive) dataBlock(dst []byte, pos int64, word uint32) ([]byte, error) {
	size := int(word & dataSizeMask)
	if size == 0 || size > int(a.sb.BlockSize) {
		return nil, errors.Wrapf(ErrCorrupt, "data block at %d has size %d", pos, size)
	}

	if word&dataUncompressed != 0 {
		dst = dst[:size]
		if err := a.readFull(dst, pos); err != nil {
			return nil, err
		}
		return dst, nil
	}

	raw := a.pool.Get(size)
	defer a.pool.Put(raw)
	if err := a.readFull(raw, pos); err != nil {
		return nil, err
	}
	out, err := a.decompress(dst, raw)
	if err != nil {
		return nil, errors.WithMessagef(err, "data block at %d", pos)
	}
	return out, nil
}

// fragmentTail returns the tail of in, which lives inside a shared
// fragment block.
func (a *Archive) fragmentTail(in *Inode, want int) ([]byte, error) {
	block, err := a.fragmentBlock(in.frag)
	if err != nil {
		return nil, err
	}
	start := int(in.fragOffset)
	if start+want > len(block) {
		return nil, errors.Wrapf(ErrCorrupt, "fragment %d too short for tail at %d+%d", in.frag, start, want)
	}
	return block[start : start+want], nil
}

// fragmentBlock returns a decoded fragment block. Many small files share
// one, so decoded blocks are cached.
func (a *Archive) fragmentBlock(index uint32) ([]byte, error) {
	e, err := a.fragmentEntry(index)
	if err != nil {
		return nil, err
	}
	if b, ok := a.frags.Get(int64(e.start)); ok {
		return b, nil
	}
	b, err := a.dataBlock(make([]byte, 0, a.sb.BlockSize), int64(e.start), e.size)
	if err != nil {
		return nil, errors.WithMessagef(err, "fragment %d", index)
	}
	a.frags.Put(int64(e.start), b)
	return b, nil
}

// Readlink returns the target of the symlink in.
func (a *Archive) Readlink(in *Inode) ([]byte, error) {
	if !in.IsSymlink() {
		return nil, errors.WithStack(ErrNotSymlink)
	}
	if in.size > maxSymlinkSize {
		return nil, errors.Wrapf(ErrCorrupt, "symlink target of %d bytes", in.size)
	}
	target := make([]byte, in.size)
	if err := a.cursor(in.tailBlock, in.tailOffset).read(target); err != nil {
		return nil, errors.WithMessage(err, "symlink target")
	}
	return target, nil
}
