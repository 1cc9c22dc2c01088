package squashfs

import (
	"encoding/binary"
	"io"

	"emperror.dev/errors"
)

const metaUncompressed = 0x8000

// metaCapacity bounds the decoded size of the metadata blocks stored
// between start and end. Every block takes at least three bytes on disk
// and decodes to at most MetadataSize bytes.
func metaCapacity(start, end uint64) uint64 {
	if end <= start {
		return 0
	}
	return (end - start + 2) / 3 * MetadataSize
}

// metaBlock is one decoded metadata block and the position of the block
// that follows it.
type metaBlock struct {
	data []byte
	next int64
}

// readFull reads len(p) bytes at pos, relative to the image start.
func (a *Archive) readFull(p []byte, pos int64) error {
	n, err := a.r.ReadAt(p, a.base+pos)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return errors.Wrapf(err, "read %d bytes at %d", len(p), pos)
}

// metadata returns the decoded metadata block stored at pos.
func (a *Archive) metadata(pos int64) (metaBlock, error) {
	if b, ok := a.meta.Get(pos); ok {
		return b, nil
	}

	var hdr [2]byte
	if err := a.readFull(hdr[:], pos); err != nil {
		return metaBlock{}, err
	}
	header := binary.LittleEndian.Uint16(hdr[:])
	size := int(header &^ metaUncompressed)
	if size == 0 || size > MetadataSize {
		return metaBlock{}, errors.Wrapf(ErrCorrupt, "metadata block at %d has size %d", pos, size)
	}

	raw := a.pool.Get(size)
	defer a.pool.Put(raw)
	if err := a.readFull(raw, pos+2); err != nil {
		return metaBlock{}, err
	}

	var data []byte
	if header&metaUncompressed != 0 {
		data = append([]byte(nil), raw...)
	} else {
		var err error
		data, err = a.decompress(make([]byte, 0, MetadataSize), raw)
		if err != nil {
			return metaBlock{}, errors.WithMessagef(err, "metadata block at %d", pos)
		}
	}
	if len(data) == 0 {
		return metaBlock{}, errors.Wrapf(ErrCorrupt, "empty metadata block at %d", pos)
	}

	b := metaBlock{data: data, next: pos + 2 + int64(size)}
	a.meta.Put(pos, b)
	return b, nil
}

// metaCursor reads a byte stream that may cross metadata block
// boundaries. block is the absolute position of the current block and
// offset the position inside its decoded contents.
type metaCursor struct {
	a      *Archive
	block  int64
	offset int
}

func (a *Archive) cursor(block int64, offset int) *metaCursor {
	return &metaCursor{a: a, block: block, offset: offset}
}

func (c *metaCursor) read(p []byte) error {
	for len(p) > 0 {
		b, err := c.a.metadata(c.block)
		if err != nil {
			return err
		}
		if c.offset >= len(b.data) {
			c.offset -= len(b.data)
			c.block = b.next
			continue
		}
		n := copy(p, b.data[c.offset:])
		p = p[n:]
		c.offset += n
	}
	return nil
}

func (c *metaCursor) skip(n int) error {
	for n > 0 {
		b, err := c.a.metadata(c.block)
		if err != nil {
			return err
		}
		if c.offset >= len(b.data) {
			c.offset -= len(b.data)
			c.block = b.next
			continue
		}
		step := min(n, len(b.data)-c.offset)
		c.offset += step
		n -= step
	}
	return nil
}

func (c *metaCursor) uint16() (uint16, error) {
	var b [2]byte
	if err := c.read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func (c *metaCursor) uint32() (uint32, error) {
	var b [4]byte
	if err := c.read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (c *metaCursor) uint64() (uint64, error) {
	var b [8]byte
	if err := c.read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
