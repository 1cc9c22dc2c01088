package squashfs

import (
	"sync"
)

// bufferPool hands out scratch buffers for block reads and decodes.
//
// Size classes follow the squashfs block sizes that show up in
// practice: a metadata block, the 128K mksquashfs default, and the 1M
// maximum. Requests larger than the largest class are allocated
// directly and never pooled.
type bufferPool struct {
	pools []*sync.Pool
	sizes []int
}

func newBufferPool() *bufferPool {
	sizes := []int{
		MetadataSize + 2, // metadata block with its header
		128 * 1024,
		1024 * 1024,
	}

	pools := make([]*sync.Pool, len(sizes))
	for i, size := range sizes {
		pools[i] = &sync.Pool{
			New: func() any {
				buf := make([]byte, size)
				return &buf
			},
		}
	}

	return &bufferPool{
		pools: pools,
		sizes: sizes,
	}
}

// Get returns a buffer of length size from the smallest class that fits.
func (p *bufferPool) Get(size int) []byte {
	for i, poolSize := range p.sizes {
		if size <= poolSize {
			bufPtr := p.pools[i].Get().(*[]byte)
			return (*bufPtr)[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to its size class. Buffers whose capacity does not
// match a class are left to the garbage collector.
func (p *bufferPool) Put(buf []byte) {
	capacity := cap(buf)
	for i, size := range p.sizes {
		if capacity == size {
			full := buf[:capacity]
			p.pools[i].Put(&full)
			return
		}
	}
}
