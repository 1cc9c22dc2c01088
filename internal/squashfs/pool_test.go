package squashfs

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestBufferPool_SizeClasses(t *testing.T) {
	pool := newBufferPool()

	tests := []struct {
		requestSize int
		expectedCap int
		description string
	}{
		{100, MetadataSize + 2, "small request gets a metadata buffer"},
		{MetadataSize + 2, MetadataSize + 2, "full metadata block with header"},
		{4096 * 4, 128 * 1024, "16K block gets the 128K class"},
		{128 * 1024, 128 * 1024, "default block size"},
		{512 * 1024, 1024 * 1024, "512K block gets the 1M class"},
		{1024 * 1024, 1024 * 1024, "maximum block size"},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			buf := pool.Get(tt.requestSize)
			assert.Equal(t, len(buf), tt.requestSize)
			assert.Equal(t, cap(buf), tt.expectedCap)
			pool.Put(buf)
		})
	}
}

func TestBufferPool_Oversized(t *testing.T) {
	pool := newBufferPool()

	buf := pool.Get(2 * 1024 * 1024)
	assert.Equal(t, len(buf), 2*1024*1024)
	assert.Equal(t, cap(buf), 2*1024*1024)

	// Not pooled, but must not panic.
	pool.Put(buf)
	pool.Put(make([]byte, 10))
}
