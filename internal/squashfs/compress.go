package squashfs

import (
	"bytes"
	"io"
	"sync"

	"emperror.dev/errors"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// Compression identifies the block compressor recorded in the superblock.
type Compression uint16

const (
	CompressionGzip Compression = 1
	CompressionLZMA Compression = 2
	CompressionLZO  Compression = 3
	CompressionXZ   Compression = 4
	CompressionLZ4  Compression = 5
	CompressionZstd Compression = 6
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionLZMA:
		return "lzma"
	case CompressionLZO:
		return "lzo"
	case CompressionXZ:
		return "xz"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// decompressor decodes src into dst, which has zero length and a
// capacity equal to the largest output the caller accepts.
type decompressor func(dst, src []byte) ([]byte, error)

var decompressors = map[Compression]decompressor{
	CompressionGzip: decompressZlib,
	CompressionLZMA: decompressLZMA,
	CompressionXZ:   decompressXZ,
	CompressionLZ4:  decompressLZ4,
	CompressionZstd: decompressZstd,
}

func lookupDecompressor(c Compression) (decompressor, error) {
	d, ok := decompressors[c]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedCompression, "%s (id %d)", c, uint16(c))
	}
	return d, nil
}

// readBounded drains r into dst without growing it past its capacity.
func readBounded(r io.Reader, dst []byte) ([]byte, error) {
	buf := dst[:cap(dst)]
	n, err := io.ReadFull(r, buf)
	switch {
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		return buf[:n], nil
	case err != nil:
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	var extra [1]byte
	if _, err := io.ReadFull(r, extra[:]); err == nil {
		return nil, errors.Wrap(ErrCorrupt, "block decodes past its limit")
	}
	return buf, nil
}

func decompressZlib(dst, src []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	defer r.Close()
	return readBounded(r, dst)
}

func decompressLZMA(dst, src []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	return readBounded(r, dst)
}

func decompressXZ(dst, src []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	return readBounded(r, dst)
}

func decompressLZ4(dst, src []byte) ([]byte, error) {
	n, err := lz4.UncompressBlock(src, dst[:cap(dst)])
	if err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	return dst[:n], nil
}

// zstd.Decoder is safe for concurrent DecodeAll calls, so one is shared.
var zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
})

func decompressZstd(dst, src []byte) ([]byte, error) {
	dec, err := zstdDecoder()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	limit := cap(dst)
	out, err := dec.DecodeAll(src, dst[:0])
	if err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	if len(out) > limit {
		return nil, errors.Wrap(ErrCorrupt, "block decodes past its limit")
	}
	return out, nil
}
