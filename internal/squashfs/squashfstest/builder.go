// Package squashfstest builds small squashfs images in memory for tests.
package squashfstest

import (
	"bytes"
	"encoding/binary"
	"math"
	"path"
	"sort"
	"strings"
	"sync"

	"emperror.dev/errors"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"

	"github.com/absfs/sqfuse/internal/squashfs"
)

const (
	// DefaultModTime is the modification time given to every entry
	// unless WithModTime says otherwise.
	DefaultModTime uint32 = 1700000000

	metaUncompressed = 0x8000
	dataUncompressed = 1 << 24
)

// Builder accumulates a directory tree and serializes it as a squashfs
// image. Parent directories are created implicitly with mode 0755.
type Builder struct {
	compression squashfs.Compression
	compress    bool
	blockSize   uint32
	fragments   bool
	outOfLine   bool
	modTime     uint32

	root *node
	err  error
}

// Option configures a Builder.
type Option func(*Builder)

// WithCompression selects the compressor recorded in the superblock and
// used for every block that shrinks when compressed.
func WithCompression(c squashfs.Compression) Option {
	return func(b *Builder) {
		b.compression = c
		b.compress = true
	}
}

// Stored writes every block uncompressed.
func Stored() Option {
	return func(b *Builder) {
		b.compress = false
	}
}

// WithBlockSize sets the data block size, a power of two from 4K to 1M.
func WithBlockSize(n uint32) Option {
	return func(b *Builder) {
		b.blockSize = n
	}
}

// WithFragments controls whether file tails are packed into shared
// fragment blocks. It is on by default.
func WithFragments(on bool) Option {
	return func(b *Builder) {
		b.fragments = on
	}
}

// WithOutOfLineXattrs stores every attribute value out of line, the way
// mksquashfs stores values shared between inodes.
func WithOutOfLineXattrs() Option {
	return func(b *Builder) {
		b.outOfLine = true
	}
}

// WithModTime sets the modification time of the image and its entries.
func WithModTime(t uint32) Option {
	return func(b *Builder) {
		b.modTime = t
	}
}

// New returns a Builder holding only the root directory.
func New(opts ...Option) *Builder {
	b := &Builder{
		compression: squashfs.CompressionGzip,
		compress:    true,
		blockSize:   4096,
		fragments:   true,
		modTime:     DefaultModTime,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.root = &node{typ: squashfs.TypeDir, perm: 0o755, mtime: b.modTime}
	return b
}

type node struct {
	name     string
	typ      squashfs.Type
	perm     uint16
	uid, gid uint32
	mtime    uint32
	data     []byte
	target   string
	rdev     uint32
	xattrs   []squashfs.Xattr
	parent   *node
	children []*node

	ino        uint32
	ref        uint64
	start      uint64
	blocks     []uint32
	frag       uint32
	fragOffset uint32
	xattrIdx   uint32
	dirStart   uint32
	dirOffset  uint16
	dirSize    uint32
}

func splitPath(p string) []string {
	clean := strings.Trim(path.Clean("/"+p), "/")
	if clean == "" {
		return nil
	}
	return strings.Split(clean, "/")
}

func (n *node) child(name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// walk returns the node at p, creating missing directories when create
// is set.
func (b *Builder) walk(p string, create bool) *node {
	cur := b.root
	for _, name := range splitPath(p) {
		if cur.typ != squashfs.TypeDir {
			b.fail(errors.Errorf("squashfstest: %s: parent is not a directory", p))
			return nil
		}
		next := cur.child(name)
		if next == nil {
			if !create {
				b.fail(errors.Errorf("squashfstest: %s: no such entry", p))
				return nil
			}
			next = &node{name: name, typ: squashfs.TypeDir, perm: 0o755, mtime: b.modTime, parent: cur}
			cur.children = append(cur.children, next)
		}
		cur = next
	}
	return cur
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// add places n at p, replacing whatever was there.
func (b *Builder) add(p string, n *node) *Builder {
	dir, name := path.Split(path.Clean("/" + p))
	if name == "" {
		b.fail(errors.Errorf("squashfstest: cannot replace the root"))
		return b
	}
	parent := b.walk(dir, true)
	if parent == nil {
		return b
	}
	if parent.typ != squashfs.TypeDir {
		b.fail(errors.Errorf("squashfstest: %s: parent is not a directory", p))
		return b
	}
	n.name = name
	n.parent = parent
	if n.mtime == 0 {
		n.mtime = b.modTime
	}
	for i, c := range parent.children {
		if c.name == name {
			parent.children[i] = n
			return b
		}
	}
	parent.children = append(parent.children, n)
	return b
}

// Dir creates (or re-permissions) the directory p.
func (b *Builder) Dir(p string, perm uint16) *Builder {
	if n := b.walk(p, true); n != nil {
		if n.typ != squashfs.TypeDir {
			b.fail(errors.Errorf("squashfstest: %s exists and is not a directory", p))
			return b
		}
		n.perm = perm
	}
	return b
}

// File adds a regular file with the given contents.
func (b *Builder) File(p string, perm uint16, data []byte) *Builder {
	return b.add(p, &node{typ: squashfs.TypeFile, perm: perm, data: data})
}

// Symlink adds a symbolic link pointing at target.
func (b *Builder) Symlink(p, target string) *Builder {
	return b.add(p, &node{typ: squashfs.TypeSymlink, perm: 0o777, target: target})
}

// Device adds a block or character device node.
func (b *Builder) Device(p string, typ squashfs.Type, perm uint16, rdev uint32) *Builder {
	if typ != squashfs.TypeBlockDev && typ != squashfs.TypeCharDev {
		b.fail(errors.Errorf("squashfstest: %s: %s is not a device type", p, typ))
		return b
	}
	return b.add(p, &node{typ: typ, perm: perm, rdev: rdev})
}

// Fifo adds a named pipe.
func (b *Builder) Fifo(p string, perm uint16) *Builder {
	return b.add(p, &node{typ: squashfs.TypeFifo, perm: perm})
}

// Owner sets the uid and gid of an existing entry.
func (b *Builder) Owner(p string, uid, gid uint32) *Builder {
	if n := b.walk(p, false); n != nil {
		n.uid, n.gid = uid, gid
	}
	return b
}

// Xattr attaches an extended attribute to an existing entry. The name
// must carry a user., trusted. or security. prefix.
func (b *Builder) Xattr(p, name string, value []byte) *Builder {
	if _, _, err := splitXattrName(name); err != nil {
		b.fail(err)
		return b
	}
	if n := b.walk(p, false); n != nil {
		n.xattrs = append(n.xattrs, squashfs.Xattr{Name: name, Value: value})
	}
	return b
}

func splitXattrName(name string) (uint16, string, error) {
	for i, prefix := range squashfs.XattrPrefixes {
		if rest, ok := strings.CutPrefix(name, prefix); ok && rest != "" {
			return uint16(i), rest, nil
		}
	}
	return 0, "", errors.Errorf("squashfstest: unsupported xattr name %q", name)
}

// MustBytes is Bytes for callers that treat a build failure as fatal.
func (b *Builder) MustBytes() []byte {
	img, err := b.Bytes()
	if err != nil {
		panic(err)
	}
	return img
}

// Bytes serializes the tree as a complete image.
func (b *Builder) Bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	blockLog := uint16(0)
	for 1<<blockLog < b.blockSize {
		blockLog++
	}
	if 1<<blockLog != b.blockSize || blockLog < 12 || blockLog > 20 {
		return nil, errors.Errorf("squashfstest: invalid block size %d", b.blockSize)
	}

	w := &imageWriter{Builder: b}
	w.prepare(b.root)
	return w.write(blockLog)
}

// imageWriter holds the state of a single Bytes call.
type imageWriter struct {
	*Builder

	nodes   []*node
	ids     []uint32
	idIdx   map[uint32]uint16
	img     bytes.Buffer
	frags   []fragment
	fragBuf []byte

	xattrKV  *metaWriter
	xattrIDs *metaWriter
	nxattr   uint32
}

type fragment struct {
	start uint64
	word  uint32
}

// prepare sorts the tree, numbers inodes in pre-order and collects ids.
func (w *imageWriter) prepare(root *node) {
	w.idIdx = make(map[uint32]uint16)
	var visit func(n *node)
	visit = func(n *node) {
		sort.Slice(n.children, func(i, j int) bool { return n.children[i].name < n.children[j].name })
		w.nodes = append(w.nodes, n)
		n.ino = uint32(len(w.nodes))
		w.id(n.uid)
		w.id(n.gid)
		for _, c := range n.children {
			visit(c)
		}
	}
	visit(root)
}

func (w *imageWriter) id(v uint32) uint16 {
	if i, ok := w.idIdx[v]; ok {
		return i
	}
	i := uint16(len(w.ids))
	w.ids = append(w.ids, v)
	w.idIdx[v] = i
	return i
}

func (w *imageWriter) write(blockLog uint16) ([]byte, error) {
	w.img.Write(make([]byte, squashfs.SuperblockSize))

	for _, n := range w.nodes {
		if n.typ == squashfs.TypeFile {
			if err := w.writeData(n); err != nil {
				return nil, err
			}
		}
	}
	if err := w.flushFragment(); err != nil {
		return nil, err
	}

	if err := w.buildXattrs(); err != nil {
		return nil, err
	}

	inodes := newMetaWriter(w.Builder)
	dirs := newMetaWriter(w.Builder)
	if err := w.writeTree(w.root, inodes, dirs); err != nil {
		return nil, err
	}

	sb := squashfs.Superblock{
		Magic:        squashfs.Magic,
		InodeCount:   uint32(len(w.nodes)),
		ModTime:      w.modTime,
		BlockSize:    w.blockSize,
		FragCount:    uint32(len(w.frags)),
		Compression:  w.compression,
		BlockLog:     blockLog,
		IDCount:      uint16(len(w.ids)),
		VersionMajor: 4,
		RootInode:    w.root.ref,
		FragTable:    squashfs.NoTable,
		ExportTable:  squashfs.NoTable,
		XattrTable:   squashfs.NoTable,
	}
	if !w.fragments {
		sb.Flags |= squashfs.FlagNoFragments
	}
	if !w.compress {
		sb.Flags |= squashfs.FlagUncompressedInodes | squashfs.FlagUncompressedData | squashfs.FlagUncompressedFragments
	}

	sb.InodeTable = uint64(w.img.Len())
	if err := inodes.appendTo(&w.img); err != nil {
		return nil, err
	}
	sb.DirTable = uint64(w.img.Len())
	if err := dirs.appendTo(&w.img); err != nil {
		return nil, err
	}

	if len(w.frags) > 0 {
		fw := newMetaWriter(w.Builder)
		for _, f := range w.frags {
			fw.write(binary.LittleEndian.AppendUint64(nil, f.start))
			fw.write(binary.LittleEndian.AppendUint32(nil, f.word))
			fw.write(make([]byte, 4))
		}
		pos, err := w.indexedTable(fw)
		if err != nil {
			return nil, err
		}
		sb.FragTable = pos
	}

	iw := newMetaWriter(w.Builder)
	for _, v := range w.ids {
		iw.write(binary.LittleEndian.AppendUint32(nil, v))
	}
	pos, err := w.indexedTable(iw)
	if err != nil {
		return nil, err
	}
	sb.IDTable = pos

	if w.nxattr > 0 {
		kvStart := uint64(w.img.Len())
		if err := w.xattrKV.appendTo(&w.img); err != nil {
			return nil, err
		}
		idsStart := uint64(w.img.Len())
		if err := w.xattrIDs.appendTo(&w.img); err != nil {
			return nil, err
		}
		sb.XattrTable = uint64(w.img.Len())
		var hdr []byte
		hdr = binary.LittleEndian.AppendUint64(hdr, kvStart)
		hdr = binary.LittleEndian.AppendUint32(hdr, w.nxattr)
		hdr = binary.LittleEndian.AppendUint32(hdr, 0)
		for _, s := range w.xattrIDs.starts {
			hdr = binary.LittleEndian.AppendUint64(hdr, idsStart+uint64(s))
		}
		w.img.Write(hdr)
	} else {
		sb.Flags |= squashfs.FlagNoXattrs
	}

	sb.BytesUsed = uint64(w.img.Len())
	raw, err := sb.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := w.img.Bytes()
	copy(out, raw)
	return out, nil
}

// indexedTable appends the metadata blocks of mw followed by the array
// of their positions, and returns the position of that array.
func (w *imageWriter) indexedTable(mw *metaWriter) (uint64, error) {
	start := uint64(w.img.Len())
	if err := mw.appendTo(&w.img); err != nil {
		return 0, err
	}
	pos := uint64(w.img.Len())
	var ptrs []byte
	for _, s := range mw.starts {
		ptrs = binary.LittleEndian.AppendUint64(ptrs, start+uint64(s))
	}
	w.img.Write(ptrs)
	return pos, nil
}

func (w *imageWriter) writeData(n *node) error {
	bs := int(w.blockSize)
	size := len(n.data)
	full := size / bs
	tail := size % bs
	if !w.fragments && tail > 0 {
		full++
		tail = 0
	}

	n.start = uint64(w.img.Len())
	n.blocks = nil
	n.frag = squashfs.NoFragment
	for i := 0; i < full; i++ {
		chunk := n.data[i*bs : min((i+1)*bs, size)]
		if isZero(chunk) {
			n.blocks = append(n.blocks, 0)
			continue
		}
		data, word, err := w.encodeBlock(chunk)
		if err != nil {
			return errors.WithMessagef(err, "squashfstest: %s", n.name)
		}
		w.img.Write(data)
		n.blocks = append(n.blocks, word)
	}

	if tail > 0 {
		if len(w.fragBuf)+tail > bs {
			if err := w.flushFragment(); err != nil {
				return err
			}
		}
		n.frag = uint32(len(w.frags))
		n.fragOffset = uint32(len(w.fragBuf))
		w.fragBuf = append(w.fragBuf, n.data[full*bs:]...)
	}
	return nil
}

func (w *imageWriter) flushFragment() error {
	if len(w.fragBuf) == 0 {
		return nil
	}
	data, word, err := w.encodeBlock(w.fragBuf)
	if err != nil {
		return err
	}
	w.frags = append(w.frags, fragment{start: uint64(w.img.Len()), word: word})
	w.img.Write(data)
	w.fragBuf = nil
	return nil
}

// encodeBlock returns the on-disk form of a data block and its size word.
func (w *imageWriter) encodeBlock(chunk []byte) ([]byte, uint32, error) {
	if w.compress {
		c, err := encode(w.compression, chunk)
		if err != nil {
			return nil, 0, err
		}
		if c != nil && len(c) < len(chunk) {
			return c, uint32(len(c)), nil
		}
	}
	return chunk, uint32(len(chunk)) | dataUncompressed, nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func (w *imageWriter) buildXattrs() error {
	w.xattrKV = newMetaWriter(w.Builder)
	w.xattrIDs = newMetaWriter(w.Builder)
	le := binary.LittleEndian

	for _, n := range w.nodes {
		n.xattrIdx = squashfs.NoXattr
		if len(n.xattrs) == 0 {
			continue
		}

		var valueRefs []uint64
		if w.outOfLine {
			for _, x := range n.xattrs {
				valueRefs = append(valueRefs, w.xattrKV.ref())
				w.xattrKV.write(le.AppendUint32(nil, uint32(len(x.Value))))
				w.xattrKV.write(x.Value)
			}
		}

		ref := w.xattrKV.ref()
		total := 0
		for i, x := range n.xattrs {
			prefix, name, err := splitXattrName(x.Name)
			if err != nil {
				return err
			}
			var rec []byte
			typ := prefix
			if w.outOfLine {
				typ |= 0x100
			}
			rec = le.AppendUint16(rec, typ)
			rec = le.AppendUint16(rec, uint16(len(name)))
			rec = append(rec, name...)
			if w.outOfLine {
				rec = le.AppendUint32(rec, 8)
				rec = le.AppendUint64(rec, valueRefs[i])
			} else {
				rec = le.AppendUint32(rec, uint32(len(x.Value)))
				rec = append(rec, x.Value...)
			}
			w.xattrKV.write(rec)
			total += len(x.Name) + 1 + len(x.Value)
		}

		var entry []byte
		entry = le.AppendUint64(entry, ref)
		entry = le.AppendUint32(entry, uint32(len(n.xattrs)))
		entry = le.AppendUint32(entry, uint32(total))
		w.xattrIDs.write(entry)
		n.xattrIdx = w.nxattr
		w.nxattr++
	}
	return nil
}

// writeTree writes children before their parent so that every listing
// and inode can refer to positions that are already known.
func (w *imageWriter) writeTree(n *node, inodes, dirs *metaWriter) error {
	if n.typ == squashfs.TypeDir {
		for _, c := range n.children {
			if err := w.writeTree(c, inodes, dirs); err != nil {
				return err
			}
		}
		w.writeListing(n, dirs)
	}
	n.ref = inodes.ref()
	inodes.write(w.encodeInode(n))
	return nil
}

func (w *imageWriter) writeListing(n *node, dirs *metaWriter) {
	le := binary.LittleEndian
	ref := dirs.ref()
	n.dirStart = uint32(ref >> 16)
	n.dirOffset = uint16(ref & 0xFFFF)

	var listing []byte
	for i := 0; i < len(n.children); {
		first := n.children[i]
		run := 1
		for i+run < len(n.children) && run < 256 {
			c := n.children[i+run]
			delta := int64(c.ino) - int64(first.ino)
			if c.ref>>16 != first.ref>>16 || delta < math.MinInt16 || delta > math.MaxInt16 {
				break
			}
			run++
		}
		listing = le.AppendUint32(listing, uint32(run-1))
		listing = le.AppendUint32(listing, uint32(first.ref>>16))
		listing = le.AppendUint32(listing, first.ino)
		for _, c := range n.children[i : i+run] {
			listing = le.AppendUint16(listing, uint16(c.ref&0xFFFF))
			listing = le.AppendUint16(listing, uint16(int16(int64(c.ino)-int64(first.ino))))
			listing = le.AppendUint16(listing, uint16(c.typ))
			listing = le.AppendUint16(listing, uint16(len(c.name)-1))
			listing = append(listing, c.name...)
		}
		i += run
	}
	dirs.write(listing)
	n.dirSize = uint32(len(listing)) + 3
}

func (w *imageWriter) encodeInode(n *node) []byte {
	le := binary.LittleEndian
	hasXattr := n.xattrIdx != squashfs.NoXattr

	extended := hasXattr
	switch n.typ {
	case squashfs.TypeDir:
		extended = extended || n.dirSize > math.MaxUint16
	case squashfs.TypeFile:
		extended = extended || uint64(len(n.data)) > math.MaxUint32 || n.start > math.MaxUint32
	}
	typ := uint16(n.typ)
	if extended {
		typ += 7
	}

	var b []byte
	b = le.AppendUint16(b, typ)
	b = le.AppendUint16(b, n.perm)
	b = le.AppendUint16(b, w.idIdx[n.uid])
	b = le.AppendUint16(b, w.idIdx[n.gid])
	b = le.AppendUint32(b, n.mtime)
	b = le.AppendUint32(b, n.ino)

	switch n.typ {
	case squashfs.TypeDir:
		parent := uint32(len(w.nodes) + 1)
		if n.parent != nil {
			parent = n.parent.ino
		}
		nlink := uint32(2)
		for _, c := range n.children {
			if c.typ == squashfs.TypeDir {
				nlink++
			}
		}
		if extended {
			b = le.AppendUint32(b, nlink)
			b = le.AppendUint32(b, n.dirSize)
			b = le.AppendUint32(b, n.dirStart)
			b = le.AppendUint32(b, parent)
			b = le.AppendUint16(b, 0)
			b = le.AppendUint16(b, n.dirOffset)
			b = le.AppendUint32(b, n.xattrIdx)
		} else {
			b = le.AppendUint32(b, n.dirStart)
			b = le.AppendUint32(b, nlink)
			b = le.AppendUint16(b, uint16(n.dirSize))
			b = le.AppendUint16(b, n.dirOffset)
			b = le.AppendUint32(b, parent)
		}
	case squashfs.TypeFile:
		if extended {
			b = le.AppendUint64(b, n.start)
			b = le.AppendUint64(b, uint64(len(n.data)))
			b = le.AppendUint64(b, 0)
			b = le.AppendUint32(b, 1)
			b = le.AppendUint32(b, n.frag)
			b = le.AppendUint32(b, n.fragOffset)
			b = le.AppendUint32(b, n.xattrIdx)
		} else {
			b = le.AppendUint32(b, uint32(n.start))
			b = le.AppendUint32(b, n.frag)
			b = le.AppendUint32(b, n.fragOffset)
			b = le.AppendUint32(b, uint32(len(n.data)))
		}
		for _, word := range n.blocks {
			b = le.AppendUint32(b, word)
		}
	case squashfs.TypeSymlink:
		b = le.AppendUint32(b, 1)
		b = le.AppendUint32(b, uint32(len(n.target)))
		b = append(b, n.target...)
		if extended {
			b = le.AppendUint32(b, n.xattrIdx)
		}
	case squashfs.TypeBlockDev, squashfs.TypeCharDev:
		b = le.AppendUint32(b, 1)
		b = le.AppendUint32(b, n.rdev)
		if extended {
			b = le.AppendUint32(b, n.xattrIdx)
		}
	default:
		b = le.AppendUint32(b, 1)
		if extended {
			b = le.AppendUint32(b, n.xattrIdx)
		}
	}
	return b
}

// metaWriter packs a byte stream into metadata blocks.
type metaWriter struct {
	b      *Builder
	buf    []byte
	out    bytes.Buffer
	starts []uint32
	err    error
}

func newMetaWriter(b *Builder) *metaWriter {
	return &metaWriter{b: b}
}

// ref returns the (block<<16 | offset) reference of the next byte.
func (m *metaWriter) ref() uint64 {
	return uint64(m.out.Len())<<16 | uint64(len(m.buf))
}

func (m *metaWriter) write(p []byte) {
	for len(p) > 0 && m.err == nil {
		n := min(squashfs.MetadataSize-len(m.buf), len(p))
		m.buf = append(m.buf, p[:n]...)
		p = p[n:]
		if len(m.buf) == squashfs.MetadataSize {
			m.flush()
		}
	}
}

func (m *metaWriter) flush() {
	if len(m.buf) == 0 || m.err != nil {
		return
	}
	m.starts = append(m.starts, uint32(m.out.Len()))

	data := m.buf
	header := uint16(len(m.buf)) | metaUncompressed
	if m.b.compress {
		c, err := encode(m.b.compression, m.buf)
		if err != nil {
			m.err = err
			return
		}
		if c != nil && len(c) < len(m.buf) {
			data = c
			header = uint16(len(c))
		}
	}
	m.out.Write(binary.LittleEndian.AppendUint16(nil, header))
	m.out.Write(data)
	m.buf = m.buf[:0]
}

func (m *metaWriter) appendTo(dst *bytes.Buffer) error {
	m.flush()
	if m.err != nil {
		return m.err
	}
	dst.Write(m.out.Bytes())
	return nil
}

var zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
})

// encode compresses data with c. A nil result means the compressor
// declined (lz4 on incompressible input).
func encode(c squashfs.Compression, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch c {
	case squashfs.CompressionGzip:
		zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if _, err := zw.Write(data); err != nil {
			return nil, errors.WithStack(err)
		}
		if err := zw.Close(); err != nil {
			return nil, errors.WithStack(err)
		}
	case squashfs.CompressionZstd:
		enc, err := zstdEncoder()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return enc.EncodeAll(data, nil), nil
	case squashfs.CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if n == 0 {
			return nil, nil
		}
		return dst[:n], nil
	case squashfs.CompressionXZ:
		xw, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if _, err := xw.Write(data); err != nil {
			return nil, errors.WithStack(err)
		}
		if err := xw.Close(); err != nil {
			return nil, errors.WithStack(err)
		}
	case squashfs.CompressionLZMA:
		lw, err := lzma.NewWriter(&buf)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if _, err := lw.Write(data); err != nil {
			return nil, errors.WithStack(err)
		}
		if err := lw.Close(); err != nil {
			return nil, errors.WithStack(err)
		}
	default:
		return nil, errors.Errorf("squashfstest: cannot compress with %s", c)
	}
	return buf.Bytes(), nil
}
