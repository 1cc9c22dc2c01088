package squashfs

import (
	"encoding/binary"

	"emperror.dev/errors"
)

const (
	xattrOutOfLine  = 0x100
	xattrPrefixMask = 0xFF

	// The xattr id table starts with kv_start (u64), count (u32) and an
	// unused u32; block positions follow.
	xattrTableHeaderSize = 16
)

// XattrPrefixes maps the on-disk namespace id to its name prefix.
var XattrPrefixes = []string{"user.", "trusted.", "security."}

// Xattr is one extended attribute with its full, prefixed name.
type Xattr struct {
	Name  string
	Value []byte
}

func (a *Archive) loadXattrTable() error {
	if a.sb.XattrTable == NoTable {
		return nil
	}
	var hdr [xattrTableHeaderSize]byte
	if err := a.readFull(hdr[:], int64(a.sb.XattrTable)); err != nil {
		return errors.WithMessage(err, "xattr table")
	}
	a.xattrKV = binary.LittleEndian.Uint64(hdr[0:])
	a.xattrCount = binary.LittleEndian.Uint32(hdr[8:])

	a.xattrIDs = a.sb.XattrTable
	if a.xattrCount > 0 {
		var ptr [8]byte
		if err := a.readFull(ptr[:], int64(a.sb.XattrTable+xattrTableHeaderSize)); err != nil {
			return errors.WithMessage(err, "xattr table")
		}
		a.xattrIDs = binary.LittleEndian.Uint64(ptr[:])
	}
	if a.xattrKV > a.xattrIDs || a.xattrIDs > a.sb.XattrTable {
		return errors.Wrapf(ErrCorrupt, "xattr key/value area %d..%d outside the image tables", a.xattrKV, a.xattrIDs)
	}
	a.xattrLimit = metaCapacity(a.xattrKV, a.xattrIDs)
	return nil
}

// xattrCursor positions a cursor on a (block<<16 | offset) reference
// into the key/value area.
func (a *Archive) xattrCursor(ref uint64) (*metaCursor, error) {
	block := a.xattrKV + ref>>16
	if block >= a.xattrIDs {
		return nil, errors.Wrapf(ErrCorrupt, "xattr reference %#x outside the key/value area", ref)
	}
	return a.cursor(int64(block), int(ref&0xFFFF)), nil
}

// Xattrs returns every attribute of in whose namespace is known, in
// on-disk order.
func (a *Archive) Xattrs(in *Inode) ([]Xattr, error) {
	if in.xattr == NoXattr || a.sb.XattrTable == NoTable {
		return nil, nil
	}
	if in.xattr >= a.xattrCount {
		return nil, errors.Wrapf(ErrCorrupt, "xattr index %d out of range", in.xattr)
	}

	c, err := a.tableCursor(a.sb.XattrTable+xattrTableHeaderSize, uint64(in.xattr), xattrIDEntrySize)
	if err != nil {
		return nil, err
	}
	ref, err := c.uint64()
	if err != nil {
		return nil, err
	}
	count, err := c.uint32()
	if err != nil {
		return nil, err
	}

	// Each record takes at least eight bytes: type, name size and value size.
	if uint64(count)*8 > a.xattrLimit {
		return nil, errors.Wrapf(ErrCorrupt, "xattr count %d exceeds the key/value area", count)
	}
	kv, err := a.xattrCursor(ref)
	if err != nil {
		return nil, err
	}
	var out []Xattr
	for i := uint32(0); i < count; i++ {
		typ, err := kv.uint16()
		if err != nil {
			return nil, err
		}
		nameSize, err := kv.uint16()
		if err != nil {
			return nil, err
		}
		name := make([]byte, nameSize)
		if err := kv.read(name); err != nil {
			return nil, err
		}
		value, err := a.xattrValue(kv, typ&xattrOutOfLine != 0)
		if err != nil {
			return nil, errors.WithMessagef(err, "xattr %q", name)
		}

		prefix := int(typ & xattrPrefixMask)
		if prefix >= len(XattrPrefixes) {
			continue
		}
		out = append(out, Xattr{Name: XattrPrefixes[prefix] + string(name), Value: value})
	}
	return out, nil
}

// xattrValue reads a value record. Out-of-line records hold a reference
// to the value stored elsewhere in the key/value area.
func (a *Archive) xattrValue(c *metaCursor, outOfLine bool) ([]byte, error) {
	size, err := c.uint32()
	if err != nil {
		return nil, err
	}
	if outOfLine {
		if size != 8 {
			return nil, errors.Wrapf(ErrCorrupt, "out-of-line xattr reference of %d bytes", size)
		}
		ref, err := c.uint64()
		if err != nil {
			return nil, err
		}
		vc, err := a.xattrCursor(ref)
		if err != nil {
			return nil, err
		}
		return a.xattrValue(vc, false)
	}
	if uint64(size) > a.xattrLimit {
		return nil, errors.Wrapf(ErrCorrupt, "xattr value of %d bytes exceeds the key/value area", size)
	}
	value := make([]byte, size)
	if err := c.read(value); err != nil {
		return nil, err
	}
	return value, nil
}

// ListXattr returns the prefixed names of the attributes of in.
func (a *Archive) ListXattr(in *Inode) ([]string, error) {
	attrs, err := a.Xattrs(in)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(attrs))
	for i, x := range attrs {
		names[i] = x.Name
	}
	return names, nil
}

// GetXattr returns the value of the named attribute, or ErrNoXattr.
func (a *Archive) GetXattr(in *Inode, name string) ([]byte, error) {
	attrs, err := a.Xattrs(in)
	if err != nil {
		return nil, err
	}
	for _, x := range attrs {
		if x.Name == name {
			return x.Value, nil
		}
	}
	return nil, errors.Wrapf(ErrNoXattr, "%s", name)
}
