package squashfs

import (
	"encoding/binary"

	"emperror.dev/errors"
)

const (
	idEntrySize       = 4
	fragmentEntrySize = 16
	xattrIDEntrySize  = 16
)

// tableCursor positions a cursor on entry index of an indexed table.
// Such tables are an array of block positions at table, each block
// holding MetadataSize/size fixed-size entries.
func (a *Archive) tableCursor(table uint64, index uint64, size int) (*metaCursor, error) {
	perBlock := uint64(MetadataSize / size)
	var ptr [8]byte
	if err := a.readFull(ptr[:], int64(table+8*(index/perBlock))); err != nil {
		return nil, err
	}
	block := binary.LittleEndian.Uint64(ptr[:])
	return a.cursor(int64(block), int((index%perBlock)*uint64(size))), nil
}

// loadIDs reads the whole uid/gid table; it is tiny and used by every
// stat call.
func (a *Archive) loadIDs() error {
	c, err := a.tableCursor(a.sb.IDTable, 0, idEntrySize)
	if err != nil {
		return errors.WithMessage(err, "id table")
	}
	ids := make([]uint32, a.sb.IDCount)
	for i := range ids {
		if ids[i], err = c.uint32(); err != nil {
			return errors.WithMessage(err, "id table")
		}
	}
	a.ids = ids
	return nil
}

func (a *Archive) id(index uint16) (uint32, error) {
	if int(index) >= len(a.ids) {
		return 0, errors.Wrapf(ErrCorrupt, "id index %d out of range", index)
	}
	return a.ids[index], nil
}

// fragmentEntry locates a fragment block on disk.
type fragmentEntry struct {
	start uint64
	size  uint32
}

func (a *Archive) fragmentEntry(index uint32) (fragmentEntry, error) {
	if index >= a.sb.FragCount || a.sb.FragTable == NoTable {
		return fragmentEntry{}, errors.Wrapf(ErrCorrupt, "fragment %d out of range", index)
	}
	c, err := a.tableCursor(a.sb.FragTable, uint64(index), fragmentEntrySize)
	if err != nil {
		return fragmentEntry{}, err
	}
	var e fragmentEntry
	if e.start, err = c.uint64(); err != nil {
		return fragmentEntry{}, err
	}
	if e.size, err = c.uint32(); err != nil {
		return fragmentEntry{}, err
	}
	return e, nil
}
