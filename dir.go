package sqfuse

import (
	"emperror.dev/errors"

	"github.com/absfs/sqfuse/internal/squashfs"
)

// DirEntry is one directory listing entry. Mode carries the file type
// bits only. Offset is the continuation offset that resumes the listing
// right after this entry.
type DirEntry struct {
	Name   string
	Mode   uint32
	Ino    uint64
	Offset int64
}

// OpenDir opens the directory at p for enumeration.
func (s *Session) OpenDir(p string) (HandleID, error) {
	if err := s.enter(); err != nil {
		return 0, err
	}
	defer s.leave()

	_, in, err := s.resolve(p)
	if err != nil {
		return 0, s.fail("opendir", p, err)
	}
	if !in.IsDir() {
		return 0, s.fail("opendir", p, errors.WithStack(ErrNotDir))
	}
	h, err := s.handles.Add(in, kindDir, p)
	if err != nil {
		return 0, s.fail("opendir", p, err)
	}
	return h, nil
}

// ReadDir lists the directory behind h starting at a continuation
// offset (0 for the beginning). fill is called for each entry in
// archive order; when it returns false the entry was not taken and
// ReadDir stops without error. A failure after some entries were
// delivered is still reported; the delivered entries stay valid.
func (s *Session) ReadDir(h HandleID, offset int64, fill func(DirEntry) bool) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	in, p, err := s.handles.Get(h, kindDir)
	if err != nil {
		return s.fail("readdir", "", err)
	}
	a, err := s.archiveHandle()
	if err != nil {
		return s.fail("readdir", p, err)
	}

	it, err := a.OpenDir(&in, offset)
	if err != nil {
		if errors.Is(err, squashfs.ErrInvalidOffset) {
			return s.fail("readdir", p, classify(ErrInvalidOffset, err))
		}
		return s.fail("readdir", p, classify(ErrIO, err))
	}

	var e squashfs.DirEntry
	for it.Next(&e) {
		if !fill(DirEntry{
			Name:   e.Name,
			Mode:   e.Mode(),
			Ino:    uint64(e.Number),
			Offset: e.Offset,
		}) {
			return nil
		}
	}
	if err := it.Err(); err != nil {
		return s.fail("readdir", p, classify(ErrIO, err))
	}
	return nil
}

// ReleaseDir closes a directory handle.
func (s *Session) ReleaseDir(h HandleID) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	if err := s.handles.Release(h, kindDir); err != nil {
		return s.fail("releasedir", "", err)
	}
	return nil
}
