package sqfuse

import (
	"io"
	"os"

	"emperror.dev/errors"
)

// writeIntent lists the open flags that would modify the image.
const writeIntent = os.O_WRONLY | os.O_RDWR | os.O_TRUNC | os.O_APPEND | os.O_CREATE

// Open opens the regular file at p. Any write intent in flags fails with
// ErrReadOnly before the path is looked at. The returned bool asks the
// host to keep cached pages across opens, which is always safe for an
// immutable image.
func (s *Session) Open(p string, flags int) (HandleID, bool, error) {
	if err := s.enter(); err != nil {
		return 0, false, err
	}
	defer s.leave()

	if flags&writeIntent != 0 {
		return 0, false, s.fail("open", p, errors.Wrapf(ErrReadOnly, "open flags %#o", flags))
	}

	_, in, err := s.resolve(p)
	if err != nil {
		return 0, false, s.fail("open", p, err)
	}
	if in.IsDir() {
		return 0, false, s.fail("open", p, errors.WithStack(ErrIsDir))
	}
	if !in.IsRegular() {
		// Devices, fifos and sockets carry no data in the image.
		return 0, false, s.fail("open", p, errors.Wrapf(ErrIsDir, "%s is a %s", p, in.Type()))
	}

	h, err := s.handles.Add(in, kindFile, p)
	if err != nil {
		return 0, false, s.fail("open", p, err)
	}
	return h, true, nil
}

// Create always fails: the image cannot gain entries.
func (s *Session) Create(p string, flags int, mode os.FileMode) error {
	return s.refuse("create", p)
}

// refuse fails a modifying operation with ErrReadOnly.
func (s *Session) refuse(op, p string) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	return s.fail(op, p, errors.Wrapf(ErrReadOnly, "%s %s", op, p))
}

// Read reads from the file behind h at off. Reads past the end return
// fewer bytes, or none, without error.
func (s *Session) Read(h HandleID, p []byte, off int64) (int, error) {
	if err := s.enter(); err != nil {
		return 0, err
	}
	defer s.leave()

	in, name, err := s.handles.Get(h, kindFile)
	if err != nil {
		return 0, s.fail("read", "", err)
	}
	a, err := s.archiveHandle()
	if err != nil {
		return 0, s.fail("read", name, err)
	}

	n, err := a.ReadAt(&in, p, off)
	if err != nil && err != io.EOF {
		return n, s.fail("read", name, classify(ErrIO, err))
	}
	s.stats.recordRead(n)
	return n, nil
}

// Release closes a file handle.
func (s *Session) Release(h HandleID) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	if err := s.handles.Release(h, kindFile); err != nil {
		return s.fail("release", "", err)
	}
	return nil
}
