package sqfuse

import (
	"io"
	"io/fs"
	"os"
	"path"
	"syscall"
	"time"

	"emperror.dev/errors"
	"github.com/absfs/absfs"
	"golang.org/x/sys/unix"

	"github.com/absfs/sqfuse/internal/squashfs"
)

// maxSymlinks bounds symlink chains followed by Stat and OpenFile.
const maxSymlinks = 40

// FileSystem returns the image as a read-only absfs filesystem backed by
// the session's operations. Stat and OpenFile follow a symlink in the
// final path component; Lstat and Readlink do not. Every modification
// fails with EROFS.
func (s *Session) FileSystem() absfs.SymlinkFileSystem {
	return absfs.ExtendSymlinkFiler(&archiveFiler{s: s})
}

// archiveFiler implements absfs.Filer and absfs.SymLinker.
type archiveFiler struct {
	s *Session
}

var _ absfs.Filer = (*archiveFiler)(nil)
var _ absfs.SymLinker = (*archiveFiler)(nil)

func pathError(op, name string, err error) error {
	return &os.PathError{Op: op, Path: name, Err: mapError(err)}
}

// follow resolves symlinks in the last component of name.
func (f *archiveFiler) follow(name string) (string, squashfs.Stat, error) {
	p := path.Clean("/" + name)
	for range maxSymlinks {
		st, err := f.s.GetAttr(p)
		if err != nil {
			return "", st, err
		}
		if st.Mode&unix.S_IFMT != unix.S_IFLNK {
			return p, st, nil
		}
		target, err := f.s.Readlink(p, 0)
		if err != nil {
			return "", st, err
		}
		if path.IsAbs(string(target)) {
			p = path.Clean(string(target))
		} else {
			p = path.Join(path.Dir(p), string(target))
		}
	}
	return "", squashfs.Stat{}, errors.WithStack(syscall.ELOOP)
}

func (f *archiveFiler) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	if flag&writeIntent != 0 {
		return nil, pathError("open", name, f.s.refuse("open", name))
	}
	p, st, err := f.follow(name)
	if err != nil {
		return nil, pathError("open", name, err)
	}

	file := &archiveFile{
		s:    f.s,
		name: name,
		path: p,
		info: newFileInfo(path.Base(name), st),
	}
	if st.Mode&unix.S_IFMT == unix.S_IFDIR {
		file.h, err = f.s.OpenDir(p)
		file.dir = true
	} else {
		file.h, _, err = f.s.Open(p, flag)
	}
	if err != nil {
		return nil, pathError("open", name, err)
	}
	return file, nil
}

func (f *archiveFiler) Mkdir(name string, perm os.FileMode) error {
	return pathError("mkdir", name, f.s.refuse("mkdir", name))
}

func (f *archiveFiler) Remove(name string) error {
	return pathError("remove", name, f.s.refuse("remove", name))
}

func (f *archiveFiler) Rename(oldpath, newpath string) error {
	return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: mapError(f.s.refuse("rename", oldpath))}
}

func (f *archiveFiler) Stat(name string) (os.FileInfo, error) {
	_, st, err := f.follow(name)
	if err != nil {
		return nil, pathError("stat", name, err)
	}
	return newFileInfo(path.Base(name), st), nil
}

func (f *archiveFiler) Lstat(name string) (os.FileInfo, error) {
	st, err := f.s.GetAttr(name)
	if err != nil {
		return nil, pathError("lstat", name, err)
	}
	return newFileInfo(path.Base(name), st), nil
}

func (f *archiveFiler) Chmod(name string, mode os.FileMode) error {
	return pathError("chmod", name, f.s.refuse("chmod", name))
}

func (f *archiveFiler) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return pathError("chtimes", name, f.s.refuse("chtimes", name))
}

func (f *archiveFiler) Chown(name string, uid, gid int) error {
	return pathError("chown", name, f.s.refuse("chown", name))
}

func (f *archiveFiler) Lchown(name string, uid, gid int) error {
	return pathError("lchown", name, f.s.refuse("lchown", name))
}

func (f *archiveFiler) Symlink(oldname, newname string) error {
	return &os.LinkError{Op: "symlink", Old: oldname, New: newname, Err: mapError(f.s.refuse("symlink", newname))}
}

func (f *archiveFiler) Readlink(name string) (string, error) {
	target, err := f.s.Readlink(name, 0)
	if err != nil {
		return "", pathError("readlink", name, err)
	}
	return string(target), nil
}

func (f *archiveFiler) ReadDir(name string) ([]fs.DirEntry, error) {
	file, err := f.OpenFile(name, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return file.ReadDir(-1)
}

func (f *archiveFiler) ReadFile(name string) ([]byte, error) {
	file, err := f.OpenFile(name, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

func (f *archiveFiler) Sub(dir string) (fs.FS, error) {
	return absfs.FilerToFS(f, dir)
}

// archiveFile is an open file or directory of the absfs view.
type archiveFile struct {
	s    *Session
	name string
	path string
	info os.FileInfo
	h    HandleID
	dir  bool

	offset    int64
	dirOffset int64
	dirDone   bool
	closed    bool
}

var _ absfs.File = (*archiveFile)(nil)

func (f *archiveFile) Name() string { return f.name }

func (f *archiveFile) Stat() (os.FileInfo, error) { return f.info, nil }

func (f *archiveFile) Sync() error { return nil }

func (f *archiveFile) check(op string) error {
	if f.closed {
		return &os.PathError{Op: op, Path: f.name, Err: os.ErrClosed}
	}
	if f.dir {
		return &os.PathError{Op: op, Path: f.name, Err: syscall.EISDIR}
	}
	return nil
}

func (f *archiveFile) Read(b []byte) (int, error) {
	n, err := f.ReadAt(b, f.offset)
	f.offset += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (f *archiveFile) ReadAt(b []byte, off int64) (int, error) {
	if err := f.check("read"); err != nil {
		return 0, err
	}
	if len(b) == 0 {
		return 0, nil
	}
	n, err := f.s.Read(f.h, b, off)
	if err != nil {
		return n, pathError("read", f.name, err)
	}
	if n < len(b) {
		return n, io.EOF
	}
	return n, nil
}

func (f *archiveFile) Seek(offset int64, whence int) (int64, error) {
	if err := f.check("seek"); err != nil {
		return 0, err
	}
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += f.offset
	case io.SeekEnd:
		offset += f.info.Size()
	default:
		return 0, &os.PathError{Op: "seek", Path: f.name, Err: os.ErrInvalid}
	}
	if offset < 0 {
		return 0, &os.PathError{Op: "seek", Path: f.name, Err: os.ErrInvalid}
	}
	f.offset = offset
	return offset, nil
}

func (f *archiveFile) Write(b []byte) (int, error) {
	return 0, &os.PathError{Op: "write", Path: f.name, Err: syscall.EROFS}
}

func (f *archiveFile) WriteAt(b []byte, off int64) (int, error) {
	return 0, &os.PathError{Op: "write", Path: f.name, Err: syscall.EROFS}
}

func (f *archiveFile) WriteString(s string) (int, error) {
	return 0, &os.PathError{Op: "write", Path: f.name, Err: syscall.EROFS}
}

func (f *archiveFile) Truncate(size int64) error {
	return &os.PathError{Op: "truncate", Path: f.name, Err: syscall.EROFS}
}

func (f *archiveFile) Close() error {
	if f.closed {
		return &os.PathError{Op: "close", Path: f.name, Err: os.ErrClosed}
	}
	f.closed = true

	var err error
	if f.dir {
		err = f.s.ReleaseDir(f.h)
	} else {
		err = f.s.Release(f.h)
	}
	if err != nil {
		return pathError("close", f.name, err)
	}
	return nil
}

// ReadDir returns up to n entries after the ones already returned, or
// all remaining ones when n <= 0.
func (f *archiveFile) ReadDir(n int) ([]fs.DirEntry, error) {
	if f.closed {
		return nil, &os.PathError{Op: "readdir", Path: f.name, Err: os.ErrClosed}
	}
	if !f.dir {
		return nil, &os.PathError{Op: "readdir", Path: f.name, Err: syscall.ENOTDIR}
	}

	var out []fs.DirEntry
	if !f.dirDone {
		err := f.s.ReadDir(f.h, f.dirOffset, func(e DirEntry) bool {
			if n > 0 && len(out) == n {
				return false
			}
			out = append(out, &dirEntry{s: f.s, dir: f.path, e: e})
			f.dirOffset = e.Offset
			return true
		})
		if err != nil {
			return out, pathError("readdir", f.name, err)
		}
		if n <= 0 || len(out) < n {
			f.dirDone = true
		}
	}

	if n > 0 && len(out) == 0 {
		return nil, io.EOF
	}
	return out, nil
}

func (f *archiveFile) Readdir(n int) ([]os.FileInfo, error) {
	entries, err := f.ReadDir(n)
	infos := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, ierr := e.Info()
		if ierr != nil {
			return infos, ierr
		}
		infos = append(infos, info)
	}
	return infos, err
}

func (f *archiveFile) Readdirnames(n int) ([]string, error) {
	entries, err := f.ReadDir(n)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, err
}

// dirEntry implements fs.DirEntry; Info looks the entry up on demand.
type dirEntry struct {
	s   *Session
	dir string
	e   DirEntry
}

func (d *dirEntry) Name() string      { return d.e.Name }
func (d *dirEntry) IsDir() bool       { return d.e.Mode&unix.S_IFMT == unix.S_IFDIR }
func (d *dirEntry) Type() fs.FileMode { return fileMode(d.e.Mode).Type() }

func (d *dirEntry) Info() (fs.FileInfo, error) {
	p := path.Join(d.dir, d.e.Name)
	st, err := d.s.GetAttr(p)
	if err != nil {
		return nil, pathError("lstat", p, err)
	}
	return newFileInfo(d.e.Name, st), nil
}

// fileInfo implements os.FileInfo over archive attributes. Sys returns
// the squashfs.Stat.
type fileInfo struct {
	name string
	st   squashfs.Stat
}

func newFileInfo(name string, st squashfs.Stat) *fileInfo {
	if name == "" || name == "." {
		name = "/"
	}
	return &fileInfo{name: name, st: st}
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return int64(fi.st.Size) }
func (fi *fileInfo) Mode() os.FileMode  { return fileMode(fi.st.Mode) }
func (fi *fileInfo) ModTime() time.Time { return fi.st.ModTime }
func (fi *fileInfo) IsDir() bool        { return fi.st.Mode&unix.S_IFMT == unix.S_IFDIR }
func (fi *fileInfo) Sys() any           { return fi.st }

// fileMode converts a unix mode to an os.FileMode.
func fileMode(mode uint32) os.FileMode {
	m := os.FileMode(mode & 0o777)
	switch mode & unix.S_IFMT {
	case unix.S_IFDIR:
		m |= os.ModeDir
	case unix.S_IFLNK:
		m |= os.ModeSymlink
	case unix.S_IFCHR:
		m |= os.ModeDevice | os.ModeCharDevice
	case unix.S_IFBLK:
		m |= os.ModeDevice
	case unix.S_IFIFO:
		m |= os.ModeNamedPipe
	case unix.S_IFSOCK:
		m |= os.ModeSocket
	}
	if mode&unix.S_ISUID != 0 {
		m |= os.ModeSetuid
	}
	if mode&unix.S_ISGID != 0 {
		m |= os.ModeSetgid
	}
	if mode&unix.S_ISVTX != 0 {
		m |= os.ModeSticky
	}
	return m
}
