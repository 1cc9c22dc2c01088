package sqfuse

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"syscall"
	"testing"

	"github.com/absfs/sqfuse/internal/squashfs"
)

func TestFileSystem_ReadFile(t *testing.T) {
	fsys := newTestSession(t, docsImage(), nil).FileSystem()

	tests := []struct {
		name string
		want []byte
	}{
		{"/docs/readme.txt", []byte("hello docs")},
		{"/docs/link", []byte("hello docs")},
		{"/big.bin", bigData},
		{"/empty", []byte{}},
	}
	for _, tt := range tests {
		got, err := fsys.ReadFile(tt.name)
		if err != nil {
			t.Errorf("ReadFile(%q) error = %v", tt.name, err)
			continue
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("ReadFile(%q) = %d bytes, want %d", tt.name, len(got), len(tt.want))
		}
	}

	if _, err := fsys.ReadFile("/missing"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ReadFile(missing) error = %v, want os.ErrNotExist", err)
	}
}

func TestFileSystem_StatLstat(t *testing.T) {
	fsys := newTestSession(t, docsImage(), nil).FileSystem()

	info, err := fsys.Stat("/docs/link")
	if err != nil {
		t.Fatalf("Stat error = %v", err)
	}
	if !info.Mode().IsRegular() || info.Size() != 10 || info.Name() != "link" {
		t.Errorf("Stat = %v %d %q, want regular file of 10 bytes", info.Mode(), info.Size(), info.Name())
	}

	info, err = fsys.Lstat("/docs/link")
	if err != nil {
		t.Fatalf("Lstat error = %v", err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Errorf("Lstat mode = %v, want symlink", info.Mode())
	}
	if _, ok := info.Sys().(squashfs.Stat); !ok {
		t.Errorf("Sys() = %T, want squashfs.Stat", info.Sys())
	}

	target, err := fsys.Readlink("/docs/link")
	if err != nil || target != "readme.txt" {
		t.Errorf("Readlink = %q, %v, want readme.txt", target, err)
	}

	info, err = fsys.Stat("/")
	if err != nil || !info.IsDir() || info.Mode().Perm() != 0o755 {
		t.Errorf("Stat(/) = %v, %v, want directory 0755", info, err)
	}

	info, err = fsys.Stat("/pipe")
	if err != nil || info.Mode()&os.ModeNamedPipe == 0 {
		t.Errorf("Stat(/pipe) = %v, %v, want named pipe", info, err)
	}
}

func TestFileSystem_SymlinkLoop(t *testing.T) {
	b := docsImage().Symlink("/a", "b").Symlink("/b", "a")
	fsys := newTestSession(t, b, nil).FileSystem()

	if _, err := fsys.Stat("/a"); !errors.Is(err, syscall.ELOOP) {
		t.Errorf("Stat(loop) error = %v, want ELOOP", err)
	}
	if _, err := fsys.Lstat("/a"); err != nil {
		t.Errorf("Lstat(loop) error = %v", err)
	}
}

func TestFileSystem_ReadDir(t *testing.T) {
	fsys := newTestSession(t, docsImage(), nil).FileSystem()

	entries, err := fsys.ReadDir("/")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"big.bin", "docs", "empty", "pipe"}
	if len(entries) != len(want) {
		t.Fatalf("ReadDir(/) = %d entries, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Name() != want[i] {
			t.Errorf("entry %d = %q, want %q", i, e.Name(), want[i])
		}
	}
	if !entries[1].IsDir() || entries[1].Type() != fs.ModeDir {
		t.Errorf("docs entry IsDir = %v, Type = %v", entries[1].IsDir(), entries[1].Type())
	}
	info, err := entries[0].Info()
	if err != nil || info.Size() != int64(len(bigData)) {
		t.Errorf("big.bin Info = %v, %v", info, err)
	}
}

func TestFileSystem_ReadDirPaging(t *testing.T) {
	fsys := newTestSession(t, docsImage(), nil).FileSystem()

	f, err := fsys.Open("/")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var got []string
	for {
		names, err := f.Readdirnames(3)
		got = append(got, names...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Readdirnames error = %v", err)
		}
		if len(names) == 0 {
			t.Fatal("Readdirnames returned nothing without io.EOF")
		}
	}
	if len(got) != 4 || got[0] != "big.bin" || got[3] != "pipe" {
		t.Errorf("paged names = %v", got)
	}

	if _, err := f.Read(make([]byte, 1)); !errors.Is(err, syscall.EISDIR) {
		t.Errorf("Read(dir) error = %v, want EISDIR", err)
	}
}

func TestFileSystem_Seek(t *testing.T) {
	fsys := newTestSession(t, docsImage(), nil).FileSystem()

	f, err := fsys.Open("/big.bin")
	if err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 16)
	if _, err := f.Seek(-16, io.SeekEnd); err != nil {
		t.Fatal(err)
	}
	if n, err := io.ReadFull(f, buf); err != nil || !bytes.Equal(buf[:n], bigData[len(bigData)-16:]) {
		t.Errorf("read after SeekEnd = %d, %v", n, err)
	}
	if n, err := f.Read(buf); n != 0 || err != io.EOF {
		t.Errorf("Read at end = %d, %v, want 0, io.EOF", n, err)
	}

	if _, err := f.Seek(100, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if pos, err := f.Seek(10, io.SeekCurrent); err != nil || pos != 110 {
		t.Errorf("SeekCurrent = %d, %v, want 110", pos, err)
	}
	if _, err := f.Seek(-1, io.SeekStart); err == nil {
		t.Error("Seek before start succeeded")
	}

	if n, err := f.ReadAt(buf, 4096); err != nil || !bytes.Equal(buf[:n], bigData[4096:4112]) {
		t.Errorf("ReadAt = %d, %v", n, err)
	}

	if err := f.Close(); err != nil {
		t.Errorf("Close error = %v", err)
	}
	if err := f.Close(); !errors.Is(err, os.ErrClosed) {
		t.Errorf("second Close error = %v, want os.ErrClosed", err)
	}
}

func TestFileSystem_ReadOnly(t *testing.T) {
	s := newTestSession(t, docsImage(), nil)
	fsys := s.FileSystem()

	checks := map[string]error{
		"Mkdir":   fsys.Mkdir("/new", 0o755),
		"Remove":  fsys.Remove("/docs/readme.txt"),
		"Rename":  fsys.Rename("/docs/readme.txt", "/x"),
		"Chmod":   fsys.Chmod("/docs/readme.txt", 0o600),
		"Chown":   fsys.Chown("/docs/readme.txt", 1, 1),
		"Lchown":  fsys.Lchown("/docs/link", 1, 1),
		"Symlink": fsys.Symlink("/docs/readme.txt", "/l"),
	}
	for name, err := range checks {
		if !errors.Is(err, syscall.EROFS) {
			t.Errorf("%s error = %v, want EROFS", name, err)
		}
	}

	if _, err := fsys.Create("/new.txt"); !errors.Is(err, syscall.EROFS) {
		t.Errorf("Create error = %v, want EROFS", err)
	}
	if _, err := fsys.OpenFile("/docs/readme.txt", os.O_RDWR, 0); !errors.Is(err, syscall.EROFS) {
		t.Errorf("OpenFile(O_RDWR) error = %v, want EROFS", err)
	}

	f, err := fsys.Open("/docs/readme.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.Write([]byte("x")); !errors.Is(err, syscall.EROFS) {
		t.Errorf("Write error = %v, want EROFS", err)
	}
	if err := f.Truncate(0); !errors.Is(err, syscall.EROFS) {
		t.Errorf("Truncate error = %v, want EROFS", err)
	}
}

func TestFileSystem_Sub(t *testing.T) {
	fsys := newTestSession(t, docsImage(), nil).FileSystem()

	sub, err := fsys.Sub("/docs")
	if err != nil {
		t.Fatal(err)
	}
	got, err := fs.ReadFile(sub, "readme.txt")
	if err != nil || string(got) != "hello docs" {
		t.Errorf("ReadFile(sub) = %q, %v", got, err)
	}
}

func TestFileMode(t *testing.T) {
	tests := []struct {
		mode uint32
		want os.FileMode
	}{
		{0o100644, 0o644},
		{0o040755, os.ModeDir | 0o755},
		{0o120777, os.ModeSymlink | 0o777},
		{0o020666, os.ModeDevice | os.ModeCharDevice | 0o666},
		{0o060600, os.ModeDevice | 0o600},
		{0o010600, os.ModeNamedPipe | 0o600},
		{0o140755, os.ModeSocket | 0o755},
		{0o104755, os.ModeSetuid | 0o755},
		{0o041777, os.ModeDir | os.ModeSticky | 0o777},
	}
	for _, tt := range tests {
		if got := fileMode(tt.mode); got != tt.want {
			t.Errorf("fileMode(%o) = %v, want %v", tt.mode, got, tt.want)
		}
	}
}
