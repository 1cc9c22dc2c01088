package sqfuse

import (
	"bytes"
	"context"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/absfs/sqfuse/internal/squashfs/squashfstest"
)

// testNode returns a node for p in an unmounted tree.
func testNode(t *testing.T, s *Session, opts *MountOptions, p string) *fuseNode {
	t.Helper()
	if opts == nil {
		opts = DefaultMountOptions(t.TempDir())
	}
	return &fuseNode{fusefs: newFuseFS(s, opts), path: p}
}

// readAllEntries drains a directory handle.
func readAllEntries(t *testing.T, d *dirHandle) []*fuse.DirEntry {
	t.Helper()
	ctx := context.Background()
	var out []*fuse.DirEntry
	for {
		e, errno := d.Readdirent(ctx)
		if errno != 0 {
			t.Fatalf("Readdirent errno = %v", errno)
		}
		if e == nil {
			return out
		}
		out = append(out, e)
	}
}

func TestNode_Getattr(t *testing.T) {
	b := docsImage().Owner("/docs/readme.txt", 1000, 1000)
	s := newTestSession(t, b, nil)
	ctx := context.Background()

	var out fuse.AttrOut
	n := testNode(t, s, nil, "/docs/readme.txt")
	if errno := n.Getattr(ctx, nil, &out); errno != 0 {
		t.Fatalf("Getattr errno = %v", errno)
	}
	if out.Size != 10 || out.Mode != unix.S_IFREG|0o644 {
		t.Errorf("Getattr = size %d mode %o", out.Size, out.Mode)
	}
	if out.Uid != 1000 || out.Gid != 1000 {
		t.Errorf("owner = %d:%d, want 1000:1000", out.Uid, out.Gid)
	}
	if out.Mtime != uint64(squashfstest.DefaultModTime) || out.Ctime != out.Mtime || out.Atime != out.Mtime {
		t.Errorf("times = %d/%d/%d, want %d", out.Atime, out.Mtime, out.Ctime, squashfstest.DefaultModTime)
	}
	if out.Blocks != 1 {
		t.Errorf("Blocks = %d, want 1", out.Blocks)
	}

	opts := DefaultMountOptions(t.TempDir())
	opts.UID, opts.GID = 42, 43
	n = testNode(t, s, opts, "/docs/readme.txt")
	if errno := n.Getattr(ctx, nil, &out); errno != 0 {
		t.Fatal(errno)
	}
	if out.Uid != 42 || out.Gid != 43 {
		t.Errorf("overridden owner = %d:%d, want 42:43", out.Uid, out.Gid)
	}

	n = testNode(t, s, nil, "/missing")
	if errno := n.Getattr(ctx, nil, &out); errno != syscall.ENOENT {
		t.Errorf("Getattr(missing) errno = %v, want ENOENT", errno)
	}
}

func TestNode_Readdir(t *testing.T) {
	b := squashfstest.New()
	for i := 0; i < 2*dirBatch+17; i++ {
		b.File(fmt.Sprintf("/d/e%04d", i), 0o644, nil)
	}
	s := newTestSession(t, b, nil)
	ctx := context.Background()

	fh, flags, errno := testNode(t, s, nil, "/d").OpendirHandle(ctx, 0)
	if errno != 0 {
		t.Fatalf("OpendirHandle errno = %v", errno)
	}
	if flags&fuse.FOPEN_CACHE_DIR == 0 {
		t.Error("FOPEN_CACHE_DIR not set")
	}
	d := fh.(*dirHandle)

	entries := readAllEntries(t, d)
	if len(entries) != 2*dirBatch+17 {
		t.Fatalf("got %d entries, want %d", len(entries), 2*dirBatch+17)
	}
	for i, e := range entries {
		if want := fmt.Sprintf("e%04d", i); e.Name != want {
			t.Fatalf("entry %d = %q, want %q", i, e.Name, want)
		}
		if e.Off == 0 || (i > 0 && e.Off <= entries[i-1].Off) {
			t.Fatalf("entry %d offset %d does not advance", i, e.Off)
		}
		if e.Mode != unix.S_IFREG {
			t.Fatalf("entry %d mode = %o, want S_IFREG", i, e.Mode)
		}
	}

	// Seek back to just after entry 99 and read the rest again.
	if errno := d.Seekdir(ctx, entries[99].Off); errno != 0 {
		t.Fatal(errno)
	}
	rest := readAllEntries(t, d)
	if len(rest) != len(entries)-100 || rest[0].Name != "e0100" {
		t.Errorf("after Seekdir got %d entries starting %q", len(rest), rest[0].Name)
	}

	if errno := d.Seekdir(ctx, 0); errno != 0 {
		t.Fatal(errno)
	}
	if again := readAllEntries(t, d); len(again) != len(entries) {
		t.Errorf("rewind read %d entries, want %d", len(again), len(entries))
	}

	d.Seekdir(ctx, entries[5].Off+1)
	if e, errno := d.Readdirent(ctx); errno != syscall.EINVAL || e != nil {
		t.Errorf("Readdirent after bad seek = %v, %v, want nil, EINVAL", e, errno)
	}

	d.Releasedir(ctx, 0)
	if got := s.Stats().OpenHandles; got != 0 {
		t.Errorf("OpenHandles after Releasedir = %d, want 0", got)
	}

	if _, _, errno := testNode(t, s, nil, "/d/e0001").OpendirHandle(ctx, 0); errno != syscall.ENOTDIR {
		t.Errorf("OpendirHandle(file) errno = %v, want ENOTDIR", errno)
	}
}

func TestNode_OpenRead(t *testing.T) {
	s := newTestSession(t, docsImage(), nil)
	ctx := context.Background()

	fh, flags, errno := testNode(t, s, nil, "/big.bin").Open(ctx, syscall.O_RDONLY)
	if errno != 0 {
		t.Fatalf("Open errno = %v", errno)
	}
	if flags&fuse.FOPEN_KEEP_CACHE == 0 || flags&fuse.FOPEN_DIRECT_IO != 0 {
		t.Errorf("Open flags = %#x, want KEEP_CACHE only", flags)
	}
	h := fh.(*fileHandle)

	buf := make([]byte, 5000)
	res, errno := h.Read(ctx, buf, 4000)
	if errno != 0 {
		t.Fatalf("Read errno = %v", errno)
	}
	data, _ := res.Bytes(nil)
	if !bytes.Equal(data, bigData[4000:9000]) {
		t.Errorf("Read returned %d bytes that differ from the file", len(data))
	}

	if errno := h.Release(ctx); errno != 0 {
		t.Errorf("Release errno = %v", errno)
	}
	if _, errno := h.Read(ctx, buf, 0); errno != syscall.EBADF {
		t.Errorf("Read after Release errno = %v, want EBADF", errno)
	}

	opts := DefaultMountOptions(t.TempDir())
	opts.DirectIO = true
	fh, flags, errno = testNode(t, s, opts, "/empty").Open(ctx, syscall.O_RDONLY)
	if errno != 0 {
		t.Fatal(errno)
	}
	if flags != fuse.FOPEN_DIRECT_IO {
		t.Errorf("DirectIO Open flags = %#x, want FOPEN_DIRECT_IO", flags)
	}
	fh.(*fileHandle).Release(ctx)

	tests := []struct {
		path  string
		flags uint32
		want  syscall.Errno
	}{
		{"/docs", syscall.O_RDONLY, syscall.EISDIR},
		{"/pipe", syscall.O_RDONLY, syscall.EISDIR},
		{"/missing", syscall.O_RDONLY, syscall.ENOENT},
		{"/big.bin", syscall.O_WRONLY, syscall.EROFS},
		{"/missing", syscall.O_RDWR | syscall.O_CREAT, syscall.EROFS},
	}
	for _, tt := range tests {
		if _, _, errno := testNode(t, s, nil, tt.path).Open(ctx, tt.flags); errno != tt.want {
			t.Errorf("Open(%q, %#o) errno = %v, want %v", tt.path, tt.flags, errno, tt.want)
		}
	}
}

func TestNode_Readlink(t *testing.T) {
	s := newTestSession(t, docsImage(), nil)
	ctx := context.Background()

	target, errno := testNode(t, s, nil, "/docs/link").Readlink(ctx)
	if errno != 0 || string(target) != "readme.txt" {
		t.Errorf("Readlink = %q, %v", target, errno)
	}
	if _, errno := testNode(t, s, nil, "/docs/readme.txt").Readlink(ctx); errno != syscall.EINVAL {
		t.Errorf("Readlink(file) errno = %v, want EINVAL", errno)
	}
}

func TestNode_Xattr(t *testing.T) {
	s := newTestSession(t, docsImage(), nil)
	ctx := context.Background()
	n := testNode(t, s, nil, "/docs/readme.txt")

	size, errno := n.Getxattr(ctx, "user.mime", nil)
	if errno != 0 || size != 10 {
		t.Errorf("Getxattr size = %d, %v, want 10", size, errno)
	}
	size, errno = n.Getxattr(ctx, "user.mime", make([]byte, 4))
	if errno != syscall.ERANGE || size != 10 {
		t.Errorf("Getxattr short = %d, %v, want 10, ERANGE", size, errno)
	}
	if _, errno := n.Getxattr(ctx, "user.none", nil); errno != fs.ENOATTR {
		t.Errorf("Getxattr(absent) errno = %v, want ENOATTR", errno)
	}

	buf := make([]byte, 64)
	size, errno = n.Listxattr(ctx, buf)
	if errno != 0 || string(buf[:size]) != "user.mime\x00user.flag\x00" {
		t.Errorf("Listxattr = %q, %v", buf[:size], errno)
	}

	if errno := n.Setxattr(ctx, "user.x", []byte("y"), 0); errno != syscall.EROFS {
		t.Errorf("Setxattr errno = %v, want EROFS", errno)
	}
	if errno := n.Removexattr(ctx, "user.mime"); errno != syscall.EROFS {
		t.Errorf("Removexattr errno = %v, want EROFS", errno)
	}
}

func TestNode_ReadOnly(t *testing.T) {
	s := newTestSession(t, docsImage(), nil)
	ctx := context.Background()
	n := testNode(t, s, nil, "/docs")
	var out fuse.EntryOut

	_, _, _, errno := n.Create(ctx, "new", syscall.O_RDWR, 0o644, &out)
	checks := map[string]syscall.Errno{
		"Create":  errno,
		"Unlink":  n.Unlink(ctx, "readme.txt"),
		"Rmdir":   n.Rmdir(ctx, "x"),
		"Rename":  n.Rename(ctx, "readme.txt", n, "other", 0),
		"Setattr": n.Setattr(ctx, nil, &fuse.SetAttrIn{}, &fuse.AttrOut{}),
	}
	_, checks["Mkdir"] = n.Mkdir(ctx, "x", 0o755, &out)
	_, checks["Mknod"] = n.Mknod(ctx, "x", unix.S_IFIFO|0o644, 0, &out)
	_, checks["Symlink"] = n.Symlink(ctx, "readme.txt", "l", &out)
	_, checks["Link"] = n.Link(ctx, n, "l", &out)

	for op, errno := range checks {
		if errno != syscall.EROFS {
			t.Errorf("%s errno = %v, want EROFS", op, errno)
		}
	}
}

func TestNode_Access(t *testing.T) {
	b := docsImage().File("/secret", 0o600, []byte("s")).Owner("/secret", 1000, 1000)
	s := newTestSession(t, b, nil)

	owner := fuse.NewContext(context.Background(), &fuse.Caller{Owner: fuse.Owner{Uid: 1000, Gid: 1000}})
	other := fuse.NewContext(context.Background(), &fuse.Caller{Owner: fuse.Owner{Uid: 2000, Gid: 2000}})

	opts := DefaultMountOptions(t.TempDir())
	opts.DefaultPermissions = false
	n := testNode(t, s, opts, "/secret")

	tests := []struct {
		name string
		ctx  context.Context
		mask uint32
		want syscall.Errno
	}{
		{"owner read", owner, unix.R_OK, 0},
		{"other read", other, unix.R_OK, syscall.EACCES},
		{"owner write", owner, unix.W_OK, syscall.EROFS},
		{"no caller", context.Background(), unix.R_OK, syscall.EACCES},
		{"no caller write", context.Background(), unix.W_OK, syscall.EROFS},
	}
	for _, tt := range tests {
		if errno := n.Access(tt.ctx, tt.mask); errno != tt.want {
			t.Errorf("%s: Access errno = %v, want %v", tt.name, errno, tt.want)
		}
	}

	// With kernel permission checks only writes are refused here.
	n = testNode(t, s, nil, "/secret")
	if errno := n.Access(other, unix.R_OK); errno != 0 {
		t.Errorf("default_permissions read errno = %v, want 0", errno)
	}
	if errno := n.Access(other, unix.W_OK); errno != syscall.EROFS {
		t.Errorf("default_permissions write errno = %v, want EROFS", errno)
	}
}

func TestNode_Statfs(t *testing.T) {
	s := newTestSession(t, docsImage(), nil)

	var out fuse.StatfsOut
	if errno := testNode(t, s, nil, "/").Statfs(context.Background(), &out); errno != 0 {
		t.Fatal(errno)
	}
	if out.Bsize != 4096 || out.Bfree != 0 || out.Ffree != 0 || out.Files != 7 || out.NameLen != 256 {
		t.Errorf("Statfs = %+v", out)
	}
}

func TestNode_Unmounting(t *testing.T) {
	s := newTestSession(t, docsImage(), nil)
	n := testNode(t, s, nil, "/docs")
	n.fusefs.unmounting.Store(true)

	var out fuse.AttrOut
	if errno := n.Getattr(context.Background(), nil, &out); errno != syscall.ENOTCONN {
		t.Errorf("Getattr while unmounting errno = %v, want ENOTCONN", errno)
	}
}

func TestFuseFS_Stats(t *testing.T) {
	s := newTestSession(t, docsImage(), nil)
	opts := DefaultMountOptions("/mnt/image")
	f := newFuseFS(s, opts)

	s.GetAttr("/docs")
	st := f.Stats()
	if st.Mountpoint != "/mnt/image" || st.Operations == 0 {
		t.Errorf("Stats = %+v", st)
	}
	if opts.AttrTimeout != time.Hour || opts.FSName != "squashfuse" {
		t.Errorf("DefaultMountOptions = %+v", opts)
	}
}
