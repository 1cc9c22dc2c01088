package sqfuse

import (
	"bytes"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"emperror.dev/errors"
	"golang.org/x/sys/unix"
)

// fuseAvailable skips the test when the host cannot mount FUSE
// filesystems.
func fuseAvailable(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("skipping: /dev/fuse not available")
	}
}

func TestMount_Validation(t *testing.T) {
	s := newTestSession(t, docsImage(), nil)

	if _, err := Mount(nil, DefaultMountOptions(t.TempDir())); err == nil {
		t.Error("Mount(nil session) succeeded")
	}
	if _, err := Mount(s, nil); err == nil {
		t.Error("Mount(nil options) succeeded")
	}
	if _, err := Mount(s, &MountOptions{}); err == nil {
		t.Error("Mount without mountpoint succeeded")
	}

	busy := t.TempDir()
	if err := os.WriteFile(filepath.Join(busy, "x"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Mount(s, DefaultMountOptions(busy)); err == nil {
		t.Error("Mount on a non-empty directory succeeded")
	}
}

func TestMount(t *testing.T) {
	fuseAvailable(t)

	s := newTestSession(t, docsImage(), nil)
	mp := t.TempDir()
	fsys, err := Mount(s, DefaultMountOptions(mp))
	if err != nil {
		t.Skipf("skipping: mount failed: %v", err)
	}
	mounted := true
	defer func() {
		if mounted {
			fsys.Unmount()
		}
	}()

	if ok, err := IsMounted(mp); err != nil || !ok {
		t.Errorf("IsMounted = %v, %v, want true", ok, err)
	}

	got, err := os.ReadFile(filepath.Join(mp, "docs", "readme.txt"))
	if err != nil || string(got) != "hello docs" {
		t.Errorf("ReadFile = %q, %v", got, err)
	}
	got, err = os.ReadFile(filepath.Join(mp, "big.bin"))
	if err != nil || !bytes.Equal(got, bigData) {
		t.Errorf("ReadFile(big.bin) = %d bytes, %v", len(got), err)
	}

	target, err := os.Readlink(filepath.Join(mp, "docs", "link"))
	if err != nil || target != "readme.txt" {
		t.Errorf("Readlink = %q, %v", target, err)
	}

	entries, err := os.ReadDir(filepath.Join(mp, "docs"))
	if err != nil || len(entries) != 2 {
		t.Errorf("ReadDir = %d entries, %v", len(entries), err)
	}

	err = os.WriteFile(filepath.Join(mp, "new.txt"), []byte("x"), 0o644)
	if !errors.Is(err, syscall.EROFS) {
		t.Errorf("WriteFile error = %v, want EROFS", err)
	}
	err = os.Mkdir(filepath.Join(mp, "newdir"), 0o755)
	if !errors.Is(err, syscall.EROFS) {
		t.Errorf("Mkdir error = %v, want EROFS", err)
	}

	size, err := unix.Getxattr(filepath.Join(mp, "docs", "readme.txt"), "user.mime", nil)
	if err == nil && size != len("text/plain") {
		t.Errorf("Getxattr size = %d, want %d", size, len("text/plain"))
	}

	var st unix.Statfs_t
	if err := unix.Statfs(mp, &st); err == nil && st.Bfree != 0 {
		t.Errorf("Statfs Bfree = %d, want 0", st.Bfree)
	}

	mounted = false
	if err := fsys.Unmount(); err != nil {
		t.Errorf("Unmount error = %v", err)
	}
	if _, err := s.GetAttr("/"); !errors.Is(err, ErrClosed) {
		t.Errorf("GetAttr after Unmount error = %v, want ErrClosed", err)
	}
}
