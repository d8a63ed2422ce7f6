package toolfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	f, err := New(filepath.Join(t.TempDir(), "tools"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func TestWriteAndRead(t *testing.T) {
	f := newTestFS(t)

	if err := f.Write(Location("abc"), []byte("<h1>hi</h1>")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := f.Read("abc/index.html")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "<h1>hi</h1>" {
		t.Errorf("Read = %q", got)
	}

	if err := f.Write(Location("abc"), []byte("v2")); err != nil {
		t.Fatalf("Write v2: %v", err)
	}
	got, _ = f.Read(Location("abc"))
	if string(got) != "v2" {
		t.Errorf("Read after overwrite = %q", got)
	}
	assertNoTempFiles(t, filepath.Join(f.Root(), "abc"))
}

func TestRead_Missing(t *testing.T) {
	f := newTestFS(t)
	_, err := f.Read(Location("nope"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Read(missing) = %v, want ErrNotExist", err)
	}
}

func TestResolve_RejectsEscapes(t *testing.T) {
	f := newTestFS(t)

	for _, loc := range []string{
		"",
		"../outside.html",
		"a/../../outside.html",
		"/etc/passwd",
		".",
	} {
		if _, err := f.Resolve(loc); !errors.Is(err, ErrUnsafePath) {
			t.Errorf("Resolve(%q) = %v, want ErrUnsafePath", loc, err)
		}
	}
}

func TestResolve_RejectsSymlinkEscape(t *testing.T) {
	f := newTestFS(t)
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.html"), []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(f.Root(), "evil")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if _, err := f.Read("evil/secret.html"); !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("Read through symlink = %v, want ErrUnsafePath", err)
	}
	if err := f.Write("evil/index.html", []byte("x")); !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("Write through symlink = %v, want ErrUnsafePath", err)
	}
	if _, err := os.Stat(filepath.Join(outside, "index.html")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("file written outside root: %v", err)
	}
}

func TestWrite_NoDirectoriesOutsideRoot(t *testing.T) {
	f := newTestFS(t)
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(f.Root(), "evil")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if err := f.Write("evil/sub/index.html", []byte("x")); !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("Write through symlinked parent = %v, want ErrUnsafePath", err)
	}
	if _, err := os.Stat(filepath.Join(outside, "sub")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("directory created outside root: %v", err)
	}
}

func TestWrite_RejectsRootFile(t *testing.T) {
	f := newTestFS(t)
	if err := f.Write("index.html", []byte("x")); !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("Write at root = %v, want ErrUnsafePath", err)
	}
}

func TestAtomicWrite_FailedRenameKeepsOriginal(t *testing.T) {
	f := newTestFS(t)
	loc := Location("t1")
	if err := f.Write(loc, []byte("original")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	rename = func(string, string) error { return errors.New("simulated crash") }
	t.Cleanup(func() { rename = os.Rename })

	err := f.Write(loc, []byte("replacement"))
	if err == nil || !strings.Contains(err.Error(), "simulated crash") {
		t.Fatalf("Write = %v, want simulated crash", err)
	}

	got, err := f.Read(loc)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "original" {
		t.Errorf("content = %q, want original", got)
	}
	assertNoTempFiles(t, filepath.Join(f.Root(), "t1"))
}

func TestAtomicWrite_Permissions(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "out.html")
	if err := AtomicWriteFile(p, []byte("x"), 0o600); err != nil {
		t.Fatalf("AtomicWriteFile: %v", err)
	}
	info, err := os.Stat(p)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestRemoveToolDir(t *testing.T) {
	f := newTestFS(t)
	loc := Location("gone")
	if err := f.Write(loc, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := f.RemoveToolDir(loc); err != nil {
		t.Fatalf("RemoveToolDir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.Root(), "gone")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("directory still present: %v", err)
	}
	if err := f.RemoveToolDir(loc); err != nil {
		t.Fatalf("second RemoveToolDir: %v", err)
	}
	if _, err := os.Stat(f.Root()); err != nil {
		t.Fatalf("root removed: %v", err)
	}
}

func TestRemoveToolDir_RefusesRoot(t *testing.T) {
	f := newTestFS(t)
	if err := f.RemoveToolDir("index.html"); !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("RemoveToolDir(index.html) = %v, want ErrUnsafePath", err)
	}
}

func TestContainedPath(t *testing.T) {
	root := t.TempDir()
	if _, err := ContainedPath(root, "templates/a.html"); err != nil {
		t.Errorf("ContainedPath(inside) = %v", err)
	}
	if _, err := ContainedPath(root, "../a.html"); !errors.Is(err, ErrUnsafePath) {
		t.Errorf("ContainedPath(escape) = %v, want ErrUnsafePath", err)
	}
}

func TestIsWithin(t *testing.T) {
	tests := []struct {
		path, root string
		want       bool
	}{
		{"/a/b", "/a", true},
		{"/a", "/a", true},
		{"/ab", "/a", false},
		{"/a/../b", "/a", false},
	}
	for _, tt := range tests {
		got, err := IsWithin(tt.path, tt.root)
		if err != nil {
			t.Fatalf("IsWithin(%q, %q): %v", tt.path, tt.root, err)
		}
		if got != tt.want {
			t.Errorf("IsWithin(%q, %q) = %v, want %v", tt.path, tt.root, got, tt.want)
		}
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}
