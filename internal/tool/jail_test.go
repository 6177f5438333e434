package tool

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewJail_RequiresDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewJail(file); !errors.Is(err, ErrNotDirectory) {
		t.Fatalf("expected ErrNotDirectory, got %v", err)
	}
	if _, err := NewJail(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestJail_Resolve(t *testing.T) {
	root := t.TempDir()
	jail, err := NewJail(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(jail.Root(), "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}

	inside := []struct {
		path string
		want string
	}{
		{".", jail.Root()},
		{"", jail.Root()},
		{"pkg", filepath.Join(jail.Root(), "pkg")},
		{"pkg/../main.py", filepath.Join(jail.Root(), "main.py")},
		{"pkg/new/file.txt", filepath.Join(jail.Root(), "pkg", "new", "file.txt")},
		{filepath.Join(jail.Root(), "pkg"), filepath.Join(jail.Root(), "pkg")},
	}
	for _, tt := range inside {
		got, err := jail.Resolve("read", tt.path)
		if err != nil {
			t.Errorf("Resolve(%q): %v", tt.path, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}

	outside := []string{"..", "../x", "pkg/../../x", "/etc/passwd", "/"}
	for _, p := range outside {
		_, err := jail.Resolve("read", p)
		if !errors.Is(err, ErrOutsideWorkdir) {
			t.Errorf("Resolve(%q): expected ErrOutsideWorkdir, got %v", p, err)
		}
	}
}

func TestJail_ResolveRejectsSiblingWithSharedPrefix(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "work")
	sibling := filepath.Join(parent, "workshop")
	for _, d := range []string{root, sibling} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	jail, err := NewJail(root)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := jail.Resolve("read", "../workshop/a.txt"); !errors.Is(err, ErrOutsideWorkdir) {
		t.Fatalf("expected ErrOutsideWorkdir, got %v", err)
	}
}

func TestJail_ResolveFollowsSymlinks(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "work")
	secret := filepath.Join(parent, "secret")
	for _, d := range []string{root, secret} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink(secret, filepath.Join(root, "escape")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := os.Mkdir(filepath.Join(root, "real"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "alias")); err != nil {
		t.Fatal(err)
	}

	jail, err := NewJail(root)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := jail.Resolve("write to", "escape/new.txt"); !errors.Is(err, ErrOutsideWorkdir) {
		t.Fatalf("link out of the root: expected ErrOutsideWorkdir, got %v", err)
	}
	got, err := jail.Resolve("read", "alias/a.txt")
	if err != nil {
		t.Fatalf("link inside the root: %v", err)
	}
	if got != filepath.Join(jail.Root(), "real", "a.txt") {
		t.Fatalf("got %q", got)
	}
}

func TestPathError_Messages(t *testing.T) {
	tests := []struct {
		err  *PathError
		want string
	}{
		{&PathError{Op: "read", Path: "../a", Err: ErrOutsideWorkdir}, `Cannot read "../a" as it is outside the permitted working directory`},
		{&PathError{Op: "list", Path: "main.py", Err: ErrNotDirectory}, `"main.py" is not a directory`},
		{&PathError{Op: "execute", Path: "nope.py", Err: ErrNotRegularFile}, `File not found or is not a regular file: "nope.py"`},
		{&PathError{Op: "write to", Path: "a/b", Err: os.ErrPermission}, `cannot write to "a/b": permission denied`},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}
