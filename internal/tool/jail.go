package tool

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrOutsideWorkdir = errors.New("outside the permitted working directory")
	ErrNotDirectory   = errors.New("not a directory")
	ErrNotRegularFile = errors.New("not found or not a regular file")
	ErrNotScript      = errors.New("not a runnable script")
	ErrTimeout        = errors.New("timed out")
)

// PathError reports a rejected or failed operation on a model-supplied path.
// Path is the path exactly as the model gave it.
type PathError struct {
	Op   string // list | read | write to | execute
	Path string
	Err  error
}

func (e *PathError) Error() string {
	switch {
	case errors.Is(e.Err, ErrOutsideWorkdir):
		return fmt.Sprintf("Cannot %s %q as it is outside the permitted working directory", e.Op, e.Path)
	case errors.Is(e.Err, ErrNotDirectory):
		return fmt.Sprintf("%q is not a directory", e.Path)
	case errors.Is(e.Err, ErrNotRegularFile):
		return fmt.Sprintf("File not found or is not a regular file: %q", e.Path)
	}
	return fmt.Sprintf("cannot %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// Jail is the working directory every tool is confined to.
type Jail struct {
	root string
}

// NewJail fixes root as the boundary. The directory must exist.
func NewJail(root string) (Jail, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Jail{}, fmt.Errorf("resolve working directory: %w", err)
	}
	dir, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return Jail{}, fmt.Errorf("resolve working directory: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return Jail{}, fmt.Errorf("stat working directory: %w", err)
	}
	if !info.IsDir() {
		return Jail{}, fmt.Errorf("working directory %s: %w", dir, ErrNotDirectory)
	}
	return Jail{root: dir}, nil
}

// Root returns the normalized absolute root.
func (j Jail) Root() string { return j.root }

// Resolve maps a model-supplied path to an absolute path inside the jail.
// Relative paths are joined onto the root, absolute paths are taken as given;
// either way the cleaned, symlink-resolved result must stay under the root.
func (j Jail) Resolve(op, path string) (string, error) {
	if j.root == "" {
		return "", &PathError{Op: op, Path: path, Err: errors.New("working directory not set")}
	}
	candidate := strings.TrimSpace(path)
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(j.root, candidate)
	}
	candidate = filepath.Clean(candidate)

	resolved, err := evalExisting(candidate)
	if err != nil {
		return "", &PathError{Op: op, Path: path, Err: err}
	}
	if !j.contains(resolved) {
		return "", &PathError{Op: op, Path: path, Err: ErrOutsideWorkdir}
	}
	return resolved, nil
}

func (j Jail) contains(path string) bool {
	if path == j.root {
		return true
	}
	prefix := j.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// evalExisting resolves symlinks in the longest existing prefix of path and
// re-appends the part that does not exist yet (e.g. a file about to be written).
func evalExisting(path string) (string, error) {
	var rest []string
	cur := path
	for {
		if _, err := os.Lstat(cur); err == nil {
			resolved, err := filepath.EvalSymlinks(cur)
			if err != nil {
				return "", err
			}
			for i := len(rest) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, rest[i])
			}
			return resolved, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return path, nil
		}
		rest = append(rest, filepath.Base(cur))
		cur = parent
	}
}
