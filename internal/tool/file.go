package tool

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"codeassist/internal/domain"
)

// MaxReadChars caps how many characters read_file returns.
const MaxReadChars = 10000

// --- ListFilesTool ---

// ListFilesTool lists the entries of a directory inside the working directory.
type ListFilesTool struct{}

func NewListFilesTool() *ListFilesTool { return &ListFilesTool{} }

func (t *ListFilesTool) Capability() domain.ToolCapability {
	return domain.ToolCapability{
		Name:        "get_files_info",
		Description: "Lists files in the specified directory along with their sizes, constrained to the working directory.",
		Parameters: []domain.ParamSpec{
			{Name: "directory", Type: domain.TypeString, Description: "The directory to list files from, relative to the working directory. If not provided, lists files in the working directory itself."},
		},
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, workDir string, args domain.Args) (string, error) {
	jail, err := NewJail(workDir)
	if err != nil {
		return "", err
	}
	dir := args.String("directory")
	if dir == "" {
		dir = "."
	}
	resolved, err := jail.Resolve("list", dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return "", &PathError{Op: "list", Path: dir, Err: ErrNotDirectory}
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return "", &PathError{Op: "list", Path: dir, Err: err}
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		// Stat follows symlinks, so a link to a directory reports is_dir=true.
		fi, err := os.Stat(filepath.Join(resolved, e.Name()))
		if err != nil {
			return "", &PathError{Op: "list", Path: dir, Err: err}
		}
		lines = append(lines, fmt.Sprintf("- %s: file_size=%d bytes, is_dir=%t", e.Name(), fi.Size(), fi.IsDir()))
	}
	return strings.Join(lines, "\n"), nil
}

// --- ReadFileTool ---

// ReadFileTool returns up to MaxReadChars characters of a file.
type ReadFileTool struct{}

func NewReadFileTool() *ReadFileTool { return &ReadFileTool{} }

func (t *ReadFileTool) Capability() domain.ToolCapability {
	return domain.ToolCapability{
		Name:        "get_file_content",
		Description: fmt.Sprintf("Reads the content of a file, constrained to the working directory. Output is truncated after %d characters.", MaxReadChars),
		Parameters: []domain.ParamSpec{
			{Name: "file_path", Type: domain.TypeString, Description: "Path of the file to read, relative to the working directory.", Required: true},
		},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, workDir string, args domain.Args) (string, error) {
	jail, err := NewJail(workDir)
	if err != nil {
		return "", err
	}
	path := args.String("file_path")
	resolved, err := jail.Resolve("read", path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return "", &PathError{Op: "read", Path: path, Err: ErrNotRegularFile}
	}

	f, err := os.Open(resolved)
	if err != nil {
		return "", &PathError{Op: "read", Path: path, Err: err}
	}
	defer f.Close()

	content, truncated, err := readChars(bufio.NewReader(f), MaxReadChars)
	if err != nil {
		return "", &PathError{Op: "read", Path: path, Err: err}
	}
	if truncated {
		content += fmt.Sprintf("[...File %q truncated at %d characters]", path, MaxReadChars)
	}
	return content, nil
}

// readChars reads at most limit runes and reports whether more data follows.
func readChars(r *bufio.Reader, limit int) (string, bool, error) {
	var sb strings.Builder
	for n := 0; n < limit; n++ {
		ch, size, err := r.ReadRune()
		if errors.Is(err, io.EOF) {
			return sb.String(), false, nil
		}
		if err != nil {
			return "", false, err
		}
		if ch == utf8.RuneError && size == 1 {
			// Keep invalid bytes as-is rather than replacing them.
			if err := r.UnreadRune(); err != nil {
				return "", false, err
			}
			b, err := r.ReadByte()
			if err != nil {
				return "", false, err
			}
			sb.WriteByte(b)
			continue
		}
		sb.WriteRune(ch)
	}
	if _, err := r.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return sb.String(), false, nil
		}
		return "", false, err
	}
	return sb.String(), true, nil
}

// --- WriteFileTool ---

// WriteFileTool creates or overwrites a file. Parent directories are not created.
type WriteFileTool struct{}

func NewWriteFileTool() *WriteFileTool { return &WriteFileTool{} }

func (t *WriteFileTool) Capability() domain.ToolCapability {
	return domain.ToolCapability{
		Name:        "write_file",
		Description: "Writes content to a file, constrained to the working directory. Creates the file if it does not exist and overwrites it otherwise.",
		Parameters: []domain.ParamSpec{
			{Name: "file_path", Type: domain.TypeString, Description: "Path of the file to write, relative to the working directory.", Required: true},
			{Name: "content", Type: domain.TypeString, Description: "The full content to write to the file.", Required: true},
		},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, workDir string, args domain.Args) (string, error) {
	jail, err := NewJail(workDir)
	if err != nil {
		return "", err
	}
	path := args.String("file_path")
	content := args.String("content")
	resolved, err := jail.Resolve("write to", path)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", &PathError{Op: "write to", Path: path, Err: err}
	}
	return fmt.Sprintf("Successfully wrote to %q (%d characters written)", path, utf8.RuneCountInString(content)), nil
}

// Compile-time interface checks.
var (
	_ domain.Tool = (*ListFilesTool)(nil)
	_ domain.Tool = (*ReadFileTool)(nil)
	_ domain.Tool = (*WriteFileTool)(nil)
)
