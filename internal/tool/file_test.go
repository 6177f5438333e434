package tool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codeassist/internal/domain"
)

func str(kv ...string) domain.Args {
	args := make(domain.Args, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		args[kv[i]] = domain.StringValue(kv[i+1])
	}
	return args
}

func writeTestFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestListFilesTool(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "main.py", "print('hi')\n")
	writeTestFile(t, dir, "README", "")
	if err := os.Mkdir(filepath.Join(dir, "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeTestFile(t, filepath.Join(dir, "pkg"), "calc.py", "x = 1")

	tool := NewListFilesTool()
	ctx := context.Background()

	out, err := tool.Execute(ctx, dir, domain.Args{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := strings.Join([]string{
		"- README: file_size=0 bytes, is_dir=false",
		"- main.py: file_size=12 bytes, is_dir=false",
	}, "\n")
	if !strings.HasPrefix(out, want) {
		t.Fatalf("unexpected listing:\n%s", out)
	}
	if !strings.Contains(out, "- pkg: file_size=") || !strings.HasSuffix(out, "is_dir=true") {
		t.Fatalf("directory entry missing:\n%s", out)
	}

	out, err = tool.Execute(ctx, dir, str("directory", "pkg"))
	if err != nil {
		t.Fatalf("Execute(pkg): %v", err)
	}
	if out != "- calc.py: file_size=5 bytes, is_dir=false" {
		t.Fatalf("got %q", out)
	}
}

func TestListFilesTool_EmptyDirectory(t *testing.T) {
	out, err := NewListFilesTool().Execute(context.Background(), t.TempDir(), domain.Args{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "" {
		t.Fatalf("expected empty listing, got %q", out)
	}
}

func TestListFilesTool_NotADirectory(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "main.py", "")

	_, err := NewListFilesTool().Execute(context.Background(), dir, str("directory", "main.py"))
	if !errors.Is(err, ErrNotDirectory) {
		t.Fatalf("expected ErrNotDirectory, got %v", err)
	}
	if err.Error() != `"main.py" is not a directory` {
		t.Fatalf("got %q", err.Error())
	}
}

func TestReadFileTool(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "main.py", "print('hi')\n")

	out, err := NewReadFileTool().Execute(context.Background(), dir, str("file_path", "main.py"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "print('hi')\n" {
		t.Fatalf("got %q", out)
	}
}

func TestReadFileTool_Truncation(t *testing.T) {
	dir := t.TempDir()
	exact := strings.Repeat("a", MaxReadChars)
	over := strings.Repeat("é", MaxReadChars+1)
	writeTestFile(t, dir, "exact.txt", exact)
	writeTestFile(t, dir, "over.txt", over)

	tool := NewReadFileTool()
	ctx := context.Background()

	out, err := tool.Execute(ctx, dir, str("file_path", "exact.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if out != exact {
		t.Fatalf("a file of exactly %d characters must not be truncated (got %d chars)", MaxReadChars, len(out))
	}

	out, err = tool.Execute(ctx, dir, str("file_path", "over.txt"))
	if err != nil {
		t.Fatal(err)
	}
	marker := `[...File "over.txt" truncated at 10000 characters]`
	if !strings.HasSuffix(out, marker) {
		t.Fatalf("missing truncation marker: %q", out[len(out)-80:])
	}
	if body := strings.TrimSuffix(out, marker); body != strings.Repeat("é", MaxReadChars) {
		t.Fatalf("truncation should count characters, kept %d bytes", len(body))
	}
}

func TestReadFileTool_Errors(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	tool := NewReadFileTool()
	ctx := context.Background()

	for _, p := range []string{"missing.txt", "pkg"} {
		_, err := tool.Execute(ctx, dir, str("file_path", p))
		if !errors.Is(err, ErrNotRegularFile) {
			t.Errorf("%s: expected ErrNotRegularFile, got %v", p, err)
		}
	}
	_, err := tool.Execute(ctx, dir, str("file_path", "../../etc/passwd"))
	if !errors.Is(err, ErrOutsideWorkdir) {
		t.Fatalf("expected ErrOutsideWorkdir, got %v", err)
	}
}

func TestWriteFileTool_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	out, err := NewWriteFileTool().Execute(ctx, dir, str("file_path", "notes.txt", "content", "héllo"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if out != `Successfully wrote to "notes.txt" (5 characters written)` {
		t.Fatalf("got %q", out)
	}

	// Overwrites rather than appends.
	if _, err := NewWriteFileTool().Execute(ctx, dir, str("file_path", "notes.txt", "content", "bye")); err != nil {
		t.Fatal(err)
	}
	got, err := NewReadFileTool().Execute(ctx, dir, str("file_path", "notes.txt"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "bye" {
		t.Fatalf("got %q", got)
	}
}

func TestWriteFileTool_DoesNotCreateParents(t *testing.T) {
	dir := t.TempDir()

	_, err := NewWriteFileTool().Execute(context.Background(), dir, str("file_path", "new/dir/a.txt", "content", "x"))
	if err == nil {
		t.Fatal("expected error writing into a missing directory")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "new")); !os.IsNotExist(statErr) {
		t.Fatalf("parent directory should not be created: %v", statErr)
	}
}

func TestFileTools_RejectEscapes(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "work")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	writeTestFile(t, parent, "secret.txt", "top secret")
	ctx := context.Background()

	tests := []struct {
		name string
		tool domain.Tool
		args domain.Args
		want string
	}{
		{"list", NewListFilesTool(), str("directory", ".."), `Cannot list ".." as it is outside the permitted working directory`},
		{"read", NewReadFileTool(), str("file_path", "../secret.txt"), `Cannot read "../secret.txt" as it is outside the permitted working directory`},
		{"write", NewWriteFileTool(), str("file_path", "../secret.txt", "content", "pwned"), `Cannot write to "../secret.txt" as it is outside the permitted working directory`},
		{"run", NewRunScriptTool(ScriptConfig{}), str("file_path", "../secret.txt"), `Cannot execute "../secret.txt" as it is outside the permitted working directory`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.tool.Execute(ctx, root, tt.args)
			if err == nil || err.Error() != tt.want {
				t.Fatalf("got %v, want %q", err, tt.want)
			}
		})
	}

	data, err := os.ReadFile(filepath.Join(parent, "secret.txt"))
	if err != nil || string(data) != "top secret" {
		t.Fatalf("file outside the root was touched: %q %v", data, err)
	}
}
