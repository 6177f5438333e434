package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"codeassist/internal/domain"
)

const (
	defaultScriptTimeout = 30 * time.Second
	// waitDelay bounds how long Wait blocks on inherited pipes after the
	// process group has been killed.
	waitDelay = 2 * time.Second
)

// DefaultInterpreters maps script extensions to the command that runs them.
func DefaultInterpreters() map[string][]string {
	return map[string][]string{".py": {"python3"}}
}

// ScriptConfig configures RunScriptTool.
type ScriptConfig struct {
	Timeout      time.Duration
	Interpreters map[string][]string // extension (with dot) -> argv prefix
}

// RunScriptTool executes a script file inside the working directory in a
// fresh subprocess with a wall-clock timeout.
type RunScriptTool struct {
	timeout      time.Duration
	interpreters map[string][]string
}

func NewRunScriptTool(cfg ScriptConfig) *RunScriptTool {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultScriptTimeout
	}
	if len(cfg.Interpreters) == 0 {
		cfg.Interpreters = DefaultInterpreters()
	}
	interp := make(map[string][]string, len(cfg.Interpreters))
	for ext, argv := range cfg.Interpreters {
		interp[strings.ToLower(ext)] = append([]string(nil), argv...)
	}
	return &RunScriptTool{timeout: cfg.Timeout, interpreters: interp}
}

func (t *RunScriptTool) extensions() []string {
	exts := make([]string, 0, len(t.interpreters))
	for ext := range t.interpreters {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func (t *RunScriptTool) Capability() domain.ToolCapability {
	return domain.ToolCapability{
		Name: "run_script",
		Description: fmt.Sprintf("Executes a script file (%s) located in the working directory and returns its standard output and standard error. Runs are limited to %s.",
			strings.Join(t.extensions(), ", "), t.timeout),
		Parameters: []domain.ParamSpec{
			{Name: "file_path", Type: domain.TypeString, Description: "Path of the script to execute, relative to the working directory.", Required: true},
			{Name: "args", Type: domain.TypeString, Description: "Optional whitespace-separated command-line arguments passed to the script."},
		},
	}
}

func (t *RunScriptTool) Execute(ctx context.Context, workDir string, args domain.Args) (string, error) {
	jail, err := NewJail(workDir)
	if err != nil {
		return "", err
	}
	path := args.String("file_path")
	resolved, err := jail.Resolve("execute", path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return "", &PathError{Op: "execute", Path: path, Err: ErrNotRegularFile}
	}
	interp, ok := t.interpreters[strings.ToLower(filepath.Ext(resolved))]
	if !ok {
		return "", fmt.Errorf("%q is not a script file (allowed: %s): %w", path, strings.Join(t.extensions(), ", "), ErrNotScript)
	}

	argv := append(append([]string(nil), interp[1:]...), resolved)
	argv = append(argv, strings.Fields(args.String("args"))...)

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, interp[0], argv...)
	cmd.Dir = jail.Root()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	err = cmd.Run()
	if ctxErr := runCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return "", fmt.Errorf("executing %q: %w after %s", path, ErrTimeout, t.timeout)
		}
		return "", fmt.Errorf("executing %q: %w", path, ctxErr)
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return "", fmt.Errorf("executing %q: %w", path, err)
	}

	output := formatStreams(stdout.String(), stderr.String())
	if exitErr != nil {
		return "", &ExitError{Output: output, Code: exitErr.ExitCode()}
	}
	return output, nil
}

// ExitError carries the captured output of a script that exited non-zero.
type ExitError struct {
	Output string
	Code   int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s\nProcess exited with code %d", e.Output, e.Code)
}

func formatStreams(stdout, stderr string) string {
	if stdout == "" && stderr == "" {
		return "No output produced."
	}
	var sections []string
	if stdout != "" {
		sections = append(sections, "STDOUT:\n"+stdout)
	}
	if stderr != "" {
		sections = append(sections, "STDERR:\n"+stderr)
	}
	return strings.Join(sections, "\n")
}

var _ domain.Tool = (*RunScriptTool)(nil)
