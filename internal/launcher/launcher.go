// Package launcher runs external tools for the provisioning sequence. The
// sequencer itself has no knowledge of tool invocation syntax; step
// definitions supply the command.
package launcher

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"

	"provkit/pkg/dbrun"
)

// ExecLauncher implements dbrun.Launcher over os/exec.
type ExecLauncher struct{}

var _ dbrun.Launcher = (*ExecLauncher)(nil)

func New() *ExecLauncher {
	return &ExecLauncher{}
}

// Run executes the command, waits for it to exit, and returns its exit code.
// A non-zero exit code is not an error; the caller classifies it. Timeouts
// and launch failures are errors.
func (l *ExecLauncher) Run(ctx context.Context, c dbrun.Command) (int, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	path, args := c.Path, c.Args
	if c.Elevated {
		var applied bool
		path, args, applied = elevate(runtime.GOOS, path, args)
		if !applied {
			slog.Warn("Elevation requested but not supported on this platform, running unelevated",
				"platform", runtime.GOOS, "path", c.Path)
		}
	}

	slog.Info("Running external command", "path", path, "args", args)

	cmd := exec.CommandContext(ctx, path, args...)
	output, err := cmd.CombinedOutput()
	logOutput(path, output)

	if err != nil {
		if ctx.Err() != nil {
			return -1, fmt.Errorf("command %s timed out: %w", c.Path, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("failed to run %s: %w", c.Path, err)
	}

	return 0, nil
}

// elevate rewrites a command to run with elevated privileges where the
// platform supports it. On Windows the process must already run elevated, so
// the command is returned unchanged and applied is false.
func elevate(goos, path string, args []string) (newPath string, newArgs []string, applied bool) {
	if goos == "windows" {
		return path, args, false
	}
	return "sudo", append([]string{path}, args...), true
}

func logOutput(path string, output []byte) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			slog.Info("Command output", "command", path, "line", line)
		}
	}
}
