// Package report turns run outcomes into operator-facing output: a JSON
// trace log in the OS-standard log directory, console summaries, and a
// per-run incident summary file.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	perrors "provkit/internal/errors"
	"provkit/internal/sequencer"
	"provkit/internal/ui"
)

// Reporter owns the trace log and the console. One reporter serves one
// process invocation.
type Reporter struct {
	logger  *slog.Logger
	console *ui.Console
}

func NewReporter() (*Reporter, error) {
	logFile, err := createLogFile()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	return &Reporter{
		logger:  logger,
		console: ui.NewConsole(),
	}, nil
}

// Logger exposes the trace logger so the rest of the process can log into
// the same file (typically via slog.SetDefault).
func (r *Reporter) Logger() *slog.Logger {
	return r.logger
}

// getOSStandardLogDir returns the OS-standard log directory path
func getOSStandardLogDir() (string, error) {
	// Check for environment variable override first
	if customLogDir := os.Getenv("PROVKIT_LOG_DIR"); customLogDir != "" {
		return customLogDir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir, "Library", "Logs", "Provkit"), nil
	case "linux", "freebsd", "openbsd", "netbsd":
		// XDG Base Directory layout
		return filepath.Join(homeDir, ".local", "share", "provkit", "logs"), nil
	case "windows":
		appDataDir := os.Getenv("APPDATA")
		if appDataDir == "" {
			return filepath.Join(homeDir, "AppData", "Roaming", "Provkit", "logs"), nil
		}
		return filepath.Join(appDataDir, "Provkit", "logs"), nil
	default:
		return filepath.Join(homeDir, ".provkit", "logs"), nil
	}
}

// createLogDirectoryWithFallback creates the log directory, falling back to
// the current directory when the standard location is not writable.
func createLogDirectoryWithFallback() (string, error) {
	logDir, err := getOSStandardLogDir()
	if err == nil {
		if err := os.MkdirAll(logDir, 0750); err == nil {
			testFile := filepath.Join(logDir, ".test_write")
			if f, testErr := os.Create(testFile); testErr == nil {
				if err := f.Close(); err != nil {
					slog.Warn("Failed to close test file", "path", testFile, "error", err)
				}
				if err := os.Remove(testFile); err != nil {
					slog.Warn("Failed to remove test file", "path", testFile, "error", err)
				}
				return logDir, nil
			}
		}
	}

	currentDir, wdErr := os.Getwd()
	if wdErr != nil {
		return "", fmt.Errorf("cannot determine current directory for fallback logging: %w", wdErr)
	}
	fmt.Fprintf(os.Stderr, "Warning: cannot access standard log directory, falling back to %s\n", currentDir)
	return currentDir, nil
}

// rotateLogFile rotates log files when size limit is exceeded
func rotateLogFile(logPath string) error {
	const maxFiles = 5

	for i := maxFiles - 1; i > 0; i-- {
		oldPath := fmt.Sprintf("%s.%d", logPath, i)
		newPath := fmt.Sprintf("%s.%d", logPath, i+1)

		if i == maxFiles-1 {
			if _, err := os.Stat(oldPath); err == nil {
				if err := os.Remove(oldPath); err != nil {
					slog.Warn("Failed to remove old log file", "path", oldPath, "error", err)
				}
			}
		} else {
			if _, err := os.Stat(oldPath); err == nil {
				if err := os.Rename(oldPath, newPath); err != nil {
					slog.Warn("Failed to rotate log file", "old", oldPath, "new", newPath, "error", err)
				}
			}
		}
	}

	if _, err := os.Stat(logPath); err == nil {
		return os.Rename(logPath, logPath+".1")
	}

	return nil
}

func checkLogRotation(logPath string) error {
	const maxSizeBytes = 10 * 1024 * 1024 // 10MB

	info, err := os.Stat(logPath)
	if err != nil {
		return nil
	}

	if info.Size() >= maxSizeBytes {
		return rotateLogFile(logPath)
	}

	return nil
}

func createLogFile() (*os.File, error) {
	logDir, err := createLogDirectoryWithFallback()
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "provkit.log")

	if err := checkLogRotation(logPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to rotate log file: %v\n", err)
	}

	return os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}

// Handle reports one error to the trace log and the console.
func (r *Reporter) Handle(err error) {
	if err == nil {
		return
	}

	var provErr *perrors.ProvisionError
	if errors.As(err, &provErr) {
		r.handleProvisionError(provErr)
	} else {
		r.handleGenericError(err)
	}
}

func (r *Reporter) handleProvisionError(err *perrors.ProvisionError) {
	r.logStructuredError(err)

	message := r.console.FormatErrorMessage(err.Step, err.Cause, err.Suggestion)
	r.console.PrintError(message)
}

func (r *Reporter) handleGenericError(err error) {
	r.logger.Error("Unhandled error occurred",
		"error", err.Error(),
		"type", "generic",
	)

	r.console.PrintError(err.Error())
}

func (r *Reporter) logStructuredError(err *perrors.ProvisionError) {
	logAttrs := []slog.Attr{
		slog.String("error", err.Error()),
		slog.String("type", errorTypeName(err.Type)),
		slog.String("step", err.Step),
	}

	if err.Cause != "" {
		logAttrs = append(logAttrs, slog.String("cause", err.Cause))
	}

	if err.Suggestion != "" {
		logAttrs = append(logAttrs, slog.String("suggestion", err.Suggestion))
	}

	r.logger.LogAttrs(context.TODO(), slog.LevelError, "Provisioning error occurred", logAttrs...)
}

func errorTypeName(errType error) string {
	switch errType {
	case perrors.ErrValidation:
		return "validation"
	case perrors.ErrConnectivity:
		return "connectivity"
	case perrors.ErrExternalTool:
		return "external_tool"
	case perrors.ErrDataDependency:
		return "data_dependency"
	default:
		return "unknown"
	}
}

// Summarize prints the outcome of a run to the console.
func (r *Reporter) Summarize(res sequencer.RunResult) {
	switch res.Status {
	case sequencer.StatusCompletedClean:
		r.console.PrintSuccess(fmt.Sprintf("Provisioning run %s completed with no incidents", res.RunID))
	case sequencer.StatusCompletedWithIncidents:
		r.console.PrintWarning(fmt.Sprintf("Provisioning run %s completed with %d incident(s)", res.RunID, len(res.Incidents)))
		for _, inc := range res.Incidents {
			r.console.PrintWarning(fmt.Sprintf("  [%s] %s", inc.Step, inc.Message))
		}
	case sequencer.StatusAborted:
		r.console.PrintError(fmt.Sprintf("Provisioning run %s aborted at step %q", res.RunID, res.FatalStep))
		if res.Err != nil {
			r.Handle(res.Err)
		}
	}

	r.logger.Info("Run summary",
		"runId", res.RunID,
		"status", string(res.Status),
		"incidents", len(res.Incidents),
		"fatalStep", res.FatalStep)
}

// WriteSummaryFile writes a human-readable incident summary for one run into
// dir and returns its path. Operators attach this file to support tickets.
func WriteSummaryFile(dir string, res sequencer.RunResult) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create summary directory: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Provisioning run summary\n")
	fmt.Fprintf(&b, "Run ID:  %s\n", res.RunID)
	fmt.Fprintf(&b, "Status:  %s\n", res.Status)
	fmt.Fprintf(&b, "Written: %s\n", time.Now().Format(time.RFC3339))

	if res.FatalStep != "" {
		fmt.Fprintf(&b, "Aborted at: %s\n", res.FatalStep)
		if res.Err != nil {
			fmt.Fprintf(&b, "Error: %s\n", res.Err.Error())
		}
	}

	if len(res.Incidents) == 0 {
		fmt.Fprintf(&b, "\nNo incidents recorded.\n")
	} else {
		fmt.Fprintf(&b, "\nIncidents (%d):\n", len(res.Incidents))
		for i, inc := range res.Incidents {
			kind := "failure"
			if inc.Skipped {
				kind = "skipped"
			}
			fmt.Fprintf(&b, "%2d. [%s] %s: %s\n", i+1, kind, inc.Step, inc.Message)
		}
	}

	path := filepath.Join(dir, fmt.Sprintf("run_%s_summary.txt", res.RunID))
	if err := os.WriteFile(path, []byte(b.String()), 0640); err != nil {
		return "", fmt.Errorf("write summary file: %w", err)
	}
	return path, nil
}
