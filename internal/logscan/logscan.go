// Package logscan verifies the log artifacts the schema upgrade tool leaves
// behind. Findings are diagnostics, never fatal.
package logscan

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LogPattern matches the upgrade logs written into the profile's log
// directory.
const LogPattern = "upgrade_*.log"

// SuccessMarker must appear in a healthy upgrade log.
const SuccessMarker = "Upgrade completed successfully"

// errorMarkers flag lines the upgrade tool emits on failure.
var errorMarkers = []string{"ORA-", "SP2-", "ERROR at line"}

// Newest returns the most recently modified file matching pattern.
func Newest(pattern string) (string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("bad log pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no log files match %q", pattern)
	}

	newest := ""
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		if newest == "" {
			newest = match
			continue
		}
		newestInfo, err := os.Stat(newest)
		if err != nil || info.ModTime().After(newestInfo.ModTime()) {
			newest = match
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no readable log files match %q", pattern)
	}
	return newest, nil
}

// Verify scans the newest upgrade log under logDir for error markers and the
// required success marker. The returned findings are empty for a clean log.
func Verify(logDir string) ([]string, error) {
	path, err := Newest(filepath.Join(logDir, LogPattern))
	if err != nil {
		return nil, err
	}
	return scanFile(path)
}

func scanFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upgrade log %s: %w", path, err)
	}
	defer f.Close()

	var findings []string
	sawSuccess := false

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.Contains(line, SuccessMarker) {
			sawSuccess = true
		}
		for _, marker := range errorMarkers {
			if strings.Contains(line, marker) {
				findings = append(findings, fmt.Sprintf("%s:%d: %s", filepath.Base(path), lineNo, strings.TrimSpace(line)))
				break
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read upgrade log %s: %w", path, err)
	}

	if !sawSuccess {
		findings = append(findings, fmt.Sprintf("%s: success marker %q not found", filepath.Base(path), SuccessMarker))
	}

	return findings, nil
}
