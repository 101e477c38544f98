package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
)

type Style int

const (
	StyleNormal Style = iota
	StyleError
	StyleWarning
	StyleSuccess
	StyleInfo
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
	colorBlue   = "\033[34m"
	colorBold   = "\033[1m"
)

// Console writes human-readable output, colored when attached to a terminal.
type Console struct {
	out       io.Writer
	err       io.Writer
	useColors bool
}

func NewConsole() *Console {
	return &Console{
		out:       os.Stdout,
		err:       os.Stderr,
		useColors: isTerminal(),
	}
}

// NewConsoleWriter returns a console bound to the given writers, colors off.
// Used by tests and by the incident reporter when writing the summary file.
func NewConsoleWriter(out, err io.Writer) *Console {
	return &Console{out: out, err: err}
}

func isTerminal() bool {
	stat, _ := os.Stderr.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

func (c *Console) style(s Style, message string) string {
	if !c.useColors {
		return message
	}

	var color string
	switch s {
	case StyleError:
		color = colorRed + colorBold
	case StyleWarning:
		color = colorYellow
	case StyleSuccess:
		color = colorGreen
	case StyleInfo:
		color = colorBlue
	default:
		return message
	}

	return color + message + colorReset
}

func (c *Console) PrintError(message string) {
	fmt.Fprintf(c.err, "%s\n", c.style(StyleError, "Error: "+message))
}

func (c *Console) PrintWarning(message string) {
	fmt.Fprintf(c.err, "%s\n", c.style(StyleWarning, "Warning: "+message))
}

func (c *Console) PrintSuccess(message string) {
	fmt.Fprintf(c.out, "%s\n", c.style(StyleSuccess, message))
}

func (c *Console) PrintInfo(message string) {
	fmt.Fprintf(c.out, "%s\n", c.style(StyleInfo, message))
}

// FormatErrorMessage assembles the step, cause and suggestion lines of a
// failure into one message.
func (c *Console) FormatErrorMessage(step, cause, suggestion string) string {
	var parts []string

	if step != "" {
		parts = append(parts, step)
	}
	if cause != "" {
		parts = append(parts, fmt.Sprintf("Cause: %s", cause))
	}
	if suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", suggestion))
	}

	return strings.Join(parts, "\n")
}
