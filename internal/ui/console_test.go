package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestConsole_PlainOutputWithoutTerminal(t *testing.T) {
	var out, errBuf bytes.Buffer
	c := NewConsoleWriter(&out, &errBuf)

	c.PrintSuccess("provisioning completed")
	c.PrintInfo("17 steps executed")
	c.PrintWarning("timezone correction failed")
	c.PrintError("schema creation aborted")

	if got := out.String(); got != "provisioning completed\n17 steps executed\n" {
		t.Errorf("stdout = %q", got)
	}
	if !strings.Contains(errBuf.String(), "Warning: timezone correction failed") {
		t.Errorf("stderr missing warning: %q", errBuf.String())
	}
	if !strings.Contains(errBuf.String(), "Error: schema creation aborted") {
		t.Errorf("stderr missing error: %q", errBuf.String())
	}
	if strings.Contains(out.String()+errBuf.String(), "\033[") {
		t.Error("expected no ANSI escapes without a terminal")
	}
}

func TestConsole_ColoredOutput(t *testing.T) {
	var out, errBuf bytes.Buffer
	c := &Console{out: &out, err: &errBuf, useColors: true}

	c.PrintError("boom")
	if !strings.Contains(errBuf.String(), colorRed) {
		t.Errorf("expected red escape in %q", errBuf.String())
	}
	if !strings.Contains(errBuf.String(), colorReset) {
		t.Errorf("expected reset escape in %q", errBuf.String())
	}
}

func TestFormatErrorMessage(t *testing.T) {
	c := NewConsoleWriter(nil, nil)

	tests := []struct {
		name                    string
		step, cause, suggestion string
		want                    string
	}{
		{
			name: "all parts",
			step: "Import customer configuration", cause: "import tool exited 12", suggestion: "check the dump set",
			want: "Import customer configuration\nCause: import tool exited 12\nSuggestion: check the dump set",
		},
		{
			name: "cause only",
			cause: "cannot reach database",
			want:  "Cause: cannot reach database",
		},
		{
			name: "step only",
			step: "Validate inputs",
			want: "Validate inputs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.FormatErrorMessage(tt.step, tt.cause, tt.suggestion); got != tt.want {
				t.Errorf("FormatErrorMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
