// Package scripts renders the parameterized SQL scripts a run executes.
// Rendering is deterministic: the same template and values always produce
// byte-identical output.
package scripts

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Lines with these leading keywords are interactive in the source templates
// and are stripped from generated scripts.
var interactivePrefixes = []string{"ACCEPT ", "PROMPT ", "PAUSE"}

const terminator = "EXIT;"

// Generate renders the template at templatePath with the given substitution
// values and writes the result to destPath.
func Generate(templatePath, destPath string, values map[string]string) error {
	src, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("read template %s: %w", templatePath, err)
	}

	out := Render(src, values)

	if err := os.WriteFile(destPath, out, 0600); err != nil {
		return fmt.Errorf("write generated script %s: %w", destPath, err)
	}
	return nil
}

// Render strips interactive prompt lines, substitutes &name variables with
// static values, and appends the EXIT terminator if the template lacks one.
func Render(src []byte, values map[string]string) []byte {
	// Longest names first so &schema_password never matches &schema.
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	var b strings.Builder
	sawTerminator := false

	for _, line := range strings.Split(strings.ReplaceAll(string(src), "\r\n", "\n"), "\n") {
		if isInteractive(line) {
			continue
		}
		for _, name := range names {
			// &name. is the delimited form, &name the bare form.
			line = strings.ReplaceAll(line, "&"+name+".", values[name])
			line = strings.ReplaceAll(line, "&"+name, values[name])
		}
		if strings.EqualFold(strings.TrimSpace(line), terminator) {
			sawTerminator = true
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if !sawTerminator {
		b.WriteString(terminator)
		b.WriteString("\n")
	}

	return []byte(b.String())
}

func isInteractive(line string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(line))
	for _, prefix := range interactivePrefixes {
		if strings.HasPrefix(trimmed, prefix) || trimmed == strings.TrimSpace(prefix) {
			return true
		}
	}
	return false
}
