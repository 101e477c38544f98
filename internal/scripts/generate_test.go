package scripts

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const ownerTemplate = `-- create schema owner
ACCEPT schema_owner PROMPT 'Schema owner: '
ACCEPT schema_password PROMPT 'Password: ' HIDE
PROMPT Creating schema owner...
CREATE USER &schema_owner IDENTIFIED BY &schema_password;
GRANT CONNECT, RESOURCE TO &schema_owner.;
ALTER USER &schema_owner DEFAULT TABLESPACE &tablespace.;
`

func testValues() map[string]string {
	return map[string]string{
		"schema_owner":    "acme_owner",
		"schema_password": "owner-secret",
		"tablespace":      "SMG_DATA",
	}
}

func TestRender_SubstitutionAndStripping(t *testing.T) {
	out := string(Render([]byte(ownerTemplate), testValues()))

	if strings.Contains(out, "ACCEPT") || strings.Contains(out, "PROMPT") {
		t.Errorf("interactive lines not stripped:\n%s", out)
	}
	if strings.Contains(out, "&schema_owner") || strings.Contains(out, "&schema_password") || strings.Contains(out, "&tablespace") {
		t.Errorf("substitution variables left in output:\n%s", out)
	}
	if !strings.Contains(out, "CREATE USER acme_owner IDENTIFIED BY owner-secret;") {
		t.Errorf("expected substituted statement:\n%s", out)
	}
	if !strings.Contains(out, "DEFAULT TABLESPACE SMG_DATA;") {
		t.Errorf("delimited form not substituted:\n%s", out)
	}
	if !strings.HasSuffix(out, "EXIT;\n") {
		t.Errorf("terminator not appended:\n%s", out)
	}
}

func TestRender_OverlappingVariableNames(t *testing.T) {
	out := string(Render([]byte("DROP USER &schema;\nDROP USER &schema_owner;\n"), map[string]string{
		"schema":       "acme",
		"schema_owner": "acme_owner",
	}))

	if !strings.Contains(out, "DROP USER acme;") {
		t.Errorf("short variable broken:\n%s", out)
	}
	if !strings.Contains(out, "DROP USER acme_owner;") {
		t.Errorf("long variable shadowed by short one:\n%s", out)
	}
}

func TestRender_ExistingTerminatorKept(t *testing.T) {
	out := Render([]byte("SELECT 1;\nEXIT;\n"), nil)

	if bytes.Count(out, []byte("EXIT;")) != 1 {
		t.Errorf("terminator duplicated:\n%s", out)
	}
}

func TestRender_Deterministic(t *testing.T) {
	first := Render([]byte(ownerTemplate), testValues())
	second := Render([]byte(ownerTemplate), testValues())

	if !bytes.Equal(first, second) {
		t.Error("rendering the same template twice produced different bytes")
	}
}

func TestRender_NormalizesWindowsLineEndings(t *testing.T) {
	out := Render([]byte("SELECT 1;\r\nSELECT 2;\r\n"), nil)

	if bytes.Contains(out, []byte("\r")) {
		t.Errorf("carriage returns left in output: %q", out)
	}
}

func TestGenerate_WritesFile(t *testing.T) {
	dir := t.TempDir()
	templatePath := filepath.Join(dir, "create_schema_owner.sql")
	destPath := filepath.Join(dir, "create_schema_owner.gen.sql")

	if err := os.WriteFile(templatePath, []byte(ownerTemplate), 0644); err != nil {
		t.Fatalf("Failed to write template: %s", err)
	}

	if err := Generate(templatePath, destPath, testValues()); err != nil {
		t.Fatalf("Generate failed: %s", err)
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("Failed to read generated script: %s", err)
	}
	if !bytes.Equal(got, Render([]byte(ownerTemplate), testValues())) {
		t.Error("generated file differs from rendered output")
	}
}

func TestGenerate_MissingTemplate(t *testing.T) {
	err := Generate("/nonexistent/template.sql", filepath.Join(t.TempDir(), "out.sql"), nil)
	if err == nil {
		t.Fatal("Expected error for missing template")
	}
}
