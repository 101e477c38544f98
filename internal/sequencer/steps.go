package sequencer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"provkit/internal/credentials"
	perrors "provkit/internal/errors"
	"provkit/internal/logscan"
	"provkit/internal/scripts"
	"provkit/pkg/dbrun"
	"provkit/pkg/profile"
)

// Template scripts expected under the profile's template directory.
const (
	tplSchemaOwner  = "create_schema_owner.sql"
	tplSchemaSysdba = "create_schema_sysdba.sql"
	tplUpgrade      = "upgrade_schema.sql"
	tplDomainModel  = "domain_model_init.sql"
)

const timezoneQuery = "SELECT DBTIMEZONE FROM DUAL"

// importOrder is the referential order the configuration dump set must be
// imported in: members reference groups, groups reference params.
var importOrder = []string{"params", "group", "group_params", "group_member", "group_members"}

// purgeStatements remove the default configuration data in reverse
// referential order.
var purgeStatements = []string{
	"DELETE FROM config_group_members",
	"DELETE FROM config_group_member",
	"DELETE FROM config_group_params",
	"DELETE FROM config_group",
	"DELETE FROM config_params",
}

// buildSteps assembles the ordered step table for one profile. Policy and
// taint wiring live here as data; the engine applies them uniformly.
func buildSteps(p *profile.Profile, deps Deps) []Step {
	owner := dbrun.Credentials{Username: p.Database.Owner.Username, Password: p.Database.Owner.Password}
	sysdba := dbrun.Credentials{Username: p.Database.Sysdba.Username, Password: p.Database.Sysdba.Password}

	return []Step{
		{
			Name:   "Verify prerequisite connectivity",
			Policy: Fatal,
			Action: func(ctx context.Context, _ *state) error {
				cctx, cancel := context.WithTimeout(ctx, p.Timeouts.Connect())
				defer cancel()
				if err := deps.DB.Ping(cctx, sysdba); err != nil {
					return perrors.NewConnectivityError(
						"Verify prerequisite connectivity",
						"cannot reach the database as sysdba",
						"check the DSN and the sysdba credentials",
						err)
				}
				return nil
			},
		},
		{
			Name:   "Verify prerequisite artifacts",
			Policy: Fatal,
			Action: func(_ context.Context, _ *state) error {
				var missing []string
				for _, path := range requiredArtifacts(p) {
					if _, err := os.Stat(path); err != nil {
						missing = append(missing, path)
					}
				}
				if len(missing) > 0 {
					return perrors.NewValidationError(
						"Verify prerequisite artifacts",
						fmt.Sprintf("missing required files: %s", strings.Join(missing, ", ")),
						"check the template and dump directories",
						nil)
				}
				return nil
			},
		},
		{
			Name:   "Create working directories",
			Policy: Fatal,
			Action: func(_ context.Context, _ *state) error {
				for _, dir := range []string{p.Paths.WorkDir, p.Paths.LogDir} {
					if err := os.MkdirAll(dir, 0750); err != nil {
						return fmt.Errorf("create directory %s: %w", dir, err)
					}
				}
				return nil
			},
		},
		{
			Name:   "Generate provisioning scripts",
			Policy: Fatal,
			Action: func(_ context.Context, _ *state) error {
				values := scriptValues(p)
				for _, tpl := range []string{tplSchemaOwner, tplSchemaSysdba} {
					src := filepath.Join(p.Paths.TemplateDir, tpl)
					if err := scripts.Generate(src, generatedScriptPath(p, tpl), values); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Name:   "Execute schema creation scripts",
			Policy: Fatal,
			Action: func(ctx context.Context, _ *state) error {
				if err := execScript(ctx, deps, p, sysdba, generatedScriptPath(p, tplSchemaSysdba)); err != nil {
					return fmt.Errorf("sysdba script: %w", err)
				}
				if err := execScript(ctx, deps, p, owner, generatedScriptPath(p, tplSchemaOwner)); err != nil {
					return fmt.Errorf("schema owner script: %w", err)
				}
				return nil
			},
		},
		{
			Name:   "Remove generated scripts",
			Policy: Recoverable,
			Action: func(_ context.Context, _ *state) error {
				var errs []error
				for _, tpl := range []string{tplSchemaOwner, tplSchemaSysdba} {
					if err := os.Remove(generatedScriptPath(p, tpl)); err != nil && !os.IsNotExist(err) {
						errs = append(errs, err)
					}
				}
				return errors.Join(errs...)
			},
		},
		{
			Name:   "Correct database timezone",
			Policy: Recoverable,
			Action: func(ctx context.Context, st *state) error {
				return correctTimezone(ctx, p, deps, st, sysdba)
			},
		},
		{
			Name:   "Run schema upgrade (pass 1)",
			Policy: Fatal,
			Action: func(ctx context.Context, _ *state) error {
				return runUpgrade(ctx, p, deps, owner, 1)
			},
		},
		{
			Name:   "Purge default configuration",
			Policy: Recoverable,
			Taints: []Taint{TaintConfigDirty},
			Action: func(ctx context.Context, _ *state) error {
				for _, stmt := range purgeStatements {
					if err := execStmt(ctx, deps, p, owner, stmt); err != nil {
						return fmt.Errorf("%s: %w", stmt, err)
					}
				}
				return nil
			},
		},
		{
			Name:   "Import customer configuration",
			Policy: Fatal,
			Action: func(ctx context.Context, _ *state) error {
				for _, name := range importOrder {
					dump := filepath.Join(p.Paths.DumpDir, name+".dmp")
					code, err := deps.Launcher.Run(ctx, importCommand(p, dump))
					if err != nil {
						return fmt.Errorf("import %s: %w", name, err)
					}
					if code != 0 {
						return perrors.NewExternalToolError(
							"Import customer configuration",
							fmt.Sprintf("import of %s exited with code %d", name, code),
							"inspect the import tool output in the trace log",
							nil)
					}
				}
				return nil
			},
		},
		{
			Name:   "Apply customer parameter overrides",
			Policy: Recoverable,
			Taints: []Taint{TaintConfigDirty},
			Action: func(ctx context.Context, _ *state) error {
				return execScript(ctx, deps, p, owner, filepath.Join(p.Paths.TemplateDir, customerParamsFile(p)))
			},
		},
		{
			Name:     "Load domain model",
			Policy:   Recoverable,
			Requires: []Taint{TaintConfigDirty},
			Action: func(ctx context.Context, _ *state) error {
				return execScript(ctx, deps, p, owner, filepath.Join(p.Paths.TemplateDir, tplDomainModel))
			},
		},
		{
			Name:   "Run schema upgrade (pass 2)",
			Policy: Recoverable,
			Action: func(ctx context.Context, _ *state) error {
				return runUpgrade(ctx, p, deps, owner, 2)
			},
		},
		{
			Name:   "Provision reader credentials",
			Policy: Recoverable,
			Taints: []Taint{TaintReaderMissing},
			Action: func(_ context.Context, _ *state) error {
				_, err := credentials.EnsureReader(deps.Store, p)
				return err
			},
		},
		{
			Name:     "Grant reader access",
			Policy:   Recoverable,
			Requires: []Taint{TaintReaderMissing},
			Action: func(ctx context.Context, st *state) error {
				return grantReaderAccess(ctx, p, deps, st, owner, sysdba)
			},
		},
		{
			Name:   "Verify upgrade logs",
			Policy: Recoverable,
			Action: func(_ context.Context, st *state) error {
				findings, err := logscan.Verify(p.Paths.LogDir)
				if err != nil {
					return err
				}
				for _, finding := range findings {
					st.record("Verify upgrade logs", finding)
				}
				return nil
			},
		},
	}
}

// correctTimezone queries the database timezone and, on mismatch, corrects
// it and restarts the database service. Each sub-failure surfaces on its own.
func correctTimezone(ctx context.Context, p *profile.Profile, deps Deps, st *state, sysdba dbrun.Credentials) error {
	qctx, cancel := context.WithTimeout(ctx, p.Timeouts.SQL())
	defer cancel()
	rows, err := deps.DB.Query(qctx, sysdba, timezoneQuery)
	if err != nil {
		return fmt.Errorf("query timezone: %w", err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return fmt.Errorf("timezone query returned no rows")
	}

	current := strings.TrimSpace(rows[0][0])
	if strings.EqualFold(current, p.Database.Timezone) {
		return nil
	}

	slog.Info("Correcting database timezone", "current", current, "expected", p.Database.Timezone)
	stmt := fmt.Sprintf("ALTER DATABASE SET TIME_ZONE = '%s'", p.Database.Timezone)
	if err := execStmt(ctx, deps, p, sysdba, stmt); err != nil {
		return fmt.Errorf("correct timezone from %s to %s: %w", current, p.Database.Timezone, err)
	}

	if len(p.Database.ServiceRestart) == 0 {
		st.record("Correct database timezone",
			"timezone corrected but no service restart command is configured; restart the database service manually")
		return nil
	}

	cmd := dbrun.Command{
		Path:     p.Database.ServiceRestart[0],
		Args:     p.Database.ServiceRestart[1:],
		Elevated: true,
		Timeout:  p.Timeouts.Process(),
	}
	code, err := deps.Launcher.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("restart database service: %w", err)
	}
	if code != 0 {
		return perrors.NewExternalToolError(
			"Correct database timezone",
			fmt.Sprintf("service restart exited with code %d", code),
			"", nil)
	}
	return nil
}

// grantReaderAccess runs the three reader sub-steps in order. A sub-step
// failure records its incident and the remaining sub-steps as skipped; the
// step itself does not abort anything.
func grantReaderAccess(ctx context.Context, p *profile.Profile, deps Deps, st *state, owner, sysdba dbrun.Credentials) error {
	const stepName = "Grant reader access"

	reader, err := credentials.EnsureReader(deps.Store, p)
	if err != nil {
		return fmt.Errorf("look up reader credentials: %w", err)
	}

	subs := []struct {
		name  string
		creds dbrun.Credentials
		stmt  string
	}{
		{
			name:  "grant reader privileges",
			creds: sysdba,
			stmt:  fmt.Sprintf("GRANT CREATE SESSION, SELECT ANY TABLE TO %s IDENTIFIED BY %s", reader.Username, reader.Password),
		},
		{
			name:  "link reader identity",
			creds: owner,
			stmt: fmt.Sprintf("INSERT INTO app_users (username, server_name) VALUES ('%s', '%s')",
				reader.Username, reader.ServerName),
		},
		{
			name:  "install access trigger",
			creds: owner,
			stmt:  readerTrigger(p.Database.Owner.Username, reader.Username),
		},
	}

	for i, sub := range subs {
		if err := execStmt(ctx, deps, p, sub.creds, sub.stmt); err != nil {
			st.record(stepName, fmt.Sprintf("%s: %v", sub.name, err))
			for _, rest := range subs[i+1:] {
				st.recordSkip(stepName, fmt.Sprintf("%s skipped: %s failed", rest.name, sub.name))
			}
			return nil
		}
	}
	return nil
}

func readerTrigger(schemaOwner, readerUser string) string {
	return fmt.Sprintf(`CREATE OR REPLACE TRIGGER %s.reader_access_check
AFTER LOGON ON DATABASE
BEGIN
  IF SYS_CONTEXT('USERENV', 'SESSION_USER') = UPPER('%s') THEN
    %s.app_access.register_reader('%s');
  END IF;
END;`, schemaOwner, readerUser, schemaOwner, readerUser)
}

// runUpgrade executes one upgrade pass and spools its log artifact into the
// profile's log directory for later verification.
func runUpgrade(ctx context.Context, p *profile.Profile, deps Deps, owner dbrun.Credentials, pass int) error {
	script := filepath.Join(p.Paths.TemplateDir, tplUpgrade)
	runErr := execScript(ctx, deps, p, owner, script)
	writeUpgradeLog(p, pass, script, runErr)
	if runErr != nil {
		return fmt.Errorf("upgrade pass %d: %w", pass, runErr)
	}
	return nil
}

func writeUpgradeLog(p *profile.Profile, pass int, script string, runErr error) {
	name := fmt.Sprintf("upgrade_pass%d_%s.log", pass, time.Now().Format("20060102T150405"))
	var b strings.Builder
	fmt.Fprintf(&b, "Schema upgrade pass %d\n", pass)
	fmt.Fprintf(&b, "Script: %s\n", script)
	fmt.Fprintf(&b, "Schema version: %s\n", p.Customer.SchemaVersion)
	if runErr != nil {
		fmt.Fprintf(&b, "ERROR at line 1: %v\n", runErr)
	} else {
		fmt.Fprintf(&b, "%s\n", logscan.SuccessMarker)
	}
	if err := os.WriteFile(filepath.Join(p.Paths.LogDir, name), []byte(b.String()), 0640); err != nil {
		slog.Warn("Failed to write upgrade log artifact", "pass", pass, "error", err)
	}
}

// requiredArtifacts lists every file the sequence needs before it starts.
func requiredArtifacts(p *profile.Profile) []string {
	paths := []string{
		filepath.Join(p.Paths.TemplateDir, tplSchemaOwner),
		filepath.Join(p.Paths.TemplateDir, tplSchemaSysdba),
		filepath.Join(p.Paths.TemplateDir, tplUpgrade),
		filepath.Join(p.Paths.TemplateDir, tplDomainModel),
		filepath.Join(p.Paths.TemplateDir, customerParamsFile(p)),
	}
	for _, name := range importOrder {
		paths = append(paths, filepath.Join(p.Paths.DumpDir, name+".dmp"))
	}
	return paths
}

// scriptValues are the static substitutions injected into generated scripts.
func scriptValues(p *profile.Profile) map[string]string {
	values := map[string]string{
		"customer":        p.Customer.Name,
		"schema_version":  p.Customer.SchemaVersion,
		"schema_owner":    p.Database.Owner.Username,
		"schema_password": p.Database.Owner.Password,
		"app_user":        p.Database.App.Username,
		"app_password":    p.Database.App.Password,
	}
	if p.Customer.Language != "" {
		values["language"] = p.Customer.Language
	}
	if p.Customer.Locale != "" {
		values["locale"] = p.Customer.Locale
	}
	if p.Storage.TimeSeriesDir != "" {
		values["timeseries_dir"] = p.Storage.TimeSeriesDir
		values["icons_dir"] = p.Storage.IconsDir
	}
	return values
}

func generatedScriptPath(p *profile.Profile, tpl string) string {
	return filepath.Join(p.Paths.WorkDir, strings.TrimSuffix(tpl, ".sql")+".gen.sql")
}

func customerParamsFile(p *profile.Profile) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, strings.ToLower(p.Customer.Name))
	return slug + "_params.sql"
}

// importCommand expands the profile's import tool template for one dump
// file. {username}/{password} expand to the application credentials; {dump}
// to the dump path, appended as the last argument when absent.
func importCommand(p *profile.Profile, dumpPath string) dbrun.Command {
	base := p.Tools.Import
	args := make([]string, 0, len(base))
	usedDump := false
	for _, arg := range base[1:] {
		arg = strings.ReplaceAll(arg, "{username}", p.Database.App.Username)
		arg = strings.ReplaceAll(arg, "{password}", p.Database.App.Password)
		if strings.Contains(arg, "{dump}") {
			arg = strings.ReplaceAll(arg, "{dump}", dumpPath)
			usedDump = true
		}
		args = append(args, arg)
	}
	if !usedDump {
		args = append(args, dumpPath)
	}
	return dbrun.Command{Path: base[0], Args: args, Timeout: p.Timeouts.Process()}
}

func execStmt(ctx context.Context, deps Deps, p *profile.Profile, creds dbrun.Credentials, stmt string) error {
	sctx, cancel := context.WithTimeout(ctx, p.Timeouts.SQL())
	defer cancel()
	return deps.DB.Exec(sctx, creds, stmt)
}

func execScript(ctx context.Context, deps Deps, p *profile.Profile, creds dbrun.Credentials, path string) error {
	sctx, cancel := context.WithTimeout(ctx, p.Timeouts.SQL())
	defer cancel()
	return deps.DB.ExecScript(sctx, creds, path)
}
