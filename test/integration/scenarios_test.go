package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provkit/internal/report"
	"provkit/internal/sequencer"
	"provkit/pkg/dbrun"
	"provkit/pkg/profile"
)

// scriptedDB is a SQL client whose failures are scripted by statement or
// script-path substring. Every call is recorded.
type scriptedDB struct {
	timezone   string
	pingErr    error
	execErrs   map[string]error
	queryRows  map[string][][]string
	scriptErrs map[string]error

	pings   int
	execs   []string
	scripts []string
}

func newScriptedDB(timezone string) *scriptedDB {
	return &scriptedDB{
		timezone:   timezone,
		execErrs:   map[string]error{},
		queryRows:  map[string][][]string{},
		scriptErrs: map[string]error{},
	}
}

func (d *scriptedDB) Ping(context.Context, dbrun.Credentials) error {
	d.pings++
	return d.pingErr
}

func (d *scriptedDB) Exec(_ context.Context, _ dbrun.Credentials, stmt string) error {
	d.execs = append(d.execs, stmt)
	for substr, err := range d.execErrs {
		if strings.Contains(stmt, substr) {
			return err
		}
	}
	return nil
}

func (d *scriptedDB) Query(_ context.Context, _ dbrun.Credentials, stmt string) ([][]string, error) {
	for substr, rows := range d.queryRows {
		if strings.Contains(stmt, substr) {
			return rows, nil
		}
	}
	return [][]string{{d.timezone}}, nil
}

func (d *scriptedDB) ExecScript(_ context.Context, _ dbrun.Credentials, path string) error {
	d.scripts = append(d.scripts, path)
	for substr, err := range d.scriptErrs {
		if strings.Contains(path, substr) {
			return err
		}
	}
	return nil
}

type recordingLauncher struct {
	commands []dbrun.Command
}

func (l *recordingLauncher) Run(_ context.Context, cmd dbrun.Command) (int, error) {
	l.commands = append(l.commands, cmd)
	return 0, nil
}

type memoryStore struct {
	values map[string]string
}

func (s *memoryStore) Get(key string) (string, bool, error) {
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *memoryStore) Set(key, value string) error {
	s.values[key] = value
	return nil
}

// provisioningProfile builds a complete, valid profile over temp directories
// with every template and dump file the sequence requires.
func provisioningProfile(t *testing.T) *profile.Profile {
	t.Helper()
	root := t.TempDir()

	templateDir := filepath.Join(root, "templates")
	dumpDir := filepath.Join(root, "dumps")
	require.NoError(t, os.MkdirAll(templateDir, 0755))
	require.NoError(t, os.MkdirAll(dumpDir, 0755))

	templates := map[string]string{
		"create_schema_owner.sql":  "CREATE TABLE base (id INTEGER);\n",
		"create_schema_sysdba.sql": "CREATE USER &schema_owner IDENTIFIED BY &schema_password;\n",
		"upgrade_schema.sql":       "ALTER TABLE base ADD COLUMN v TEXT;\n",
		"domain_model_init.sql":    "INSERT INTO base (id) VALUES (1);\n",
		"nordic_power_params.sql":  "UPDATE config_params SET value = 'nordic';\n",
	}
	for name, content := range templates {
		require.NoError(t, os.WriteFile(filepath.Join(templateDir, name), []byte(content), 0644))
	}
	for _, name := range []string{"params", "group", "group_params", "group_member", "group_members"} {
		require.NoError(t, os.WriteFile(filepath.Join(dumpDir, name+".dmp"), []byte("dump"), 0644))
	}

	return &profile.Profile{
		APIVersion: "v1",
		Kind:       "ProvisioningProfile",
		Customer: profile.Customer{
			Name:          "Nordic Power",
			SchemaVersion: "14.2.1",
		},
		Database: profile.Database{
			Driver:     "sqlite",
			DSN:        "file:" + filepath.Join(root, "target.db"),
			ServerName: "db01.nordic.local",
			Timezone:   "+01:00",
			Owner:      profile.CredentialPair{Username: "nordic_owner", Password: "owner-secret"},
			Sysdba:     profile.CredentialPair{Username: "sys", Password: "sys-secret"},
			App:        profile.CredentialPair{Username: "nordic_app", Password: "app-secret"},
		},
		Paths: profile.Paths{
			TemplateDir: templateDir,
			WorkDir:     filepath.Join(root, "work"),
			DumpDir:     dumpDir,
			LogDir:      filepath.Join(root, "logs"),
			StoreFile:   filepath.Join(root, "settings.db"),
		},
		Tools: profile.Tools{
			Import: []string{"imp", "{username}/{password}", "FILE={dump}"},
		},
	}
}

func TestScenario_AllStepsSucceed(t *testing.T) {
	p := provisioningProfile(t)
	db := newScriptedDB(p.Database.Timezone)
	launcher := &recordingLauncher{}
	store := &memoryStore{values: map[string]string{}}

	engine := sequencer.New(p, sequencer.Deps{DB: db, Launcher: launcher, Store: store})
	res := engine.Run(context.Background())

	require.Equal(t, sequencer.StatusCompletedClean, res.Status)
	assert.Empty(t, res.Incidents)
	assert.Empty(t, res.FatalStep)
	assert.NoError(t, res.Err)

	// The full external footprint of a clean run: one connectivity probe,
	// five configuration imports, persisted reader credentials.
	assert.Equal(t, 1, db.pings)
	assert.Len(t, launcher.commands, 5)
	assert.Contains(t, store.values, "reader-username")
	assert.Contains(t, store.values, "reader-password")
	assert.Contains(t, store.values, "reader-server-name")

	// The run summary artifact reflects the clean outcome.
	path, err := report.WriteSummaryFile(p.Paths.LogDir, res)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "No incidents recorded.")
}

func TestScenario_ConnectivityFailureAbortsImmediately(t *testing.T) {
	p := provisioningProfile(t)
	db := newScriptedDB(p.Database.Timezone)
	db.pingErr = fmt.Errorf("dial tcp 10.0.0.5:1521: connection refused")
	launcher := &recordingLauncher{}
	store := &memoryStore{values: map[string]string{}}

	engine := sequencer.New(p, sequencer.Deps{DB: db, Launcher: launcher, Store: store})
	res := engine.Run(context.Background())

	require.Equal(t, sequencer.StatusAborted, res.Status)
	assert.Equal(t, "Verify prerequisite connectivity", res.FatalStep)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "connection refused")

	// Nothing beyond the probe ran.
	assert.Empty(t, db.execs)
	assert.Empty(t, db.scripts)
	assert.Empty(t, launcher.commands)
	assert.Empty(t, store.values)

	// No working directories were created either.
	_, err := os.Stat(p.Paths.WorkDir)
	assert.True(t, os.IsNotExist(err))
}

func TestScenario_TimezoneCorrectionFailureIsRecoverable(t *testing.T) {
	p := provisioningProfile(t)
	db := newScriptedDB(p.Database.Timezone)
	db.queryRows["DBTIMEZONE"] = [][]string{{"UTC"}}
	db.execErrs["SET TIME_ZONE"] = fmt.Errorf("ORA-01031: insufficient privileges")
	launcher := &recordingLauncher{}
	store := &memoryStore{values: map[string]string{}}

	engine := sequencer.New(p, sequencer.Deps{DB: db, Launcher: launcher, Store: store})
	res := engine.Run(context.Background())

	require.Equal(t, sequencer.StatusCompletedWithIncidents, res.Status)
	assert.Empty(t, res.FatalStep)

	var tzIncidents []sequencer.Incident
	for _, inc := range res.Incidents {
		if inc.Step == "Correct database timezone" {
			tzIncidents = append(tzIncidents, inc)
		}
	}
	require.Len(t, tzIncidents, 1)
	assert.Contains(t, tzIncidents[0].Message, "ORA-01031")
	assert.False(t, tzIncidents[0].Skipped)

	// The rest of the sequence still ran: imports and reader provisioning.
	assert.Len(t, launcher.commands, 5)
	assert.Contains(t, store.values, "reader-username")
}

func TestScenario_GrantSubStepFailureSkipsRemainingSubSteps(t *testing.T) {
	p := provisioningProfile(t)
	db := newScriptedDB(p.Database.Timezone)
	db.execErrs["GRANT CREATE SESSION"] = fmt.Errorf("ORA-01031: insufficient privileges")
	launcher := &recordingLauncher{}
	store := &memoryStore{values: map[string]string{}}

	engine := sequencer.New(p, sequencer.Deps{DB: db, Launcher: launcher, Store: store})
	res := engine.Run(context.Background())

	require.Equal(t, sequencer.StatusCompletedWithIncidents, res.Status)

	var grantIncidents []sequencer.Incident
	for _, inc := range res.Incidents {
		if inc.Step == "Grant reader access" {
			grantIncidents = append(grantIncidents, inc)
		}
	}
	require.Len(t, grantIncidents, 3, "failure plus two recorded skips")
	assert.False(t, grantIncidents[0].Skipped)
	assert.True(t, grantIncidents[1].Skipped)
	assert.True(t, grantIncidents[2].Skipped)

	// The later sub-steps never reached the database.
	for _, stmt := range db.execs {
		assert.NotContains(t, stmt, "INSERT INTO app_users")
		assert.NotContains(t, stmt, "CREATE OR REPLACE TRIGGER")
	}

	// Reader credentials themselves were provisioned before the grant failed.
	assert.Contains(t, store.values, "reader-username")
}
