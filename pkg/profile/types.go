package profile

import "time"

// Profile is the root object that holds the entire configuration for one
// provisioning run. It's populated by parsing the user's provisioning YAML
// file and is immutable for the duration of the run.
type Profile struct {
	APIVersion string   `yaml:"apiVersion" validate:"required"`
	Kind       string   `yaml:"kind" validate:"required,eq=ProvisioningProfile"`
	Customer   Customer `yaml:"customer" validate:"required"`
	Database   Database `yaml:"database" validate:"required"`
	Paths      Paths    `yaml:"paths" validate:"required"`
	Storage    Storage  `yaml:"storage"`
	Tools      Tools    `yaml:"tools" validate:"required"`
	Timeouts   Timeouts `yaml:"timeouts"`
}

// Customer identifies the installation the database is provisioned for.
type Customer struct {
	Name          string `yaml:"name" validate:"required"`
	SchemaVersion string `yaml:"schemaVersion" validate:"required,schema_version"`
	Language      string `yaml:"language" validate:"omitempty,alpha"`
	Locale        string `yaml:"locale" validate:"omitempty,locale_code"`
}

// Database describes the connection target and the credential set.
// The DSN may contain {username} and {password} placeholders which are
// filled in per call from the credential pair the step runs as.
type Database struct {
	Driver         string         `yaml:"driver" validate:"required"`
	DSN            string         `yaml:"dsn" validate:"required"`
	ServerName     string         `yaml:"serverName" validate:"required"`
	Timezone       string         `yaml:"timezone" validate:"required,timezone_spec"`
	Owner          CredentialPair `yaml:"owner" validate:"required"`
	Sysdba         CredentialPair `yaml:"sysdba" validate:"required"`
	App            CredentialPair `yaml:"app" validate:"required"`
	ReaderUsername string         `yaml:"readerUsername"`
	// ServiceRestart is the command run to restart the database service
	// after a timezone correction. Empty means no restart is attempted.
	ServiceRestart []string `yaml:"serviceRestart"`
}

// CredentialPair is one username/password login.
type CredentialPair struct {
	Username string `yaml:"username" validate:"required"`
	Password string `yaml:"password" validate:"required"`
}

// Paths are the filesystem roots the run reads from and writes to.
type Paths struct {
	TemplateDir string `yaml:"templateDir" validate:"required"`
	WorkDir     string `yaml:"workDir" validate:"required"`
	DumpDir     string `yaml:"dumpDir" validate:"required"`
	LogDir      string `yaml:"logDir" validate:"required"`
	StoreFile   string `yaml:"storeFile" validate:"required"`
}

// Storage holds the optional non-managed-storage directories. Both must be
// set together or neither; a partial pair is a validation failure.
type Storage struct {
	TimeSeriesDir string `yaml:"timeSeriesDir" validate:"required_with=IconsDir"`
	IconsDir      string `yaml:"iconsDir" validate:"required_with=TimeSeriesDir"`
}

// Tools holds command templates for the external utilities the sequence
// shells out to. Arguments may contain {username}, {password} and {dump}
// placeholders.
type Tools struct {
	Import []string `yaml:"import" validate:"required,min=1"`
}

// Timeouts bounds every external invocation, in seconds. Zero values fall
// back to the defaults below. The mapstructure tags are load-bearing: the
// profile is decoded through viper, and these field names do not match the
// YAML keys the way the rest of the schema does.
type Timeouts struct {
	ConnectSeconds int `yaml:"connect" mapstructure:"connect"`
	SQLSeconds     int `yaml:"sql" mapstructure:"sql"`
	ProcessSeconds int `yaml:"process" mapstructure:"process"`
}

const (
	defaultConnectTimeout = 30 * time.Second
	defaultSQLTimeout     = 5 * time.Minute
	defaultProcessTimeout = 15 * time.Minute
)

func (t Timeouts) Connect() time.Duration {
	if t.ConnectSeconds > 0 {
		return time.Duration(t.ConnectSeconds) * time.Second
	}
	return defaultConnectTimeout
}

func (t Timeouts) SQL() time.Duration {
	if t.SQLSeconds > 0 {
		return time.Duration(t.SQLSeconds) * time.Second
	}
	return defaultSQLTimeout
}

func (t Timeouts) Process() time.Duration {
	if t.ProcessSeconds > 0 {
		return time.Duration(t.ProcessSeconds) * time.Second
	}
	return defaultProcessTimeout
}
