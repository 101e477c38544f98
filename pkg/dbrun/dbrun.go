// Located in pkg/dbrun/dbrun.go
package dbrun

import (
	"context"
	"time"
)

// Credentials is one database login used for a single call.
type Credentials struct {
	Username string
	Password string
}

// Command describes one external process invocation. A Timeout is mandatory
// for every invocation made by the sequencer; zero means the launcher's
// caller-supplied context bounds the run.
type Command struct {
	Path     string
	Args     []string
	Elevated bool
	Timeout  time.Duration
}

// SQLClient defines the contract for database operations against one
// connection target. Implementations open a connection per call and close
// it on every exit path.
type SQLClient interface {
	Ping(ctx context.Context, creds Credentials) error
	Exec(ctx context.Context, creds Credentials, stmt string) error
	Query(ctx context.Context, creds Credentials, stmt string) ([][]string, error)
	ExecScript(ctx context.Context, creds Credentials, path string) error
}

// Launcher defines the contract for running external processes. A non-zero
// exit code is returned with a nil error; the caller decides whether that
// exit code fails the step.
type Launcher interface {
	Run(ctx context.Context, cmd Command) (int, error)
}

// KeyValueStore is the persistent settings store for values that must
// survive across runs, such as provisioned reader credentials.
type KeyValueStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}
