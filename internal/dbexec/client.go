// Package dbexec implements the SQL execution client over database/sql.
// Every call opens its own connection and closes it before returning; a
// script runs its statements on one connection it owns for its duration.
package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"provkit/pkg/dbrun"
)

// Client executes statements and script files against one connection target.
type Client struct {
	driver string
	dsn    string
}

var _ dbrun.SQLClient = (*Client)(nil)

// New returns a client for the given driver and DSN. The DSN may contain
// {username} and {password} placeholders filled in from the per-call
// credentials.
func New(driver, dsn string) *Client {
	return &Client{driver: driver, dsn: dsn}
}

func (c *Client) open(creds dbrun.Credentials) (*sql.DB, error) {
	dsn := strings.ReplaceAll(c.dsn, "{username}", creds.Username)
	dsn = strings.ReplaceAll(dsn, "{password}", creds.Password)

	db, err := sql.Open(c.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", c.driver, err)
	}
	return db, nil
}

// Ping verifies connectivity with the given credentials.
func (c *Client) Ping(ctx context.Context, creds dbrun.Credentials) error {
	db, err := c.open(creds)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Exec runs a single ad-hoc statement.
func (c *Client) Exec(ctx context.Context, creds dbrun.Credentials, stmt string) error {
	db, err := c.open(creds)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("execute statement: %w", err)
	}
	return nil
}

// Query runs a single statement and returns all rows as strings. NULL
// columns come back as empty strings.
func (c *Client) Query(ctx context.Context, creds dbrun.Credentials, stmt string) ([][]string, error) {
	db, err := c.open(creds)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out [][]string
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		scan := make([]any, len(cols))
		for i := range values {
			scan[i] = &values[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = v.String
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// ExecScript runs the statements of a script file in order on one
// connection. Execution stops at the script's EXIT terminator.
func (c *Client) ExecScript(ctx context.Context, creds dbrun.Credentials, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script %s: %w", path, err)
	}

	db, err := c.open(creds)
	if err != nil {
		return err
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	for i, stmt := range SplitStatements(string(src)) {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("script %s statement %d: %w", path, i+1, err)
		}
	}
	return nil
}

// SplitStatements splits a SQL script into statements on trailing
// semicolons, dropping blank lines and -- comments, and stopping at EXIT.
func SplitStatements(src string) []string {
	var stmts []string
	var b strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(b.String()), ";"))
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		b.Reset()
	}

	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		if strings.EqualFold(trimmed, "EXIT") || strings.EqualFold(trimmed, "EXIT;") {
			break
		}
		b.WriteString(line)
		b.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	flush()

	return stmts
}
