// Package credentials provisions the reader account settings. Values are
// looked up in the persistent store first so repeated runs reuse what an
// earlier run created.
package credentials

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"provkit/pkg/dbrun"
	"provkit/pkg/profile"
)

// Store keys for the reader account settings.
const (
	KeyReaderUsername   = "reader-username"
	KeyReaderPassword   = "reader-password"
	KeyReaderServerName = "reader-server-name"
)

// Reader is the provisioned reader account.
type Reader struct {
	Username   string
	Password   string
	ServerName string
}

// EnsureReader returns the reader credentials, creating and persisting any
// value not already in the store. Calling it again yields the same
// credentials with no further persists.
func EnsureReader(store dbrun.KeyValueStore, p *profile.Profile) (Reader, error) {
	username, err := ensure(store, KeyReaderUsername, func() string {
		return DefaultUsername(p)
	})
	if err != nil {
		return Reader{}, err
	}

	password, err := ensure(store, KeyReaderPassword, uuid.NewString)
	if err != nil {
		return Reader{}, err
	}

	serverName, err := ensure(store, KeyReaderServerName, func() string {
		return p.Database.ServerName
	})
	if err != nil {
		return Reader{}, err
	}

	return Reader{Username: username, Password: password, ServerName: serverName}, nil
}

// DefaultUsername derives the reader account name from the profile: the
// configured override, or <customer>_reader.
func DefaultUsername(p *profile.Profile) string {
	if p.Database.ReaderUsername != "" {
		return p.Database.ReaderUsername
	}
	name := strings.ToLower(p.Customer.Name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
	return name + "_reader"
}

func ensure(store dbrun.KeyValueStore, key string, generate func() string) (string, error) {
	value, ok, err := store.Get(key)
	if err != nil {
		return "", fmt.Errorf("look up %s: %w", key, err)
	}
	if ok {
		return value, nil
	}

	value = generate()
	if err := store.Set(key, value); err != nil {
		return "", fmt.Errorf("persist %s: %w", key, err)
	}
	return value, nil
}
