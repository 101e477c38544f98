package credentials

import (
	"testing"

	"provkit/pkg/profile"
)

// countingStore is an in-memory KeyValueStore that counts persist calls.
type countingStore struct {
	values map[string]string
	sets   int
}

func newCountingStore() *countingStore {
	return &countingStore{values: map[string]string{}}
}

func (s *countingStore) Get(key string) (string, bool, error) {
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *countingStore) Set(key, value string) error {
	s.sets++
	s.values[key] = value
	return nil
}

func testProfile() *profile.Profile {
	return &profile.Profile{
		Customer: profile.Customer{Name: "Acme Energy", SchemaVersion: "14.2.1"},
		Database: profile.Database{ServerName: "db01.acme.local"},
	}
}

func TestEnsureReader_GeneratesAndPersistsOnce(t *testing.T) {
	store := newCountingStore()
	p := testProfile()

	first, err := EnsureReader(store, p)
	if err != nil {
		t.Fatalf("EnsureReader failed: %s", err)
	}

	if first.Username != "acme_energy_reader" {
		t.Errorf("Username = %q", first.Username)
	}
	if first.Password == "" {
		t.Error("expected a generated password")
	}
	if first.ServerName != "db01.acme.local" {
		t.Errorf("ServerName = %q", first.ServerName)
	}
	if store.sets != 3 {
		t.Errorf("persist calls = %d, want 3 (one per key)", store.sets)
	}

	second, err := EnsureReader(store, p)
	if err != nil {
		t.Fatalf("second EnsureReader failed: %s", err)
	}
	if second != first {
		t.Errorf("second call = %+v, want identical %+v", second, first)
	}
	if store.sets != 3 {
		t.Errorf("persist calls after repeat = %d, want still 3", store.sets)
	}
}

func TestEnsureReader_ReusesPersistedValues(t *testing.T) {
	store := newCountingStore()
	store.values[KeyReaderUsername] = "legacy_reader"
	store.values[KeyReaderPassword] = "legacy-password"
	store.values[KeyReaderServerName] = "legacy-host"

	got, err := EnsureReader(store, testProfile())
	if err != nil {
		t.Fatalf("EnsureReader failed: %s", err)
	}

	want := Reader{Username: "legacy_reader", Password: "legacy-password", ServerName: "legacy-host"}
	if got != want {
		t.Errorf("EnsureReader = %+v, want %+v", got, want)
	}
	if store.sets != 0 {
		t.Errorf("persist calls = %d, want 0", store.sets)
	}
}

func TestDefaultUsername(t *testing.T) {
	tests := []struct {
		name     string
		customer string
		override string
		want     string
	}{
		{name: "customer name sanitized", customer: "Acme Energy", want: "acme_energy_reader"},
		{name: "punctuation replaced", customer: "Nor-Kraft A/S", want: "nor_kraft_a_s_reader"},
		{name: "explicit override wins", customer: "Acme", override: "smg_reader", want: "smg_reader"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testProfile()
			p.Customer.Name = tt.customer
			p.Database.ReaderUsername = tt.override
			if got := DefaultUsername(p); got != tt.want {
				t.Errorf("DefaultUsername = %q, want %q", got, tt.want)
			}
		})
	}
}
