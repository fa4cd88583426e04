package testsupport

import (
	"testing"

	"kmlc/internal/config"
	"kmlc/internal/credstore"
)

// MustOpenStore opens the SQLite credential store for cfg and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *credstore.SQLiteStore {
	t.Helper()

	store, err := credstore.Open(cfg.CredentialStorePath())
	if err != nil {
		t.Fatalf("credstore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
