package testsupport

import (
	"testing"

	"platen/internal/config"
	"platen/internal/queue"
)

// MustOpenStore opens a queue store against the test config and closes it
// when the test finishes.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
