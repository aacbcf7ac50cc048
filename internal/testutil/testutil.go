// Package testutil provides shared test helpers for setting up content vaults,
// databases and the compile pipeline.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/panes/internal/compile"
	"github.com/starford/panes/internal/index"
	"github.com/starford/panes/internal/resolve"
	"github.com/starford/panes/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "panes-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary content directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// TestResolver returns a resolver with one registered app ("dtd-app") and
// one registered artifact ("demo-artifact").
func TestResolver() *resolve.Resolver {
	return resolve.New(resolve.Options{
		Registry: resolve.Registry{
			Apps:      map[string]string{"dtd-app": "https://project-ritual.example.app"},
			Artifacts: map[string]string{"demo-artifact": "https://claude.site/public/artifacts/demo/embed"},
		},
	})
}

// TestPipeline returns a sanitizing compile pipeline over TestResolver.
func TestPipeline() *compile.Pipeline {
	return compile.New(TestResolver(), compile.Options{Sanitize: true})
}

// WritePost writes a post file below dir, creating parent directories.
func WritePost(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
