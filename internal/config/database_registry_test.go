package config_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/webintel/webintel/internal/config"
)

func TestLoadDatabaseRegistry_MissingFileYieldsEmptyRegistry(t *testing.T) {
	t.Parallel()
	registry, err := config.LoadDatabaseRegistry(filepath.Join(t.TempDir(), "databases.json"))
	if err != nil {
		t.Fatalf("LoadDatabaseRegistry: %v", err)
	}
	if len(registry.List()) != 0 {
		t.Errorf("List() = %v, want empty", registry.List())
	}
	if _, err := registry.Active(); !errors.Is(err, config.ErrDatabaseNotFound) {
		t.Errorf("Active() err = %v, want ErrDatabaseNotFound", err)
	}
}

func TestDatabaseRegistry_CreateFirstEntryBecomesActive(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "databases.json")
	registry, err := config.LoadDatabaseRegistry(path)
	if err != nil {
		t.Fatalf("LoadDatabaseRegistry: %v", err)
	}

	entry := config.DatabaseEntry{
		PostgresDSN:      "postgres://localhost/alpha",
		VectorCollection: "alpha_pages",
	}
	if err := registry.Create("alpha", entry, false); err != nil {
		t.Fatalf("Create: %v", err)
	}

	active, err := registry.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if active.Name != "alpha" || active.PostgresDSN != entry.PostgresDSN {
		t.Errorf("Active() = %+v, want name=alpha dsn=%s", active, entry.PostgresDSN)
	}

	// Reload from disk to confirm persistence round-trips.
	reloaded, err := config.LoadDatabaseRegistry(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	reloadedActive, err := reloaded.Active()
	if err != nil {
		t.Fatalf("reloaded Active: %v", err)
	}
	if reloadedActive.VectorCollection != entry.VectorCollection {
		t.Errorf("reloaded VectorCollection = %q, want %q", reloadedActive.VectorCollection, entry.VectorCollection)
	}
}

func TestDatabaseRegistry_CreateDuplicateNameFails(t *testing.T) {
	t.Parallel()
	registry, err := config.LoadDatabaseRegistry(filepath.Join(t.TempDir(), "databases.json"))
	if err != nil {
		t.Fatalf("LoadDatabaseRegistry: %v", err)
	}
	entry := config.DatabaseEntry{PostgresDSN: "postgres://localhost/a"}
	if err := registry.Create("alpha", entry, true); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if err := registry.Create("alpha", entry, false); err == nil {
		t.Error("expected error creating duplicate name, got nil")
	}
}

func TestDatabaseRegistry_SetActiveSwitchesAndPersists(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "databases.json")
	registry, err := config.LoadDatabaseRegistry(path)
	if err != nil {
		t.Fatalf("LoadDatabaseRegistry: %v", err)
	}
	if err := registry.Create("alpha", config.DatabaseEntry{PostgresDSN: "postgres://localhost/a"}, true); err != nil {
		t.Fatalf("Create alpha: %v", err)
	}
	if err := registry.Create("beta", config.DatabaseEntry{PostgresDSN: "postgres://localhost/b"}, false); err != nil {
		t.Fatalf("Create beta: %v", err)
	}

	if err := registry.SetActive("beta"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	active, err := registry.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if active.Name != "beta" {
		t.Errorf("Active().Name = %q, want beta", active.Name)
	}

	if err := registry.SetActive("missing"); !errors.Is(err, config.ErrDatabaseNotFound) {
		t.Errorf("SetActive(missing) err = %v, want ErrDatabaseNotFound", err)
	}
}
