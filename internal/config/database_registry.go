package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// DatabaseEntry is one registered investigation database: a Postgres DSN
// plus the vector collection name that stores its embeddings (spec §6
// "Persisted state layout"), letting an operator point the CLI at
// different knowledge bases without editing the YAML config.
type DatabaseEntry struct {
	Name             string    `json:"name"`
	PostgresDSN      string    `json:"postgres_dsn"`
	VectorCollection string    `json:"vector_collection"`
	Description      string    `json:"description,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// databaseRegistryFile is the JSON-on-disk shape of a [DatabaseRegistry],
// matching the original system's database registry format (active name +
// a map of named entries) rather than the YAML shape used for [Config].
type databaseRegistryFile struct {
	Active    string                   `json:"active"`
	Databases map[string]DatabaseEntry `json:"databases"`
}

// ErrDatabaseNotFound is returned when a named entry doesn't exist in the
// registry.
var ErrDatabaseNotFound = errors.New("config: database not found in registry")

// DatabaseRegistry is a JSON-backed, concurrency-safe store of named
// (Postgres DSN, vector collection) pairs, loaded from
// [StorageConfig.RegistryPath]. It is independent of the YAML [Config]
// file and of [Watcher]'s hot-reload: registry entries are switched
// explicitly, not polled.
type DatabaseRegistry struct {
	mu   sync.RWMutex
	path string
	file databaseRegistryFile
}

// LoadDatabaseRegistry reads the registry JSON file at path. If the file
// does not exist, a fresh registry with no entries is returned and the
// first Create call becomes the initial write — mirroring the original
// database manager's "create default registry on first use" behaviour,
// minus the auto-created default entry, since this system has no
// built-in default database name to seed it with.
func LoadDatabaseRegistry(path string) (*DatabaseRegistry, error) {
	r := &DatabaseRegistry{
		path: path,
		file: databaseRegistryFile{Databases: map[string]DatabaseEntry{}},
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read database registry %q: %w", path, err)
	}
	if err := json.Unmarshal(data, &r.file); err != nil {
		return nil, fmt.Errorf("config: parse database registry %q: %w", path, err)
	}
	if r.file.Databases == nil {
		r.file.Databases = map[string]DatabaseEntry{}
	}
	return r, nil
}

// save writes the registry back to disk as indented JSON, matching the
// original's json.dump(..., indent=2) formatting.
func (r *DatabaseRegistry) save() error {
	data, err := json.MarshalIndent(r.file, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal database registry: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("config: write database registry %q: %w", r.path, err)
	}
	return nil
}

// List returns every registered database entry.
func (r *DatabaseRegistry) List() []DatabaseEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DatabaseEntry, 0, len(r.file.Databases))
	for _, e := range r.file.Databases {
		out = append(out, e)
	}
	return out
}

// Active returns the currently active database entry, or
// [ErrDatabaseNotFound] if the registry is empty or its active pointer
// references an entry that no longer exists.
func (r *DatabaseRegistry) Active() (DatabaseEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.file.Databases[r.file.Active]
	if !ok {
		return DatabaseEntry{}, fmt.Errorf("%w: active=%q", ErrDatabaseNotFound, r.file.Active)
	}
	return entry, nil
}

// Create registers a new database entry under name. If setActive is true,
// or the registry currently has no active entry, it becomes active.
// Persists the registry to disk before returning.
func (r *DatabaseRegistry) Create(name string, entry DatabaseEntry, setActive bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.file.Databases[name]; exists {
		return fmt.Errorf("config: database %q already registered", name)
	}
	entry.Name = name
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	r.file.Databases[name] = entry
	if setActive || r.file.Active == "" {
		r.file.Active = name
	}
	return r.save()
}

// SetActive switches the active database to name, failing with
// [ErrDatabaseNotFound] if it isn't registered.
func (r *DatabaseRegistry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.file.Databases[name]; !ok {
		return fmt.Errorf("%w: %q", ErrDatabaseNotFound, name)
	}
	r.file.Active = name
	return r.save()
}
