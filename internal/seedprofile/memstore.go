package seedprofile

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"
	"sync"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is suitable for single-run use and testing.
// The zero value is ready to use.
type MemStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		profiles: make(map[string]Profile),
	}
}

// Add implements [Store.Add].
func (s *MemStore) Add(ctx context.Context, profile Profile) (Profile, error) {
	if profile.ID == "" {
		id, err := generateID()
		if err != nil {
			return Profile{}, fmt.Errorf("seedprofile: generate id: %w", err)
		}
		profile.ID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.profiles == nil {
		s.profiles = make(map[string]Profile)
	}

	if _, exists := s.profiles[profile.ID]; exists {
		return Profile{}, ErrDuplicateID
	}

	s.profiles[profile.ID] = profile
	return profile, nil
}

// Get implements [Store.Get].
func (s *MemStore) Get(ctx context.Context, id string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

// List implements [Store.List].
func (s *MemStore) List(ctx context.Context, opts ListOptions) ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if !matchesOpts(p, opts) {
			continue
		}
		result = append(result, p)
	}
	return result, nil
}

// Update implements [Store.Update].
func (s *MemStore) Update(ctx context.Context, profile Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[profile.ID]; !ok {
		return ErrNotFound
	}

	s.profiles[profile.ID] = profile
	return nil
}

// Remove implements [Store.Remove].
func (s *MemStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[id]; !ok {
		return ErrNotFound
	}

	delete(s.profiles, id)
	return nil
}

// BulkImport implements [Store.BulkImport].
// The import is best-effort: profiles are added one at a time and the count
// of successfully added profiles is returned along with the first error
// encountered.
func (s *MemStore) BulkImport(ctx context.Context, profiles []Profile) (int, error) {
	count := 0
	for _, p := range profiles {
		if _, err := s.Add(ctx, p); err != nil {
			return count, fmt.Errorf("seedprofile: bulk import at index %d (name %q): %w", count, p.Name, err)
		}
		count++
	}
	return count, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// generateID produces a random 16-byte hex string using crypto/rand.
// The resulting string is 32 hex characters and is statistically unique.
func generateID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// matchesOpts reports whether p satisfies all conditions in opts.
func matchesOpts(p Profile, opts ListOptions) bool {
	if opts.Kind != "" && p.Kind != opts.Kind {
		return false
	}
	for _, want := range opts.Tags {
		if !slices.Contains(p.Tags, want) {
			return false
		}
	}
	return true
}
