package seedprofile

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get and Update when the requested profile does not exist.
var ErrNotFound = errors.New("seedprofile: not found")

// ErrDuplicateID is returned by Add when a profile with the same ID already exists.
var ErrDuplicateID = errors.New("seedprofile: profile with that ID already exists")

// Store manages investigation-target profiles for pre-run setup.
//
// It is NOT the same as pkg/store.EntityGraph — it is a simpler CRUD layer
// for managing seed profiles before an investigation starts.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// Add creates a new profile. Returns the profile with a generated ID if
	// the provided profile's ID is empty.
	// Returns [ErrDuplicateID] if a profile with the same non-empty ID exists.
	Add(ctx context.Context, profile Profile) (Profile, error)

	// Get retrieves a profile by ID.
	// Returns [ErrNotFound] when no profile with that ID exists.
	Get(ctx context.Context, id string) (Profile, error)

	// List returns all profiles, optionally filtered by kind and/or tags.
	// An empty [ListOptions] returns all profiles.
	// Results order is not guaranteed.
	List(ctx context.Context, opts ListOptions) ([]Profile, error)

	// Update replaces an existing profile.
	// The profile's ID must be non-empty.
	// Returns [ErrNotFound] when no profile with that ID exists.
	Update(ctx context.Context, profile Profile) error

	// Remove deletes a profile by ID.
	// Returns [ErrNotFound] when no profile with that ID exists.
	Remove(ctx context.Context, id string) error

	// BulkImport adds multiple profiles in order, stopping at the first
	// error; profiles added before that error stay in the store.
	// Each profile without an ID gets one auto-generated.
	// Returns the number of profiles successfully imported and any error
	// that caused the import to abort early.
	BulkImport(ctx context.Context, profiles []Profile) (int, error)
}

// ListOptions narrows the result set of [Store.List].
// All non-zero fields are applied as AND conditions.
type ListOptions struct {
	// Kind restricts results to profiles of this kind.
	// An empty value matches all kinds.
	Kind string

	// Tags restricts results to profiles that carry all of the specified tags.
	// An empty slice matches all profiles regardless of their tags.
	Tags []string
}
