package seedprofile

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the top-level structure of a webintel investigation YAML file.
//
// Example:
//
//	investigation:
//	  name: "Q3 diligence sweep"
//	profiles:
//	  - name: "Acme Corporation"
//	    kind: company
//	    official_domains: ["acme.com"]
//	    seed_urls: ["https://acme.com", "https://en.wikipedia.org/wiki/Acme_Corporation"]
type File struct {
	Investigation Meta      `yaml:"investigation"`
	Profiles      []Profile `yaml:"profiles"`
}

// Meta holds top-level metadata for an investigation file.
type Meta struct {
	// Name is the investigation's display name.
	Name string `yaml:"name"`

	// Description is a free-text summary of the investigation.
	Description string `yaml:"description"`
}

// LoadFile reads and parses an investigation YAML file from disk.
// Returns a descriptive error if the file cannot be opened or parsed.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("seedprofile: open investigation file %q: %w", path, err)
	}
	defer f.Close()

	file, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("seedprofile: parse investigation file %q: %w", path, err)
	}
	return file, nil
}

// LoadFromReader parses investigation YAML from an [io.Reader].
// The reader is consumed entirely; the caller is responsible for closing it.
func LoadFromReader(r io.Reader) (*File, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys at any level to catch typos
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("seedprofile: decode investigation yaml: %w", err)
	}
	for i, p := range file.Profiles {
		if p.Name == "" {
			return nil, fmt.Errorf("seedprofile: profile at index %d is missing a name", i)
		}
		if len(p.SeedURLs) == 0 {
			return nil, fmt.Errorf("seedprofile: profile %q has no seed_urls", p.Name)
		}
	}
	return &file, nil
}

// Import loads every profile from a parsed [File] into store.
// Returns the number of profiles successfully imported.
// An error from the store aborts the import and returns the count so far.
func Import(ctx context.Context, store Store, file *File) (int, error) {
	if file == nil {
		return 0, fmt.Errorf("seedprofile: investigation file must not be nil")
	}
	n, err := store.BulkImport(ctx, file.Profiles)
	if err != nil {
		return n, fmt.Errorf("seedprofile: import investigation %q: %w", file.Investigation.Name, err)
	}
	return n, nil
}
