package store

import (
	"fmt"

	"github.com/google/uuid"
)

// namespacePage, namespaceEntity, and namespaceVector root the
// namespace-scoped UUID5 derivations below, so that the same logical key
// always yields the same id across process restarts without a lookup.
var (
	namespacePage   = uuid.MustParse("6f1c6b2a-2f0e-4e8b-9b7a-8f2b6a1c9d01")
	namespaceEntity = uuid.MustParse("6f1c6b2a-2f0e-4e8b-9b7a-8f2b6a1c9d02")
	namespaceVector = uuid.MustParse("6f1c6b2a-2f0e-4e8b-9b7a-8f2b6a1c9d03")
)

// PageID derives the stable id for a Page from its URL: the same URL
// always yields the same id (spec §3).
func PageID(url string) string {
	return uuid.NewSHA1(namespacePage, []byte(url)).String()
}

// EntityID derives a content-addressed id for an Entity from its
// canonical identity (canonical name, normalized kind). Used by
// get_or_create_entity so repeated observations of the same entity
// resolve to the same row without a prior lookup round trip.
func EntityID(canonicalName, normalizedKind string) string {
	key := canonicalName + "\x00" + normalizedKind
	return uuid.NewSHA1(namespaceEntity, []byte(key)).String()
}

// RelationshipID derives the id for a Relationship from its identity
// (source, target, type), making saves idempotent per §4.6.
func RelationshipID(sourceID, targetID, relType string) string {
	key := sourceID + "\x00" + targetID + "\x00" + relType
	return uuid.NewSHA1(namespaceEntity, []byte(key)).String()
}

// VectorID derives a deterministic point id for a vector from the page
// URL it belongs to, its kind, and an ordinal (sentence index, finding
// index, …), per the per-page embedding strategy of §4.5.
func VectorID(url string, kind VectorKind, ordinal int) string {
	key := fmt.Sprintf("%s\x00%s\x00%d", url, kind, ordinal)
	return uuid.NewSHA1(namespaceVector, []byte(key)).String()
}

// NewID generates a fresh random UUID, for rows with no natural content-
// addressed key (Intelligence, Task).
func NewID() string {
	return uuid.NewString()
}
