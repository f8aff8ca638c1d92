// Package domain defines the core domain models for FidLoc.
package domain

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID prefixes.
const (
	// LocationIDPrefix is the prefix for location document IDs.
	LocationIDPrefix = "loc-"

	// PendingIDPrefix is the prefix for pending record IDs.
	PendingIDPrefix = "pending_"
)

// A single monotonic entropy source keeps IDs generated within the same
// millisecond strictly increasing, so lexical order equals creation order.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// newULID returns a lowercase ULID string.
func newULID() (string, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(timeNow()), entropy)
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return strings.ToLower(id.String()), nil
}

// GenerateLocationID generates a new location ID.
// Format: loc-{ulid_lowercase}, 30 characters total.
func GenerateLocationID() (string, error) {
	id, err := newULID()
	if err != nil {
		return "", err
	}
	return LocationIDPrefix + id, nil
}

// GeneratePendingID generates a new pending record ID.
// Format: pending_{ulid_lowercase}, 34 characters total.
func GeneratePendingID() (string, error) {
	id, err := newULID()
	if err != nil {
		return "", err
	}
	return PendingIDPrefix + id, nil
}

// isValidPrefixedULID checks that id is prefix followed by a valid ULID.
func isValidPrefixedULID(id, prefix string) bool {
	id = strings.ToLower(id)
	if !strings.HasPrefix(id, prefix) {
		return false
	}
	if len(id) != len(prefix)+ulid.EncodedSize {
		return false
	}
	_, err := ulid.Parse(strings.ToUpper(id[len(prefix):]))
	return err == nil
}

// IsValidLocationID checks if a string is a valid location ID.
func IsValidLocationID(id string) bool {
	return isValidPrefixedULID(id, LocationIDPrefix)
}

// IsValidPendingID checks if a string is a valid pending record ID.
func IsValidPendingID(id string) bool {
	return isValidPrefixedULID(id, PendingIDPrefix)
}

// currentTimeMillis returns the current Unix timestamp in milliseconds.
var currentTimeMillis = func() int64 {
	return timeNow().UnixMilli()
}

// timeNow is a hook for testing.
var timeNow = time.Now
