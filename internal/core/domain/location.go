// Package domain defines the core domain models for FidLoc.
package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Location constraints.
const (
	MaxNameLength    = 200
	MaxAddressLength = 500
	MaxNotesLength   = 2000
	MaxOrgIDLength   = 128
)

// LocationType classifies a field site.
type LocationType string

const (
	LocationTypeHub    LocationType = "hub"
	LocationTypeGarage LocationType = "garage"
	LocationTypeHut    LocationType = "hut"
	LocationTypeCO     LocationType = "co"
)

// ValidLocationTypes returns all valid location types.
func ValidLocationTypes() []LocationType {
	return []LocationType{LocationTypeHub, LocationTypeGarage, LocationTypeHut, LocationTypeCO}
}

// IsValidLocationType checks if a string is a valid location type.
func IsValidLocationType(t string) bool {
	switch LocationType(t) {
	case LocationTypeHub, LocationTypeGarage, LocationTypeHut, LocationTypeCO:
		return true
	}
	return false
}

// Label returns the display label of the type.
func (t LocationType) Label() string {
	switch t {
	case LocationTypeGarage:
		return "Garage"
	case LocationTypeHut:
		return "Hut"
	case LocationTypeCO:
		return "CO"
	default:
		return "Hub"
	}
}

// Location is a field site stored under organizations/{org}/locations.
type Location struct {
	// ID is the document ID assigned by the remote store.
	// Format: loc-{ulid_lowercase}. Empty until the write reaches the store.
	ID string `json:"id,omitempty"`

	Name             string       `json:"name"`
	Address          string       `json:"address,omitempty"`
	Latitude         float64      `json:"latitude"`
	Longitude        float64      `json:"longitude"`
	LocationType     LocationType `json:"locationType"`
	Notes            string       `json:"notes,omitempty"`
	RequiresLadder   bool         `json:"requiresLadder,omitempty"`
	HasLadderBracket bool         `json:"hasLadderBracket,omitempty"`

	// CreatedBy is the API key ID that wrote the document.
	CreatedBy string `json:"createdBy,omitempty"`

	// CreatedAt is stamped by the remote store (Unix milliseconds).
	CreatedAt int64 `json:"createdAt,omitempty"`

	// LastModified is stamped by the remote store on every write (Unix milliseconds).
	LastModified int64 `json:"lastModified,omitempty"`
}

// Normalize trims text fields and defaults an empty type to hub.
func (l *Location) Normalize() {
	l.Name = strings.TrimSpace(l.Name)
	l.Address = strings.TrimSpace(l.Address)
	l.Notes = strings.TrimSpace(l.Notes)
	l.LocationType = LocationType(strings.ToLower(strings.TrimSpace(string(l.LocationType))))
	if l.LocationType == "" {
		l.LocationType = LocationTypeHub
	}
}

// NavigateURL returns a Google Maps directions link to the location.
func (l *Location) NavigateURL() string {
	return "https://www.google.com/maps/dir/?api=1&destination=" +
		strconv.FormatFloat(l.Latitude, 'f', -1, 64) + "," +
		strconv.FormatFloat(l.Longitude, 'f', -1, 64)
}

// Validate validates the location fields against constraints.
// Returns ErrLocationValidation with details listing every violation.
func (l *Location) Validate() error {
	var violations []string

	if strings.TrimSpace(l.Name) == "" {
		violations = append(violations, "name is required")
	}
	if len(l.Name) > MaxNameLength {
		violations = append(violations, "name exceeds 200 characters")
	}
	if len(l.Address) > MaxAddressLength {
		violations = append(violations, "address exceeds 500 characters")
	}
	if len(l.Notes) > MaxNotesLength {
		violations = append(violations, "notes exceeds 2000 characters")
	}
	if math.IsNaN(l.Latitude) || l.Latitude < -90 || l.Latitude > 90 {
		violations = append(violations, "latitude must be between -90 and 90")
	}
	if math.IsNaN(l.Longitude) || l.Longitude < -180 || l.Longitude > 180 {
		violations = append(violations, "longitude must be between -180 and 180")
	}
	if l.LocationType != "" && !IsValidLocationType(string(l.LocationType)) {
		violations = append(violations, "location_type must be one of hub, garage, hut, co")
	}

	if len(violations) > 0 {
		return ErrLocationValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone creates a copy of the location.
func (l *Location) Clone() *Location {
	clone := *l
	return &clone
}

// Stamp sets CreatedAt (when unset) and LastModified to now.
func (l *Location) Stamp() {
	now := currentTimeMillis()
	if l.CreatedAt == 0 {
		l.CreatedAt = now
	}
	l.LastModified = now
}

// CreatedAtTime returns CreatedAt as time.Time.
func (l *Location) CreatedAtTime() time.Time {
	if l.CreatedAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(l.CreatedAt)
}

// LastModifiedTime returns LastModified as time.Time.
func (l *Location) LastModifiedTime() time.Time {
	if l.LastModified == 0 {
		return time.Time{}
	}
	return time.UnixMilli(l.LastModified)
}

// LocationFilter selects locations by free text and type.
type LocationFilter struct {
	// Search matches name or address, case-insensitively.
	Search string
	// Type restricts results to one location type (empty = all).
	Type LocationType
}

// Matches reports whether the location passes the filter.
func (l *Location) Matches(f LocationFilter) bool {
	if f.Type != "" && l.LocationType != f.Type {
		return false
	}
	if f.Search == "" {
		return true
	}
	q := strings.ToLower(f.Search)
	return strings.Contains(strings.ToLower(l.Name), q) ||
		strings.Contains(strings.ToLower(l.Address), q)
}

// ValidateOrgID checks an organization identifier.
// Organization IDs become part of storage keys and URL paths, so "/" is rejected.
func ValidateOrgID(orgID string) error {
	if orgID == "" {
		return ErrOrganizationRequired
	}
	if len(orgID) > MaxOrgIDLength || strings.ContainsAny(orgID, "/ \t\n") {
		return ErrInvalidArgument.WithDetails("invalid organization id")
	}
	return nil
}
