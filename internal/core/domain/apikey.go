// Package domain defines the core domain models for FidLoc.
package domain

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/fidloc/fidloc-go/pkg/token"
)

// API Key constants.
const (
	// APIKeyIDPrefix is the prefix for API Key IDs (public, uses hyphen).
	APIKeyIDPrefix = "flak-"

	// APIKeySecretPrefix is the prefix for API Key secrets (sensitive, uses underscore).
	APIKeySecretPrefix = "flk_"
)

// Argon2 parameters for API Key secret hashing.
const (
	// Argon2Memory is the memory parameter in KB (16 MB).
	Argon2Memory uint32 = 16384

	// Argon2Time is the iteration count.
	Argon2Time uint32 = 2

	// Argon2Parallelism is the parallelism factor.
	Argon2Parallelism uint8 = 2

	// Argon2KeyLen is the output hash length in bytes.
	Argon2KeyLen uint32 = 32

	// Argon2SaltLen is the salt length in bytes.
	Argon2SaltLen = 16
)

// Role defines the permission level of an API key within its organization.
type Role string

const (
	// RoleMember can read, create and update locations.
	RoleMember Role = "member"

	// RoleAdmin can additionally delete locations and manage API keys.
	RoleAdmin Role = "admin"
)

// ValidRoles returns all valid roles.
func ValidRoles() []Role {
	return []Role{RoleMember, RoleAdmin}
}

// IsValidRole checks if a string is a valid role.
func IsValidRole(r string) bool {
	switch Role(r) {
	case RoleMember, RoleAdmin:
		return true
	}
	return false
}

// KeyStatus defines the status of an API key.
type KeyStatus string

const (
	// KeyStatusActive indicates the key is active and can be used.
	KeyStatusActive KeyStatus = "active"

	// KeyStatusDisabled indicates the key has been disabled.
	KeyStatusDisabled KeyStatus = "disabled"
)

// Permission represents an action that can be performed.
type Permission string

const (
	PermLocationRead   Permission = "location.read"
	PermLocationWrite  Permission = "location.write"
	PermLocationDelete Permission = "location.delete"
	PermAPIKeyManage   Permission = "apikey.manage"
	PermMetricsRead    Permission = "metrics.read"
)

// rolePermissions defines the permissions granted to each role.
var rolePermissions = map[Role][]Permission{
	RoleMember: {
		PermLocationRead,
		PermLocationWrite,
		PermMetricsRead,
	},
	RoleAdmin: {
		PermLocationRead,
		PermLocationWrite,
		PermLocationDelete,
		PermAPIKeyManage,
		PermMetricsRead,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// IsValidAPIKeyID checks if a string is a valid API Key ID format.
func IsValidAPIKeyID(id string) bool {
	return isValidPrefixedULID(id, APIKeyIDPrefix)
}

// MaskAPIKeySecret masks an API key secret for safe logging.
func MaskAPIKeySecret(secret string) string {
	if len(secret) < 10 || !strings.HasPrefix(secret, APIKeySecretPrefix) {
		return "***REDACTED***"
	}
	body := secret[len(APIKeySecretPrefix):]
	if len(body) > 6 {
		return APIKeySecretPrefix + body[:3] + "..." + body[len(body)-3:]
	}
	return APIKeySecretPrefix + "***"
}

// APIKey is an access key bound to one organization.
type APIKey struct {
	// KeyID is the unique identifier (public).
	// Format: flak-{ulid_lowercase}.
	KeyID string `json:"key_id"`

	// OrgID is the organization the key may act on.
	OrgID string `json:"org_id"`

	// Name is the human-readable name for the key.
	Name string `json:"name"`

	// SecretHash is the Argon2id hash of the secret. It is persisted by the
	// server store but never returned by the API.
	SecretHash string `json:"secret_hash"`

	// Role defines the permission level.
	Role Role `json:"role"`

	// RateLimit is the QPS limit.
	RateLimit int `json:"rate_limit"`

	// Status is the key status (active/disabled).
	Status KeyStatus `json:"status"`

	// Description is an optional description.
	Description string `json:"description,omitempty"`

	// CreatedAt is the creation timestamp (Unix MS).
	CreatedAt int64 `json:"created_at"`

	// CreatedBy is the API Key ID of the creator or "system".
	CreatedBy string `json:"created_by"`

	// LastUsed is the last usage timestamp (Unix MS).
	LastUsed int64 `json:"last_used,omitempty"`
}

// APIKey constraints.
const (
	MaxDescriptionLength = 256
	MinRateLimit         = 1
	MaxRateLimit         = 100000
	DefaultRateLimit     = 100
	SecretLength         = 32 // 256 bits
)

// NewAPIKey creates a new APIKey with a generated ID and secret.
// Returns the API key and the plaintext secret (only returned once).
func NewAPIKey(orgID, name string, role Role) (*APIKey, string, error) {
	id, err := newULID()
	if err != nil {
		return nil, "", err
	}

	plainSecret, err := token.GenerateWithPrefix(APIKeySecretPrefix, SecretLength)
	if err != nil {
		return nil, "", ErrInternalServer.WithCause(err)
	}

	secretHash, err := HashSecret(plainSecret)
	if err != nil {
		return nil, "", ErrInternalServer.WithCause(err)
	}

	return &APIKey{
		KeyID:      APIKeyIDPrefix + id,
		OrgID:      orgID,
		Name:       name,
		SecretHash: secretHash,
		Role:       role,
		Status:     KeyStatusActive,
		RateLimit:  DefaultRateLimit,
		CreatedAt:  currentTimeMillis(),
	}, plainSecret, nil
}

// HashSecret computes an Argon2id hash of the secret.
// Returns the hash in the format: $argon2id$v=19$m=16384,t=2,p=2$<salt>$<hash>
func HashSecret(secret string) (string, error) {
	salt := make([]byte, Argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(secret), salt, Argon2Time, Argon2Memory, Argon2Parallelism, Argon2KeyLen)

	saltB64 := base64.RawStdEncoding.EncodeToString(salt)
	hashB64 := base64.RawStdEncoding.EncodeToString(hash)

	return "$argon2id$v=19$m=16384,t=2,p=2$" + saltB64 + "$" + hashB64, nil
}

// VerifySecret checks secret against an Argon2id hash produced by
// HashSecret. The parameters encoded in the hash are honored.
func VerifySecret(secret, encoded string) bool {
	// $argon2id$v=19$m=16384,t=2,p=2$<salt>$<hash>
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v=19" {
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false
	}

	got := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// IsActive returns true if the key is active.
func (k *APIKey) IsActive() bool {
	return k.Status == KeyStatusActive
}

// Touch updates the LastUsed timestamp.
func (k *APIKey) Touch() {
	k.LastUsed = currentTimeMillis()
}

// CreatedAtTime returns CreatedAt as time.Time.
func (k *APIKey) CreatedAtTime() time.Time {
	return time.UnixMilli(k.CreatedAt)
}

// LastUsedAtTime returns LastUsed as time.Time.
func (k *APIKey) LastUsedAtTime() time.Time {
	if k.LastUsed == 0 {
		return time.Time{}
	}
	return time.UnixMilli(k.LastUsed)
}

// Validate validates the API key fields.
func (k *APIKey) Validate() error {
	var violations []string

	if k.KeyID == "" {
		violations = append(violations, "key_id is required")
	} else if !IsValidAPIKeyID(k.KeyID) {
		violations = append(violations, "key_id format invalid")
	}
	if err := ValidateOrgID(k.OrgID); err != nil {
		violations = append(violations, "org_id invalid")
	}
	if k.SecretHash == "" {
		violations = append(violations, "secret_hash is required")
	}
	if !IsValidRole(string(k.Role)) {
		violations = append(violations, "invalid role")
	}
	if k.Status != KeyStatusActive && k.Status != KeyStatusDisabled {
		violations = append(violations, "invalid status")
	}
	if k.RateLimit < MinRateLimit || k.RateLimit > MaxRateLimit {
		violations = append(violations, "rate_limit must be between 1 and 100,000")
	}
	if len(k.Description) > MaxDescriptionLength {
		violations = append(violations, "description exceeds 256 characters")
	}

	if len(violations) > 0 {
		return ErrAPIKeyValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone creates a copy of the API key.
func (k *APIKey) Clone() *APIKey {
	clone := *k
	return &clone
}
