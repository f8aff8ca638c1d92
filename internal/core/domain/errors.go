// Package domain defines the core domain models for FidLoc.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DomainError represents a business domain error with a structured error code.
// Codes have the form FL-{AREA}-{NNNN}; the numeric suffix mirrors the HTTP
// status the error maps to (4040 -> 404, 4090 -> 409, ...).
type DomainError struct {
	Code    string // Error code (e.g., "FL-LOC-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Location Errors (LOC)
// ============================================================================

var (
	// ErrLocationNotFound indicates the requested location was not found.
	ErrLocationNotFound = NewDomainError("FL-LOC-4040", "location not found")

	// ErrLocationValidation indicates location data validation failed.
	ErrLocationValidation = NewDomainError("FL-LOC-4001", "location validation failed")

	// ErrLocationConflict indicates the location ID already exists.
	ErrLocationConflict = NewDomainError("FL-LOC-4090", "location id conflict")

	// ErrOrganizationRequired indicates a write without an organization scope.
	ErrOrganizationRequired = NewDomainError("FL-LOC-4002", "organization is required")
)

// ============================================================================
// Offline Queue Errors (QUE)
// ============================================================================

var (
	// ErrPendingNotFound indicates the pending record is not in the local queue.
	ErrPendingNotFound = NewDomainError("FL-QUE-4040", "pending record not found")

	// ErrQueueCorrupt indicates a stored pending record could not be decoded.
	ErrQueueCorrupt = NewDomainError("FL-QUE-5001", "pending record corrupt")

	// ErrAgentToken indicates a request to the agent control API carried
	// a missing or wrong token.
	ErrAgentToken = NewDomainError("FL-QUE-4010", "agent control token rejected")
)

// ============================================================================
// Sync Errors (SYNC)
// ============================================================================

var (
	// ErrSyncInProgress indicates another sync pass is already running.
	ErrSyncInProgress = NewDomainError("FL-SYNC-4090", "sync pass already in progress")

	// ErrRemoteUnavailable indicates the remote store could not be reached
	// or answered with a transient failure.
	ErrRemoteUnavailable = NewDomainError("FL-SYNC-5030", "remote store unavailable")
)

// ============================================================================
// Authentication Errors (AUTH)
// ============================================================================

var (
	// ErrAPIKeyMissing indicates no API key was provided.
	ErrAPIKeyMissing = NewDomainError("FL-AUTH-4010", "api key not provided")

	// ErrAPIKeyInvalid indicates the API key is invalid or does not exist.
	ErrAPIKeyInvalid = NewDomainError("FL-AUTH-4011", "invalid api key")

	// ErrAPIKeyDisabled indicates the API key has been disabled.
	ErrAPIKeyDisabled = NewDomainError("FL-AUTH-4012", "api key disabled")

	// ErrPermissionDenied indicates insufficient permissions.
	ErrPermissionDenied = NewDomainError("FL-AUTH-4030", "permission denied")

	// ErrOrganizationMismatch indicates the key belongs to another organization.
	ErrOrganizationMismatch = NewDomainError("FL-AUTH-4031", "api key not valid for organization")

	// ErrAPIKeyValidation indicates API key validation failed.
	ErrAPIKeyValidation = NewDomainError("FL-AUTH-4001", "api key validation failed")

	// ErrAPIKeyNotFound indicates the API key was not found.
	ErrAPIKeyNotFound = NewDomainError("FL-AUTH-4040", "api key not found")

	// ErrAPIKeyConflict indicates the API key ID already exists.
	ErrAPIKeyConflict = NewDomainError("FL-AUTH-4090", "api key id conflict")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("FL-SYS-5000", "internal server error")

	// ErrStorageError indicates a storage layer error.
	ErrStorageError = NewDomainError("FL-SYS-5001", "storage error")

	// ErrServiceUnavailable indicates the service is temporarily unavailable.
	ErrServiceUnavailable = NewDomainError("FL-SYS-5030", "service unavailable")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("FL-SYS-4000", "bad request")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("FL-SYS-4290", "too many requests")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("FL-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("FL-ARG-1002", "missing required argument")
)

// HTTPStatus maps an error code to an HTTP status using its numeric
// suffix. Unknown codes map to 500.
func HTTPStatus(code string) int {
	i := strings.LastIndexByte(code, '-')
	if i < 0 || len(code)-i-1 != 4 {
		return 500
	}
	suffix := code[i+1:]
	switch {
	case suffix == "5030":
		return 503
	case suffix == "4290":
		return 429
	case strings.HasPrefix(suffix, "404"):
		return 404
	case strings.HasPrefix(suffix, "409"):
		return 409
	case strings.HasPrefix(suffix, "403"):
		return 403
	case strings.HasPrefix(suffix, "401"):
		return 401
	case strings.HasPrefix(suffix, "400"), suffix[0] == '1':
		return 400
	default:
		return 500
	}
}

var registry = map[string]*DomainError{}

func init() {
	for _, e := range []*DomainError{
		ErrLocationNotFound, ErrLocationValidation, ErrLocationConflict, ErrOrganizationRequired,
		ErrPendingNotFound, ErrQueueCorrupt, ErrAgentToken,
		ErrSyncInProgress, ErrRemoteUnavailable,
		ErrAPIKeyMissing, ErrAPIKeyInvalid, ErrAPIKeyDisabled, ErrPermissionDenied,
		ErrOrganizationMismatch, ErrAPIKeyValidation, ErrAPIKeyNotFound, ErrAPIKeyConflict,
		ErrInternalServer, ErrStorageError, ErrServiceUnavailable, ErrBadRequest, ErrRateLimited,
		ErrInvalidArgument, ErrMissingArgument,
	} {
		registry[e.Code] = e
	}
}

// LookupError returns the predefined error for code, or nil.
func LookupError(code string) *DomainError {
	return registry[code]
}
