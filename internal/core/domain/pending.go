// Package domain defines the core domain models for FidLoc.
package domain

import "time"

// MaxLastErrorLength bounds the failure message kept on a pending record.
const MaxLastErrorLength = 512

// PendingRecord is a location write staged in the local queue because the
// client was offline or the remote write failed.
type PendingRecord struct {
	// PendingID identifies the record in the local queue.
	// Format: pending_{ulid_lowercase}; lexical order is insertion order.
	PendingID string `json:"pendingId"`

	// OrgID is the organization the location will be written under.
	OrgID string `json:"orgId"`

	// QueuedAt is when the record entered the queue (RFC3339, UTC).
	QueuedAt string `json:"queuedAt"`

	// Attempts counts failed sync attempts.
	Attempts int `json:"attempts,omitempty"`

	// LastError is the most recent sync failure message.
	LastError string `json:"lastError,omitempty"`

	// Location is the payload to write remotely.
	Location Location `json:"location"`
}

// NewPendingRecord stages a location for orgID.
// The location is normalized and validated before it is accepted.
func NewPendingRecord(orgID string, loc *Location) (*PendingRecord, error) {
	if err := ValidateOrgID(orgID); err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, ErrMissingArgument.WithDetails("location is required")
	}

	payload := loc.Clone()
	payload.Normalize()
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	id, err := GeneratePendingID()
	if err != nil {
		return nil, err
	}

	return &PendingRecord{
		PendingID: id,
		OrgID:     orgID,
		QueuedAt:  timeNow().UTC().Format(time.RFC3339Nano),
		Location:  *payload,
	}, nil
}

// Strip returns the payload as it should be written to the remote store:
// queue-only fields are dropped and server-stamped fields are cleared.
func (p *PendingRecord) Strip() *Location {
	loc := p.Location.Clone()
	loc.ID = ""
	loc.CreatedAt = 0
	loc.LastModified = 0
	return loc
}

// MarkFailed records a failed sync attempt.
func (p *PendingRecord) MarkFailed(err error) {
	p.Attempts++
	if err == nil {
		p.LastError = ""
		return
	}
	msg := err.Error()
	if len(msg) > MaxLastErrorLength {
		msg = msg[:MaxLastErrorLength]
	}
	p.LastError = msg
}

// QueuedAtTime parses QueuedAt. Returns the zero time if it is malformed.
func (p *PendingRecord) QueuedAtTime() time.Time {
	t, err := time.Parse(time.RFC3339Nano, p.QueuedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Clone creates a copy of the pending record.
func (p *PendingRecord) Clone() *PendingRecord {
	clone := *p
	return &clone
}
