package service

import (
	"context"
	"log/slog"

	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/telemetry/metric"
)

// LocationRepository defines the storage interface for location documents.
type LocationRepository interface {
	// CreateLocation stores loc, or returns the document stored earlier
	// under the same idempotency key with replayed=true.
	CreateLocation(ctx context.Context, org string, loc *domain.Location, idemKey string) (*domain.Location, bool, error)

	// GetLocation retrieves a location by ID.
	GetLocation(ctx context.Context, org, id string) (*domain.Location, error)

	// ListLocations retrieves the locations of org matching filter.
	ListLocations(ctx context.Context, org string, filter domain.LocationFilter) ([]*domain.Location, error)

	// UpdateLocation applies mutate to a stored location atomically.
	UpdateLocation(ctx context.Context, org, id string, mutate func(*domain.Location) error) (*domain.Location, error)

	// DeleteLocation deletes a location by ID.
	DeleteLocation(ctx context.Context, org, id string) error
}

// LocationService manages the location collection of each organization.
type LocationService struct {
	repo    LocationRepository
	metrics *metric.ServerMetrics
	logger  *slog.Logger
}

// NewLocationService creates a new LocationService. metrics may be nil.
func NewLocationService(repo LocationRepository, metrics *metric.ServerMetrics, logger *slog.Logger) *LocationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationService{
		repo:    repo,
		metrics: metrics,
		logger:  logger,
	}
}

// CreateResult is the outcome of Create.
type CreateResult struct {
	Location *domain.Location

	// Replayed is true when the idempotency key was already used and
	// Location is the document stored by the first request.
	Replayed bool
}

// Create stores a new location in org. The store assigns the ID and
// stamps createdAt and lastModified; values sent by the client for those
// fields are ignored.
func (s *LocationService) Create(ctx context.Context, org string, loc *domain.Location, createdBy, idemKey string) (*CreateResult, error) {
	if err := domain.ValidateOrgID(org); err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, domain.ErrMissingArgument.WithDetails("location is required")
	}

	doc := loc.Clone()
	doc.Normalize()
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	id, err := domain.GenerateLocationID()
	if err != nil {
		return nil, domain.ErrInternalServer.WithCause(err)
	}
	doc.ID = id
	doc.CreatedBy = createdBy
	doc.CreatedAt = 0
	doc.Stamp()

	stored, replayed, err := s.repo.CreateLocation(ctx, org, doc, idemKey)
	if err != nil {
		return nil, err
	}

	if replayed {
		s.metrics.LocationWrite("replay")
		s.logger.InfoContext(ctx, "idempotent create replayed",
			"org", org,
			"location_id", stored.ID,
			"idempotency_key", idemKey)
	} else {
		s.metrics.LocationWrite("create")
		s.logger.InfoContext(ctx, "location created",
			"org", org,
			"location_id", stored.ID,
			"name", stored.Name)
	}
	return &CreateResult{Location: stored, Replayed: replayed}, nil
}

// Get returns one location.
func (s *LocationService) Get(ctx context.Context, org, id string) (*domain.Location, error) {
	if err := domain.ValidateOrgID(org); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, domain.ErrMissingArgument.WithDetails("location id is required")
	}
	return s.repo.GetLocation(ctx, org, id)
}

// List returns the locations of org matching filter, sorted by name.
func (s *LocationService) List(ctx context.Context, org string, filter domain.LocationFilter) ([]*domain.Location, error) {
	if err := domain.ValidateOrgID(org); err != nil {
		return nil, err
	}
	if filter.Type != "" && !domain.IsValidLocationType(string(filter.Type)) {
		return nil, domain.ErrInvalidArgument.WithDetails("unknown location type " + string(filter.Type))
	}
	return s.repo.ListLocations(ctx, org, filter)
}

// Update replaces the editable fields of a location. The ID, createdAt
// and createdBy of the stored document are kept; lastModified is bumped.
func (s *LocationService) Update(ctx context.Context, org, id string, loc *domain.Location) (*domain.Location, error) {
	if err := domain.ValidateOrgID(org); err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, domain.ErrMissingArgument.WithDetails("location is required")
	}

	in := loc.Clone()
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateLocation(ctx, org, id, func(cur *domain.Location) error {
		cur.Name = in.Name
		cur.Address = in.Address
		cur.Latitude = in.Latitude
		cur.Longitude = in.Longitude
		cur.LocationType = in.LocationType
		cur.Notes = in.Notes
		cur.RequiresLadder = in.RequiresLadder
		cur.HasLadderBracket = in.HasLadderBracket
		cur.Stamp()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.LocationWrite("update")
	s.logger.InfoContext(ctx, "location updated", "org", org, "location_id", id)
	return updated, nil
}

// Delete removes a location.
func (s *LocationService) Delete(ctx context.Context, org, id string) error {
	if err := domain.ValidateOrgID(org); err != nil {
		return err
	}
	if err := s.repo.DeleteLocation(ctx, org, id); err != nil {
		return err
	}
	s.metrics.LocationWrite("delete")
	s.logger.InfoContext(ctx, "location deleted", "org", org, "location_id", id)
	return nil
}
