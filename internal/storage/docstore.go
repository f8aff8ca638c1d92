package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fidloc/fidloc-go/internal/core/domain"
)

// MaxIdempotencyKeyLength bounds client supplied idempotency keys.
const MaxIdempotencyKeyLength = 128

const apiKeyPrefix = "apikey/"

func orgPrefix(org string) string {
	return "org/" + org + "/"
}

func locationPrefix(org string) []byte {
	return []byte(orgPrefix(org) + "locations/")
}

func locationKey(org, id string) []byte {
	return []byte(orgPrefix(org) + "locations/" + id)
}

func idemKey(org, key string) []byte {
	return []byte(orgPrefix(org) + "idem/" + key)
}

func apiKeyKey(id string) []byte {
	return []byte(apiKeyPrefix + id)
}

// ValidateIdempotencyKey checks a client supplied idempotency key.
func ValidateIdempotencyKey(key string) error {
	if len(key) > MaxIdempotencyKeyLength || strings.ContainsAny(key, "/ \t\r\n") {
		return domain.ErrInvalidArgument.WithDetails("invalid idempotency key")
	}
	return nil
}

// DocStore keeps organization-scoped location documents and API keys in
// a KVEngine.
type DocStore struct {
	kv KVEngine
}

// NewDocStore creates a document store on kv.
func NewDocStore(kv KVEngine) *DocStore {
	return &DocStore{kv: kv}
}

// CreateLocation stores loc under org. When idemKey is set and was already
// used in org, the document created by the first request is returned with
// replayed=true and nothing is written.
func (s *DocStore) CreateLocation(ctx context.Context, org string, loc *domain.Location, idemKeyValue string) (stored *domain.Location, replayed bool, err error) {
	if idemKeyValue != "" {
		if err := ValidateIdempotencyKey(idemKeyValue); err != nil {
			return nil, false, err
		}
	}
	data, err := json.Marshal(loc)
	if err != nil {
		return nil, false, domain.ErrInternalServer.WithCause(err)
	}

	err = s.kv.Update(ctx, func(txn Txn) error {
		stored, replayed = nil, false
		if idemKeyValue != "" {
			prevID, err := txn.Get(idemKey(org, idemKeyValue))
			switch {
			case err == nil:
				raw, err := txn.Get(locationKey(org, string(prevID)))
				if err == nil {
					prev := &domain.Location{}
					if err := json.Unmarshal(raw, prev); err != nil {
						return domain.ErrStorageError.WithCause(err)
					}
					stored, replayed = prev, true
					return nil
				}
				if !errors.Is(err, ErrKeyNotFound) {
					return err
				}
				// The first document was deleted since; create a new one.
			case !errors.Is(err, ErrKeyNotFound):
				return err
			}
		}

		if _, err := txn.Get(locationKey(org, loc.ID)); err == nil {
			return domain.ErrLocationConflict
		} else if !errors.Is(err, ErrKeyNotFound) {
			return err
		}

		if err := txn.Set(locationKey(org, loc.ID), data); err != nil {
			return err
		}
		if idemKeyValue != "" {
			if err := txn.Set(idemKey(org, idemKeyValue), []byte(loc.ID)); err != nil {
				return err
			}
		}
		stored = loc.Clone()
		return nil
	})
	if err != nil {
		return nil, false, wrapStorage(err)
	}
	return stored, replayed, nil
}

// GetLocation returns one location.
func (s *DocStore) GetLocation(ctx context.Context, org, id string) (*domain.Location, error) {
	raw, err := s.kv.Get(ctx, locationKey(org, id))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, domain.ErrLocationNotFound
		}
		return nil, wrapStorage(err)
	}
	loc := &domain.Location{}
	if err := json.Unmarshal(raw, loc); err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	return loc, nil
}

// ListLocations returns every location of org matching filter, sorted by
// name (case-insensitive), then id.
func (s *DocStore) ListLocations(ctx context.Context, org string, filter domain.LocationFilter) ([]*domain.Location, error) {
	var (
		out       []*domain.Location
		decodeErr error
	)
	err := s.kv.Scan(ctx, locationPrefix(org), func(key, value []byte) bool {
		loc := &domain.Location{}
		if err := json.Unmarshal(value, loc); err != nil {
			decodeErr = fmt.Errorf("decode %s: %w", key, err)
			return false
		}
		if loc.Matches(filter) {
			out = append(out, loc)
		}
		return true
	})
	if err != nil {
		return nil, wrapStorage(err)
	}
	if decodeErr != nil {
		return nil, domain.ErrStorageError.WithCause(decodeErr)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateLocation applies mutate to the stored document and saves the
// result. mutate receives a copy and may return an error to abort.
func (s *DocStore) UpdateLocation(ctx context.Context, org, id string, mutate func(loc *domain.Location) error) (*domain.Location, error) {
	var updated *domain.Location
	err := s.kv.Update(ctx, func(txn Txn) error {
		raw, err := txn.Get(locationKey(org, id))
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				return domain.ErrLocationNotFound
			}
			return err
		}
		loc := &domain.Location{}
		if err := json.Unmarshal(raw, loc); err != nil {
			return domain.ErrStorageError.WithCause(err)
		}
		if err := mutate(loc); err != nil {
			return err
		}
		loc.ID = id
		data, err := json.Marshal(loc)
		if err != nil {
			return domain.ErrInternalServer.WithCause(err)
		}
		if err := txn.Set(locationKey(org, id), data); err != nil {
			return err
		}
		updated = loc
		return nil
	})
	if err != nil {
		return nil, wrapStorage(err)
	}
	return updated, nil
}

// DeleteLocation removes one location.
func (s *DocStore) DeleteLocation(ctx context.Context, org, id string) error {
	err := s.kv.Update(ctx, func(txn Txn) error {
		if _, err := txn.Get(locationKey(org, id)); err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				return domain.ErrLocationNotFound
			}
			return err
		}
		return txn.Delete(locationKey(org, id))
	})
	return wrapStorage(err)
}

// CountLocations returns the number of locations in org.
func (s *DocStore) CountLocations(ctx context.Context, org string) (int, error) {
	n, err := s.kv.Count(ctx, locationPrefix(org))
	return n, wrapStorage(err)
}

// CreateAPIKey stores a new API key.
func (s *DocStore) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	data, err := json.Marshal(key)
	if err != nil {
		return domain.ErrInternalServer.WithCause(err)
	}
	err = s.kv.Update(ctx, func(txn Txn) error {
		if _, err := txn.Get(apiKeyKey(key.KeyID)); err == nil {
			return domain.ErrAPIKeyConflict
		} else if !errors.Is(err, ErrKeyNotFound) {
			return err
		}
		return txn.Set(apiKeyKey(key.KeyID), data)
	})
	return wrapStorage(err)
}

// GetAPIKey returns one API key.
func (s *DocStore) GetAPIKey(ctx context.Context, keyID string) (*domain.APIKey, error) {
	raw, err := s.kv.Get(ctx, apiKeyKey(keyID))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, domain.ErrAPIKeyNotFound
		}
		return nil, wrapStorage(err)
	}
	key := &domain.APIKey{}
	if err := json.Unmarshal(raw, key); err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	return key, nil
}

// UpdateAPIKey applies mutate to the stored key inside one transaction
// and returns the saved result. mutate may return an error to abort.
func (s *DocStore) UpdateAPIKey(ctx context.Context, keyID string, mutate func(key *domain.APIKey) error) (*domain.APIKey, error) {
	var updated *domain.APIKey
	err := s.kv.Update(ctx, func(txn Txn) error {
		raw, err := txn.Get(apiKeyKey(keyID))
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				return domain.ErrAPIKeyNotFound
			}
			return err
		}
		key := &domain.APIKey{}
		if err := json.Unmarshal(raw, key); err != nil {
			return domain.ErrStorageError.WithCause(err)
		}
		if err := mutate(key); err != nil {
			return err
		}
		key.KeyID = keyID
		data, err := json.Marshal(key)
		if err != nil {
			return domain.ErrInternalServer.WithCause(err)
		}
		if err := txn.Set(apiKeyKey(keyID), data); err != nil {
			return err
		}
		updated = key
		return nil
	})
	if err != nil {
		return nil, wrapStorage(err)
	}
	return updated, nil
}

// ListAPIKeys returns the API keys of org, or of every org when org is
// empty, ordered by key ID.
func (s *DocStore) ListAPIKeys(ctx context.Context, org string) ([]*domain.APIKey, error) {
	var (
		out       []*domain.APIKey
		decodeErr error
	)
	err := s.kv.Scan(ctx, []byte(apiKeyPrefix), func(k, value []byte) bool {
		key := &domain.APIKey{}
		if err := json.Unmarshal(value, key); err != nil {
			decodeErr = fmt.Errorf("decode %s: %w", k, err)
			return false
		}
		if org == "" || key.OrgID == org {
			out = append(out, key)
		}
		return true
	})
	if err != nil {
		return nil, wrapStorage(err)
	}
	if decodeErr != nil {
		return nil, domain.ErrStorageError.WithCause(decodeErr)
	}
	return out, nil
}

// CountAPIKeys returns the number of stored API keys.
func (s *DocStore) CountAPIKeys(ctx context.Context) (int, error) {
	n, err := s.kv.Count(ctx, []byte(apiKeyPrefix))
	return n, wrapStorage(err)
}

// Ping checks that the engine is open.
func (s *DocStore) Ping(ctx context.Context) error {
	_, err := s.kv.Stats(ctx)
	return wrapStorage(err)
}

// wrapStorage passes domain errors and context errors through and wraps
// anything else as ErrStorageError.
func wrapStorage(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.DomainError
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.ErrStorageError.WithCause(err)
}
