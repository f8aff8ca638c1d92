package confloader

import (
	"errors"

	"github.com/knadh/koanf/maps"
)

// ErrReadBytesNotSupported is returned when ReadBytes is called on a map provider.
var ErrReadBytesNotSupported = errors.New("confloader: map provider has no byte form, use Read")

// mapProvider feeds a map into koanf. Flat keys ("a.b") are unflattened
// on Read so they merge with nested file and env values.
type mapProvider map[string]any

// ReadBytes is not supported.
func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, ErrReadBytesNotSupported
}

// Read returns the configuration map.
func (m mapProvider) Read() (map[string]any, error) {
	return maps.Unflatten(maps.Copy(m), "."), nil
}
