// Package registry maps an extraction identifier to the stored locations of
// its original and processed page images.
package registry

import (
	"context"
	"errors"

	"github.com/joseph-ayodele/rxscan/constants"
)

var (
	ErrNotFound  = errors.New("image id not registered")
	ErrDuplicate = errors.New("image id already registered")
)

// Entry holds where both bitmaps of one extraction live.
type Entry struct {
	Original  string `json:"original"`
	Processed string `json:"processed"`
}

// Location returns the stored location for v.
func (e Entry) Location(v constants.Variant) (string, bool) {
	switch v {
	case constants.VariantOriginal:
		return e.Original, e.Original != ""
	case constants.VariantProcessed:
		return e.Processed, e.Processed != ""
	}
	return "", false
}

// Registry is append-only per id: a second Register for the same id fails
// with ErrDuplicate. Remove exists for rolling back a failed extraction.
type Registry interface {
	Register(ctx context.Context, id string, e Entry) error
	Lookup(ctx context.Context, id string, v constants.Variant) (string, error)
	Remove(ctx context.Context, id string) error
}

func locate(e Entry, v constants.Variant) (string, error) {
	loc, ok := e.Location(v)
	if !ok {
		return "", ErrNotFound
	}
	return loc, nil
}
