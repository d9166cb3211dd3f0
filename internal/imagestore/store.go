// Package imagestore persists page bitmaps as PNG files so they can be served
// after the extraction request that produced them has finished.
package imagestore

import (
	"context"
	"errors"
	"image"
	"io"
)

var ErrNotFound = errors.New("image not found")

// Store writes PNG images under a key and hands back an opaque location.
// Location returns the same location Put would, without writing anything.
type Store interface {
	Name() string
	Location(key string) (string, error)
	Put(ctx context.Context, key string, img image.Image) (string, error)
	Open(ctx context.Context, location string) (io.ReadCloser, error)
	Delete(ctx context.Context, location string) error
}

// Key names the PNG for one variant of an extraction.
func Key(imageID, variant string) string {
	return imageID + "_" + variant + ".png"
}
