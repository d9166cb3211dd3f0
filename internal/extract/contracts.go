package extract

import (
	"context"
	"image"

	"github.com/joseph-ayodele/rxscan/internal/ocr"
)

// PageLoader is Stage 0: stored upload -> first-page bitmap.
type PageLoader interface {
	FirstPage(ctx context.Context, path string) (image.Image, error)
}

// PageEnhancer is Stage 2: bitmap -> cleaned binary bitmap. Must be total.
type PageEnhancer interface {
	Enhance(img image.Image) *image.Gray
}

// Recognizer is used for both recognition passes (Stage 1 and Stage 3).
type Recognizer = ocr.Recognizer
