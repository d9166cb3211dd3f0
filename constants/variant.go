package constants

// Variant names one of the two bitmaps kept per extraction.
type Variant string

// Stable values; they appear in URLs and registry entries.
const (
	VariantOriginal  Variant = "original"
	VariantProcessed Variant = "processed"
)

// ParseVariant maps a raw string onto a Variant.
func ParseVariant(s string) (Variant, bool) {
	switch Variant(s) {
	case VariantOriginal:
		return VariantOriginal, true
	case VariantProcessed:
		return VariantProcessed, true
	}
	return "", false
}
