package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validExtraction() *Extraction {
	email := "doc@example.com"
	return &Extraction{
		ImageID:       "0d6c3c4e-5b1a-4a7e-9d0f-2f1f1c0b9a11",
		UserEmail:     &email,
		OriginalText:  "Rp 250mg",
		ProcessedText: "Rp  250mg",
		CleanedText:   "Prescription 250mg",
		Filename:      "rx.pdf",
		Timestamp:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestValidateExtraction(t *testing.T) {
	require.NoError(t, ValidateExtraction(validExtraction()))

	anon := validExtraction()
	anon.UserEmail = nil
	assert.NoError(t, ValidateExtraction(anon), "null submitter is allowed")

	empty := validExtraction()
	empty.OriginalText, empty.ProcessedText, empty.CleanedText = "", "", ""
	assert.NoError(t, ValidateExtraction(empty), "blank pages produce empty text")

	noID := validExtraction()
	noID.ImageID = ""
	assert.Error(t, ValidateExtraction(noID))

	noName := validExtraction()
	noName.Filename = ""
	assert.Error(t, ValidateExtraction(noName))
}

func TestSubmitter(t *testing.T) {
	var nilRec *Extraction
	assert.Equal(t, "", nilRec.Submitter())

	e := validExtraction()
	assert.Equal(t, "doc@example.com", e.Submitter())
	e.UserEmail = nil
	assert.Equal(t, "", e.Submitter())
}
