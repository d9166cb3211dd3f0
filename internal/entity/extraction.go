package entity

import (
	"time"
)

// ExtractionRequest is one uploaded document waiting to go through the pipeline.
type ExtractionRequest struct {
	Document  []byte
	Submitter *string
	Filename  string
}

// Extraction is the persisted result of one pipeline run.
type Extraction struct {
	ImageID       string    `json:"image_id" bson:"image_id"`
	UserEmail     *string   `json:"user_email" bson:"user_email"`
	OriginalText  string    `json:"original_text" bson:"original_text"`
	ProcessedText string    `json:"processed_text" bson:"processed_text"`
	CleanedText   string    `json:"cleaned_text" bson:"cleaned_text"`
	Filename      string    `json:"filename" bson:"filename"`
	Timestamp     time.Time `json:"timestamp" bson:"timestamp"`
}

// Submitter returns the submitter email or "" when anonymous.
func (e *Extraction) Submitter() string {
	if e == nil || e.UserEmail == nil {
		return ""
	}
	return *e.UserEmail
}
