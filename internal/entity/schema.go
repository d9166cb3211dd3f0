package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ExtractionJSONSchema is the record shape handed to persistence and returned over the API.
func ExtractionJSONSchema() map[string]any {
	text := map[string]any{"type": "string"}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"image_id":       map[string]any{"type": "string", "minLength": 1},
			"user_email":     map[string]any{"type": []string{"string", "null"}},
			"original_text":  text,
			"processed_text": text,
			"cleaned_text":   text,
			"filename":       map[string]any{"type": "string", "minLength": 1},
			"timestamp":      map[string]any{"type": "string", "format": "date-time"},
		},
		"required": []string{
			"image_id", "user_email", "original_text", "processed_text",
			"cleaned_text", "filename", "timestamp",
		},
	}
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		b, err := json.Marshal(ExtractionJSONSchema())
		if err != nil {
			schemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		if err := compiler.AddResource("extraction.json", bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("extraction.json")
	})
	return schema, schemaErr
}

// ValidateExtraction checks e's JSON form against ExtractionJSONSchema.
func ValidateExtraction(e *Extraction) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal extraction: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal extraction: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("extraction does not match schema: %w", err)
	}
	return nil
}
