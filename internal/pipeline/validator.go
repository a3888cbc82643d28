package pipeline

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/event-schema.json
var eventSchemaJSON []byte

// SchemaValidationError reports a payload that failed schema validation.
// Messages holds every rule violation in the validator's evaluation order,
// or a single synthetic message when the payload is not parseable JSON.
type SchemaValidationError struct {
	Messages []string
}

func (e *SchemaValidationError) Error() string {
	return "schema validation failed: " + strings.Join(e.Messages, ", ")
}

// Class implements the dead-letter error class contract.
func (e *SchemaValidationError) Class() string { return "SchemaValidationError" }

// Validator validates raw payloads against the fixed event schema. The
// schema is compiled once at construction and never reloaded; a single
// Validator is shared by all workers.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded event schema.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("event-schema.json", bytes.NewReader(eventSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add event schema resource: %w", err)
	}
	schema, err := compiler.Compile("event-schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile event schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks raw against the event schema. Validation is binary: nil on
// pass, *SchemaValidationError on any failure.
func (v *Validator) Validate(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &SchemaValidationError{
			Messages: []string{fmt.Sprintf("failed to parse JSON: %v", err)},
		}
	}

	if err := v.schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return &SchemaValidationError{Messages: []string{err.Error()}}
		}
		return &SchemaValidationError{Messages: flattenViolations(ve)}
	}
	return nil
}

// flattenViolations collects leaf violation messages in evaluation order.
func flattenViolations(ve *jsonschema.ValidationError) []string {
	causes := ve.BasicOutput().Errors
	msgs := make([]string, 0, len(causes))
	for _, c := range causes {
		if c.Error == "" {
			continue
		}
		loc := c.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", loc, c.Error))
	}
	if len(msgs) == 0 {
		msgs = []string{ve.Error()}
	}
	return msgs
}
