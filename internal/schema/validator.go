// Package schema compiles collection validators from $jsonSchema rules and
// enforces them on writes.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mondo-io/mondo/internal/engine/value"
)

var (
	// ErrInvalidSchema is returned when the $jsonSchema document does not
	// compile.
	ErrInvalidSchema = errors.New("invalid $jsonSchema")
	// ErrDocumentValidation is returned when a document fails the
	// collection's validator.
	ErrDocumentValidation = errors.New("document failed validation")
)

// Validator enforces a compiled JSON schema against documents.
type Validator struct {
	schema *gojsonschema.Schema
}

// Compile builds a Validator from a validator option document of the form
// {"$jsonSchema": {...}}. A nil or empty option compiles to a nil
// Validator, meaning no validation.
func Compile(option *value.Document) (*Validator, error) {
	if option == nil || option.Len() == 0 {
		return nil, nil
	}
	rules, ok := option.Get("$jsonSchema")
	if !ok || rules.Kind() != value.KindDocument {
		return nil, fmt.Errorf("%w: validator must contain a $jsonSchema document", ErrInvalidSchema)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(rules.DocVal().ToMap()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks the document against the schema.
func (v *Validator) Validate(doc *value.Document) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(doc.ToMap()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDocumentValidation, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrDocumentValidation, strings.Join(msgs, "; "))
}
