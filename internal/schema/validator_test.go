package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mondo-io/mondo/internal/engine/value"
)

func mustDoc(t *testing.T, src string) *value.Document {
	t.Helper()
	var d value.Document
	if err := json.Unmarshal([]byte(src), &d); err != nil {
		t.Fatalf("parse %s: %v", src, err)
	}
	return &d
}

const userSchema = `{
	"$jsonSchema": {
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string"},
			"age": {"type": "number", "minimum": 0}
		}
	}
}`

func TestCompileNilAndEmpty(t *testing.T) {
	v, err := Compile(nil)
	if err != nil || v != nil {
		t.Fatalf("nil option = %v, %v; want nil, nil", v, err)
	}
	v, err = Compile(mustDoc(t, `{}`))
	if err != nil || v != nil {
		t.Fatalf("empty option = %v, %v; want nil, nil", v, err)
	}
}

func TestCompileRequiresJSONSchemaKey(t *testing.T) {
	_, err := Compile(mustDoc(t, `{"rules":{}}`))
	if !errors.Is(err, ErrInvalidSchema) {
		t.Fatalf("expected ErrInvalidSchema, got %v", err)
	}
	_, err = Compile(mustDoc(t, `{"$jsonSchema":"not a doc"}`))
	if !errors.Is(err, ErrInvalidSchema) {
		t.Fatalf("expected ErrInvalidSchema, got %v", err)
	}
}

func TestValidateAcceptsAndRejects(t *testing.T) {
	v, err := Compile(mustDoc(t, userSchema))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if err := v.Validate(mustDoc(t, `{"name":"ada","age":36}`)); err != nil {
		t.Fatalf("valid document rejected: %v", err)
	}

	err = v.Validate(mustDoc(t, `{"age":-1}`))
	if !errors.Is(err, ErrDocumentValidation) {
		t.Fatalf("expected ErrDocumentValidation, got %v", err)
	}
	// Both violations are reported.
	if !strings.Contains(err.Error(), "name") {
		t.Errorf("error should name the missing field: %v", err)
	}
}

func TestValidateWrongType(t *testing.T) {
	v, err := Compile(mustDoc(t, userSchema))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	err = v.Validate(mustDoc(t, `{"name":42}`))
	if !errors.Is(err, ErrDocumentValidation) {
		t.Fatalf("expected ErrDocumentValidation, got %v", err)
	}
}
