package schema

import (
	"encoding/json"
	"errors"
	"testing"
)

const objectSchema = `{"type":"object","properties":{"name":{"type":"string"},"count":{"type":"integer"}},"required":["name"],"additionalProperties":false}`

func TestValidateSchema(t *testing.T) {
	if err := ValidateSchema("test", []byte(objectSchema), map[string]any{"name": "ok", "count": 3}); err != nil {
		t.Fatalf("expected valid document: %v", err)
	}
}

func TestValidateSchemaCollectsViolations(t *testing.T) {
	err := ValidateSchema("test", []byte(objectSchema), map[string]any{"count": "x", "extra": true})
	var serr *Error
	if !errors.As(err, &serr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if len(serr.Violations) < 2 {
		t.Fatalf("expected several violations, got %#v", serr.Violations)
	}
	if serr.Document != "test" {
		t.Fatalf("unexpected document name %q", serr.Document)
	}
}

func TestNormalizeValue(t *testing.T) {
	val, err := normalizeValue(json.RawMessage(`{"k":"v"}`))
	if err != nil {
		t.Fatalf("normalize raw: %v", err)
	}
	m, ok := val.(map[string]any)
	if !ok || m["k"] != "v" {
		t.Fatalf("unexpected normalized value")
	}
	val, err = normalizeValue(map[string]any{"n": 3})
	if err != nil {
		t.Fatalf("normalize map: %v", err)
	}
	if n, ok := val.(map[string]any)["n"].(float64); !ok || n != 3 {
		t.Fatalf("expected json number, got %#v", val)
	}
}

func TestValidateSchemaEmpty(t *testing.T) {
	if err := ValidateSchema("test", nil, nil); err == nil {
		t.Fatalf("expected error for empty schema")
	}
}

func TestNormalizeValueInvalidJSON(t *testing.T) {
	if _, err := normalizeValue([]byte("{")); err == nil {
		t.Fatalf("expected error for invalid byte json")
	}
}

func TestSchemaIDDefault(t *testing.T) {
	if got := schemaID(""); got != "inmemory://schema" {
		t.Fatalf("unexpected schema id: %s", got)
	}
	if got := schemaID("module overrides"); got != "inmemory://module-overrides" {
		t.Fatalf("unexpected schema id: %s", got)
	}
}
