package contenttype

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

const titleSchema = `{
	"type": "object",
	"required": ["title"],
	"properties": {"title": {"type": "string"}}
}`

func TestCompileSchemaInvalidJSON(t *testing.T) {
	_, err := CompileSchema("not json at all")
	if err == nil {
		t.Fatal("expected an error for invalid schema JSON")
	}
	if !errors.Is(err, ErrInvalidSchemaJSON) {
		t.Errorf("expected ErrInvalidSchemaJSON, got %v", err)
	}
}

func TestValidateDataMissingRequiredField(t *testing.T) {
	schema, err := CompileSchema(titleSchema)
	if err != nil {
		t.Fatalf("CompileSchema: %v", err)
	}

	failures, err := ValidateData(schema, `{}`)
	if err != nil {
		t.Fatalf("ValidateData: %v", err)
	}
	if len(failures) == 0 {
		t.Fatal("expected at least one validation failure for missing title")
	}
}

func TestValidateDataValid(t *testing.T) {
	schema, err := CompileSchema(titleSchema)
	if err != nil {
		t.Fatalf("CompileSchema: %v", err)
	}

	failures, err := ValidateData(schema, `{"title": "hello"}`)
	if err != nil {
		t.Fatalf("ValidateData: %v", err)
	}
	if len(failures) != 0 {
		t.Errorf("expected no failures, got %v", failures)
	}
}

func TestSchemaCacheRecompilesOnChange(t *testing.T) {
	cache := NewSchemaCache()
	typeID := uuid.New()

	s1, err := cache.Get(typeID, titleSchema)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	s2, err := cache.Get(typeID, titleSchema)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s1 != s2 {
		t.Error("expected the same cached schema pointer for unchanged schema text")
	}

	cache.Invalidate(typeID)
	s3, err := cache.Get(typeID, titleSchema)
	if err != nil {
		t.Fatalf("Get after invalidate: %v", err)
	}
	if s3 == s1 {
		t.Error("expected a freshly compiled schema after Invalidate")
	}
}
