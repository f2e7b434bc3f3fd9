package contenttype

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

// SchemaCache compiles and memoizes JSON Schema validators per content type,
// so a hot create/update path never recompiles the same schema text twice.
// Per spec.md §9: "schema validators are compiled once per content type and
// cached by (typeId, version)." This service has no separate schema version
// counter, so the schema text itself doubles as the cache-invalidation key.
type SchemaCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]cacheEntry
}

type cacheEntry struct {
	schemaText string
	schema     *gojsonschema.Schema
}

func NewSchemaCache() *SchemaCache {
	return &SchemaCache{entries: make(map[uuid.UUID]cacheEntry)}
}

// Get returns a compiled validator for typeID's current schema text,
// recompiling only when the schema text has changed since the last call.
func (c *SchemaCache) Get(typeID uuid.UUID, schemaText string) (*gojsonschema.Schema, error) {
	c.mu.Lock()
	if e, ok := c.entries[typeID]; ok && e.schemaText == schemaText {
		c.mu.Unlock()
		return e.schema, nil
	}
	c.mu.Unlock()

	schema, err := CompileSchema(schemaText)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[typeID] = cacheEntry{schemaText: schemaText, schema: schema}
	c.mu.Unlock()

	return schema, nil
}

// Invalidate drops any cached validator for typeID, called after an update
// changes its schema.
func (c *SchemaCache) Invalidate(typeID uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, typeID)
	c.mu.Unlock()
}

// CompileSchema parses raw JSON Schema text, returning
// ErrInvalidSchemaJSON-wrapped errors the handler maps to
// INVALID_CONTENT_SCHEMA_JSON.
func CompileSchema(schemaText string) (*gojsonschema.Schema, error) {
	loader := gojsonschema.NewStringLoader(schemaText)
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchemaJSON, err)
	}
	return schema, nil
}

var ErrInvalidSchemaJSON = fmt.Errorf("content type schema is not valid JSON Schema")

// ValidationFailure describes one field that failed schema validation,
// identified by its JSON pointer per spec.md §9's "rejections carry the
// failing JSON pointer."
type ValidationFailure struct {
	Pointer string
	Message string
}

// ValidateData validates raw JSON data text against a compiled schema,
// returning the failing fields in the order the validator reports them.
func ValidateData(schema *gojsonschema.Schema, data string) ([]ValidationFailure, error) {
	var probe any
	if err := json.Unmarshal([]byte(data), &probe); err != nil {
		return nil, fmt.Errorf("data is not valid JSON: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(data))
	if err != nil {
		return nil, fmt.Errorf("validating data against schema: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	failures := make([]ValidationFailure, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		failures = append(failures, ValidationFailure{
			Pointer: "/" + e.Field(),
			Message: e.Description(),
		})
	}
	return failures, nil
}
