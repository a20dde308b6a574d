// Package validation checks record payloads against per-resource JSON schemas
// before a mutation is sent to the backend.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/stacklok/backoffice-console/internal/collection"
)

const (
	schemaBaseURL   = "https://bo-console.local/schemas/"
	requiredMessage = "is required"
)

var printer = message.NewPrinter(language.English)

type entry struct {
	schema *jsonschema.Schema
	// required fields come from the generated schema and report as "is required"
	required []string
}

// Registry holds the compiled schema of each resource
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

var _ collection.Validator = (*Registry)(nil)

// NewRegistry returns an empty registry. Resources without a schema always pass.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// RequiredSchema builds a schema in which every field must be present, not null
// and, when a string, not blank
func RequiredSchema(fields []string) map[string]any {
	properties := make(map[string]any, len(fields))
	required := make([]any, 0, len(fields))
	for _, f := range fields {
		required = append(required, f)
		properties[f] = map[string]any{
			"not": map[string]any{
				"anyOf": []any{
					map[string]any{"type": "null"},
					map[string]any{"type": "string", "pattern": `^\s*$`},
				},
			},
		}
	}
	return map[string]any{
		"type":       "object",
		"required":   required,
		"properties": properties,
	}
}

// AddRequired registers a generated schema for resource
func (r *Registry) AddRequired(resource string, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	schema, err := compile(resource, RequiredSchema(fields))
	if err != nil {
		return err
	}
	r.set(resource, entry{schema: schema, required: slices.Clone(fields)})
	return nil
}

// AddSchema registers a raw JSON schema document for resource
func (r *Registry) AddSchema(resource string, raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to parse schema for %s: %w", resource, err)
	}
	schema, err := compile(resource, doc)
	if err != nil {
		return err
	}
	r.set(resource, entry{schema: schema})
	return nil
}

// AddSchemaFile reads and registers a schema file for resource
func (r *Registry) AddSchemaFile(resource, path string) error {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read schema file for %s: %w", resource, err)
	}
	return r.AddSchema(resource, raw)
}

// Has reports whether resource has a schema
func (r *Registry) Has(resource string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[resource]
	return ok
}

func (r *Registry) set(resource string, e entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[resource] = e
}

func compile(resource string, doc any) (*jsonschema.Schema, error) {
	url := schemaBaseURL + resource + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema for %s: %w", resource, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema for %s: %w", resource, err)
	}
	return schema, nil
}

// Validate checks payload against the schema of resource. Failures are
// returned as *collection.ValidationError.
func (r *Registry) Validate(resource string, payload collection.Item) error {
	r.mu.RLock()
	e, ok := r.entries[resource]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	// the validator expects json.Number for numbers
	raw, err := json.Marshal(payload)
	if err != nil {
		return &collection.ValidationError{
			Resource: resource,
			Fields:   []collection.FieldError{{Message: fmt.Sprintf("payload is not valid JSON: %v", err)}},
		}
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to decode payload for %s: %w", resource, err)
	}

	err = e.schema.Validate(instance)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("failed to validate %s: %w", resource, err)
	}

	fields := fieldErrors(ve, e.required)
	slices.SortStableFunc(fields, func(a, b collection.FieldError) int {
		return strings.Compare(a.Field, b.Field)
	})
	fields = slices.Compact(fields)
	return &collection.ValidationError{Resource: resource, Fields: fields}
}

func fieldErrors(ve *jsonschema.ValidationError, required []string) []collection.FieldError {
	if len(ve.Causes) > 0 {
		var out []collection.FieldError
		for _, cause := range ve.Causes {
			out = append(out, fieldErrors(cause, required)...)
		}
		return out
	}

	if missing, ok := ve.ErrorKind.(*kind.Required); ok {
		out := make([]collection.FieldError, 0, len(missing.Missing))
		for _, name := range missing.Missing {
			out = append(out, collection.FieldError{
				Field:   joinLocation(append(slices.Clone(ve.InstanceLocation), name)),
				Message: requiredMessage,
			})
		}
		return out
	}

	field := joinLocation(ve.InstanceLocation)
	if len(ve.InstanceLocation) == 1 && slices.Contains(required, field) {
		return []collection.FieldError{{Field: field, Message: requiredMessage}}
	}
	return []collection.FieldError{{Field: field, Message: ve.ErrorKind.LocalizedString(printer)}}
}

func joinLocation(loc []string) string {
	return strings.Join(loc, ".")
}
