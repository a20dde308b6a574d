package validation_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/backoffice-console/internal/collection"
	"github.com/stacklok/backoffice-console/internal/validation"
)

func TestRegistry_Required(t *testing.T) {
	t.Parallel()

	reg := validation.NewRegistry()
	require.NoError(t, reg.AddRequired("taxes", []string{"name", "rate"}))

	tests := []struct {
		name    string
		payload collection.Item
		want    []collection.FieldError
	}{
		{
			name:    "valid",
			payload: collection.Item{"name": "VAT", "rate": 21},
		},
		{
			name:    "missing field",
			payload: collection.Item{"name": "VAT"},
			want:    []collection.FieldError{{Field: "rate", Message: "is required"}},
		},
		{
			name:    "blank string",
			payload: collection.Item{"name": "   ", "rate": 21},
			want:    []collection.FieldError{{Field: "name", Message: "is required"}},
		},
		{
			name:    "null value",
			payload: collection.Item{"name": "VAT", "rate": nil},
			want:    []collection.FieldError{{Field: "rate", Message: "is required"}},
		},
		{
			name:    "everything missing",
			payload: collection.Item{},
			want: []collection.FieldError{
				{Field: "name", Message: "is required"},
				{Field: "rate", Message: "is required"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := reg.Validate("taxes", tt.payload)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			var ve *collection.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "taxes", ve.Resource)
			assert.Equal(t, tt.want, ve.Fields)
		})
	}
}

func TestRegistry_UnknownResourcePasses(t *testing.T) {
	t.Parallel()

	reg := validation.NewRegistry()
	assert.False(t, reg.Has("units"))
	assert.NoError(t, reg.Validate("units", collection.Item{}))
}

func TestRegistry_SchemaFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"price": {"type": "number", "minimum": 0}
		}
	}`), 0600))

	reg := validation.NewRegistry()
	require.NoError(t, reg.AddSchemaFile("products", path))
	require.True(t, reg.Has("products"))

	assert.NoError(t, reg.Validate("products", collection.Item{"name": "Latte", "price": 3.5}))

	err := reg.Validate("products", collection.Item{"price": -1})
	var ve *collection.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Fields, 2)
	assert.Equal(t, collection.FieldError{Field: "name", Message: "is required"}, ve.Fields[0])
	assert.Equal(t, "price", ve.Fields[1].Field)
	assert.NotEmpty(t, ve.Fields[1].Message)
}

func TestRegistry_InvalidSchema(t *testing.T) {
	t.Parallel()

	reg := validation.NewRegistry()
	require.Error(t, reg.AddSchema("units", []byte(`{not json`)))
	require.Error(t, reg.AddSchema("units", []byte(`{"type": 12}`)))
	assert.False(t, reg.Has("units"))
}
