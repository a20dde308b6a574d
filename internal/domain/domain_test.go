package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/backoffice-console/internal/collection"
	"github.com/stacklok/backoffice-console/internal/domain"
)

func TestNormalizeImageURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		base string
		raw  string
		want string
	}{
		{name: "blank", base: "https://cdn.example.com", raw: "  ", want: ""},
		{name: "absolute kept", base: "https://cdn.example.com", raw: "http://img.example.com/a.png", want: "http://img.example.com/a.png"},
		{name: "protocol relative", base: "https://cdn.example.com", raw: "//img.example.com/a.png", want: "https://img.example.com/a.png"},
		{name: "relative joined", base: "https://cdn.example.com/assets/", raw: "products/a.png", want: "https://cdn.example.com/assets/products/a.png"},
		{name: "leading slash joined", base: "https://cdn.example.com/assets", raw: "/products/a.png", want: "https://cdn.example.com/assets/products/a.png"},
		{name: "backslashes", base: "https://cdn.example.com", raw: `uploads\2024\a.png`, want: "https://cdn.example.com/uploads/2024/a.png"},
		{name: "no base", raw: "uploads/a.png", want: "/uploads/a.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, domain.NormalizeImageURL(tt.base, tt.raw))
		})
	}
}

func TestPermissions(t *testing.T) {
	t.Parallel()

	item := collection.Item{
		"id":          1,
		"permissions": map[string]any{"create": true, "read": true, "update": "yes", "delete": true, "all": true},
	}
	p := domain.FromItem(item, "permissions")
	assert.Equal(t, domain.Permissions{Create: true, Read: true, Delete: true}, p)
	assert.False(t, p.All())

	p.SetAll(true)
	assert.True(t, p.All())

	item["all"] = true
	p.ApplyTo(item, "permissions")
	assert.NotContains(t, item, "all")
	assert.Equal(t, map[string]any{"create": true, "read": true, "update": true, "delete": true}, item["permissions"])

	p.SetAll(false)
	assert.Equal(t, domain.Permissions{}, p)
	assert.Equal(t, domain.Permissions{}, domain.FromItem(collection.Item{}, "permissions"))
}

func TestQuotationNumbers(t *testing.T) {
	t.Parallel()

	q, err := domain.SplitQuotationNumber("QT-2024-0007")
	require.NoError(t, err)
	assert.Equal(t, domain.QuotationNumber{Prefix: "QT-2024-", Sequence: 7, Width: 4}, q)
	assert.Equal(t, "QT-2024-0007", q.String())

	tests := []struct {
		in   string
		want string
	}{
		{in: "QT-2024-0007", want: "QT-2024-0008"},
		{in: "QT-0099", want: "QT-0100"},
		{in: "QT-9999", want: "QT-10000"},
		{in: "42", want: "43"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := domain.NextQuotationNumber(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = domain.NextQuotationNumber("QT-DRAFT")
	require.ErrorIs(t, err, domain.ErrNoSequence)
}
