package config

import (
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/stacklok/backoffice-console/internal/filtering"
)

// ResourceConfig describes one console screen and the collection behind it
type ResourceConfig struct {
	// Name is the collection path segment, e.g. "organization-units"
	Name string `yaml:"name"`
	// Title is the screen heading
	Title string `yaml:"title,omitempty"`
	// Singular names one record and builds the created topic, e.g. "menu" -> "menuCreated"
	Singular string `yaml:"singular,omitempty"`
	// Group is used by console.screens group filters
	Group string `yaml:"group,omitempty"`

	DisplayKey string   `yaml:"displayKey,omitempty"`
	Columns    []string `yaml:"columns,omitempty"`

	// NewestFirst inserts created records at the front of the page
	NewestFirst *bool `yaml:"newestFirst,omitempty"`
	// Required fields must be present and non-blank before a create or update
	Required []string `yaml:"required,omitempty"`
	// SchemaFile replaces Required with a JSON schema
	SchemaFile string `yaml:"schemaFile,omitempty"`

	// RefreshOn lists topics that trigger a background refresh of this screen
	RefreshOn []string `yaml:"refreshOn,omitempty"`
	// Params are extra list query parameters, e.g. category_id
	Params map[string]string `yaml:"params,omitempty"`

	// LocalView fetches the whole collection once and filters, sorts and pages client-side
	LocalView bool `yaml:"localView,omitempty"`
	// FallbackKey persists a LocalView collection for degraded-mode reads
	FallbackKey string `yaml:"fallbackKey,omitempty"`

	// AutoRefresh is an optional periodic refresh interval
	AutoRefresh string `yaml:"autoRefresh,omitempty"`

	// Bare makes the mock backend answer lists with a bare array
	Bare bool `yaml:"bare,omitempty"`
	// Upload marks screens whose create and update accept files
	Upload bool `yaml:"upload,omitempty"`
	// SequenceField is filled with the next number in sequence (e.g. QT-2024-0008) on create
	// when the payload leaves it blank
	SequenceField string `yaml:"sequenceField,omitempty"`
}

// IsNewestFirst reports whether creates go to the front of the page
func (r ResourceConfig) IsNewestFirst() bool {
	return r.NewestFirst != nil && *r.NewestFirst
}

// GetDisplayKey returns the field used for filtering and default sorting
func (r ResourceConfig) GetDisplayKey() string {
	if r.DisplayKey == "" {
		return "name"
	}
	return r.DisplayKey
}

// GetTitle returns the screen heading
func (r ResourceConfig) GetTitle() string {
	if r.Title == "" {
		return r.Name
	}
	return r.Title
}

// GetSingular returns the singular record name
func (r ResourceConfig) GetSingular() string {
	if r.Singular == "" {
		return r.Name
	}
	return r.Singular
}

// GetColumns returns the table columns, id and the display key by default
func (r ResourceConfig) GetColumns() []string {
	if len(r.Columns) > 0 {
		return r.Columns
	}
	return []string{"id", r.GetDisplayKey()}
}

// GetAutoRefresh returns the periodic refresh interval, zero when disabled
func (r ResourceConfig) GetAutoRefresh() time.Duration {
	d, _ := time.ParseDuration(r.AutoRefresh)
	return d
}

// ExtraParams returns Params as query values
func (r ResourceConfig) ExtraParams() url.Values {
	if len(r.Params) == 0 {
		return nil
	}
	v := make(url.Values, len(r.Params))
	for k, val := range r.Params {
		v.Set(k, val)
	}
	return v
}

func (r ResourceConfig) validate(index int) error {
	prefix := fmt.Sprintf("resources[%d] (%s)", index, r.Name)
	if r.Name == "" {
		return fmt.Errorf("resources[%d]: name is required", index)
	}
	if r.AutoRefresh != "" {
		if _, err := time.ParseDuration(r.AutoRefresh); err != nil {
			return fmt.Errorf("%s: autoRefresh must be a valid duration: %w", prefix, err)
		}
	}
	if r.FallbackKey != "" && !r.LocalView {
		return fmt.Errorf("%s: fallbackKey requires localView", prefix)
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }

// Catalog returns the built-in screens
func Catalog() []ResourceConfig {
	return []ResourceConfig{
		{
			Name: "companies", Title: "Companies", Singular: "company", Group: "organization",
			Columns: []string{"id", "code", "name"}, Required: []string{"code", "name"},
			NewestFirst: boolPtr(true),
		},
		{
			Name: "menus", Title: "Menus", Singular: "menu", Group: "access",
			Columns: []string{"id", "name", "parent_id", "path"}, Required: []string{"name"},
			LocalView: true, FallbackKey: "menuItems", NewestFirst: boolPtr(false),
		},
		{
			Name: "roles", Title: "Roles", Singular: "role", Group: "access",
			Columns: []string{"id", "name", "description"}, Required: []string{"name"},
			RefreshOn: []string{"menuCreated"}, NewestFirst: boolPtr(true),
		},
		{
			Name: "categories", Title: "Categories", Singular: "category", Group: "catalog",
			Required: []string{"name"}, NewestFirst: boolPtr(true),
		},
		{
			Name: "taxes", Title: "Taxes", Singular: "tax", Group: "catalog",
			Columns: []string{"id", "name", "rate"}, Required: []string{"name", "rate"},
			NewestFirst: boolPtr(true),
		},
		{
			Name: "units", Title: "Units", Singular: "unit", Group: "catalog",
			Columns: []string{"id", "code", "name"}, Required: []string{"code", "name"},
			NewestFirst: boolPtr(true),
		},
		{
			Name: "stores", Title: "Stores", Singular: "store", Group: "organization",
			Columns: []string{"id", "code", "name", "company_id"}, Required: []string{"name", "company_id"},
			RefreshOn: []string{"companyCreated"}, NewestFirst: boolPtr(true),
		},
		{
			Name: "products", Title: "Products", Singular: "product", Group: "catalog",
			Columns: []string{"id", "sku", "name", "price", "category_id"}, Required: []string{"name", "category_id"},
			RefreshOn: []string{"categoryCreated", "taxCreated", "unitCreated"},
			NewestFirst: boolPtr(true), Upload: true,
		},
		{
			Name: "organization-units", Title: "Organization Units", Singular: "organizationUnit", Group: "organization",
			Columns: []string{"id", "code", "name", "company_id"}, Required: []string{"name", "company_id"},
			RefreshOn: []string{"companyCreated"}, NewestFirst: boolPtr(true),
		},
		{
			Name: "users", Title: "Users", Singular: "user", Group: "access",
			DisplayKey: "username", Columns: []string{"id", "username", "email", "role_id"},
			Required: []string{"username", "email", "role_id"},
			RefreshOn: []string{"roleCreated", "organizationUnitCreated"}, NewestFirst: boolPtr(true),
		},
		{
			Name: "tandc", Title: "Terms & Conditions", Singular: "tandc", Group: "sales",
			DisplayKey: "title", Columns: []string{"id", "title", "version"}, Required: []string{"title", "content"},
			NewestFirst: boolPtr(true),
		},
		{
			Name: "quotations", Title: "Quotations", Singular: "quotation", Group: "sales",
			DisplayKey: "quotation_number", Columns: []string{"id", "quotation_number", "customer_name", "total"},
			Required: []string{"customer_name"}, SequenceField: "quotation_number", NewestFirst: boolPtr(true),
		},
		{
			Name: "employees", Title: "Employee Job Info", Singular: "employee", Group: "hr",
			DisplayKey: "employee_name", Columns: []string{"id", "employee_name", "job_title", "organization_unit_id"},
			Required: []string{"employee_name", "job_title"},
			RefreshOn: []string{"userCreated", "organizationUnitCreated"}, NewestFirst: boolPtr(true),
		},
	}
}

// EffectiveResources merges the configured resources onto the catalog. A
// configured resource with a catalog name overrides the non-zero fields of
// that entry; other names are appended as new screens.
func (c *Config) EffectiveResources() []ResourceConfig {
	resources := Catalog()
	for _, override := range c.Resources {
		i := slices.IndexFunc(resources, func(r ResourceConfig) bool { return r.Name == override.Name })
		if i < 0 {
			resources = append(resources, override)
			continue
		}
		resources[i] = mergeResource(resources[i], override)
	}
	return resources
}

// VisibleResources returns the effective resources that pass console.screens
func (c *Config) VisibleResources() []ResourceConfig {
	return filtering.Select(c.EffectiveResources(), c.Console.Screens,
		func(r ResourceConfig) string { return r.Name },
		func(r ResourceConfig) string { return r.Group })
}

func mergeResource(base, o ResourceConfig) ResourceConfig {
	if o.Title != "" {
		base.Title = o.Title
	}
	if o.Singular != "" {
		base.Singular = o.Singular
	}
	if o.Group != "" {
		base.Group = o.Group
	}
	if o.DisplayKey != "" {
		base.DisplayKey = o.DisplayKey
	}
	if len(o.Columns) > 0 {
		base.Columns = o.Columns
	}
	if o.NewestFirst != nil {
		base.NewestFirst = o.NewestFirst
	}
	if len(o.Required) > 0 {
		base.Required = o.Required
	}
	if o.SchemaFile != "" {
		base.SchemaFile = o.SchemaFile
	}
	if len(o.RefreshOn) > 0 {
		base.RefreshOn = o.RefreshOn
	}
	if len(o.Params) > 0 {
		base.Params = o.Params
	}
	if o.LocalView {
		base.LocalView = true
	}
	if o.FallbackKey != "" {
		base.FallbackKey = o.FallbackKey
	}
	if o.AutoRefresh != "" {
		base.AutoRefresh = o.AutoRefresh
	}
	if o.Bare {
		base.Bare = true
	}
	if o.Upload {
		base.Upload = true
	}
	if o.SequenceField != "" {
		base.SequenceField = o.SequenceField
	}
	return base
}

func (c *Config) validateResources() error {
	seen := make(map[string]bool)
	for i, r := range c.Resources {
		if err := r.validate(i); err != nil {
			return err
		}
		if seen[r.Name] {
			return fmt.Errorf("resources[%d]: duplicate resource name '%s'", i, r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}
