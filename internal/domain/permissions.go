package domain

import "github.com/stacklok/backoffice-console/internal/collection"

// Permission flag names as stored on records
const (
	PermCreate = "create"
	PermRead   = "read"
	PermUpdate = "update"
	PermDelete = "delete"

	// PermAll is the display-only aggregate. It is never written to a record.
	PermAll = "all"
)

// Permissions is the four-flag permission set of a role or user on a module
type Permissions struct {
	Create bool
	Read   bool
	Update bool
	Delete bool
}

// All reports whether every flag is set
func (p Permissions) All() bool {
	return p.Create && p.Read && p.Update && p.Delete
}

// SetAll sets every flag to v
func (p *Permissions) SetAll(v bool) {
	p.Create, p.Read, p.Update, p.Delete = v, v, v, v
}

// PermissionsFromMap reads the four flags from m. Missing or non-boolean
// values count as false; an "all" entry is ignored.
func PermissionsFromMap(m map[string]any) Permissions {
	flag := func(name string) bool {
		v, _ := m[name].(bool)
		return v
	}
	return Permissions{
		Create: flag(PermCreate),
		Read:   flag(PermRead),
		Update: flag(PermUpdate),
		Delete: flag(PermDelete),
	}
}

// FromItem reads the permission map stored under key on item
func FromItem(item collection.Item, key string) Permissions {
	m, _ := item[key].(map[string]any)
	return PermissionsFromMap(m)
}

// Map returns the flags as a record value, without the aggregate
func (p Permissions) Map() map[string]any {
	return map[string]any{
		PermCreate: p.Create,
		PermRead:   p.Read,
		PermUpdate: p.Update,
		PermDelete: p.Delete,
	}
}

// ApplyTo writes the flags under key on item, dropping any aggregate flag
// the caller may have put there
func (p Permissions) ApplyTo(item collection.Item, key string) {
	item[key] = p.Map()
	delete(item, PermAll)
}
