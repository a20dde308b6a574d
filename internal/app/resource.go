package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stacklok/backoffice-console/internal/backend"
	"github.com/stacklok/backoffice-console/internal/collection"
	"github.com/stacklok/backoffice-console/internal/config"
	"github.com/stacklok/backoffice-console/internal/console"
	"github.com/stacklok/backoffice-console/internal/dashboard"
	"github.com/stacklok/backoffice-console/internal/domain"
	"github.com/stacklok/backoffice-console/internal/reconcile"
)

// imageFields are normalized against the asset base before display
var imageFields = []string{"image", "image_url", "logo"}

// permissionsField holds the four-flag permission map on roles and users
const permissionsField = "permissions"

// Resource bundles the components behind one console screen
type Resource struct {
	Config      config.ResourceConfig
	Backend     *backend.REST
	Controller  collection.Controller
	Coordinator *collection.Coordinator
	Reconciler  *reconcile.Reconciler
	// LocalView is set for screens that hold the whole collection
	LocalView *collection.LocalView

	assetBase string
}

// Name returns the collection name
func (r *Resource) Name() string {
	return r.Config.Name
}

// Present returns a display copy of item: image references become fetchable URLs and a
// permission map gains its derived "all" flag. The copy is never sent back to the backend.
func (r *Resource) Present(item collection.Item) collection.Item {
	out := item.Clone()
	for _, f := range imageFields {
		if raw, ok := out[f].(string); ok {
			out[f] = domain.NormalizeImageURL(r.assetBase, raw)
		}
	}
	if m, ok := out[permissionsField].(map[string]any); ok {
		perms := domain.PermissionsFromMap(m)
		view := perms.Map()
		view[domain.PermAll] = perms.All()
		out[permissionsField] = view
	}
	return out
}

// PrepareCreate fills the sequence field of payload with the number following the highest
// one on the backend. Payloads that already carry a value are returned unchanged.
func (r *Resource) PrepareCreate(ctx context.Context, payload collection.Item) (collection.Item, error) {
	field := r.Config.SequenceField
	if field == "" {
		return payload, nil
	}
	if v, ok := payload[field].(string); ok && strings.TrimSpace(v) != "" {
		return payload, nil
	}

	q := collection.Query{PageSize: 1, SortKey: field, SortDirection: collection.SortDesc}
	body, err := r.Backend.List(ctx, q, r.Config.ExtraParams())
	if err != nil {
		return nil, fmt.Errorf("failed to read last %s: %w", field, collection.Classify(err))
	}
	page, _, err := collection.NormalizePage(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read last %s: %w", field, err)
	}
	if len(page.Items) == 0 {
		slog.Debug("No previous sequence value, leaving it to the backend", "resource", r.Name(), "field", field)
		return payload, nil
	}

	last, _ := page.Items[0][field].(string)
	next, err := domain.NextQuotationNumber(last)
	if err != nil {
		return nil, fmt.Errorf("failed to derive next %s: %w", field, err)
	}
	out := payload.Clone()
	if out == nil {
		out = collection.Item{}
	}
	out[field] = next
	return out, nil
}

// SetPermissions writes perms under the permission field of payload without the aggregate flag
func SetPermissions(payload collection.Item, perms domain.Permissions) collection.Item {
	out := payload.Clone()
	if out == nil {
		out = collection.Item{}
	}
	perms.ApplyTo(out, permissionsField)
	return out
}

// Screen returns the console screen of the resource
func (r *Resource) Screen() console.Screen {
	return console.Screen{
		Name:       r.Name(),
		Title:      r.Config.GetTitle(),
		Group:      r.Config.Group,
		DisplayKey: r.Config.GetDisplayKey(),
		Columns:    r.Config.GetColumns(),
		Controller: r.Controller,
		Mutator:    r.Coordinator,
		Present:    r.Present,
	}
}

// DashboardSource returns the dashboard entry of the resource
func (r *Resource) DashboardSource() dashboard.Source {
	return dashboard.Source{
		Resource: r.Name(),
		Title:    r.Config.GetTitle(),
		Backend:  r.Backend,
		Params:   r.Config.ExtraParams(),
	}
}
