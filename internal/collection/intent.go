package collection

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Kind is the kind of a mutation
type Kind string

const (
	// KindCreate adds a record
	KindCreate Kind = "create"
	// KindUpdate changes a record
	KindUpdate Kind = "update"
	// KindDelete removes a record
	KindDelete Kind = "delete"
)

// Intent is one confirmed user mutation. It is consumed by the first Apply or Upload.
type Intent struct {
	Kind       Kind
	Payload    Item
	TargetID   ID
	Confirmed  bool
	MutationID string

	consumed atomic.Bool
}

// NewCreateIntent returns an intent to create payload
func NewCreateIntent(payload Item) *Intent {
	return &Intent{Kind: KindCreate, Payload: payload, MutationID: uuid.NewString()}
}

// NewUpdateIntent returns an intent to update id with payload
func NewUpdateIntent(id ID, payload Item) *Intent {
	return &Intent{Kind: KindUpdate, TargetID: id, Payload: payload, MutationID: uuid.NewString()}
}

// NewDeleteIntent returns an unconfirmed intent to delete id
func NewDeleteIntent(id ID) *Intent {
	return &Intent{Kind: KindDelete, TargetID: id, MutationID: uuid.NewString()}
}

// Confirm marks the intent as explicitly confirmed by the user
func (i *Intent) Confirm() *Intent {
	i.Confirmed = true
	return i
}

// Consumed reports whether the intent was already applied
func (i *Intent) Consumed() bool {
	return i.consumed.Load()
}

func (i *Intent) consume() error {
	if !i.consumed.CompareAndSwap(false, true) {
		return ErrIntentConsumed
	}
	return nil
}
