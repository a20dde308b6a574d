// Package console is the interactive terminal front end: a resource menu and one paged,
// searchable table per collection, driven by the collection controllers.
package console

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stacklok/backoffice-console/internal/collection"
)

// Mutator applies mutation intents for one screen
type Mutator interface {
	Apply(ctx context.Context, intent *collection.Intent) (collection.Item, error)
	InFlight(id collection.ID) bool
	Busy() bool
}

// Screen is one resource screen
type Screen struct {
	Name       string
	Title      string
	Group      string
	DisplayKey string
	Columns    []string
	Controller collection.Controller
	// Mutator is nil for read-only screens
	Mutator Mutator
	// Present returns the display copy of a row, nil shows rows as stored
	Present func(collection.Item) collection.Item
}

func (s Screen) title() string {
	if s.Title != "" {
		return s.Title
	}
	return s.Name
}

func (s Screen) displayKey() string {
	if s.DisplayKey != "" {
		return s.DisplayKey
	}
	return "name"
}

func (s Screen) columns() []string {
	if len(s.Columns) > 0 {
		return s.Columns
	}
	return []string{collection.IDField, s.displayKey()}
}

// Notifications collects mutation outcomes reported by coordinators and hands them to the
// running program. It implements collection.Notifier.
type Notifications struct {
	ch chan collection.Notification
}

// NewNotifications returns a notifier buffering up to size outcomes
func NewNotifications(size int) *Notifications {
	if size <= 0 {
		size = 16
	}
	return &Notifications{ch: make(chan collection.Notification, size)}
}

// Notify queues n. Outcomes are dropped when the console falls behind.
func (n *Notifications) Notify(note collection.Notification) {
	select {
	case n.ch <- note:
	default:
	}
}

func (n *Notifications) wait(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		select {
		case note := <-n.ch:
			return notificationMsg{note: note}
		case <-ctx.Done():
			return nil
		}
	}
}
