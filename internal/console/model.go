package console

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stacklok/backoffice-console/internal/collection"
)

type mode int

const (
	modeMenu mode = iota
	modeTable
	modeSearch
	modeConfirm
)

type refreshedMsg struct {
	screen int
	err    error
}

type mutationDoneMsg struct {
	screen int
	id     collection.ID
	err    error
}

type changedMsg struct {
	screen int
}

type notificationMsg struct {
	note collection.Notification
}

// Option configures the console model
type Option func(*Model)

// WithNotifications shows outcomes reported through n in the banner
func WithNotifications(n *Notifications) Option {
	return func(m *Model) {
		m.notes = n
	}
}

// WithContext sets the context passed to fetches and mutations
func WithContext(ctx context.Context) Option {
	return func(m *Model) {
		m.ctx = ctx
	}
}

// Model is the bubbletea model of the console
type Model struct {
	ctx     context.Context
	screens []Screen
	notes   *Notifications

	mode       mode
	menuCursor int
	active     int
	cursor     int
	search     string
	pending    collection.ID
	banner     string
	bannerErr  bool
	width      int
	height     int
}

// New returns a console over screens, starting on the resource menu
func New(screens []Screen, opts ...Option) *Model {
	m := &Model{
		ctx:     context.Background(),
		screens: screens,
		width:   100,
		height:  24,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(m.screens)+1)
	for i := range m.screens {
		cmds = append(cmds, m.waitForChange(i))
	}
	if m.notes != nil {
		cmds = append(cmds, m.notes.wait(m.ctx))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case changedMsg:
		if msg.screen == m.active {
			m.clampCursor()
		}
		return m, m.waitForChange(msg.screen)

	case refreshedMsg:
		if msg.screen == m.active {
			m.clampCursor()
		}
		return m, nil

	case mutationDoneMsg:
		if m.notes == nil {
			if msg.err != nil {
				m.setBanner(collection.UserMessage(msg.err), true)
			} else {
				m.setBanner(fmt.Sprintf("%s deleted", msg.id), false)
			}
		}
		m.clampCursor()
		return m, nil

	case notificationMsg:
		n := msg.note
		if n.Err != nil {
			m.setBanner(fmt.Sprintf("%s: %s", n.Resource, n.Message), true)
		} else {
			m.setBanner(fmt.Sprintf("%s: %s %s", n.Resource, n.ID, n.Message), false)
		}
		return m, m.notes.wait(m.ctx)

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.mode {
		case modeMenu:
			return m.updateMenu(msg)
		case modeSearch:
			return m.updateSearch(msg)
		case modeConfirm:
			return m.updateConfirm(msg)
		default:
			return m.updateTable(msg)
		}
	}
	return m, nil
}

func (m *Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		m.menuCursor = max(m.menuCursor-1, 0)
	case "down", "j":
		m.menuCursor = min(m.menuCursor+1, len(m.screens)-1)
	case "enter":
		if len(m.screens) == 0 {
			return m, nil
		}
		m.active = m.menuCursor
		m.mode = modeTable
		m.cursor = 0
		m.banner = ""
		return m, m.refresh(m.active)
	}
	return m, nil
}

func (m *Model) updateTable(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	screen := m.screens[m.active]
	snap := screen.Controller.Snapshot()

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "esc":
		m.mode = modeMenu
		m.banner = ""
	case "up", "k":
		m.cursor = max(m.cursor-1, 0)
	case "down", "j":
		m.cursor = min(m.cursor+1, max(len(snap.Items)-1, 0))
	case "/":
		m.mode = modeSearch
		m.search = snap.Query.FilterText
	case "n":
		if snap.Query.Page < snap.MaxPage {
			m.cursor = 0
			return m, m.setQuery(m.active, collection.PagePatch(snap.Query.Page+1))
		}
	case "p":
		if snap.Query.Page > 0 {
			m.cursor = 0
			return m, m.setQuery(m.active, collection.PagePatch(snap.Query.Page-1))
		}
	case "s":
		key := screen.displayKey()
		dir := collection.SortAsc
		if snap.Query.SortKey == key {
			dir = snap.Query.SortDirection.Toggle()
		}
		m.cursor = 0
		return m, m.setQuery(m.active, collection.SortPatch(key, dir))
	case "r":
		return m, m.refresh(m.active)
	case "d":
		m.startDelete(screen, snap)
	}
	return m, nil
}

func (m *Model) startDelete(screen Screen, snap collection.Snapshot) {
	if screen.Mutator == nil {
		m.setBanner("this screen is read-only", true)
		return
	}
	if screen.Mutator.Busy() {
		m.setBanner(collection.ErrMutationInFlight.Error(), true)
		return
	}
	if m.cursor >= len(snap.Items) {
		return
	}
	id, ok := snap.Items[m.cursor].ID()
	if !ok {
		m.setBanner("selected row has no id", true)
		return
	}
	m.pending = id
	m.mode = modeConfirm
}

func (m *Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeTable
	case tea.KeyEnter:
		m.mode = modeTable
		m.cursor = 0
		return m, m.setQuery(m.active, collection.FilterPatch(m.search))
	case tea.KeyBackspace:
		if r := []rune(m.search); len(r) > 0 {
			m.search = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.search += " "
	case tea.KeyRunes:
		m.search += string(msg.Runes)
	}
	return m, nil
}

func (m *Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	id := m.pending
	m.pending = ""
	m.mode = modeTable
	if msg.String() != "y" && msg.String() != "Y" {
		m.setBanner("delete cancelled", false)
		return m, nil
	}
	return m, m.remove(m.active, id)
}

func (m *Model) setBanner(text string, isErr bool) {
	m.banner = text
	m.bannerErr = isErr
}

func (m *Model) clampCursor() {
	if len(m.screens) == 0 {
		return
	}
	n := len(m.screens[m.active].Controller.Snapshot().Items)
	m.cursor = max(min(m.cursor, n-1), 0)
}

// waitForChange yields a changedMsg on the next store signal. It returns nil once the console
// context ends, so no waiter outlives the program.
func (m *Model) waitForChange(i int) tea.Cmd {
	ch, done := m.screens[i].Controller.Changes(), m.ctx.Done()
	return func() tea.Msg {
		select {
		case <-ch:
			return changedMsg{screen: i}
		case <-done:
			return nil
		}
	}
}

func (m *Model) refresh(i int) tea.Cmd {
	ctrl, ctx := m.screens[i].Controller, m.ctx
	return func() tea.Msg {
		return refreshedMsg{screen: i, err: ctrl.Refresh(ctx)}
	}
}

func (m *Model) setQuery(i int, patch collection.QueryPatch) tea.Cmd {
	ctrl, ctx := m.screens[i].Controller, m.ctx
	return func() tea.Msg {
		return refreshedMsg{screen: i, err: ctrl.SetQuery(ctx, patch)}
	}
}

func (m *Model) remove(i int, id collection.ID) tea.Cmd {
	mut, ctx := m.screens[i].Mutator, m.ctx
	return func() tea.Msg {
		_, err := mut.Apply(ctx, collection.NewDeleteIntent(id).Confirm())
		return mutationDoneMsg{screen: i, id: id, err: err}
	}
}

// Run starts the console on the terminal and blocks until the user quits or ctx is done
func Run(ctx context.Context, screens []Screen, notes *Notifications) error {
	// quitting ends the context too, releasing the change and notification waiters
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := New(screens, WithContext(ctx), WithNotifications(notes))
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
