package update

import (
	"context"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"

	"github.com/sandeepkv93/medremind/internal/commands"
	"github.com/sandeepkv93/medremind/internal/model"
	"github.com/sandeepkv93/medremind/internal/notify"
	"github.com/sandeepkv93/medremind/internal/reconcile"
	"github.com/sandeepkv93/medremind/internal/scheduler"
	"github.com/sandeepkv93/medremind/internal/views"
)

const maxNotifications = 20

// Store is what the reminder tools screen needs from the reminder store.
type Store interface {
	commands.Store
	reconcile.Store
	ActiveTriggers(ctx context.Context) (map[scheduler.Handle]scheduler.Trigger, error)
}

type KeyMap struct {
	Up             string
	Down           string
	Toggle         string
	Remove         string
	Reconcile      string
	DisableAll     string
	ClearScheduler string
	Refresh        string
	Palette        string
	Help           string
	Quit           string
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:             "k",
		Down:           "j",
		Toggle:         "t",
		Remove:         "d",
		Reconcile:      "r",
		DisableAll:     "D",
		ClearScheduler: "X",
		Refresh:        "R",
		Palette:        "/",
		Help:           "?",
		Quit:           "q",
	}
}

type StatusBar struct {
	Text    string
	IsError bool
}

type PaletteState struct {
	Active bool
	Input  string
	// History holds executed commands, oldest first.
	History []string
	recall  int
}

type SetStatusMsg struct {
	Text    string
	IsError bool
}

// ReminderDueMsg carries one fired registration from the scheduler.
type ReminderDueMsg struct {
	Event scheduler.Event
}

// StoreChangedMsg is sent when another process rewrote the reminder file.
type StoreChangedMsg struct{}

type Options struct {
	Context    context.Context
	Store      Store
	Reconciler commands.Reconciler
	// Events is optional; fired reminders are shown and delivered through
	// Dispatcher when set.
	Events     <-chan scheduler.Event
	Dispatcher *notify.Dispatcher
	// Changes is optional; each receive reloads the store and registers what
	// other processes changed.
	Changes    <-chan struct{}
	Now        func() time.Time
}

type Model struct {
	Keys          KeyMap
	Items         []model.Reminder
	Active        []scheduler.Handle
	Triggers      map[scheduler.Handle]scheduler.Trigger
	ActiveErr     string
	Cursor        int
	Palette       PaletteState
	Status        StatusBar
	HelpVisible   bool
	Notifications []notify.Notification
	Quitting      bool

	ctx        context.Context
	store      Store
	rec        commands.Reconciler
	sync       *reconcile.Engine
	events     <-chan scheduler.Event
	changes    <-chan struct{}
	dispatcher *notify.Dispatcher
	now        func() time.Time

	reminderTable table.Model
	commandInput  textinput.Model
	helpModel     help.Model
}

func NewModel(opts Options) Model {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := Model{
		Keys:       DefaultKeyMap(),
		Status:     StatusBar{Text: "ready"},
		ctx:        opts.Context,
		store:      opts.Store,
		rec:        opts.Reconciler,
		events:     opts.Events,
		changes:    opts.Changes,
		dispatcher: opts.Dispatcher,
		now:        opts.Now,
	}
	if opts.Store != nil {
		m.sync = reconcile.New(opts.Store, reconcile.ModeStrict, nil)
	}
	m.initBubbles()
	m.refresh()
	return m
}

func (m *Model) initBubbles() {
	cols := []table.Column{
		{Title: "#", Width: 3},
		{Title: "Name", Width: 16},
		{Title: "Time", Width: 5},
		{Title: "Days", Width: 14},
		{Title: "On", Width: 3},
		{Title: "Next", Width: 9},
	}
	m.reminderTable = table.New(table.WithColumns(cols), table.WithRows([]table.Row{}), table.WithFocused(true), table.WithHeight(10))

	m.commandInput = textinput.New()
	m.commandInput.Prompt = "/"
	m.commandInput.CharLimit = 256
	m.commandInput.Width = 56

	m.helpModel = help.New()
}

// refresh reloads reminders and the scheduler's active set.
func (m *Model) refresh() {
	if m.store == nil {
		return
	}
	m.Items = m.store.List()
	active, err := m.store.ActiveHandles(m.ctx)
	if err != nil {
		m.Active = nil
		m.ActiveErr = err.Error()
	} else {
		m.Active = active
		m.ActiveErr = ""
	}
	m.Triggers, err = m.store.ActiveTriggers(m.ctx)
	if err != nil {
		m.Triggers = nil
	}
	if m.Cursor >= len(m.Items) {
		m.Cursor = len(m.Items) - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
	m.syncTable()
}

func (m *Model) syncTable() {
	now := m.now()
	rows := make([]table.Row, 0, len(m.Items))
	for i, r := range m.Items {
		row := views.NewReminderRow(i+1, r, now)
		on := "no"
		if row.Enabled {
			on = "yes"
		}
		rows = append(rows, table.Row{
			strconv.Itoa(row.Position),
			row.Name,
			row.Time,
			row.Days,
			on,
			row.Next,
		})
	}
	m.reminderTable.SetRows(rows)
	if len(rows) > 0 {
		m.reminderTable.SetCursor(m.Cursor)
	}
}

func (m Model) selected() (model.Reminder, bool) {
	if m.Cursor < 0 || m.Cursor >= len(m.Items) {
		return model.Reminder{}, false
	}
	return m.Items[m.Cursor], true
}

func (m Model) handlers() commands.Handlers {
	return commands.StoreHandlers(m.ctx, m.store, m.rec)
}

func (m *Model) pushNotification(n notify.Notification) {
	m.Notifications = append(m.Notifications, n)
	if len(m.Notifications) > maxNotifications {
		m.Notifications = m.Notifications[len(m.Notifications)-maxNotifications:]
	}
}
