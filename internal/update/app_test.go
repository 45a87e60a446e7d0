package update

import (
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/medremind/internal/logger"
	"github.com/sandeepkv93/medremind/internal/model"
	"github.com/sandeepkv93/medremind/internal/notify"
	"github.com/sandeepkv93/medremind/internal/reconcile"
	"github.com/sandeepkv93/medremind/internal/reminders"
	"github.com/sandeepkv93/medremind/internal/scheduler"
	"github.com/sandeepkv93/medremind/internal/storage"
)

var mondayMorning = time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Send(n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func newStore(t *testing.T, repo storage.Repository, engine *scheduler.Engine) *reminders.Store {
	t.Helper()
	store := reminders.New(repo, engine, reminders.Options{
		Logger: logger.Discard(),
		Now:    func() time.Time { return mondayMorning },
	})
	if err := store.Hydrate(t.Context()); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	return store
}

func setupModel(t *testing.T, names ...string) (Model, *reminders.Store, *scheduler.Engine, storage.Repository) {
	t.Helper()
	repo, err := storage.NewFileRepository(t.TempDir(), "")
	if err != nil {
		t.Fatalf("repo: %v", err)
	}
	engine := scheduler.NewEngine(4)
	store := newStore(t, repo, engine)
	for _, name := range names {
		if _, err := store.Add(t.Context(), reminders.AddInput{Name: name, Time: "08:00", Weekdays: []model.Weekday{model.Monday}}); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	m := NewModel(Options{
		Context:    t.Context(),
		Store:      store,
		Reconciler: reconcile.New(store, reconcile.ModeHeuristic, logger.Discard()),
		Now:        func() time.Time { return mondayMorning },
	})
	return m, store, engine, repo
}

func press(t *testing.T, m Model, keys ...tea.KeyMsg) Model {
	t.Helper()
	for _, k := range keys {
		updated, _ := m.Update(k)
		m = updated.(Model)
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNewModelDefaults(t *testing.T) {
	m, _, _, _ := setupModel(t, "Aspirin", "Iron")
	if m.Keys.Quit != "q" {
		t.Fatalf("expected quit key q, got %q", m.Keys.Quit)
	}
	if len(m.Items) != 2 || len(m.Active) != 2 {
		t.Fatalf("expected 2 reminders and 2 active handles, got %d/%d", len(m.Items), len(m.Active))
	}
	if m.Cursor != 0 {
		t.Fatalf("expected cursor 0, got %d", m.Cursor)
	}
}

func TestCursorMovementStaysInRange(t *testing.T) {
	m, _, _, _ := setupModel(t, "Aspirin", "Iron")
	m = press(t, m, runes("j"), runes("j"), runes("j"))
	if m.Cursor != 1 {
		t.Fatalf("expected cursor clamped at 1, got %d", m.Cursor)
	}
	m = press(t, m, runes("k"), runes("k"))
	if m.Cursor != 0 {
		t.Fatalf("expected cursor 0, got %d", m.Cursor)
	}
}

func TestToggleSelectedCancelsRegistrations(t *testing.T) {
	m, store, engine, _ := setupModel(t, "Aspirin", "Iron")
	m = press(t, m, runes("j"), tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})

	items := store.List()
	if !items[0].Enabled || items[1].Enabled {
		t.Fatalf("expected only the second reminder disabled, got %v/%v", items[0].Enabled, items[1].Enabled)
	}
	if active, _ := engine.ListActive(t.Context()); len(active) != 1 {
		t.Fatalf("expected 1 active registration, got %d", len(active))
	}
	if m.Status.IsError || !strings.Contains(m.Status.Text, "Iron disabled") {
		t.Fatalf("unexpected status %+v", m.Status)
	}

	m = press(t, m, runes("t"))
	if !store.List()[1].Enabled {
		t.Fatal("expected reminder re-enabled")
	}
	if len(m.Active) != 2 {
		t.Fatalf("expected view refreshed with 2 active, got %d", len(m.Active))
	}
}

func TestRemoveSelected(t *testing.T) {
	m, store, engine, _ := setupModel(t, "Aspirin")
	m = press(t, m, runes("d"))
	if len(store.List()) != 0 || len(m.Items) != 0 {
		t.Fatal("expected reminder removed")
	}
	if active, _ := engine.ListActive(t.Context()); len(active) != 0 {
		t.Fatalf("expected no active registrations, got %d", len(active))
	}

	m = press(t, m, runes("d"))
	if !m.Status.IsError {
		t.Fatal("expected error status when nothing is selected")
	}
}

func TestPaletteAddsReminder(t *testing.T) {
	m, store, _, _ := setupModel(t)
	m = press(t, m, runes("/"))
	if !m.Palette.Active {
		t.Fatal("expected palette active")
	}
	m = press(t, m, runes("add Vitamin D at 09:30 on mon,thu dose 1000 IU"), tea.KeyMsg{Type: tea.KeyEnter})
	if m.Palette.Active {
		t.Fatal("expected palette closed after enter")
	}
	if m.Status.IsError {
		t.Fatalf("unexpected error status %q", m.Status.Text)
	}
	items := store.List()
	if len(items) != 1 || items[0].Name != "Vitamin D" || items[0].Dose != "1000 IU" {
		t.Fatalf("unexpected reminders %#v", items)
	}
	if len(m.Items) != 1 || len(m.Active) != 2 {
		t.Fatalf("expected view refreshed, got %d items %d active", len(m.Items), len(m.Active))
	}
}

func TestPaletteParseErrorAndEscape(t *testing.T) {
	m, _, _, _ := setupModel(t)
	m = press(t, m, runes("/"), runes("snooze all"), tea.KeyMsg{Type: tea.KeyEnter})
	if !m.Status.IsError || !strings.Contains(m.Status.Text, "unknown_command") {
		t.Fatalf("expected unknown command error, got %+v", m.Status)
	}

	m = press(t, m, runes("/"), runes("list"), tea.KeyMsg{Type: tea.KeyEsc})
	if m.Palette.Active || m.Palette.Input != "" {
		t.Fatalf("expected palette reset, got %+v", m.Palette)
	}
}

func TestPaletteRecallsHistory(t *testing.T) {
	m, store, _, _ := setupModel(t)
	m = press(t, m, runes("/"), runes("add Iron at 20:00"), tea.KeyMsg{Type: tea.KeyEnter})
	if len(m.Palette.History) != 1 || len(store.List()) != 1 {
		t.Fatalf("expected one executed command, got %v", m.Palette.History)
	}

	m = press(t, m, runes("/"), tea.KeyMsg{Type: tea.KeyUp})
	if m.Palette.Input != "add Iron at 20:00" {
		t.Fatalf("expected recalled command, got %q", m.Palette.Input)
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if m.Palette.Input != "" {
		t.Fatalf("expected input cleared past newest entry, got %q", m.Palette.Input)
	}
}

func TestClearSchedulerThenReconcile(t *testing.T) {
	m, store, engine, _ := setupModel(t, "Aspirin")
	m = press(t, m, runes("X"))
	if len(m.Active) != 0 {
		t.Fatalf("expected no active registrations after clear, got %d", len(m.Active))
	}
	if !store.List()[0].Enabled {
		t.Fatal("clear scheduler should keep reminders enabled")
	}

	m = press(t, m, runes("r"))
	if m.Status.IsError || !strings.Contains(m.Status.Text, "1 rescheduled") {
		t.Fatalf("unexpected reconcile status %+v", m.Status)
	}
	if active, _ := engine.ListActive(t.Context()); len(active) != 1 {
		t.Fatalf("expected rebuilt registration, got %d", len(active))
	}
}

func TestDisableAll(t *testing.T) {
	m, store, _, _ := setupModel(t, "Aspirin", "Iron")
	m = press(t, m, runes("D"))
	for _, r := range store.List() {
		if r.Enabled {
			t.Fatalf("expected %s disabled", r.Name)
		}
	}
	if m.Status.Text != "disabled 2 reminders" {
		t.Fatalf("unexpected status %q", m.Status.Text)
	}
}

func TestReminderDueDeliversThroughDispatcher(t *testing.T) {
	m, _, _, _ := setupModel(t)
	rec := &recordingNotifier{}
	events := make(chan scheduler.Event, 1)
	m.dispatcher = notify.NewDispatcher(rec, 0, logger.Discard())
	m.events = events

	updated, cmd := m.Update(ReminderDueMsg{Event: scheduler.Event{
		Handle:  "h1",
		Trigger: scheduler.Trigger{Weekday: model.Monday, Hour: 8, Title: "Aspirin", Body: "75mg"},
		FiredAt: mondayMorning,
	}})
	next := updated.(Model)
	if cmd == nil {
		t.Fatal("expected a follow-up wait command")
	}
	if len(rec.sent) != 1 || rec.sent[0].Title != "Aspirin" {
		t.Fatalf("unexpected deliveries %#v", rec.sent)
	}
	if len(next.Notifications) != 1 || !strings.Contains(next.Status.Text, "Aspirin 75mg") {
		t.Fatalf("unexpected state %+v / %+v", next.Notifications, next.Status)
	}

	events <- scheduler.Event{Handle: "h2"}
	msg := cmd()
	if due, ok := msg.(ReminderDueMsg); !ok || due.Event.Handle != "h2" {
		t.Fatalf("unexpected message %#v", msg)
	}
}

func TestStoreChangedSyncsRegistrationsWithOtherWriters(t *testing.T) {
	m, _, engine, repo := setupModel(t, "Aspirin")
	other := newStore(t, repo, scheduler.NewEngine(1))
	if _, err := other.Add(t.Context(), reminders.AddInput{Name: "Iron", Time: "20:00"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	updated, _ := m.Update(StoreChangedMsg{})
	next := updated.(Model)
	if len(next.Items) != 2 {
		t.Fatalf("expected 2 reminders after reload, got %d", len(next.Items))
	}
	if active, _ := engine.ListActive(t.Context()); len(active) != 8 {
		t.Fatalf("expected Iron registered with this engine, got %d registrations", len(active))
	}
	if !strings.Contains(next.Status.Text, "1 registered here") {
		t.Fatalf("unexpected status %+v", next.Status)
	}

	// The other process removes Aspirin; its registration here must go too.
	if err := other.Hydrate(t.Context()); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if err := other.Remove(t.Context(), other.List()[0].ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	updated, _ = next.Update(StoreChangedMsg{})
	next = updated.(Model)
	if len(next.Items) != 1 || next.Items[0].Name != "Iron" {
		t.Fatalf("unexpected reminders %#v", next.Items)
	}
	active, _ := engine.ListActive(t.Context())
	if len(active) != 7 {
		t.Fatalf("expected only Iron's 7 registrations, got %d", len(active))
	}
	if !strings.Contains(next.View(), "Mon 20:00 Iron") {
		t.Fatal("expected the schedule panel to show trigger times")
	}
}

func TestUpdateStatusAndHelp(t *testing.T) {
	m, _, _, _ := setupModel(t, "Aspirin")
	updated, _ := m.Update(SetStatusMsg{Text: "ready", IsError: false})
	m = updated.(Model)
	if m.Status.Text != "ready" || m.Status.IsError {
		t.Fatalf("unexpected status %+v", m.Status)
	}

	m = press(t, m, runes("?"))
	if !m.HelpVisible {
		t.Fatal("expected help visible")
	}
	view := m.View()
	for _, want := range []string{"Aspirin", "scheduled registrations", "Mon 08:00 Aspirin", "reconcile scheduler state"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q", want)
		}
	}
}

func TestQuit(t *testing.T) {
	m, _, _, _ := setupModel(t)
	updated, cmd := m.Update(runes("q"))
	if cmd == nil || !updated.(Model).Quitting {
		t.Fatal("expected quit command")
	}
	if updated.(Model).View() != "" {
		t.Fatal("expected empty view after quit")
	}
}
