package update

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/medremind/internal/commands"
	"github.com/sandeepkv93/medremind/internal/notify"
	"github.com/sandeepkv93/medremind/internal/scheduler"
	"github.com/sandeepkv93/medremind/internal/views"
)

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForReminderCmd(m.events), waitForChangeCmd(m.changes))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		if m.Palette.Active {
			if typed.String() == m.Keys.Help {
				m.HelpVisible = !m.HelpVisible
				return m, nil
			}
			return m.handlePaletteKey(typed), nil
		}
		return m.handleKey(typed)
	case SetStatusMsg:
		m.Status = StatusBar{Text: typed.Text, IsError: typed.IsError}
		return m, nil
	case ReminderDueMsg:
		m = m.handleReminderDue(typed.Event)
		return m, waitForReminderCmd(m.events)
	case StoreChangedMsg:
		if m.sync != nil {
			res, err := m.sync.Reconcile(m.ctx)
			switch {
			case err != nil:
				m.Status = StatusBar{Text: fmt.Sprintf("reload failed: %v", err), IsError: true}
			case res.Rescheduled > 0:
				m.Status = StatusBar{Text: fmt.Sprintf("reminders reloaded from disk, %d registered here", res.Rescheduled)}
			default:
				m.Status = StatusBar{Text: "reminders reloaded from disk"}
			}
		}
		m.refresh()
		return m, waitForChangeCmd(m.changes)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case m.Keys.Quit, "ctrl+c":
		m.Quitting = true
		return m, tea.Quit
	case m.Keys.Palette:
		m = m.openPalette()
		m.Status = StatusBar{Text: "command palette active"}
	case m.Keys.Help:
		m.HelpVisible = !m.HelpVisible
		if m.HelpVisible {
			m.Status = StatusBar{Text: "help shown"}
		} else {
			m.Status = StatusBar{Text: "help hidden"}
		}
	case m.Keys.Up, "up":
		if m.Cursor > 0 {
			m.Cursor--
		}
		m.syncTable()
	case m.Keys.Down, "down":
		if m.Cursor < len(m.Items)-1 {
			m.Cursor++
		}
		m.syncTable()
	case m.Keys.Toggle, " ":
		r, ok := m.selected()
		if !ok {
			m.Status = StatusBar{Text: "no reminder selected", IsError: true}
			break
		}
		m = m.run(func(h commands.Handlers) (commands.Result, error) {
			return h.Toggle(commands.ToggleArgs{Target: r.ID, Enabled: !r.Enabled})
		})
	case m.Keys.Remove:
		r, ok := m.selected()
		if !ok {
			m.Status = StatusBar{Text: "no reminder selected", IsError: true}
			break
		}
		m = m.run(func(h commands.Handlers) (commands.Result, error) {
			return h.Remove(commands.RemoveArgs{Target: r.ID})
		})
	case m.Keys.Reconcile:
		m = m.runCommand(commands.Command{Type: commands.TypeReconcile})
	case m.Keys.DisableAll:
		m = m.runCommand(commands.Command{Type: commands.TypeDisableAll})
	case m.Keys.ClearScheduler:
		m = m.runCommand(commands.Command{Type: commands.TypeClearScheduler})
	case m.Keys.Refresh:
		if m.store != nil {
			if err := m.store.Hydrate(m.ctx); err != nil {
				m.Status = StatusBar{Text: fmt.Sprintf("reload failed: %v", err), IsError: true}
				break
			}
		}
		m.refresh()
		m.Status = StatusBar{Text: fmt.Sprintf("loaded %d reminders", len(m.Items))}
	}
	return m, nil
}

func (m Model) runCommand(cmd commands.Command) Model {
	return m.run(func(h commands.Handlers) (commands.Result, error) {
		return commands.Execute(cmd, h)
	})
}

// run executes fn against the store handlers and reloads the view, on
// failure as well.
func (m Model) run(fn func(commands.Handlers) (commands.Result, error)) Model {
	if m.store == nil {
		m.Status = StatusBar{Text: "no reminder store configured", IsError: true}
		return m
	}
	res, err := fn(m.handlers())
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
	} else {
		m.Status = StatusBar{Text: res.Message}
	}
	m.refresh()
	return m
}

func (m Model) handleReminderDue(ev scheduler.Event) Model {
	n := notify.FromEvent(ev)
	m.pushNotification(n)
	if m.dispatcher != nil {
		if err := m.dispatcher.Deliver(ev); err != nil {
			if errors.Is(err, notify.ErrRateLimited) {
				m.Status = StatusBar{Text: fmt.Sprintf("reminder due: %s (desktop notification rate limited)", n.Title), IsError: true}
				return m
			}
			m.Status = StatusBar{Text: fmt.Sprintf("reminder due: %s (delivery failed: %v)", n.Title, err), IsError: true}
			return m
		}
	}
	m.Status = StatusBar{Text: fmt.Sprintf("reminder due: %s %s", n.Title, n.Body)}
	return m
}

func (m Model) View() string {
	if m.Quitting {
		return ""
	}

	var selected *views.ReminderRow
	enabled := 0
	now := m.now()
	for i, r := range m.Items {
		if r.Enabled {
			enabled++
		}
		if i == m.Cursor {
			row := views.NewReminderRow(i+1, r, now)
			selected = &row
		}
	}

	owners := map[string]string{}
	for _, r := range m.Items {
		for _, h := range r.ExternalHandles {
			owners[h] = r.Name
		}
	}
	items := make([]views.ScheduledItem, 0, len(m.Active))
	for _, h := range m.Active {
		item := views.ScheduledItem{Handle: string(h), Owner: owners[string(h)]}
		if t, ok := m.Triggers[h]; ok {
			item.When = fmt.Sprintf("%s %02d:%02d", t.Weekday, t.Hour, t.Minute)
		}
		items = append(items, item)
	}

	footer := "[/]palette [?]help [q]quit"
	if m.Palette.Active {
		footer = m.commandInput.View() + "   (enter to run, esc to close)"
	}

	return views.RenderApp(views.AppData{
		Header: fmt.Sprintf("medremind | %s", now.Format("Mon 15:04")),
		LeftPane: views.RenderRemindersPanel(views.RemindersPanelData{
			TableView: m.reminderTable.View(),
			Selected:  selected,
			Total:     len(m.Items),
			Enabled:   enabled,
		}),
		RightPane:    views.RenderSchedulePanel(views.SchedulePanelData{Items: items, Err: m.ActiveErr}),
		StatusLine:   m.Status.Text,
		StatusError:  m.Status.IsError,
		Footer:       footer,
		Notification: m.latestNotification(),
		Help:         m.renderHelp(),
	})
}

func (m Model) latestNotification() string {
	if len(m.Notifications) == 0 {
		return ""
	}
	n := m.Notifications[len(m.Notifications)-1]
	return strings.TrimSpace(fmt.Sprintf("%s %s\n%s", n.At.Format("15:04"), n.Title, n.Body))
}

func waitForReminderCmd(ch <-chan scheduler.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return ReminderDueMsg{Event: ev}
	}
}

func waitForChangeCmd(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return StoreChangedMsg{}
	}
}
