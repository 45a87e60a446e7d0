package views

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/sandeepkv93/medremind/internal/model"
)

type ReminderRow struct {
	Position int
	ID       string
	Name     string
	Dose     string
	Time     string
	Days     string
	Notes    string
	Enabled  bool
	Handles  int
	Next     string
}

type RemindersPanelData struct {
	TableView string
	Selected  *ReminderRow
	Total     int
	Enabled   int
}

type ScheduledItem struct {
	Handle string
	Owner  string
	// When is the weekly fire time, empty when the scheduler cannot say.
	When string
}

type SchedulePanelData struct {
	Items []ScheduledItem
	Err   string
}

type HelpPanelData struct {
	Bindings []string
	HelpView string
}

// NewReminderRow flattens r for display. next is empty for disabled
// reminders.
func NewReminderRow(pos int, r model.Reminder, now time.Time) ReminderRow {
	row := ReminderRow{
		Position: pos,
		ID:       r.ID,
		Name:     r.Name,
		Dose:     r.Dose,
		Time:     r.Time,
		Days:     FormatWeekdays(r.Weekdays),
		Notes:    r.Notes,
		Enabled:  r.Enabled,
		Handles:  len(r.ExternalHandles),
	}
	if r.Enabled {
		if clock, err := model.ParseClock(r.Time); err == nil {
			if next := model.NextOccurrences(clock, r.Weekdays, now, 1); len(next) == 1 {
				row.Next = next[0].Format("Mon 15:04")
			}
		}
	}
	return row
}

// FormatWeekdays renders a weekday set; the empty set reads "daily".
func FormatWeekdays(days []model.Weekday) string {
	if len(days) == 0 {
		return "daily"
	}
	parts := make([]string, 0, len(days))
	for _, d := range model.SortWeekdays(days) {
		parts = append(parts, d.String())
	}
	return strings.Join(parts, ",")
}

func RenderRemindersPanel(data RemindersPanelData) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("reminders: %d total, %d enabled\n", data.Total, data.Enabled))
	b.WriteString("actions: [space]toggle [d]remove [r]reconcile [D]disable all [X]clear scheduler\n")
	if data.Total == 0 {
		b.WriteString(mutedStyle.Render("(no reminders, try /add Aspirin at 08:00 on mon,thu dose 75mg)"))
		return b.String()
	}
	b.WriteString(data.TableView + "\n")

	if s := data.Selected; s != nil {
		b.WriteString("\nselected:\n")
		b.WriteString(fmt.Sprintf("id: %s\n", s.ID))
		b.WriteString(fmt.Sprintf("dose: %s\n", orDash(s.Dose)))
		b.WriteString(fmt.Sprintf("registrations: %d\n", s.Handles))
		if s.Next != "" {
			b.WriteString(fmt.Sprintf("next: %s\n", s.Next))
		}
		if s.Notes != "" {
			b.WriteString(fmt.Sprintf("notes: %s\n", s.Notes))
		}
	}
	return strings.TrimSpace(b.String())
}

func RenderSchedulePanel(data SchedulePanelData) string {
	var b strings.Builder
	b.WriteString("scheduled registrations:\n")
	if data.Err != "" {
		b.WriteString(errorStyle.Render("unavailable: " + data.Err))
		return b.String()
	}
	if len(data.Items) == 0 {
		b.WriteString(mutedStyle.Render("(none scheduled)"))
		return b.String()
	}
	b.WriteString(fmt.Sprintf("%d active\n", len(data.Items)))
	for _, item := range data.Items {
		owner := item.Owner
		if owner == "" {
			owner = mutedStyle.Render("(unowned)")
		}
		if item.When != "" {
			owner = item.When + " " + owner
		}
		b.WriteString(fmt.Sprintf("- %s %s\n", shortHandle(item.Handle), owner))
	}
	b.WriteString(mutedStyle.Render("after clearing, press r to rebuild enabled reminders"))
	return strings.TrimSpace(b.String())
}

func RenderHelpPanel(data HelpPanelData) string {
	md := "## Reminder tools\n\n" + strings.Join(data.Bindings, "\n") +
		"\n\nPalette commands: `add <name> at HH:MM [on mon,thu] [dose <text>]`, " +
		"`update <n> <name|dose|time|days|notes> <value>`, `toggle <n> on|off`, `remove <n>`, " +
		"`reconcile`, `disable-all`, `clear-scheduler`, `permission [grant|deny]`."
	return strings.TrimSpace(RenderMarkdown(md) + "\n" + data.HelpView)
}

// RenderReminderTable renders reminders as a bordered table for terminal
// output outside the TUI.
func RenderReminderTable(rows []ReminderRow) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "ID", "NAME", "DOSE", "TIME", "DAYS", "ON", "REGS", "NEXT")
	for _, r := range rows {
		on := "no"
		if r.Enabled {
			on = onStyle.Render("yes")
		}
		t.Row(strconv.Itoa(r.Position), shortHandle(r.ID), r.Name, orDash(r.Dose), r.Time, r.Days, on, strconv.Itoa(r.Handles), orDash(r.Next))
	}
	return t.Render()
}

func shortHandle(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
