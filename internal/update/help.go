package update

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"

	"github.com/sandeepkv93/medremind/internal/views"
)

// keyHelp adapts the key bindings to the bubbles help component.
type keyHelp []key.Binding

func (k keyHelp) ShortHelp() []key.Binding  { return k }
func (k keyHelp) FullHelp() [][]key.Binding { return [][]key.Binding{k} }

func binding(keys, action string) key.Binding {
	return key.NewBinding(key.WithKeys(keys), key.WithHelp(keys, action))
}

func (m Model) keyHelp() keyHelp {
	k := m.Keys
	return keyHelp{
		binding(k.Down+"/"+k.Up, "move selection"),
		binding(k.Toggle+"/space", "enable or disable selected reminder"),
		binding(k.Remove, "remove selected reminder"),
		binding(k.Reconcile, "reconcile scheduler state"),
		binding(k.DisableAll, "disable all reminders"),
		binding(k.ClearScheduler, "cancel every scheduled notification"),
		binding(k.Refresh, "reload from storage"),
		binding(k.Palette, "open command palette (up/down recalls history)"),
		binding(k.Help, "toggle help panel"),
		binding(k.Quit, "quit"),
	}
}

func (m Model) renderHelp() string {
	if !m.HelpVisible {
		return ""
	}
	kh := m.keyHelp()
	lines := make([]string, 0, len(kh))
	for _, b := range kh {
		h := b.Help()
		lines = append(lines, fmt.Sprintf("- `%s`: %s", h.Key, h.Desc))
	}
	return views.RenderHelpPanel(views.HelpPanelData{
		Bindings: lines,
		HelpView: m.helpModel.View(kh),
	})
}
