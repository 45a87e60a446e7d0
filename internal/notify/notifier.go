package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/sandeepkv93/medremind/internal/scheduler"
)

// Notification is what the user sees when a reminder fires: the reminder's
// name as title and its dose as body.
type Notification struct {
	Title string
	Body  string
	At    time.Time
}

func FromEvent(ev scheduler.Event) Notification {
	body := ev.Trigger.Body
	if strings.TrimSpace(body) == "" {
		body = fmt.Sprintf("Scheduled for %02d:%02d", ev.Trigger.Hour, ev.Trigger.Minute)
	}
	return Notification{Title: ev.Trigger.Title, Body: body, At: ev.FiredAt}
}

type DesktopNotifier interface {
	Send(Notification) error
}

type NoopDesktopNotifier struct{}

func (NoopDesktopNotifier) Send(Notification) error { return nil }

type ExecDesktopNotifier struct{}

func (ExecDesktopNotifier) Send(n Notification) error {
	switch runtime.GOOS {
	case "linux":
		return exec.Command("notify-send", n.Title, n.Body).Run()
	case "darwin":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, escapeAppleScript(n.Body), escapeAppleScript(n.Title))
		return exec.Command("osascript", "-e", script).Run()
	default:
		return nil
	}
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
