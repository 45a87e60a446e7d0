package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sandeepkv93/medremind/internal/logger"
	"github.com/sandeepkv93/medremind/internal/model"
	"github.com/sandeepkv93/medremind/internal/reconcile"
	"github.com/sandeepkv93/medremind/internal/reminders"
	"github.com/sandeepkv93/medremind/internal/scheduler"
	"github.com/sandeepkv93/medremind/internal/storage"
)

var monday0600 = time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)

func setupServer(t *testing.T) (*Server, *reminders.Store, *scheduler.Engine) {
	t.Helper()
	repo, err := storage.NewFileRepository(t.TempDir(), "")
	if err != nil {
		t.Fatalf("repo: %v", err)
	}
	engine := scheduler.NewEngine(1)
	store := reminders.New(repo, engine, reminders.Options{Logger: logger.Discard(), Now: func() time.Time { return monday0600 }})
	if err := store.Hydrate(t.Context()); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	s := NewServer(store, reconcile.New(store, reconcile.ModeHeuristic, logger.Discard()))
	s.now = func() time.Time { return monday0600 }
	return s, store, engine
}

func request(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", res.Content[0])
	}
	return text.Text
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), req mcp.CallToolRequest) (*mcp.CallToolResult, string) {
	t.Helper()
	res, err := handler(t.Context(), req)
	if err != nil {
		t.Fatalf("%s: %v", req.Params.Name, err)
	}
	return res, resultText(t, res)
}

func TestAddListAndRemove(t *testing.T) {
	s, store, engine := setupServer(t)

	res, text := call(t, s.handleAddReminder, request("add_reminder", map[string]any{
		"name": "Aspirin", "time": "08:00", "weekdays": "mon,thu", "dose": "75mg",
	}))
	if res.IsError {
		t.Fatalf("add failed: %s", text)
	}
	var added model.Reminder
	if err := json.Unmarshal([]byte(text), &added); err != nil {
		t.Fatalf("decode added: %v", err)
	}
	if added.Name != "Aspirin" || len(added.ExternalHandles) != 2 {
		t.Fatalf("unexpected added reminder %#v", added)
	}

	_, text = call(t, s.handleListReminders, request("list_reminders", nil))
	if !strings.Contains(text, added.ID) {
		t.Fatalf("list missing reminder: %s", text)
	}

	res, text = call(t, s.handleRemoveReminder, request("remove_reminder", map[string]any{"id": added.ID[:8]}))
	if res.IsError {
		t.Fatalf("remove failed: %s", text)
	}
	if len(store.List()) != 0 {
		t.Fatal("expected empty store")
	}
	if active, _ := engine.ListActive(t.Context()); len(active) != 0 {
		t.Fatalf("expected no active registrations, got %v", active)
	}
}

func TestAddValidationErrorsAreToolErrors(t *testing.T) {
	s, _, _ := setupServer(t)
	for _, args := range []map[string]any{
		{"time": "08:00"},
		{"name": "Aspirin"},
		{"name": "Aspirin", "time": "eight"},
		{"name": "Aspirin", "time": "08:00", "weekdays": "funday"},
	} {
		res, text := call(t, s.handleAddReminder, request("add_reminder", args))
		if !res.IsError {
			t.Fatalf("expected tool error for %v, got %s", args, text)
		}
	}
}

func TestUpdateToggleAndPreview(t *testing.T) {
	s, store, _ := setupServer(t)
	if _, err := store.Add(t.Context(), reminders.AddInput{Name: "Iron", Time: "20:00", Weekdays: []model.Weekday{model.Monday}}); err != nil {
		t.Fatalf("add: %v", err)
	}

	res, text := call(t, s.handleUpdateReminder, request("update_reminder", map[string]any{"id": "1", "time": "07:30", "weekdays": "daily"}))
	if res.IsError {
		t.Fatalf("update failed: %s", text)
	}
	got := store.List()[0]
	if got.Time != "07:30" || !got.Daily() || len(got.ExternalHandles) != 7 {
		t.Fatalf("unexpected updated reminder %#v", got)
	}

	res, _ = call(t, s.handleUpdateReminder, request("update_reminder", map[string]any{"id": "1"}))
	if !res.IsError {
		t.Fatal("expected error for empty update")
	}

	res, text = call(t, s.handleToggleReminder, request("toggle_reminder", map[string]any{"id": "1", "enabled": false}))
	if res.IsError {
		t.Fatalf("toggle failed: %s", text)
	}
	if store.List()[0].Enabled {
		t.Fatal("expected disabled reminder")
	}

	_, text = call(t, s.handlePreviewReminder, request("preview_reminder", map[string]any{"id": "1", "count": float64(2)}))
	var next []string
	if err := json.Unmarshal([]byte(text), &next); err != nil {
		t.Fatalf("decode preview: %v (%s)", err, text)
	}
	if len(next) != 2 || next[0] != "Mon 2024-01-01 07:30" || next[1] != "Tue 2024-01-02 07:30" {
		t.Fatalf("unexpected preview %v", next)
	}
}

func TestMaintenanceTools(t *testing.T) {
	s, store, engine := setupServer(t)
	if _, err := store.Add(t.Context(), reminders.AddInput{Name: "Iron", Time: "20:00"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	_, text := call(t, s.handleClearScheduler, request("clear_scheduler", nil))
	if !strings.Contains(text, "Canceled 7") {
		t.Fatalf("unexpected clear output %q", text)
	}
	_, text = call(t, s.handleReconcile, request("reconcile", nil))
	if !strings.Contains(text, "1 rescheduled") {
		t.Fatalf("unexpected reconcile output %q", text)
	}
	if active, _ := engine.ListActive(t.Context()); len(active) != 7 {
		t.Fatalf("expected rebuilt registrations, got %d", len(active))
	}
	_, text = call(t, s.handleDisableAll, request("disable_all", nil))
	if text != "Disabled 1 reminders." {
		t.Fatalf("unexpected disable output %q", text)
	}
}

func TestNotificationPermissionTool(t *testing.T) {
	s, _, _ := setupServer(t)
	_, text := call(t, s.handleNotificationPermission, request("notification_permission", map[string]any{"state": "denied"}))
	if text != "Notification permission is denied." {
		t.Fatalf("unexpected output %q", text)
	}
	res, _ := call(t, s.handleAddReminder, request("add_reminder", map[string]any{"name": "Iron", "time": "20:00"}))
	if !res.IsError {
		t.Fatal("expected add to fail while permission is denied")
	}
	res, _ = call(t, s.handleNotificationPermission, request("notification_permission", map[string]any{"state": "later"}))
	if !res.IsError {
		t.Fatal("expected tool error for unknown state")
	}
	_, text = call(t, s.handleNotificationPermission, request("notification_permission", map[string]any{"state": "granted"}))
	if text != "Notification permission is granted." {
		t.Fatalf("unexpected output %q", text)
	}
}

func TestUnknownTargetIsToolError(t *testing.T) {
	s, _, _ := setupServer(t)
	res, _ := call(t, s.handleRemoveReminder, request("remove_reminder", map[string]any{"id": "nope"}))
	if !res.IsError {
		t.Fatal("expected tool error")
	}
}
