package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sandeepkv93/medremind/internal/commands"
	"github.com/sandeepkv93/medremind/internal/model"
	"github.com/sandeepkv93/medremind/internal/reminders"
	"github.com/sandeepkv93/medremind/internal/scheduler"
)

const (
	serverName    = "medremind"
	serverVersion = "1.0.0"
)

// Server exposes the reminder store as MCP tools.
type Server struct {
	mcpServer *server.MCPServer
	store     commands.Store
	rec       commands.Reconciler
	now       func() time.Time
}

func NewServer(store commands.Store, rec commands.Reconciler) *Server {
	s := &Server{
		store: store,
		rec:   rec,
		now:   time.Now,
	}

	s.mcpServer = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
	)

	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server for serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("add_reminder",
			mcp.WithDescription("Add a weekly medication reminder and schedule its notifications"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Medicine name")),
			mcp.WithString("time", mcp.Required(), mcp.Description("Wall-clock time HH:MM, 24-hour")),
			mcp.WithString("weekdays", mcp.Description("Comma separated days (mon,thu or 2,5); empty or daily means every day")),
			mcp.WithString("dose", mcp.Description("Dose description")),
			mcp.WithString("notes", mcp.Description("Free text notes")),
		),
		s.handleAddReminder,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_reminders",
			mcp.WithDescription("List all reminders with their registration handles"),
		),
		s.handleListReminders,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("update_reminder",
			mcp.WithDescription("Update a reminder; changing name, dose, time or weekdays reschedules it when enabled"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder id, id prefix or list position")),
			mcp.WithString("name", mcp.Description("New name")),
			mcp.WithString("dose", mcp.Description("New dose")),
			mcp.WithString("time", mcp.Description("New time HH:MM")),
			mcp.WithString("weekdays", mcp.Description("New day list; daily means every day")),
			mcp.WithString("notes", mcp.Description("New notes")),
		),
		s.handleUpdateReminder,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("toggle_reminder",
			mcp.WithDescription("Enable or disable a reminder"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder id, id prefix or list position")),
			mcp.WithBoolean("enabled", mcp.Required(), mcp.Description("Desired state")),
		),
		s.handleToggleReminder,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("remove_reminder",
			mcp.WithDescription("Cancel a reminder's notifications and delete it"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder id, id prefix or list position")),
		),
		s.handleRemoveReminder,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("preview_reminder",
			mcp.WithDescription("Show the next times a reminder will fire"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder id, id prefix or list position")),
			mcp.WithNumber("count", mcp.Description("How many occurrences (default 5)")),
		),
		s.handlePreviewReminder,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("reconcile",
			mcp.WithDescription("Rebuild notification registrations lost by the scheduler"),
		),
		s.handleReconcile,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("disable_all",
			mcp.WithDescription("Disable every reminder and cancel its notifications"),
		),
		s.handleDisableAll,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("clear_scheduler",
			mcp.WithDescription("Cancel every scheduled notification; reminders stay enabled until reconciled"),
		),
		s.handleClearScheduler,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("notification_permission",
			mcp.WithDescription("Show notification permission, or grant or deny it"),
			mcp.WithString("state", mcp.Description("granted or denied; omit to only report the current state")),
		),
		s.handleNotificationPermission,
	)
}

func (s *Server) handleAddReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	at := req.GetString("time", "")
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}
	if at == "" {
		return mcp.NewToolResultError("time is required"), nil
	}
	days, err := commands.ParseWeekdays(req.GetString("weekdays", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid weekdays: %v", err)), nil
	}

	added, err := s.store.Add(ctx, reminders.AddInput{
		Name:     name,
		Dose:     req.GetString("dose", ""),
		Time:     at,
		Weekdays: days,
		Notes:    req.GetString("notes", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add reminder: %v", err)), nil
	}
	return jsonResult(added)
}

func (s *Server) handleListReminders(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items := s.store.List()
	if len(items) == 0 {
		return mcp.NewToolResultText("No reminders found."), nil
	}
	return jsonResult(items)
}

func (s *Server) handleUpdateReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := s.resolve(req)
	if res != nil {
		return res, nil
	}

	args := req.GetArguments()
	var patch model.Patch
	if v, ok := args["name"].(string); ok {
		patch.Name = &v
	}
	if v, ok := args["dose"].(string); ok {
		patch.Dose = &v
	}
	if v, ok := args["time"].(string); ok {
		patch.Time = &v
	}
	if v, ok := args["notes"].(string); ok {
		patch.Notes = &v
	}
	if v, ok := args["weekdays"].(string); ok {
		days, err := commands.ParseWeekdays(v)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid weekdays: %v", err)), nil
		}
		patch.Weekdays = &days
	}
	if patch.IsEmpty() {
		return mcp.NewToolResultError("no fields to update"), nil
	}

	updated, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update reminder: %v", err)), nil
	}
	return jsonResult(updated)
}

func (s *Server) handleToggleReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := s.resolve(req)
	if res != nil {
		return res, nil
	}
	if _, ok := req.GetArguments()["enabled"].(bool); !ok {
		return mcp.NewToolResultError("enabled is required and must be a boolean"), nil
	}

	toggled, err := s.store.Toggle(ctx, id, req.GetBool("enabled", false))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to toggle reminder: %v", err)), nil
	}
	return jsonResult(toggled)
}

func (s *Server) handleRemoveReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := s.resolve(req)
	if res != nil {
		return res, nil
	}
	if err := s.store.Remove(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to remove reminder: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Reminder %s removed.", id)), nil
}

func (s *Server) handlePreviewReminder(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := s.resolve(req)
	if res != nil {
		return res, nil
	}
	count := int(req.GetFloat("count", 5))
	if count <= 0 || count > 50 {
		return mcp.NewToolResultError("count must be between 1 and 50"), nil
	}

	var target model.Reminder
	for _, r := range s.store.List() {
		if r.ID == id {
			target = r
		}
	}
	clock, err := model.ParseClock(target.Time)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stored time is invalid: %v", err)), nil
	}
	next := model.NextOccurrences(clock, target.Weekdays, s.now(), count)
	out := make([]string, 0, len(next))
	for _, at := range next {
		out = append(out, at.Format("Mon 2006-01-02 15:04"))
	}
	return jsonResult(out)
}

func (s *Server) handleReconcile(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.rec == nil {
		return mcp.NewToolResultError("reconcile is not configured"), nil
	}
	res, err := s.rec.Reconcile(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reconcile failed: %v", err)), nil
	}
	return mcp.NewToolResultText(commands.DescribeReconcile(res)), nil
}

func (s *Server) handleDisableAll(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.store.DisableAll(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to disable reminders: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Disabled %d reminders.", n)), nil
}

func (s *Server) handleClearScheduler(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.store.ClearScheduler(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to clear scheduler: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Canceled %d scheduled notifications. Use reconcile to rebuild enabled reminders.", n)), nil
}

func (s *Server) handleNotificationPermission(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if state := req.GetString("state", ""); state != "" {
		p, err := scheduler.ParsePermission(state)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := s.store.SetPermission(ctx, p); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to change permission: %v", err)), nil
		}
	}
	p, err := s.store.Permission(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read permission: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Notification permission is %s.", p)), nil
}

func (s *Server) resolve(req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	target := req.GetString("id", "")
	if target == "" {
		return "", mcp.NewToolResultError("id is required")
	}
	id, err := commands.Resolve(target, s.store.List())
	if err != nil {
		return "", mcp.NewToolResultError(err.Error())
	}
	return id, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(output)), nil
}
