package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/sandeepkv93/medremind/internal/mcpserver"
	"github.com/sandeepkv93/medremind/internal/notify"
	"github.com/sandeepkv93/medremind/internal/reconcile"
	"github.com/sandeepkv93/medremind/internal/scheduler"
	"github.com/sandeepkv93/medremind/internal/storage"
	"github.com/sandeepkv93/medremind/internal/update"
)

func addServe(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and deliver due reminders as desktop notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			return withRuntime(ctx, ro, openOptions{longRunning: true}, func(ctx context.Context, rt *runtime) error {
				events := rt.startScheduler(ctx)
				d := rt.dispatcher()

				if rt.watchPath != "" {
					// Other processes may add reminders to the file; strict
					// reconcile registers them with this process's scheduler.
					rec := reconcile.New(rt.store, reconcile.ModeStrict, rt.log)
					w, err := storage.Watch(rt.watchPath, func() {
						if _, err := rec.Reconcile(ctx); err != nil {
							rt.log.WithError(err).Warn("reconcile after storage change failed")
						}
					}, func(err error) {
						rt.log.WithError(err).Warn("storage watch error")
					})
					if err != nil {
						rt.log.WithError(err).Warn("storage watch disabled")
					} else {
						defer func() { _ = w.Close() }()
					}
				}

				rt.log.WithField("reminders", len(rt.store.List())).Info("medremind serving")
				err := d.Run(ctx, events)
				stats := d.Stats()
				rt.log.WithField("delivered", stats.Delivered).WithField("limited", stats.Limited).WithField("failed", stats.Failed).Info("medremind stopped")
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
	topLevel.AddCommand(cmd)
}

func addTUI(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the reminder tools screen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			return withRuntime(ctx, ro, openOptions{longRunning: true}, func(ctx context.Context, rt *runtime) error {
				closeLog := rt.redirectLog()
				defer closeLog()

				opts := update.Options{
					Context:    ctx,
					Store:      rt.store,
					Reconciler: rt.rec,
					Events:     rt.startScheduler(ctx),
					Dispatcher: rt.dispatcher(),
				}
				if rt.watchPath != "" {
					changes := make(chan struct{}, 1)
					w, err := storage.Watch(rt.watchPath, func() {
						select {
						case changes <- struct{}{}:
						default:
						}
					}, func(err error) {
						rt.log.WithError(err).Warn("storage watch error")
					})
					if err != nil {
						rt.log.WithError(err).Warn("storage watch disabled")
					} else {
						defer func() { _ = w.Close() }()
						opts.Changes = changes
					}
				}

				program := tea.NewProgram(update.NewModel(opts), tea.WithAltScreen(), tea.WithContext(ctx))
				if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
					return fmt.Errorf("tui failed: %w", err)
				}
				return nil
			})
		},
	}
	topLevel.AddCommand(cmd)
}

func addMCP(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the reminder tools over MCP (stdio)",
		Long: `Starts an MCP server on stdin/stdout exposing add_reminder, list_reminders,
update_reminder, toggle_reminder, remove_reminder, preview_reminder,
reconcile, disable_all, clear_scheduler and notification_permission. Due reminders are delivered while
the server runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			return withRuntime(ctx, ro, openOptions{longRunning: true}, func(ctx context.Context, rt *runtime) error {
				d := rt.dispatcher()
				events := rt.startScheduler(ctx)
				go func() { _ = d.Run(ctx, events) }()

				s := mcpserver.NewServer(rt.store, rt.rec)
				if err := server.ServeStdio(s.MCPServer()); err != nil {
					return fmt.Errorf("mcp server error: %w", err)
				}
				return nil
			})
		},
	}
	topLevel.AddCommand(cmd)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
}

// startScheduler starts delivery of fired registrations and returns the event
// stream. The memory engine fires in-process; the redis scheduler is polled
// once per scheduler.tick.
func (rt *runtime) startScheduler(ctx context.Context) <-chan scheduler.Event {
	if rt.engine != nil {
		rt.engine.Start()
		return rt.engine.C()
	}
	out := make(chan scheduler.Event, rt.cfg.Scheduler.Buffer)
	go func() {
		err := rt.redisSched.Run(ctx, rt.cfg.Scheduler.Tick, out, func(err error) {
			rt.log.WithError(err).Warn("scheduler poll failed")
		})
		if err != nil {
			rt.log.WithError(err).Error("scheduler stopped")
		}
	}()
	return out
}

func (rt *runtime) dispatcher() *notify.Dispatcher {
	var n notify.DesktopNotifier = notify.NoopDesktopNotifier{}
	if rt.cfg.Notify.Desktop {
		n = notify.ExecDesktopNotifier{}
	}
	return notify.NewDispatcher(n, rt.cfg.Notify.RatePerMinute, rt.log)
}

// redirectLog moves log output off the terminal while the TUI owns it, into
// medremind.log next to file based storage or nowhere.
func (rt *runtime) redirectLog() func() {
	if rt.cfg.Storage.Path == "" || rt.watchPath == "" {
		rt.log.SetOutput(io.Discard)
		return func() { rt.log.SetOutput(os.Stderr) }
	}
	f, err := os.OpenFile(filepath.Join(rt.cfg.Storage.Path, "medremind.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		rt.log.SetOutput(io.Discard)
		return func() { rt.log.SetOutput(os.Stderr) }
	}
	rt.log.SetOutput(f)
	return func() {
		rt.log.SetOutput(os.Stderr)
		_ = f.Close()
	}
}
