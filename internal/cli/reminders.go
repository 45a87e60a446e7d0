package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/medremind/internal/commands"
	"github.com/sandeepkv93/medremind/internal/model"
	"github.com/sandeepkv93/medremind/internal/reconcile"
	"github.com/sandeepkv93/medremind/internal/reminders"
	"github.com/sandeepkv93/medremind/internal/views"
)

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func withRuntime(ctx context.Context, ro *rootOptions, oo openOptions, fn func(ctx context.Context, rt *runtime) error) error {
	rt, err := openRuntime(ctx, ro, oo)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	return fn(ctx, rt)
}

func addAdd(topLevel *cobra.Command, ro *rootOptions) {
	var at, days, dose, notes string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a weekly reminder and schedule its notifications",
		Example: `
medremind add Aspirin --at 08:00 --days mon,thu --dose 75mg
medremind add "Vitamin D" --at 21:30
`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return errors.New("requires a reminder name")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			weekdays, err := commands.ParseWeekdays(days)
			if err != nil {
				return err
			}
			return withRuntime(commandContext(cmd), ro, openOptions{}, func(ctx context.Context, rt *runtime) error {
				r, err := rt.store.Add(ctx, reminders.AddInput{
					Name:     strings.Join(args, " "),
					Dose:     dose,
					Time:     at,
					Weekdays: weekdays,
					Notes:    notes,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), r)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s) at %s on %s, %d registrations\n",
					r.Name, r.ID, r.Time, views.FormatWeekdays(r.Weekdays), len(r.ExternalHandles))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Wall-clock time HH:MM, 24-hour.")
	cmd.Flags().StringVar(&days, "days", "", "Comma separated days (mon,thu or 2,5); empty means every day.")
	cmd.Flags().StringVar(&dose, "dose", "", "Dose description.")
	cmd.Flags().StringVar(&notes, "notes", "", "Free text notes.")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON.")
	_ = cmd.MarkFlagRequired("at")
	topLevel.AddCommand(cmd)
}

func addList(topLevel *cobra.Command, ro *rootOptions) {
	var asJSON bool
	var preview int

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List reminders",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(commandContext(cmd), ro, openOptions{}, func(ctx context.Context, rt *runtime) error {
				items := rt.store.List()
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), items)
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					_, err := fmt.Fprintln(out, "no reminders")
					return err
				}
				now := time.Now()
				rows := make([]views.ReminderRow, 0, len(items))
				for i, r := range items {
					rows = append(rows, views.NewReminderRow(i+1, r, now))
				}
				if _, err := fmt.Fprintln(out, views.RenderReminderTable(rows)); err != nil {
					return err
				}
				if preview <= 0 {
					return nil
				}
				for i, r := range items {
					if !r.Enabled {
						continue
					}
					clock, err := model.ParseClock(r.Time)
					if err != nil {
						continue
					}
					var next []string
					for _, t := range model.NextOccurrences(clock, r.Weekdays, now, preview) {
						next = append(next, t.Format("Mon 2006-01-02 15:04"))
					}
					if _, err := fmt.Fprintf(out, "%d. %s: %s\n", i+1, r.Name, strings.Join(next, ", ")); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON.")
	cmd.Flags().IntVar(&preview, "preview", 0, "Also show the next N fire times of enabled reminders.")
	topLevel.AddCommand(cmd)
}

func addUpdate(topLevel *cobra.Command, ro *rootOptions) {
	var name, dose, at, days, notes string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "update TARGET",
		Short: "Change a reminder; schedule changes re-register its notifications",
		Long: `TARGET is a list position, a reminder id or a unique id prefix.
Only the flags given are changed.`,
		Example: `
medremind update 1 --at 07:30
medremind update 3f2a --days daily --dose 100mg
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch model.Patch
			flags := cmd.Flags()
			if flags.Changed("name") {
				patch.Name = &name
			}
			if flags.Changed("dose") {
				patch.Dose = &dose
			}
			if flags.Changed("at") {
				patch.Time = &at
			}
			if flags.Changed("notes") {
				patch.Notes = &notes
			}
			if flags.Changed("days") {
				weekdays, err := commands.ParseWeekdays(days)
				if err != nil {
					return err
				}
				patch.Weekdays = &weekdays
			}
			if patch.IsEmpty() {
				return errors.New("nothing to update: pass at least one of --name, --dose, --at, --days, --notes")
			}

			return withRuntime(commandContext(cmd), ro, openOptions{}, func(ctx context.Context, rt *runtime) error {
				id, err := commands.Resolve(args[0], rt.store.List())
				if err != nil {
					return err
				}
				r, err := rt.store.Update(ctx, id, patch)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), r)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "updated %s: %s on %s\n", r.Name, r.Time, views.FormatWeekdays(r.Weekdays))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New name.")
	cmd.Flags().StringVar(&dose, "dose", "", "New dose.")
	cmd.Flags().StringVar(&at, "at", "", "New time HH:MM.")
	cmd.Flags().StringVar(&days, "days", "", "New day list; daily means every day.")
	cmd.Flags().StringVar(&notes, "notes", "", "New notes.")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON.")
	topLevel.AddCommand(cmd)
}

func addToggle(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:       "toggle TARGET on|off",
		Short:     "Enable or disable a reminder",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := commands.Parse("toggle " + strings.Join(args, " "))
			if err != nil {
				return err
			}
			return runHandler(cmd, ro, func(h commands.Handlers) (commands.Result, error) {
				return h.Toggle(*parsed.Toggle)
			})
		},
	}
	topLevel.AddCommand(cmd)
}

func addRemove(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:     "remove TARGET",
		Aliases: []string{"rm"},
		Short:   "Cancel a reminder's notifications and delete it",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHandler(cmd, ro, func(h commands.Handlers) (commands.Result, error) {
				return h.Remove(commands.RemoveArgs{Target: args[0]})
			})
		},
	}
	topLevel.AddCommand(cmd)
}

func addReconcile(topLevel *cobra.Command, ro *rootOptions) {
	var mode string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild notification registrations the scheduler lost",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(commandContext(cmd), ro, openOptions{}, func(ctx context.Context, rt *runtime) error {
				rec := rt.rec
				if mode != "" {
					m, err := reconcile.ParseMode(mode)
					if err != nil {
						return err
					}
					rec = reconcile.New(rt.store, m, rt.log)
				}
				res, err := rec.Reconcile(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), commands.DescribeReconcile(res))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "Override reconcile.mode (heuristic or strict).")
	topLevel.AddCommand(cmd)
}

func addDisableAll(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:   "disable-all",
		Short: "Disable every reminder and cancel its notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHandler(cmd, ro, func(h commands.Handlers) (commands.Result, error) {
				return h.DisableAll()
			})
		},
	}
	topLevel.AddCommand(cmd)
}

func addClearScheduler(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:   "clear-scheduler",
		Short: "Cancel every scheduled notification; reminders stay enabled until reconciled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHandler(cmd, ro, func(h commands.Handlers) (commands.Result, error) {
				return h.ClearScheduler()
			})
		},
	}
	topLevel.AddCommand(cmd)
}

func addPermission(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:   "permission [grant|deny]",
		Short: "Show, grant or revoke notification permission",
		Long: `Without an argument prints the current permission. grant and deny are
recorded by the redis scheduler and seen by every process sharing it; the
memory scheduler takes its permission from scheduler.permission.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"grant", "deny"},
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := commands.Parse("permission " + strings.Join(args, " "))
			if err != nil {
				return err
			}
			return withRuntime(commandContext(cmd), ro, openOptions{}, func(ctx context.Context, rt *runtime) error {
				if parsed.Permission.Grant != nil && rt.redisSched == nil {
					return errors.New("the memory scheduler only lasts one process: set scheduler.permission (MEDREMIND_SCHEDULER__PERMISSION) instead")
				}
				res, err := commands.StoreHandlers(ctx, rt.store, rt.rec).Permission(*parsed.Permission)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Message)
				return err
			})
		},
	}
	topLevel.AddCommand(cmd)
}

// runHandler runs one command handler against a fresh runtime and prints its
// message.
func runHandler(cmd *cobra.Command, ro *rootOptions, fn func(commands.Handlers) (commands.Result, error)) error {
	return withRuntime(commandContext(cmd), ro, openOptions{}, func(ctx context.Context, rt *runtime) error {
		res, err := fn(commands.StoreHandlers(ctx, rt.store, rt.rec))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		return err
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
