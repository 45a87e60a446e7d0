package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sandeepkv93/medremind/internal/model"
	"github.com/sandeepkv93/medremind/internal/reconcile"
	"github.com/sandeepkv93/medremind/internal/reminders"
	"github.com/sandeepkv93/medremind/internal/scheduler"
)

// Store is the reminder store surface the handlers drive.
type Store interface {
	List() []model.Reminder
	Add(ctx context.Context, in reminders.AddInput) (model.Reminder, error)
	Update(ctx context.Context, id string, patch model.Patch) (model.Reminder, error)
	Toggle(ctx context.Context, id string, enabled bool) (model.Reminder, error)
	Remove(ctx context.Context, id string) error
	DisableAll(ctx context.Context) (int, error)
	ClearScheduler(ctx context.Context) (int, error)
	Permission(ctx context.Context) (scheduler.Permission, error)
	SetPermission(ctx context.Context, p scheduler.Permission) error
}

type Reconciler interface {
	Reconcile(ctx context.Context) (reconcile.Result, error)
}

// StoreHandlers wires every command to store and rec. rec may be nil, in
// which case reconcile reports a missing handler.
func StoreHandlers(ctx context.Context, store Store, rec Reconciler) Handlers {
	h := Handlers{
		Add: func(a AddArgs) (Result, error) {
			r, err := store.Add(ctx, reminders.AddInput{Name: a.Name, Dose: a.Dose, Time: a.Time, Weekdays: a.Weekdays})
			if err != nil {
				return Result{}, err
			}
			return Result{Message: fmt.Sprintf("added %s at %s (%d registrations)", r.Name, r.Time, len(r.ExternalHandles))}, nil
		},
		Update: func(a UpdateArgs) (Result, error) {
			id, err := Resolve(a.Target, store.List())
			if err != nil {
				return Result{}, err
			}
			patch, err := a.Patch()
			if err != nil {
				return Result{}, err
			}
			r, err := store.Update(ctx, id, patch)
			if err != nil {
				return Result{}, err
			}
			return Result{Message: fmt.Sprintf("updated %s %s", r.Name, a.Field)}, nil
		},
		Toggle: func(a ToggleArgs) (Result, error) {
			id, err := Resolve(a.Target, store.List())
			if err != nil {
				return Result{}, err
			}
			r, err := store.Toggle(ctx, id, a.Enabled)
			if err != nil {
				return Result{}, err
			}
			state := "disabled"
			if r.Enabled {
				state = "enabled"
			}
			return Result{Message: fmt.Sprintf("%s %s", r.Name, state)}, nil
		},
		Remove: func(a RemoveArgs) (Result, error) {
			id, err := Resolve(a.Target, store.List())
			if err != nil {
				return Result{}, err
			}
			if err := store.Remove(ctx, id); err != nil {
				return Result{}, err
			}
			return Result{Message: "removed " + id}, nil
		},
		List: func() (Result, error) {
			items := store.List()
			enabled := 0
			for _, r := range items {
				if r.Enabled {
					enabled++
				}
			}
			return Result{Message: fmt.Sprintf("%d reminders, %d enabled", len(items), enabled)}, nil
		},
		DisableAll: func() (Result, error) {
			n, err := store.DisableAll(ctx)
			if err != nil {
				return Result{}, err
			}
			return Result{Message: fmt.Sprintf("disabled %d reminders", n)}, nil
		},
		ClearScheduler: func() (Result, error) {
			n, err := store.ClearScheduler(ctx)
			if err != nil {
				return Result{}, err
			}
			return Result{Message: fmt.Sprintf("canceled %d registrations; run reconcile to rebuild enabled reminders", n)}, nil
		},
		Permission: func(a PermissionArgs) (Result, error) {
			if a.Grant != nil {
				p := scheduler.PermissionDenied
				if *a.Grant {
					p = scheduler.PermissionGranted
				}
				if err := store.SetPermission(ctx, p); err != nil {
					return Result{}, err
				}
			}
			p, err := store.Permission(ctx)
			if err != nil {
				return Result{}, err
			}
			return Result{Message: "notification permission " + string(p)}, nil
		},
	}
	if rec != nil {
		h.Reconcile = func() (Result, error) {
			res, err := rec.Reconcile(ctx)
			if err != nil {
				return Result{}, err
			}
			return Result{Message: DescribeReconcile(res)}, nil
		}
	}
	return h
}

// DescribeReconcile renders a one-line summary of a reconcile run.
func DescribeReconcile(res reconcile.Result) string {
	switch {
	case res.Skipped:
		return "reconcile skipped: scheduler unavailable"
	case res.LossFound:
		return fmt.Sprintf("scheduler state loss repaired: %d rescheduled, %d cleared", res.Rescheduled, res.Cleared)
	case res.Rescheduled > 0 || res.Cleared > 0:
		return fmt.Sprintf("drift repaired: %d rescheduled, %d cleared", res.Rescheduled, res.Cleared)
	default:
		return fmt.Sprintf("nothing to do (%d active registrations)", res.Active)
	}
}

// Resolve maps a target to a reminder id. A target is a 1-based list
// position, a full id or a unique id prefix.
func Resolve(target string, items []model.Reminder) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", &CommandError{Code: ErrCodeInvalidArgument, Message: "target is empty"}
	}
	if n, err := strconv.Atoi(target); err == nil && len(target) < 4 {
		if n < 1 || n > len(items) {
			return "", fmt.Errorf("%w: no reminder at position %d", reminders.ErrNotFound, n)
		}
		return items[n-1].ID, nil
	}

	match := ""
	for _, r := range items {
		if r.ID == target {
			return r.ID, nil
		}
		if strings.HasPrefix(r.ID, target) {
			if match != "" {
				return "", &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("target %q is ambiguous", target)}
			}
			match = r.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", reminders.ErrNotFound, target)
	}
	return match, nil
}
