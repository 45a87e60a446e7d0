package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sandeepkv93/medremind/internal/logger"
	"github.com/sandeepkv93/medremind/internal/model"
	"github.com/sandeepkv93/medremind/internal/reminders"
	"github.com/sandeepkv93/medremind/internal/scheduler"
)

type Mode string

const (
	// ModeHeuristic rebuilds everything only when the scheduler reports no
	// active registrations at all.
	ModeHeuristic Mode = "heuristic"
	// ModeStrict also rebuilds any enabled reminder whose own handles are not
	// all active.
	ModeStrict Mode = "strict"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case "":
		return ModeHeuristic, nil
	case ModeHeuristic, ModeStrict:
		return Mode(raw), nil
	default:
		return "", fmt.Errorf("reconcile: unknown mode %q", raw)
	}
}

// Store is the part of the reminder store reconciliation drives.
type Store interface {
	Hydrate(ctx context.Context) error
	List() []model.Reminder
	ActiveHandles(ctx context.Context) ([]scheduler.Handle, error)
	Reschedule(ctx context.Context, id string) (model.Reminder, error)
	ClearHandles(ctx context.Context, id string) (model.Reminder, error)
}

type Result struct {
	Mode        Mode
	Active      int
	LossFound   bool
	Rescheduled int
	Cleared     int
	// Skipped is set when the scheduler could not be queried.
	Skipped bool
}

type Engine struct {
	store Store
	mode  Mode
	log   *logrus.Logger
}

func New(store Store, mode Mode, log *logrus.Logger) *Engine {
	if mode == "" {
		mode = ModeHeuristic
	}
	if log == nil {
		log = logger.Get()
	}
	return &Engine{store: store, mode: mode, log: log}
}

func (e *Engine) Mode() Mode {
	return e.mode
}

// Reconcile reloads the persisted reminders, compares them with the
// scheduler's active set and rebuilds registrations that were lost. An
// unreachable scheduler is logged and reported as Skipped, not as an error.
func (e *Engine) Reconcile(ctx context.Context) (Result, error) {
	res := Result{Mode: e.mode}
	if err := e.store.Hydrate(ctx); err != nil {
		return res, err
	}

	active, err := e.store.ActiveHandles(ctx)
	if err != nil {
		e.log.WithError(err).Warn("reconcile skipped: scheduler unavailable")
		res.Skipped = true
		return res, nil
	}
	res.Active = len(active)

	items := e.store.List()
	if len(active) == 0 {
		if !anyEnabled(items) {
			return res, nil
		}
		res.LossFound = true
		e.log.WithField("reminders", len(items)).Warn("scheduler state loss detected, rebuilding")
		return e.rebuild(ctx, items, func(model.Reminder) bool { return true }, res)
	}

	if e.mode != ModeStrict {
		return res, nil
	}

	live := make(map[string]bool, len(active))
	for _, h := range active {
		live[string(h)] = true
	}
	drifted := func(r model.Reminder) bool {
		if !r.Enabled {
			return len(r.ExternalHandles) > 0
		}
		if len(r.ExternalHandles) == 0 {
			return true
		}
		for _, h := range r.ExternalHandles {
			if !live[h] {
				return true
			}
		}
		return false
	}
	return e.rebuild(ctx, items, drifted, res)
}

func (e *Engine) rebuild(ctx context.Context, items []model.Reminder, selected func(model.Reminder) bool, res Result) (Result, error) {
	var errs []error
	for _, r := range items {
		if !selected(r) {
			continue
		}
		if !r.Enabled {
			if len(r.ExternalHandles) == 0 {
				continue
			}
			if _, err := e.store.ClearHandles(ctx, r.ID); err != nil {
				errs = append(errs, err)
				continue
			}
			res.Cleared++
			continue
		}

		if _, err := e.store.Reschedule(ctx, r.ID); err != nil {
			if errors.Is(err, reminders.ErrPermissionDenied) {
				return res, err
			}
			errs = append(errs, err)
			continue
		}
		res.Rescheduled++
	}

	e.log.WithFields(logrus.Fields{
		"mode":        e.mode,
		"rescheduled": res.Rescheduled,
		"cleared":     res.Cleared,
		"failed":      len(errs),
	}).Info("reconcile finished")
	return res, errors.Join(errs...)
}

func anyEnabled(items []model.Reminder) bool {
	for _, r := range items {
		if r.Enabled {
			return true
		}
	}
	return false
}
