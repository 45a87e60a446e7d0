package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sandeepkv93/medremind/internal/logger"
	"github.com/sandeepkv93/medremind/internal/model"
	"github.com/sandeepkv93/medremind/internal/reminders"
	"github.com/sandeepkv93/medremind/internal/scheduler"
	"github.com/sandeepkv93/medremind/internal/storage"
)

var mondayMorning = time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)

type unreachableScheduler struct {
	*scheduler.Engine
}

func (unreachableScheduler) ListActive(context.Context) ([]scheduler.Handle, error) {
	return nil, errors.New("scheduler offline")
}

func newStore(t *testing.T, repo storage.Repository, sched scheduler.Scheduler) *reminders.Store {
	t.Helper()
	store := reminders.New(repo, sched, reminders.Options{
		Logger: logger.Discard(),
		Now:    func() time.Time { return mondayMorning },
	})
	if err := store.Hydrate(t.Context()); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	return store
}

func newRepo(t *testing.T) storage.Repository {
	t.Helper()
	repo, err := storage.NewFileRepository(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	return repo
}

func TestReconcileRebuildsAfterSchedulerLoss(t *testing.T) {
	repo := newRepo(t)
	before := newStore(t, repo, scheduler.NewEngine(4))
	added, err := before.Add(t.Context(), reminders.AddInput{Name: "Aspirin", Time: "08:00", Weekdays: []model.Weekday{model.Monday, model.Thursday}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	disabled, err := before.Add(t.Context(), reminders.AddInput{Name: "Iron", Time: "21:00"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := before.Toggle(t.Context(), disabled.ID, false); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	// A fresh engine has lost every registration.
	engine := scheduler.NewEngine(4)
	after := newStore(t, repo, engine)
	res, err := New(after, ModeHeuristic, logger.Discard()).Reconcile(t.Context())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !res.LossFound || res.Rescheduled != 1 || res.Skipped {
		t.Fatalf("unexpected result %+v", res)
	}

	persisted, err := repo.Load(t.Context())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := persisted[0]
	if got.ID != added.ID || len(got.ExternalHandles) != 2 {
		t.Fatalf("expected two rebuilt handles, got %#v", got)
	}
	for _, h := range got.ExternalHandles {
		if _, ok, _ := engine.Trigger(t.Context(), scheduler.Handle(h)); !ok {
			t.Fatalf("handle %s not registered with the new engine", h)
		}
	}
	if persisted[1].Enabled || len(persisted[1].ExternalHandles) != 0 {
		t.Fatalf("disabled reminder should stay without handles, got %#v", persisted[1])
	}
}

func TestReconcileNoEnabledRemindersIsNoop(t *testing.T) {
	repo := newRepo(t)
	store := newStore(t, repo, scheduler.NewEngine(1))
	r, err := store.Add(t.Context(), reminders.AddInput{Name: "Aspirin", Time: "08:00"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := store.Toggle(t.Context(), r.ID, false); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	res, err := New(store, ModeHeuristic, logger.Discard()).Reconcile(t.Context())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.LossFound || res.Rescheduled != 0 {
		t.Fatalf("expected no action, got %+v", res)
	}
}

func TestReconcilePartialDriftByMode(t *testing.T) {
	repo := newRepo(t)
	engine := scheduler.NewEngine(1)
	store := newStore(t, repo, engine)

	intact, err := store.Add(t.Context(), reminders.AddInput{Name: "Intact", Time: "08:00", Weekdays: []model.Weekday{model.Tuesday}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	drifted, err := store.Add(t.Context(), reminders.AddInput{Name: "Drifted", Time: "09:00", Weekdays: []model.Weekday{model.Wednesday, model.Friday}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	// Lose one of the two registrations behind the store's back.
	if err := engine.Cancel(t.Context(), scheduler.Handle(drifted.ExternalHandles[0])); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	res, err := New(store, ModeHeuristic, logger.Discard()).Reconcile(t.Context())
	if err != nil {
		t.Fatalf("heuristic reconcile: %v", err)
	}
	if res.LossFound || res.Rescheduled != 0 || res.Active != 2 {
		t.Fatalf("heuristic mode should not act on partial drift, got %+v", res)
	}

	res, err = New(store, ModeStrict, logger.Discard()).Reconcile(t.Context())
	if err != nil {
		t.Fatalf("strict reconcile: %v", err)
	}
	if res.Rescheduled != 1 {
		t.Fatalf("strict mode should rebuild the drifted reminder, got %+v", res)
	}
	got, err := store.Get(drifted.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.ExternalHandles) != 2 {
		t.Fatalf("expected two live handles, got %v", got.ExternalHandles)
	}
	for _, h := range got.ExternalHandles {
		if _, ok, _ := engine.Trigger(t.Context(), scheduler.Handle(h)); !ok {
			t.Fatalf("handle %s not active", h)
		}
	}
	kept, _ := store.Get(intact.ID)
	if kept.ExternalHandles[0] != intact.ExternalHandles[0] {
		t.Fatal("strict mode rebuilt an intact reminder")
	}
}

func TestReconcileSkipsWhenSchedulerUnreachable(t *testing.T) {
	repo := newRepo(t)
	store := newStore(t, repo, unreachableScheduler{scheduler.NewEngine(1)})
	if _, err := store.Add(t.Context(), reminders.AddInput{Name: "Aspirin", Time: "08:00"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	res, err := New(store, ModeHeuristic, logger.Discard()).Reconcile(t.Context())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !res.Skipped {
		t.Fatalf("expected skipped result, got %+v", res)
	}
}

func TestReconcileStopsOnPermissionDenied(t *testing.T) {
	repo := newRepo(t)
	before := newStore(t, repo, scheduler.NewEngine(1))
	if _, err := before.Add(t.Context(), reminders.AddInput{Name: "Aspirin", Time: "08:00"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	engine := scheduler.NewEngine(1, scheduler.WithPermission(scheduler.PermissionDenied))
	after := newStore(t, repo, engine)
	_, err := New(after, ModeHeuristic, logger.Discard()).Reconcile(t.Context())
	if !errors.Is(err, reminders.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != ModeHeuristic {
		t.Fatalf("empty mode = %q, %v", m, err)
	}
	if m, err := ParseMode("strict"); err != nil || m != ModeStrict {
		t.Fatalf("strict mode = %q, %v", m, err)
	}
	if _, err := ParseMode("eager"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
