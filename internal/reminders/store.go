package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sandeepkv93/medremind/internal/logger"
	"github.com/sandeepkv93/medremind/internal/model"
	"github.com/sandeepkv93/medremind/internal/scheduler"
	"github.com/sandeepkv93/medremind/internal/storage"
)

// AddInput is the user-supplied part of a new reminder.
type AddInput struct {
	Name     string
	Dose     string
	Time     string
	Weekdays []model.Weekday
	Notes    string
}

type Options struct {
	Logger *logrus.Logger
	// Now replaces time.Now when planning registrations.
	Now func() time.Time
}

// Store owns the reminder collection and is the only component that talks to
// the scheduler. Every mutation runs under one lock and saves the whole
// collection before returning.
type Store struct {
	mu    sync.Mutex
	repo  storage.Repository
	sched scheduler.Scheduler
	log   *logrus.Logger
	now   func() time.Time
	items []model.Reminder
	// issued holds the handles this store registered and has not canceled.
	issued map[string]struct{}
}

func New(repo storage.Repository, sched scheduler.Scheduler, opts Options) *Store {
	s := &Store{
		repo:   repo,
		sched:  sched,
		log:    opts.Logger,
		now:    opts.Now,
		items:  []model.Reminder{},
		issued: map[string]struct{}{},
	}
	if s.log == nil {
		s.log = logger.Get()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Hydrate replaces the in-memory collection with the persisted one. Handles
// this store issued that no loaded reminder references any more were dropped
// by another writer and get canceled. Disabled reminders still holding
// handles (left behind by a failed toggle) get those handles canceled too.
func (s *Store) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("hydrate reminders: %w", err)
	}

	referenced := map[string]bool{}
	for _, r := range items {
		for _, h := range r.ExternalHandles {
			referenced[h] = true
		}
	}
	var orphaned []string
	for h := range s.issued {
		if !referenced[h] {
			orphaned = append(orphaned, h)
		}
	}
	if len(orphaned) > 0 {
		if _, err := s.cancelHandles(ctx, orphaned); err != nil {
			s.log.WithError(err).Warn("could not cancel handles dropped by another writer")
		}
		s.log.WithField("handles", len(orphaned)).Info("canceled registrations of changed reminders")
	}

	changed := false
	for i := range items {
		r := &items[i]
		if r.Enabled || len(r.ExternalHandles) == 0 {
			continue
		}
		failed, err := s.cancelHandles(ctx, r.ExternalHandles)
		if err != nil {
			s.log.WithError(err).WithField("reminder_id", r.ID).Warn("could not cancel handles of disabled reminder")
		}
		r.ExternalHandles = failed
		changed = true
	}
	s.items = items
	s.log.WithField("count", len(items)).Debug("reminders hydrated")
	if changed {
		return s.persist(ctx)
	}
	return nil
}

// List returns copies of every reminder in insertion order.
func (s *Store) List() []model.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Reminder, 0, len(s.items))
	for _, r := range s.items {
		out = append(out, r.Clone())
	}
	return out
}

func (s *Store) Get(id string) (model.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return model.Reminder{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.items[idx].Clone(), nil
}

// Add creates an enabled reminder and registers one handle per planned
// weekday. Nothing is stored when validation or the permission check fails,
// or when a failed registration could be fully rolled back.
func (s *Store) Add(ctx context.Context, in AddInput) (model.Reminder, error) {
	r, err := normalize(model.Reminder{
		ID:       uuid.NewString(),
		Name:     in.Name,
		Dose:     in.Dose,
		Time:     in.Time,
		Weekdays: in.Weekdays,
		Notes:    in.Notes,
		Enabled:  true,
	})
	if err != nil {
		return model.Reminder{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkPermission(ctx); err != nil {
		return model.Reminder{}, err
	}
	handles, regErr := s.register(ctx, r)
	if regErr != nil && len(handles) == 0 {
		return model.Reminder{}, regErr
	}
	r.ExternalHandles = handles
	s.items = append(s.items, r)
	if err := s.persist(ctx); err != nil {
		return r.Clone(), errors.Join(regErr, err)
	}
	if regErr != nil {
		return r.Clone(), regErr
	}

	s.log.WithFields(logrus.Fields{
		"reminder_id": r.ID,
		"weekdays":    r.Weekdays,
		"handles":     len(r.ExternalHandles),
	}).Info("reminder added")
	return r.Clone(), nil
}

// Update applies patch. Handles are rebuilt only when the reminder is enabled
// and the patch touches name, dose, time or weekdays. When rebuilding fails
// the patch is not applied and the reminder keeps whatever handles are still
// live.
func (s *Store) Update(ctx context.Context, id string, patch model.Patch) (model.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return model.Reminder{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cur := s.items[idx]
	if patch.IsEmpty() {
		return cur.Clone(), nil
	}
	next, err := normalize(patch.Apply(cur))
	if err != nil {
		return model.Reminder{}, err
	}

	if cur.Enabled && patch.TouchesSchedule() {
		if err := s.checkPermission(ctx); err != nil {
			return model.Reminder{}, err
		}
		handles, err := s.replaceHandles(ctx, cur.ExternalHandles, next)
		if err != nil {
			cur.ExternalHandles = handles
			return s.storeAt(ctx, idx, cur, err)
		}
		next.ExternalHandles = handles
	}

	out, err := s.storeAt(ctx, idx, next, nil)
	if err == nil {
		s.log.WithFields(logrus.Fields{
			"reminder_id": id,
			"rescheduled": cur.Enabled && patch.TouchesSchedule(),
			"handles":     len(out.ExternalHandles),
		}).Info("reminder updated")
	}
	return out, err
}

// Toggle moves the reminder to the requested state. Asking for the current
// state is a no-op that never reaches the scheduler.
func (s *Store) Toggle(ctx context.Context, id string, enabled bool) (model.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return model.Reminder{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cur := s.items[idx]
	if cur.Enabled == enabled {
		return cur.Clone(), nil
	}

	if enabled {
		if err := s.checkPermission(ctx); err != nil {
			return model.Reminder{}, err
		}
		handles, err := s.register(ctx, cur)
		if err != nil {
			// Stays disabled; handles whose rollback failed get one more
			// cancel, the rest wait for the next hydrate.
			if len(handles) > 0 {
				handles, _ = s.cancelHandles(ctx, handles)
			}
			cur.ExternalHandles = handles
			return s.storeAt(ctx, idx, cur, err)
		}
		cur.Enabled = true
		cur.ExternalHandles = handles
	} else {
		failed, err := s.cancelHandles(ctx, cur.ExternalHandles)
		if err != nil {
			cur.ExternalHandles = failed
			return s.storeAt(ctx, idx, cur, err)
		}
		cur.Enabled = false
		cur.ExternalHandles = []string{}
	}

	out, err := s.storeAt(ctx, idx, cur, nil)
	if err == nil {
		s.log.WithFields(logrus.Fields{
			"reminder_id": id,
			"enabled":     enabled,
			"handles":     len(out.ExternalHandles),
		}).Info("reminder toggled")
	}
	return out, err
}

// Remove cancels every handle and deletes the reminder. If a cancel fails the
// reminder is kept with the handles that could not be canceled.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cur := s.items[idx]
	failed, err := s.cancelHandles(ctx, cur.ExternalHandles)
	if err != nil {
		cur.ExternalHandles = failed
		_, err = s.storeAt(ctx, idx, cur, err)
		return err
	}

	s.items = append(s.items[:idx:idx], s.items[idx+1:]...)
	if err := s.persist(ctx); err != nil {
		return err
	}
	s.log.WithField("reminder_id", id).Info("reminder removed")
	return nil
}

// DisableAll disables every enabled reminder and reports how many changed.
func (s *Store) DisableAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	disabled := 0
	for i := range s.items {
		r := &s.items[i]
		if !r.Enabled {
			continue
		}
		failed, err := s.cancelHandles(ctx, r.ExternalHandles)
		if err != nil {
			r.ExternalHandles = failed
			errs = append(errs, fmt.Errorf("reminder %s: %w", r.ID, err))
			continue
		}
		r.Enabled = false
		r.ExternalHandles = []string{}
		disabled++
	}
	if disabled > 0 || len(errs) > 0 {
		if err := s.persist(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.log.WithField("disabled", disabled).Info("all reminders disabled")
	return disabled, errors.Join(errs...)
}

// ClearScheduler cancels every active registration, including ones this
// store never issued, and drops local handles that are no longer active.
// Enabled flags are left alone so a reconcile can rebuild them.
func (s *Store) ClearScheduler(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared, clearErr := scheduler.ClearAll(ctx, s.sched)
	live := map[string]bool{}
	if clearErr != nil {
		active, err := s.sched.ListActive(ctx)
		if err != nil {
			return cleared, fmt.Errorf("%w: %w", ErrSchedulerCall, errors.Join(clearErr, err))
		}
		for _, h := range active {
			live[string(h)] = true
		}
	}

	for h := range s.issued {
		if !live[h] {
			delete(s.issued, h)
		}
	}

	changed := false
	for i := range s.items {
		r := &s.items[i]
		kept := make([]string, 0, len(r.ExternalHandles))
		for _, h := range r.ExternalHandles {
			if live[h] {
				kept = append(kept, h)
			}
		}
		if len(kept) != len(r.ExternalHandles) {
			r.ExternalHandles = kept
			changed = true
		}
	}
	if changed {
		if err := s.persist(ctx); err != nil {
			return cleared, errors.Join(clearErr, err)
		}
	}
	s.log.WithField("cleared", cleared).Info("scheduler cleared")
	if clearErr != nil {
		return cleared, fmt.Errorf("%w: %w", ErrSchedulerCall, clearErr)
	}
	return cleared, nil
}

// ActiveHandles reports every registration the scheduler considers active.
func (s *Store) ActiveHandles(ctx context.Context) ([]scheduler.Handle, error) {
	active, err := s.sched.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list active: %w", ErrSchedulerCall, err)
	}
	return active, nil
}

// ActiveTriggers reports the trigger behind each active registration. It
// returns nil when the scheduler cannot describe its registrations.
func (s *Store) ActiveTriggers(ctx context.Context) (map[scheduler.Handle]scheduler.Trigger, error) {
	inspector, ok := s.sched.(scheduler.Inspector)
	if !ok {
		return nil, nil
	}
	active, err := s.ActiveHandles(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[scheduler.Handle]scheduler.Trigger, len(active))
	for _, h := range active {
		t, found, err := inspector.Trigger(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSchedulerCall, err)
		}
		if found {
			out[h] = t
		}
	}
	return out, nil
}

// Permission reports whether the scheduler may deliver notifications.
func (s *Store) Permission(ctx context.Context) (scheduler.Permission, error) {
	p, err := s.sched.RequestPermission(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: request permission: %w", ErrSchedulerCall, err)
	}
	return p, nil
}

// SetPermission grants or revokes notification permission on schedulers that
// support it. Existing registrations are left alone.
func (s *Store) SetPermission(ctx context.Context, p scheduler.Permission) error {
	setter, ok := s.sched.(scheduler.PermissionSetter)
	if !ok {
		return ErrPermissionFixed
	}
	if err := setter.SetPermission(ctx, p); err != nil {
		return fmt.Errorf("%w: set permission: %w", ErrSchedulerCall, err)
	}
	s.log.WithField("permission", p).Info("notification permission changed")
	return nil
}

// Reschedule cancels the recorded handles of an enabled reminder and
// registers a fresh set. Disabled reminders only get their handles cleared.
func (s *Store) Reschedule(ctx context.Context, id string) (model.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return model.Reminder{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cur := s.items[idx]
	if !cur.Enabled {
		return s.clearAt(ctx, idx)
	}
	if err := s.checkPermission(ctx); err != nil {
		return model.Reminder{}, err
	}
	handles, err := s.replaceHandles(ctx, cur.ExternalHandles, cur)
	cur.ExternalHandles = handles
	out, err := s.storeAt(ctx, idx, cur, err)
	if err == nil {
		s.log.WithFields(logrus.Fields{
			"reminder_id": id,
			"handles":     len(out.ExternalHandles),
		}).Info("reminder rescheduled")
	}
	return out, err
}

// ClearHandles cancels and forgets the recorded handles of one reminder
// without changing its enabled flag.
func (s *Store) ClearHandles(ctx context.Context, id string) (model.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return model.Reminder{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.clearAt(ctx, idx)
}

func (s *Store) clearAt(ctx context.Context, idx int) (model.Reminder, error) {
	cur := s.items[idx]
	if len(cur.ExternalHandles) == 0 {
		return cur.Clone(), nil
	}
	failed, err := s.cancelHandles(ctx, cur.ExternalHandles)
	cur.ExternalHandles = failed
	return s.storeAt(ctx, idx, cur, err)
}

// storeAt writes r at idx and persists. opErr is the outcome of the scheduler
// work that produced r; it is returned alongside any save failure.
func (s *Store) storeAt(ctx context.Context, idx int, r model.Reminder, opErr error) (model.Reminder, error) {
	s.items[idx] = r
	if err := s.persist(ctx); err != nil {
		return r.Clone(), errors.Join(opErr, err)
	}
	if opErr != nil {
		s.log.WithError(opErr).WithFields(logrus.Fields{
			"reminder_id": r.ID,
			"handles":     len(r.ExternalHandles),
		}).Warn("scheduler call failed, partial state saved")
	}
	return r.Clone(), opErr
}

func (s *Store) persist(ctx context.Context) error {
	if err := s.repo.Save(ctx, s.items); err != nil {
		return fmt.Errorf("persist reminders: %w", err)
	}
	return nil
}

func (s *Store) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) checkPermission(ctx context.Context) error {
	p, err := s.sched.RequestPermission(ctx)
	if err != nil {
		return fmt.Errorf("%w: request permission: %w", ErrSchedulerCall, err)
	}
	if p != scheduler.PermissionGranted {
		return ErrPermissionDenied
	}
	return nil
}

// replaceHandles cancels old and registers a fresh plan for r. On failure it
// returns the handles that are still live.
func (s *Store) replaceHandles(ctx context.Context, old []string, r model.Reminder) ([]string, error) {
	failed, err := s.cancelHandles(ctx, old)
	if err != nil {
		return failed, err
	}
	return s.register(ctx, r)
}

// register plans r against the current time and registers one trigger per
// planned weekday. A failed registration rolls back the ones made before it;
// the returned handles are those whose rollback also failed.
func (s *Store) register(ctx context.Context, r model.Reminder) ([]string, error) {
	clock, err := model.ParseClock(r.Time)
	if err != nil {
		return []string{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	days := model.PlanWeekdays(clock, r.Weekdays, s.now())

	handles := make([]string, 0, len(days))
	for _, d := range days {
		h, err := s.sched.Register(ctx, scheduler.Trigger{
			Weekday: d,
			Hour:    clock.Hour,
			Minute:  clock.Minute,
			Title:   r.Name,
			Body:    r.Dose,
		})
		if err != nil {
			leftover, cancelErr := s.cancelHandles(ctx, handles)
			if cancelErr != nil {
				s.log.WithError(cancelErr).WithField("reminder_id", r.ID).Warn("rollback incomplete")
			}
			return leftover, fmt.Errorf("%w: register %s %s: %w", ErrSchedulerCall, d, clock, err)
		}
		handles = append(handles, string(h))
		s.issued[string(h)] = struct{}{}
	}
	return handles, nil
}

// cancelHandles cancels each handle and returns the ones that failed.
func (s *Store) cancelHandles(ctx context.Context, handles []string) ([]string, error) {
	failed := []string{}
	var errs []error
	for _, h := range handles {
		if err := s.sched.Cancel(ctx, scheduler.Handle(h)); err != nil {
			failed = append(failed, h)
			errs = append(errs, fmt.Errorf("cancel %s: %w", h, err))
			continue
		}
		delete(s.issued, h)
	}
	if len(errs) > 0 {
		return failed, fmt.Errorf("%w: %w", ErrSchedulerCall, errors.Join(errs...))
	}
	return failed, nil
}

// normalize validates r and rewrites it into canonical stored form.
func normalize(r model.Reminder) (model.Reminder, error) {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return model.Reminder{}, fmt.Errorf("%w: %w", ErrValidation, model.ErrEmptyName)
	}
	clock, err := model.ParseClock(r.Time)
	if err != nil {
		return model.Reminder{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	r.Time = clock.String()
	if err := model.ValidateWeekdays(r.Weekdays); err != nil {
		return model.Reminder{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	r.Weekdays = model.SortWeekdays(r.Weekdays)
	if r.ExternalHandles == nil {
		r.ExternalHandles = []string{}
	}
	return r.Clone(), nil
}
