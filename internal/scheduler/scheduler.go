package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/medremind/internal/model"
)

var (
	ErrInvalidTrigger = errors.New("scheduler: invalid trigger")
	ErrStopped        = errors.New("scheduler: engine stopped")
)

// Handle identifies one weekly registration. Handles are opaque to callers.
type Handle string

type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

func ParsePermission(raw string) (Permission, error) {
	switch Permission(raw) {
	case PermissionGranted, PermissionDenied:
		return Permission(raw), nil
	default:
		return "", fmt.Errorf("scheduler: unknown permission %q", raw)
	}
}

// Trigger is a weekly-recurring wall-clock registration.
type Trigger struct {
	Weekday model.Weekday `json:"weekday"`
	Hour    int           `json:"hour"`
	Minute  int           `json:"minute"`
	Title   string        `json:"title"`
	Body    string        `json:"body"`
}

func (t Trigger) Validate() error {
	if !t.Weekday.IsValid() {
		return fmt.Errorf("%w: weekday %d", ErrInvalidTrigger, int(t.Weekday))
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("%w: time %02d:%02d", ErrInvalidTrigger, t.Hour, t.Minute)
	}
	return nil
}

// NextAfter returns the first occurrence strictly after from, in from's
// location.
func (t Trigger) NextAfter(from time.Time) time.Time {
	y, m, d := from.Date()
	probe := time.Date(y, m, d, t.Hour, t.Minute, 0, 0, from.Location())
	for i := 0; i < 8; i++ {
		if model.WeekdayOf(probe) == t.Weekday && probe.After(from) {
			return probe
		}
		probe = probe.AddDate(0, 0, 1)
	}
	return probe
}

// Matches reports whether at falls inside the trigger's minute.
func (t Trigger) Matches(at time.Time) bool {
	return model.WeekdayOf(at) == t.Weekday && at.Hour() == t.Hour && at.Minute() == t.Minute
}

// Event is one fired occurrence of a registration.
type Event struct {
	Handle  Handle
	Trigger Trigger
	FiredAt time.Time
}

// Scheduler is the notification capability the reminder store depends on.
// Cancel on an unknown or already canceled handle returns nil.
type Scheduler interface {
	Register(ctx context.Context, t Trigger) (Handle, error)
	Cancel(ctx context.Context, h Handle) error
	ListActive(ctx context.Context) ([]Handle, error)
	RequestPermission(ctx context.Context) (Permission, error)
}

// PermissionSetter is implemented by schedulers whose permission can be
// granted or revoked at runtime.
type PermissionSetter interface {
	SetPermission(ctx context.Context, p Permission) error
}

// Inspector is implemented by schedulers that can report the trigger behind
// an active handle.
type Inspector interface {
	Trigger(ctx context.Context, h Handle) (Trigger, bool, error)
}

// ClearAll cancels every active registration, whoever created it.
func ClearAll(ctx context.Context, s Scheduler) (int, error) {
	active, err := s.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	var errs []error
	cleared := 0
	for _, h := range active {
		if err := s.Cancel(ctx, h); err != nil {
			errs = append(errs, fmt.Errorf("cancel %s: %w", h, err))
			continue
		}
		cleared++
	}
	return cleared, errors.Join(errs...)
}
