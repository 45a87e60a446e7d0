package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sandeepkv93/medremind/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func TestEngineFiresAndRearmsWeekly(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 2, 9, 7, 59, 59, 0, time.UTC)} // Monday
	engine := NewEngine(8, WithClock(clock.Now), WithMaxWait(5*time.Millisecond))
	engine.Start()
	defer engine.Stop()

	h, err := engine.Register(context.Background(), Trigger{Weekday: model.Monday, Hour: 8, Title: "Aspirin"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	clock.Set(time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC))
	ev := waitEvent(t, engine.C(), time.Second)
	if ev.Handle != h || ev.Trigger.Title != "Aspirin" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.FiredAt.Format("2006-01-02 15:04") != "2026-02-09 08:00" {
		t.Fatalf("unexpected fire time: %s", ev.FiredAt)
	}

	clock.Set(time.Date(2026, 2, 16, 8, 0, 30, 0, time.UTC))
	ev = waitEvent(t, engine.C(), time.Second)
	if ev.FiredAt.Format("2006-01-02 15:04") != "2026-02-16 08:00" {
		t.Fatalf("expected re-armed weekly occurrence, got %s", ev.FiredAt)
	}
}

func TestEngineCanceledHandleDoesNotFire(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 2, 9, 7, 0, 0, 0, time.UTC)}
	engine := NewEngine(8, WithClock(clock.Now), WithMaxWait(5*time.Millisecond))
	engine.Start()
	defer engine.Stop()

	ctx := context.Background()
	h, err := engine.Register(ctx, Trigger{Weekday: model.Monday, Hour: 8})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := engine.Cancel(ctx, h); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := engine.Cancel(ctx, h); err != nil {
		t.Fatalf("second cancel must be a no-op, got %v", err)
	}
	if err := engine.Cancel(ctx, Handle("unknown")); err != nil {
		t.Fatalf("cancel unknown must be a no-op, got %v", err)
	}

	clock.Set(time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC))
	select {
	case ev := <-engine.C():
		t.Fatalf("unexpected event after cancel: %+v", ev)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestEngineDropsWhenConsumerIsSlow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 2, 9, 7, 0, 0, 0, time.UTC)}
	engine := NewEngine(1, WithClock(clock.Now), WithMaxWait(5*time.Millisecond))
	engine.Start()
	defer engine.Stop()

	for i := 0; i < 5; i++ {
		if _, err := engine.Register(context.Background(), Trigger{Weekday: model.Monday, Hour: 8}); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	clock.Set(time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC))

	deadline := time.After(time.Second)
	for engine.Dropped() < 4 {
		select {
		case <-deadline:
			t.Fatalf("expected 4 dropped events, got %d", engine.Dropped())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestEngineListActiveAndPermission(t *testing.T) {
	engine := NewEngine(1, WithPermission(PermissionDenied))
	ctx := context.Background()

	p, err := engine.RequestPermission(ctx)
	if err != nil || p != PermissionDenied {
		t.Fatalf("expected denied permission, got %q err=%v", p, err)
	}
	if err := engine.SetPermission(ctx, PermissionGranted); err != nil {
		t.Fatalf("set permission: %v", err)
	}
	if err := engine.SetPermission(ctx, "maybe"); err == nil {
		t.Fatal("expected error for unknown permission")
	}
	if p, _ := engine.RequestPermission(ctx); p != PermissionGranted {
		t.Fatalf("expected granted after SetPermission, got %q", p)
	}

	a, _ := engine.Register(ctx, Trigger{Weekday: model.Sunday, Hour: 9})
	b, _ := engine.Register(ctx, Trigger{Weekday: model.Saturday, Hour: 21, Minute: 30})
	active, err := engine.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active handles, got %v", active)
	}
	if got, ok, _ := engine.Trigger(ctx, a); !ok || got.Weekday != model.Sunday || got.Hour != 9 {
		t.Fatalf("expected Sunday 09:00 trigger for %s, got %+v ok=%v", a, got, ok)
	}

	cleared, err := ClearAll(ctx, engine)
	if err != nil || cleared != 2 {
		t.Fatalf("clear all: cleared=%d err=%v", cleared, err)
	}
	if _, ok, _ := engine.Trigger(ctx, b); ok {
		t.Fatal("expected trigger removed after clear")
	}
}

func TestRegisterValidatesTrigger(t *testing.T) {
	engine := NewEngine(1)
	ctx := context.Background()
	bad := []Trigger{
		{Weekday: 0, Hour: 8},
		{Weekday: model.Monday, Hour: 24},
		{Weekday: model.Monday, Minute: -1},
	}
	for _, tr := range bad {
		if _, err := engine.Register(ctx, tr); !errors.Is(err, ErrInvalidTrigger) {
			t.Fatalf("register %+v: expected ErrInvalidTrigger, got %v", tr, err)
		}
	}

	engine.Stop()
	if _, err := engine.Register(ctx, Trigger{Weekday: model.Monday}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestTriggerNextAfter(t *testing.T) {
	tr := Trigger{Weekday: model.Monday, Hour: 8}
	monday := time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)

	if got := tr.NextAfter(monday.Add(-time.Minute)); !got.Equal(monday) {
		t.Fatalf("expected same-day occurrence, got %s", got)
	}
	if got := tr.NextAfter(monday); !got.Equal(monday.AddDate(0, 0, 7)) {
		t.Fatalf("expected next week occurrence, got %s", got)
	}
	if !tr.Matches(monday.Add(30 * time.Second)) {
		t.Fatal("expected trigger to match its own minute")
	}
}

func waitEvent(t *testing.T, ch <-chan Event, timeout time.Duration) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for event")
		return Event{}
	}
}
