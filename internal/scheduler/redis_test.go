package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/medremind/internal/model"
)

func setupRedisScheduler(t *testing.T) (*RedisScheduler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s, err := NewRedisScheduler(client, "test", PermissionGranted)
	if err != nil {
		t.Fatalf("new redis scheduler: %v", err)
	}
	return s, mr
}

func TestRedisSchedulerRegisterCancelList(t *testing.T) {
	s, _ := setupRedisScheduler(t)
	ctx := context.Background()

	h, err := s.Register(ctx, Trigger{Weekday: model.Monday, Hour: 8, Title: "Aspirin"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	active, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0] != h {
		t.Fatalf("unexpected active list: %v", active)
	}

	if err := s.Cancel(ctx, h); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := s.Cancel(ctx, h); err != nil {
		t.Fatalf("cancel of canceled handle must be a no-op, got %v", err)
	}
	active, _ = s.ListActive(ctx)
	if len(active) != 0 {
		t.Fatalf("expected no active handles, got %v", active)
	}
}

func TestRedisSchedulerFlushLosesState(t *testing.T) {
	s, mr := setupRedisScheduler(t)
	ctx := context.Background()
	if _, err := s.Register(ctx, Trigger{Weekday: model.Friday, Hour: 20}); err != nil {
		t.Fatalf("register: %v", err)
	}
	mr.FlushAll()
	active, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected empty registrations after flush, got %v", active)
	}
}

func TestRedisSchedulerPermission(t *testing.T) {
	s, _ := setupRedisScheduler(t)
	ctx := context.Background()

	p, err := s.RequestPermission(ctx)
	if err != nil || p != PermissionGranted {
		t.Fatalf("expected default granted, got %q err=%v", p, err)
	}
	if err := s.SetPermission(ctx, PermissionDenied); err != nil {
		t.Fatalf("set permission: %v", err)
	}
	p, err = s.RequestPermission(ctx)
	if err != nil || p != PermissionDenied {
		t.Fatalf("expected denied, got %q err=%v", p, err)
	}
	if err := s.SetPermission(ctx, "sometimes"); err == nil {
		t.Fatal("expected error for unknown permission")
	}
}

func TestRedisSchedulerTrigger(t *testing.T) {
	s, _ := setupRedisScheduler(t)
	ctx := context.Background()

	h, err := s.Register(ctx, Trigger{Weekday: model.Friday, Hour: 20, Minute: 5, Title: "Iron"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	got, ok, err := s.Trigger(ctx, h)
	if err != nil || !ok || got.Weekday != model.Friday || got.Hour != 20 || got.Title != "Iron" {
		t.Fatalf("unexpected trigger %+v ok=%v err=%v", got, ok, err)
	}
	if err := s.Cancel(ctx, h); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, ok, err := s.Trigger(ctx, h); ok || err != nil {
		t.Fatalf("expected canceled trigger to be gone, ok=%v err=%v", ok, err)
	}
}

func TestRedisSchedulerFireOncePerOccurrence(t *testing.T) {
	s, _ := setupRedisScheduler(t)
	ctx := context.Background()

	h, _ := s.Register(ctx, Trigger{Weekday: model.Monday, Hour: 8, Minute: 15})
	if _, err := s.Register(ctx, Trigger{Weekday: model.Tuesday, Hour: 8, Minute: 15}); err != nil {
		t.Fatalf("register: %v", err)
	}

	at := time.Date(2026, 2, 9, 8, 15, 20, 0, time.UTC) // Monday
	events, err := s.Fire(ctx, at)
	if err != nil {
		t.Fatalf("fire: %v", err)
	}
	if len(events) != 1 || events[0].Handle != h {
		t.Fatalf("unexpected events: %+v", events)
	}

	events, err = s.Fire(ctx, at.Add(20*time.Second))
	if err != nil {
		t.Fatalf("second fire: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected occurrence to fire once, got %+v", events)
	}

	events, _ = s.Fire(ctx, at.AddDate(0, 0, 7))
	if len(events) != 1 {
		t.Fatalf("expected next week's occurrence, got %+v", events)
	}
}

func TestRedisSchedulerRunForwardsEvents(t *testing.T) {
	s, _ := setupRedisScheduler(t)
	s.now = func() time.Time { return time.Date(2026, 2, 9, 8, 15, 0, 0, time.UTC) }
	if _, err := s.Register(context.Background(), Trigger{Weekday: model.Monday, Hour: 8, Minute: 15}); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Event, 4)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 10*time.Millisecond, out, nil) }()

	waitEvent(t, out, time.Second)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run returned error: %v", err)
	}
}
