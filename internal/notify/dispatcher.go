package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/sandeepkv93/medremind/internal/logger"
	"github.com/sandeepkv93/medremind/internal/scheduler"
)

var ErrRateLimited = errors.New("notify: rate limited")

// Dispatcher delivers fired scheduler events to a notifier, dropping
// deliveries above the configured rate so a burst of catch-up events cannot
// flood the desktop.
type Dispatcher struct {
	notifier  DesktopNotifier
	limiter   *rate.Limiter
	log       *logrus.Logger
	delivered uint64
	limited   uint64
	failed    uint64
}

// NewDispatcher allows perMinute deliveries per minute; zero or less means
// unlimited.
func NewDispatcher(n DesktopNotifier, perMinute int, log *logrus.Logger) *Dispatcher {
	if n == nil {
		n = NoopDesktopNotifier{}
	}
	if log == nil {
		log = logger.Get()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
	return &Dispatcher{notifier: n, limiter: limiter, log: log}
}

func (d *Dispatcher) Deliver(ev scheduler.Event) error {
	n := FromEvent(ev)
	fields := logrus.Fields{
		"handle":  ev.Handle,
		"title":   n.Title,
		"weekday": ev.Trigger.Weekday,
	}
	if !d.limiter.Allow() {
		atomic.AddUint64(&d.limited, 1)
		d.log.WithFields(fields).Warn("notification dropped by rate limit")
		return ErrRateLimited
	}
	if err := d.notifier.Send(n); err != nil {
		atomic.AddUint64(&d.failed, 1)
		d.log.WithError(err).WithFields(fields).Error("notification delivery failed")
		return err
	}
	atomic.AddUint64(&d.delivered, 1)
	d.log.WithFields(fields).Info("reminder delivered")
	return nil
}

// Run delivers events until ctx is done or events is closed.
func (d *Dispatcher) Run(ctx context.Context, events <-chan scheduler.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			_ = d.Deliver(ev)
		}
	}
}

type Stats struct {
	Delivered uint64
	Limited   uint64
	Failed    uint64
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Delivered: atomic.LoadUint64(&d.delivered),
		Limited:   atomic.LoadUint64(&d.limited),
		Failed:    atomic.LoadUint64(&d.failed),
	}
}
