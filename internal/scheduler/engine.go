package scheduler

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const defaultMaxWait = time.Minute

type queueItem struct {
	handle Handle
	at     time.Time
}

type priorityQueue []queueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	return pq[i].at.Before(pq[j].at)
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
}

func (pq *priorityQueue) Push(x any) {
	*pq = append(*pq, x.(queueItem))
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[0 : n-1]
	return item
}

// Engine is an in-process Scheduler. Registrations live only as long as the
// process, which makes a restart indistinguishable from a wiped OS
// scheduler. Each registration fires weekly and re-arms itself.
type Engine struct {
	mu         sync.Mutex
	queue      priorityQueue
	active     map[Handle]Trigger
	permission Permission
	now        func() time.Time
	maxWait    time.Duration
	out        chan Event
	wakeup     chan struct{}
	stopCh     chan struct{}
	doneCh     chan struct{}
	started    bool
	stopped    bool
	dropped    uint64
}

type EngineOption func(*Engine)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithMaxWait bounds how long the loop sleeps before re-reading the clock.
func WithMaxWait(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.maxWait = d
		}
	}
}

func WithPermission(p Permission) EngineOption {
	return func(e *Engine) { e.permission = p }
}

func NewEngine(bufferSize int, opts ...EngineOption) *Engine {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	e := &Engine{
		queue:      make(priorityQueue, 0),
		active:     make(map[Handle]Trigger),
		permission: PermissionGranted,
		now:        time.Now,
		maxWait:    defaultMaxWait,
		out:        make(chan Event, bufferSize),
		wakeup:     make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) C() <-chan Event {
	return e.out
}

func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	heap.Init(&e.queue)
	go e.loop()
}

func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.stopped = true
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.stopCh)
	e.mu.Unlock()
	<-e.doneCh
}

func (e *Engine) Register(_ context.Context, t Trigger) (Handle, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return "", ErrStopped
	}

	h := Handle(uuid.NewString())
	e.active[h] = t
	heap.Push(&e.queue, queueItem{handle: h, at: t.NextAfter(e.now())})
	e.signalWakeup()
	return h, nil
}

// Cancel drops the registration. Its queued occurrence is discarded lazily
// when it comes due.
func (e *Engine) Cancel(_ context.Context, h Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, h)
	return nil
}

func (e *Engine) ListActive(_ context.Context) ([]Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Handle, 0, len(e.active))
	for h := range e.active {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (e *Engine) RequestPermission(_ context.Context) (Permission, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.permission, nil
}

// SetPermission changes the answer of RequestPermission for the rest of the
// process lifetime.
func (e *Engine) SetPermission(_ context.Context, p Permission) error {
	if _, err := ParsePermission(string(p)); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.permission = p
	return nil
}

// Trigger returns the registration behind h, if still active.
func (e *Engine) Trigger(_ context.Context, h Handle) (Trigger, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.active[h]
	return t, ok, nil
}

func (e *Engine) Dropped() uint64 {
	return atomic.LoadUint64(&e.dropped)
}

func (e *Engine) loop() {
	defer close(e.doneCh)
	defer close(e.out)

	var timer *time.Timer
	for {
		wait := e.maxWait
		if next, ok := e.peek(); ok {
			if until := next.at.Sub(e.now()); until < wait {
				wait = until
			}
		}
		if wait < 0 {
			wait = 0
		}
		timer = resetTimer(timer, wait)

		select {
		case <-timer.C:
			for _, ev := range e.popDue(e.now()) {
				select {
				case e.out <- ev:
				default:
					atomic.AddUint64(&e.dropped, 1)
				}
			}
		case <-e.wakeup:
			continue
		case <-e.stopCh:
			stopTimer(timer)
			return
		}
	}
}

func (e *Engine) signalWakeup() {
	select {
	case e.wakeup <- struct{}{}:
	default:
	}
}

func (e *Engine) peek() (queueItem, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.queue) > 0 {
		if _, ok := e.active[e.queue[0].handle]; ok {
			return e.queue[0], true
		}
		heap.Pop(&e.queue)
	}
	return queueItem{}, false
}

func (e *Engine) popDue(now time.Time) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Event, 0)
	for len(e.queue) > 0 {
		next := e.queue[0]
		if next.at.After(now) {
			break
		}
		heap.Pop(&e.queue)
		t, ok := e.active[next.handle]
		if !ok {
			continue
		}
		out = append(out, Event{Handle: next.handle, Trigger: t, FiredAt: next.at})
		heap.Push(&e.queue, queueItem{handle: next.handle, at: t.NextAfter(now)})
	}
	return out
}

func resetTimer(timer *time.Timer, d time.Duration) *time.Timer {
	if timer == nil {
		return time.NewTimer(d)
	}
	stopTimer(timer)
	timer.Reset(d)
	return timer
}

func stopTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
