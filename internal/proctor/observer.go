package proctor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bipstech/exam-portal/internal/model"
)

// EventKind identifies a session notification.
type EventKind string

const (
	EventReady        EventKind = "ready"
	EventTick         EventKind = "tick"
	EventViolation    EventKind = "violation"
	EventBanned       EventKind = "banned"
	EventSubmitted    EventKind = "submitted"
	EventSubmitFailed EventKind = "submit_failed"
)

// Event is emitted by a Controller as the session progresses.
type Event struct {
	Kind       EventKind
	Remaining  time.Duration
	Threshold  int
	StartedAt  time.Time
	Violation  *model.Violation
	Verdict    Verdict
	Warning    *Warning
	Outcome    model.Outcome
	Submission *model.Submission
	Err        error
}

// Observer receives session events on the controller goroutine.
// Implementations must not block for long; wrap slow ones in an AsyncObserver.
type Observer interface {
	Notify(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

func (f ObserverFunc) Notify(ev Event) { f(ev) }

// Observers fans an event out to several observers in order.
type Observers []Observer

func (o Observers) Notify(ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Notify(ev)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Notify(Event) {}

// AsyncObserver hands events to another observer on its own goroutine, in
// order. Ticks are dropped while the queue is full; other events wait for room.
type AsyncObserver struct {
	next    Observer
	queue   chan Event
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// NewAsyncObserver starts delivering to next with a queue of the given size.
func NewAsyncObserver(next Observer, buffer int) *AsyncObserver {
	a := &AsyncObserver{
		next:  next,
		queue: make(chan Event, buffer),
		done:  make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *AsyncObserver) loop() {
	defer close(a.done)
	for ev := range a.queue {
		a.next.Notify(ev)
	}
}

func (a *AsyncObserver) Notify(ev Event) {
	if ev.Kind == EventTick {
		select {
		case a.queue <- ev:
		default:
			a.dropped.Add(1)
		}
		return
	}
	a.queue <- ev
}

// Dropped returns the number of ticks skipped because the consumer lagged.
func (a *AsyncObserver) Dropped() int64 {
	return a.dropped.Load()
}

// Close waits until every queued event is delivered. Call it after the last Notify.
func (a *AsyncObserver) Close() {
	a.once.Do(func() { close(a.queue) })
	<-a.done
}
