// Package alarm is the in-process timer that wakes the scheduler when a
// reminder is due. It keeps no state of its own across restarts; the
// scheduler re-arms it from persisted triggers.
package alarm

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Ticket identifies one scheduled callback. A ticket for an old generation
// may still fire; the scheduler ignores it.
type Ticket struct {
	RecordID   string
	Generation int64
	FireAt     time.Time
}

type ticketKey struct {
	recordID   string
	generation int64
}

// FireFunc is invoked from the runner goroutine when a ticket is due.
type FireFunc func(ctx context.Context, t Ticket)

type ticketQueue []Ticket

func (q ticketQueue) Len() int { return len(q) }

func (q ticketQueue) Less(i, j int) bool {
	return q[i].FireAt.Before(q[j].FireAt)
}

func (q ticketQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *ticketQueue) Push(x any) {
	*q = append(*q, x.(Ticket))
}

func (q *ticketQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[0 : n-1]
	return item
}

// Runner orders tickets by FireAt in a heap and sleeps until the earliest.
type Runner struct {
	mu     sync.Mutex
	queue  ticketQueue
	armed  map[ticketKey]struct{}
	wakeup chan struct{}
}

func NewRunner() *Runner {
	return &Runner{
		armed:  make(map[ticketKey]struct{}),
		wakeup: make(chan struct{}, 1),
	}
}

// Arm schedules t. Arming the same record and generation twice is a no-op.
// Tickets already due fire as soon as Run gets to them.
func (r *Runner) Arm(t Ticket) {
	key := ticketKey{t.RecordID, t.Generation}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.armed[key]; ok {
		return
	}
	r.armed[key] = struct{}{}
	heap.Push(&r.queue, t)
	r.signalWakeup()
}

// Pending reports how many tickets wait to fire.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Run fires due tickets until ctx is done.
func (r *Runner) Run(ctx context.Context, fire FireFunc) error {
	var timer *time.Timer
	defer func() { stopTimer(timer) }()

	for {
		next, ok := r.peek()
		if !ok {
			select {
			case <-r.wakeup:
				continue
			case <-ctx.Done():
				return nil
			}
		}

		wait := time.Until(next.FireAt)
		if wait < 0 {
			wait = 0
		}
		timer = resetTimer(timer, wait)

		select {
		case <-timer.C:
			for _, t := range r.popDue(time.Now()) {
				fire(ctx, t)
			}
		case <-r.wakeup:
			continue
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Runner) signalWakeup() {
	select {
	case r.wakeup <- struct{}{}:
	default:
	}
}

func (r *Runner) peek() (Ticket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return Ticket{}, false
	}
	return r.queue[0], true
}

func (r *Runner) popDue(now time.Time) []Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Ticket
	for len(r.queue) > 0 {
		if r.queue[0].FireAt.After(now) {
			break
		}
		t := heap.Pop(&r.queue).(Ticket)
		delete(r.armed, ticketKey{t.RecordID, t.Generation})
		out = append(out, t)
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
