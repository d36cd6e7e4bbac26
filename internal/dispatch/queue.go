// Package dispatch is the outbound Message Queue (spec §4.2): it orders
// pending Calls by opNr, multiplexes the per-connector and generic
// charge-point-wide emitters fairly, retries a failed delivery up to
// MaxAttempts times (the caller supplies the bound -- runtime.Loop reads
// TransactionMessageAttempts/TransactionMessageRetryInterval for
// transaction-bound Calls), and withholds transaction-bound Calls while
// BootNotification is Pending. Grounded on the teacher's
// connection/pool.go round-robin dispatch loop, re-aimed at message
// ordering instead of connection selection.
package dispatch

import (
	"sort"
	"sync"
	"time"
)

// GenericSource is the evseID used for charge-point-wide Calls that are
// not bound to any one connector (BootNotification, Heartbeat,
// DiagnosticsStatusNotification, FirmwareStatusNotification, ...).
// evseID 0 is otherwise reserved the same way in internal/journal.
const GenericSource = 0

// PendingCall is one outstanding request awaiting CallResult/CallError.
type PendingCall struct {
	OpNr          int
	EvseID        int
	Action        string
	Payload       interface{}
	TxBound       bool
	Attempts      int
	MaxAttempts   int // <= 0 means retry indefinitely
	RetryAfter    time.Time
	RetryInterval time.Duration
}

// Queue is the per-process outbound message queue.
type Queue struct {
	mu          sync.Mutex
	nextOpNr    int
	bootPending bool
	queues      map[int][]*PendingCall
	cursor      int
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{queues: make(map[int][]*PendingCall)}
}

// SetBootPending toggles whether transaction-bound Calls are withheld.
// Inbound server-initiated operations are handled elsewhere and are
// never affected by this gate; it only withholds outbound calls such as
// StartTransaction/StopTransaction/TransactionEvent while this charge
// point's BootNotification has not yet been Accepted (spec §4.3).
func (q *Queue) SetBootPending(pending bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.bootPending = pending
}

// Enqueue appends a new Call to evseID's source queue and returns it.
func (q *Queue) Enqueue(evseID int, action string, payload interface{}, txBound bool, maxAttempts int, retryInterval time.Duration) *PendingCall {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextOpNr++
	pc := &PendingCall{
		OpNr:          q.nextOpNr,
		EvseID:        evseID,
		Action:        action,
		Payload:       payload,
		TxBound:       txBound,
		MaxAttempts:   maxAttempts,
		RetryInterval: retryInterval,
	}
	q.queues[evseID] = append(q.queues[evseID], pc)
	return pc
}

// Next returns the next ready-to-send Call, chosen by round robin across
// sources so a busy connector can never starve another, or ok=false if
// nothing is currently eligible (everything is empty, in backoff, or
// withheld by the boot-pending gate). The call is not removed from its
// queue; the caller must follow up with Confirm or Fail once the
// delivery attempt resolves.
func (q *Queue) Next(now time.Time) (*PendingCall, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	sources := q.activeSourcesLocked()
	if len(sources) == 0 {
		return nil, false
	}
	for i := 0; i < len(sources); i++ {
		idx := (q.cursor + i) % len(sources)
		src := sources[idx]
		fifo := q.queues[src]
		if len(fifo) == 0 {
			continue
		}
		pc := fifo[0]
		if pc.TxBound && q.bootPending {
			continue
		}
		if !pc.RetryAfter.IsZero() && now.Before(pc.RetryAfter) {
			continue
		}
		q.cursor = (idx + 1) % len(sources)
		return pc, true
	}
	return nil, false
}

// Confirm pops the front call of evseID's queue once its CallResult has
// arrived, provided it is still opNr (a stale confirmation for an
// already-retried/dropped call is ignored).
func (q *Queue) Confirm(evseID, opNr int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	fifo := q.queues[evseID]
	if len(fifo) > 0 && fifo[0].OpNr == opNr {
		q.queues[evseID] = fifo[1:]
	}
}

// Fail records a failed delivery attempt for the front call of evseID's
// queue. It reports gaveUp=true once MaxAttempts is exhausted, at which
// point the call is also removed from the queue. MaxAttempts<=0 retries
// forever; the caller decides the bound per Call -- runtime.Loop bounds
// every transaction-bound Call at TransactionMessageAttempts so a tx is
// silenced rather than retried indefinitely (spec §4.2 property 1).
func (q *Queue) Fail(evseID, opNr int, now time.Time) (gaveUp bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	fifo := q.queues[evseID]
	if len(fifo) == 0 || fifo[0].OpNr != opNr {
		return false
	}
	pc := fifo[0]
	pc.Attempts++
	if pc.MaxAttempts > 0 && pc.Attempts >= pc.MaxAttempts {
		q.queues[evseID] = fifo[1:]
		return true
	}
	pc.RetryAfter = now.Add(pc.RetryInterval)
	return false
}

// Len reports the number of calls still queued for evseID.
func (q *Queue) Len(evseID int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[evseID])
}

func (q *Queue) activeSourcesLocked() []int {
	var out []int
	for src, fifo := range q.queues {
		if len(fifo) > 0 {
			out = append(out, src)
		}
	}
	sort.Ints(out)
	return out
}
