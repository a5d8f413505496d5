// Package events is the process-wide fan-out engine: it tracks which
// sessions belong to which authenticated userId and delivers
// server-initiated frames ("newm", "assr") to them from a
// single background worker, so handler code never blocks on a peer's
// socket (spec §4.4). This generalizes the original server's
// event_framework.py (a module-level Queue plus a dict of
// connections) into a type, and reuses the teacher's pond-backed
// worker pool instead of a raw goroutine+channel loop.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/alitto/pond"
)

// Sender is anything an Event can be delivered to - wire.Session
// satisfies this with its Send([]byte) error method.
type Sender interface {
	Send(data []byte) error
}

// Event is one server-initiated push: Prefix is the 4-or-more-ASCII
// reply channel identifier, Data is the payload, and Recipients is
// the set of userIds that should receive it.
type Event struct {
	Prefix     string
	Data       []byte
	Recipients []string
}

// deliveryDelay coalesces bursts and smooths client-side rendering.
// Spec §4.4 is explicit that this is a tunable latency/throughput
// trade, not a correctness requirement.
const deliveryDelay = 10 * time.Millisecond

// Engine owns the userId -> []Sender registry and a single delivery
// worker. A single pond worker (MaxWorkers=1) is what gives FIFO,
// one-at-a-time delivery semantics even though pond's queue is
// itself just a buffered channel under the hood - the same structural
// reuse the teacher's workers.PoolManager makes for its own
// single-purpose pools.
type Engine struct {
	mu       sync.RWMutex
	sessions map[string][]Sender

	pool *pond.WorkerPool
}

// New creates an Engine with a bounded event queue of the given
// capacity (the spec's "bounded FIFO queue").
func New(queueCapacity int) *Engine {
	if queueCapacity <= 0 {
		queueCapacity = 1024
	}
	return &Engine{
		sessions: make(map[string][]Sender),
		pool:     pond.New(1, queueCapacity, pond.MinWorkers(1)),
	}
}

// Register binds a session to a userId once authentication succeeds.
func (e *Engine) Register(userID string, sender Sender) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.sessions[userID] {
		if s == sender {
			return
		}
	}
	e.sessions[userID] = append(e.sessions[userID], sender)
}

// Unregister removes a session from the registry, called on session
// termination regardless of whether authentication ever succeeded.
func (e *Engine) Unregister(userID string, sender Sender) {
	if userID == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	senders := e.sessions[userID]
	for i, s := range senders {
		if s == sender {
			e.sessions[userID] = append(senders[:i], senders[i+1:]...)
			break
		}
	}
	if len(e.sessions[userID]) == 0 {
		delete(e.sessions, userID)
	}
}

// Emit enqueues an event for asynchronous delivery on the engine's
// single worker. It does not wait for delivery, but when the queue is
// full it blocks until the worker frees a slot.
// Because the underlying pool has exactly one worker, two calls to
// Emit in program order A then B are dispatched in order A, B to any
// given recipient - the ordering guarantee spec §4.4 requires.
func (e *Engine) Emit(ev Event) {
	e.pool.Submit(func() {
		time.Sleep(deliveryDelay)
		e.deliver(ev)
	})
}

func (e *Engine) deliver(ev Event) {
	body := make([]byte, 0, len(ev.Prefix)+len(ev.Data))
	body = append(body, ev.Prefix...)
	body = append(body, ev.Data...)

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, userID := range ev.Recipients {
		for _, sender := range e.sessions[userID] {
			if err := sender.Send(body); err != nil {
				slog.Warn("event delivery failed", "user_id", userID, "error", err)
			}
		}
	}
}

// Shutdown stops the delivery worker, waiting for queued events to
// drain.
func (e *Engine) Shutdown() {
	e.pool.StopAndWait()
}
