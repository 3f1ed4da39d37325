// Package worker implements the fixed-size pool of goroutines that drain
// the connection queue: each worker dequeues a connection, measures
// dispatch latency, invokes the request handler, updates its own
// single-writer counters, and closes the connection — recovering from any
// handler-level fault so the pool itself never terminates.
package worker

import (
	"runtime/debug"

	"go.uber.org/atomic"

	"github.com/zep-us/dispatchd/internal/clock"
	"github.com/zep-us/dispatchd/internal/queue"
	"github.com/zep-us/dispatchd/internal/stats"
	"github.com/zep-us/dispatchd/pkg/logger"
)

// Counters are one worker's single-writer request counters. They are
// stored as atomics solely so a metrics scrape running on a different
// goroutine may read them safely; the owning worker is still the only
// goroutine that ever increments them.
type Counters struct {
	Count   atomic.Int64
	Static  atomic.Int64
	Dynamic atomic.Int64
	Post    atomic.Int64
}

// Kind classifies how a completed 2xx request should be counted.
type Kind int

const (
	// KindError marks a non-2xx response: only Count is incremented.
	KindError Kind = iota
	KindStatic
	KindDynamic
	KindPost
)

// Handler processes one dequeued connection. It receives the stats Base
// pre-filled with arrival/dispatch/thread identity (Stat-Thread-Count
// already incremented for this request) and mutable access to the
// counters it may bump on success. The handler is responsible for
// incrementing the matching counter — Static, Dynamic, or Post — *before*
// reading it back into the Record it writes to the wire, and for leaving
// all three untouched on a non-2xx response. It returns the Kind of
// response it produced; the pool does not act on the returned value.
type Handler func(e *queue.Entry, base stats.Base, counters *Counters) Kind

// Pool is a fixed-size set of worker goroutines draining a queue.Queue.
type Pool struct {
	q       *queue.Queue
	handler Handler
	clock   clock.Clock

	counters []*Counters

	activeWorkers atomic.Int64
}

// New constructs a Pool of workerCount workers pulling from q, each
// invoking handler. workerCount must be >= 1.
func New(q *queue.Queue, workerCount int, handler Handler, c clock.Clock) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	if c == nil {
		c = clock.Real{}
	}
	p := &Pool{
		q:        q,
		handler:  handler,
		clock:    c,
		counters: make([]*Counters, workerCount),
	}
	for i := range p.counters {
		p.counters[i] = &Counters{}
	}
	return p
}

// WorkerCount returns the number of workers in the pool.
func (p *Pool) WorkerCount() int {
	return len(p.counters)
}

// ActiveWorkers returns how many workers are currently inside the handler,
// used by the metrics exporter's active-workers gauge.
func (p *Pool) ActiveWorkers() int64 {
	return p.activeWorkers.Load()
}

// Counters returns worker id's counters, for the metrics exporter. id must
// be in [0, WorkerCount).
func (p *Pool) Counters(id int) *Counters {
	return p.counters[id]
}

// Start spawns all worker goroutines. It does not block; call from main
// once, it never returns a handle to stop them because the specification
// carries no shutdown signal — the process exits by termination signal.
func (p *Pool) Start() {
	for i := range p.counters {
		go p.run(i)
	}
}

func (p *Pool) run(id int) {
	counters := p.counters[id]
	logger.Info("worker %d started", id)

	for {
		entry := p.q.Dequeue()
		dispatch := p.clock.Now().Sub(entry.Arrival)
		if dispatch < 0 {
			dispatch = 0
		}

		count := counters.Count.Add(1)
		base := stats.Base{
			Arrival:     entry.Arrival,
			Dispatch:    dispatch,
			ThreadID:    id,
			ThreadCount: count,
		}

		p.activeWorkers.Add(1)
		p.dispatchSafely(entry, base, counters, id)
		p.activeWorkers.Add(-1)

		if err := entry.Conn.Close(); err != nil {
			logger.Warn("worker %d: close connection: %v", id, err)
		}
	}
}

// dispatchSafely invokes the handler with panic recovery: a fault inside
// the handler must never take down the worker goroutine.
func (p *Pool) dispatchSafely(entry *queue.Entry, base stats.Base, counters *Counters, id int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker %d: handler panic: %v\n%s", id, r, debug.Stack())
		}
	}()
	p.handler(entry, base, counters)
}
