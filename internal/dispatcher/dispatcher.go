// Package dispatcher owns the HTTP/1.0 origin listener: it accepts raw TCP
// connections, stamps each with an arrival timestamp before the connection
// ever touches the queue, and hands it to the bounded work queue for a
// worker to pick up.
package dispatcher

import (
	"net"
	"strconv"

	"github.com/zep-us/dispatchd/internal/clock"
	"github.com/zep-us/dispatchd/internal/queue"
)

// QueueDepthObserver receives the queue's occupancy after every enqueue,
// for the metrics exporter. A nil observer is valid.
type QueueDepthObserver interface {
	SetQueueDepth(n int)
}

// Dispatcher accepts connections on a net.Listener and enqueues them.
type Dispatcher struct {
	ln       net.Listener
	q        *queue.Queue
	clock    clock.Clock
	observer QueueDepthObserver
}

// New wraps an already-bound listener. c and observer may be nil.
func New(ln net.Listener, q *queue.Queue, c clock.Clock, observer QueueDepthObserver) *Dispatcher {
	if c == nil {
		c = clock.Real{}
	}
	return &Dispatcher{ln: ln, q: q, clock: c, observer: observer}
}

// Listen binds port with a TCP listener and returns a Dispatcher over it.
func Listen(port int, q *queue.Queue, c clock.Clock, observer QueueDepthObserver) (*Dispatcher, error) {
	ln, err := net.Listen("tcp", portAddr(port))
	if err != nil {
		return nil, err
	}
	return New(ln, q, c, observer), nil
}

// Addr returns the listener's bound address.
func (d *Dispatcher) Addr() net.Addr {
	return d.ln.Addr()
}

// Serve accepts connections until the listener is closed, stamping and
// enqueueing each one. It returns the error that ended the loop — nil is
// never returned, since the only way out is a listener error (including
// the expected one from Close during shutdown).
func (d *Dispatcher) Serve() error {
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return err
		}

		arrival := d.clock.Now()
		d.q.Enqueue(&queue.Entry{Conn: conn, Arrival: arrival})

		if d.observer != nil {
			d.observer.SetQueueDepth(d.q.Len())
		}
	}
}

// Close stops the listener, unblocking a pending Accept in Serve.
func (d *Dispatcher) Close() error {
	return d.ln.Close()
}

func portAddr(port int) string {
	return net.JoinHostPort("", strconv.Itoa(port))
}
