// Package stats formats the per-request statistics record into the
// Stat-* header block that is emitted on every response and appended,
// verbatim, to the in-memory request log.
package stats

import (
	"fmt"
	"time"
)

// Base is the portion of a stats Record the worker fills in before ever
// invoking the handler: arrival/dispatch timing, worker identity, and the
// inclusive request count. The handler completes it into a Record once it
// knows — and has applied — this request's classification.
type Base struct {
	Arrival     time.Time
	Dispatch    time.Duration
	ThreadID    int
	ThreadCount int64
}

// Record holds the full set of timestamps and per-worker counters
// attached to one completed request, ready to render as a header block.
// ThreadStatic/ThreadDynamic/ThreadPost must already reflect this
// request's own increment when it was a successful response of that
// kind — the handler is responsible for reading them after bumping the
// matching counter, not before.
type Record struct {
	Base
	ThreadStatic  int64
	ThreadDynamic int64
	ThreadPost    int64
}

// timeval renders a seconds/microseconds pair as "<seconds>.<microseconds>",
// matching the %ld.%06ld format the wire protocol inherits from the C
// timeval convention.
func timeval(seconds, microseconds int64) string {
	return fmt.Sprintf("%d.%06d", seconds, microseconds)
}

func arrivalTimeval(t time.Time) string {
	return timeval(t.Unix(), int64(t.Nanosecond())/1000)
}

func durationTimeval(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return timeval(int64(d/time.Second), int64(d%time.Second)/1000)
}

// HeaderBlock builds the exact CRLF-delimited bytes of the Stat-* header
// group for this record, including the trailing blank line. This is the
// representation written to the wire and the representation appended to
// the request log — the two must be byte-identical.
func (r Record) HeaderBlock() []byte {
	s := fmt.Sprintf(
		"Stat-Req-Arrival:: %s\r\n"+
			"Stat-Req-Dispatch:: %s\r\n"+
			"Stat-Thread-Id:: %d\r\n"+
			"Stat-Thread-Count:: %d\r\n"+
			"Stat-Thread-Static:: %d\r\n"+
			"Stat-Thread-Dynamic:: %d\r\n"+
			"Stat-Thread-Post:: %d\r\n"+
			"\r\n",
		arrivalTimeval(r.Arrival),
		durationTimeval(r.Dispatch),
		r.ThreadID,
		r.ThreadCount,
		r.ThreadStatic,
		r.ThreadDynamic,
		r.ThreadPost,
	)
	return []byte(s)
}
