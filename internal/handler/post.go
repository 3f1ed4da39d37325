package handler

import (
	"github.com/zep-us/dispatchd/internal/queue"
	"github.com/zep-us/dispatchd/internal/stats"
	"github.com/zep-us/dispatchd/internal/worker"
)

// handlePost returns a snapshot of the in-memory request log as the
// response body. POST requests are served but are themselves never
// appended to the log — the log records GET history, not its own reads.
func (h *Handler) handlePost(e *queue.Entry, base stats.Base, counters *worker.Counters) worker.Kind {
	var body []byte
	if h.log != nil {
		body = h.log.Snapshot()
	}

	count := counters.Post.Add(1)
	rec := stats.Record{
		Base:          base,
		ThreadStatic:  counters.Static.Load(),
		ThreadDynamic: counters.Dynamic.Load(),
		ThreadPost:    count,
	}

	h.writeOK(e.Conn, "text/plain", body, rec)
	h.record("post")
	return worker.KindPost
}
