package handler

import (
	"bufio"
	"fmt"
	"net"

	"github.com/zep-us/dispatchd/internal/stats"
	"github.com/zep-us/dispatchd/internal/worker"
	"github.com/zep-us/dispatchd/pkg/logger"
)

// writeOK writes a 200 response: status line, content headers, the
// statistics header block, and body, in that order. The statistics block
// supplies its own trailing blank line, so it both terminates the header
// section and separates it from the body.
func (h *Handler) writeOK(conn net.Conn, contentType string, body []byte, rec stats.Record) {
	w := bufio.NewWriter(conn)
	fmt.Fprintf(w, "HTTP/1.0 200 OK\r\n")
	fmt.Fprintf(w, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(w, "Content-Length: %d\r\n", len(body))
	w.Write(rec.HeaderBlock())
	w.Write(body)
	if err := w.Flush(); err != nil {
		logger.Warn("thread %d: write response: %v", rec.ThreadID, err)
	}
}

// writeError writes a non-2xx response. It still carries the full
// statistics header block — Stat-Thread-Count already reflects this
// request, Stat-Thread-Static/Dynamic/Post are read back unchanged since
// an error never bumps them.
func (h *Handler) writeError(conn net.Conn, base stats.Base, counters *worker.Counters, code int, statusText, message string) {
	body := []byte(fmt.Sprintf("<html><head><title>%d %s</title></head><body><h1>%d %s</h1><p>%s</p></body></html>",
		code, statusText, code, statusText, message))
	rec := stats.Record{
		Base:          base,
		ThreadStatic:  counters.Static.Load(),
		ThreadDynamic: counters.Dynamic.Load(),
		ThreadPost:    counters.Post.Load(),
	}

	w := bufio.NewWriter(conn)
	fmt.Fprintf(w, "HTTP/1.0 %d %s\r\n", code, statusText)
	fmt.Fprintf(w, "Content-Type: text/html\r\n")
	fmt.Fprintf(w, "Content-Length: %d\r\n", len(body))
	w.Write(rec.HeaderBlock())
	w.Write(body)
	if err := w.Flush(); err != nil {
		logger.Warn("thread %d: write error response: %v", base.ThreadID, err)
	}
}
