// Package handler implements the per-connection request handler: it reads
// one HTTP/1.0 request line and header block off a raw net.Conn,
// classifies it as static, dynamic, or log, and writes a status line,
// content headers, the statistics header block, and a body.
package handler

import (
	"bufio"
	"io"
	"net"
	"strings"
	"time"

	"github.com/zep-us/dispatchd/internal/cgi"
	"github.com/zep-us/dispatchd/internal/mimetable"
	"github.com/zep-us/dispatchd/internal/queue"
	"github.com/zep-us/dispatchd/internal/requestlog"
	"github.com/zep-us/dispatchd/internal/stats"
	"github.com/zep-us/dispatchd/internal/worker"
	"github.com/zep-us/dispatchd/pkg/logger"
)

// maxHeaderBytes bounds the request line + header block a single
// connection may send before the handler gives up and responds 501.
const maxHeaderBytes = 8 << 10

// Recorder receives metrics observations from the handler. Implementations
// must be safe for concurrent use by every worker. A nil Recorder is
// valid — observations are simply skipped.
type Recorder interface {
	IncRequests(kind string)
	ObserveDispatch(d time.Duration)
}

// Config controls document lookup and CGI execution.
type Config struct {
	// DocumentRoot is the directory GET paths resolve against.
	DocumentRoot string
	// CGIDir, if non-empty, restricts dynamic dispatch to executables
	// under this directory (resolved relative to DocumentRoot if not
	// absolute). Empty means any executable regular file under
	// DocumentRoot is eligible, matching the distilled specification.
	CGIDir string
	// CGITimeout bounds a single CGI invocation. Zero uses cgi.DefaultTimeout.
	CGITimeout time.Duration
}

// Handler implements worker.Handler against a document root, MIME table,
// and request log.
type Handler struct {
	cfg      Config
	mime     *mimetable.Table
	log      *requestlog.Log
	recorder Recorder
}

// New constructs a Handler. recorder may be nil.
func New(cfg Config, mime *mimetable.Table, log *requestlog.Log, recorder Recorder) *Handler {
	return &Handler{cfg: cfg, mime: mime, log: log, recorder: recorder}
}

// Handle implements worker.Handler.
func (h *Handler) Handle(e *queue.Entry, base stats.Base, counters *worker.Counters) worker.Kind {
	if h.recorder != nil {
		h.recorder.ObserveDispatch(base.Dispatch)
	}

	req, err := readRequest(e.Conn)
	if err != nil {
		logger.Warn("thread %d: malformed request from %s: %v", base.ThreadID, remoteAddr(e.Conn), err)
		h.writeError(e.Conn, base, counters, 501, "Not Implemented", "The request could not be parsed.")
		h.record("error")
		return worker.KindError
	}

	switch req.method {
	case "GET":
		return h.handleGet(e, base, counters, req)
	case "POST":
		return h.handlePost(e, base, counters)
	default:
		logger.Warn("thread %d: unsupported method %q from %s", base.ThreadID, req.method, remoteAddr(e.Conn))
		h.writeError(e.Conn, base, counters, 501, "Not Implemented", "Method "+req.method+" is not implemented.")
		h.record("error")
		return worker.KindError
	}
}

func (h *Handler) record(kind string) {
	if h.recorder != nil {
		h.recorder.IncRequests(kind)
	}
}

func remoteAddr(c net.Conn) string {
	if c == nil || c.RemoteAddr() == nil {
		return "unknown"
	}
	return c.RemoteAddr().String()
}

// request is the parsed request line; headers beyond what classification
// needs are not retained, since the specification's wire protocol carries
// no request-body semantics worth preserving.
type request struct {
	method      string
	path        string
	queryString string
	version     string
}

func readRequest(conn net.Conn) (request, error) {
	r := bufio.NewReaderSize(io.LimitReader(conn, maxHeaderBytes), maxHeaderBytes)

	line, err := readLimitedLine(r)
	if err != nil {
		return request{}, err
	}
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return request{}, errMalformed("request line must be 'METHOD URI VERSION'")
	}

	uri := fields[1]
	path, query, _ := strings.Cut(uri, "?")

	req := request{method: fields[0], path: path, queryString: query, version: fields[2]}

	// Drain headers up to the blank line; values aren't needed for
	// classification or response generation.
	for {
		hline, err := readLimitedLine(r)
		if err != nil {
			return request{}, err
		}
		if hline == "" {
			break
		}
	}

	return req, nil
}

type errMalformed string

func (e errMalformed) Error() string { return string(e) }

func readLimitedLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (h *Handler) cgiTimeout() time.Duration {
	if h.cfg.CGITimeout > 0 {
		return h.cfg.CGITimeout
	}
	return cgi.DefaultTimeout
}
