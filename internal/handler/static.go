package handler

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/zep-us/dispatchd/internal/cgi"
	"github.com/zep-us/dispatchd/internal/queue"
	"github.com/zep-us/dispatchd/internal/stats"
	"github.com/zep-us/dispatchd/internal/worker"
	"github.com/zep-us/dispatchd/pkg/logger"
)

const executableBits = 0o111

func (h *Handler) handleGet(e *queue.Entry, base stats.Base, counters *worker.Counters, req request) worker.Kind {
	resolved, ok := h.resolvePath(req.path)
	if !ok {
		h.writeError(e.Conn, base, counters, 404, "Not Found", "The requested path does not exist.")
		h.record("error")
		return worker.KindError
	}

	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		h.writeError(e.Conn, base, counters, 404, "Not Found", "The requested path does not exist.")
		h.record("error")
		return worker.KindError
	}

	if info.Mode().Perm()&executableBits != 0 {
		if !h.cgiEligible(resolved) {
			h.writeError(e.Conn, base, counters, 404, "Not Found", "The requested resource is not servable.")
			h.record("error")
			return worker.KindError
		}
		return h.handleDynamic(e, base, counters, req, resolved)
	}

	return h.handleStatic(e, base, counters, resolved)
}

// resolvePath joins reqPath onto the document root. reqPath is cleaned as
// an absolute path first, so leading ../ segments are clamped at the root
// rather than escaping it, and the result is rejected if it still falls
// outside the root. Symlinks are not resolved, so a symlink inside the
// root may still point elsewhere.
func (h *Handler) resolvePath(reqPath string) (string, bool) {
	root := filepath.Clean(h.cfg.DocumentRoot)
	clean := filepath.Clean("/" + reqPath)
	joined := filepath.Join(root, clean)

	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", false
	}
	return joined, true
}

func (h *Handler) cgiEligible(resolved string) bool {
	if h.cfg.CGIDir == "" {
		return true
	}
	dir := h.cfg.CGIDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(h.cfg.DocumentRoot, dir)
	}
	dir = filepath.Clean(dir)
	return resolved == dir || strings.HasPrefix(resolved, dir+string(filepath.Separator))
}

func (h *Handler) handleStatic(e *queue.Entry, base stats.Base, counters *worker.Counters, resolved string) worker.Kind {
	body, err := os.ReadFile(resolved)
	if err != nil {
		logger.Warn("thread %d: read %s: %v", base.ThreadID, resolved, err)
		h.writeError(e.Conn, base, counters, 404, "Not Found", "The requested path could not be read.")
		h.record("error")
		return worker.KindError
	}

	count := counters.Static.Add(1)
	rec := stats.Record{
		Base:          base,
		ThreadStatic:  count,
		ThreadDynamic: counters.Dynamic.Load(),
		ThreadPost:    counters.Post.Load(),
	}

	contentType := h.mime.Lookup(filepath.Ext(resolved))
	h.writeOK(e.Conn, contentType, body, rec)
	h.record("static")
	h.appendLog(rec)
	return worker.KindStatic
}

func (h *Handler) handleDynamic(e *queue.Entry, base stats.Base, counters *worker.Counters, req request, resolved string) worker.Kind {
	res, err := cgi.Run(context.Background(), cgi.Request{
		ScriptPath:  resolved,
		QueryString: req.queryString,
		Method:      req.method,
	}, h.cgiTimeout())
	if err != nil {
		logger.Warn("thread %d: cgi %s: %v", base.ThreadID, resolved, err)
		h.writeError(e.Conn, base, counters, 404, "Not Found", "The dynamic resource could not be executed.")
		h.record("error")
		return worker.KindError
	}

	count := counters.Dynamic.Add(1)
	rec := stats.Record{
		Base:          base,
		ThreadStatic:  counters.Static.Load(),
		ThreadDynamic: count,
		ThreadPost:    counters.Post.Load(),
	}

	h.writeOK(e.Conn, "text/html", res.Stdout, rec)
	h.record("dynamic")
	h.appendLog(rec)
	return worker.KindDynamic
}

func (h *Handler) appendLog(rec stats.Record) {
	if h.log != nil {
		h.log.Append(rec.HeaderBlock())
	}
}
