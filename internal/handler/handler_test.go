package handler

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/zep-us/dispatchd/internal/mimetable"
	"github.com/zep-us/dispatchd/internal/queue"
	"github.com/zep-us/dispatchd/internal/requestlog"
	"github.com/zep-us/dispatchd/internal/stats"
	"github.com/zep-us/dispatchd/internal/worker"
)

func newBase() stats.Base {
	return stats.Base{
		Arrival:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Dispatch:    10 * time.Millisecond,
		ThreadID:    2,
		ThreadCount: 1,
	}
}

func newHandler(t *testing.T, docRoot, cgiDir string) *Handler {
	t.Helper()
	return New(Config{DocumentRoot: docRoot, CGIDir: cgiDir, CGITimeout: time.Second},
		mimetable.New(nil), requestlog.New(0), nil)
}

// pipeEntry returns a queue.Entry wired to one end of a net.Pipe, keeping
// the other end for the test to write a request into and read a response
// back from.
func pipeEntry() (*queue.Entry, net.Conn) {
	server, client := net.Pipe()
	return &queue.Entry{Conn: server, Arrival: time.Now()}, client
}

func readResponse(t *testing.T, client net.Conn) string {
	t.Helper()
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1<<16)
	var sb strings.Builder
	for {
		n, err := client.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return sb.String()
}

func TestHandleGetServesStaticFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := newHandler(t, dir, "")
	entry, client := pipeEntry()
	counters := &worker.Counters{}

	done := make(chan worker.Kind, 1)
	go func() { k := h.Handle(entry, newBase(), counters); entry.Conn.Close(); done <- k }()

	client.Write([]byte("GET /index.html HTTP/1.0\r\n\r\n"))
	resp := readResponse(t, client)

	kind := <-done
	if kind != worker.KindStatic {
		t.Fatalf("kind = %v, want KindStatic", kind)
	}
	if !strings.HasPrefix(resp, "HTTP/1.0 200 OK") {
		t.Fatalf("unexpected status:\n%s", resp)
	}
	if !strings.Contains(resp, "Content-Type: text/html") {
		t.Errorf("missing content type:\n%s", resp)
	}
	if !strings.Contains(resp, "hello") {
		t.Errorf("missing body:\n%s", resp)
	}
	if counters.Static.Load() != 1 {
		t.Errorf("static counter = %d, want 1", counters.Static.Load())
	}
}

func TestHandleGetMissingFileIs404AndDoesNotBumpCounters(t *testing.T) {
	dir := t.TempDir()
	h := newHandler(t, dir, "")
	entry, client := pipeEntry()
	counters := &worker.Counters{}

	done := make(chan worker.Kind, 1)
	go func() { k := h.Handle(entry, newBase(), counters); entry.Conn.Close(); done <- k }()

	client.Write([]byte("GET /missing.html HTTP/1.0\r\n\r\n"))
	resp := readResponse(t, client)

	if kind := <-done; kind != worker.KindError {
		t.Fatalf("kind = %v, want KindError", kind)
	}
	if !strings.HasPrefix(resp, "HTTP/1.0 404 Not Found") {
		t.Fatalf("unexpected status:\n%s", resp)
	}
	if counters.Static.Load() != 0 || counters.Dynamic.Load() != 0 || counters.Post.Load() != 0 {
		t.Errorf("404 must not bump kind counters, got %+v", counters)
	}
	if !strings.Contains(resp, "Stat-Thread-Id:: 2") {
		t.Errorf("error response must still carry stats headers:\n%s", resp)
	}
}

func TestHandleGetRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(filepath.Dir(dir), "secret.txt"), []byte("nope"), 0o644); err != nil {
		t.Skip("cannot create sibling fixture:", err)
	}
	h := newHandler(t, dir, "")
	entry, client := pipeEntry()
	counters := &worker.Counters{}

	done := make(chan worker.Kind, 1)
	go func() { k := h.Handle(entry, newBase(), counters); entry.Conn.Close(); done <- k }()

	client.Write([]byte("GET /../secret.txt HTTP/1.0\r\n\r\n"))
	resp := readResponse(t, client)

	if kind := <-done; kind != worker.KindError {
		t.Fatalf("kind = %v, want KindError", kind)
	}
	if !strings.HasPrefix(resp, "HTTP/1.0 404 Not Found") {
		t.Fatalf("traversal attempt should 404, got:\n%s", resp)
	}
}

func TestHandleUnsupportedMethodIs501(t *testing.T) {
	dir := t.TempDir()
	h := newHandler(t, dir, "")
	entry, client := pipeEntry()
	counters := &worker.Counters{}

	done := make(chan worker.Kind, 1)
	go func() { k := h.Handle(entry, newBase(), counters); entry.Conn.Close(); done <- k }()

	client.Write([]byte("PUT /index.html HTTP/1.0\r\n\r\n"))
	resp := readResponse(t, client)

	if kind := <-done; kind != worker.KindError {
		t.Fatalf("kind = %v, want KindError", kind)
	}
	if !strings.HasPrefix(resp, "HTTP/1.0 501 Not Implemented") {
		t.Fatalf("unexpected status:\n%s", resp)
	}
}

func TestHandleMalformedRequestLineIs501(t *testing.T) {
	dir := t.TempDir()
	h := newHandler(t, dir, "")
	entry, client := pipeEntry()
	counters := &worker.Counters{}

	done := make(chan worker.Kind, 1)
	go func() { k := h.Handle(entry, newBase(), counters); entry.Conn.Close(); done <- k }()

	client.Write([]byte("not a request\r\n\r\n"))
	resp := readResponse(t, client)

	if kind := <-done; kind != worker.KindError {
		t.Fatalf("kind = %v, want KindError", kind)
	}
	if !strings.HasPrefix(resp, "HTTP/1.0 501") {
		t.Fatalf("unexpected status:\n%s", resp)
	}
}

func TestHandleGetRunsCGIForExecutableUnderCGIDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures require a POSIX shell")
	}
	docRoot := t.TempDir()
	cgiDir := filepath.Join(docRoot, "cgi-bin")
	if err := os.Mkdir(cgiDir, 0o755); err != nil {
		t.Fatal(err)
	}
	script := filepath.Join(cgiDir, "greet.cgi")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho \"<p>hi from cgi</p>\"\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	h := newHandler(t, docRoot, cgiDir)
	entry, client := pipeEntry()
	counters := &worker.Counters{}

	done := make(chan worker.Kind, 1)
	go func() { k := h.Handle(entry, newBase(), counters); entry.Conn.Close(); done <- k }()

	client.Write([]byte("GET /cgi-bin/greet.cgi HTTP/1.0\r\n\r\n"))
	resp := readResponse(t, client)

	if kind := <-done; kind != worker.KindDynamic {
		t.Fatalf("kind = %v, want KindDynamic", kind)
	}
	if !strings.Contains(resp, "hi from cgi") {
		t.Fatalf("response missing cgi output:\n%s", resp)
	}
	if counters.Dynamic.Load() != 1 {
		t.Errorf("dynamic counter = %d, want 1", counters.Dynamic.Load())
	}
}

func TestHandleGetExecutableOutsideCGIDirIs404(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures require a POSIX shell")
	}
	docRoot := t.TempDir()
	cgiDir := filepath.Join(docRoot, "cgi-bin")
	if err := os.Mkdir(cgiDir, 0o755); err != nil {
		t.Fatal(err)
	}
	stray := filepath.Join(docRoot, "stray.cgi")
	if err := os.WriteFile(stray, []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	h := newHandler(t, docRoot, cgiDir)
	entry, client := pipeEntry()
	counters := &worker.Counters{}

	done := make(chan worker.Kind, 1)
	go func() { k := h.Handle(entry, newBase(), counters); entry.Conn.Close(); done <- k }()

	client.Write([]byte("GET /stray.cgi HTTP/1.0\r\n\r\n"))
	resp := readResponse(t, client)

	if kind := <-done; kind != worker.KindError {
		t.Fatalf("kind = %v, want KindError", kind)
	}
	if !strings.HasPrefix(resp, "HTTP/1.0 404") {
		t.Fatalf("executable outside cgi dir should 404, got:\n%s", resp)
	}
}

func TestHandlePostReturnsLogSnapshotWithoutLoggingItself(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.html"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := newHandler(t, dir, "")
	counters := &worker.Counters{}

	getEntry, getClient := pipeEntry()
	doneGet := make(chan worker.Kind, 1)
	go func() { k := h.Handle(getEntry, newBase(), counters); getEntry.Conn.Close(); doneGet <- k }()
	getClient.Write([]byte("GET /a.html HTTP/1.0\r\n\r\n"))
	readResponse(t, getClient)
	<-doneGet

	postEntry, postClient := pipeEntry()
	donePost := make(chan worker.Kind, 1)
	base2 := newBase()
	base2.ThreadCount = 2
	go func() { k := h.Handle(postEntry, base2, counters); postEntry.Conn.Close(); donePost <- k }()
	postClient.Write([]byte("POST /anything HTTP/1.0\r\n\r\n"))
	resp := readResponse(t, postClient)

	if kind := <-donePost; kind != worker.KindPost {
		t.Fatalf("kind = %v, want KindPost", kind)
	}
	_, body, found := strings.Cut(resp, "\r\n\r\n")
	if !found {
		t.Fatalf("response had no header/body separator:\n%s", resp)
	}
	if !strings.Contains(body, "Stat-Thread-Static:: 1") {
		t.Errorf("log snapshot should include the prior GET's block:\n%s", resp)
	}
	// Exactly one block should be present in the body — the POST must
	// not have appended anything of its own to the log.
	if strings.Count(body, "Stat-Thread-Id::") != 1 {
		t.Errorf("expected exactly one logged block in the POST body, got:\n%s", body)
	}
}
