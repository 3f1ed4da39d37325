// Package cgi spawns a dynamic-request executable using the traditional
// CGI/1.1 environment convention, captures its standard output, and
// guarantees the child is reaped before returning — even when it is
// killed for exceeding its execution timeout.
package cgi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// DefaultTimeout bounds how long a single CGI invocation may run before it
// is killed. A runaway script would otherwise pin a worker goroutine
// forever, which is a resource leak distinct from the accepted "slow
// client" simplification at the connection level.
const DefaultTimeout = 5 * time.Second

// Request carries the CGI/1.1 environment fields the handler has already
// parsed out of the request line.
type Request struct {
	ScriptPath  string
	QueryString string
	Method      string
}

// Result is the outcome of running a CGI script.
type Result struct {
	Stdout   []byte
	ExitCode int
}

// Run executes req.ScriptPath with a CGI/1.1 environment, waits for it to
// exit (or kills it after timeout, still waiting afterward to reap it),
// and returns its captured stdout.
//
// A failure to start the process at all, or a timeout, is reported as an
// error — the handler maps both to 404 per the specification. A non-zero
// exit of a successfully started process is not an error: Result.ExitCode
// carries it and Result.Stdout is still returned.
func Run(ctx context.Context, req Request, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, req.ScriptPath)
	cmd.Env = []string{
		"GATEWAY_INTERFACE=CGI/1.1",
		"SERVER_PROTOCOL=HTTP/1.0",
		"REQUEST_METHOD=" + req.Method,
		"SCRIPT_NAME=" + req.ScriptPath,
		"QUERY_STRING=" + req.QueryString,
	}

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	// Without a WaitDelay, Wait keeps waiting for stdout to close, which a
	// grandchild of the killed script can hold open long after the timeout.
	cmd.WaitDelay = 500 * time.Millisecond

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return Result{}, fmt.Errorf("cgi: %s exceeded %v timeout: %w", req.ScriptPath, timeout, ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The child started and exited non-zero: not an error at this
			// layer, its stdout still counts as the response body.
			return Result{Stdout: stdout.Bytes(), ExitCode: exitErr.ExitCode()}, nil
		}
		return Result{}, fmt.Errorf("cgi: failed to run %s: %w", req.ScriptPath, err)
	}

	return Result{Stdout: stdout.Bytes(), ExitCode: 0}, nil
}
