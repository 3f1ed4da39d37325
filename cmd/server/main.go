// Command server is the HTTP/1.0 origin server: a fixed worker pool reads
// off a bounded queue fed by one accept loop, serving static files and CGI
// scripts with per-worker request statistics on every response.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/zep-us/dispatchd/internal/app"
	"github.com/zep-us/dispatchd/internal/config"
	"github.com/zep-us/dispatchd/pkg/logger"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: server <port> <threads> <queue_size>")
}

func main() {
	if len(os.Args) != 4 {
		usage()
		os.Exit(1)
	}

	port, err := strconv.Atoi(os.Args[1])
	if err != nil || port < 1 {
		usage()
		logger.Fatal("port must be a positive integer, got %q", os.Args[1])
	}

	threads, err := strconv.Atoi(os.Args[2])
	if err != nil || threads < 1 {
		usage()
		logger.Fatal("threads must be a positive integer, got %q", os.Args[2])
	}

	queueSize, err := strconv.Atoi(os.Args[3])
	if err != nil || queueSize < 1 {
		usage()
		logger.Fatal("queue_size must be a positive integer, got %q", os.Args[3])
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration: %v", err)
	}

	application, err := app.New(app.Args{Port: port, Threads: threads, QueueSize: queueSize}, cfg)
	if err != nil {
		logger.Fatal("failed to initialize server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("dispatchd starting: port=%d threads=%d queue_size=%d", port, threads, queueSize)

	if err := application.Run(ctx); err != nil {
		logger.Fatal("server error: %v", err)
	}
}
