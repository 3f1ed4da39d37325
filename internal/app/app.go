// Package app wires the origin listener, worker pool, handler, request
// log, metrics, and admin side channel into a single running process.
package app

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/zep-us/dispatchd/internal/admin"
	"github.com/zep-us/dispatchd/internal/clock"
	"github.com/zep-us/dispatchd/internal/config"
	"github.com/zep-us/dispatchd/internal/dispatcher"
	"github.com/zep-us/dispatchd/internal/handler"
	"github.com/zep-us/dispatchd/internal/metrics"
	"github.com/zep-us/dispatchd/internal/mimetable"
	"github.com/zep-us/dispatchd/internal/queue"
	"github.com/zep-us/dispatchd/internal/requestlog"
	"github.com/zep-us/dispatchd/internal/worker"
	"github.com/zep-us/dispatchd/pkg/logger"
)

// Args are the three mandatory positional CLI values. cmd/server parses
// and validates these before constructing an App — they are never sourced
// from config.toml.
type Args struct {
	Port      int
	Threads   int
	QueueSize int
}

// App owns every long-lived component of a running server.
type App struct {
	args      Args
	cfg       *config.Loader
	recorder  *metrics.Recorder
	readiness *atomic.Bool

	dispatcher *dispatcher.Dispatcher
	pool       *worker.Pool
	admin      *admin.Server
}

// New builds an App but does not start it.
func New(args Args, cfg *config.Loader) (*App, error) {
	sec := cfg.Current()

	reqLog := requestlog.New(sec.LogCap)
	mime := mimetable.New(sec.MimeOverrides)
	recorder := metrics.New()
	readiness := atomic.NewBool(false)

	h := handler.New(handler.Config{
		DocumentRoot: sec.DocumentRoot,
		CGIDir:       sec.CGIDir,
		CGITimeout:   sec.CGITimeout(),
	}, mime, reqLog, recorder)

	q := queue.New(args.QueueSize)
	pool := worker.New(q, args.Threads, h.Handle, clock.Real{})

	d, err := dispatcher.Listen(args.Port, q, clock.Real{}, recorder)
	if err != nil {
		return nil, err
	}

	adminSrv := admin.New(sec.AdminPort, readiness)

	return &App{
		args:       args,
		cfg:        cfg,
		recorder:   recorder,
		readiness:  readiness,
		dispatcher: d,
		pool:       pool,
		admin:      adminSrv,
	}, nil
}

// Run starts every component and blocks until one of them fails or ctx is
// cancelled. The origin listener and the admin server are independent
// failure domains: a fault in the admin side channel must never stop
// connections from being accepted on the origin port, so only the
// dispatcher's own error is treated as fatal to the group.
func (a *App) Run(ctx context.Context) error {
	a.pool.Start()
	logger.Info("worker pool started with %d workers", a.pool.WorkerCount())

	go a.reportPoolMetrics(ctx)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("origin listener bound to %s", a.dispatcher.Addr())
		a.readiness.Store(true)
		err := a.dispatcher.Serve()
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	g.Go(func() error {
		if err := a.admin.Serve(ctx); err != nil {
			logger.Warn("admin server exited: %v", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.readiness.Store(false)
		return a.dispatcher.Close()
	})

	return g.Wait()
}

// reportPoolMetrics periodically mirrors the worker pool's active-worker
// count into the metrics recorder until ctx is cancelled. Per-request
// counters are observed directly by the handler; this gauge is the one
// value only the pool itself can answer.
func (a *App) reportPoolMetrics(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.recorder.SetActiveWorkers(a.pool.ActiveWorkers())
		}
	}
}
