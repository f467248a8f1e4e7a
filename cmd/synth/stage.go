package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"agenix/internal/logging"
	"agenix/internal/metrics"
	"agenix/internal/store"
)

// stageFunc runs one stage and returns its counts for the ledger. Counts may
// be non-nil even when err is set.
type stageFunc func(ctx context.Context) (map[string]int, error)

// runStage executes fn with the metrics endpoint up (when configured) and
// records the outcome in the run ledger.
func runStage(ctx context.Context, name string, fn stageFunc) error {
	started := time.Now()
	timer := logging.StartTimer(logging.CategoryBoot, "stage "+name)

	counts, err := serveWhile(ctx, cfg.Metrics.Addr, fn)
	timer.Stop()

	run := store.Run{
		Stage:      name,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Counts:     counts,
	}
	if err != nil {
		run.Error = err.Error()
	}
	recordRun(ctx, run)
	return err
}

// serveWhile runs fn, serving /metrics on addr for its duration. An empty
// addr runs fn alone.
func serveWhile(ctx context.Context, addr string, fn stageFunc) (map[string]int, error) {
	if addr == "" {
		return fn(ctx)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	var counts map[string]int

	g.Go(func() error {
		logging.Boot("Serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-done:
		case <-gctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		defer close(done)
		var err error
		counts, err = fn(gctx)
		return err
	})

	err := g.Wait()
	return counts, err
}

// recordRun writes the ledger entry. Ledger problems are logged and never
// fail the stage.
func recordRun(ctx context.Context, run store.Run) {
	if !cfg.Ledger.Enabled {
		return
	}
	ledger, err := store.NewRunStore(cfg.Ledger.Path)
	if err != nil {
		logging.StoreWarn("run ledger unavailable: %v", err)
		return
	}
	defer ledger.Close()

	// The stage context may already be cancelled; the entry is still wanted.
	if _, err := ledger.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		logging.StoreWarn("failed to record %s run: %v", run.Stage, err)
	}
}
