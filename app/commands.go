package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dwatch/displacement-watch/app/api"
	"github.com/dwatch/displacement-watch/app/cfg"
	"github.com/dwatch/displacement-watch/app/database"
	"github.com/dwatch/displacement-watch/app/feed"
	"github.com/dwatch/displacement-watch/app/metrics"
	"github.com/dwatch/displacement-watch/app/pipeline"
	"github.com/dwatch/displacement-watch/app/querypack"
	"github.com/dwatch/displacement-watch/app/refine"
	"github.com/dwatch/displacement-watch/app/tasks"
)

type app struct {
	cfg        *cfg.Cfg
	items      *database.ItemRepositoryImpl
	selections *database.SelectionRepositoryImpl
	reports    *database.ReportRepositoryImpl
}

func newApp(appCfg *cfg.Cfg, db *database.DB) *app {
	return &app{
		cfg:        appCfg,
		items:      database.NewItemRepository(db),
		selections: database.NewSelectionRepository(db),
		reports:    database.NewReportRepository(db),
	}
}

// sourceLoader reads the active query pack on every call and builds its
// sources.
func (a *app) sourceLoader(maxGDELT int) pipeline.SourceLoader {
	return func() (*pipeline.SourceSet, error) {
		qp, err := querypack.Load(a.cfg.QueryPackPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load query pack: %w", err)
		}

		slog.Debug("Query pack loaded",
			"path", a.cfg.QueryPackPath,
			"version", qp.Version,
			"keywords", len(qp.Keywords),
			"feeds", len(qp.RSSFeeds))

		return &pipeline.SourceSet{
			Sources: buildSources(qp, a.cfg, maxGDELT),
			MaxTop:  qp.MaxTop(),
		}, nil
	}
}

// newRunner wires a runner that reloads the query pack for each run. A nil
// recorder disables metrics.
func (a *app) newRunner(maxGDELT int, recorder pipeline.Recorder) *pipeline.ReloadingRunner {
	return pipeline.NewReloadingRunner(a.sourceLoader(maxGDELT), a.items, a.selections, a.reports, recorder)
}

// readPipeline serves stored data only; it never collects.
func (a *app) readPipeline() *pipeline.Pipeline {
	return pipeline.New(nil, a.items, a.selections, a.reports, nil)
}

func (a *app) runDaily(ctx context.Context, opts cfg.RunDailyCfg) error {
	runner := a.newRunner(opts.MaxGDELT, nil)
	now := time.Now().UTC()

	summary, err := runner.RunDaily(ctx, now, pipeline.Options{SinceHours: opts.SinceHours})
	if err != nil {
		return err
	}

	if err := runner.SaveReportMeta(ctx, summary, now); err != nil {
		return err
	}

	if opts.Refine {
		if err := refine.NewRunner(a.items, a.reports, a.cfg.QueryPackPath, a.cfg.OutputDir).Propose(ctx, now); err != nil {
			return err
		}
	}

	return printJSON(map[string]any{
		"run_id":         summary.RunID,
		"date":           summary.Date,
		"sources":        len(summary.Sources),
		"failed_sources": summary.FailedSources,
		"collected":      summary.Collected,
		"unique":         summary.Unique,
		"stored":         summary.Stored,
		"window_items":   summary.WindowItems,
		"selected":       summary.Selected,
	})
}

func (a *app) printTrends(ctx context.Context) error {
	snapshot, err := a.readPipeline().Trends(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	return printJSON(snapshot)
}

func (a *app) printSelection(ctx context.Context, opts cfg.SelectionCfg) error {
	p := a.readPipeline()

	var (
		date     = opts.Date
		selected []database.SelectedItem
		err      error
	)
	if date == "" {
		date, selected, err = p.LatestSelection(ctx)
	} else {
		selected, err = p.SelectedItems(ctx, date)
	}
	if err != nil {
		return err
	}

	if opts.Format == "rss" {
		rss, err := feed.NewGenerator().Run(feed.Channel{
			Title:     "Displacement Watch: top developments " + date,
			Generator: "Displacement Watch " + a.cfg.Version,
		}, selected)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(os.Stdout, rss)
		return err
	}

	return printJSON(api.NewSelectionResponse(date, selected))
}

func (a *app) propose(ctx context.Context) error {
	return refine.NewRunner(a.items, a.reports, a.cfg.QueryPackPath, a.cfg.OutputDir).Propose(ctx, time.Now().UTC())
}

func (a *app) promote(opts cfg.PromoteCfg) error {
	return refine.Promote(opts.Source, a.cfg.QueryPackPath)
}

func (a *app) serve(ctx context.Context, opts cfg.ServeCfg) error {
	recorder := metrics.New()

	if _, err := querypack.Load(a.cfg.QueryPackPath); err != nil {
		return fmt.Errorf("failed to load query pack: %w", err)
	}

	runner := a.newRunner(opts.RunDaily.MaxGDELT, recorder)
	reader := a.readPipeline()
	runOptions := pipeline.Options{SinceHours: opts.RunDaily.SinceHours}

	var proposer tasks.Proposer
	if opts.RunDaily.Refine {
		proposer = refine.NewRunner(a.items, a.reports, a.cfg.QueryPackPath, a.cfg.OutputDir)
	}

	slog.Info("Starting background scheduler", "interval", opts.SchedulerInterval, "run_on_start", opts.RunOnStart)
	scheduler := tasks.NewScheduler(runner, proposer, tasks.Config{
		Interval:   opts.SchedulerInterval,
		RunOnStart: opts.RunOnStart,
		RunOptions: runOptions,
		Refine:     opts.RunDaily.Refine,
	})
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(reader, a.items, a.reports, api.HandlerOptions{
		Runner:     runner,
		RunOptions: runOptions,
		Scheduler:  scheduler,
		Metrics:    recorder.Handler(),
		BaseURL:    opts.BaseURL,
		Version:    a.cfg.Version,
	})

	httpServer := &http.Server{
		Addr:         ":" + opts.Port,
		Handler:      api.NewServer(handler, opts.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", opts.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-serverErrChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
