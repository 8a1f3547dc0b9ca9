package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dwatch/displacement-watch/app/cfg"
	"github.com/dwatch/displacement-watch/app/database"
	"github.com/dwatch/displacement-watch/app/feed"
	"github.com/dwatch/displacement-watch/app/gdelt"
	"github.com/dwatch/displacement-watch/app/item"
	"github.com/dwatch/displacement-watch/app/pipeline"
	"github.com/dwatch/displacement-watch/app/querypack"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Could not load .env file", "error", err)
	}

	appCfg, err := cfg.Load(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if appCfg == nil {
		return
	}

	setupLogger(appCfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, appCfg); err != nil {
		slog.Error("Command failed", "command", appCfg.Command, "error", err)
		os.Exit(1)
	}
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func run(ctx context.Context, appCfg *cfg.Cfg) error {
	slog.Debug("Configuration loaded", "command", appCfg.Command, "db", appCfg.DBPath, "query_pack", appCfg.QueryPackPath, "version", appCfg.Version)

	db, err := openDatabase(appCfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	app := newApp(appCfg, db)

	switch appCfg.Command {
	case cfg.CommandInitDB:
		slog.Info("Database ready", "path", appCfg.DBPath)
		return nil
	case cfg.CommandRunDaily:
		return app.runDaily(ctx, appCfg.RunDaily)
	case cfg.CommandTrends:
		return app.printTrends(ctx)
	case cfg.CommandSelect:
		return app.printSelection(ctx, appCfg.Selection)
	case cfg.CommandPropose:
		return app.propose(ctx)
	case cfg.CommandPromote:
		return app.promote(appCfg.Promote)
	case cfg.CommandServe:
		return app.serve(ctx, appCfg.Serve)
	default:
		return fmt.Errorf("unknown command %q", appCfg.Command)
	}
}

func openDatabase(path string) (*database.DB, error) {
	db, err := database.NewConnection(path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Database migrated", "path", path, "version", version, "dirty", dirty)

	return db, nil
}

// buildSources creates one source per configured feed, in pack order, then
// the event index when a query is configured.
func buildSources(qp *querypack.QueryPack, appCfg *cfg.Cfg, maxGDELT int) []pipeline.Source {
	filterer := feed.NewFilterer(qp.Keywords, qp.NegativeKeywords)
	tiers := qp.Tiers()

	httpClient := &http.Client{
		Timeout: appCfg.FeedTimeout + 10*time.Second,
	}

	parser := feed.NewParser()
	feedBuilder := feed.NewBuilder(filterer, tiers, item.SourceFeed)

	sources := make([]pipeline.Source, 0, len(qp.RSSFeeds)+1)
	for _, f := range qp.RSSFeeds {
		sources = append(sources, feed.NewSource(f.Name, f.URL, httpClient, parser, feedBuilder, appCfg.UserAgent, appCfg.FeedTimeout))
	}

	if qp.GDELTQuery != "" {
		gdeltClient := &http.Client{Timeout: gdelt.DefaultTimeout}
		indexBuilder := feed.NewBuilder(filterer, tiers, item.SourceIndex)
		sources = append(sources, gdelt.NewClient(appCfg.GDELTEndpoint, qp.GDELTQuery, maxGDELT, gdeltClient, indexBuilder, appCfg.UserAgent))
	} else {
		slog.Warn("No GDELT query configured, event index disabled")
	}

	slog.Debug("Sources configured", "feeds", len(qp.RSSFeeds), "total", len(sources))

	return sources
}
