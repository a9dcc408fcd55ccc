package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/oklog/ulid/v2"

	"github.com/you/disdrop/app/dedupe"
	"github.com/you/disdrop/app/discord"
	"github.com/you/disdrop/app/group"
	"github.com/you/disdrop/app/relay"
	"github.com/you/disdrop/app/send"
	"github.com/you/disdrop/app/storage"
	"github.com/you/disdrop/pkg/logger"
)

var opts struct {
	FromURL string `long:"from" required:"true" description:"source channel URL"`
	ToURL   string `long:"to" required:"true" description:"destination channel URL"`

	Token     string `long:"token" env:"DISCORD_TOKEN" required:"true" description:"discord token"`
	TokenType string `long:"token-type" env:"DISCORD_TOKEN_TYPE" default:"bot" choice:"bot" choice:"user" description:"how the token is presented to the API"`

	Staging string `long:"staging" default:"./.disdrop-cache" description:"directory for downloaded media"`
	Keep    bool   `long:"keep" description:"keep staged downloads after the run"`

	IgnoreDedupe bool `long:"ignore-dedupe" description:"relay files even when already present in the destination"`
	DryRun       bool `long:"dry-run" description:"download and log what would be sent without sending"`

	HistoryLimit    int     `long:"history-limit" default:"1000" description:"number of source messages relayed and destination messages inspected"`
	RequestTimeout  float64 `long:"request-timeout" default:"30" description:"seconds per API request"`
	UploadTimeout   float64 `long:"upload-timeout" default:"120" description:"seconds per upload or download attempt"`
	Delay           float64 `long:"delay" default:"1" description:"seconds to pause between messages"`
	MaxFileMB       int64   `long:"max-file-mb" default:"10" description:"per-file size cap in megabytes"`
	AttemptOversize bool    `long:"attempt-oversize" description:"try files over the cap instead of skipping them"`

	DBPath    string `long:"db-path" env:"DB_PATH" default:"./db/disdrop.sqlite" description:"path to the sqlite database file"`
	SentryDSN string `long:"sentry-dsn" env:"SENTRY_DSN" description:"sentry DSN for error reporting"`
	Verbose   bool   `short:"v" long:"verbose" description:"debug logging"`
}

var Revision = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	_, err := flags.Parse(&opts)
	if err != nil {
		return 1
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	log := logger.NewLogger(level)

	if opts.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{Dsn: opts.SentryDSN, Release: Revision})
		if err != nil {
			log.Error("initializing sentry", "error", err)
			return 1
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := ulid.Make().String()
	log.Info("starting relay run", "revision", Revision, "run_id", runID)

	from, err := discord.ParseChannelURL(opts.FromURL)
	if err != nil {
		return fail(log, "parsing source channel URL", err)
	}
	to, err := discord.ParseChannelURL(opts.ToURL)
	if err != nil {
		return fail(log, "parsing destination channel URL", err)
	}

	if err := os.MkdirAll(filepath.Dir(opts.DBPath), 0o755); err != nil {
		return fail(log, "creating database directory", err)
	}
	db, err := storage.NewSQLite(ctx, opts.DBPath)
	if err != nil {
		return fail(log, "creating sqlite3 database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("closing sqlite3 database", "error", err)
		}
	}()

	client := &discord.Client{
		Token:          opts.Token,
		TokenType:      opts.TokenType,
		RequestTimeout: seconds(opts.RequestTimeout),
		Log:            log,
	}

	engine := &relay.Engine{
		Gateway: client,
		Log:     log,
		Staging: opts.Staging,
		RunID:   runID,
		Config: relay.Config{
			HistoryLimit:    opts.HistoryLimit,
			DownloadTimeout: seconds(opts.UploadTimeout),
			MaxFileBytes:    opts.MaxFileMB << 20,
			SkipOversize:    !opts.AttemptOversize,
		},
	}

	files, err := engine.Fetch(ctx, from.Target())
	if err != nil {
		return fail(log, "fetching source media", err)
	}
	if len(files) == 0 {
		log.Info("no media in source channel, nothing to do")
		return 0
	}
	if !opts.Keep {
		defer func() {
			if err := os.RemoveAll(filepath.Join(opts.Staging, runID)); err != nil {
				log.Warn("cleaning staging directory", "error", err)
			}
		}()
	}

	// Grouping preserves input order, so the relay keeps the source
	// channel's posting order.
	units := group.Units(group.Groups(files))
	log.Info("staged media", "files", len(files), "units", len(units))

	msgs, err := client.FetchHistory(ctx, to.Target(), opts.HistoryLimit)
	if err != nil {
		log.Warn("fetching destination history, dedupe degraded", "error", err)
	}
	idx := dedupe.Build(msgs, opts.HistoryLimit)
	names, err := db.SeenNames(ctx, to.Target())
	if err != nil {
		log.Warn("reading seen names", "error", err)
	}
	for _, name := range names {
		idx.Add(name)
	}
	registry := dedupe.NewRegistry()
	registry.Set(to.Target(), idx)

	scheduler := &send.Scheduler{
		Gateway: client,
		Index:   registry,
		Journal: db,
		RunID:   runID,
		Log:     log,
		Config: send.Config{
			ChannelID:     to.Target(),
			UploadTimeout: seconds(opts.UploadTimeout),
			Delay:         seconds(opts.Delay),
			MaxFileBytes:  opts.MaxFileMB << 20,
			SkipOversize:  !opts.AttemptOversize,
			IgnoreDedupe:  opts.IgnoreDedupe,
			DryRun:        opts.DryRun,
		},
	}

	summary := scheduler.Run(ctx, units)
	log.Info("run finished",
		"sent", summary.Sent,
		"skipped_deduped", summary.SkippedDeduped,
		"skipped_oversize", summary.SkippedOversize,
		"failed", summary.Failed,
	)
	for _, f := range summary.Failures() {
		log.Warn("failed group", "files", f.Group.Names(), "error", f.Err)
	}

	if summary.Failed > 0 {
		sentry.CaptureMessage(fmt.Sprintf("relay run %s: %d of %d groups failed", runID, summary.Failed, len(summary.Results)))
		return 1
	}
	return 0
}

// fail logs a fatal startup error, reports it, and yields the exit
// code. CaptureException is a no-op when sentry was not initialized.
func fail(log logger.Logger, msg string, err error) int {
	log.Error(msg, "error", err)
	sentry.CaptureException(fmt.Errorf("%s: %w", msg, err))
	return 1
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
