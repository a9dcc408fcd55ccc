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
	"github.com/you/disdrop/app/scan"
	"github.com/you/disdrop/app/send"
	"github.com/you/disdrop/app/storage"
	"github.com/you/disdrop/app/threads"
	"github.com/you/disdrop/pkg/logger"
)

var opts struct {
	Input      string `short:"i" long:"input" required:"true" description:"directory with media files to send"`
	ChannelURL string `short:"c" long:"channel" required:"true" description:"destination channel URL"`

	Token     string `long:"token" env:"DISCORD_TOKEN" required:"true" description:"discord token"`
	TokenType string `long:"token-type" env:"DISCORD_TOKEN_TYPE" default:"bot" choice:"bot" choice:"user" description:"how the token is presented to the API"`

	Title             string   `long:"title" description:"thread title when the destination is a forum channel"`
	Tag               string   `long:"tag" description:"forum tag applied to newly created threads"`
	Types             []string `long:"type" description:"media types to send: all, videos or gifs (default all)"`
	OnlyRoot          bool     `long:"only-root" description:"do not descend into subdirectories"`
	SplitBySubfolders bool     `long:"split-by-subfolders" description:"one forum thread per top-level subfolder"`

	IgnoreDedupe bool `long:"ignore-dedupe" description:"send files even when already present in the destination"`
	DryRun       bool `long:"dry-run" description:"log what would be sent without sending anything"`

	HistoryLimit    int     `long:"history-limit" default:"1000" description:"number of destination messages inspected for dedupe"`
	RequestTimeout  float64 `long:"request-timeout" default:"30" description:"seconds per API request"`
	UploadTimeout   float64 `long:"upload-timeout" default:"120" description:"seconds per upload attempt"`
	Delay           float64 `long:"delay" default:"1" description:"seconds to pause between messages"`
	MaxFileMB       int64   `long:"max-file-mb" default:"10" description:"per-file size cap in megabytes"`
	AttemptOversize bool    `long:"attempt-oversize" description:"try files over the cap instead of skipping them"`
	NoSeparators    bool    `long:"no-separators" description:"do not frame multi-part sequences with separator messages"`

	DBPath    string `long:"db-path" env:"DB_PATH" default:"./db/disdrop.sqlite" description:"path to the sqlite database file"`
	SentryDSN string `long:"sentry-dsn" env:"SENTRY_DSN" description:"sentry DSN for error reporting"`
	Verbose   bool   `short:"v" long:"verbose" description:"debug logging"`
}

const separatorText = "----------------"

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
	log.Info("starting send run", "revision", Revision, "run_id", runID, "input", opts.Input)

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

	ref, err := discord.ParseChannelURL(opts.ChannelURL)
	if err != nil {
		return fail(log, "parsing channel URL", err)
	}

	channel, err := client.GetChannel(ctx, ref.Target())
	if err != nil {
		return fail(log, "fetching destination channel", err)
	}

	files, err := scan.Media(scan.Options{
		Root:     opts.Input,
		OnlyRoot: opts.OnlyRoot,
		Types:    opts.Types,
	})
	if err != nil {
		return fail(log, "scanning input directory", err)
	}
	if len(files) == 0 {
		log.Info("no media files found, nothing to do")
		return 0
	}

	units := group.Units(group.Groups(files))
	log.Info("collected media", "files", len(files), "units", len(units))

	resolver := &threads.Resolver{
		Gateway:           client,
		Log:               log,
		Title:             opts.Title,
		RootName:          filepath.Base(filepath.Clean(opts.Input)),
		Tag:               opts.Tag,
		SplitBySubfolders: opts.SplitBySubfolders,
		DryRun:            opts.DryRun,
	}
	targets, err := resolver.Targets(ctx, channel, ref.GuildID, units)
	if err != nil {
		return fail(log, "resolving forum threads", err)
	}

	registry := buildRegistry(ctx, log, client, db, ref.Target(), targets, opts.HistoryLimit)

	scheduler := &send.Scheduler{
		Gateway: client,
		Index:   registry,
		Journal: db,
		RunID:   runID,
		Log:     log,
		Targets: targets,
		Config: send.Config{
			ChannelID:     ref.Target(),
			UploadTimeout: seconds(opts.UploadTimeout),
			Delay:         seconds(opts.Delay),
			MaxFileBytes:  opts.MaxFileMB << 20,
			SkipOversize:  !opts.AttemptOversize,
			IgnoreDedupe:  opts.IgnoreDedupe,
			DryRun:        opts.DryRun,
			Separators:    !opts.NoSeparators,
			SeparatorText: separatorText,
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
		sentry.CaptureMessage(fmt.Sprintf("send run %s: %d of %d groups failed", runID, summary.Failed, len(summary.Results)))
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

// buildRegistry builds one dedupe index per destination: remote
// history merged with the locally persisted names for that channel.
// History fetch failures degrade to a warning so an offline-ish run
// can still proceed.
func buildRegistry(ctx context.Context, log logger.Logger, client *discord.Client, db *storage.SQLite, defaultTarget string, targets map[string]string, limit int) *dedupe.Registry {
	channels := map[string]struct{}{defaultTarget: {}}
	for _, id := range targets {
		channels[id] = struct{}{}
	}

	registry := dedupe.NewRegistry()
	for id := range channels {
		msgs, err := client.FetchHistory(ctx, id, limit)
		if err != nil {
			log.Warn("fetching channel history, dedupe degraded", "channel_id", id, "error", err)
		}
		idx := dedupe.Build(msgs, limit)

		names, err := db.SeenNames(ctx, id)
		if err != nil {
			log.Warn("reading seen names", "channel_id", id, "error", err)
		}
		for _, name := range names {
			idx.Add(name)
		}

		registry.Set(id, idx)
		log.Debug("dedupe index ready", "channel_id", id, "names", idx.Len())
	}
	return registry
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
