package relay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/you/disdrop/app/dedupe"
	"github.com/you/disdrop/app/discord"
	"github.com/you/disdrop/app/scan"
	"github.com/you/disdrop/pkg/entities"
	"github.com/you/disdrop/pkg/logger"
)

// Gateway is the slice of the channel API the engine needs.
type Gateway interface {
	FetchHistory(ctx context.Context, channelID string, limit int) ([]discord.Message, error)
	Download(ctx context.Context, rawURL, destPath string) error
}

type Config struct {
	// HistoryLimit caps how many source messages are inspected.
	HistoryLimit int

	// DownloadTimeout bounds a single attachment download. 0 leaves
	// the caller's context in charge.
	DownloadTimeout time.Duration

	// MaxFileBytes skips attachments over the cap before downloading,
	// when SkipOversize is set. 0 disables the check.
	MaxFileBytes int64
	SkipOversize bool
}

// Engine pulls media attachments out of a source channel into a
// staging directory, oldest first, so a later send replays them in the
// order they were originally posted.
type Engine struct {
	Gateway Gateway
	Log     logger.Logger

	// Staging is the download root; files land under
	// <Staging>/<RunID>/.
	Staging string
	RunID   string

	Config Config
}

// Fetch downloads the channel's media and returns one MediaFile per
// attachment, in chronological order. A failed download drops that
// attachment only.
func (e *Engine) Fetch(ctx context.Context, sourceChannelID string) ([]entities.MediaFile, error) {
	msgs, err := e.Gateway.FetchHistory(ctx, sourceChannelID, e.Config.HistoryLimit)
	if err != nil {
		if len(msgs) == 0 {
			return nil, fmt.Errorf("fetching source history: %w", err)
		}
		e.logger().Warn("source history fetched partially", "messages", len(msgs), "error", err)
	}

	dir := filepath.Join(e.Staging, e.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	// History arrives newest first; relay wants posting order.
	var files []entities.MediaFile
	taken := make(map[string]struct{})
	for i := len(msgs) - 1; i >= 0; i-- {
		for _, att := range msgs[i].Attachments {
			f, ok := e.stage(ctx, dir, att, taken)
			if ok {
				files = append(files, f)
			}
		}
	}
	return files, nil
}

func (e *Engine) stage(ctx context.Context, dir string, att discord.Attachment, taken map[string]struct{}) (entities.MediaFile, bool) {
	name := att.Filename
	if name == "" {
		name = dedupe.BasenameFromURL(att.URL)
	}
	ext := strings.ToLower(filepath.Ext(name))
	if name == "" || !scan.IsMedia(ext) {
		return entities.MediaFile{}, false
	}
	if _, ok := taken[name]; ok {
		return entities.MediaFile{}, false
	}

	log := e.logger().With("file", name)

	if e.Config.SkipOversize && e.Config.MaxFileBytes > 0 && att.Size > e.Config.MaxFileBytes {
		log.Info("skipping oversize attachment", "size", att.Size, "cap_bytes", e.Config.MaxFileBytes)
		return entities.MediaFile{}, false
	}

	dest := filepath.Join(dir, name)
	if _, err := os.Stat(dest); err != nil {
		log.Info("downloading")
		if err := e.download(ctx, att.URL, dest); err != nil {
			log.Warn("download failed, attachment dropped", "error", err)
			return entities.MediaFile{}, false
		}
	}

	info, err := os.Stat(dest)
	if err != nil {
		log.Warn("staged file unreadable, attachment dropped", "error", err)
		return entities.MediaFile{}, false
	}

	taken[name] = struct{}{}
	return entities.MediaFile{
		AbsPath: dest,
		RelDir:  ".",
		Base:    name,
		Ext:     ext,
		Size:    info.Size(),
	}, true
}

func (e *Engine) download(ctx context.Context, rawURL, destPath string) error {
	if e.Config.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Config.DownloadTimeout)
		defer cancel()
	}
	return e.Gateway.Download(ctx, rawURL, destPath)
}

func (e *Engine) logger() logger.Logger {
	if e.Log != nil {
		return e.Log
	}
	return logger.Discard()
}
