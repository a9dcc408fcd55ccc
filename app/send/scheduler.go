package send

import (
	"context"
	"time"

	"github.com/you/disdrop/app/discord"
	"github.com/you/disdrop/pkg/entities"
	"github.com/you/disdrop/pkg/logger"
)

// Uploader is the slice of the gateway the scheduler drives.
type Uploader interface {
	SendFiles(ctx context.Context, channelID string, paths []string, content string) error
	SendText(ctx context.Context, channelID, content string) error
	LastMessageContent(ctx context.Context, channelID string) (string, error)
}

// Index answers whether a basename is already present in a specific
// destination. Presence in one channel never suppresses a send to
// another.
type Index interface {
	Contains(channelID, name string) bool
}

// Journal persists outcomes and newly delivered names. Both calls are
// best-effort from the scheduler's point of view.
type Journal interface {
	SaveResult(ctx context.Context, runID, channelID string, res entities.SendResult) error
	AddSeenNames(ctx context.Context, channelID string, names []string) error
}

type Config struct {
	// ChannelID is the default destination for every group.
	ChannelID string

	// UploadTimeout bounds a single upload attempt.
	UploadTimeout time.Duration

	// Delay is the pause between messages, skipped after the last one.
	Delay time.Duration

	// MaxFileBytes is the per-file size cap; 0 disables the check.
	MaxFileBytes int64

	// SkipOversize skips a whole group when any file exceeds the cap.
	// When false the group is attempted anyway and fails at the
	// transport layer.
	SkipOversize bool

	// IgnoreDedupe sends groups even when every file is already present.
	IgnoreDedupe bool

	// DryRun runs the full decision logic but stubs the network out.
	DryRun bool

	// Separators frames each multi-segment sequence with SeparatorText
	// messages.
	Separators    bool
	SeparatorText string
}

// Scheduler sends sequence units one group at a time, in order:
// dedupe check, size check, upload, delay. A single group's failure
// never aborts the run; everything lands in the summary. The one
// exception is an authentication failure: the token is dead, so the
// run stops with the partial summary instead of burning through the
// remaining groups.
type Scheduler struct {
	Gateway Uploader
	Index   Index
	Journal Journal
	Config  Config
	RunID   string
	Log     logger.Logger

	// Targets maps a folder to its destination (resolved threads).
	// Folders not present fall back to Config.ChannelID.
	Targets map[string]string
}

func (s *Scheduler) Run(ctx context.Context, units []entities.SequenceUnit) entities.RunSummary {
	var summary entities.RunSummary

	total := 0
	for _, u := range units {
		total += len(u.Groups)
	}

	processed := 0
	for _, unit := range units {
		target := s.target(unit.Dir)
		sepOpen := false

		for _, g := range unit.Groups {
			// Cancellation is cooperative: checked between groups only,
			// never mid-transfer.
			if ctx.Err() != nil {
				s.logger().Warn("run cancelled", "processed", processed, "total", total)
				return summary
			}
			processed++

			res, attempted, abort := s.processGroup(ctx, target, unit, g, &sepOpen)
			summary.Add(res)
			s.journal(ctx, target, res)

			if abort {
				s.logger().Error("aborting run, authentication failed", "processed", processed, "total", total)
				return summary
			}

			if attempted && processed < total {
				if !sleep(ctx, s.Config.Delay) {
					return summary
				}
			}
		}

		if sepOpen {
			if err := s.sendSeparator(ctx, target); discord.IsAuth(err) {
				s.logger().Error("aborting run, authentication failed", "error", err)
				return summary
			}
		}
	}

	return summary
}

// processGroup decides and executes one group. attempted reports
// whether the network was touched, which drives the inter-message
// delay; abort is set on authentication failures.
func (s *Scheduler) processGroup(ctx context.Context, target string, unit entities.SequenceUnit, g entities.MediaGroup, sepOpen *bool) (res entities.SendResult, attempted, abort bool) {
	log := s.logger().With("root", unit.Root, "seg", g.Key.Seg, "files", g.Names())

	if !s.Config.IgnoreDedupe && s.allSeen(target, g) {
		log.Info("skipping, already present in destination")
		return entities.SendResult{Group: g, Outcome: entities.OutcomeSkippedDeduped}, false, false
	}

	if s.Config.SkipOversize && s.oversize(g) {
		log.Info("skipping, file exceeds size cap", "cap_bytes", s.Config.MaxFileBytes)
		return entities.SendResult{Group: g, Outcome: entities.OutcomeSkippedOversize}, false, false
	}

	if s.Config.DryRun {
		log.Info("dry run, would send")
		return entities.SendResult{Group: g, Outcome: entities.OutcomeSent}, false, false
	}

	if unit.Segmented() && s.Config.Separators && !*sepOpen {
		if err := s.sendSeparator(ctx, target); discord.IsAuth(err) {
			log.Error("authentication failed while sending separator", "error", err)
			return entities.SendResult{Group: g, Outcome: entities.OutcomeFailed, Err: err.Error()}, false, true
		}
		*sepOpen = true
	}

	log.Info("uploading")
	err := s.upload(ctx, target, g)
	if err != nil {
		res := entities.SendResult{Group: g, Outcome: entities.OutcomeFailed, Err: err.Error()}
		if discord.IsAuth(err) {
			log.Error("authentication failed while uploading", "error", err)
			return res, true, true
		}
		log.Error("upload failed", "error", err)
		return res, true, false
	}

	if s.Journal != nil {
		if jerr := s.Journal.AddSeenNames(ctx, target, g.Names()); jerr != nil {
			log.Warn("recording seen names", "error", jerr)
		}
	}
	return entities.SendResult{Group: g, Outcome: entities.OutcomeSent}, true, false
}

func (s *Scheduler) upload(ctx context.Context, target string, g entities.MediaGroup) error {
	if s.Config.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Config.UploadTimeout)
		defer cancel()
	}
	return s.Gateway.SendFiles(ctx, target, g.Paths(), "")
}

// sendSeparator posts the separator line unless the channel already
// ends with one. Failures degrade to a warning (separators are
// cosmetic) but are still returned so callers can spot a dead token.
func (s *Scheduler) sendSeparator(ctx context.Context, target string) error {
	if s.Config.DryRun || s.Config.SeparatorText == "" {
		return nil
	}

	last, err := s.Gateway.LastMessageContent(ctx, target)
	if err != nil {
		s.logger().Warn("checking last message before separator", "error", err)
		if discord.IsAuth(err) {
			return err
		}
	}
	if last == s.Config.SeparatorText {
		return nil
	}

	if err := s.Gateway.SendText(ctx, target, s.Config.SeparatorText); err != nil {
		s.logger().Warn("sending separator", "error", err)
		return err
	}
	sleep(ctx, s.Config.Delay)
	return nil
}

func (s *Scheduler) allSeen(target string, g entities.MediaGroup) bool {
	if s.Index == nil {
		return false
	}
	for _, name := range g.Names() {
		if !s.Index.Contains(target, name) {
			return false
		}
	}
	return true
}

func (s *Scheduler) oversize(g entities.MediaGroup) bool {
	if s.Config.MaxFileBytes <= 0 {
		return false
	}
	for _, f := range g.Files {
		if f.Size > s.Config.MaxFileBytes {
			return true
		}
	}
	return false
}

func (s *Scheduler) target(dir string) string {
	if t, ok := s.Targets[dir]; ok && t != "" {
		return t
	}
	return s.Config.ChannelID
}

func (s *Scheduler) journal(ctx context.Context, target string, res entities.SendResult) {
	if s.Journal == nil {
		return
	}
	if err := s.Journal.SaveResult(ctx, s.RunID, target, res); err != nil {
		s.logger().Warn("journaling send result", "error", err)
	}
}

func (s *Scheduler) logger() logger.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logger.Discard()
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
