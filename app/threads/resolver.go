package threads

import (
	"context"
	"fmt"
	"strings"

	"github.com/you/disdrop/app/discord"
	"github.com/you/disdrop/pkg/entities"
	"github.com/you/disdrop/pkg/logger"
)

// Gateway is the slice of the channel API the resolver needs.
type Gateway interface {
	FindThreadByName(ctx context.Context, guildID, parentID, name string) (string, error)
	CreateForumPost(ctx context.Context, channelID, name, content string, tagIDs []string) (string, error)
}

// Resolver maps scanned folders to forum threads. Existing threads are
// reused by exact name; missing ones are created once per run.
type Resolver struct {
	Gateway Gateway
	Log     logger.Logger

	// Title overrides the derived thread name for root-level files.
	Title string

	// RootName is the basename of the input directory, the fallback
	// title when nothing better can be derived.
	RootName string

	// Tag is a forum tag name applied to newly created posts, matched
	// case-insensitively against the forum's available tags.
	Tag string

	// SplitBySubfolders gives each top-level subfolder its own thread
	// instead of sending everything into one.
	SplitBySubfolders bool

	// DryRun reuses existing threads but never creates new ones;
	// unresolved folders fall back to the parent channel.
	DryRun bool

	resolved map[string]string
}

// Targets resolves a destination thread for every distinct folder in
// units. The returned map is keyed by unit folder; folders that could
// not be resolved in dry-run map to the parent channel so dedupe still
// has something to look at.
func (r *Resolver) Targets(ctx context.Context, parent discord.Channel, guildID string, units []entities.SequenceUnit) (map[string]string, error) {
	if !parent.ForumLike() {
		return map[string]string{}, nil
	}

	targets := make(map[string]string)
	for _, u := range units {
		if _, ok := targets[u.Dir]; ok {
			continue
		}
		name := r.threadName(u.Dir, units)
		id, err := r.resolve(ctx, parent, guildID, name)
		if err != nil {
			return nil, fmt.Errorf("resolving thread %q: %w", name, err)
		}
		targets[u.Dir] = id
	}
	return targets, nil
}

// threadName derives the thread title for a folder. Subfolder names
// win over content roots; a "_segments" suffix on a folder is a
// packaging artifact and is dropped.
func (r *Resolver) threadName(dir string, units []entities.SequenceUnit) string {
	if r.SplitBySubfolders && dir != "." {
		return trimSegmentsSuffix(topFolder(dir))
	}
	if r.Title != "" {
		return r.Title
	}
	scoped := units
	if r.SplitBySubfolders {
		scoped = nil
		for _, u := range units {
			if u.Dir == "." {
				scoped = append(scoped, u)
			}
		}
	}
	if root, ok := commonRoot(scoped); ok {
		return root
	}
	return trimSegmentsSuffix(r.RootName)
}

func (r *Resolver) resolve(ctx context.Context, parent discord.Channel, guildID, name string) (string, error) {
	if id, ok := r.resolved[name]; ok {
		return id, nil
	}

	id, err := r.Gateway.FindThreadByName(ctx, guildID, parent.ID, name)
	if err != nil {
		return "", fmt.Errorf("searching threads: %w", err)
	}

	if id == "" {
		if r.DryRun {
			r.logger().Info("dry run, would create thread", "name", name)
			id = parent.ID
		} else {
			r.logger().Info("creating thread", "name", name)
			id, err = r.Gateway.CreateForumPost(ctx, parent.ID, name, name, r.tagIDs(parent))
			if err != nil {
				return "", fmt.Errorf("creating forum post: %w", err)
			}
		}
	} else {
		r.logger().Info("reusing existing thread", "name", name, "thread_id", id)
	}

	if r.resolved == nil {
		r.resolved = make(map[string]string)
	}
	r.resolved[name] = id
	return id, nil
}

func (r *Resolver) tagIDs(parent discord.Channel) []string {
	if r.Tag == "" {
		return nil
	}
	for _, t := range parent.AvailableTags {
		if strings.EqualFold(t.Name, r.Tag) {
			return []string{t.ID}
		}
	}
	r.logger().Warn("forum tag not found, creating without tags", "tag", r.Tag)
	return nil
}

func (r *Resolver) logger() logger.Logger {
	if r.Log != nil {
		return r.Log
	}
	return logger.Discard()
}

func topFolder(dir string) string {
	if i := strings.IndexAny(dir, "/\\"); i >= 0 {
		return dir[:i]
	}
	return dir
}

func trimSegmentsSuffix(name string) string {
	const suffix = "_segments"
	if len(name) > len(suffix) && strings.EqualFold(name[len(name)-len(suffix):], suffix) {
		return name[:len(name)-len(suffix)]
	}
	return name
}

// commonRoot reports the shared root of all units, when there is
// exactly one.
func commonRoot(units []entities.SequenceUnit) (string, bool) {
	root := ""
	for _, u := range units {
		if root == "" {
			root = u.Root
			continue
		}
		if u.Root != root {
			return "", false
		}
	}
	return root, root != ""
}
