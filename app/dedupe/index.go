package dedupe

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/you/disdrop/app/discord"
	"github.com/you/disdrop/app/scan"
)

// Index is the set of attachment basenames already present in the
// destination. Built once per run, read-only afterwards.
type Index struct {
	names map[string]struct{}
}

// Build scans up to limit most-recent messages (the order FetchHistory
// returns them in) and records every attachment filename plus any
// media basename found in embed URLs.
func Build(msgs []discord.Message, limit int) *Index {
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}

	idx := &Index{names: make(map[string]struct{}, len(msgs))}
	for _, msg := range msgs {
		for _, att := range msg.Attachments {
			if att.Filename != "" {
				idx.Add(att.Filename)
				continue
			}
			idx.Add(BasenameFromURL(att.URL))
		}
		for _, emb := range msg.Embeds {
			for _, u := range []string{emb.URL, emb.Thumbnail.URL, emb.Video.URL, emb.Image.URL} {
				idx.Add(BasenameFromURL(u))
			}
		}
	}
	return idx
}

// Add inserts a basename; empty strings are ignored so callers can
// feed extraction results directly.
func (x *Index) Add(name string) {
	if name == "" {
		return
	}
	x.names[name] = struct{}{}
}

func (x *Index) Contains(name string) bool {
	_, ok := x.names[name]
	return ok
}

func (x *Index) Len() int {
	return len(x.names)
}

// Registry holds one Index per destination channel. Dedupe is scoped
// to the channel a group is actually sent to; a name present in one
// thread never suppresses the same name elsewhere.
type Registry struct {
	byChannel map[string]*Index
}

func NewRegistry() *Registry {
	return &Registry{byChannel: make(map[string]*Index)}
}

func (r *Registry) Set(channelID string, idx *Index) {
	r.byChannel[channelID] = idx
}

// Contains reports whether name is present in channelID's index. An
// unknown channel has nothing, which degrades to re-sending.
func (r *Registry) Contains(channelID, name string) bool {
	idx, ok := r.byChannel[channelID]
	return ok && idx.Contains(name)
}

// BasenameFromURL extracts the final path segment of a CDN URL,
// dropping any query string. Only recognized media extensions count;
// anything else yields "".
func BasenameFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	if !scan.IsMedia(strings.ToLower(filepath.Ext(base))) {
		return ""
	}
	return base
}
