package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/you/disdrop/pkg/entities"
)

// Recognized media extensions by category.
var (
	videoExts = map[string]struct{}{".mp4": {}}
	gifExts   = map[string]struct{}{".gif": {}}
)

const (
	TypeAll    = "all"
	TypeVideos = "videos"
	TypeGifs   = "gifs"
)

type Options struct {
	// Root is the directory to scan.
	Root string

	// OnlyRoot restricts the scan to files directly under Root.
	OnlyRoot bool

	// Types selects media categories ("videos", "gifs"); empty or
	// containing "all" selects everything.
	Types []string
}

// Media enumerates media files under opts.Root. Only stat information
// is read, never file contents. Output order is stable: by relative
// path, so downstream grouping is deterministic across platforms.
func Media(opts Options) ([]entities.MediaFile, error) {
	root := filepath.Clean(opts.Root)
	selected := selectedTypes(opts.Types)

	files := make([]entities.MediaFile, 0, 64)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if opts.OnlyRoot && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !extSelected(ext, selected) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return err
		}

		files = append(files, entities.MediaFile{
			AbsPath: path,
			RelDir:  filepath.ToSlash(rel),
			Base:    d.Name(),
			Ext:     ext,
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].RelDir != files[j].RelDir {
			return files[i].RelDir < files[j].RelDir
		}
		return files[i].Base < files[j].Base
	})
	return files, nil
}

// IsVideo reports whether ext is a recognized video extension.
func IsVideo(ext string) bool {
	_, ok := videoExts[ext]
	return ok
}

// IsAnimated reports whether ext is a recognized animated-image extension.
func IsAnimated(ext string) bool {
	_, ok := gifExts[ext]
	return ok
}

// IsMedia reports whether ext belongs to any recognized category.
func IsMedia(ext string) bool {
	return IsVideo(ext) || IsAnimated(ext)
}

func selectedTypes(types []string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		out[t] = struct{}{}
	}
	if len(out) == 0 {
		out[TypeAll] = struct{}{}
	}
	return out
}

func extSelected(ext string, selected map[string]struct{}) bool {
	if !IsMedia(ext) {
		return false
	}
	if _, ok := selected[TypeAll]; ok {
		return true
	}
	if IsVideo(ext) {
		_, ok := selected[TypeVideos]
		return ok
	}
	_, ok := selected[TypeGifs]
	return ok
}
