package group

import (
	"sort"

	"github.com/you/disdrop/app/scan"
	"github.com/you/disdrop/pkg/entities"
)

type partKey struct {
	dir string
	key entities.SegmentKey
}

// Groups partitions files by (directory, segment key) and pairs a
// video rendition with an animated-image rendition of the same
// content into one group. Everything else becomes a singleton group.
//
// Input order is preserved: partitions appear in first-seen order, so
// callers control whether groups follow scan order or chronological
// relay order.
func Groups(files []entities.MediaFile) []entities.MediaGroup {
	buckets := make(map[partKey][]entities.MediaFile, len(files))
	order := make([]partKey, 0, len(files))

	for _, f := range files {
		pk := partKey{dir: f.RelDir, key: scan.Normalize(f.Base)}
		if _, ok := buckets[pk]; !ok {
			order = append(order, pk)
		}
		buckets[pk] = append(buckets[pk], f)
	}

	groups := make([]entities.MediaGroup, 0, len(order))
	for _, pk := range order {
		groups = append(groups, emit(pk, buckets[pk])...)
	}
	return groups
}

// emit produces the groups of one partition: at most one video+gif
// pair, then leftovers as singletons in input order.
func emit(pk partKey, files []entities.MediaFile) []entities.MediaGroup {
	videoIdx, gifIdx := -1, -1
	for i, f := range files {
		if videoIdx < 0 && scan.IsVideo(f.Ext) {
			videoIdx = i
		}
		if gifIdx < 0 && scan.IsAnimated(f.Ext) {
			gifIdx = i
		}
	}

	out := make([]entities.MediaGroup, 0, len(files))
	if videoIdx >= 0 && gifIdx >= 0 {
		out = append(out, entities.MediaGroup{
			Key:   pk.key,
			Dir:   pk.dir,
			Files: []entities.MediaFile{files[videoIdx], files[gifIdx]},
		})
	}
	for i, f := range files {
		if videoIdx >= 0 && gifIdx >= 0 && (i == videoIdx || i == gifIdx) {
			continue
		}
		out = append(out, entities.MediaGroup{
			Key:   pk.key,
			Dir:   pk.dir,
			Files: []entities.MediaFile{f},
		})
	}
	return out
}

type rootKey struct {
	dir  string
	root string
}

// Units assembles SequenceUnits from groups. Segment-numbered groups
// sharing (directory, root) form one unit ordered ascending by
// segment; each unsegmented group stands alone, even when its root
// matches a segmented cluster.
//
// Unit order: clusters of the same root keep the position of their
// first group; within a root, units containing a pair come before
// units of singles.
func Units(groups []entities.MediaGroup) []entities.SequenceUnit {
	type build struct {
		unit   entities.SequenceUnit
		minIdx int
	}

	builds := make([]*build, 0, len(groups))
	segmented := make(map[rootKey]*build)
	rootFirst := make(map[rootKey]int)

	for i, g := range groups {
		rk := rootKey{dir: g.Dir, root: g.Key.Root}
		if _, ok := rootFirst[rk]; !ok {
			rootFirst[rk] = i
		}

		if !g.Key.Segmented() {
			builds = append(builds, &build{
				unit:   entities.SequenceUnit{Root: g.Key.Root, Dir: g.Dir, Groups: []entities.MediaGroup{g}},
				minIdx: i,
			})
			continue
		}

		b, ok := segmented[rk]
		if !ok {
			b = &build{
				unit:   entities.SequenceUnit{Root: g.Key.Root, Dir: g.Dir},
				minIdx: i,
			}
			segmented[rk] = b
			builds = append(builds, b)
		}
		b.unit.Groups = append(b.unit.Groups, g)
	}

	for _, b := range builds {
		sort.SliceStable(b.unit.Groups, func(i, j int) bool {
			return b.unit.Groups[i].Key.Seg < b.unit.Groups[j].Key.Seg
		})
	}

	sort.SliceStable(builds, func(i, j int) bool {
		a, b := builds[i], builds[j]
		ra := rootKey{dir: a.unit.Dir, root: a.unit.Root}
		rb := rootKey{dir: b.unit.Dir, root: b.unit.Root}
		if rootFirst[ra] != rootFirst[rb] {
			return rootFirst[ra] < rootFirst[rb]
		}
		if pa, pb := a.unit.HasPair(), b.unit.HasPair(); pa != pb {
			return pa
		}
		return a.minIdx < b.minIdx
	})

	units := make([]entities.SequenceUnit, 0, len(builds))
	for _, b := range builds {
		units = append(units, b.unit)
	}
	return units
}
