package group

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/you/disdrop/pkg/entities"
)

func mf(dir, base string) entities.MediaFile {
	ext := ""
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '.' {
			ext = base[i:]
			break
		}
	}
	return entities.MediaFile{
		AbsPath: "/media/" + dir + "/" + base,
		RelDir:  dir,
		Base:    base,
		Ext:     ext,
		Size:    1,
	}
}

func TestGroupsPairsSegments(t *testing.T) {
	// Scenario: clip_part1.mp4 + clip_part1.gif + clip_part2.mp4 must
	// become exactly two groups: a pair for part1 and a single for part2.
	files := []entities.MediaFile{
		mf(".", "clip_part1.mp4"),
		mf(".", "clip_part1.gif"),
		mf(".", "clip_part2.mp4"),
	}

	groups := Groups(files)
	require.Len(t, groups, 2)

	require.Equal(t, 1, groups[0].Key.Seg)
	require.Len(t, groups[0].Files, 2)
	require.ElementsMatch(t, []string{"clip_part1.mp4", "clip_part1.gif"}, groups[0].Names())

	require.Equal(t, 2, groups[1].Key.Seg)
	require.Equal(t, []string{"clip_part2.mp4"}, groups[1].Names())
}

func TestGroupsNeverSplitsAPair(t *testing.T) {
	files := []entities.MediaFile{
		mf(".", "movie.gif"),
		mf(".", "movie.mp4"),
	}

	groups := Groups(files)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Files, 2)
}

func TestGroupsDirectoryBoundary(t *testing.T) {
	// Same names in different directories are different content.
	files := []entities.MediaFile{
		mf("a", "clip.mp4"),
		mf("b", "clip.mp4"),
	}

	groups := Groups(files)
	require.Len(t, groups, 2)
	require.Equal(t, "a", groups[0].Dir)
	require.Equal(t, "b", groups[1].Dir)
}

func TestUnitsParenthesizedOrder(t *testing.T) {
	// Scenario: trailer(1).mp4 and trailer(2).mp4 become one unit of two
	// singleton groups ordered 1 then 2.
	files := []entities.MediaFile{
		mf(".", "trailer(2).mp4"),
		mf(".", "trailer(1).mp4"),
	}

	units := Units(Groups(files))
	require.Len(t, units, 1)
	require.Len(t, units[0].Groups, 2)
	require.Equal(t, 1, units[0].Groups[0].Key.Seg)
	require.Equal(t, 2, units[0].Groups[1].Key.Seg)
}

func TestUnitsSegmentedAndUnsegmentedStaySeparate(t *testing.T) {
	files := []entities.MediaFile{
		mf(".", "clip.mp4"),
		mf(".", "clip_part1.mp4"),
		mf(".", "clip_part2.mp4"),
	}

	units := Units(Groups(files))
	require.Len(t, units, 2)

	var segmented, standalone *entities.SequenceUnit
	for i := range units {
		if units[i].Segmented() {
			segmented = &units[i]
		} else {
			standalone = &units[i]
		}
	}
	require.NotNil(t, segmented)
	require.NotNil(t, standalone)
	require.Len(t, segmented.Groups, 2)
	require.Equal(t, []string{"clip.mp4"}, standalone.Groups[0].Names())
}

func TestUnitsPairBeforeSingleWithinRoot(t *testing.T) {
	// An unsegmented single and a pair-bearing segmented cluster share
	// the root; the pair-bearing unit must come first.
	files := []entities.MediaFile{
		mf(".", "clip.mp4"),
		mf(".", "clip_part1.mp4"),
		mf(".", "clip_part1.gif"),
	}

	units := Units(Groups(files))
	require.Len(t, units, 2)
	require.True(t, units[0].HasPair())
	require.False(t, units[1].HasPair())
}

func TestUnitsPreserveInputOrderAcrossRoots(t *testing.T) {
	// Relay feeds files in chronological order; units must keep it.
	files := []entities.MediaFile{
		mf(".", "zebra.mp4"),
		mf(".", "alpha.mp4"),
	}

	units := Units(Groups(files))
	require.Len(t, units, 2)
	require.Equal(t, "zebra", units[0].Root)
	require.Equal(t, "alpha", units[1].Root)
}
