package entities

// SegNone marks a file that carries no recognized segment suffix.
const SegNone = -1

// SegmentKey is the canonical identity of a media file: the
// suffix-stripped root plus the segment number extracted from the
// name. Root is lower-cased and whitespace-normalized; it is a
// comparison key only, display names stay on MediaFile.
type SegmentKey struct {
	Root string
	Seg  int
}

func (k SegmentKey) Segmented() bool {
	return k.Seg != SegNone
}

type MediaFile struct {
	AbsPath string
	// RelDir is the directory relative to the scan root, "." for
	// root-level files.
	RelDir string
	// Base is the original basename including extension.
	Base string
	// Ext is the lower-cased extension with leading dot.
	Ext  string
	Size int64
}

// MediaGroup is one outbound message: either a single file or a
// video + animated-image pair of the same content.
type MediaGroup struct {
	Key   SegmentKey
	Dir   string
	Files []MediaFile
}

func (g MediaGroup) Names() []string {
	names := make([]string, 0, len(g.Files))
	for _, f := range g.Files {
		names = append(names, f.Base)
	}
	return names
}

func (g MediaGroup) Paths() []string {
	paths := make([]string, 0, len(g.Files))
	for _, f := range g.Files {
		paths = append(paths, f.AbsPath)
	}
	return paths
}

// SequenceUnit is one logical piece of content: either a run of
// segment-numbered groups sharing a root (ordered ascending by
// segment) or a single standalone group. A segmented cluster and an
// unsegmented file with the same root are distinct units.
type SequenceUnit struct {
	Root   string
	Dir    string
	Groups []MediaGroup
}

func (u SequenceUnit) Segmented() bool {
	return len(u.Groups) > 1
}

func (u SequenceUnit) HasPair() bool {
	for _, g := range u.Groups {
		if len(g.Files) > 1 {
			return true
		}
	}
	return false
}
