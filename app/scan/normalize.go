package scan

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/you/disdrop/pkg/entities"
)

// Segment suffix rules, evaluated against the stem (basename without
// extension). The longest matching suffix wins; on equal length the
// rule listed first wins. Each rule must anchor at the end of the stem
// and expose exactly two groups: root and number.
//
// The part/seg forms require a delimiter before the keyword so digit
// runs inside the root ("episode2") are never stripped.
type segmentRule struct {
	name string
	re   *regexp.Regexp
}

var segmentRules = []segmentRule{
	{name: "part", re: regexp.MustCompile(`(?i)^(.*?)[._\-\s](?:part|segment)[._\-\s]?(\d{1,3})$`)},
	{name: "seg", re: regexp.MustCompile(`(?i)^(.*?)[._\-\s]seg[._\-\s]?(\d{1,3})$`)},
	{name: "paren", re: regexp.MustCompile(`^(.*?)\s*\((\d{1,3})\)$`)},
	{name: "trailing", re: regexp.MustCompile(`^(.*?)[._\-](\d{1,3})$`)},
}

// Normalize derives the SegmentKey for a basename. It never fails:
// when no rule matches (or the root would come out empty) the stem
// itself is the root and the key is unsegmented.
func Normalize(base string) entities.SegmentKey {
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.TrimSpace(stem)

	bestLen := -1
	key := entities.SegmentKey{Root: canonical(stem), Seg: entities.SegNone}

	for _, rule := range segmentRules {
		m := rule.re.FindStringSubmatch(stem)
		if m == nil {
			continue
		}
		root := strings.Trim(m[1], " .-_")
		if root == "" {
			continue
		}
		num, err := strconv.Atoi(m[2])
		if err != nil || num < 1 || num > 999 {
			continue
		}
		if suffixLen := len(stem) - len(m[1]); suffixLen > bestLen {
			bestLen = suffixLen
			key = entities.SegmentKey{Root: canonical(root), Seg: num}
		}
	}

	return key
}

// canonical lower-cases and collapses whitespace for comparison.
func canonical(root string) string {
	return strings.Join(strings.Fields(strings.ToLower(root)), " ")
}
