package download

import (
	"sort"
	"strconv"
	"strings"
)

// Preference picks the highest or lowest ranked candidate of a clause.
type Preference string

const (
	PreferBest  Preference = "best"
	PreferWorst Preference = "worst"
)

// FormatClause is one alternative of a format constraint.
type FormatClause struct {
	Pick      Preference
	AudioOnly bool
	MaxHeight int
	Ext       string
}

func (c FormatClause) String() string {
	var b strings.Builder
	b.WriteString(string(c.Pick))
	if c.AudioOnly {
		b.WriteString("audio")
	}
	if c.MaxHeight > 0 {
		b.WriteString("[height<=")
		b.WriteString(strconv.Itoa(c.MaxHeight))
		b.WriteString("]")
	}
	if c.Ext != "" {
		b.WriteString("[ext=")
		b.WriteString(c.Ext)
		b.WriteString("]")
	}
	return b.String()
}

func (c FormatClause) matches(f Candidate) bool {
	if c.AudioOnly {
		if !f.HasAudio || f.HasVideo {
			return false
		}
	} else if !f.HasAudio || !f.HasVideo {
		return false
	}
	if c.MaxHeight > 0 && (f.Height <= 0 || f.Height > c.MaxHeight) {
		return false
	}
	if c.Ext != "" && !strings.EqualFold(c.Ext, f.Ext) {
		return false
	}
	return true
}

// FormatConstraint is an ordered fallback chain: the first clause that
// matches any candidate wins.
type FormatConstraint struct {
	Clauses []FormatClause
}

// String renders the chain in yt-dlp selector syntax.
func (fc FormatConstraint) String() string {
	parts := make([]string, 0, len(fc.Clauses))
	for _, c := range fc.Clauses {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, "/")
}

// AudioOnly reports whether the preferred clause asks for an audio stream.
func (fc FormatConstraint) AudioOnly() bool {
	return len(fc.Clauses) > 0 && fc.Clauses[0].AudioOnly
}

// Candidate is one downloadable stream as advertised by a backend.
type Candidate struct {
	ID       string
	Ext      string
	Height   int
	Bitrate  int
	HasVideo bool
	HasAudio bool
}

// Select walks the chain and returns the chosen candidate together with the
// index of the clause that matched.
func (fc FormatConstraint) Select(candidates []Candidate) (Candidate, int, bool) {
	for i, clause := range fc.Clauses {
		var chosen Candidate
		found := false
		for _, f := range candidates {
			if !clause.matches(f) {
				continue
			}
			if !found || ranksBefore(f, chosen, clause) {
				chosen = f
				found = true
			}
		}
		if found {
			return chosen, i, true
		}
	}
	return Candidate{}, -1, false
}

func ranksBefore(a, b Candidate, clause FormatClause) bool {
	if clause.AudioOnly {
		if clause.Pick == PreferWorst {
			return a.Bitrate < b.Bitrate
		}
		return a.Bitrate > b.Bitrate
	}
	if a.Height != b.Height {
		if clause.Pick == PreferWorst {
			return a.Height < b.Height
		}
		return a.Height > b.Height
	}
	if clause.Pick == PreferWorst {
		return a.Bitrate < b.Bitrate
	}
	return a.Bitrate > b.Bitrate
}

// SelectFormat maps a quality preference to a format constraint. Audio-only
// requests ignore quality.
func SelectFormat(quality string, audioOnly bool) FormatConstraint {
	if audioOnly {
		return FormatConstraint{Clauses: []FormatClause{
			{Pick: PreferBest, AudioOnly: true},
			{Pick: PreferBest},
		}}
	}

	q := ParseQuality(quality)
	switch q.Mode {
	case QualityWorst:
		return FormatConstraint{Clauses: []FormatClause{
			{Pick: PreferWorst, Ext: "mp4"},
			{Pick: PreferWorst},
		}}
	case QualityHeight:
		return FormatConstraint{Clauses: []FormatClause{
			{Pick: PreferBest, MaxHeight: q.Height, Ext: "mp4"},
			{Pick: PreferBest, MaxHeight: q.Height},
			{Pick: PreferBest, Ext: "mp4"},
			{Pick: PreferBest},
		}}
	default:
		return FormatConstraint{Clauses: []FormatClause{
			{Pick: PreferBest, Ext: "mp4"},
			{Pick: PreferBest},
		}}
	}
}

// AvailableHeights lists the distinct video heights on offer, tallest first.
func AvailableHeights(candidates []Candidate) []int {
	seen := make(map[int]bool, len(candidates))
	heights := make([]int, 0, len(candidates))
	for _, c := range candidates {
		if !c.HasVideo || c.Height <= 0 || seen[c.Height] {
			continue
		}
		seen[c.Height] = true
		heights = append(heights, c.Height)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(heights)))
	return heights
}
