// Package segment turns a per-frame loudness table into an ordered,
// gap-free sequence of tagged segments.
//
// Building a sequence happens in three steps:
//  1. Expand widens every loud frame by a context margin on both sides.
//  2. Split collapses runs of identical inclusion flags into segments.
//  3. Smooth folds silent runs shorter than the minimum silence length into
//     the surrounding sounded segments.
//
// The result always covers [0, frameCount) exactly once with alternating
// tags.
package segment

import (
	"errors"
	"fmt"
	"math"
)

// Tag classifies a segment.
type Tag int

const (
	// Silent segments are played at the silent speed.
	Silent Tag = iota
	// Sounded segments are played at the sounded speed.
	Sounded
)

// String returns the lowercase tag name.
func (t Tag) String() string {
	switch t {
	case Silent:
		return "silent"
	case Sounded:
		return "sounded"
	default:
		return fmt.Sprintf("tag(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Segment is the half-open frame range [Start, End) with a tag.
type Segment struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Tag   Tag `json:"tag"`
}

// Len returns the number of frames in the segment.
func (s Segment) Len() int { return s.End - s.Start }

func (s Segment) String() string {
	return fmt.Sprintf("%s[%d,%d)", s.Tag, s.Start, s.End)
}

// Static errors returned by Validate.
var (
	ErrEmptySegment  = errors.New("segment is empty")
	ErrGap           = errors.New("segments leave a gap or overlap")
	ErrSameTag       = errors.New("adjacent segments share a tag")
	ErrCoverageShort = errors.New("segments do not cover every frame")
)

// Expand returns include[i] = OR of loud[j] for j in
// [floor(max(0, i-margin)), floor(min(n, i+margin+1))).
// Widening the margin can only switch frames from excluded to included.
func Expand(loud []bool, margin float64) []bool {
	n := len(loud)
	if margin < 0 || math.IsNaN(margin) {
		margin = 0
	}

	// prefix[k] = number of loud frames in loud[:k]
	prefix := make([]int, n+1)
	for i, v := range loud {
		prefix[i+1] = prefix[i]
		if v {
			prefix[i+1]++
		}
	}

	include := make([]bool, n)
	for i := range include {
		lo := int(math.Max(0, float64(i)-margin))
		hi := int(math.Min(float64(n), float64(i)+1+margin))
		include[i] = prefix[hi]-prefix[lo] > 0
	}
	return include
}

// Split turns each maximal run of identical flags into one segment, tagged
// Sounded for true and Silent for false.
func Split(include []bool) []Segment {
	if len(include) == 0 {
		return nil
	}

	var segs []Segment
	start := 0
	for i := 1; i < len(include); i++ {
		if include[i] != include[i-1] {
			segs = append(segs, Segment{Start: start, End: i, Tag: tagOf(include[i-1])})
			start = i
		}
	}
	return append(segs, Segment{Start: start, End: len(include), Tag: tagOf(include[len(include)-1])})
}

// Smooth enforces the minimum silence length minSilence (in frames):
//   - a leading silent segment shorter than minSilence becomes sounded;
//   - a sounded segment absorbs every following segment that is sounded or
//     silent and shorter than minSilence.
//
// The input is not modified.
func Smooth(segs []Segment, minSilence int) []Segment {
	if len(segs) == 0 {
		return nil
	}

	out := make([]Segment, 0, len(segs))
	first := segs[0]
	if first.Tag == Silent && first.Len() < minSilence {
		first.Tag = Sounded
	}
	out = append(out, first)

	for _, s := range segs[1:] {
		last := &out[len(out)-1]
		if last.Tag == Sounded && (s.Tag == Sounded || s.Len() < minSilence) {
			last.End = s.End
			continue
		}
		out = append(out, s)
	}
	return out
}

// Build runs Expand, Split and Smooth.
func Build(loud []bool, margin float64, minSilence int) []Segment {
	return Smooth(Split(Expand(loud, margin)), minSilence)
}

// Rebase shifts every segment by -offset so the first frame of a section
// lines up with frame zero of its extracted file.
func Rebase(segs []Segment, offset int) []Segment {
	out := make([]Segment, len(segs))
	for i, s := range segs {
		out[i] = Segment{Start: s.Start - offset, End: s.End - offset, Tag: s.Tag}
	}
	return out
}

// Frames returns the summed length of segs.
func Frames(segs []Segment) int {
	n := 0
	for _, s := range segs {
		n += s.Len()
	}
	return n
}

// Totals returns the silent and sounded frame counts of segs.
func Totals(segs []Segment) (silent, sounded int) {
	for _, s := range segs {
		if s.Tag == Sounded {
			sounded += s.Len()
		} else {
			silent += s.Len()
		}
	}
	return silent, sounded
}

// Validate checks that segs covers [0, frameCount) without gaps or overlaps
// and that adjacent segments have different tags.
func Validate(segs []Segment, frameCount int) error {
	next := 0
	for i, s := range segs {
		if s.Len() <= 0 {
			return fmt.Errorf("%w: index %d %s", ErrEmptySegment, i, s)
		}
		if s.Start != next {
			return fmt.Errorf("%w: index %d starts at %d, want %d", ErrGap, i, s.Start, next)
		}
		if i > 0 && segs[i-1].Tag == s.Tag {
			return fmt.Errorf("%w: index %d and %d are %s", ErrSameTag, i-1, i, s.Tag)
		}
		next = s.End
	}
	if next != frameCount {
		return fmt.Errorf("%w: covered %d of %d", ErrCoverageShort, next, frameCount)
	}
	return nil
}

func tagOf(included bool) Tag {
	if included {
		return Sounded
	}
	return Silent
}
