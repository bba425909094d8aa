// Package report projects the output duration of a segmentation without
// rendering it.
package report

import (
	"fmt"
	"io"

	"github.com/maauso/jumpcutter/internal/segment"
	"github.com/maauso/jumpcutter/internal/speed"
)

// Summary holds raw and retimed durations per tag, in seconds. Every
// segment is counted; trimming only affects what is rendered.
type Summary struct {
	Segments      int     `json:"segments"`
	SoundedFrames int     `json:"sounded_frames"`
	SilentFrames  int     `json:"silent_frames"`
	Sounded       float64 `json:"sounded_seconds"`
	Silent        float64 `json:"silent_seconds"`
	AdjSounded    float64 `json:"adjusted_sounded_seconds"`
	AdjSilent     float64 `json:"adjusted_silent_seconds"`
}

// Summarize computes the projection for segs at frameRate under speeds.
func Summarize(segs []segment.Segment, frameRate float64, speeds speed.Table) Summary {
	silent, sounded := segment.Totals(segs)
	s := Summary{
		Segments:      len(segs),
		SoundedFrames: sounded,
		SilentFrames:  silent,
	}
	if frameRate > 0 {
		s.Sounded = float64(sounded) / frameRate
		s.Silent = float64(silent) / frameRate
	}
	s.AdjSounded = s.Sounded / speeds.Sounded
	s.AdjSilent = s.Silent / speeds.Silent
	return s
}

// Total is the projected output length in seconds.
func (s Summary) Total() float64 {
	return s.AdjSounded + s.AdjSilent
}

// Input is the source length covered by the segments, in seconds.
func (s Summary) Input() float64 {
	return s.Sounded + s.Silent
}

// Line is one labelled duration of a summary.
type Line struct {
	Label string
	Value string
}

// Lines lists the summary in display order.
func (s Summary) Lines() []Line {
	return []Line{
		{"Time with sound", Clock(s.Sounded)},
		{"Time in silence", Clock(s.Silent)},
		{"Adjusted time with sound", Clock(s.AdjSounded)},
		{"Adjusted time in silence", Clock(s.AdjSilent)},
		{"Total output time", Clock(s.Total())},
	}
}

// Write prints the summary as "label= H:MM:SS" lines.
func (s Summary) Write(w io.Writer) error {
	for _, l := range s.Lines() {
		if _, err := fmt.Fprintf(w, "%s= %s\n", l.Label, l.Value); err != nil {
			return err
		}
	}
	return nil
}

// Clock formats seconds as H:MM:SS, truncating fractions.
func Clock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	t := int64(seconds)
	return fmt.Sprintf("%d:%02d:%02d", t/3600, (t/60)%60, t%60)
}
