// Package loudness classifies fixed-width windows of an audio track as loud
// or silent by their peak amplitude relative to the track's global peak.
package loudness

import (
	"fmt"
	"math"

	"github.com/go-audio/audio"

	"github.com/maauso/jumpcutter/internal/apperr"
)

// Static errors for loudness analysis.
var (
	// ErrEmptyTrack is returned when the buffer holds no samples.
	ErrEmptyTrack = fmt.Errorf("%w: audio track contains no samples", apperr.ErrInput)
	// ErrSilentTrack is returned when every sample is zero, which leaves the
	// normalization undefined.
	ErrSilentTrack = fmt.Errorf("%w: audio track is silent throughout", apperr.ErrInput)
	// ErrInvalidRate is returned for a non-positive sample or frame rate.
	ErrInvalidRate = fmt.Errorf("%w: sample rate and frame rate must be positive", apperr.ErrConfig)
	// ErrInvalidThreshold is returned for a threshold outside (0, 1].
	ErrInvalidThreshold = fmt.Errorf("%w: silent threshold must be in (0, 1]", apperr.ErrConfig)
	// ErrNoFormat is returned when the buffer carries no format description.
	ErrNoFormat = fmt.Errorf("%w: audio buffer has no format", apperr.ErrInput)
)

// Table holds one loud/silent flag per frame. It is never modified after
// Analyze returns it.
type Table []bool

// Len returns the number of frames.
func (t Table) Len() int { return len(t) }

// Loud returns the number of loud frames.
func (t Table) Loud() int {
	n := 0
	for _, v := range t {
		if v {
			n++
		}
	}
	return n
}

// FrameCount returns ceil(sampleFrames / samplesPerFrame).
func FrameCount(sampleFrames int, sampleRate, frameRate float64) int {
	if sampleFrames <= 0 || sampleRate <= 0 || frameRate <= 0 {
		return 0
	}
	return int(math.Ceil(float64(sampleFrames) / (sampleRate / frameRate)))
}

// Analyze splits buf into windows of sampleRate/frameRate sample frames and
// marks each window loud iff its peak divided by the global peak reaches
// threshold. Samples of all channels in a window participate.
func Analyze(buf *audio.IntBuffer, frameRate, threshold float64) (Table, error) {
	if buf == nil || len(buf.Data) == 0 {
		return nil, ErrEmptyTrack
	}
	if buf.Format == nil {
		return nil, ErrNoFormat
	}
	if threshold <= 0 || threshold > 1 || math.IsNaN(threshold) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}
	sampleRate := float64(buf.Format.SampleRate)
	if sampleRate <= 0 || frameRate <= 0 {
		return nil, fmt.Errorf("%w: sample_rate=%v frame_rate=%v", ErrInvalidRate, sampleRate, frameRate)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	sampleFrames := len(buf.Data) / channels
	if sampleFrames == 0 {
		return nil, ErrEmptyTrack
	}

	global := peak(buf.Data[:sampleFrames*channels])
	if global == 0 {
		return nil, ErrSilentTrack
	}

	perFrame := sampleRate / frameRate
	count := FrameCount(sampleFrames, sampleRate, frameRate)
	table := make(Table, count)
	for i := range table {
		start := int(float64(i) * perFrame)
		end := min(int(float64(i+1)*perFrame), sampleFrames)
		if start >= end {
			continue
		}
		window := buf.Data[start*channels : end*channels]
		if float64(peak(window))/float64(global) >= threshold {
			table[i] = true
		}
	}

	return table, nil
}

// peak returns max(|max(s)|, |min(s)|).
func peak(s []int) int {
	if len(s) == 0 {
		return 0
	}
	hi, lo := s[0], s[0]
	for _, v := range s[1:] {
		if v > hi {
			hi = v
		}
		if v < lo {
			lo = v
		}
	}
	return max(abs(hi), abs(lo))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
