// Package render plans a single ffmpeg invocation that retimes a range of
// segments and joins them back into one continuous stream.
//
// Planning is pure: a Job only describes the filter graph. Executing it is
// the transcoding engine's business (see package media).
package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/maauso/jumpcutter/internal/apperr"
	"github.com/maauso/jumpcutter/internal/segment"
	"github.com/maauso/jumpcutter/internal/speed"
)

// atempo accepts factors in [0.5, 100].
const (
	DefaultMinTempo = 0.5
	DefaultMaxTempo = 100.0
)

// Output stream labels produced by the concat stage.
const (
	VideoOut = "[v]"
	AudioOut = "[a]"
)

// Static errors for planning.
var (
	// ErrEmptyPlan is returned when no segment is left to render.
	ErrEmptyPlan = fmt.Errorf("%w: no segments to render", apperr.ErrInput)
	// ErrInvalidRates is returned for non-positive sample or frame rates.
	ErrInvalidRates = fmt.Errorf("%w: sample rate and frame rate must be positive", apperr.ErrConfig)
	// ErrInvalidSpeed is returned when the mapper yields a non-positive speed.
	ErrInvalidSpeed = fmt.Errorf("%w: segment speed must be finite and positive", apperr.ErrConfig)
	// ErrInvalidTempoRange is returned when the tempo bounds cannot reach every factor.
	ErrInvalidTempoRange = fmt.Errorf("%w: tempo range must satisfy 0 < min < 1 < max", apperr.ErrConfig)
)

// Op is the paired video/audio operation for one segment.
type Op struct {
	// Label is unique within a Job and names the [vN]/[aN] pads.
	Label   int
	Segment segment.Segment
	Speed   float64
	// StartSample and EndSample bound the audio trim.
	StartSample int64
	EndSample   int64
	// Tempo holds the chained atempo factors; their product equals Speed.
	Tempo []float64
}

// Job is one planned invocation of the transcoding engine.
type Job struct {
	Ops []Op
}

// Planner builds Jobs for a given stream layout.
type Planner struct {
	SampleRate float64
	FrameRate  float64
	Speeds     speed.Mapper
	// MinTempo and MaxTempo bound a single atempo stage. Zero means default.
	MinTempo float64
	MaxTempo float64
}

// NewPlanner returns a Planner with the default tempo bounds.
func NewPlanner(sampleRate, frameRate float64, speeds speed.Mapper) *Planner {
	return &Planner{
		SampleRate: sampleRate,
		FrameRate:  frameRate,
		Speeds:     speeds,
		MinTempo:   DefaultMinTempo,
		MaxTempo:   DefaultMaxTempo,
	}
}

// Plan emits one Op per segment, in order. Segment frames must already be
// relative to the file the job will run against.
func (p *Planner) Plan(segs []segment.Segment) (*Job, error) {
	if len(segs) == 0 {
		return nil, ErrEmptyPlan
	}
	if !(p.SampleRate > 0) || !(p.FrameRate > 0) {
		return nil, fmt.Errorf("%w: sample_rate=%v frame_rate=%v", ErrInvalidRates, p.SampleRate, p.FrameRate)
	}
	minTempo, maxTempo := p.tempoBounds()

	job := &Job{Ops: make([]Op, 0, len(segs))}
	for i, s := range segs {
		sp := p.Speeds.Speed(s)
		if !(sp > 0) || math.IsInf(sp, 0) {
			return nil, fmt.Errorf("%w: %s got %v", ErrInvalidSpeed, s, sp)
		}
		tempo, err := TempoChain(sp, minTempo, maxTempo)
		if err != nil {
			return nil, err
		}
		job.Ops = append(job.Ops, Op{
			Label:       i,
			Segment:     s,
			Speed:       sp,
			StartSample: p.sampleAt(s.Start),
			EndSample:   p.sampleAt(s.End),
			Tempo:       tempo,
		})
	}
	return job, nil
}

func (p *Planner) tempoBounds() (float64, float64) {
	lo, hi := p.MinTempo, p.MaxTempo
	if lo == 0 {
		lo = DefaultMinTempo
	}
	if hi == 0 {
		hi = DefaultMaxTempo
	}
	return lo, hi
}

// sampleAt converts a frame boundary to the nearest audio sample.
func (p *Planner) sampleAt(frame int) int64 {
	return int64(math.Round(float64(frame) * p.SampleRate / p.FrameRate))
}

// TempoChain splits factor into atempo stages each within [minTempo, maxTempo]
// whose product equals factor. A factor of exactly 1 needs no stage.
func TempoChain(factor, minTempo, maxTempo float64) ([]float64, error) {
	if !(minTempo > 0) || !(minTempo < 1) || !(maxTempo > 1) || math.IsInf(maxTempo, 0) {
		return nil, fmt.Errorf("%w: min=%v max=%v", ErrInvalidTempoRange, minTempo, maxTempo)
	}
	if !(factor > 0) || math.IsInf(factor, 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidSpeed, factor)
	}
	if factor == 1 {
		return nil, nil
	}

	var stages []float64
	rest := factor
	for rest > maxTempo {
		stages = append(stages, maxTempo)
		rest /= maxTempo
	}
	for rest < minTempo {
		stages = append(stages, minTempo)
		rest /= minTempo
	}
	return append(stages, rest), nil
}

// TrimRange returns the half-open index range of segs to render. With trim
// set, a leading silent segment and a trailing silent segment are left out.
// The segmentation itself is untouched.
func TrimRange(segs []segment.Segment, trim bool) (lo, hi int) {
	lo, hi = 0, len(segs)
	if !trim || len(segs) == 0 {
		return lo, hi
	}
	if segs[0].Tag == segment.Silent {
		lo = 1
	}
	if hi > lo && segs[hi-1].Tag == segment.Silent {
		hi--
	}
	return lo, hi
}

// Script renders the job as an ffmpeg filter_complex script reading stream
// 0 and producing the VideoOut and AudioOut pads.
func (j *Job) Script() string {
	var b strings.Builder
	var cat strings.Builder
	for _, op := range j.Ops {
		fmt.Fprintf(&b, "[0:v]trim=start_frame=%d:end_frame=%d,setpts=PTS-STARTPTS", op.Segment.Start, op.Segment.End)
		if op.Speed != 1 {
			fmt.Fprintf(&b, ",setpts=%s*PTS", formatFloat(1/op.Speed))
		}
		fmt.Fprintf(&b, "[v%d];", op.Label)

		fmt.Fprintf(&b, "[0:a]atrim=start_sample=%d:end_sample=%d,asetpts=PTS-STARTPTS", op.StartSample, op.EndSample)
		for _, factor := range op.Tempo {
			fmt.Fprintf(&b, ",atempo=%s", formatFloat(factor))
		}
		fmt.Fprintf(&b, "[a%d];\n", op.Label)

		fmt.Fprintf(&cat, "[v%d][a%d]", op.Label, op.Label)
	}
	fmt.Fprintf(&cat, "concat=n=%d:v=1:a=1%s%s", len(j.Ops), VideoOut, AudioOut)
	b.WriteString(cat.String())
	return b.String()
}

// Segments returns the planned segments in order.
func (j *Job) Segments() []segment.Segment {
	out := make([]segment.Segment, len(j.Ops))
	for i, op := range j.Ops {
		out[i] = op.Segment
	}
	return out
}

// Duration returns the retimed length of the job in seconds.
func (j *Job) Duration(frameRate float64) float64 {
	var total float64
	for _, op := range j.Ops {
		total += float64(op.Segment.Len()) / frameRate / op.Speed
	}
	return total
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
