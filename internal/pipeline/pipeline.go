// Package pipeline renders a segmented timeline either in one engine pass
// or as independently rendered sections joined back together in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/maauso/jumpcutter/internal/apperr"
	"github.com/maauso/jumpcutter/internal/render"
	"github.com/maauso/jumpcutter/internal/segment"
)

// ErrNoPlanner is returned when a Request carries no planner.
var ErrNoPlanner = errors.New("pipeline: planner is required")

// Engine is the transcoding engine the pipeline drives.
type Engine interface {
	Render(ctx context.Context, job *render.Job, input, output string) error
	Extract(ctx context.Context, src, dst string, start, end float64) error
	Concat(ctx context.Context, inputs []string, output string) error
}

// Workspace hands out scratch paths for section files and the staged
// output, and removes them again.
type Workspace interface {
	Path(name string) string
	Remove(ctx context.Context, paths ...string) error
}

// Section is the contiguous segment index range [Lo, Hi).
type Section struct {
	Index int `json:"index"`
	Lo    int `json:"lo"`
	Hi    int `json:"hi"`
}

// Len returns the number of segments in the section.
func (s Section) Len() int { return s.Hi - s.Lo }

// Partition splits n segments into contiguous sections of at most size
// segments, in order. A size below 1 yields a single section.
func Partition(n, size int) []Section {
	if n <= 0 {
		return nil
	}
	if size < 1 {
		size = n
	}
	out := make([]Section, 0, (n+size-1)/size)
	for lo := 0; lo < n; lo += size {
		out = append(out, Section{Index: len(out), Lo: lo, Hi: min(lo+size, n)})
	}
	return out
}

// Request describes one render of a segmented timeline.
type Request struct {
	Input  string
	Output string
	// Segments are contiguous and in source frame coordinates. They need
	// not start at frame zero (a trimmed timeline does not).
	Segments    []segment.Segment
	Planner     *render.Planner
	SectionSize int
	Workspace   Workspace
	// Progress, if set, is called after each rendered section. Calls may
	// come from several goroutines but never concurrently.
	Progress func(sec Section, done, total int)
}

// Result reports what a Run did.
type Result struct {
	Sections   []Section
	SinglePass bool
	// Duration is the planned output length in seconds.
	Duration float64
}

// Pipeline executes Requests against an Engine.
type Pipeline struct {
	engine        Engine
	logger        *slog.Logger
	maxConcurrent int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxConcurrent bounds how many sections are extracted and rendered at
// once. Values below 1 mean sequential.
func WithMaxConcurrent(n int) Option {
	return func(p *Pipeline) {
		if n < 1 {
			n = 1
		}
		p.maxConcurrent = n
	}
}

// New creates a Pipeline.
func New(engine Engine, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{engine: engine, logger: logger, maxConcurrent: 1}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SinglePass reports whether n segments are rendered in one invocation.
func SinglePass(n, sectionSize int) bool {
	return n <= sectionSize || sectionSize < 2
}

// Run renders req.Segments into req.Output. The result is rendered inside
// the workspace and moved onto req.Output only once it is complete, so a
// failed run leaves req.Output exactly as it found it. On failure every
// scratch file created so far is removed.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	n := len(req.Segments)
	if SinglePass(n, req.SectionSize) {
		return p.runSingle(ctx, req)
	}
	return p.runSections(ctx, req)
}

func validate(req Request) error {
	if len(req.Segments) == 0 {
		return render.ErrEmptyPlan
	}
	if req.Planner == nil {
		return ErrNoPlanner
	}
	first, last := req.Segments[0], req.Segments[len(req.Segments)-1]
	if err := segment.Validate(segment.Rebase(req.Segments, first.Start), last.End-first.Start); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrInput, err)
	}
	return nil
}

func (p *Pipeline) runSingle(ctx context.Context, req Request) (*Result, error) {
	job, err := req.Planner.Plan(req.Segments)
	if err != nil {
		return nil, apperr.Stage("plan", err)
	}

	p.logger.Info("rendering in a single pass",
		slog.Int("segments", len(req.Segments)),
		slog.String("output", req.Output),
	)

	staged := stagedPath(req)
	if err := p.engine.Render(ctx, job, req.Input, staged); err != nil {
		p.discard(ctx, req.Workspace, staged)
		return nil, apperr.Stage("render", err)
	}
	if err := commit(staged, req.Output); err != nil {
		p.discard(ctx, req.Workspace, staged)
		return nil, apperr.Stage("commit", err)
	}
	whole := Section{Index: 0, Lo: 0, Hi: len(req.Segments)}
	if req.Progress != nil {
		req.Progress(whole, 1, 1)
	}

	return &Result{
		Sections:   []Section{whole},
		SinglePass: true,
		Duration:   job.Duration(req.Planner.FrameRate),
	}, nil
}

// sectionRun tracks files owned by one sectioned run.
type sectionRun struct {
	mu      sync.Mutex
	scratch []string
	done    int
}

func (r *sectionRun) own(path string) {
	r.mu.Lock()
	r.scratch = append(r.scratch, path)
	r.mu.Unlock()
}

func (r *sectionRun) files() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	files := r.scratch
	r.scratch = nil
	return files
}

func (p *Pipeline) runSections(ctx context.Context, req Request) (*Result, error) {
	sections := Partition(len(req.Segments), req.SectionSize)
	srcExt := extOr(req.Input, ".mp4")
	outExt := extOr(req.Output, ".mp4")

	p.logger.Info("rendering in sections",
		slog.Int("segments", len(req.Segments)),
		slog.Int("sections", len(sections)),
		slog.Int("max_concurrent", p.maxConcurrent),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	run := &sectionRun{}
	outputs := make([]string, len(sections))
	durations := make([]float64, len(sections))

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	sem := make(chan struct{}, p.maxConcurrent)
	for _, sec := range sections {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(sec Section) {
			defer wg.Done()
			defer func() { <-sem }()

			out := req.Workspace.Path(fmt.Sprintf("section_%04d%s", sec.Index, outExt))
			src := req.Workspace.Path(fmt.Sprintf("section_%04d_src%s", sec.Index, srcExt))

			dur, err := p.renderSection(ctx, req, run, sec, src, out)
			if err != nil {
				fail(err)
				return
			}
			outputs[sec.Index] = out
			durations[sec.Index] = dur

			run.mu.Lock()
			run.done++
			if req.Progress != nil {
				req.Progress(sec, run.done, len(sections))
			}
			run.mu.Unlock()
		}(sec)
	}
	wg.Wait()

	if firstErr == nil && ctx.Err() != nil {
		firstErr = ctx.Err()
	}
	if firstErr != nil {
		p.discard(ctx, req.Workspace, run.files()...)
		return nil, firstErr
	}

	staged := stagedPath(req)
	run.own(staged)

	started := time.Now()
	if err := p.engine.Concat(ctx, outputs, staged); err != nil {
		p.discard(ctx, req.Workspace, run.files()...)
		return nil, apperr.Stage("concat", err)
	}
	if err := commit(staged, req.Output); err != nil {
		p.discard(ctx, req.Workspace, run.files()...)
		return nil, apperr.Stage("commit", err)
	}
	p.discard(ctx, req.Workspace, run.files()...)

	p.logger.Info("sections joined",
		slog.Int("sections", len(sections)),
		slog.Duration("elapsed", time.Since(started)),
		slog.String("output", req.Output),
	)

	var total float64
	for _, d := range durations {
		total += d
	}
	return &Result{Sections: sections, Duration: total}, nil
}

// renderSection extracts the section's time range from the source, plans
// its rebased segments and renders them to out.
func (p *Pipeline) renderSection(ctx context.Context, req Request, run *sectionRun, sec Section, src, out string) (float64, error) {
	segs := req.Segments[sec.Lo:sec.Hi]
	offset := segs[0].Start
	fr := req.Planner.FrameRate
	start := float64(offset) / fr
	end := float64(segs[len(segs)-1].End) / fr

	p.logger.Debug("extracting section",
		slog.Int("section", sec.Index),
		slog.Int("lo", sec.Lo),
		slog.Int("hi", sec.Hi),
		slog.Float64("start", start),
		slog.Float64("end", end),
	)

	run.own(src)
	if err := p.engine.Extract(ctx, req.Input, src, start, end); err != nil {
		return 0, apperr.Stage(fmt.Sprintf("section %d extract", sec.Index), err)
	}

	job, err := req.Planner.Plan(segment.Rebase(segs, offset))
	if err != nil {
		return 0, apperr.Stage(fmt.Sprintf("section %d plan", sec.Index), err)
	}
	planned := job.Segments()
	p.logger.Debug("section planned",
		slog.Int("section", sec.Index),
		slog.Int("segments", len(planned)),
		slog.Int("frames", planned[len(planned)-1].End),
		slog.Float64("duration", job.Duration(fr)),
	)

	run.own(out)
	if err := p.engine.Render(ctx, job, src, out); err != nil {
		return 0, apperr.Stage(fmt.Sprintf("section %d render", sec.Index), err)
	}
	if err := req.Workspace.Remove(ctx, src); err != nil {
		p.logger.Debug("failed to remove section source", slog.String("error", err.Error()))
	}

	return job.Duration(fr), nil
}

// discard removes scratch files of this run. It runs after cancellation
// too, so it does not inherit ctx's deadline.
func (p *Pipeline) discard(ctx context.Context, ws Workspace, paths ...string) {
	if len(paths) == 0 {
		return
	}
	if err := ws.Remove(context.WithoutCancel(ctx), paths...); err != nil {
		p.logger.Warn("failed to remove scratch files",
			slog.Int("files", len(paths)),
			slog.String("error", err.Error()),
		)
	}
}

// stagedPath is where the finished render is assembled before it replaces
// the output. It keeps the output's extension so ffmpeg picks the same muxer.
func stagedPath(req Request) string {
	return req.Workspace.Path("output" + extOr(req.Output, ".mp4"))
}

func extOr(path, fallback string) string {
	if ext := filepath.Ext(path); ext != "" {
		return ext
	}
	return fallback
}
