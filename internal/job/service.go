package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/maauso/jumpcutter/internal/apperr"
	"github.com/maauso/jumpcutter/internal/audio"
	"github.com/maauso/jumpcutter/internal/config"
	"github.com/maauso/jumpcutter/internal/loudness"
	"github.com/maauso/jumpcutter/internal/media"
	"github.com/maauso/jumpcutter/internal/pipeline"
	"github.com/maauso/jumpcutter/internal/render"
	"github.com/maauso/jumpcutter/internal/report"
	"github.com/maauso/jumpcutter/internal/segment"
	"github.com/maauso/jumpcutter/internal/storage"
)

// Static errors for job creation.
var (
	// ErrSourceNotFound is returned when the input file cannot be read.
	ErrSourceNotFound = fmt.Errorf("%w: source file not found", apperr.ErrInput)
	// ErrOutputIsInput is returned when the output would overwrite the source.
	ErrOutputIsInput = fmt.Errorf("%w: output path must differ from input path", apperr.ErrInput)
	// ErrJobActive is returned when an operation needs a finished job.
	ErrJobActive = errors.New("job is still active")
)

// Progress checkpoints, in percent.
const (
	progressProbed    = 5
	progressExtracted = 15
	progressAnalyzed  = 25
	progressSegmented = 30
	progressRendered  = 95
)

// Prober reads stream properties of a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (media.Info, error)
}

// Recorder receives run-level measurements.
type Recorder interface {
	RecordRunStarted()
	RecordRunFinished(outcome string, elapsed time.Duration)
	RecordTimeline(segments int, inputSeconds, outputSeconds float64)
	RecordSectionRendered()
}

type nopRecorder struct{}

func (nopRecorder) RecordRunStarted()                       {}
func (nopRecorder) RecordRunFinished(string, time.Duration) {}
func (nopRecorder) RecordTimeline(int, float64, float64)    {}
func (nopRecorder) RecordSectionRendered()                  {}

// RetimeInput contains the input parameters for a retiming run.
type RetimeInput struct {
	// InputPath is the source media file.
	InputPath string
	// OutputPath is where the result is written. Empty means
	// config.DefaultOutputPath(InputPath).
	OutputPath string
	// Options control analysis, segmentation and rendering.
	Options config.Options
	// PushToS3 indicates whether to upload the result to S3.
	PushToS3 bool
}

// Service orchestrates a retiming run: probe the source, extract and
// analyze its audio, segment the timeline, then either project durations
// (simulate) or render through the section pipeline and optionally
// publish the result.
type Service struct {
	repo      Repository
	prober    Prober
	extractor audio.Extractor
	engine    pipeline.Engine
	store     storage.Storage
	recorder  Recorder
	logger    *slog.Logger
	// maxConcurrentSections limits parallel section renders.
	maxConcurrentSections int
}

// NewService creates a new Service.
func NewService(
	repo Repository,
	prober Prober,
	extractor audio.Extractor,
	engine pipeline.Engine,
	store storage.Storage,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:                  repo,
		prober:                prober,
		extractor:             extractor,
		engine:                engine,
		store:                 store,
		recorder:              nopRecorder{},
		logger:                logger,
		maxConcurrentSections: 1,
	}
}

// SetMaxConcurrentSections configures how many sections may render in
// parallel.
func (s *Service) SetMaxConcurrentSections(n int) {
	if n > 0 {
		s.maxConcurrentSections = n
	}
}

// SetRecorder installs a metrics recorder.
func (s *Service) SetRecorder(r Recorder) {
	if r != nil {
		s.recorder = r
	}
}

// CreateJob validates the input and persists a new job in IN_QUEUE status.
func (s *Service) CreateJob(ctx context.Context, input RetimeInput) (*Job, error) {
	if err := input.Options.Validate(); err != nil {
		return nil, err
	}
	info, err := os.Stat(input.InputPath)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %q", ErrSourceNotFound, input.InputPath)
	}

	output := input.OutputPath
	if output == "" {
		output = config.DefaultOutputPath(input.InputPath)
	}
	if samePath(input.InputPath, output) {
		return nil, fmt.Errorf("%w: %q", ErrOutputIsInput, output)
	}

	job := New()
	job.InputPath = input.InputPath
	job.OutputPath = output
	job.Options = input.Options
	job.PushToS3 = input.PushToS3

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.String("input", job.InputPath),
		slog.String("output", job.OutputPath),
		slog.String("speed", input.Options.Speed.String()),
		slog.Bool("simulate", input.Options.Simulate),
		slog.Bool("push_to_s3", input.PushToS3),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return job, nil
}

// GetJob retrieves a job by ID.
func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns the jobs matching filter, newest first.
func (s *Service) ListJobs(ctx context.Context, filter Filter) ([]*Job, error) {
	return s.repo.List(ctx, filter)
}

// DeleteOutput removes the rendered file of a finished job and clears its
// output fields. A file that is already gone is not an error.
func (s *Service) DeleteOutput(ctx context.Context, id string) error {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !job.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobActive, id, job.GetStatus())
	}

	if job.OutputPath != "" {
		if err := os.Remove(job.OutputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove output: %w", err)
		}
		s.logger.Info("deleted job output",
			slog.String("job_id", id),
			slog.String("path", job.OutputPath),
		)
	}
	job.SetOutput("", "")
	return s.repo.Save(ctx, job)
}

// Retime creates a job and runs it to completion.
func (s *Service) Retime(ctx context.Context, input RetimeInput) (*Job, error) {
	job, err := s.CreateJob(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.ProcessJob(ctx, job.ID)
}

// ProcessJob runs a queued job to a terminal state. The returned job
// reflects that state even when an error is returned.
func (s *Service) ProcessJob(ctx context.Context, jobID string) (*Job, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.Start(); err != nil {
		return nil, fmt.Errorf("start job %s: %w", jobID, err)
	}
	s.save(ctx, job)

	logger := s.logger.With(slog.String("job_id", job.ID))
	started := time.Now()
	s.recorder.RecordRunStarted()

	runErr := s.run(ctx, job, logger)

	outcome := "completed"
	switch {
	case runErr == nil:
		_ = job.Complete()
		logger.Info("job completed",
			slog.String("output", job.OutputPath),
			slog.Duration("elapsed", time.Since(started)),
		)
	case errors.Is(runErr, context.Canceled):
		outcome = "cancelled"
		_ = job.Cancel()
		logger.Warn("job cancelled", slog.String("stage", apperr.StageOf(runErr)))
	default:
		outcome = "failed"
		_ = job.Fail(apperr.StageOf(runErr), runErr.Error())
		logger.Error("job failed",
			slog.String("stage", apperr.StageOf(runErr)),
			slog.String("error", runErr.Error()),
		)
	}
	s.recorder.RecordRunFinished(outcome, time.Since(started))

	// the run context may be gone; persist the terminal state regardless
	s.save(context.WithoutCancel(ctx), job)
	return job.Clone(), runErr
}

func (s *Service) run(ctx context.Context, job *Job, logger *slog.Logger) error {
	opts := job.Options

	ws, err := s.store.NewWorkspace(ctx, job.ID)
	if err != nil {
		return apperr.Stage("workspace", err)
	}
	logger.Debug("workspace created", slog.String("dir", ws.Dir()))
	defer func() {
		if err := ws.Close(); err != nil {
			logger.Warn("failed to remove workspace", slog.String("error", err.Error()))
		}
	}()

	// Probe
	info, err := s.prober.Probe(ctx, job.InputPath)
	if err != nil {
		if !errors.Is(err, apperr.ErrProbe) {
			return apperr.Stage("probe", err)
		}
		logger.Warn("could not determine stream properties, using defaults",
			slog.String("error", err.Error()),
			slog.Float64("default_frame_rate", opts.DefaultFrameRate),
			slog.Int("default_sample_rate", opts.DefaultSampleRate),
		)
	}
	info = info.WithDefaults(opts.DefaultFrameRate, opts.DefaultSampleRate, opts.DefaultBitRate)
	job.SetMedia(info)
	s.progress(ctx, job, progressProbed)

	logger.Info("probed source",
		slog.Float64("frame_rate", info.FrameRate),
		slog.Int("sample_rate", info.SampleRate),
		slog.Int("bit_rate", info.BitRate),
		slog.Float64("duration", info.Duration),
	)

	// Extract audio
	buf, err := s.extractor.Extract(ctx, job.InputPath, ws.Path("audio.wav"), audio.ExtractOpts{
		SampleRate: info.SampleRate,
		BitRate:    info.BitRate,
		Channels:   2,
	})
	if err != nil {
		return apperr.Stage("extract-audio", err)
	}
	s.progress(ctx, job, progressExtracted)

	// Analyze
	table, err := loudness.Analyze(buf, info.FrameRate, opts.SilentThreshold)
	if err != nil {
		return apperr.Stage("analyze", err)
	}
	s.progress(ctx, job, progressAnalyzed)

	// Segment
	segs := segment.Build(table, opts.FrameMargin, opts.SilenceDuration)
	if err := segment.Validate(segs, table.Len()); err != nil {
		return apperr.Stage("segment", err)
	}
	summary := report.Summarize(segs, info.FrameRate, opts.Speed)
	job.SetSummary(summary)
	s.progress(ctx, job, progressSegmented)

	logger.Info("segmented timeline",
		slog.Int("frames", table.Len()),
		slog.Int("loud_frames", table.Loud()),
		slog.Int("segments", len(segs)),
		slog.String("projected_output", report.Clock(summary.Total())),
	)

	if opts.Simulate {
		s.recorder.RecordTimeline(len(segs), summary.Input(), summary.Total())
		return nil
	}

	// Render
	lo, hi := render.TrimRange(segs, opts.Trim)
	if lo >= hi {
		return apperr.Stage("render", render.ErrEmptyPlan)
	}
	segs = segs[lo:hi]

	job.SetSections(plannedSections(len(segs), opts.SectionSize))
	s.save(ctx, job)

	planner := render.NewPlanner(float64(info.SampleRate), info.FrameRate, opts.Speed)
	p := pipeline.New(s.engine, logger, pipeline.WithMaxConcurrent(s.maxConcurrentSections))
	res, err := p.Run(ctx, pipeline.Request{
		Input:       job.InputPath,
		Output:      job.OutputPath,
		Segments:    segs,
		Planner:     planner,
		SectionSize: opts.SectionSize,
		Workspace:   ws,
		Progress: func(sec pipeline.Section, done, total int) {
			job.CompleteSection(sec.Index)
			s.recorder.RecordSectionRendered()
			s.progress(ctx, job, progressSegmented+(progressRendered-progressSegmented)*done/total)
		},
	})
	if err != nil {
		return err
	}
	s.recorder.RecordTimeline(len(segs), summary.Input(), res.Duration)

	// Publish
	var url string
	if job.PushToS3 {
		key := job.ID + "/" + filepath.Base(job.OutputPath)
		url, err = s.store.Publish(ctx, job.OutputPath, key)
		if err != nil {
			return apperr.Stage("publish", err)
		}
		logger.Info("published output", slog.String("url", url))
	}
	job.SetOutput(job.OutputPath, url)
	return nil
}

// plannedSections mirrors the partition the pipeline will use.
func plannedSections(n, sectionSize int) []Section {
	parts := []pipeline.Section{{Index: 0, Lo: 0, Hi: n}}
	if !pipeline.SinglePass(n, sectionSize) {
		parts = pipeline.Partition(n, sectionSize)
	}
	out := make([]Section, len(parts))
	for i, p := range parts {
		out[i] = Section{Index: p.Index, Lo: p.Lo, Hi: p.Hi, Status: SectionStatusPending}
	}
	return out
}

func (s *Service) progress(ctx context.Context, job *Job, pct int) {
	job.UpdateProgress(pct)
	s.save(ctx, job)
}

func (s *Service) save(ctx context.Context, job *Job) {
	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Warn("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}
