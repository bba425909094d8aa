package job

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/jumpcutter/internal/apperr"
	"github.com/maauso/jumpcutter/internal/audio"
	"github.com/maauso/jumpcutter/internal/config"
	"github.com/maauso/jumpcutter/internal/media"
	"github.com/maauso/jumpcutter/internal/render"
	"github.com/maauso/jumpcutter/internal/storage"
)

type mockProber struct{ mock.Mock }

func (m *mockProber) Probe(ctx context.Context, path string) (media.Info, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(media.Info), args.Error(1)
}

type mockExtractor struct{ mock.Mock }

func (m *mockExtractor) Extract(ctx context.Context, src, wavPath string, opts audio.ExtractOpts) (*goaudio.IntBuffer, error) {
	args := m.Called(ctx, src, wavPath, opts)
	buf, _ := args.Get(0).(*goaudio.IntBuffer)
	return buf, args.Error(1)
}

type mockEngine struct{ mock.Mock }

func (m *mockEngine) Render(ctx context.Context, job *render.Job, input, output string) error {
	return m.Called(ctx, job, input, output).Error(0)
}

func (m *mockEngine) Extract(ctx context.Context, src, dst string, start, end float64) error {
	return m.Called(ctx, src, dst, start, end).Error(0)
}

func (m *mockEngine) Concat(ctx context.Context, inputs []string, output string) error {
	return m.Called(ctx, inputs, output).Error(0)
}

type countingRecorder struct {
	mu       sync.Mutex
	started  int
	outcomes []string
	sections int
	segments int
	output   float64
}

func (r *countingRecorder) RecordRunStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *countingRecorder) RecordRunFinished(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *countingRecorder) RecordTimeline(segments int, _, out float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segments = segments
	r.output = out
}

func (r *countingRecorder) RecordSectionRendered() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sections++
}

// publishingStorage is a LocalStorage that pretends to upload.
type publishingStorage struct {
	*storage.LocalStorage
	keys []string
}

func (s *publishingStorage) Publish(_ context.Context, _, key string) (string, error) {
	s.keys = append(s.keys, key)
	return "https://bucket.example/" + key, nil
}

// toneBuffer is 10 frames at 10 fps and 100 Hz mono with only frame 3 loud.
// With a one-frame margin that segments into silent[0,2) sounded[2,5)
// silent[5,10).
func toneBuffer() *goaudio.IntBuffer {
	data := make([]int, 100)
	for i := 30; i < 40; i++ {
		data[i] = 1000
	}
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{SampleRate: 100, NumChannels: 1},
		Data:           data,
		SourceBitDepth: 16,
	}
}

var toneInfo = media.Info{FrameRate: 10, SampleRate: 100, BitRate: 160000, HasVideo: true, HasAudio: true}

// writesArg creates the file named by argument i, like a successful ffmpeg run.
func writesArg(t *testing.T, i int) func(mock.Arguments) {
	return func(args mock.Arguments) {
		require.NoError(t, os.WriteFile(args.String(i), []byte("media"), 0600))
	}
}

// staged matches the workspace file a render is assembled in before it
// replaces the requested output.
var staged = mock.MatchedBy(func(path string) bool {
	return filepath.Base(path) == "output.mp4"
})

type fixture struct {
	svc       *Service
	repo      *MemoryRepository
	prober    *mockProber
	extractor *mockExtractor
	engine    *mockEngine
	recorder  *countingRecorder
	input     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "talk.mp4")
	require.NoError(t, os.WriteFile(input, []byte("source"), 0600))

	store, err := storage.NewLocalStorage(filepath.Join(dir, "work"))
	require.NoError(t, err)

	f := &fixture{
		repo:      NewMemoryRepository(),
		prober:    &mockProber{},
		extractor: &mockExtractor{},
		engine:    &mockEngine{},
		recorder:  &countingRecorder{},
		input:     input,
	}
	f.svc = NewService(f.repo, f.prober, f.extractor, f.engine, store, slog.New(slog.DiscardHandler))
	f.svc.SetRecorder(f.recorder)
	return f
}

func (f *fixture) expectAnalysis() {
	f.prober.On("Probe", mock.Anything, f.input).Return(toneInfo, nil)
	f.extractor.On("Extract", mock.Anything, f.input, mock.Anything, audio.ExtractOpts{
		SampleRate: 100,
		BitRate:    160000,
		Channels:   2,
	}).Return(toneBuffer(), nil)
}

func TestNewService(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil, nil, nil, nil, nil)
	require.NotNil(t, svc)
	assert.NotNil(t, svc.logger)
	assert.Equal(t, 1, svc.maxConcurrentSections)
	assert.Equal(t, nopRecorder{}, svc.recorder)

	svc.SetMaxConcurrentSections(4)
	assert.Equal(t, 4, svc.maxConcurrentSections)
	svc.SetMaxConcurrentSections(0)
	assert.Equal(t, 4, svc.maxConcurrentSections, "non-positive values are ignored")

	svc.SetRecorder(nil)
	assert.Equal(t, nopRecorder{}, svc.recorder)
}

func TestService_CreateJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.svc.CreateJob(ctx, RetimeInput{InputPath: f.input, Options: config.DefaultOptions(), PushToS3: true})
	require.NoError(t, err)

	assert.Equal(t, StatusInQueue, job.Status)
	assert.Equal(t, f.input, job.InputPath)
	assert.Equal(t, filepath.Join(filepath.Dir(f.input), "talk_ALTERED.mp4"), job.OutputPath)
	assert.True(t, job.PushToS3)

	stored, err := f.repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.OutputPath, stored.OutputPath)
}

func TestService_CreateJob_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("invalid options", func(t *testing.T) {
		opts := config.DefaultOptions()
		opts.SilentThreshold = 0
		_, err := f.svc.CreateJob(ctx, RetimeInput{InputPath: f.input, Options: opts})
		assert.ErrorIs(t, err, apperr.ErrConfig)
	})

	t.Run("missing source", func(t *testing.T) {
		_, err := f.svc.CreateJob(ctx, RetimeInput{InputPath: f.input + ".missing", Options: config.DefaultOptions()})
		assert.ErrorIs(t, err, ErrSourceNotFound)
		assert.ErrorIs(t, err, apperr.ErrInput)
	})

	t.Run("directory source", func(t *testing.T) {
		_, err := f.svc.CreateJob(ctx, RetimeInput{InputPath: filepath.Dir(f.input), Options: config.DefaultOptions()})
		assert.ErrorIs(t, err, ErrSourceNotFound)
	})

	t.Run("output overwrites input", func(t *testing.T) {
		_, err := f.svc.CreateJob(ctx, RetimeInput{InputPath: f.input, OutputPath: f.input, Options: config.DefaultOptions()})
		assert.ErrorIs(t, err, ErrOutputIsInput)
	})

	jobs, err := f.repo.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestService_Retime_Simulate(t *testing.T) {
	f := newFixture(t)
	f.expectAnalysis()

	opts := config.DefaultOptions()
	opts.Simulate = true

	job, err := f.svc.Retime(context.Background(), RetimeInput{InputPath: f.input, Options: opts})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, toneInfo, job.Media)
	require.NotNil(t, job.Summary)
	assert.Equal(t, 3, job.Summary.Segments)
	assert.Equal(t, 3, job.Summary.SoundedFrames)
	assert.Equal(t, 7, job.Summary.SilentFrames)
	assert.InDelta(t, 0.3+0.14, job.Summary.Total(), 1e-9)
	assert.Empty(t, job.Sections)

	f.engine.AssertNotCalled(t, "Render", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []string{"completed"}, f.recorder.outcomes)
	assert.InDelta(t, 0.44, f.recorder.output, 1e-9)
}

func TestService_Retime_SinglePass(t *testing.T) {
	f := newFixture(t)
	f.expectAnalysis()
	output := filepath.Join(filepath.Dir(f.input), "out.mp4")

	f.engine.On("Render", mock.Anything, mock.MatchedBy(func(j *render.Job) bool {
		return len(j.Ops) == 3 && j.Ops[1].Segment.Start == 2 && j.Ops[1].Segment.End == 5
	}), f.input, staged).Return(nil).Run(writesArg(t, 3))

	job, err := f.svc.Retime(context.Background(), RetimeInput{InputPath: f.input, OutputPath: output, Options: config.DefaultOptions()})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, output, job.OutputPath)
	assert.Empty(t, job.OutputURL)
	require.Len(t, job.Sections, 1)
	assert.Equal(t, SectionStatusCompleted, job.Sections[0].Status)
	assert.Equal(t, 3, job.Sections[0].Hi)
	assert.FileExists(t, output)

	f.engine.AssertExpectations(t)
	assert.Equal(t, 1, f.recorder.sections)
	assert.Equal(t, 3, f.recorder.segments)
}

func TestService_Retime_Trim(t *testing.T) {
	f := newFixture(t)
	f.expectAnalysis()
	output := filepath.Join(filepath.Dir(f.input), "out.mp4")

	f.engine.On("Render", mock.Anything, mock.MatchedBy(func(j *render.Job) bool {
		return len(j.Ops) == 1 && j.Ops[0].Segment.Start == 2
	}), f.input, staged).Return(nil).Run(writesArg(t, 3))

	opts := config.DefaultOptions()
	opts.Trim = true

	job, err := f.svc.Retime(context.Background(), RetimeInput{InputPath: f.input, OutputPath: output, Options: opts})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, 3, job.Summary.Segments, "summary covers the untrimmed timeline")
	assert.InDelta(t, 0.3, f.recorder.output, 1e-9)
}

func TestService_Retime_Sections(t *testing.T) {
	f := newFixture(t)
	f.expectAnalysis()
	f.svc.SetMaxConcurrentSections(2)
	output := filepath.Join(filepath.Dir(f.input), "out.mp4")

	f.engine.On("Extract", mock.Anything, f.input, mock.Anything, mock.Anything, mock.Anything).Return(nil).Run(writesArg(t, 2))
	f.engine.On("Render", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Run(writesArg(t, 3))
	f.engine.On("Concat", mock.Anything, mock.Anything, staged).Return(nil).Run(writesArg(t, 2))

	opts := config.DefaultOptions()
	opts.SectionSize = 2

	job, err := f.svc.Retime(context.Background(), RetimeInput{InputPath: f.input, OutputPath: output, Options: opts})
	require.NoError(t, err)

	require.Len(t, job.Sections, 2)
	assert.Equal(t, Section{Index: 1, Lo: 2, Hi: 3, Status: SectionStatusCompleted, CompletedAt: job.Sections[1].CompletedAt}, job.Sections[1])
	for _, sec := range job.Sections {
		assert.Equal(t, SectionStatusCompleted, sec.Status)
		assert.False(t, sec.CompletedAt.IsZero())
	}
	f.engine.AssertNumberOfCalls(t, "Extract", 2)
	f.engine.AssertNumberOfCalls(t, "Render", 2)
	f.engine.AssertNumberOfCalls(t, "Concat", 1)
	assert.Equal(t, 2, f.recorder.sections)
}

func TestService_Retime_ProbeFallback(t *testing.T) {
	f := newFixture(t)
	partial := media.Info{HasAudio: true, SampleRate: 100}
	f.prober.On("Probe", mock.Anything, f.input).Return(partial, apperr.ErrProbe)
	f.extractor.On("Extract", mock.Anything, f.input, mock.Anything, mock.Anything).Return(toneBuffer(), nil)

	opts := config.DefaultOptions()
	opts.Simulate = true

	job, err := f.svc.Retime(context.Background(), RetimeInput{InputPath: f.input, Options: opts})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, opts.DefaultFrameRate, job.Media.FrameRate)
	assert.Equal(t, 100, job.Media.SampleRate)
	assert.Equal(t, opts.DefaultBitRate, job.Media.BitRate)
}

func TestService_Retime_Failures(t *testing.T) {
	toolErr := errors.New("exit status 1")

	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture)
		stage string
		kind  error
	}{
		{
			name: "probe",
			setup: func(t *testing.T, f *fixture) {
				f.prober.On("Probe", mock.Anything, f.input).Return(media.Info{}, toolErr)
			},
			stage: "probe",
		},
		{
			name: "extract audio",
			setup: func(t *testing.T, f *fixture) {
				f.prober.On("Probe", mock.Anything, f.input).Return(toneInfo, nil)
				f.extractor.On("Extract", mock.Anything, f.input, mock.Anything, mock.Anything).Return(nil, audio.ErrExtraction)
			},
			stage: "extract-audio",
			kind:  apperr.ErrExternalTool,
		},
		{
			name: "silent track",
			setup: func(t *testing.T, f *fixture) {
				silent := toneBuffer()
				silent.Data = make([]int, 100)
				f.prober.On("Probe", mock.Anything, f.input).Return(toneInfo, nil)
				f.extractor.On("Extract", mock.Anything, f.input, mock.Anything, mock.Anything).Return(silent, nil)
			},
			stage: "analyze",
			kind:  apperr.ErrInput,
		},
		{
			name: "render",
			setup: func(t *testing.T, f *fixture) {
				f.expectAnalysis()
				f.engine.On("Render", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(toolErr)
			},
			stage: "render",
		},
		{
			name: "publish without s3",
			setup: func(t *testing.T, f *fixture) {
				f.expectAnalysis()
				f.engine.On("Render", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Run(writesArg(t, 3))
			},
			stage: "publish",
			kind:  storage.ErrS3NotConfigured,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(t, f)

			job, err := f.svc.Retime(context.Background(), RetimeInput{
				InputPath: f.input,
				Options:   config.DefaultOptions(),
				PushToS3:  tt.stage == "publish",
			})
			require.Error(t, err)
			if tt.kind != nil {
				assert.ErrorIs(t, err, tt.kind)
			}

			assert.Equal(t, StatusFailed, job.Status)
			assert.Equal(t, tt.stage, job.Stage)
			assert.Equal(t, err.Error(), job.Error)
			assert.Equal(t, []string{"failed"}, f.recorder.outcomes)

			stored, findErr := f.repo.FindByID(context.Background(), job.ID)
			require.NoError(t, findErr)
			assert.Equal(t, StatusFailed, stored.Status)
		})
	}
}

func TestService_Retime_FailedRenderKeepsExistingOutput(t *testing.T) {
	f := newFixture(t)
	f.expectAnalysis()
	output := filepath.Join(filepath.Dir(f.input), "keep.mp4")
	require.NoError(t, os.WriteFile(output, []byte("user data"), 0600))

	f.engine.On("Render", mock.Anything, mock.Anything, f.input, staged).Return(errors.New("exit status 1"))

	job, err := f.svc.Retime(context.Background(), RetimeInput{InputPath: f.input, OutputPath: output, Options: config.DefaultOptions()})
	require.Error(t, err)
	assert.Equal(t, StatusFailed, job.Status)

	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "user data", string(got))
}

func TestService_Retime_Publish(t *testing.T) {
	f := newFixture(t)
	f.expectAnalysis()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := &publishingStorage{LocalStorage: local}
	f.svc.store = store

	output := filepath.Join(filepath.Dir(f.input), "out.mp4")
	f.engine.On("Render", mock.Anything, mock.Anything, f.input, staged).Return(nil).Run(writesArg(t, 3))

	job, err := f.svc.Retime(context.Background(), RetimeInput{InputPath: f.input, OutputPath: output, Options: config.DefaultOptions(), PushToS3: true})
	require.NoError(t, err)

	assert.Equal(t, []string{job.ID + "/out.mp4"}, store.keys)
	assert.Equal(t, "https://bucket.example/"+job.ID+"/out.mp4", job.OutputURL)
}

func TestService_ProcessJob_Cancelled(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.CreateJob(context.Background(), RetimeInput{InputPath: f.input, Options: config.DefaultOptions()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job, err := f.svc.ProcessJob(ctx, created.ID)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusCancelled, job.Status)
	assert.Equal(t, []string{"cancelled"}, f.recorder.outcomes)
	f.prober.AssertNotCalled(t, "Probe", mock.Anything, mock.Anything)
}

func TestService_ProcessJob_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ProcessJob(ctx, "job-1-missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	done := NewWithID("job-done")
	require.NoError(t, done.Start())
	require.NoError(t, done.Complete())
	require.NoError(t, f.repo.Save(ctx, done))

	_, err = f.svc.ProcessJob(ctx, done.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_ListJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateJob(ctx, RetimeInput{InputPath: f.input, Options: config.DefaultOptions()})
	require.NoError(t, err)

	got, err := f.svc.GetJob(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	jobs, err := f.svc.ListJobs(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	jobs, err = f.svc.ListJobs(ctx, Filter{Status: StatusRunning})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestService_DeleteOutput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	output := filepath.Join(t.TempDir(), "out.mp4")
	require.NoError(t, os.WriteFile(output, []byte("video"), 0600))

	done := NewWithID("job-done")
	require.NoError(t, done.Start())
	done.SetOutput(output, "https://bucket.example/out.mp4")
	require.NoError(t, done.Complete())
	require.NoError(t, f.repo.Save(ctx, done))

	require.NoError(t, f.svc.DeleteOutput(ctx, done.ID))
	assert.NoFileExists(t, output)

	stored, err := f.repo.FindByID(ctx, done.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.OutputPath)
	assert.Empty(t, stored.OutputURL)

	// idempotent
	require.NoError(t, f.svc.DeleteOutput(ctx, done.ID))

	running := NewWithID("job-running")
	require.NoError(t, running.Start())
	require.NoError(t, f.repo.Save(ctx, running))
	assert.ErrorIs(t, f.svc.DeleteOutput(ctx, running.ID), ErrJobActive)

	assert.ErrorIs(t, f.svc.DeleteOutput(ctx, "job-missing"), ErrJobNotFound)
}
