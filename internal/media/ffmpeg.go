// Package media drives the ffmpeg and ffprobe binaries: probing a source,
// rendering a planned filter graph, cutting time ranges and joining clips.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/maauso/jumpcutter/internal/apperr"
	"github.com/maauso/jumpcutter/internal/render"
)

// Static errors for media operations.
var (
	// ErrNoInputs is returned when Concat receives no files.
	ErrNoInputs = fmt.Errorf("%w: no media files to join", apperr.ErrInput)
	// ErrInvalidRange is returned when an extraction range is empty or negative.
	ErrInvalidRange = fmt.Errorf("%w: invalid time range", apperr.ErrInput)
	// ErrNilJob is returned when Render is called without a plan.
	ErrNilJob = errors.New("render job is nil")
)

// Observer is notified after every external invocation.
type Observer interface {
	ObserveTool(op string, elapsed time.Duration, err error)
}

// FFmpeg runs the ffmpeg and ffprobe command line tools.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	// scratchDir holds filter scripts and concat lists. Empty means os.TempDir().
	scratchDir string
	observer   Observer
}

// Option configures an FFmpeg.
type Option func(*FFmpeg)

// WithFFprobePath overrides the ffprobe binary.
func WithFFprobePath(path string) Option {
	return func(f *FFmpeg) {
		if path != "" {
			f.ffprobePath = path
		}
	}
}

// WithScratchDir sets where filter scripts and concat lists are written.
func WithScratchDir(dir string) Option {
	return func(f *FFmpeg) { f.scratchDir = dir }
}

// WithObserver registers an observer for invocation timings.
func WithObserver(o Observer) Option {
	return func(f *FFmpeg) { f.observer = o }
}

// NewFFmpeg creates an FFmpeg runner.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpeg(ffmpegPath string, opts ...Option) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	f := &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: "ffprobe"}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Render runs job against input and writes the retimed result to output.
// The filter graph is passed through a script file so its size is not
// bounded by the argument length limit.
func (f *FFmpeg) Render(ctx context.Context, job *render.Job, input, output string) error {
	if job == nil {
		return ErrNilJob
	}
	if len(job.Ops) == 0 {
		return render.ErrEmptyPlan
	}

	script, err := f.writeScratch("jumpcutter-filter-*.txt", job.Script())
	if err != nil {
		return fmt.Errorf("write filter script: %w", err)
	}
	defer func() { _ = os.Remove(script) }()

	args := []string{
		"-y",
		"-hide_banner",
		"-i", input,
		"-filter_complex_script", script,
		"-map", render.VideoOut,
		"-map", render.AudioOut,
		output,
	}
	return f.runFFmpeg(ctx, "render", args)
}

// Extract cuts [start, end) seconds out of src into dst. The cut is
// re-encoded so it starts exactly at start rather than at the nearest
// keyframe, which keeps frame offsets of the extracted file aligned.
func (f *FFmpeg) Extract(ctx context.Context, src, dst string, start, end float64) error {
	if start < 0 || end <= start {
		return fmt.Errorf("%w: start=%.6f end=%.6f", ErrInvalidRange, start, end)
	}

	args := []string{
		"-y",
		"-hide_banner",
		"-ss", formatSeconds(start),
		"-i", src,
		"-t", formatSeconds(end - start),
		dst,
	}
	return f.runFFmpeg(ctx, "extract", args)
}

// Concat joins inputs, in order, into output with stream copy (no
// re-encoding). A single input is copied as is.
func (f *FFmpeg) Concat(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return ErrNoInputs
	}
	if len(inputs) == 1 {
		return copyFile(inputs[0], output)
	}

	listFile, err := f.createConcatList(inputs)
	if err != nil {
		return fmt.Errorf("create concat list: %w", err)
	}
	defer func() { _ = os.Remove(listFile) }()

	args := []string{
		"-y",
		"-hide_banner",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		output,
	}
	return f.runFFmpeg(ctx, "concat", args)
}

// createConcatList writes the file list for ffmpeg's concat demuxer.
func (f *FFmpeg) createConcatList(paths []string) (string, error) {
	var b strings.Builder
	for _, path := range paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("get absolute path for %s: %w", path, err)
		}
		fmt.Fprintf(&b, "file %s\n", quoteConcatPath(absPath))
	}
	return f.writeScratch("jumpcutter-concat-*.txt", b.String())
}

// quoteConcatPath single-quotes a path for the concat demuxer; embedded
// quotes are closed, escaped and reopened.
func quoteConcatPath(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}

func (f *FFmpeg) writeScratch(pattern, content string) (string, error) {
	file, err := os.CreateTemp(f.scratchDir, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := file.Name()
	if _, err := file.WriteString(content); err != nil {
		_ = file.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return name, nil
}

// copyFile streams src into dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - src is produced by the pipeline
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) // #nosec G304
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close destination file: %w", err)
	}
	return nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an
// *FFmpegError carrying stderr if the command fails.
func (f *FFmpeg) runFFmpeg(ctx context.Context, op string, args []string) (err error) {
	started := time.Now()
	defer func() {
		if f.observer != nil {
			f.observer.ObserveTool(op, time.Since(started), err)
		}
	}()

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if runErr := cmd.Run(); runErr != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Op:     op,
			Args:   args,
			Stderr: stderr.String(),
			Err:    runErr,
		}
	}
	return nil
}

// FFmpegError represents a failed ffmpeg or ffprobe invocation, including
// its stderr output.
type FFmpegError struct {
	Op     string
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg %s error: %v\nargs: %v\nstderr: %s", e.Op, e.Err, e.Args, tail(e.Stderr, 2048))
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// Is reports every FFmpegError as an external tool failure.
func (e *FFmpegError) Is(target error) bool {
	return target == apperr.ErrExternalTool
}

// ExitCode returns the process exit status, or -1 if it did not exit normally.
func (e *FFmpegError) ExitCode() int {
	var exitErr *exec.ExitError
	if errors.As(e.Err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 6, 64)
}
