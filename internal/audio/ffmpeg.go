package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/maauso/jumpcutter/internal/apperr"
)

// Static errors for audio extraction.
var (
	// ErrSourceMissing is returned when the source file does not exist.
	ErrSourceMissing = fmt.Errorf("%w: source file does not exist", apperr.ErrInput)
	// ErrInvalidWAV is returned when the intermediate file is not a PCM WAV.
	ErrInvalidWAV = fmt.Errorf("%w: not a valid WAV file", apperr.ErrInput)
	// ErrExtraction is returned when ffmpeg fails to write the WAV file.
	ErrExtraction = fmt.Errorf("%w: audio extraction failed", apperr.ErrExternalTool)
)

// FFmpegExtractor implements Extractor using the ffmpeg CLI and go-audio/wav.
type FFmpegExtractor struct {
	ffmpegPath string
}

// NewFFmpegExtractor creates a new FFmpegExtractor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegExtractor(ffmpegPath string) *FFmpegExtractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegExtractor{ffmpegPath: ffmpegPath}
}

// Extract implements Extractor.Extract.
func (e *FFmpegExtractor) Extract(ctx context.Context, src, wavPath string, opts ExtractOpts) (*goaudio.IntBuffer, error) {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrSourceMissing, src)
	}
	opts = withDefaults(opts)

	if err := e.writeWAV(ctx, src, wavPath, opts); err != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(wavPath) }()

	f, err := os.Open(wavPath) // #nosec G304 - wavPath is inside the run workspace
	if err != nil {
		return nil, fmt.Errorf("open extracted audio: %w", err)
	}
	defer func() { _ = f.Close() }()

	return DecodeWAV(f)
}

// writeWAV converts the first audio stream of src to 16-bit PCM WAV.
func (e *FFmpegExtractor) writeWAV(ctx context.Context, src, wavPath string, opts ExtractOpts) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-i", src,
		"-vn",
		"-ab", strconv.Itoa(opts.BitRate),
		"-ac", strconv.Itoa(opts.Channels),
		"-ar", strconv.Itoa(opts.SampleRate),
		"-c:a", "pcm_s16le",
		"-f", "wav",
		wavPath,
	}

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(wavPath)
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("%w: %w, stderr: %s", ErrExtraction, err, stderr.String())
	}
	return nil
}

// DecodeWAV reads a whole PCM WAV stream into an IntBuffer.
func DecodeWAV(r io.ReadSeeker) (*goaudio.IntBuffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode PCM: %w", err)
	}
	if buf.Format == nil {
		buf.Format = &goaudio.Format{
			NumChannels: int(dec.NumChans),
			SampleRate:  int(dec.SampleRate),
		}
	}
	return buf, nil
}

func withDefaults(opts ExtractOpts) ExtractOpts {
	def := DefaultExtractOpts()
	if opts.SampleRate <= 0 {
		opts.SampleRate = def.SampleRate
	}
	if opts.BitRate <= 0 {
		opts.BitRate = def.BitRate
	}
	if opts.Channels <= 0 {
		opts.Channels = def.Channels
	}
	return opts
}

// Verify interface implementation at compile time.
var _ Extractor = (*FFmpegExtractor)(nil)
