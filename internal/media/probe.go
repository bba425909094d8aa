package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/maauso/jumpcutter/internal/apperr"
)

// ErrFFprobeExecution is returned when the ffprobe command fails.
var ErrFFprobeExecution = fmt.Errorf("%w: ffprobe execution failed", apperr.ErrProbe)

// Info describes the stream properties the retimer depends on. Zero means
// the property could not be determined.
type Info struct {
	FrameRate  float64
	SampleRate int
	BitRate    int
	Duration   float64
	HasVideo   bool
	HasAudio   bool
}

// WithDefaults fills every undetermined property from the given defaults.
func (i Info) WithDefaults(frameRate float64, sampleRate, bitRate int) Info {
	if !(i.FrameRate > 0) {
		i.FrameRate = frameRate
	}
	if i.SampleRate <= 0 {
		i.SampleRate = sampleRate
	}
	if i.BitRate <= 0 {
		i.BitRate = bitRate
	}
	return i
}

// ffprobeOutput mirrors the parts of `ffprobe -of json` we read.
type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		SampleRate   string `json:"sample_rate"`
		BitRate      string `json:"bit_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// Probe reads frame rate, sample rate and audio bit rate of path. When a
// rate cannot be determined the partial Info is returned together with an
// error wrapping apperr.ErrProbe, so callers can fall back to defaults.
func (f *FFmpeg) Probe(ctx context.Context, path string) (info Info, err error) {
	started := time.Now()
	defer func() {
		if f.observer != nil {
			f.observer.ObserveTool("probe", time.Since(started), err)
		}
	}()

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-show_streams",
		"-show_format",
		"-of", "json",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if runErr := cmd.Run(); runErr != nil {
		if ctx.Err() != nil {
			return Info{}, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return Info{}, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, runErr, stderr.String())
	}

	return ParseProbe(stdout.Bytes())
}

// ParseProbe decodes ffprobe JSON output.
func ParseProbe(data []byte) (Info, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, fmt.Errorf("%w: parse ffprobe output: %w", apperr.ErrProbe, err)
	}

	var info Info
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.FrameRate = parseRational(s.RFrameRate)
			if info.FrameRate == 0 {
				info.FrameRate = parseRational(s.AvgFrameRate)
			}
		case "audio":
			if info.HasAudio {
				continue
			}
			info.HasAudio = true
			info.SampleRate, _ = strconv.Atoi(s.SampleRate)
			info.BitRate, _ = strconv.Atoi(s.BitRate)
		}
	}
	info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)

	var missing []string
	if info.FrameRate == 0 {
		missing = append(missing, "frame rate")
	}
	if info.SampleRate == 0 {
		missing = append(missing, "sample rate")
	}
	if len(missing) > 0 {
		return info, fmt.Errorf("%w: could not determine %s", apperr.ErrProbe, strings.Join(missing, " and "))
	}
	return info, nil
}

// parseRational parses "num/den" (or a plain number). Invalid or zero
// denominators yield 0.
func parseRational(s string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil || n <= 0 {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d <= 0 {
		return 0
	}
	return n / d
}
