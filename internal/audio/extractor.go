// Package audio pulls the audio track out of a media file as raw PCM.
package audio

import (
	"context"

	goaudio "github.com/go-audio/audio"
)

// ExtractOpts configures audio extraction.
type ExtractOpts struct {
	// SampleRate is the output sample rate in Hz.
	// Default: 44100.
	SampleRate int

	// BitRate is passed to ffmpeg as the audio bit rate.
	// Default: 160000.
	BitRate int

	// Channels is the number of output channels.
	// Default: 2.
	Channels int
}

// DefaultExtractOpts returns the default options for audio extraction.
func DefaultExtractOpts() ExtractOpts {
	return ExtractOpts{
		SampleRate: 44100,
		BitRate:    160000,
		Channels:   2,
	}
}

// Extractor defines the interface for reading the audio track of a media file.
type Extractor interface {
	// Extract decodes the first audio stream of src into interleaved PCM.
	// wavPath is a scratch location for the intermediate WAV file; it is
	// removed before Extract returns.
	Extract(ctx context.Context, src, wavPath string, opts ExtractOpts) (*goaudio.IntBuffer, error)
}
