package loudness

import (
	"testing"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/jumpcutter/internal/apperr"
)

func newBuffer(sampleRate, channels int, data ...int) *audio.IntBuffer {
	return &audio.IntBuffer{
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: channels},
		Data:           data,
		SourceBitDepth: 16,
	}
}

func TestAnalyze_Mono(t *testing.T) {
	// 5 samples per frame, last frame shorter.
	buf := newBuffer(10, 1,
		0, 0, 1, 0, 0,
		10, -3, 0, 0, 0,
		0, 0, 0, 0, -8,
		2, 0, 0,
	)

	tests := []struct {
		name      string
		threshold float64
		want      Table
	}{
		{"half", 0.5, Table{false, true, true, false}},
		{"low", 0.1, Table{true, true, true, true}},
		{"exact peak ratio is loud", 0.8, Table{false, true, true, false}},
		{"full", 1, Table{false, true, false, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Analyze(buf, 2, tt.threshold)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnalyze_Stereo(t *testing.T) {
	// 2 sample frames per window, interleaved L/R.
	buf := newBuffer(4, 2,
		0, 0, 0, 5,
		0, 0, 0, 0,
		-10, 0,
	)

	got, err := Analyze(buf, 2, 0.5)
	require.NoError(t, err)
	assert.Equal(t, Table{true, false, true}, got)
	assert.Equal(t, 2, got.Loud())
}

func TestAnalyze_FractionalWindow(t *testing.T) {
	// 10/3 samples per frame: windows [0,3), [3,6), [6,10).
	buf := newBuffer(10, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 7)

	got, err := Analyze(buf, 3, 0.5)
	require.NoError(t, err)
	assert.Equal(t, Table{false, false, true}, got)
}

func TestAnalyze_LengthMatchesFrameCount(t *testing.T) {
	data := make([]int, 44100+17)
	data[100] = 1000
	buf := newBuffer(44100, 1, data...)

	got, err := Analyze(buf, 30, 0.03)
	require.NoError(t, err)
	assert.Equal(t, FrameCount(len(data), 44100, 30), got.Len())
	assert.Equal(t, 31, got.Len())
	assert.True(t, got[0])
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name      string
		buf       *audio.IntBuffer
		frameRate float64
		threshold float64
		wantErr   error
		wantKind  error
	}{
		{"nil buffer", nil, 30, 0.5, ErrEmptyTrack, apperr.ErrInput},
		{"no samples", newBuffer(44100, 1), 30, 0.5, ErrEmptyTrack, apperr.ErrInput},
		{"all zero", newBuffer(10, 1, 0, 0, 0, 0), 2, 0.5, ErrSilentTrack, apperr.ErrInput},
		{"no format", &audio.IntBuffer{Data: []int{1}}, 30, 0.5, ErrNoFormat, apperr.ErrInput},
		{"zero threshold", newBuffer(10, 1, 1), 2, 0, ErrInvalidThreshold, apperr.ErrConfig},
		{"threshold above one", newBuffer(10, 1, 1), 2, 1.5, ErrInvalidThreshold, apperr.ErrConfig},
		{"zero frame rate", newBuffer(10, 1, 1), 0, 0.5, ErrInvalidRate, apperr.ErrConfig},
		{"zero sample rate", newBuffer(0, 1, 1), 2, 0.5, ErrInvalidRate, apperr.ErrConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Analyze(tt.buf, tt.frameRate, tt.threshold)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, tt.wantKind)
		})
	}
}

func TestFrameCount(t *testing.T) {
	assert.Equal(t, 0, FrameCount(0, 44100, 30))
	assert.Equal(t, 1, FrameCount(1, 44100, 30))
	assert.Equal(t, 1, FrameCount(1470, 44100, 30))
	assert.Equal(t, 2, FrameCount(1471, 44100, 30))
	assert.Equal(t, 0, FrameCount(100, 0, 30))
}
