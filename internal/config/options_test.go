package config

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/jumpcutter/internal/apperr"
	"github.com/maauso/jumpcutter/internal/speed"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	require.NoError(t, opts.Validate())

	assert.Equal(t, 0.03, opts.SilentThreshold)
	assert.Equal(t, 0, opts.SilenceDuration)
	assert.Equal(t, 1.0, opts.FrameMargin)
	assert.Equal(t, speed.Table{Silent: 5, Sounded: 1}, opts.Speed)
	assert.Equal(t, DefaultSectionSize, opts.SectionSize)
	assert.False(t, opts.Trim)
	assert.False(t, opts.Simulate)
	assert.Equal(t, 30.0, opts.DefaultFrameRate)
	assert.Equal(t, 44100, opts.DefaultSampleRate)
	assert.Equal(t, 160000, opts.DefaultBitRate)
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		field  string
	}{
		{"zero threshold", func(o *Options) { o.SilentThreshold = 0 }, "SilentThreshold"},
		{"threshold above one", func(o *Options) { o.SilentThreshold = 1.5 }, "SilentThreshold"},
		{"NaN threshold", func(o *Options) { o.SilentThreshold = math.NaN() }, "SilentThreshold"},
		{"negative silence duration", func(o *Options) { o.SilenceDuration = -1 }, "SilenceDuration"},
		{"negative margin", func(o *Options) { o.FrameMargin = -0.5 }, "FrameMargin"},
		{"zero section size", func(o *Options) { o.SectionSize = 0 }, "SectionSize"},
		{"zero frame rate", func(o *Options) { o.DefaultFrameRate = 0 }, "DefaultFrameRate"},
		{"zero sample rate", func(o *Options) { o.DefaultSampleRate = 0 }, "DefaultSampleRate"},
		{"zero bit rate", func(o *Options) { o.DefaultBitRate = 0 }, "DefaultBitRate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)

			err := opts.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrConfig)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	t.Run("threshold of exactly one", func(t *testing.T) {
		opts := DefaultOptions()
		opts.SilentThreshold = 1
		assert.NoError(t, opts.Validate())
	})

	t.Run("jump cut speed", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Speed = speed.Table{Silent: 999999, Sounded: 1}
		assert.NoError(t, opts.Validate())
	})

	t.Run("non-positive speed", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Speed = speed.Table{Silent: 0, Sounded: 1}
		err := opts.Validate()
		assert.ErrorIs(t, err, speed.ErrNonPositive)
		assert.ErrorIs(t, err, apperr.ErrConfig)
	})

	t.Run("reports every field", func(t *testing.T) {
		opts := DefaultOptions()
		opts.SectionSize = 0
		opts.FrameMargin = -1
		err := opts.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SectionSize")
		assert.Contains(t, err.Error(), "FrameMargin")
	})
}

func TestDefaultOutputPath(t *testing.T) {
	tests := map[string]string{
		"talk.mp4":             "talk_ALTERED.mp4",
		"/videos/lecture.mkv":  "/videos/lecture_ALTERED.mkv",
		"noext":                "noext_ALTERED",
		"dir.v2/clip.tar.webm": "dir.v2/clip.tar_ALTERED.webm",
	}
	for in, want := range tests {
		assert.Equal(t, want, DefaultOutputPath(in), in)
	}
}
