package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/jumpcutter/internal/apperr"
	"github.com/maauso/jumpcutter/internal/speed"
)

// DefaultSectionSize is the number of segments rendered per section when
// the timeline is too long for a single pass.
const DefaultSectionSize = 300

// Options controls a single retiming run. It is built once at the
// configuration boundary and passed by value afterwards.
type Options struct {
	// SilentThreshold is the normalized peak a frame must reach to count as sounded.
	SilentThreshold float64 `json:"silent_threshold" validate:"gt=0,lte=1"`
	// SilenceDuration is the minimum run of silent frames kept as silence.
	SilenceDuration int `json:"silence_duration" validate:"gte=0"`
	// FrameMargin is the number of frames kept around sounded frames.
	FrameMargin float64 `json:"frame_margin" validate:"gte=0"`
	// Speed holds the playback factors, written "silent:sounded".
	Speed speed.Table `json:"speed"`
	// SectionSize caps the segments rendered by one engine invocation.
	SectionSize int `json:"section_size" validate:"gte=1"`
	// Trim drops a silent first and last segment from the output.
	Trim bool `json:"trim"`
	// Simulate reports projected durations without rendering.
	Simulate bool `json:"simulate"`

	// Fallbacks for properties the prober cannot determine.
	DefaultFrameRate  float64 `json:"default_frame_rate" validate:"gt=0"`
	DefaultSampleRate int     `json:"default_sample_rate" validate:"gt=0"`
	DefaultBitRate    int     `json:"default_bit_rate" validate:"gt=0"`
}

// DefaultOptions returns the options used when nothing is overridden.
func DefaultOptions() Options {
	return Options{
		SilentThreshold:   0.03,
		SilenceDuration:   0,
		FrameMargin:       1,
		Speed:             speed.Default(),
		SectionSize:       DefaultSectionSize,
		DefaultFrameRate:  30,
		DefaultSampleRate: 44100,
		DefaultBitRate:    160000,
	}
}

var validate = validator.New()

// Validate reports every invalid field as a single apperr.ErrConfig error.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
			}
			return fmt.Errorf("%w: %s", apperr.ErrConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", apperr.ErrConfig, err)
	}
	return o.Speed.Validate()
}

// DefaultOutputPath derives the output name from the input by inserting
// "_ALTERED" before the extension.
func DefaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_ALTERED" + ext
}
