package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStage(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Stage("render", nil))
	})

	t.Run("wraps with stage name", func(t *testing.T) {
		base := fmt.Errorf("%w: ffmpeg exited 1", ErrExternalTool)
		err := Stage("render", base)

		assert.Equal(t, "render: external tool error: ffmpeg exited 1", err.Error())
		assert.ErrorIs(t, err, ErrExternalTool)
		assert.Equal(t, "render", StageOf(err))
	})

	t.Run("outermost stage wins", func(t *testing.T) {
		err := Stage("pipeline", Stage("section 2 extract", errors.New("boom")))
		assert.Equal(t, "pipeline", StageOf(err))
	})

	t.Run("no stage", func(t *testing.T) {
		assert.Equal(t, "", StageOf(errors.New("plain")))
	})
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"config", fmt.Errorf("%w: speed", ErrConfig), ErrConfig},
		{"input", Stage("analyze", fmt.Errorf("%w: empty", ErrInput)), ErrInput},
		{"probe", fmt.Errorf("%w: no frame rate", ErrProbe), ErrProbe},
		{"external", fmt.Errorf("wrapped: %w", ErrExternalTool), ErrExternalTool},
		{"unclassified", errors.New("other"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}
