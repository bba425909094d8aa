// Package apperr defines the error taxonomy shared by every stage of a
// retime run. Packages wrap one of the sentinel kinds so callers can
// classify a failure with errors.Is without knowing which package raised it.
package apperr

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	// ErrConfig marks invalid configuration: non-positive speeds, malformed
	// speed pairs, thresholds out of range. Detected before any analysis.
	ErrConfig = errors.New("config error")
	// ErrInput marks unusable input: missing source, empty or silent audio,
	// nothing left to render.
	ErrInput = errors.New("input error")
	// ErrProbe marks an indeterminate stream property. Callers recover by
	// falling back to defaults.
	ErrProbe = errors.New("probe error")
	// ErrExternalTool marks a failed ffmpeg/ffprobe invocation.
	ErrExternalTool = errors.New("external tool error")
)

// StageError records which stage of the run failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Stage wraps err with the name of the failing stage. A nil err stays nil.
func Stage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the outermost stage name recorded on err, or "" if none.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// Kind returns the sentinel kind err belongs to, or nil if it is unclassified.
func Kind(err error) error {
	for _, k := range []error{ErrConfig, ErrInput, ErrProbe, ErrExternalTool} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
