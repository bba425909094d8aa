// Package speed maps segment tags to playback-speed multipliers.
package speed

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/maauso/jumpcutter/internal/apperr"
	"github.com/maauso/jumpcutter/internal/segment"
)

// Static errors for speed configuration.
var (
	// ErrNonPositive is returned when a speed is zero, negative, NaN or infinite.
	ErrNonPositive = fmt.Errorf("%w: speeds must be finite and positive", apperr.ErrConfig)
	// ErrMalformed is returned when a speed pair cannot be parsed.
	ErrMalformed = fmt.Errorf("%w: speed pair must look like silent:sounded", apperr.ErrConfig)
)

// Mapper resolves the playback speed of a segment.
type Mapper interface {
	Speed(s segment.Segment) float64
}

// Table assigns one speed per tag. A very large silent speed effectively
// removes silence.
type Table struct {
	Silent  float64
	Sounded float64
}

// Default matches the stock behavior: silence at 5x, speech untouched.
func Default() Table {
	return Table{Silent: 5, Sounded: 1}
}

// Parse reads a "silent:sounded" pair such as "5:1" or "999999:1.25".
func Parse(s string) (Table, error) {
	silentStr, soundedStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Table{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}

	silent, err := strconv.ParseFloat(strings.TrimSpace(silentStr), 64)
	if err != nil {
		return Table{}, fmt.Errorf("%w: silent speed %q", ErrMalformed, silentStr)
	}
	sounded, err := strconv.ParseFloat(strings.TrimSpace(soundedStr), 64)
	if err != nil {
		return Table{}, fmt.Errorf("%w: sounded speed %q", ErrMalformed, soundedStr)
	}

	t := Table{Silent: silent, Sounded: sounded}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Validate rejects non-positive or non-finite speeds.
func (t Table) Validate() error {
	for _, v := range []struct {
		name  string
		value float64
	}{{"silent", t.Silent}, {"sounded", t.Sounded}} {
		if !(v.value > 0) || math.IsInf(v.value, 0) {
			return fmt.Errorf("%w: %s speed is %v", ErrNonPositive, v.name, v.value)
		}
	}
	return nil
}

// For returns the speed for tag.
func (t Table) For(tag segment.Tag) float64 {
	if tag == segment.Sounded {
		return t.Sounded
	}
	return t.Silent
}

// Speed implements Mapper.
func (t Table) Speed(s segment.Segment) float64 {
	return t.For(s.Tag)
}

// String formats the table the way Parse reads it.
func (t Table) String() string {
	return strconv.FormatFloat(t.Silent, 'f', -1, 64) + ":" + strconv.FormatFloat(t.Sounded, 'f', -1, 64)
}

// MarshalText implements encoding.TextMarshaler.
func (t Table) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so flags, environment
// variables and config files accept the "silent:sounded" form.
func (t *Table) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

var _ Mapper = Table{}
