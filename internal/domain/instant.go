package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNaiveTimestamp is returned for timestamps that cannot participate in a
// causal comparison: the zero value, or a wire value lacking an explicit
// offset. Defaulting such a value to local time would silently reintroduce
// lookahead bias, so validation fails fast instead.
var ErrNaiveTimestamp = errors.New("timestamp without explicit timezone")

// ValidateInstant checks that t is usable in the causal path. A time.Time
// always carries a location, so naive wire input is rejected at the parse
// seam (ParseInstant); here only the zero value can slip through.
func ValidateInstant(t time.Time) error {
	if t.IsZero() {
		return fmt.Errorf("%w: zero time", ErrNaiveTimestamp)
	}
	return nil
}

// ParseInstant parses an RFC 3339 timestamp from the wire. RFC 3339 requires
// an explicit offset, so anything that parses is timezone-aware. The result
// is normalized to UTC.
func ParseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrNaiveTimestamp, s)
	}
	return t.UTC(), nil
}

// FormatInstant renders t as RFC 3339 UTC for the wire.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
