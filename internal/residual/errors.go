package residual

import (
	"errors"
	"fmt"
)

// Sentinels matched by the typed errors below via errors.Is.
var (
	ErrFormat           = errors.New("format error")
	ErrInsufficientData = errors.New("insufficient data")
	ErrConfiguration    = errors.New("configuration error")
	ErrEmptyInput       = errors.New("empty input")
)

// FormatError reports a malformed or incompatible input document.
type FormatError struct {
	Source string // file or stream name
	Field  string // offending field, if any
	Reason string
}

func (e *FormatError) Error() string {
	msg := "format error"
	if e.Source != "" {
		msg += " in " + e.Source
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" (field %q)", e.Field)
	}
	return msg + ": " + e.Reason
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// InsufficientDataError reports that the usable samples cannot cover even
// one full block.
type InsufficientDataError struct {
	Samples     int
	BlockLength int
	Reason      string
}

func (e *InsufficientDataError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("insufficient data: %s (samples=%d, block_length=%d)", e.Reason, e.Samples, e.BlockLength)
	}
	return fmt.Sprintf("insufficient data: %d samples cannot cover one block of %d", e.Samples, e.BlockLength)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// ConfigurationError reports steady-window settings that collapse to an
// empty or invalid window.
type ConfigurationError struct {
	BlockLength   int
	StartFraction float64
	EndFraction   float64
	WindowStart   int
	WindowEnd     int
	Reason        string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s (block_length=%d, steady=[%g,%g] -> window [%d,%d))",
		e.Reason, e.BlockLength, e.StartFraction, e.EndFraction, e.WindowStart, e.WindowEnd)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// EmptyInputError is returned when an aggregation receives no samples.
type EmptyInputError struct {
	What string
}

func (e *EmptyInputError) Error() string {
	if e.What == "" {
		return "empty input: no samples to aggregate"
	}
	return "empty input: no samples to aggregate for " + e.What
}

func (e *EmptyInputError) Is(target error) bool { return target == ErrEmptyInput }
