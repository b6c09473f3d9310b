package llm

import (
	"errors"
	"fmt"
)

// UnavailableError reports that a provider kept failing at the transport
// level after the full retry budget was spent.
type UnavailableError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("llm provider %q unavailable after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// FormatError reports that the model kept answering without a parseable JSON
// payload. Raw holds the last response for diagnostics.
type FormatError struct {
	Provider string
	Attempts int
	Raw      string
	Err      error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("llm provider %q returned malformed JSON after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is (or wraps) an UnavailableError.
func IsUnavailable(err error) bool {
	var target *UnavailableError
	return errors.As(err, &target)
}

// IsFormatError reports whether err is (or wraps) a FormatError.
func IsFormatError(err error) bool {
	var target *FormatError
	return errors.As(err, &target)
}
