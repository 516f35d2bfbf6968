package preset

import "errors"

// ErrInvalid is the sentinel wrapped by every ValidationError, so callers
// can errors.Is against the whole class.
var ErrInvalid = errors.New("preset: invalid configuration")

// ValidationError reports the first structural violation found in a
// document. Path names the offending location using the document's own
// snake_case keys (e.g. "list_page.selectors").
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

func errAt(path, message string) *ValidationError {
	return &ValidationError{Path: path, Message: message}
}
