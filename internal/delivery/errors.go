package delivery

import "fmt"

// Error describes a failed collector call. It never escapes the Dispatch
// boundary; the batching dispatcher uses it to decide on retries.
type Error struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("collector returned status %d for %s", e.StatusCode, e.Endpoint)
	}
	return fmt.Sprintf("collector call to %s failed: %v", e.Endpoint, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// PermanentError marks a delivery failure that retrying cannot fix, e.g. a
// rejected payload or invalid credentials.
type PermanentError struct {
	Msg string
}

func (e *PermanentError) Error() string { return e.Msg }
