package inference

import "fmt"

// AuthError reports missing or unusable credentials for a backend.
type AuthError struct {
	Engine string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s engine: no API key configured", e.Engine)
}

// ProtocolError reports a malformed backend response or unusable settings
// (bad base URL, missing model name).
type ProtocolError struct {
	Engine string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s engine: %s: %v", e.Engine, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s engine: %s", e.Engine, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// BackendError reports a non-success HTTP status or a transport failure
// (Status 0) from a backend.
type BackendError struct {
	Engine string
	Status int
	Err    error
}

func (e *BackendError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s engine: backend unreachable: %v", e.Engine, e.Err)
	}
	return fmt.Sprintf("%s engine: backend returned status %d", e.Engine, e.Status)
}

func (e *BackendError) Unwrap() error { return e.Err }

// TimeoutError reports that the configured timeout elapsed without a
// backend response.
type TimeoutError struct {
	Engine string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s engine: request timed out", e.Engine)
}
