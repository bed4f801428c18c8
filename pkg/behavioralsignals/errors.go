package behavioralsignals

import (
	"errors"
	"fmt"
)

// ValidationError reports bad local input. It is always returned before
// any network call is made.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := "invalid " + e.Field
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// AuthenticationError reports rejected credentials, either at client
// construction or in a stream handshake.
type AuthenticationError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *AuthenticationError) Error() string {
	if e.Message != "" {
		return "authentication failed: " + e.Message
	}
	return "authentication failed: invalid credentials"
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// APIError is a structured error returned by the service. Code and
// Message are passed through unchanged.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
	Details    map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// TransportError is a failure without a structured body: connection
// errors, timeouts, non-JSON error responses, broken streams.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
	default:
		return e.Op + ": transport error"
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodingError reports a response whose shape does not match the model.
type DecodingError struct {
	Target string
	Field  string
	Err    error
}

func (e *DecodingError) Error() string {
	msg := "decode " + e.Target
	if e.Field != "" {
		msg += "." + e.Field
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodingError) Unwrap() error {
	return e.Err
}

// InvalidStateError is returned when an operation needs a process status
// the process does not have, e.g. fetching results before completion.
type InvalidStateError struct {
	ProcessID int64
	Status    ProcessStatus
	Want      ProcessStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("process %d is %s, want %s", e.ProcessID, e.Status, e.Want)
}

// UnexpectedStatusError is returned by polling when the service reports a
// status outside the known set.
type UnexpectedStatusError struct {
	Process Process
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("process %d has unexpected status %s (%q)",
		e.Process.ID, e.Process.Status, e.Process.StatusMessage)
}

// ProtocolAnomalyError is returned by polling when a process status moves
// backwards between observations.
type ProtocolAnomalyError struct {
	ProcessID int64
	From      ProcessStatus
	To        ProcessStatus
}

func (e *ProtocolAnomalyError) Error() string {
	return fmt.Sprintf("process %d status regressed from %s to %s", e.ProcessID, e.From, e.To)
}

// SourceError ends a stream whose audio source failed. Results received
// before it remain valid.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return "audio source: " + e.Err.Error()
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// IsAuthenticationError reports whether err is or wraps an AuthenticationError.
func IsAuthenticationError(err error) bool {
	var target *AuthenticationError
	return errors.As(err, &target)
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsInvalidStateError reports whether err is or wraps an InvalidStateError.
func IsInvalidStateError(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}

// AsAPIError returns the APIError in err's chain, if any.
func AsAPIError(err error) (*APIError, bool) {
	var target *APIError
	ok := errors.As(err, &target)
	return target, ok
}

// errorKind is the metrics label for err.
func errorKind(err error) string {
	var (
		validation *ValidationError
		auth       *AuthenticationError
		api        *APIError
		transport  *TransportError
		decoding   *DecodingError
		state      *InvalidStateError
		source     *SourceError
	)
	switch {
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &auth):
		return "authentication"
	case errors.As(err, &api):
		return "api"
	case errors.As(err, &decoding):
		return "decoding"
	case errors.As(err, &state):
		return "invalid_state"
	case errors.As(err, &source):
		return "source"
	case errors.As(err, &transport):
		return "transport"
	default:
		return "other"
	}
}
