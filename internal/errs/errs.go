// Package errs defines the closed set of failure kinds raised by the transport,
// the record client and the task poller.
//
// Every error type carries the context needed to render a single operator-facing
// message. Use [KindOf] to classify an error and [Retryable] to decide whether an
// automation pipeline may safely replay the invocation.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies one of the failure categories.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindAuthentication
	KindConnectivity
	KindMalformedResponse
	KindUnexpectedResponse
	KindConsistency
	KindTaskFailure
	KindTaskTimeout
	KindMissingField
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthentication:
		return "authentication"
	case KindConnectivity:
		return "connectivity"
	case KindMalformedResponse:
		return "malformed_response"
	case KindUnexpectedResponse:
		return "unexpected_response"
	case KindConsistency:
		return "consistency"
	case KindTaskFailure:
		return "task_failure"
	case KindTaskTimeout:
		return "task_timeout"
	case KindMissingField:
		return "missing_field"
	default:
		return "unknown"
	}
}

// ErrAmbiguousPayload is returned when a request carries both a JSON and a binary payload.
var ErrAmbiguousPayload = errors.New("cannot have JSON and binary payload in a single request")

// bodyExcerptLimit bounds how much of a response body is copied into error messages.
const bodyExcerptLimit = 2048

func excerpt(b []byte) string {
	if len(b) <= bodyExcerptLimit {
		return string(b)
	}
	return string(b[:bodyExcerptLimit]) + "...(truncated)"
}

// ConfigurationError reports an invalid host or credential value at construction time.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s value: '%s'. %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigurationError) Kind() Kind { return KindConfiguration }

// AuthenticationError reports an HTTP 401 from any request.
type AuthenticationError struct {
	Method string
	URL    string
	Status int
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("failed to authenticate with the instance: %d %s (%s %s)", e.Status, e.Reason, e.Method, e.URL)
}

func (e *AuthenticationError) Kind() Kind { return KindAuthentication }

// ConnectivityError reports a network, TLS, DNS or timeout failure below HTTP.
type ConnectivityError struct {
	Method string
	URL    string
	Err    error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

func (e *ConnectivityError) Kind() Kind { return KindConnectivity }

// MalformedResponseError reports a body that is not the JSON the caller expected.
// Method and Path name the request when known.
type MalformedResponseError struct {
	Method string
	Path   string
	Body   string
	Reason string
}

// NewMalformedResponse builds a MalformedResponseError keeping an excerpt of body.
func NewMalformedResponse(body []byte, reason string) *MalformedResponseError {
	return &MalformedResponseError{Body: excerpt(body), Reason: reason}
}

// AttachRequest fills in method and path on a MalformedResponseError found in
// err's chain, unless it already names a request. err is returned unchanged.
func AttachRequest(err error, method, path string) error {
	var m *MalformedResponseError
	if errors.As(err, &m) && m.Method == "" && m.Path == "" {
		m.Method, m.Path = method, path
	}
	return err
}

func (e *MalformedResponseError) Error() string {
	msg := "received invalid JSON response"
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Method != "" || e.Path != "" {
		msg += fmt.Sprintf(" from %s %s", e.Method, e.Path)
	}
	return msg + ": " + e.Body
}

func (e *MalformedResponseError) Kind() Kind { return KindMalformedResponse }

// UnexpectedResponseError reports a status code outside the operation's accepted set.
type UnexpectedResponseError struct {
	Method string
	Path   string
	Status int
	Body   string
}

// NewUnexpectedResponse builds an UnexpectedResponseError keeping an excerpt of body.
func NewUnexpectedResponse(method, path string, status int, body []byte) *UnexpectedResponseError {
	return &UnexpectedResponseError{Method: method, Path: path, Status: status, Body: excerpt(body)}
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response - %d %s (%s %s)", e.Status, e.Body, e.Method, e.Path)
}

func (e *UnexpectedResponseError) Kind() Kind { return KindUnexpectedResponse }

// ConsistencyError reports that a lookup which must yield exactly one record did not.
// Count is zero when a required record is absent.
type ConsistencyError struct {
	Path  string
	Query string
	Count int
}

func (e *ConsistencyError) Error() string {
	if e.Count == 0 {
		return fmt.Sprintf("no record found at %s matching %s", e.Path, e.Query)
	}
	return fmt.Sprintf("%d records found at %s matching %s, expected exactly one", e.Count, e.Path, e.Query)
}

func (e *ConsistencyError) Kind() Kind { return KindConsistency }

// TaskFailureError reports a task that reached the failed state, or whose status could not be read.
type TaskFailureError struct {
	TaskTag string
	State   string
	Payload string
	Err     error
}

func (e *TaskFailureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task %s failed: %v", e.TaskTag, e.Err)
	}
	return fmt.Sprintf("task %s finished in state %s: %s", e.TaskTag, e.State, e.Payload)
}

func (e *TaskFailureError) Unwrap() error { return e.Err }

func (e *TaskFailureError) Kind() Kind { return KindTaskFailure }

// TaskTimeoutError reports that waiting for a task exceeded the configured bound.
// The server-side task is not cancelled.
type TaskTimeoutError struct {
	TaskTag   string
	Elapsed   time.Duration
	LastState string
}

func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for task %s (last state %s)", e.Elapsed.Round(time.Millisecond), e.TaskTag, e.LastState)
}

func (e *TaskTimeoutError) Kind() Kind { return KindTaskTimeout }

// MissingFieldError reports that an API object lacks an expected field.
// ID is the object's uuid when it has one.
type MissingFieldError struct {
	Resource string
	ID       string
	Field    string
}

func (e *MissingFieldError) Error() string {
	switch {
	case e.Resource == "":
		return fmt.Sprintf("missing value from HyperCore API response: %s", e.Field)
	case e.ID == "":
		return fmt.Sprintf("missing value from HyperCore %s: %s", e.Resource, e.Field)
	default:
		return fmt.Sprintf("missing value from HyperCore %s %s: %s", e.Resource, e.ID, e.Field)
	}
}

func (e *MissingFieldError) Kind() Kind { return KindMissingField }

type kinded interface {
	Kind() Kind
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// Retryable reports whether replaying the whole invocation later is expected to help.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConnectivity, KindTaskTimeout:
		return true
	default:
		return false
	}
}
