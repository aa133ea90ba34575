package model

import "fmt"

// Kind enumerates the behavioral error categories. These
// are not Go error types themselves — each Kind may be carried by several
// concrete error structs — but every error surfaced across a component
// boundary reports one of them via Kind().
type Kind string

const (
	KindConfiguration  Kind = "configuration"
	KindNetwork        Kind = "network"
	KindSource         Kind = "source"
	KindTransformation Kind = "transformation"
	KindStorage        Kind = "storage"
	KindCancellation   Kind = "cancellation"
	KindWorkflow       Kind = "workflow"
)

// Classified is implemented by every error this module returns across a
// component boundary, so callers can branch on behavior without type
// assertions on concrete structs.
type Classified interface {
	error
	Kind() Kind
	Retryable() bool
}

// ConfigurationError reports an invalid or incomplete job configuration.
// Fatal to the request it belongs to; never affects other in-flight work.
type ConfigurationError struct {
	Message string
}

func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string  { return "configuration error: " + e.Message }
func (e *ConfigurationError) Kind() Kind     { return KindConfiguration }
func (e *ConfigurationError) Retryable() bool { return false }

// NetworkError reports an HTTP-layer failure from the Downloader.
// Retryable distinguishes transient (timeouts, connection resets, 5xx)
// from permanent (4xx) failures.
type NetworkError struct {
	Message   string
	Status    int
	retryable bool
	Cause     error
}

func NewNetworkError(message string, status int, retryable bool, cause error) *NetworkError {
	return &NetworkError{Message: message, Status: status, retryable: retryable, Cause: cause}
}

func (e *NetworkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("network error: %s: %v", e.Message, e.Cause)
	}
	return "network error: " + e.Message
}
func (e *NetworkError) Unwrap() error    { return e.Cause }
func (e *NetworkError) Kind() Kind       { return KindNetwork }
func (e *NetworkError) Retryable() bool  { return e.retryable }

// ErrTimeout is returned by the Downloader when a request exceeds its
// configured per-attempt timeout.
var ErrTimeout = NewNetworkError("request timed out", 0, true, nil)

// SourceError reports that a specific source could not be obtained after
// retries. The pipeline continues with other sources unless Strict is set
// on the source descriptor.
type SourceError struct {
	SourceName string
	Cause      error
}

func NewSourceError(sourceName string, cause error) *SourceError {
	return &SourceError{SourceName: sourceName, Cause: cause}
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %q: %v", e.SourceName, e.Cause)
}
func (e *SourceError) Unwrap() error    { return e.Cause }
func (e *SourceError) Kind() Kind       { return KindSource }
func (e *SourceError) Retryable() bool  { return false }

// TransformationError reports a structural contract violation inside a
// named transformation (as opposed to a single rule being dropped, which
// the transformation handles itself and records as a diagnostic).
type TransformationError struct {
	Transformation string
	Cause          error
}

func NewTransformationError(name string, cause error) *TransformationError {
	return &TransformationError{Transformation: name, Cause: cause}
}

func (e *TransformationError) Error() string {
	return fmt.Sprintf("transformation %q failed: %v", e.Transformation, e.Cause)
}
func (e *TransformationError) Unwrap() error    { return e.Cause }
func (e *TransformationError) Kind() Kind       { return KindTransformation }
func (e *TransformationError) Retryable() bool  { return false }

// StorageError reports a key-value backend read/write failure. Most
// storage errors downgrade to a cache miss or a logged warning; only
// Durable=true failures (a workflow step output that must be durable) are
// promoted to a hard failure.
type StorageError struct {
	Op      string
	Cause   error
	Durable bool
}

func NewStorageError(op string, cause error, durable bool) *StorageError {
	return &StorageError{Op: op, Cause: cause, Durable: durable}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Cause)
}
func (e *StorageError) Unwrap() error    { return e.Cause }
func (e *StorageError) Kind() Kind       { return KindStorage }
func (e *StorageError) Retryable() bool  { return !e.Durable }

// CancellationError signals a caller-initiated cancellation. It is not an
// error condition in the usual sense; callers distinguish it from real
// failures via Kind().
type CancellationError struct {
	Reason string
}

func NewCancellationError(reason string) *CancellationError {
	return &CancellationError{Reason: reason}
}

func (e *CancellationError) Error() string  { return "cancelled: " + e.Reason }
func (e *CancellationError) Kind() Kind     { return KindCancellation }
func (e *CancellationError) Retryable() bool { return false }

// WorkflowError reports that a workflow step exhausted its retry budget
// or exceeded its timeout; the workflow terminates with this error.
type WorkflowError struct {
	Step  string
	Cause error
}

func NewWorkflowError(step string, cause error) *WorkflowError {
	return &WorkflowError{Step: step, Cause: cause}
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("workflow step %q failed: %v", e.Step, e.Cause)
}
func (e *WorkflowError) Unwrap() error    { return e.Cause }
func (e *WorkflowError) Kind() Kind       { return KindWorkflow }
func (e *WorkflowError) Retryable() bool  { return false }

// IsKind reports whether err (or something it wraps) is a Classified
// error of the given kind.
func IsKind(err error, kind Kind) bool {
	var c Classified
	for err != nil {
		if cl, ok := err.(Classified); ok {
			c = cl
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return c != nil && c.Kind() == kind
}
