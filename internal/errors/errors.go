// Package errors provides standardized error codes for the bridge.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (port, spawn, handoff,
//     session, turn, record, proxy, storage, monitor)
//   - error: The specific error type within that domain
//
// Codes are stable identifiers: the CLI and the worker log use them to
// distinguish failure classes programmatically, while the message carries
// the human-readable detail.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
const (
	// Port domain - listening port allocation
	CodePortExhausted    = "port.exhausted"     // No bindable port found before the scan cap
	CodePortInvalidRange = "port.invalid_range" // Port range is malformed (min > max or out of range)

	// Spawn domain - worker process detachment
	CodeSpawnExecFailed     = "spawn.exec_failed"     // Re-exec of the binary failed
	CodeSpawnRedirectFailed = "spawn.redirect_failed" // Could not redirect worker stdio
	CodeSpawnNoExecutable   = "spawn.no_executable"   // Could not resolve own executable path

	// Handoff domain - endpoint handoff from worker to invoker
	CodeHandoffTimeout = "handoff.timeout" // Worker never wrote the endpoint URL in time
	CodeHandoffClosed  = "handoff.closed"  // Pipe closed before a URL arrived (worker died)
	CodeHandoffNoPipe  = "handoff.no_pipe" // Worker started without the inherited pipe fd

	// Session domain - conversation lifecycle
	CodeSessionAbandoned  = "session.abandoned"   // Idle timeout expired with no continuation
	CodeSessionCompleted  = "session.completed"   // Operation attempted after End
	CodeSessionBindFailed = "session.bind_failed" // Listener unusable for the accept loop

	// Turn domain - turn-building API contract
	CodeTurnGrammarConflict = "turn.grammar_conflict" // Both inline grammar and external reference given
	CodeTurnGrammarMissing  = "turn.grammar_missing"  // Neither inline grammar nor external reference given
	CodeTurnBadPause        = "turn.bad_pause"        // Pause duration is not positive
	CodeTurnWriteFailed     = "turn.write_failed"     // Could not write the turn response

	// Record domain - audio capture turns
	CodeRecordNoBoundary = "record.no_boundary" // Multipart boundary never located
	CodeRecordBadUpload  = "record.bad_upload"  // Continuation arrived without a recording body

	// Proxy domain - tunnel relay
	CodeProxyBadPort = "proxy.bad_port" // proxyfor target port is not a valid port number

	// Storage domain - call-record persistence
	CodeStorageOpenFailed  = "storage.open_failed"  // Database open failed
	CodeStorageQueryFailed = "storage.query_failed" // Database query failed

	// Monitor domain - live turn-event stream
	CodeMonitorSocketFailed = "monitor.socket_failed" // Could not create the event socket

	// General domain - catch-all
	CodeUnknown = "error.unknown" // Unknown error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "port.exhausted")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// If the error is a CodedError, returns its code.
// Falls back to CodeUnknown for unrecognized errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// HasCode reports whether err carries the given stable code.
func HasCode(err error, code string) bool {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code == code
	}
	return false
}

// PortExhausted creates a "port.exhausted" error.
// This indicates no port could be bound before the scan cap, which means
// the network stack itself is unusable rather than merely contended.
func PortExhausted(min, last int) *CodedError {
	msg := fmt.Sprintf("no bindable port between %d and %d", min, last)
	return New(CodePortExhausted, msg)
}

// PortInvalidRange creates a "port.invalid_range" error for a malformed range.
func PortInvalidRange(min, max int) *CodedError {
	msg := fmt.Sprintf("invalid port range %d-%d", min, max)
	return New(CodePortInvalidRange, msg)
}

// SpawnExecFailed creates a "spawn.exec_failed" error.
func SpawnExecFailed(stage string, cause error) *CodedError {
	msg := fmt.Sprintf("failed to start %s process", stage)
	return Wrap(CodeSpawnExecFailed, msg, cause)
}

// SpawnRedirectFailed creates a "spawn.redirect_failed" error.
// The worker must never serve with the invoker's stdio still attached.
func SpawnRedirectFailed(cause error) *CodedError {
	return Wrap(CodeSpawnRedirectFailed, "failed to redirect worker stdio", cause)
}

// SpawnNoExecutable creates a "spawn.no_executable" error.
func SpawnNoExecutable(cause error) *CodedError {
	return Wrap(CodeSpawnNoExecutable, "failed to resolve own executable path", cause)
}

// HandoffTimeout creates a "handoff.timeout" error.
// The worker did not report its endpoint within the configured bound.
func HandoffTimeout(wait string) *CodedError {
	msg := fmt.Sprintf("no endpoint received from worker within %s", wait)
	return New(CodeHandoffTimeout, msg)
}

// HandoffClosed creates a "handoff.closed" error.
// The worker exited (or closed the pipe) before writing its endpoint.
func HandoffClosed(cause error) *CodedError {
	return Wrap(CodeHandoffClosed, "handoff pipe closed before endpoint arrived", cause)
}

// HandoffNoPipe creates a "handoff.no_pipe" error.
func HandoffNoPipe() *CodedError {
	return New(CodeHandoffNoPipe, "worker started without an inherited handoff pipe")
}

// SessionAbandoned creates a "session.abandoned" error.
// The caller hung up or never followed the redirect; this is the normal
// end of an unanswered conversation, not a fault.
func SessionAbandoned(idle string) *CodedError {
	msg := fmt.Sprintf("no continuation within %s, conversation abandoned", idle)
	return New(CodeSessionAbandoned, msg)
}

// SessionCompleted creates a "session.completed" error.
func SessionCompleted() *CodedError {
	return New(CodeSessionCompleted, "conversation already ended")
}

// SessionBindFailed creates a "session.bind_failed" error.
func SessionBindFailed(cause error) *CodedError {
	return Wrap(CodeSessionBindFailed, "listener unusable for the accept loop", cause)
}

// GrammarConflict creates a "turn.grammar_conflict" error.
// Exactly one of the inline grammar or the external reference is allowed.
func GrammarConflict() *CodedError {
	return New(CodeTurnGrammarConflict, "both an inline grammar and an external grammar reference were given")
}

// GrammarMissing creates a "turn.grammar_missing" error.
func GrammarMissing() *CodedError {
	return New(CodeTurnGrammarMissing, "an input turn needs an inline grammar or an external grammar reference")
}

// BadPause creates a "turn.bad_pause" error for a non-positive duration.
func BadPause(ms int64) *CodedError {
	msg := fmt.Sprintf("pause duration must be positive, got %dms", ms)
	return New(CodeTurnBadPause, msg)
}

// TurnWriteFailed creates a "turn.write_failed" error.
func TurnWriteFailed(cause error) *CodedError {
	return Wrap(CodeTurnWriteFailed, "failed to write turn response", cause)
}

// RecordNoBoundary creates a "record.no_boundary" error.
func RecordNoBoundary() *CodedError {
	return New(CodeRecordNoBoundary, "no multipart boundary found in recording payload")
}

// RecordBadUpload creates a "record.bad_upload" error.
func RecordBadUpload() *CodedError {
	return New(CodeRecordBadUpload, "recording continuation arrived without a body")
}

// ProxyBadPort creates a "proxy.bad_port" error.
func ProxyBadPort(raw string) *CodedError {
	msg := fmt.Sprintf("proxyfor value %q is not a valid port", raw)
	return New(CodeProxyBadPort, msg)
}

// StorageOpenFailed creates a "storage.open_failed" error.
func StorageOpenFailed(cause error) *CodedError {
	return Wrap(CodeStorageOpenFailed, "failed to open call database", cause)
}

// StorageQueryFailed creates a "storage.query_failed" error.
func StorageQueryFailed(op string, cause error) *CodedError {
	msg := fmt.Sprintf("call database %s failed", op)
	return Wrap(CodeStorageQueryFailed, msg, cause)
}

// MonitorSocketFailed creates a "monitor.socket_failed" error.
func MonitorSocketFailed(cause error) *CodedError {
	return Wrap(CodeMonitorSocketFailed, "failed to create monitor event socket", cause)
}
