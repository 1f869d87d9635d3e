// Package errors provides centralized error definitions for the overseer
// codebase: sentinel errors, domain-specific error types with context
// builders, and re-exports of the standard library helpers so callers can
// import a single errors package.
//
// Domain errors:
//   - ProcessControlError: a tmux invocation failed or was unreachable
//   - GitError: a git query or worktree operation failed
//   - RemoteStoreError: the orchestration store boundary failed
//
// Semantic errors:
//   - NotFoundError: feature/session/design/ticket absent
//   - TimeoutError: a bounded wait exceeded its budget
//   - InvalidTransitionError / InvalidStatusError: state-machine misuse,
//     always rejected before any mutation
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Sentinel errors.
var (
	// ErrNotFound indicates that a requested resource does not exist.
	ErrNotFound = New("not found")
	// ErrTimeout indicates that an operation exceeded its time budget.
	ErrTimeout = New("operation timed out")
	// ErrSessionDied indicates that a watched session disappeared before a
	// terminal status was observed.
	ErrSessionDied = New("session died")
	// ErrAlreadyExists indicates that a resource already exists.
	ErrAlreadyExists = New("already exists")
	// ErrCorruptRecord indicates that a persisted record failed to parse.
	ErrCorruptRecord = New("corrupt record")
	// ErrInvalidFeature indicates that a feature name cannot be used as a
	// filesystem-backed identifier.
	ErrInvalidFeature = New("invalid feature name")
)

// -----------------------------------------------------------------------------
// ProcessControlError
// -----------------------------------------------------------------------------

// ProcessControlError reports a failed or unreachable tmux invocation.
// It carries the command arguments and whatever the tool wrote to stderr,
// so the failure is never silently swallowed.
type ProcessControlError struct {
	Op      string // tmux subcommand, e.g. "new-session"
	Session string
	Stderr  string
	cause   error
}

// NewProcessControlError creates a ProcessControlError for a tmux operation.
func NewProcessControlError(op string, cause error) *ProcessControlError {
	return &ProcessControlError{Op: op, cause: cause}
}

// WithSession adds the target session name to the error context.
func (e *ProcessControlError) WithSession(name string) *ProcessControlError {
	e.Session = name
	return e
}

// WithStderr attaches the tool's captured stderr.
func (e *ProcessControlError) WithStderr(stderr string) *ProcessControlError {
	e.Stderr = strings.TrimSpace(stderr)
	return e
}

func (e *ProcessControlError) Error() string {
	prefix := "tmux " + e.Op
	if e.Session != "" {
		prefix = fmt.Sprintf("%s [session=%s]", prefix, e.Session)
	}
	msg := prefix
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	}
	return msg
}

func (e *ProcessControlError) Unwrap() error { return e.cause }

// Is matches any other ProcessControlError, or the wrapped cause.
func (e *ProcessControlError) Is(target error) bool {
	if _, ok := target.(*ProcessControlError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// -----------------------------------------------------------------------------
// GitError
// -----------------------------------------------------------------------------

// GitError reports a failed git operation, with the command output captured
// for diagnosis.
type GitError struct {
	Repository string
	Output     string
	message    string
	cause      error
}

// NewGitError creates a new GitError.
func NewGitError(message string, cause error) *GitError {
	return &GitError{message: message, cause: cause}
}

// WithRepository adds the repository or worktree path to the error context.
func (e *GitError) WithRepository(path string) *GitError {
	e.Repository = path
	return e
}

// WithOutput attaches the captured git command output.
func (e *GitError) WithOutput(output string) *GitError {
	e.Output = strings.TrimSpace(output)
	return e
}

func (e *GitError) Error() string {
	prefix := "git error"
	if e.Repository != "" {
		prefix = fmt.Sprintf("git error [repo=%s]", e.Repository)
	}
	msg := e.message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if e.Output != "" {
		msg = fmt.Sprintf("%s\ngit output: %s", msg, e.Output)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

func (e *GitError) Unwrap() error { return e.cause }

func (e *GitError) Is(target error) bool {
	if _, ok := target.(*GitError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// -----------------------------------------------------------------------------
// RemoteStoreError
// -----------------------------------------------------------------------------

// RemoteStoreError reports a failure at the orchestration store boundary.
// The daemon logs and skips the affected worktree rather than aborting its
// cycle; all other callers surface it.
type RemoteStoreError struct {
	Op      string // store operation, e.g. "upsert-commit"
	Feature string
	cause   error
}

// NewRemoteStoreError creates a new RemoteStoreError.
func NewRemoteStoreError(op string, cause error) *RemoteStoreError {
	return &RemoteStoreError{Op: op, cause: cause}
}

// WithFeature adds the orchestration feature name to the error context.
func (e *RemoteStoreError) WithFeature(feature string) *RemoteStoreError {
	e.Feature = feature
	return e
}

func (e *RemoteStoreError) Error() string {
	prefix := "store " + e.Op
	if e.Feature != "" {
		prefix = fmt.Sprintf("%s [feature=%s]", prefix, e.Feature)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", prefix, e.cause)
	}
	return prefix
}

func (e *RemoteStoreError) Unwrap() error { return e.cause }

func (e *RemoteStoreError) Is(target error) bool {
	if _, ok := target.(*RemoteStoreError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// -----------------------------------------------------------------------------
// Semantic errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
// It is distinguished from transport errors so callers can map it to a
// specific exit code.
type NotFoundError struct {
	ResourceType string
	ResourceID   string
	cause        error
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{ResourceType: resourceType, ResourceID: resourceID}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s %q not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s %q not found", e.ResourceType, e.ResourceID)
}

func (e *NotFoundError) Unwrap() error { return e.cause }

func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if errors.Is(target, ErrNotFound) {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// TimeoutError represents an operation that exhausted its time budget.
// Timeouts are a distinct terminal outcome, not conflated with failure.
type TimeoutError struct {
	Operation string
	Budget    time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, budget time.Duration) *TimeoutError {
	return &TimeoutError{Operation: operation, Budget: budget}
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out: %s (budget: %s)", e.Operation, e.Budget)
}

func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	return errors.Is(target, ErrTimeout)
}

// InvalidTransitionError rejects a state-machine transition not present in
// the transition table. It is raised before any mutation occurs.
type InvalidTransitionError struct {
	Entity string // "orchestration" or "phase"
	From   string
	To     string
}

// NewInvalidTransitionError creates a new InvalidTransitionError.
func NewInvalidTransitionError(entity, from, to string) *InvalidTransitionError {
	return &InvalidTransitionError{Entity: entity, From: from, To: to}
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition: %s -> %s", e.Entity, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	_, ok := target.(*InvalidTransitionError)
	return ok
}

// InvalidStatusError rejects an unknown or out-of-place status value.
type InvalidStatusError struct {
	Entity string
	Status string
}

// NewInvalidStatusError creates a new InvalidStatusError.
func NewInvalidStatusError(entity, status string) *InvalidStatusError {
	return &InvalidStatusError{Entity: entity, Status: status}
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid %s status: %q", e.Entity, e.Status)
}

func (e *InvalidStatusError) Is(target error) bool {
	_, ok := target.(*InvalidStatusError)
	return ok
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// IsNotFound reports whether err represents an absent resource.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *NotFoundError
	return errors.Is(err, ErrNotFound) || errors.As(err, &nf)
}

// IsTimeout reports whether err represents an exhausted time budget.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var to *TimeoutError
	return errors.Is(err, ErrTimeout) || errors.As(err, &to)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
