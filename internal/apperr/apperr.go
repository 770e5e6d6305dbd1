// Package apperr defines the error-kind taxonomy surfaced across the HTTP
// API and the turn orchestrator. Handlers map an *Error's Kind to an HTTP
// status and to the {success:false, error:{message}} envelope; callers
// elsewhere use errors.As to branch on Kind without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error independent of its human-readable message.
type Kind string

const (
	KindAuthRequired      Kind = "auth_required"
	KindOAuthRequired     Kind = "oauth_required"
	KindRoleNotFound      Kind = "role_not_found"
	KindRoleForbidden     Kind = "role_forbidden"
	KindRoleBusy          Kind = "role_busy"
	KindToolFailed        Kind = "tool_failed"
	KindToolLimitExceeded Kind = "tool_limit_exceeded"
	KindProviderError     Kind = "provider_error"
	KindValidation        Kind = "validation"
	KindInternal          Kind = "internal"
)

// Error is the concrete error type every package in this module should
// return for a condition the HTTP layer needs to report distinctly.
type Error struct {
	Kind    Kind
	Message string

	// Provider and AccountEmail are populated for KindOAuthRequired so the
	// client knows which connect flow to start.
	Provider     string
	AccountEmail string

	// ToolName is populated for KindToolFailed.
	ToolName string

	// Err is the underlying cause, if any, for %w unwrapping.
	Err error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, apperr.KindRoleBusy) style comparisons when the
// caller only has a bare Kind sentinel, by treating two *Error values with
// the same Kind as equivalent.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func AuthRequired(message string) *Error {
	if message == "" {
		message = "authentication required"
	}
	return New(KindAuthRequired, message)
}

func OAuthRequired(provider, accountEmail string) *Error {
	return &Error{
		Kind:         KindOAuthRequired,
		Message:      fmt.Sprintf("reconnect %s to continue", provider),
		Provider:     provider,
		AccountEmail: accountEmail,
	}
}

func RoleNotFound(roleID string) *Error {
	return New(KindRoleNotFound, fmt.Sprintf("role %s not found", roleID))
}

func RoleForbidden(roleID string) *Error {
	return New(KindRoleForbidden, fmt.Sprintf("role %s is not owned by the caller", roleID))
}

func RoleBusy(roleID string) *Error {
	return New(KindRoleBusy, fmt.Sprintf("role %s has a turn already in progress", roleID))
}

func ToolFailed(toolName, detail string) *Error {
	return &Error{Kind: KindToolFailed, Message: detail, ToolName: toolName}
}

func ToolLimitExceeded(limit int) *Error {
	return New(KindToolLimitExceeded, fmt.Sprintf("exceeded the %d tool-call limit for this turn", limit))
}

func ProviderError(detail string, err error) *Error {
	return &Error{Kind: KindProviderError, Message: detail, Err: err}
}

func Validation(message string) *Error {
	return New(KindValidation, message)
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// As extracts an *Error from err, if any is present in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, and KindInternal otherwise — the catch-all the HTTP layer maps
// to a 500.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
