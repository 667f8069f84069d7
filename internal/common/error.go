// Package common defines the error taxonomy shared by the server, the relay
// and the client library. Every error that crosses the wire carries a Code;
// callers should use errors.Is against the sentinels below.
package common

import (
	"errors"
	"fmt"
	"time"
)

// Code is the machine-readable error class carried in responses.
type Code string

const (
	CodeInvalidCredential Code = "invalid_credential"
	CodeAccountLocked     Code = "account_locked"
	CodeAlreadyLoggedIn   Code = "already_logged_in"
	CodeSessionExpired    Code = "session_expired"
	CodeInsufficientFunds Code = "insufficient_funds"
	CodeRecipientNotFound Code = "recipient_not_found"
	CodeRecipientLocked   Code = "recipient_locked"
	CodeInvalidAmount     Code = "invalid_amount"
	CodeInvalidRequest    Code = "invalid_request"
	CodeUnknownCommand    Code = "unknown_command"
	CodeUnauthorized      Code = "unauthorized"
	CodeAccountExists     Code = "account_exists"
	CodeAccountNotFound   Code = "account_not_found"
	CodeEntityNotFound    Code = "entity_not_found"
	CodeReadOnly          Code = "storage_read_only"
	CodeInternal          Code = "internal_error"

	// client side only
	CodeTimeout        Code = "timeout"
	CodeOutcomeUnknown Code = "outcome_unknown"

	// relay side only
	CodeUnreachable   Code = "unreachable"
	CodeNotRegistered Code = "not_registered"
)

// Error is a typed business or protocol error.
type Error struct {
	Code    Code
	Message string

	// Set only for CodeAccountLocked / CodeRecipientLocked.
	LockReason string
	LockedAt   time.Time
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same Code, so errors.Is(err, ErrAccountLocked)
// holds for locked errors carrying a reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError builds an *Error.
func NewError(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Locked reports a locked account with its reason.
func Locked(code Code, reason string, at time.Time) *Error {
	return &Error{Code: code, Message: "account is locked", LockReason: reason, LockedAt: at}
}

var (
	ErrInvalidCredential = NewError(CodeInvalidCredential, "invalid username or password")
	ErrAccountLocked     = NewError(CodeAccountLocked, "account is locked")
	ErrAlreadyLoggedIn   = NewError(CodeAlreadyLoggedIn, "a session is already active for this account")
	ErrSessionExpired    = NewError(CodeSessionExpired, "no active session")
	ErrInsufficientFunds = NewError(CodeInsufficientFunds, "insufficient funds")
	ErrRecipientNotFound = NewError(CodeRecipientNotFound, "recipient not found")
	ErrRecipientLocked   = NewError(CodeRecipientLocked, "recipient account is locked")
	ErrInvalidAmount     = NewError(CodeInvalidAmount, "invalid amount")
	ErrInvalidRequest    = NewError(CodeInvalidRequest, "invalid request")
	ErrUnknownCommand    = NewError(CodeUnknownCommand, "unknown command")
	ErrUnauthorized      = NewError(CodeUnauthorized, "unauthorized")
	ErrAccountExists     = NewError(CodeAccountExists, "account already exists")
	ErrAccountNotFound   = NewError(CodeAccountNotFound, "account not found")
	ErrEntityNotFound    = NewError(CodeEntityNotFound, "entity not found")
	ErrReadOnly          = NewError(CodeReadOnly, "storage is in read-only degraded mode")
	ErrInternal          = NewError(CodeInternal, "internal error")
	ErrUnreachable       = NewError(CodeUnreachable, "server unreachable")
	ErrNotRegistered     = NewError(CodeNotRegistered, "endpoint is not registered with the relay")

	// Token lifecycle errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// CodeOf extracts the Code from err, falling back to CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
