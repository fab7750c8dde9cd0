// Package apperr defines the failure taxonomy shared by every service and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindParam marks malformed or missing input.
	KindParam Kind = iota + 1
	// KindBusiness marks a rule violation such as a permission or duplicate failure.
	KindBusiness
	// KindNeedLogin marks an absent or invalid credential.
	KindNeedLogin
	// KindAPITokenInvalid marks a signed API credential that is no longer issued.
	KindAPITokenInvalid
	// KindSystem marks a persistence or infrastructure failure.
	KindSystem
)

const (
	CodeSuccess         = 0
	CodeParam           = 1
	CodeBusiness        = 2
	CodeNeedLogin       = 3
	CodeAPITokenInvalid = 3
	CodeSystem          = 99

	messageNeedLogin       = "please login first"
	messageAPITokenInvalid = "api token is no longer valid"
	messageSystem          = "system_exception"
)

// Error is the single failure type surfaced by services.
type Error struct {
	kind    Kind
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.message
	}
	return fmt.Sprintf("%s: %v", e.message, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Kind returns the failure classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Message returns the user-facing message. System failures never expose their cause.
func (e *Error) Message() string {
	return e.message
}

// Code returns the numeric response code for the failure.
func (e *Error) Code() int {
	switch e.kind {
	case KindParam:
		return CodeParam
	case KindBusiness:
		return CodeBusiness
	case KindNeedLogin:
		return CodeNeedLogin
	case KindAPITokenInvalid:
		return CodeAPITokenInvalid
	default:
		return CodeSystem
	}
}

func Param(message string) *Error {
	return &Error{kind: KindParam, message: message}
}

func Fail(message string) *Error {
	return &Error{kind: KindBusiness, message: message}
}

func NeedLogin() *Error {
	return &Error{kind: KindNeedLogin, message: messageNeedLogin}
}

func APITokenInvalid() *Error {
	return &Error{kind: KindAPITokenInvalid, message: messageAPITokenInvalid}
}

// System wraps an infrastructure failure behind the generic message.
func System(cause error) *Error {
	return &Error{kind: KindSystem, message: messageSystem, cause: cause}
}

// From converts any error into the taxonomy; unknown errors become system failures.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return System(err)
}

// Is reports whether err belongs to the provided kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.kind == kind
}
