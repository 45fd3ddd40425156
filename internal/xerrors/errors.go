// Package xerrors defines the normalized error kinds shared by every GEDS
// component: the metadata store, the file-handle variants, the backing-store
// adapter, and the TCP data plane all report failures using these sentinels
// so that callers can branch with errors.Is instead of string matching.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package xerrors

import (
	"errors"
	"fmt"
)

// Kind is one of the status codes named in the GEDS error-handling design.
type Kind int

const (
	KindOK Kind = iota
	KindCancelled
	KindUnknown
	KindInvalidArgument
	KindDeadlineExceeded
	KindNotFound
	KindAlreadyExists
	KindPermissionDenied
	KindResourceExhausted
	KindFailedPrecondition
	KindAborted
	KindOutOfRange
	KindUnimplemented
	KindInternal
	KindUnavailable
	KindDataLoss
	KindUnauthenticated
)

var kindNames = [...]string{
	"OK", "Cancelled", "Unknown", "InvalidArgument", "DeadlineExceeded",
	"NotFound", "AlreadyExists", "PermissionDenied", "ResourceExhausted",
	"FailedPrecondition", "Aborted", "OutOfRange", "Unimplemented",
	"Internal", "Unavailable", "DataLoss", "Unauthenticated",
}

func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindNames) {
		return "Unknown"
	}
	return kindNames[k]
}

// Error pairs a Kind with a message and, optionally, a cause. It is the
// concrete type every sentinel below wraps; errors.Is compares by Kind,
// not by message, so wrapping with fmt.Errorf("...: %w", err) is safe.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, xerrors.NotFound) to match any *Error with the
// same Kind regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Sentinels for errors.Is comparisons; carry no message of their own.
var (
	NotFound            = &Error{Kind: KindNotFound}
	AlreadyExists        = &Error{Kind: KindAlreadyExists}
	PermissionDenied     = &Error{Kind: KindPermissionDenied}
	InvalidArgument      = &Error{Kind: KindInvalidArgument}
	FailedPrecondition   = &Error{Kind: KindFailedPrecondition}
	Unavailable          = &Error{Kind: KindUnavailable}
	Internal             = &Error{Kind: KindInternal}
	DeadlineExceeded     = &Error{Kind: KindDeadlineExceeded}
	Unimplemented        = &Error{Kind: KindUnimplemented}
)

func NotFoundf(format string, a ...interface{}) *Error {
	return New(KindNotFound, fmt.Sprintf(format, a...))
}

func AlreadyExistsf(format string, a ...interface{}) *Error {
	return New(KindAlreadyExists, fmt.Sprintf(format, a...))
}

func InvalidArgumentf(format string, a ...interface{}) *Error {
	return New(KindInvalidArgument, fmt.Sprintf(format, a...))
}

func FailedPreconditionf(format string, a ...interface{}) *Error {
	return New(KindFailedPrecondition, fmt.Sprintf(format, a...))
}

func PermissionDeniedf(format string, a ...interface{}) *Error {
	return New(KindPermissionDenied, fmt.Sprintf(format, a...))
}

func Unavailablef(format string, a ...interface{}) *Error {
	return New(KindUnavailable, fmt.Sprintf(format, a...))
}

func Internalf(format string, a ...interface{}) *Error {
	return New(KindInternal, fmt.Sprintf(format, a...))
}

// KindOf extracts the Kind carried by err, defaulting to KindUnknown when
// err was not produced by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return KindOK
	}
	return KindUnknown
}
