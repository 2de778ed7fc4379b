// Package errs defines the caller-visible error kinds of the group chat core.
//
// Every failure returned by the service layer is an *Error carrying a Kind, the
// operation that was attempted and the entity it targeted. Callers match kinds
// with errors.Is against the sentinel values below:
//
//	if errors.Is(err, errs.ErrBanned) { ... }
package errs

import (
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindPermissionDenied
	KindNotFound
	KindInvalidTarget
	KindAlreadyMember
	KindAlreadyBanned
	KindBanned
	KindNotPending
	KindInvalidReply
	KindValidation
	KindUnavailable
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown",
	KindPermissionDenied: "permission_denied",
	KindNotFound:         "not_found",
	KindInvalidTarget:    "invalid_target",
	KindAlreadyMember:    "already_member",
	KindAlreadyBanned:    "already_banned",
	KindBanned:           "banned",
	KindNotPending:       "not_pending",
	KindInvalidReply:     "invalid_reply",
	KindValidation:       "validation_error",
	KindUnavailable:      "unavailable",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Sentinels for errors.Is. They compare by Kind only.
var (
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrInvalidTarget    = &Error{Kind: KindInvalidTarget}
	ErrAlreadyMember    = &Error{Kind: KindAlreadyMember}
	ErrAlreadyBanned    = &Error{Kind: KindAlreadyBanned}
	ErrBanned           = &Error{Kind: KindBanned}
	ErrNotPending       = &Error{Kind: KindNotPending}
	ErrInvalidReply     = &Error{Kind: KindInvalidReply}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrUnavailable      = &Error{Kind: KindUnavailable}
)

// Error is a classified failure.
type Error struct {
	Kind Kind
	// Op is the attempted operation or permission action, e.g. "promote" or "send_message".
	Op string
	// Entity names what ID refers to: group, member, message, invite, user.
	Entity string
	ID     string
	// Message is an optional human readable detail.
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Entity != "" || e.ID != "" {
		fmt.Fprintf(&b, " (%s %s)", e.Entity, e.ID)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, which makes the package sentinels
// usable with errors.Is regardless of the operation context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

func PermissionDenied(action, entity, id string) *Error {
	return &Error{Kind: KindPermissionDenied, Op: action, Entity: entity, ID: id}
}

func NotFound(op, entity, id string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Entity: entity, ID: id}
}

func InvalidTarget(op, entity, id, msg string) *Error {
	return &Error{Kind: KindInvalidTarget, Op: op, Entity: entity, ID: id, Message: msg}
}

func AlreadyMember(op, groupID, userID string) *Error {
	return &Error{Kind: KindAlreadyMember, Op: op, Entity: "group", ID: groupID, Message: "user " + userID + " already has a membership"}
}

func AlreadyBanned(op, groupID, userID string) *Error {
	return &Error{Kind: KindAlreadyBanned, Op: op, Entity: "group", ID: groupID, Message: "user " + userID + " is banned"}
}

func Banned(op, groupID string) *Error {
	return &Error{Kind: KindBanned, Op: op, Entity: "group", ID: groupID}
}

func NotPending(op, groupID, userID string) *Error {
	return &Error{Kind: KindNotPending, Op: op, Entity: "member", ID: userID, Message: "membership in group " + groupID + " is not pending"}
}

func InvalidReply(op, messageID string) *Error {
	return &Error{Kind: KindInvalidReply, Op: op, Entity: "message", ID: messageID}
}

func Validation(op, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: msg}
}

// Unavailable classifies an infrastructure failure. The cause keeps a stack
// trace so the request log shows where the storage or bus call failed.
func Unavailable(op string, cause error) *Error {
	return &Error{Kind: KindUnavailable, Op: op, Err: pkgerrors.WithStack(cause)}
}

// Wrap passes *Error values through untouched and classifies anything else as
// Unavailable. Repositories return raw driver errors; services funnel them
// through Wrap before returning.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return Unavailable(op, err)
}
