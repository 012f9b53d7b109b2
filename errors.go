/*
 * errors.go, part of goemle.
 *
 *
 * Copyright 2026 The goemle Authors
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

package emle

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies one of the error categories shared by the server,
// its backends and the client. The string value is what travels over the wire.
type Kind string

const (
	Configuration      Kind = "ConfigurationError"
	MalformedRequest   Kind = "MalformedRequest"
	UnsupportedElement Kind = "UnsupportedElementError"
	BackendCompute     Kind = "BackendComputeError"
	ServerUnreachable  Kind = "ServerUnreachableError"
	Unknown            Kind = "Error"
)

// Sentinels, meant to be used with errors.Is. Any *Error of the same
// Kind matches them.
var (
	ErrConfiguration      = &Error{kind: Configuration, critical: true}
	ErrMalformedRequest   = &Error{kind: MalformedRequest}
	ErrUnsupportedElement = &Error{kind: UnsupportedElement}
	ErrBackendCompute     = &Error{kind: BackendCompute}
	ErrServerUnreachable  = &Error{kind: ServerUnreachable, critical: true}
)

// Decorator is the interface for errors that can collect the names of the
// functions they went through on their way up the stack.
type Decorator interface {
	Error() string
	//Decorate adds deco to the decoration slice, unless it is empty, and
	//returns the current slice.
	Decorate(deco string) []string
}

// Error is the error type returned by all goemle packages.
// Critical errors are those after which the process
// (not just the current job) can't go on.
type Error struct {
	kind     Kind
	message  string
	deco     []string
	critical bool
	cause    error
}

// NewError returns a new error of the given kind, decorated with caller.
func NewError(kind Kind, message, caller string) *Error {
	E := &Error{kind: kind, message: message}
	E.critical = kind == Configuration || kind == ServerUnreachable
	E.Decorate(caller)
	return E
}

// Errorf builds an error of the given kind with a formatted message.
// As with fmt.Errorf, a %w verb keeps the wrapped error reachable by errors.Is/As.
func Errorf(kind Kind, caller, format string, a ...any) *Error {
	wrapped := fmt.Errorf(format, a...)
	E := NewError(kind, wrapped.Error(), caller)
	E.cause = errors.Unwrap(wrapped)
	return E
}

func (E *Error) Error() string {
	return fmt.Sprintf("%s: %s", E.kind, E.message)
}

// Message returns the error message without the kind prefix.
func (E *Error) Message() string { return E.message }

func (E *Error) Kind() Kind { return E.kind }

func (E *Error) Critical() bool { return E.critical }

func (E *Error) Unwrap() error { return E.cause }

// Decorate adds a caller to the error and returns the current trace.
func (E *Error) Decorate(deco string) []string {
	if deco != "" {
		E.deco = append(E.deco, deco)
	}
	return E.deco
}

// Trace returns the decoration as a single, readable string
func (E *Error) Trace() string {
	return strings.Join(E.deco, " <- ")
}

// Is reports whether target is an *Error of the same kind.
func (E *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.kind == E.kind
}

// KindOf returns the kind of err, or Unknown if err is not (and doesn't wrap) an *Error.
func KindOf(err error) Kind {
	var E *Error
	if errors.As(err, &E) {
		return E.kind
	}
	return Unknown
}

// Decorate decorates err with the caller's name if it implements Decorator,
// and returns it.
func Decorate(err error, caller string) error {
	if err == nil {
		return nil
	}
	if d, ok := err.(Decorator); ok {
		d.Decorate(caller)
	}
	return err
}

// AsKind returns err as an *Error. If err already is (or wraps) one, that one is
// decorated and returned, otherwise err is wrapped in a new error of the given kind.
func AsKind(err error, kind Kind, caller string) *Error {
	if err == nil {
		return nil
	}
	var E *Error
	if errors.As(err, &E) {
		E.Decorate(caller)
		return E
	}
	return Errorf(kind, caller, "%w", err)
}
