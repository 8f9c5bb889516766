// Copyright 2019 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package terror defines the classified, workaround-carrying error type used
// across the migration driver: every error surfaced from an exported
// function is a *terror.Error, so callers can dispatch on Class/Code instead
// of matching on error strings.
package terror

import (
	"fmt"

	perrors "github.com/pingcap/errors"
)

// ErrCode is a unique, stable numeric identifier for one error definition.
type ErrCode int

// ErrClass classifies an error by the subsystem that raised it.
type ErrClass int

// Error classes used by the migration driver and its supporting packages.
const (
	ClassDatabase ErrClass = iota + 1
	ClassFunctional
	ClassConfig
	ClassElection
	ClassLegacyStore
	ClassLogMeta
	ClassMigration
)

var errClass2Str = map[ErrClass]string{
	ClassDatabase:    "database",
	ClassFunctional:  "functional",
	ClassConfig:      "config",
	ClassElection:    "election",
	ClassLegacyStore: "legacy-store",
	ClassLogMeta:     "log-meta",
	ClassMigration:   "migration",
}

// String implements fmt.Stringer.
func (ec ErrClass) String() string {
	if s, ok := errClass2Str[ec]; ok {
		return s
	}
	return fmt.Sprintf("unknown error class: %d", int(ec))
}

// ErrScope classifies an error by which side of a migration it originated on.
type ErrScope int

// Error scopes.
const (
	ScopeNotSet ErrScope = iota
	ScopeUpstream
	ScopeDownstream
	ScopeInternal
)

var errScope2Str = map[ErrScope]string{
	ScopeNotSet:    "not-set",
	ScopeUpstream:  "upstream",
	ScopeDownstream: "downstream",
	ScopeInternal:  "internal",
}

// String implements fmt.Stringer.
func (es ErrScope) String() string {
	if s, ok := errScope2Str[es]; ok {
		return s
	}
	return fmt.Sprintf("unknown error scope: %d", int(es))
}

// ErrLevel indicates how the caller should react to an error.
type ErrLevel int

// Error levels.
const (
	LevelLow ErrLevel = iota + 1
	LevelMedium
	LevelHigh
)

var errLevel2Str = map[ErrLevel]string{
	LevelLow:    "low",
	LevelMedium: "medium",
	LevelHigh:   "high",
}

// String implements fmt.Stringer.
func (el ErrLevel) String() string {
	if s, ok := errLevel2Str[el]; ok {
		return s
	}
	return fmt.Sprintf("unknown error level: %d", int(el))
}

const errBaseFormat = "[code=%d:class=%s:scope=%s:level=%s]"

// Error is the migration driver's classified error type. Values are defined
// once as package-level templates (see error_list.go) and instantiated per
// occurrence with Generate/Generatef/Delegate/New, each of which returns a
// fresh *Error carrying a stack trace captured at the call site.
type Error struct {
	code       ErrCode
	class      ErrClass
	scope      ErrScope
	level      ErrLevel
	message    string
	workaround string
	args       []interface{}
	rawCause   error
	traced     error // non-nil once a stack trace has been captured
}

// New creates a new error template. message may contain fmt verbs that are
// filled in later by Generate/Generatef.
func New(code ErrCode, class ErrClass, scope ErrScope, level ErrLevel, message string, workaround ...string) *Error {
	e := &Error{
		code:    code,
		class:   class,
		scope:   scope,
		level:   level,
		message: message,
	}
	if len(workaround) > 0 {
		e.workaround = workaround[0]
	}
	return e
}

func (e *Error) clone() *Error {
	c := *e
	c.args = nil
	c.rawCause = nil
	c.traced = nil
	return &c
}

// Code returns the error's code.
func (e *Error) Code() ErrCode { return e.code }

// Class returns the error's class.
func (e *Error) Class() ErrClass { return e.class }

// Scope returns the error's scope.
func (e *Error) Scope() ErrScope { return e.scope }

// Level returns the error's level.
func (e *Error) Level() ErrLevel { return e.level }

// Workaround returns the suggested workaround text.
func (e *Error) Workaround() string { return e.workaround }

// SetMessage returns a copy of e with a replacement message template. Used
// to compose one template into multiple related errors that share a code.
func (e *Error) SetMessage(message string) *Error {
	c := e.clone()
	c.message = message
	return c
}

func (e *Error) getMsg() string {
	if len(e.args) == 0 {
		return e.message
	}
	return fmt.Sprintf(e.message, e.args...)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf(errBaseFormat+", Message: %s, Workaround: %s", e.code, e.class, e.scope, e.level, e.getMsg(), e.workaround)
	if e.rawCause != nil {
		msg = fmt.Sprintf(errBaseFormat+", Message: %s, RawCause: %s, Workaround: %s", e.code, e.class, e.scope, e.level, e.getMsg(), e.rawCause.Error(), e.workaround)
	}
	return msg
}

// Cause implements the causer interface consumed by github.com/pingcap/errors.
func (e *Error) Cause() error {
	if e.rawCause != nil {
		return e.rawCause
	}
	return nil
}

// Format implements fmt.Formatter, printing the stack trace captured at the
// occurrence's construction site for %+v.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') && e.traced != nil {
			fmt.Fprintf(s, "%s\n%+v", e.Error(), e.traced)
			return
		}
		fmt.Fprint(s, e.Error())
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

// Equal reports whether err was produced from the same error template as e,
// i.e. they share a code. It is the recommended way to test an error's
// identity, since the message/args vary per occurrence.
func (e *Error) Equal(err error) bool {
	if err == nil {
		return false
	}
	te, ok := err.(*Error)
	if !ok {
		return false
	}
	return te.code == e.code
}

// New instantiates an occurrence of e with a fixed message (no fmt verbs
// applied), capturing a stack trace at the call site.
func (e *Error) New(message string) *Error {
	occ := e.clone()
	occ.message = message
	occ.traced = perrors.AddStack(perrors.New(""))
	return occ
}

// Generate instantiates an occurrence of e, applying args to the message
// template with fmt.Sprintf, capturing a stack trace at the call site.
func (e *Error) Generate(args ...interface{}) *Error {
	occ := e.clone()
	occ.args = args
	occ.traced = perrors.AddStack(perrors.New(""))
	return occ
}

// Generatef instantiates an occurrence of e with a one-off message format,
// capturing a stack trace at the call site.
func (e *Error) Generatef(format string, args ...interface{}) *Error {
	occ := e.clone()
	occ.message = format
	occ.args = args
	occ.traced = perrors.AddStack(perrors.New(""))
	return occ
}

// Delegate wraps a raw error as the cause of an occurrence of e. If err is
// nil, Delegate returns nil so call sites can write
// `return terror.ErrXxx.Delegate(err)` unconditionally.
func (e *Error) Delegate(err error, args ...interface{}) error {
	if err == nil {
		return nil
	}
	occ := e.clone()
	occ.args = args
	occ.rawCause = perrors.Cause(err)
	occ.traced = perrors.AddStack(perrors.New(""))
	return occ
}

// AnnotateDelegate is like Delegate but formats the message with args first,
// the way Annotate composes an extra message onto an existing error.
func (e *Error) AnnotateDelegate(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	occ := e.clone()
	occ.message = format
	occ.args = args
	occ.rawCause = perrors.Cause(err)
	occ.traced = perrors.AddStack(perrors.New(""))
	return occ
}

// Annotate adds a message to err. If err is a *Error, the annotation
// replaces its message (the original message is preserved as a %s arg) and
// the result is still a *Error carrying the same code. Otherwise it behaves
// like github.com/pingcap/errors.Annotate.
func Annotate(err error, message string) error {
	if err == nil {
		return nil
	}
	if te, ok := err.(*Error); ok {
		occ := te.clone()
		occ.message = message + ": %s"
		occ.args = []interface{}{te.getMsg()}
		occ.traced = perrors.AddStack(perrors.New(""))
		return occ
	}
	return perrors.Annotate(err, message)
}

// Annotatef is like Annotate but with a fmt format for the added message.
func Annotatef(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Annotate(err, fmt.Sprintf(format, args...))
}

// WithScope returns a copy of err with its scope replaced, if err is a
// *Error; for a plain error it just prefixes the scope onto the message.
func WithScope(err error, scope ErrScope) error {
	if err == nil {
		return nil
	}
	if te, ok := err.(*Error); ok {
		occ := te.clone()
		occ.args = te.args
		occ.scope = scope
		return occ
	}
	return fmt.Errorf("error scope: %s: %s", scope, err.Error())
}

// WithClass returns a copy of err with its class replaced, if err is a
// *Error; for a plain error it just prefixes the class onto the message.
func WithClass(err error, class ErrClass) error {
	if err == nil {
		return nil
	}
	if te, ok := err.(*Error); ok {
		occ := te.clone()
		occ.args = te.args
		occ.class = class
		return occ
	}
	return fmt.Errorf("error class: %s: %s", class, err.Error())
}

// Message returns the human-readable message carried by err, or its plain
// Error() text if err is not a *Error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if te, ok := err.(*Error); ok {
		return te.getMsg()
	}
	return err.Error()
}
