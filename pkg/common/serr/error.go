// Copyright 2024 Silo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package serr defines the coded errors used across the engine.
// An error carries a stable uint16 code so callers can test categories
// with IsErrCode instead of matching message text.
package serr

import (
	"context"
	"fmt"
)

const (
	Ok uint16 = 0

	// Group 1: internal errors
	ErrInternal uint16 = 20101
	ErrNYI      uint16 = 20102
	ErrOOM      uint16 = 20103

	// Group 2: bind-time contract violations
	ErrNotSupported uint16 = 20200
	ErrInvalidInput uint16 = 20201

	// Group 3: unexpected state
	ErrInvalidState   uint16 = 20300
	ErrCorruptedState uint16 = 20301
)

type errorMsgItem struct {
	errorMsgOrFormat string
}

var errorMsgRefer = map[uint16]errorMsgItem{
	ErrInternal:       {"internal error: %s"},
	ErrNYI:            {"%s is not yet implemented"},
	ErrOOM:            {"error: out of memory"},
	ErrNotSupported:   {"not supported: %s"},
	ErrInvalidInput:   {"invalid input: %s"},
	ErrInvalidState:   {"invalid state %s"},
	ErrCorruptedState: {"corrupted state: %s"},
}

// Error is the only error type produced by this package.
type Error struct {
	code    uint16
	message string
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) ErrorCode() uint16 {
	return e.code
}

func newError(_ context.Context, code uint16, args ...any) *Error {
	item, has := errorMsgRefer[code]
	if !has {
		panic(fmt.Sprintf("not exist error code: %d", code))
	}
	if len(args) == 0 {
		return &Error{code: code, message: item.errorMsgOrFormat}
	}
	return &Error{code: code, message: fmt.Sprintf(item.errorMsgOrFormat, args...)}
}

// IsErrCode reports whether e is a coded error with code rc.
func IsErrCode(e error, rc uint16) bool {
	if e == nil {
		return rc == Ok
	}
	me, ok := e.(*Error)
	if !ok {
		return false
	}
	return me.code == rc
}

func NewInternal(ctx context.Context, msg string, args ...any) *Error {
	return newError(ctx, ErrInternal, fmt.Sprintf(msg, args...))
}

func NewInternalNoCtx(msg string, args ...any) *Error {
	return NewInternal(context.Background(), msg, args...)
}

func NewNYI(ctx context.Context, msg string, args ...any) *Error {
	return newError(ctx, ErrNYI, fmt.Sprintf(msg, args...))
}

func NewNYINoCtx(msg string, args ...any) *Error {
	return NewNYI(context.Background(), msg, args...)
}

func NewOOM(ctx context.Context) *Error {
	return newError(ctx, ErrOOM)
}

func NewOOMNoCtx() *Error {
	return NewOOM(context.Background())
}

func NewNotSupported(ctx context.Context, msg string, args ...any) *Error {
	return newError(ctx, ErrNotSupported, fmt.Sprintf(msg, args...))
}

func NewNotSupportedNoCtx(msg string, args ...any) *Error {
	return NewNotSupported(context.Background(), msg, args...)
}

func NewInvalidInput(ctx context.Context, msg string, args ...any) *Error {
	return newError(ctx, ErrInvalidInput, fmt.Sprintf(msg, args...))
}

func NewInvalidInputNoCtx(msg string, args ...any) *Error {
	return NewInvalidInput(context.Background(), msg, args...)
}

func NewInvalidState(ctx context.Context, msg string, args ...any) *Error {
	return newError(ctx, ErrInvalidState, fmt.Sprintf(msg, args...))
}

func NewInvalidStateNoCtx(msg string, args ...any) *Error {
	return NewInvalidState(context.Background(), msg, args...)
}

func NewCorruptedState(ctx context.Context, msg string, args ...any) *Error {
	return newError(ctx, ErrCorruptedState, fmt.Sprintf(msg, args...))
}

func NewCorruptedStateNoCtx(msg string, args ...any) *Error {
	return NewCorruptedState(context.Background(), msg, args...)
}

// ConvertGoError converts a plain go error into a coded error.
// A nil error and an already-coded error are returned as is.
func ConvertGoError(ctx context.Context, err error) error {
	if err == nil {
		return err
	}
	if _, ok := err.(*Error); ok {
		return err
	}
	return NewInternal(ctx, "convert go error to coded error %v", err)
}
