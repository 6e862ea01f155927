// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package apierr classifies the error kinds from §7 of the design into a
// small typed hierarchy so HTTP handlers can map them to status codes with
// a single switch instead of inlining http.Error calls at every call site.
package apierr

import (
	"fmt"
	"net/http"
)

// Kind identifies one of the error dispositions the service recognizes.
type Kind int

const (
	// KindUnknownExperiment surfaces as 404 on all experiment-scoped endpoints.
	KindUnknownExperiment Kind = iota
	// KindInvalidInput surfaces as 422.
	KindInvalidInput
	// KindConflict surfaces as 409 (duplicate create, reward against a concluded experiment).
	KindConflict
	// KindStateStoreUnavailable surfaces as 5xx; callers may retry.
	KindStateStoreUnavailable
	// KindRegistryUnavailable surfaces as 5xx from experiment creation.
	KindRegistryUnavailable
)

// Error wraps an underlying cause with a Kind the HTTP layer can switch on.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around an existing cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// UnknownExperiment is a convenience constructor for the common 404 case.
func UnknownExperiment(id string) *Error {
	return New(KindUnknownExperiment, "experiment %q not found", id)
}

// InvalidInput is a convenience constructor for the common 422 case.
func InvalidInput(format string, args ...any) *Error {
	return New(KindInvalidInput, format, args...)
}

// Conflict is a convenience constructor for the common 409 case.
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

// HTTPStatus maps a Kind to the status code the Inference Service responds
// with (§4.4, §7).
func HTTPStatus(k Kind) int {
	switch k {
	case KindUnknownExperiment:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindStateStoreUnavailable, KindRegistryUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// As extracts an *Error from err, if any is present in its chain.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	if ok {
		return e, true
	}
	type unwrapper interface{ Unwrap() error }
	for u, ok := err.(unwrapper); ok; u, ok = err.(unwrapper) {
		err = u.Unwrap()
		if e, ok := err.(*Error); ok {
			return e, true
		}
	}
	return nil, false
}
