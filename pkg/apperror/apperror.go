// Copyright 2025 Kadir Pekel
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

// Package apperror defines the tagged error taxonomy shared by every
// component of the pipeline: validation, lookup, conflict, file-shape,
// downstream-service, timeout, and internal failures.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry decisions and transport mapping.
type Kind string

const (
	Validation          Kind = "validation"
	NotFound            Kind = "not_found"
	Conflict            Kind = "conflict"
	BusinessRule        Kind = "business_rule"
	UnsupportedFileType Kind = "unsupported_file_type"
	FileTooLarge        Kind = "file_too_large"
	ExternalService     Kind = "external_service"
	Timeout             Kind = "timeout"
	Internal            Kind = "internal"
)

// Error is the single tagged error type used across the pipeline in
// place of a language-level exception hierarchy.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithDetails attaches structured context and returns the same error
// for chaining at the call site.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// KindOf extracts the Kind of err, defaulting to Internal for errors
// that were not produced by this package.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// IsRetryable reports whether the Job Engine should retry an operation
// that failed with err, per the propagation policy in §7: validation,
// not_found, conflict/business_rule, unsupported_file_type, and
// file_too_large are never retried; external_service and timeout are
// retried up to the job's max_retries; internal is retried once by
// convention of the caller (this function only classifies the kind,
// retry-count bookkeeping lives in the Job Engine).
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case ExternalService, Timeout, Internal:
		return true
	default:
		return false
	}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
