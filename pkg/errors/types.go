// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package errors provides structured, categorized errors for the
// credential subsystem. The error-code space is the authentication
// range (7000-7099) the wider Slurm client reserves for credential and
// auth failures; see internal/common.SlurmErrorCode.
package errors

import (
	"fmt"
	"time"

	"github.com/jontk/slurm-cred/internal/common"
)

// ErrorCode identifies one of the credential subsystem's failure kinds.
type ErrorCode string

const (
	// ErrorCodeInvalidPrincipal is returned when uid or gid is the
	// SLURM_AUTH_NOBODY sentinel at credential creation.
	ErrorCodeInvalidPrincipal ErrorCode = "INVALID_PRINCIPAL"

	// ErrorCodeInvalidCredential is returned when unpack succeeded but
	// the credential's verified flag is false.
	ErrorCodeInvalidCredential ErrorCode = "INVALID_CREDENTIAL"

	// ErrorCodeCredentialExpired is returned when now exceeds
	// ctime+cred_expire (job credential) or expiration (broadcast).
	ErrorCodeCredentialExpired ErrorCode = "CREDENTIAL_EXPIRED"

	// ErrorCodeReplayRejected is returned when a multi-block broadcast
	// extract finds no matching anti-replay cache entry.
	ErrorCodeReplayRejected ErrorCode = "REPLAY_REJECTED"

	// ErrorCodeBackendUnavailable is returned when no signing plugin
	// is loaded.
	ErrorCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"

	// ErrorCodeDecodeError is returned for structurally invalid packed
	// credentials.
	ErrorCodeDecodeError ErrorCode = "DECODE_ERROR"

	// ErrorCodeIdentityLookupFailed is returned when identity
	// enrichment fails during create.
	ErrorCodeIdentityLookupFailed ErrorCode = "IDENTITY_LOOKUP_FAILED"
)

// Category groups related error codes for easier handling.
type Category string

const (
	CategoryPrincipal  Category = "PRINCIPAL"
	CategoryFreshness  Category = "FRESHNESS"
	CategoryReplay     Category = "REPLAY"
	CategoryBackend    Category = "BACKEND"
	CategoryWireFormat Category = "WIRE_FORMAT"
	CategoryIdentity   Category = "IDENTITY"
)

// CredError is a structured error raised anywhere in the credential
// subsystem. It implements error, Unwrap and Is so callers can match
// on ErrorCode with errors.Is/errors.As.
type CredError struct {
	Code        ErrorCode
	Category    Category
	Message     string
	Timestamp   time.Time
	Cause       error
	NumericCode common.SlurmErrorCode
}

// Error implements the error interface.
func (e *CredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s/%d] %s: %v", e.Code, e.NumericCode, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s/%d] %s", e.Code, e.NumericCode, e.Message)
}

// NumericInfo looks up this error's numeric code in the shared
// Slurm authentication error-code table.
func (e *CredError) NumericInfo() *common.SlurmErrorInfo {
	return common.GetErrorInfo(int32(e.NumericCode))
}

// Unwrap returns the underlying cause, if any.
func (e *CredError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *CredError with the same Code.
func (e *CredError) Is(target error) bool {
	t, ok := target.(*CredError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func categoryFor(code ErrorCode) Category {
	switch code {
	case ErrorCodeInvalidPrincipal:
		return CategoryPrincipal
	case ErrorCodeCredentialExpired:
		return CategoryFreshness
	case ErrorCodeReplayRejected:
		return CategoryReplay
	case ErrorCodeBackendUnavailable:
		return CategoryBackend
	case ErrorCodeInvalidCredential, ErrorCodeDecodeError:
		return CategoryWireFormat
	case ErrorCodeIdentityLookupFailed:
		return CategoryIdentity
	default:
		return CategoryBackend
	}
}

// numericCodeFor maps an ErrorCode onto its numeric counterpart in the
// shared authentication error-code range.
func numericCodeFor(code ErrorCode) common.SlurmErrorCode {
	switch code {
	case ErrorCodeInvalidPrincipal:
		return common.SlurmErrorCredentialsInvalid
	case ErrorCodeInvalidCredential:
		return common.SlurmErrorTokenInvalid
	case ErrorCodeCredentialExpired:
		return common.SlurmErrorTokenExpired
	case ErrorCodeReplayRejected:
		return common.SlurmErrorReplayDetected
	case ErrorCodeBackendUnavailable:
		return common.SlurmErrorBackendUnavailable
	case ErrorCodeDecodeError:
		return common.SlurmErrorAccessDenied
	case ErrorCodeIdentityLookupFailed:
		return common.SlurmErrorIdentityLookupFailed
	default:
		return common.SlurmErrorAuthenticationFailed
	}
}

// New creates a CredError with no underlying cause.
func New(code ErrorCode, message string) *CredError {
	return &CredError{
		Code:        code,
		Category:    categoryFor(code),
		Message:     message,
		Timestamp:   time.Now(),
		NumericCode: numericCodeFor(code),
	}
}

// Wrap creates a CredError carrying an underlying cause.
func Wrap(code ErrorCode, message string, cause error) *CredError {
	return &CredError{
		Code:        code,
		Category:    categoryFor(code),
		Message:     message,
		Timestamp:   time.Now(),
		Cause:       cause,
		NumericCode: numericCodeFor(code),
	}
}

// Sentinel errors for the common comparisons callers make with
// errors.Is. Each carries no cause; wrap with Wrap when a cause needs
// to be attached and propagated.
var (
	ErrInvalidPrincipal   = New(ErrorCodeInvalidPrincipal, "uid or gid is the NOBODY sentinel")
	ErrInvalidCredential  = New(ErrorCodeInvalidCredential, "credential failed signature verification")
	ErrCredentialExpired  = New(ErrorCodeCredentialExpired, "credential has expired")
	ErrReplayRejected     = New(ErrorCodeReplayRejected, "broadcast extract found no anti-replay cache match")
	ErrBackendUnavailable = New(ErrorCodeBackendUnavailable, "no signing backend is loaded")
	ErrDecodeError        = New(ErrorCodeDecodeError, "packed credential is structurally invalid")
	ErrIdentityLookup     = New(ErrorCodeIdentityLookupFailed, "identity enrichment failed")
)
