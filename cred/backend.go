// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package cred

// Backend is the signing plugin contract: a capability set handed to
// Context.Init as a value (there is no lookup by name). Exactly one
// backend is active per Context. The backend's own cryptography is an
// external collaborator the subsystem consumes, not one it defines;
// Sign and Verify are pure functions of the bytes they are given.
type Backend interface {
	// Name identifies the backend, used only for logging and metrics.
	Name() string

	// Sign returns a detached signature over body.
	Sign(body []byte) ([]byte, error)

	// Verify reports whether signature is a valid detached signature
	// over body, returning a non-nil error when it is not.
	Verify(body, signature []byte) error
}
