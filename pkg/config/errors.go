// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package config

import "errors"

// ErrInvalidCredExpire is returned when CredExpire is below MinCredExpire.
var ErrInvalidCredExpire = errors.New("cred_expire must be at least the configured minimum")
