// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package cred

import (
	"time"

	crederrors "github.com/jontk/slurm-cred/pkg/errors"
	"github.com/jontk/slurm-cred/pkg/logging"
)

// Verify checks a job credential's freshness after Unpack has set its
// verified flag. On success it returns the argument
// bundle and a release function the caller must invoke exactly once
// when done reading; the credential's read lock is held until then.
// On failure the lock is released before Verify returns.
func (c *JobCredential) Verify(ctx *Context) (*JobCredArgs, func(), error) {
	opLogger := logging.LogOperation(ctx.logger, "cred.Verify", "op_id", ctx.InstanceID())

	start := time.Now()
	c.mu.RLock()

	if c.magic != CredMagic {
		c.mu.RUnlock()
		err := crederrors.New(crederrors.ErrorCodeInvalidCredential, "credential magic sentinel mismatch: use-after-destroy")
		logging.LogError(opLogger, err, "cred.Verify")
		return nil, nil, err
	}

	if !c.verified {
		c.mu.RUnlock()
		ctx.metrics.RecordVerify(false, time.Since(start))
		logging.LogError(opLogger, crederrors.ErrInvalidCredential, "cred.Verify")
		return nil, nil, crederrors.ErrInvalidCredential
	}

	if time.Now().After(c.ctime.Add(ctx.CredExpire())) {
		c.mu.RUnlock()
		ctx.metrics.RecordVerify(false, time.Since(start))
		logging.LogError(opLogger, crederrors.ErrCredentialExpired, "cred.Verify")
		return nil, nil, crederrors.ErrCredentialExpired
	}

	ctx.metrics.RecordVerify(true, time.Since(start))
	opLogger.Debug("credential verified", "job_id", c.arg.Step.JobID, "uid", c.arg.UID)
	return c.arg, c.mu.RUnlock, nil
}

// GetArgs is an alias for Verify: get_args, verify, get_signature and
// get_mem all take the same read lock and differ only in what they
// read once it is held.
func (c *JobCredential) GetArgs(ctx *Context) (*JobCredArgs, func(), error) {
	return c.Verify(ctx)
}

// GetSignature returns a copy of the credential's detached signature
// under a read lock.
func (c *JobCredential) GetSignature() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]byte, len(c.signature))
	copy(out, c.signature)
	return out
}

// CTime returns the credential's signing timestamp.
func (c *JobCredential) CTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ctime
}

// IsVerified reports the credential's verified flag under a read lock.
func (c *JobCredential) IsVerified() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.verified
}

// Destroy invalidates the credential: it frees the argument bundle,
// the cached buffer and signature, and inverts the magic sentinel so
// any further read through a dangling reference fails loudly.
func (c *JobCredential) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.arg = nil
	c.buffer = nil
	c.signature = nil
	c.magic = ^c.magic

	if c.logger != nil {
		c.logger.Debug("credential destroyed")
	}
}
