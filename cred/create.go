// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package cred

import (
	"fmt"
	"time"

	"github.com/jontk/slurm-cred/internal/identity"
	"github.com/jontk/slurm-cred/internal/versioning"
	crederrors "github.com/jontk/slurm-cred/pkg/errors"
	"github.com/jontk/slurm-cred/pkg/logging"
)

// Create builds a JobCredential from args, optionally signing it.
// Identity enrichment runs when args.Identity is unset and the
// context's enable_nss_slurm flag is on.
func Create(ctx *Context, args *JobCredArgs, sign bool, proto versioning.ProtocolVersion) (*JobCredential, error) {
	opLogger := logging.LogOperation(ctx.logger, "cred.Create", "op_id", ctx.InstanceID())

	if args.UID == NobodyID || args.GID == NobodyID {
		err := crederrors.ErrInvalidPrincipal
		logging.LogError(opLogger, err, "cred.Create")
		return nil, err
	}

	backend := ctx.Backend()
	if backend == nil {
		err := crederrors.ErrBackendUnavailable
		logging.LogError(opLogger, err, "cred.Create")
		return nil, err
	}

	if args.Identity == nil && ctx.EnableNSSSlurm() {
		id, err := identity.Fetch(args.UID, args.GID)
		if err != nil {
			wrapped := crederrors.Wrap(crederrors.ErrorCodeIdentityLookupFailed, "identity enrichment failed", err)
			logging.LogError(opLogger, wrapped, "cred.Create")
			return nil, wrapped
		}
		args.Identity = id
	}

	ctime := time.Now()
	body := packBody(proto, ctime, args)

	var signature []byte
	if sign {
		sig, err := backend.Sign(body)
		if err != nil {
			wrapped := fmt.Errorf("cred: sign credential: %w", err)
			logging.LogError(opLogger, wrapped, "cred.Create")
			return nil, wrapped
		}
		signature = sig
	}

	cred := &JobCredential{
		arg:        args,
		ctime:      ctime,
		verified:   false,
		buffer:     body,
		bufVersion: proto,
		signature:  signature,
		magic:      CredMagic,
		logger:     opLogger,
	}

	ctx.metrics.RecordCreate(proto.String())
	opLogger.Debug("credential created",
		"job_id", args.Step.JobID,
		"uid", args.UID,
		"signed", sign,
		"protocol", proto.String(),
	)
	return cred, nil
}

// Faker forces identity enrichment on and calls Create with the
// latest protocol version, signing unconditionally. It exists for
// tests that need a fully enriched credential without wiring a real
// LaunchParameters string.
func Faker(ctx *Context, args *JobCredArgs) (*JobCredential, error) {
	if args.Identity == nil {
		id, err := identity.Fetch(args.UID, args.GID)
		if err != nil {
			return nil, crederrors.Wrap(crederrors.ErrorCodeIdentityLookupFailed, "identity enrichment failed", err)
		}
		args.Identity = id
	}
	return Create(ctx, args, true, versioning.Latest())
}
