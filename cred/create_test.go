// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package cred

import (
	"os/user"
	"strconv"
	"testing"

	"github.com/jontk/slurm-cred/internal/versioning"
	crederrors "github.com/jontk/slurm-cred/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func currentUIDForTest(t *testing.T) uint32 {
	t.Helper()
	u, err := user.Current()
	require.NoError(t, err)
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	require.NoError(t, err)
	return uint32(uid)
}

func newTestContext(t *testing.T) *Context {
	t.Helper()
	backend, err := NewJWTBackend([]byte("test-signing-key"))
	require.NoError(t, err)

	ctx := NewContext()
	require.NoError(t, ctx.Init(backend, "cred_expire=120", ""))
	return ctx
}

func TestCreateRejectsNobodyUID(t *testing.T) {
	ctx := newTestContext(t)
	args := scenarioOneArgs()
	args.UID = NobodyID

	_, err := Create(ctx, args, true, versioning.Latest())
	assert.ErrorIs(t, err, crederrors.ErrInvalidPrincipal)
}

func TestCreateRejectsNobodyGID(t *testing.T) {
	ctx := newTestContext(t)
	args := scenarioOneArgs()
	args.GID = NobodyID

	_, err := Create(ctx, args, true, versioning.Latest())
	assert.ErrorIs(t, err, crederrors.ErrInvalidPrincipal)
}

func TestCreateWithoutBackendFails(t *testing.T) {
	ctx := NewContext()
	args := scenarioOneArgs()

	_, err := Create(ctx, args, true, versioning.Latest())
	assert.ErrorIs(t, err, crederrors.ErrBackendUnavailable)
}

func TestCreatePopulatesBufferAndSignature(t *testing.T) {
	ctx := newTestContext(t)
	args := scenarioOneArgs()

	c, err := Create(ctx, args, true, versioning.Latest())
	require.NoError(t, err)
	assert.NotEmpty(t, c.GetSignature())
	assert.False(t, c.IsVerified())
}

func TestCreateUnsignedHasNoSignature(t *testing.T) {
	ctx := newTestContext(t)
	args := scenarioOneArgs()

	c, err := Create(ctx, args, false, versioning.Latest())
	require.NoError(t, err)
	assert.Empty(t, c.GetSignature())
}

func TestFakerEnrichesIdentity(t *testing.T) {
	ctx := newTestContext(t)
	args := scenarioOneArgs()
	args.UID = uint32(currentUIDForTest(t))
	args.GID = args.UID

	c, err := Faker(ctx, args)
	require.NoError(t, err)
	require.NotNil(t, args.Identity)
	assert.NotEmpty(t, c.GetSignature())
}
