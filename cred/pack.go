// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package cred

import (
	"fmt"
	"time"

	"github.com/jontk/slurm-cred/internal/bitmap"
	"github.com/jontk/slurm-cred/internal/buffer"
	"github.com/jontk/slurm-cred/internal/gres"
	"github.com/jontk/slurm-cred/internal/versioning"
	crederrors "github.com/jontk/slurm-cred/pkg/errors"
	"github.com/jontk/slurm-cred/pkg/logging"
)

// packBody encodes proto, ctime and the full JobCredArgs payload. This
// is the byte string the backend signs and verifies: the
// signature covers the protocol tag, the creation time and every
// field, so a tampered tag or a forged ctime is caught the same way a
// tampered field is. ctime travels inside the signed body because it
// is the only place Unpack can recover it from.
func packBody(proto versioning.ProtocolVersion, ctime time.Time, args *JobCredArgs) []byte {
	b := buffer.New(512)
	b.Pack16(uint16(proto))
	b.PackTime(ctime)
	packArgs(b, args)
	return b.Bytes()
}

// unpackBody is the mirror of packBody.
func unpackBody(buf []byte) (versioning.ProtocolVersion, time.Time, *JobCredArgs, error) {
	b := buffer.FromBytes(buf)
	tag, err := b.Unpack16()
	if err != nil {
		return 0, time.Time{}, nil, fmt.Errorf("cred: unpack protocol tag: %w", err)
	}
	proto := versioning.ProtocolVersion(tag)
	if !versioning.IsSupported(proto) {
		return 0, time.Time{}, nil, fmt.Errorf("cred: unsupported protocol version %s", proto)
	}
	ctime, err := b.UnpackTime()
	if err != nil {
		return 0, time.Time{}, nil, fmt.Errorf("cred: unpack ctime: %w", err)
	}
	args, err := unpackArgs(b)
	if err != nil {
		return 0, time.Time{}, nil, err
	}
	return proto, ctime, args, nil
}

func packArgs(b *buffer.Buffer, a *JobCredArgs) {
	b.Pack32(a.UID)
	b.Pack32(a.GID)
	b.Pack32(a.Step.JobID)
	b.Pack32(a.Step.HetJobID)
	b.Pack32(a.Step.StepID)

	b.PackStr(a.JobHostlist)
	b.PackStr(a.StepHostlist)
	b.Pack32(a.JobNHosts)

	b.PackArray(a.SocketsPerNode)
	b.PackArray(a.CoresPerSocket)
	b.PackArray(a.SockCoreRepCount)

	packBitmap(b, a.JobCoreBitmap)
	packBitmap(b, a.StepCoreBitmap)

	b.Pack64Array(a.JobMemAlloc)
	b.PackArray(a.JobMemAllocRepCount)
	b.Pack64Array(a.StepMemAlloc)
	b.PackArray(a.StepMemAllocRepCount)

	packGresList(b, a.JobGres)
	packGresList(b, a.StepGres)

	b.PackStr(a.Account)
	b.PackStr(a.Comment)
	b.PackStr(a.Constraints)
	b.PackStr(a.Licenses)
	b.PackStr(a.Reservation)
	b.PackStr(a.Partition)
	b.PackStr(a.Stdin)
	b.PackStr(a.Stdout)
	b.PackStr(a.Stderr)

	packStrSlice(b, a.Alias)
	packStrSlice(b, a.NodeAddrs)
}

func unpackArgs(b *buffer.Buffer) (*JobCredArgs, error) {
	a := &JobCredArgs{}

	var err error
	if a.UID, err = b.Unpack32(); err != nil {
		return nil, err
	}
	if a.GID, err = b.Unpack32(); err != nil {
		return nil, err
	}
	if a.Step.JobID, err = b.Unpack32(); err != nil {
		return nil, err
	}
	if a.Step.HetJobID, err = b.Unpack32(); err != nil {
		return nil, err
	}
	if a.Step.StepID, err = b.Unpack32(); err != nil {
		return nil, err
	}

	if a.JobHostlist, err = b.UnpackStr(); err != nil {
		return nil, err
	}
	if a.StepHostlist, err = b.UnpackStr(); err != nil {
		return nil, err
	}
	if a.JobNHosts, err = b.Unpack32(); err != nil {
		return nil, err
	}

	if a.SocketsPerNode, err = b.UnpackArray(); err != nil {
		return nil, err
	}
	if a.CoresPerSocket, err = b.UnpackArray(); err != nil {
		return nil, err
	}
	if a.SockCoreRepCount, err = b.UnpackArray(); err != nil {
		return nil, err
	}

	if a.JobCoreBitmap, err = unpackBitmap(b); err != nil {
		return nil, err
	}
	if a.StepCoreBitmap, err = unpackBitmap(b); err != nil {
		return nil, err
	}

	if a.JobMemAlloc, err = b.Unpack64Array(); err != nil {
		return nil, err
	}
	if a.JobMemAllocRepCount, err = b.UnpackArray(); err != nil {
		return nil, err
	}
	if a.StepMemAlloc, err = b.Unpack64Array(); err != nil {
		return nil, err
	}
	if a.StepMemAllocRepCount, err = b.UnpackArray(); err != nil {
		return nil, err
	}

	if a.JobGres, err = unpackGresList(b); err != nil {
		return nil, err
	}
	if a.StepGres, err = unpackGresList(b); err != nil {
		return nil, err
	}

	for _, dst := range []*string{
		&a.Account, &a.Comment, &a.Constraints, &a.Licenses,
		&a.Reservation, &a.Partition, &a.Stdin, &a.Stdout, &a.Stderr,
	} {
		if *dst, err = b.UnpackStr(); err != nil {
			return nil, err
		}
	}

	if a.Alias, err = unpackStrSlice(b); err != nil {
		return nil, err
	}
	if a.NodeAddrs, err = unpackStrSlice(b); err != nil {
		return nil, err
	}

	return a, nil
}

func packBitmap(b *buffer.Buffer, bm *bitmap.Bitmap) {
	n := 0
	var words []uint64
	if bm != nil {
		n = bm.Len()
		words = bm.Words()
	}
	b.Pack32(uint32(n))
	b.Pack64Array(words)
}

func unpackBitmap(b *buffer.Buffer) (*bitmap.Bitmap, error) {
	n, err := b.Unpack32()
	if err != nil {
		return nil, err
	}
	words, err := b.Unpack64Array()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return bitmap.FromWords(words, int(n)), nil
}

func packGresList(b *buffer.Buffer, list []gres.GRES) {
	b.Pack32(uint32(len(list)))
	for _, g := range list {
		b.PackStr(g.Name)
		b.PackStr(g.Type)
		b.Pack64(g.Count)
	}
}

func unpackGresList(b *buffer.Buffer) ([]gres.GRES, error) {
	n, err := b.Unpack32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	list := make([]gres.GRES, 0, n)
	for i := uint32(0); i < n; i++ {
		var g gres.GRES
		if g.Name, err = b.UnpackStr(); err != nil {
			return nil, err
		}
		if g.Type, err = b.UnpackStr(); err != nil {
			return nil, err
		}
		if g.Count, err = b.Unpack64(); err != nil {
			return nil, err
		}
		list = append(list, g)
	}
	return list, nil
}

func packStrSlice(b *buffer.Buffer, vals []string) {
	b.Pack32(uint32(len(vals)))
	for _, s := range vals {
		b.PackStr(s)
	}
}

func unpackStrSlice(b *buffer.Buffer) ([]string, error) {
	n, err := b.Unpack32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	vals := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := b.UnpackStr()
		if err != nil {
			return nil, err
		}
		vals = append(vals, s)
	}
	return vals, nil
}

// Pack copies the credential's cached packed bytes into a fresh
// buffer, preserving byte-for-byte wire fidelity across sign->verify.
// It does not re-run the backend; proto must match the
// version the credential was created with.
func (c *JobCredential) Pack(proto versioning.ProtocolVersion) ([]byte, []byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.bufVersion != proto {
		return nil, nil, fmt.Errorf("cred: pack requested version %s but credential was signed with %s", proto, c.bufVersion)
	}
	out := make([]byte, len(c.buffer))
	copy(out, c.buffer)
	sig := make([]byte, len(c.signature))
	copy(sig, c.signature)
	return out, sig, nil
}

// Unpack reconstructs a JobCredential from its wire form and verifies
// the signature against ctx's backend, marking Verified on success.
func Unpack(ctx *Context, buf, signature []byte) (*JobCredential, error) {
	var baseLogger logging.Logger = logging.NoOpLogger{}
	var opID string
	if ctx != nil {
		baseLogger = ctx.logger
		opID = ctx.InstanceID()
	}
	opLogger := logging.LogOperation(baseLogger, "cred.Unpack", "op_id", opID)

	if ctx == nil {
		err := crederrors.ErrBackendUnavailable
		logging.LogError(opLogger, err, "cred.Unpack")
		return nil, err
	}

	backend := ctx.Backend()
	if backend == nil {
		err := crederrors.ErrBackendUnavailable
		logging.LogError(opLogger, err, "cred.Unpack")
		return nil, err
	}

	proto, ctime, args, err := unpackBody(buf)
	if err != nil {
		wrapped := crederrors.Wrap(crederrors.ErrorCodeDecodeError, "malformed packed credential", err)
		logging.LogError(opLogger, wrapped, "cred.Unpack")
		return nil, wrapped
	}

	verified := backend.Verify(buf, signature) == nil
	if verified {
		opLogger.Debug("credential signature verified on unpack", "job_id", args.Step.JobID)
	} else {
		opLogger.Warn("credential signature verification failed on unpack", "job_id", args.Step.JobID)
	}

	bufCopy := make([]byte, len(buf))
	copy(bufCopy, buf)
	sigCopy := make([]byte, len(signature))
	copy(sigCopy, signature)

	return &JobCredential{
		arg:        args,
		ctime:      ctime,
		verified:   verified,
		buffer:     bufCopy,
		bufVersion: proto,
		signature:  sigCopy,
		magic:      CredMagic,
		logger:     opLogger,
	}, nil
}
