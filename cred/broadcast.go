// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package cred

import (
	"fmt"
	"time"

	"github.com/jontk/slurm-cred/internal/buffer"
	"github.com/jontk/slurm-cred/internal/identity"
	crederrors "github.com/jontk/slurm-cred/pkg/errors"
	"github.com/jontk/slurm-cred/pkg/logging"
	"github.com/mohae/deepcopy"
)

// BroadcastArgs is the input to CreateBroadcast: everything needed to
// authorize one file-broadcast session.
type BroadcastArgs struct {
	JobID      uint32
	HetJobID   uint32
	StepID     uint32
	UID        uint32
	GID        uint32
	UserName   string
	Gids       []uint32
	Nodes      string
	Expiration time.Time
}

// BroadcastExtractArgs is the deep-copied argument bundle ExtractBroadcast
// hands back to the caller once a broadcast credential has cleared
// freshness and anti-replay checks.
type BroadcastExtractArgs struct {
	JobID    uint32
	HetJobID uint32
	StepID   uint32
	UID      uint32
	GID      uint32
	UserName string
	Gids     []uint32
	Nodes    string
}

// CreateBroadcast signs a new BroadcastCred. When
// identity enrichment is enabled and the caller supplied no gids, the
// supplementary gid list is resolved through the identity package's
// gid cache.
func CreateBroadcast(ctx *Context, a BroadcastArgs) (*BroadcastCred, error) {
	opLogger := logging.LogOperation(ctx.logger, "cred.CreateBroadcast", "op_id", ctx.InstanceID())

	if a.UID == NobodyID || a.GID == NobodyID {
		logging.LogError(opLogger, crederrors.ErrInvalidPrincipal, "cred.CreateBroadcast")
		return nil, crederrors.ErrInvalidPrincipal
	}

	backend := ctx.Backend()
	if backend == nil {
		logging.LogError(opLogger, crederrors.ErrBackendUnavailable, "cred.CreateBroadcast")
		return nil, crederrors.ErrBackendUnavailable
	}

	gids := a.Gids
	if ctx.EnableNSSSlurm() && len(gids) == 0 {
		id, err := identity.Fetch(a.UID, a.GID)
		if err != nil {
			wrapped := crederrors.Wrap(crederrors.ErrorCodeIdentityLookupFailed, "identity enrichment failed", err)
			logging.LogError(opLogger, wrapped, "cred.CreateBroadcast")
			return nil, wrapped
		}
		gids = id.Gids
	}

	ctime := time.Now()
	body := packSbcastBody(ctime, a.Expiration, a.JobID, a.HetJobID, a.StepID, a.UID, a.GID, a.UserName, gids, a.Nodes)

	sig, err := backend.Sign(body)
	if err != nil {
		wrapped := fmt.Errorf("cred: sign broadcast credential: %w", err)
		logging.LogError(opLogger, wrapped, "cred.CreateBroadcast")
		return nil, wrapped
	}

	opLogger.Debug("broadcast credential created", "job_id", a.JobID, "uid", a.UID, "nodes", a.Nodes)

	return &BroadcastCred{
		CTime:      ctime,
		Expiration: a.Expiration,
		JobID:      a.JobID,
		HetJobID:   a.HetJobID,
		StepID:     a.StepID,
		UID:        a.UID,
		GID:        a.GID,
		UserName:   a.UserName,
		Gids:       gids,
		Nodes:      a.Nodes,
		Signature:  sig,
		Verified:   false,
	}, nil
}

// PackBroadcast packs cred's body and appends the signature, mirroring
// the "sign the body, not the signature" split used for job credentials.
func PackBroadcast(cred *BroadcastCred) []byte {
	body := packSbcastBody(cred.CTime, cred.Expiration, cred.JobID, cred.HetJobID, cred.StepID,
		cred.UID, cred.GID, cred.UserName, cred.Gids, cred.Nodes)

	out := buffer.New(len(body) + len(cred.Signature) + 8)
	out.PackStr(string(body))
	out.PackStr(string(cred.Signature))
	return out.Bytes()
}

// UnpackBroadcast reverses PackBroadcast and hands the recovered body
// bytes to backend.Verify, setting Verified on success.
func UnpackBroadcast(backend Backend, buf []byte) (*BroadcastCred, error) {
	if backend == nil {
		return nil, crederrors.ErrBackendUnavailable
	}

	b := buffer.FromBytes(buf)
	bodyStr, err := b.UnpackStr()
	if err != nil {
		return nil, crederrors.Wrap(crederrors.ErrorCodeDecodeError, "malformed broadcast credential body", err)
	}
	sigStr, err := b.UnpackStr()
	if err != nil {
		return nil, crederrors.Wrap(crederrors.ErrorCodeDecodeError, "malformed broadcast credential signature", err)
	}
	body := []byte(bodyStr)
	signature := []byte(sigStr)

	cred, err := unpackSbcastBody(body)
	if err != nil {
		return nil, crederrors.Wrap(crederrors.ErrorCodeDecodeError, "malformed broadcast credential", err)
	}
	cred.Signature = signature
	cred.Verified = backend.Verify(body, signature) == nil
	return cred, nil
}

// ExtractBroadcast admits one block of a broadcast session. Block 1
// of a non-shared-object broadcast must be
// freshly verified and seeds the anti-replay cache; every other block
// is admitted on an exact (expiration, signature-hash) cache match.
func ExtractBroadcast(ctx *Context, cred *BroadcastCred, blockNo uint32, flags ExtractFlags) (*BroadcastExtractArgs, error) {
	opLogger := logging.LogOperation(ctx.logger, "cred.ExtractBroadcast", "op_id", ctx.InstanceID())

	now := time.Now()
	if now.After(cred.Expiration) {
		ctx.metrics.RecordBroadcastExtract(false)
		logging.LogError(opLogger, crederrors.ErrCredentialExpired, "cred.ExtractBroadcast", "job_id", cred.JobID, "block", blockNo)
		return nil, crederrors.ErrCredentialExpired
	}

	seedRequired := blockNo == 1 && flags&FlagSharedObject == 0
	if seedRequired {
		if !cred.Verified {
			ctx.metrics.RecordBroadcastExtract(false)
			logging.LogError(opLogger, crederrors.ErrInvalidCredential, "cred.ExtractBroadcast", "job_id", cred.JobID, "block", blockNo)
			return nil, crederrors.ErrInvalidCredential
		}
		ctx.cacheInsert(cred.Expiration, sigHash(cred.Signature))
		opLogger.Debug("broadcast cache seeded", "job_id", cred.JobID, "block", blockNo)
	} else {
		if !ctx.cacheLookup(cred.Expiration, sigHash(cred.Signature)) {
			ctx.metrics.RecordReplayRejected()
			ctx.metrics.RecordBroadcastExtract(false)
			logging.LogError(opLogger, crederrors.ErrReplayRejected, "cred.ExtractBroadcast", "job_id", cred.JobID, "block", blockNo)
			return nil, crederrors.ErrReplayRejected
		}
	}

	if cred.UID == NobodyID || cred.GID == NobodyID {
		ctx.metrics.RecordBroadcastExtract(false)
		logging.LogError(opLogger, crederrors.ErrInvalidPrincipal, "cred.ExtractBroadcast", "job_id", cred.JobID, "block", blockNo)
		return nil, crederrors.ErrInvalidPrincipal
	}

	raw := &BroadcastExtractArgs{
		JobID: cred.JobID, HetJobID: cred.HetJobID, StepID: cred.StepID,
		UID: cred.UID, GID: cred.GID, UserName: cred.UserName,
		Gids: cred.Gids, Nodes: cred.Nodes,
	}
	copied := deepcopy.Copy(raw).(*BroadcastExtractArgs)

	ctx.metrics.RecordBroadcastExtract(true)
	opLogger.Debug("broadcast block extracted", "job_id", cred.JobID, "block", blockNo)
	return copied, nil
}

// sigHash is the weak 32-bit digest used as a cache key: the sum of the
// signature's 16-bit big-endian pairs, taken mod 2^32 by unsigned
// wraparound. Its only role is cache keying; cache admission also
// requires an exact expiration match and the clock bound, so the
// digest's weakness is not a security boundary by itself.
func sigHash(sig []byte) uint32 {
	var sum uint32
	i := 0
	for ; i+1 < len(sig); i += 2 {
		sum += uint32(sig[i])<<8 | uint32(sig[i+1])
	}
	if i < len(sig) {
		sum += uint32(sig[i]) << 8
	}
	return sum
}

func packSbcastBody(ctime, expiration time.Time, jobID, hetJobID, stepID, uid, gid uint32, userName string, gids []uint32, nodes string) []byte {
	b := buffer.New(128)
	b.PackTime(ctime)
	b.PackTime(expiration)
	b.Pack32(jobID)
	b.Pack32(hetJobID)
	b.Pack32(stepID)
	b.Pack32(uid)
	b.Pack32(gid)
	b.PackStr(userName)
	b.PackArray(gids)
	b.PackStr(nodes)
	return b.Bytes()
}

func unpackSbcastBody(buf []byte) (*BroadcastCred, error) {
	b := buffer.FromBytes(buf)
	cred := &BroadcastCred{}

	var err error
	if cred.CTime, err = b.UnpackTime(); err != nil {
		return nil, err
	}
	if cred.Expiration, err = b.UnpackTime(); err != nil {
		return nil, err
	}
	if cred.JobID, err = b.Unpack32(); err != nil {
		return nil, err
	}
	if cred.HetJobID, err = b.Unpack32(); err != nil {
		return nil, err
	}
	if cred.StepID, err = b.Unpack32(); err != nil {
		return nil, err
	}
	if cred.UID, err = b.Unpack32(); err != nil {
		return nil, err
	}
	if cred.GID, err = b.Unpack32(); err != nil {
		return nil, err
	}
	if cred.UserName, err = b.UnpackStr(); err != nil {
		return nil, err
	}
	if cred.Gids, err = b.UnpackArray(); err != nil {
		return nil, err
	}
	if cred.Nodes, err = b.UnpackStr(); err != nil {
		return nil, err
	}
	return cred, nil
}

// cacheInsert appends a new anti-replay cache record.
func (c *Context) cacheInsert(expire time.Time, hash uint32) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache = append(c.cache, SbcastCacheEntry{Expire: expire, Hash: hash})
	c.logger.Debug("anti-replay cache entry inserted", "op_id", c.instanceID, "expire", expire, "size", len(c.cache))
}

// cacheLookup scans for a record matching (expire, hash), purging any
// entry whose expiration has passed along the way.
func (c *Context) cacheLookup(expire time.Time, hash uint32) bool {
	now := time.Now()

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	found := false
	purged := 0
	kept := c.cache[:0]
	for _, e := range c.cache {
		if now.After(e.Expire) {
			purged++
			continue
		}
		if !found && e.Expire.Equal(expire) && e.Hash == hash {
			found = true
		}
		kept = append(kept, e)
	}
	c.cache = kept

	if purged > 0 {
		c.metrics.RecordCachePurge(purged)
		c.logger.Debug("anti-replay cache purged expired entries", "op_id", c.instanceID, "purged", purged)
	}
	if found {
		c.metrics.RecordCacheHit()
		c.logger.Debug("anti-replay cache hit", "op_id", c.instanceID, "expire", expire)
	} else {
		c.metrics.RecordCacheMiss()
		c.logger.Warn("anti-replay cache miss", "op_id", c.instanceID, "expire", expire)
	}
	return found
}
