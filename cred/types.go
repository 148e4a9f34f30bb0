// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package cred implements the credential subsystem: job credentials
// binding a user and an allocation shape to a set of nodes, broadcast
// credentials authorizing file-broadcast sessions, and the projector
// that localizes a job's allocation onto one node.
package cred

import (
	"sync"
	"time"

	"github.com/jontk/slurm-cred/internal/bitmap"
	"github.com/jontk/slurm-cred/internal/gres"
	"github.com/jontk/slurm-cred/internal/identity"
	"github.com/jontk/slurm-cred/internal/versioning"
	"github.com/jontk/slurm-cred/pkg/logging"
)

// CredMagic is the sentinel stamped into a freshly created credential.
// Destroy replaces it with its bitwise complement, the standard
// use-after-free tripwire for debug builds.
const CredMagic uint32 = 0x43524544 // "CRED"

// NobodyID is SLURM_AUTH_NOBODY: the sentinel uid/gid value denoting
// an unresolved principal. Create rejects it unconditionally.
const NobodyID uint32 = 0xFFFFFFFF

// BatchScript is the step-id sentinel marking a job's batch script
// step. A batch step's memory projection always uses rep index 0
// regardless of the node queried.
const BatchScript uint32 = 0xFFFFFFFE

// StepID identifies one step within a job, or within a heterogeneous
// job component.
type StepID struct {
	JobID    uint32
	HetJobID uint32
	StepID   uint32
}

// IsBatchScript reports whether this step identifies a job's batch
// script step.
func (s StepID) IsBatchScript() bool {
	return s.StepID == BatchScript
}

// JobCredArgs is the authorization payload a controller assembles and
// hands to Create.
type JobCredArgs struct {
	UID, GID uint32
	Identity *identity.Identity

	Step StepID

	JobHostlist  string
	StepHostlist string
	JobNHosts    uint32

	SocketsPerNode   []uint32
	CoresPerSocket   []uint32
	SockCoreRepCount []uint32

	JobCoreBitmap  *bitmap.Bitmap
	StepCoreBitmap *bitmap.Bitmap

	JobMemAlloc          []uint64
	JobMemAllocRepCount  []uint32
	StepMemAlloc         []uint64
	StepMemAllocRepCount []uint32

	JobGres  []gres.GRES
	StepGres []gres.GRES

	Account     string
	Comment     string
	Constraints string
	Licenses    string
	Reservation string
	Partition   string
	Stdin       string
	Stdout      string
	Stderr      string
	Alias       []string
	NodeAddrs   []string
}

// CoreArraySize returns the effective array size: for the smallest k
// such that the cumulative sum of SockCoreRepCount[0..k] (inclusive)
// covers JobNHosts, it reports k+1. If no prefix covers JobNHosts it
// reports len(SockCoreRepCount).
func (a *JobCredArgs) CoreArraySize() int {
	var cum uint32
	for i, c := range a.SockCoreRepCount {
		cum += c
		if cum >= a.JobNHosts {
			return i + 1
		}
	}
	return len(a.SockCoreRepCount)
}

// JobCredential wraps a signed JobCredArgs plus the bookkeeping fields
// the lifecycle needs. The zero value is not
// usable; construct via Create or Unpack.
type JobCredential struct {
	mu sync.RWMutex

	arg      *JobCredArgs
	ctime    time.Time
	verified bool

	buffer     []byte
	bufVersion versioning.ProtocolVersion
	signature  []byte

	magic uint32

	// logger carries the op_id-correlated logger captured at
	// construction time (Create or Unpack), so Destroy can still log
	// without a *Context argument.
	logger logging.Logger
}

// BroadcastCred authorizes one file-broadcast session. Unlike
// JobCredential it carries no lock: it is
// used only transiently on receipt, never mutated concurrently.
type BroadcastCred struct {
	CTime      time.Time
	Expiration time.Time

	JobID    uint32
	HetJobID uint32
	StepID   uint32

	UID      uint32
	GID      uint32
	UserName string
	Gids     []uint32

	Nodes string

	Signature []byte
	Verified  bool
}

// SbcastCacheEntry is one anti-replay cache record: an expiration
// bound and a weak hash of the signature it was seeded from.
type SbcastCacheEntry struct {
	Expire time.Time
	Hash   uint32
}

// ExtractFlags mirrors the flag byte passed to ExtractBroadcast.
type ExtractFlags uint32

const (
	// FlagSharedObject marks a broadcast whose blocks are fanned out
	// to many recipients sharing one credential; every block (not
	// just block 1) is treated as eligible for a cache-only lookup.
	FlagSharedObject ExtractFlags = 1 << 0
)
