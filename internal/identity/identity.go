// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package identity resolves the extended identity (primary name,
// supplementary gid list, home, shell) a job or broadcast credential
// may carry when NSS-style enrichment is enabled (the
// enable_nss_slurm flag). No pack example wires an actual NSS client, so
// this is backed by the standard library's os/user database --
// justified in DESIGN.md.
package identity

import (
	"fmt"
	"os/user"
	"strconv"
	"sync"
)

// Identity is the enriched principal carried inside JobCredArgs/
// BroadcastCred when identity enrichment is enabled.
type Identity struct {
	UID   uint32
	GID   uint32
	Name  string
	Gids  []uint32
	Home  string
	Shell string
}

// Fetch resolves the extended identity for uid/gid. It takes no
// enable_nss_slurm switch: callers decide whether to enrich, and Fetch
// itself always performs the full lookup.
func Fetch(uid, gid uint32) (*Identity, error) {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return nil, fmt.Errorf("identity: lookup uid %d: %w", uid, err)
	}

	gids, err := defaultGidCache.Gids(u)
	if err != nil {
		return nil, fmt.Errorf("identity: lookup supplementary gids for %s: %w", u.Username, err)
	}

	return &Identity{
		UID:   uid,
		GID:   gid,
		Name:  u.Username,
		Gids:  gids,
		Home:  u.HomeDir,
		Shell: "", // best-effort: os/user carries no shell field on most platforms
	}, nil
}

// GidCache caches a user's supplementary gid list, avoiding a repeat
// group-database scan for every credential create/broadcast create
// within a process lifetime.
type GidCache struct {
	mu    sync.Mutex
	byUID map[string][]uint32
}

// NewGidCache returns an empty cache.
func NewGidCache() *GidCache {
	return &GidCache{byUID: make(map[string][]uint32)}
}

var defaultGidCache = NewGidCache()

// Gids returns u's supplementary group ids, resolving and caching them
// on first use.
func (c *GidCache) Gids(u *user.User) ([]uint32, error) {
	c.mu.Lock()
	if gids, ok := c.byUID[u.Uid]; ok {
		c.mu.Unlock()
		return gids, nil
	}
	c.mu.Unlock()

	groupIDs, err := u.GroupIds()
	if err != nil {
		return nil, err
	}

	gids := make([]uint32, 0, len(groupIDs))
	for _, gidStr := range groupIDs {
		gid, err := strconv.ParseUint(gidStr, 10, 32)
		if err != nil {
			continue
		}
		gids = append(gids, uint32(gid))
	}

	c.mu.Lock()
	c.byUID[u.Uid] = gids
	c.mu.Unlock()
	return gids, nil
}
