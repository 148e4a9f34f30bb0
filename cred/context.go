// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package cred

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jontk/slurm-cred/pkg/config"
	crederrors "github.com/jontk/slurm-cred/pkg/errors"
	"github.com/jontk/slurm-cred/pkg/logging"
	"github.com/jontk/slurm-cred/pkg/metrics"
)

// Context is the credential subsystem's process-wide state: the active
// signing backend, the configured expiration window and feature flags, the restart
// timestamp, and the shared anti-replay cache. Rather than package
// globals, it is an explicit value callers construct and thread
// through every API, so multiple independent credential contexts
// (e.g. one per test) never share state.
type Context struct {
	mu         sync.Mutex
	backend    Backend
	instanceID string

	credRestartTime time.Time
	credExpire      time.Duration
	enableNSSSlurm  bool
	sendGIDs        bool

	cacheMu sync.Mutex
	cache   []SbcastCacheEntry

	logger  logging.Logger
	metrics metrics.Collector
}

// NewContext returns an uninitialized Context. Init must be called
// before Create, Verify or any broadcast operation. instanceID is
// generated once per Context and attached to every log line emitted
// through it, so log lines from concurrently running contexts (e.g.
// parallel tests) don't interleave into one unattributed stream.
func NewContext() *Context {
	return &Context{
		instanceID: uuid.New().String(),
		logger:     logging.NoOpLogger{},
		metrics:    metrics.GetDefaultCollector(),
	}
}

// SetLogger overrides the context's logger.
func (c *Context) SetLogger(l logging.Logger) {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	c.logger = l
}

// SetMetrics overrides the context's metrics collector.
func (c *Context) SetMetrics(m metrics.Collector) {
	if m == nil {
		m = metrics.NoOpCollector{}
	}
	c.metrics = m
}

// Init loads backend and parses authInfo/launchParams into the
// context's configuration. Repeated calls are idempotent under
// the context's mutex: once a backend is loaded, subsequent Init
// calls are no-ops.
func (c *Context) Init(backend Backend, authInfo, launchParams string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backend != nil {
		return nil
	}
	if backend == nil {
		return crederrors.ErrBackendUnavailable
	}

	cfg := config.NewDefault()
	cfg.Load(authInfo, launchParams)
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.backend = backend
	c.credExpire = cfg.CredExpire
	c.enableNSSSlurm = cfg.EnableNSSSlurm
	c.sendGIDs = cfg.SendGIDs
	if c.credRestartTime.IsZero() {
		c.credRestartTime = time.Now()
	}

	c.logger.Info("credential context initialized",
		"instance_id", c.instanceID,
		"backend", backend.Name(),
		"cred_expire", c.credExpire.String(),
		"enable_nss_slurm", c.enableNSSSlurm,
	)
	return nil
}

// Fini tears down the context: frees the anti-replay cache and drops
// the backend handle.
func (c *Context) Fini() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cacheMu.Lock()
	c.cache = nil
	c.cacheMu.Unlock()

	c.backend = nil
}

// Backend returns the active signing backend, or nil if Init has not
// been called.
func (c *Context) Backend() Backend {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend
}

// InstanceID returns the context's generated correlation ID, stable
// for the lifetime of the Context.
func (c *Context) InstanceID() string {
	return c.instanceID
}

// CredExpire returns the configured job-credential freshness window.
func (c *Context) CredExpire() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.credExpire
}

// RestartTime returns the timestamp this context was first
// initialized, used as a lower bound on acceptable credential age by
// callers that want to reject credentials signed before a controller
// restart.
func (c *Context) RestartTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.credRestartTime
}

// EnableNSSSlurm reports whether identity enrichment is on: Create
// enriches args whose Identity is nil, and CreateBroadcast resolves
// gids when the caller supplied none.
func (c *Context) EnableNSSSlurm() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enableNSSSlurm
}

// SendGIDs reports the parsed disable_send_gids setting (true unless
// the flag was given). Create and CreateBroadcast do not read it:
// enriched identities always carry supplementary gids.
func (c *Context) SendGIDs() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendGIDs
}
