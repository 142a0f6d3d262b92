// Package health implements the gateway's health checker (component C4):
// two concurrent periodic loops over the provider set — an active probe
// loop and a recovery sweep — each a ticker + ctx.Done() select loop
// running in its own detached goroutine.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/berrygate/loadbalance/backendclient"
	"github.com/berrygate/loadbalance/gatewaytypes"
	"github.com/berrygate/loadbalance/metrics"
)

// target is one (provider, upstream_model) pair the checker tracks,
// carrying whatever billing mode governs probing for it.
type target struct {
	key         gatewaytypes.BackendKey
	provider    gatewaytypes.Provider
	billingMode gatewaytypes.BillingMode
}

// Config bounds the checker's timers and probe timeout.
type Config struct {
	HealthCheckInterval   time.Duration
	RecoveryCheckInterval time.Duration
	ProbeTimeout          time.Duration
}

// DefaultConfig returns the documented default timers.
func DefaultConfig() Config {
	return Config{
		HealthCheckInterval:   30 * time.Second,
		RecoveryCheckInterval: 120 * time.Second,
		ProbeTimeout:          10 * time.Second,
	}
}

// Checker runs the periodic probe loop and the recovery sweep.
type Checker struct {
	cfg     Config
	store   *metrics.Store
	clients *backendclient.Registry
	logger  *zap.Logger

	targets  []target
	tokenFor func(providerID string) string

	initialDone atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Checker over the resolved target list. tokenFor supplies
// the API key to use for a given provider id when probing.
func New(models []gatewaytypes.Model, providers map[string]gatewaytypes.Provider, store *metrics.Store, clients *backendclient.Registry, cfg Config, tokenFor func(string) string, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		cfg:      cfg,
		store:    store,
		clients:  clients,
		logger:   logger.With(zap.String("component", "health")),
		targets:  deriveTargets(models, providers),
		tokenFor: tokenFor,
	}
}

// deriveTargets classifies each (provider, upstream_model) combination
// referenced by an enabled backend by the billing mode of the first
// backend that references it.
func deriveTargets(models []gatewaytypes.Model, providers map[string]gatewaytypes.Provider) []target {
	seen := make(map[gatewaytypes.BackendKey]bool)
	var targets []target
	for _, m := range models {
		for _, b := range m.Backends {
			prov, ok := providers[b.ProviderID]
			if !ok || !prov.Enabled || !b.Enabled {
				continue
			}
			key := b.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			targets = append(targets, target{key: key, provider: prov, billingMode: b.BillingMode})
		}
	}
	return targets
}

// Start launches the two background loops. Stop observes the shared
// context cancellation rather than a polled boolean.
func (c *Checker) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(2)
	go c.runProbeLoop(loopCtx)
	go c.runRecoveryLoop(loopCtx)
}

// Stop cancels both loops and waits for them to exit their current tick.
func (c *Checker) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// InitialDone reports whether the first probe pass has completed.
func (c *Checker) InitialDone() bool { return c.initialDone.Load() }

func (c *Checker) runProbeLoop(ctx context.Context) {
	defer c.wg.Done()
	c.runProbePass(ctx)
	c.initialDone.Store(true)

	ticker := time.NewTicker(c.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runProbePass(ctx)
		}
	}
}

func (c *Checker) runProbePass(ctx context.Context) {
	initial := !c.initialDone.Load()
	for _, tgt := range c.targets {
		c.probeOne(ctx, tgt, initial)
	}
}

// probeOne applies the per-target probe rules: per-token backends get an
// active probe every pass; per-request backends are never actively probed
// and are only marked healthy once, on the initial pass.
func (c *Checker) probeOne(ctx context.Context, tgt target, initial bool) {
	if tgt.billingMode == gatewaytypes.BillingPerRequest {
		if initial {
			c.store.RecordSuccess(tgt.key)
		}
		return
	}

	client, err := c.clients.MustGet(tgt.provider.ID)
	if err != nil {
		c.logger.Warn("no client registered for provider", zap.String("provider", tgt.provider.ID))
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	start := time.Now()
	probeErr := client.HealthCheck(probeCtx, c.tokenForProvider(tgt.provider.ID))
	latency := time.Since(start)

	if probeErr != nil {
		c.store.RecordFailure(tgt.key, gatewaytypes.FailureCheckModelList)
		return
	}

	if initial {
		c.store.RecordSuccess(tgt.key)
		c.store.RecordLatency(tgt.key, latency)
		return
	}
	// Routine pass: a success only refreshes latency, never promotes an
	// unhealthy backend back to healthy.
	c.store.RecordProbe(tgt.key, latency)
}

func (c *Checker) tokenForProvider(providerID string) string {
	if c.tokenFor == nil {
		return ""
	}
	return c.tokenFor(providerID)
}

func (c *Checker) runRecoveryLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.RecoveryCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runRecoverySweep(ctx)
		}
	}
}

func (c *Checker) targetFor(key gatewaytypes.BackendKey) (target, bool) {
	for _, t := range c.targets {
		if t.key == key {
			return t, true
		}
	}
	return target{}, false
}

// runRecoverySweep walks the unhealthy registry and probes every entry due
// for another recovery attempt, dispatching by (failure_check_method,
// billing_mode).
func (c *Checker) runRecoverySweep(ctx context.Context) {
	for _, ub := range c.store.UnhealthyBackends() {
		if !c.store.NeedsRecoveryCheck(ub.Key, c.cfg.RecoveryCheckInterval) {
			continue
		}
		tgt, ok := c.targetFor(ub.Key)
		if !ok {
			continue
		}
		c.store.RecordRecoveryAttempt(ub.Key)

		if tgt.billingMode == gatewaytypes.BillingPerRequest {
			// Passive recovery is the only path; bumping the attempt
			// timestamp just reschedules the next consideration.
			continue
		}

		client, err := c.clients.MustGet(tgt.provider.ID)
		if err != nil {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
		token := c.tokenForProvider(tgt.provider.ID)

		switch ub.Entry.FailureCheckMethod {
		case gatewaytypes.FailureCheckChat:
			err := c.recoveryChatProbe(probeCtx, client, token)
			if err == nil {
				c.store.RecordSuccess(ub.Key)
			}
			// On failure, leave state unchanged; the attempt counter is
			// already bumped above.
		default: // ModelList or Network
			if err := client.Models(probeCtx, token); err == nil {
				c.store.RecordSuccess(ub.Key)
			} else {
				c.store.RecordFailure(ub.Key, gatewaytypes.FailureCheckModelList)
			}
		}
		cancel()
	}
}

// recoveryChatProbe sends the minimal chat recovery probe:
// {role:"user", content:"Hello"}, max_tokens:1, stream:false. The
// body is OpenAI-wire-shaped since dialect translation is out of scope;
// the core only cares whether the call succeeds.
func (c *Checker) recoveryChatProbe(ctx context.Context, client backendclient.Client, token string) error {
	body := []byte(`{"messages":[{"role":"user","content":"Hello"}],"max_tokens":1,"stream":false}`)
	headers := client.BuildRequestHeaders(token, "application/json")
	_, status, err := client.ChatCompletionsRaw(ctx, headers, body)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return fmt.Errorf("recovery chat probe: status %d", status)
	}
	return nil
}
