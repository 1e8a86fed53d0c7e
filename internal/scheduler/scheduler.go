// Package scheduler governs every network-facing call of the verification
// engine. It owns the domain and probe caches, bounds concurrency per
// destination domain, retries transient failures with exponential backoff
// and trips a per-domain circuit breaker when a mail server stops
// cooperating.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/contactsift/contact-verifier/internal/adapters/dns"
	"github.com/contactsift/contact-verifier/internal/core"
	"github.com/contactsift/contact-verifier/internal/metrics"
)

// Config is the scheduler configuration. All knobs are surfaced in the
// configuration file; none of them silently changes behavior between runs.
type Config struct {
	// PerDomainConcurrency bounds simultaneous probe sessions per
	// destination domain, independent of global parallelism.
	PerDomainConcurrency int64
	// MaxRetries bounds re-probes of transient Unknown outcomes.
	MaxRetries int
	// InitialBackoff and MaxBackoff shape the retry schedule (with
	// jitter).
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// BreakerThreshold is the consecutive inconclusive-outcome count
	// that opens a domain's circuit for BreakerCooldown.
	BreakerThreshold int
	BreakerCooldown  time.Duration
	// CacheEnabled toggles the result caches; TTLs control how long
	// resolved domains and terminal probe results are reused.
	CacheEnabled bool
	DomainTTL    time.Duration
	ProbeTTL     time.Duration
	// UnknownTTL is the short TTL for inconclusive results, so
	// greylisting clears naturally without hammering the server.
	UnknownTTL time.Duration
}

// Validate rejects configurations that would misbehave at runtime.
func (c Config) Validate() error {
	if c.PerDomainConcurrency < 1 {
		return fmt.Errorf("scheduler: per_domain_concurrency must be at least 1, got %d", c.PerDomainConcurrency)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("scheduler: max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("scheduler: backoff window [%v, %v] is invalid", c.InitialBackoff, c.MaxBackoff)
	}
	if c.BreakerThreshold < 1 {
		return fmt.Errorf("scheduler: breaker_threshold must be at least 1, got %d", c.BreakerThreshold)
	}
	if c.CacheEnabled && (c.DomainTTL <= 0 || c.ProbeTTL <= 0 || c.UnknownTTL <= 0) {
		return fmt.Errorf("scheduler: cache TTLs must be positive")
	}
	return nil
}

// Scheduler implements core.ProbeScheduler.
type Scheduler struct {
	cfg      Config
	resolver core.DomainResolver
	prober   core.MailboxProber
	cache    core.CacheRepository
	metrics  *metrics.Metrics
	logger   *zap.Logger

	resolveGroup singleflight.Group
	probeGroup   singleflight.Group

	mu       sync.Mutex
	sems     map[string]*semaphore.Weighted
	breakers map[string]*breaker
}

// New creates a scheduler with a validated configuration.
func New(
	cfg Config,
	resolver core.DomainResolver,
	prober core.MailboxProber,
	cache core.CacheRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		cfg:      cfg,
		resolver: resolver,
		prober:   prober,
		cache:    cache,
		metrics:  m,
		logger:   logger,
		sems:     make(map[string]*semaphore.Weighted),
		breakers: make(map[string]*breaker),
	}, nil
}

// ResolveDomain resolves through the domain cache. Concurrent callers for
// the same organization share one resolution.
func (s *Scheduler) ResolveDomain(ctx context.Context, org core.Organization) (core.DomainRecord, error) {
	key := resolveKey(org)

	if s.cfg.CacheEnabled {
		if rec, hit := s.cachedDomain(ctx, org, key); hit {
			s.metrics.CacheHits.WithLabelValues("domain").Inc()
			return *rec, nil
		}
		s.metrics.CacheMisses.WithLabelValues("domain").Inc()
	}

	v, err, _ := s.resolveGroup.Do(key, func() (interface{}, error) {
		rec, err := s.resolver.Resolve(ctx, org)
		if err != nil {
			return core.DomainRecord{}, err
		}
		if s.cfg.CacheEnabled {
			s.cache.SetDomain(ctx, rec.Domain, rec, s.cfg.DomainTTL)
			// Organizations resolved without a usable hint, or whose hint
			// lost to a guessed domain, would otherwise miss on every
			// request; alias the resolution key to the same record.
			if key != "domain:"+rec.Domain {
				s.cache.SetDomain(ctx, key, rec, s.cfg.DomainTTL)
			}
		}
		return rec, nil
	})
	if err != nil {
		return core.DomainRecord{}, err
	}
	return v.(core.DomainRecord), nil
}

// Probe submits one candidate. The result is always terminal: cached, or
// freshly probed under the per-domain bound with retries exhausted, or
// synthesized Unknown when the domain's circuit is open or the request
// was cancelled. At most one probe per address is in flight at a time;
// concurrent callers for the same address await the shared result.
func (s *Scheduler) Probe(ctx context.Context, candidate core.CandidateEmail, rec core.DomainRecord) core.ProbeResult {
	address := candidate.Address

	if s.cfg.CacheEnabled {
		if res, hit := s.cache.GetProbe(ctx, address); hit {
			s.metrics.CacheHits.WithLabelValues("probe").Inc()
			return *res
		}
		s.metrics.CacheMisses.WithLabelValues("probe").Inc()
	}

	v, _, _ := s.probeGroup.Do(address, func() (interface{}, error) {
		return s.probeWithPolicy(ctx, address, rec), nil
	})
	return v.(core.ProbeResult)
}

// probeWithPolicy applies breaker, concurrency bound and retry policy
// around the raw prober.
func (s *Scheduler) probeWithPolicy(ctx context.Context, address string, rec core.DomainRecord) core.ProbeResult {
	now := time.Now()
	br := s.breakerFor(rec.Domain)
	if !br.Allow(now) {
		s.metrics.BreakerShorted.Inc()
		return core.ProbeResult{
			Address:  address,
			Outcome:  core.OutcomeUnknown,
			Message:  "probing suspended for domain",
			ProbedAt: now,
		}
	}

	sem := s.semFor(rec.Domain)
	if err := sem.Acquire(ctx, 1); err != nil {
		return core.ProbeResult{
			Address:  address,
			Outcome:  core.OutcomeUnknown,
			Message:  "cancelled before probe: " + err.Error(),
			ProbedAt: time.Now(),
		}
	}
	defer sem.Release(1)

	s.metrics.InFlightProbes.Inc()
	defer s.metrics.InFlightProbes.Dec()

	start := time.Now()
	res := s.probeWithRetry(ctx, address, rec)
	s.metrics.ProbeDuration.Observe(time.Since(start).Seconds())
	s.metrics.ProbeOutcomes.WithLabelValues(res.Outcome.String()).Inc()

	switch res.Outcome {
	case core.OutcomeAccepted, core.OutcomeRejected:
		br.RecordSuccess()
		if s.cfg.CacheEnabled {
			s.cache.SetProbe(ctx, res, s.cfg.ProbeTTL)
		}
	default:
		if br.RecordFailure(time.Now()) {
			s.metrics.BreakerOpens.Inc()
			s.logger.Warn("Circuit opened for domain",
				zap.String("domain", rec.Domain),
				zap.Duration("cooldown", s.cfg.BreakerCooldown))
		}
		// Cancellation is a caller-side condition; only genuine server
		// behavior goes into the cache.
		if s.cfg.CacheEnabled && ctx.Err() == nil {
			s.cache.SetProbe(ctx, res, s.cfg.UnknownTTL)
		}
	}

	return res
}

// probeWithRetry is the retry state machine: attempt counter plus a
// next-eligible time from the jittered exponential schedule, composed
// with cancellation instead of nested blocking loops.
func (s *Scheduler) probeWithRetry(ctx context.Context, address string, rec core.DomainRecord) core.ProbeResult {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.InitialBackoff
	bo.MaxInterval = s.cfg.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	var res core.ProbeResult
	for attempt := 0; ; attempt++ {
		res = s.prober.Probe(ctx, address, rec)

		// Only transient Unknown is worth another attempt. Rejection is
		// final and DomainUnreachable is the breaker's business.
		if res.Outcome != core.OutcomeUnknown || attempt >= s.cfg.MaxRetries || ctx.Err() != nil {
			return res
		}

		s.metrics.ProbeRetries.Inc()
		s.logger.Debug("Retrying probe after transient failure",
			zap.String("address", address),
			zap.Int("attempt", attempt+1),
			zap.Int("code", res.Code))

		select {
		case <-ctx.Done():
			return res
		case <-time.After(bo.NextBackOff()):
		}
	}
}

// cachedDomain looks up the hinted domain first, then falls back to the
// resolution key, which covers organizations without a usable hint.
func (s *Scheduler) cachedDomain(ctx context.Context, org core.Organization, key string) (*core.DomainRecord, bool) {
	if hint, ok := dns.NormalizeDomain(org.ClaimedDomain); ok {
		if rec, hit := s.cache.GetDomain(ctx, hint); hit {
			return rec, true
		}
	}
	return s.cache.GetDomain(ctx, key)
}

func (s *Scheduler) semFor(domain string) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.sems[domain]
	if !ok {
		sem = semaphore.NewWeighted(s.cfg.PerDomainConcurrency)
		s.sems[domain] = sem
	}
	return sem
}

func (s *Scheduler) breakerFor(domain string) *breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	br, ok := s.breakers[domain]
	if !ok {
		br = newBreaker(s.cfg.BreakerThreshold, s.cfg.BreakerCooldown)
		s.breakers[domain] = br
	}
	return br
}

// resolveKey dedups concurrent resolutions: by hinted domain when present,
// otherwise by organization name.
func resolveKey(org core.Organization) string {
	if hint, ok := dns.NormalizeDomain(org.ClaimedDomain); ok {
		return "domain:" + hint
	}
	return "org:" + strings.ToLower(strings.TrimSpace(org.Name))
}
