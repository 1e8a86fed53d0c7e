package scheduler_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/contactsift/contact-verifier/internal/adapters/cache"
	"github.com/contactsift/contact-verifier/internal/core"
	"github.com/contactsift/contact-verifier/internal/metrics"
	"github.com/contactsift/contact-verifier/internal/scheduler"
)

// countingResolver serves a fixed record and counts invocations.
type countingResolver struct {
	rec   core.DomainRecord
	err   error
	delay time.Duration
	calls atomic.Int64
}

func (r *countingResolver) Resolve(_ context.Context, _ core.Organization) (core.DomainRecord, error) {
	r.calls.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return core.DomainRecord{}, r.err
	}
	return r.rec, nil
}

// scriptedProber answers probes from a per-address outcome script; once a
// script is exhausted its last outcome repeats.
type scriptedProber struct {
	mu      sync.Mutex
	scripts map[string][]core.ProbeOutcome
	calls   atomic.Int64

	// concurrency tracking
	inFlight atomic.Int64
	peak     atomic.Int64
	hold     time.Duration
}

func (p *scriptedProber) Probe(_ context.Context, address string, _ core.DomainRecord) core.ProbeResult {
	p.calls.Add(1)

	cur := p.inFlight.Add(1)
	for {
		old := p.peak.Load()
		if cur <= old || p.peak.CompareAndSwap(old, cur) {
			break
		}
	}
	if p.hold > 0 {
		time.Sleep(p.hold)
	}
	p.inFlight.Add(-1)

	p.mu.Lock()
	defer p.mu.Unlock()
	script := p.scripts[address]
	outcome := core.OutcomeUnknown
	if len(script) > 0 {
		outcome = script[0]
		if len(script) > 1 {
			p.scripts[address] = script[1:]
		}
	}
	return core.ProbeResult{Address: address, Outcome: outcome, ProbedAt: time.Now()}
}

func record() core.DomainRecord {
	return core.DomainRecord{
		Domain:    "example.com",
		MailHosts: []core.MailHost{{Host: "mx.example.com", Pref: 10}},
		CatchAll:  core.CatchAllNo,
	}
}

func baseConfig() scheduler.Config {
	return scheduler.Config{
		PerDomainConcurrency: 4,
		MaxRetries:           0,
		InitialBackoff:       time.Millisecond,
		MaxBackoff:           5 * time.Millisecond,
		BreakerThreshold:     100,
		BreakerCooldown:      time.Minute,
		CacheEnabled:         false,
		DomainTTL:            time.Hour,
		ProbeTTL:             time.Hour,
		UnknownTTL:           time.Minute,
	}
}

func newScheduler(t *testing.T, cfg scheduler.Config, resolver core.DomainResolver, p core.MailboxProber, repo core.CacheRepository) *scheduler.Scheduler {
	t.Helper()
	m := metrics.NewWith(prometheus.NewRegistry())
	s, err := scheduler.New(cfg, resolver, p, repo, m, zap.NewNop())
	require.NoError(t, err)
	return s
}

func newMemoryCache(t *testing.T) *cache.MemoryCache {
	t.Helper()
	c := cache.NewMemoryCache(zap.NewNop(), time.Hour)
	t.Cleanup(c.Stop)
	return c
}

func TestResolveDomainCaches(t *testing.T) {
	resolver := &countingResolver{rec: record()}
	cfg := baseConfig()
	cfg.CacheEnabled = true
	s := newScheduler(t, cfg, resolver, &scriptedProber{}, newMemoryCache(t))

	org := core.Organization{Name: "Example Corp", ClaimedDomain: "example.com"}

	first, err := s.ResolveDomain(context.Background(), org)
	require.NoError(t, err)
	second, err := s.ResolveDomain(context.Background(), org)
	require.NoError(t, err)

	assert.Equal(t, first.Domain, second.Domain)
	assert.Equal(t, int64(1), resolver.calls.Load())
}

func TestResolveDomainCachesWithoutDomainHint(t *testing.T) {
	resolver := &countingResolver{rec: record()}
	cfg := baseConfig()
	cfg.CacheEnabled = true
	s := newScheduler(t, cfg, resolver, &scriptedProber{}, newMemoryCache(t))

	org := core.Organization{Name: "Example Corp"}

	first, err := s.ResolveDomain(context.Background(), org)
	require.NoError(t, err)
	second, err := s.ResolveDomain(context.Background(), org)
	require.NoError(t, err)

	assert.Equal(t, first.Domain, second.Domain)
	assert.Equal(t, int64(1), resolver.calls.Load())
}

func TestResolveDomainCachesWhenHintLosesToGuess(t *testing.T) {
	// The resolver settled on a domain other than the claimed one; repeat
	// requests with the same hint still reuse the cached record.
	resolver := &countingResolver{rec: record()}
	cfg := baseConfig()
	cfg.CacheEnabled = true
	s := newScheduler(t, cfg, resolver, &scriptedProber{}, newMemoryCache(t))

	org := core.Organization{Name: "Example Corp", ClaimedDomain: "stale-hint.example.org"}

	first, err := s.ResolveDomain(context.Background(), org)
	require.NoError(t, err)
	second, err := s.ResolveDomain(context.Background(), org)
	require.NoError(t, err)

	assert.Equal(t, "example.com", first.Domain)
	assert.Equal(t, first.Domain, second.Domain)
	assert.Equal(t, int64(1), resolver.calls.Load())
}

func TestResolveDomainSingleflight(t *testing.T) {
	resolver := &countingResolver{rec: record(), delay: 50 * time.Millisecond}
	s := newScheduler(t, baseConfig(), resolver, &scriptedProber{}, newMemoryCache(t))

	org := core.Organization{Name: "Example Corp", ClaimedDomain: "example.com"}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := s.ResolveDomain(context.Background(), org)
			assert.NoError(t, err)
			assert.Equal(t, "example.com", rec.Domain)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), resolver.calls.Load())
}

func TestResolveDomainPropagatesError(t *testing.T) {
	resolver := &countingResolver{err: core.ErrDomainInvalid}
	s := newScheduler(t, baseConfig(), resolver, &scriptedProber{}, newMemoryCache(t))

	_, err := s.ResolveDomain(context.Background(), core.Organization{Name: "Ghost Org"})

	assert.ErrorIs(t, err, core.ErrDomainInvalid)
}

func TestProbeCachesTerminalResults(t *testing.T) {
	p := &scriptedProber{scripts: map[string][]core.ProbeOutcome{
		"john@example.com": {core.OutcomeAccepted},
	}}
	cfg := baseConfig()
	cfg.CacheEnabled = true
	s := newScheduler(t, cfg, &countingResolver{rec: record()}, p, newMemoryCache(t))

	cand := core.CandidateEmail{Address: "john@example.com", PriorRank: 1.0}

	first := s.Probe(context.Background(), cand, record())
	second := s.Probe(context.Background(), cand, record())

	assert.Equal(t, core.OutcomeAccepted, first.Outcome)
	assert.Equal(t, core.OutcomeAccepted, second.Outcome)
	assert.Equal(t, int64(1), p.calls.Load())
}

func TestProbeCachesUnknownUnderShortTTL(t *testing.T) {
	p := &scriptedProber{scripts: map[string][]core.ProbeOutcome{
		"john@example.com": {core.OutcomeUnknown},
	}}
	cfg := baseConfig()
	cfg.CacheEnabled = true
	cfg.UnknownTTL = 50 * time.Millisecond
	s := newScheduler(t, cfg, &countingResolver{rec: record()}, p, newMemoryCache(t))

	cand := core.CandidateEmail{Address: "john@example.com", PriorRank: 1.0}

	s.Probe(context.Background(), cand, record())
	s.Probe(context.Background(), cand, record())
	assert.Equal(t, int64(1), p.calls.Load())

	// After the short TTL the address is probed again.
	time.Sleep(80 * time.Millisecond)
	s.Probe(context.Background(), cand, record())
	assert.Equal(t, int64(2), p.calls.Load())
}

func TestProbePerDomainConcurrencyBound(t *testing.T) {
	p := &scriptedProber{
		scripts: map[string][]core.ProbeOutcome{},
		hold:    30 * time.Millisecond,
	}
	cfg := baseConfig()
	cfg.PerDomainConcurrency = 2
	s := newScheduler(t, cfg, &countingResolver{rec: record()}, p, newMemoryCache(t))

	addresses := []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com", "e@example.com"}
	var wg sync.WaitGroup
	for _, addr := range addresses {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			s.Probe(context.Background(), core.CandidateEmail{Address: addr}, record())
		}(addr)
	}
	wg.Wait()

	assert.Equal(t, int64(len(addresses)), p.calls.Load())
	assert.LessOrEqual(t, p.peak.Load(), int64(2))
}

func TestProbeDedupsConcurrentSameAddress(t *testing.T) {
	p := &scriptedProber{
		scripts: map[string][]core.ProbeOutcome{
			"john@example.com": {core.OutcomeAccepted},
		},
		hold: 30 * time.Millisecond,
	}
	s := newScheduler(t, baseConfig(), &countingResolver{rec: record()}, p, newMemoryCache(t))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := s.Probe(context.Background(), core.CandidateEmail{Address: "john@example.com"}, record())
			assert.Equal(t, core.OutcomeAccepted, res.Outcome)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), p.calls.Load())
}

func TestProbeRetriesTransientThenSucceeds(t *testing.T) {
	p := &scriptedProber{scripts: map[string][]core.ProbeOutcome{
		"john@example.com": {core.OutcomeUnknown, core.OutcomeUnknown, core.OutcomeAccepted},
	}}
	cfg := baseConfig()
	cfg.MaxRetries = 2
	s := newScheduler(t, cfg, &countingResolver{rec: record()}, p, newMemoryCache(t))

	res := s.Probe(context.Background(), core.CandidateEmail{Address: "john@example.com"}, record())

	assert.Equal(t, core.OutcomeAccepted, res.Outcome)
	assert.Equal(t, int64(3), p.calls.Load())
}

func TestProbeRetriesExhaustedStaysUnknown(t *testing.T) {
	p := &scriptedProber{scripts: map[string][]core.ProbeOutcome{
		"john@example.com": {core.OutcomeUnknown},
	}}
	cfg := baseConfig()
	cfg.MaxRetries = 2
	s := newScheduler(t, cfg, &countingResolver{rec: record()}, p, newMemoryCache(t))

	res := s.Probe(context.Background(), core.CandidateEmail{Address: "john@example.com"}, record())

	assert.Equal(t, core.OutcomeUnknown, res.Outcome)
	assert.Equal(t, int64(3), p.calls.Load())
}

func TestProbeTerminalOutcomesAreNotRetried(t *testing.T) {
	p := &scriptedProber{scripts: map[string][]core.ProbeOutcome{
		"john@example.com": {core.OutcomeRejected},
	}}
	cfg := baseConfig()
	cfg.MaxRetries = 5
	s := newScheduler(t, cfg, &countingResolver{rec: record()}, p, newMemoryCache(t))

	res := s.Probe(context.Background(), core.CandidateEmail{Address: "john@example.com"}, record())

	assert.Equal(t, core.OutcomeRejected, res.Outcome)
	assert.Equal(t, int64(1), p.calls.Load())
}

func TestProbeBreakerOpensAndShortsSubsequentProbes(t *testing.T) {
	p := &scriptedProber{scripts: map[string][]core.ProbeOutcome{}}
	cfg := baseConfig()
	cfg.BreakerThreshold = 2
	s := newScheduler(t, cfg, &countingResolver{rec: record()}, p, newMemoryCache(t))

	// Two inconclusive probes open the domain's circuit.
	s.Probe(context.Background(), core.CandidateEmail{Address: "a@example.com"}, record())
	s.Probe(context.Background(), core.CandidateEmail{Address: "b@example.com"}, record())
	assert.Equal(t, int64(2), p.calls.Load())

	res := s.Probe(context.Background(), core.CandidateEmail{Address: "c@example.com"}, record())

	assert.Equal(t, core.OutcomeUnknown, res.Outcome)
	assert.Contains(t, res.Message, "suspended")
	// The prober was never invoked for the shorted probe.
	assert.Equal(t, int64(2), p.calls.Load())
}

func TestProbeBreakerRecoversAfterCooldown(t *testing.T) {
	p := &scriptedProber{scripts: map[string][]core.ProbeOutcome{
		"c@example.com": {core.OutcomeAccepted},
		"d@example.com": {core.OutcomeAccepted},
	}}
	cfg := baseConfig()
	cfg.BreakerThreshold = 2
	cfg.BreakerCooldown = 40 * time.Millisecond
	s := newScheduler(t, cfg, &countingResolver{rec: record()}, p, newMemoryCache(t))

	s.Probe(context.Background(), core.CandidateEmail{Address: "a@example.com"}, record())
	s.Probe(context.Background(), core.CandidateEmail{Address: "b@example.com"}, record())

	time.Sleep(60 * time.Millisecond)

	// Conclusive trial probe closes the circuit again.
	res := s.Probe(context.Background(), core.CandidateEmail{Address: "c@example.com"}, record())
	assert.Equal(t, core.OutcomeAccepted, res.Outcome)

	res = s.Probe(context.Background(), core.CandidateEmail{Address: "d@example.com"}, record())
	assert.Equal(t, core.OutcomeAccepted, res.Outcome)
	assert.Equal(t, int64(4), p.calls.Load())
}

func TestProbeBreakersAreIndependentPerDomain(t *testing.T) {
	p := &scriptedProber{scripts: map[string][]core.ProbeOutcome{
		"x@other.com": {core.OutcomeAccepted},
	}}
	cfg := baseConfig()
	cfg.BreakerThreshold = 1
	s := newScheduler(t, cfg, &countingResolver{rec: record()}, p, newMemoryCache(t))

	// Open the circuit for example.com.
	s.Probe(context.Background(), core.CandidateEmail{Address: "a@example.com"}, record())

	other := core.DomainRecord{
		Domain:    "other.com",
		MailHosts: []core.MailHost{{Host: "mx.other.com", Pref: 10}},
	}
	res := s.Probe(context.Background(), core.CandidateEmail{Address: "x@other.com"}, other)

	assert.Equal(t, core.OutcomeAccepted, res.Outcome)
}

func TestProbeCancelledContextIsNotCached(t *testing.T) {
	p := &scriptedProber{scripts: map[string][]core.ProbeOutcome{}}
	repo := newMemoryCache(t)
	cfg := baseConfig()
	cfg.CacheEnabled = true
	s := newScheduler(t, cfg, &countingResolver{rec: record()}, p, repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := s.Probe(ctx, core.CandidateEmail{Address: "john@example.com"}, record())

	assert.Equal(t, core.OutcomeUnknown, res.Outcome)
	_, hit := repo.GetProbe(context.Background(), "john@example.com")
	assert.False(t, hit)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*scheduler.Config)
	}{
		{"zero concurrency", func(c *scheduler.Config) { c.PerDomainConcurrency = 0 }},
		{"negative retries", func(c *scheduler.Config) { c.MaxRetries = -1 }},
		{"inverted backoff window", func(c *scheduler.Config) { c.MaxBackoff = c.InitialBackoff / 2 }},
		{"zero breaker threshold", func(c *scheduler.Config) { c.BreakerThreshold = 0 }},
		{"cache enabled without TTLs", func(c *scheduler.Config) { c.CacheEnabled = true; c.ProbeTTL = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())

			_, err := scheduler.New(cfg, &countingResolver{}, &scriptedProber{}, nil, metrics.NewWith(prometheus.NewRegistry()), zap.NewNop())
			assert.Error(t, err)
		})
	}

	assert.NoError(t, baseConfig().Validate())
}
