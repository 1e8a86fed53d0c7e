package factory

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/contactsift/contact-verifier/internal/adapters/dns"
	"github.com/contactsift/contact-verifier/internal/adapters/prober"
	"github.com/contactsift/contact-verifier/internal/blocklist"
	"github.com/contactsift/contact-verifier/internal/config"
	"github.com/contactsift/contact-verifier/internal/core"
	"github.com/contactsift/contact-verifier/internal/metrics"
	"github.com/contactsift/contact-verifier/internal/pattern"
	"github.com/contactsift/contact-verifier/internal/scheduler"
)

// EngineFactory creates the verification engine components from
// configuration.
type EngineFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewEngineFactory creates a new engine factory
func NewEngineFactory(cfg *config.Config, logger *zap.Logger) *EngineFactory {
	return &EngineFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateProber creates the SMTP mailbox prober
func (f *EngineFactory) CreateProber() (core.MailboxProber, error) {
	connectTimeout, err := f.cfg.GetDuration("prober.connect_timeout")
	if err != nil {
		return nil, fmt.Errorf("invalid prober connect timeout: %w", err)
	}
	commandTimeout, err := f.cfg.GetDuration("prober.command_timeout")
	if err != nil {
		return nil, fmt.Errorf("invalid prober command timeout: %w", err)
	}

	return prober.NewProber(prober.Config{
		HeloDomain:     f.cfg.GetString("verifier.helo_domain"),
		MailFrom:       f.cfg.GetString("verifier.mail_from"),
		ConnectTimeout: connectTimeout,
		CommandTimeout: commandTimeout,
		Port:           f.cfg.GetString("prober.port"),
		MaxMXHosts:     f.cfg.GetInt("prober.max_mx_hosts"),
	}, f.logger), nil
}

// CreateResolver creates the domain resolver
func (f *EngineFactory) CreateResolver(p core.MailboxProber) (core.DomainResolver, error) {
	lookupTimeout, err := f.cfg.GetDuration("resolver.lookup_timeout")
	if err != nil {
		return nil, fmt.Errorf("invalid resolver lookup timeout: %w", err)
	}

	blocked := blocklist.NewChecker(f.cfg.GetStringSlice("resolver.blocked_domains"), f.logger)

	return dns.NewResolver(dns.Config{
		LookupTimeout: lookupTimeout,
		FallbackToA:   f.cfg.GetBool("resolver.fallback_to_a"),
		CatchAllCheck: f.cfg.GetBool("resolver.catch_all_check"),
	}, p, blocked, f.logger), nil
}

// CreateScheduler creates the probe scheduler that owns the caches
func (f *EngineFactory) CreateScheduler(
	resolver core.DomainResolver,
	p core.MailboxProber,
	cacheRepo core.CacheRepository,
	m *metrics.Metrics,
) (core.ProbeScheduler, error) {
	schedCfg, err := f.schedulerConfig()
	if err != nil {
		return nil, err
	}
	return scheduler.New(schedCfg, resolver, p, cacheRepo, m, f.logger)
}

// CreateScorer creates the evidence fusion scorer
func (f *EngineFactory) CreateScorer() (*core.Scorer, error) {
	return core.NewScorer(core.ScoringConfig{
		AcceptThreshold: f.cfg.GetFloat64("scoring.accept_threshold"),
		ReviewThreshold: f.cfg.GetFloat64("scoring.review_threshold"),
		CatchAllCap:     f.cfg.GetFloat64("scoring.catch_all_cap"),
		AcceptedScore:   f.cfg.GetFloat64("scoring.accepted_score"),
		RejectedScore:   f.cfg.GetFloat64("scoring.rejected_score"),
		UnknownBase:     f.cfg.GetFloat64("scoring.unknown_base"),
		PriorWeight:     f.cfg.GetFloat64("scoring.prior_weight"),
		AgreementWeight: f.cfg.GetFloat64("scoring.agreement_weight"),
	}, f.logger)
}

// CreateService creates the verification service
func (f *EngineFactory) CreateService(sched core.ProbeScheduler, scorer *core.Scorer) (*core.VerificationService, error) {
	requestTimeout, err := f.cfg.GetDuration("verifier.request_timeout")
	if err != nil {
		return nil, fmt.Errorf("invalid request timeout: %w", err)
	}

	return core.NewVerificationService(
		sched,
		pattern.NewGenerator(),
		scorer,
		f.logger,
		requestTimeout,
		f.cfg.GetInt("verifier.workers"),
	), nil
}

// schedulerConfig assembles the scheduler configuration from the cache
// and scheduler sections.
func (f *EngineFactory) schedulerConfig() (scheduler.Config, error) {
	durations := make(map[string]time.Duration, 6)
	for _, key := range []string{
		"scheduler.initial_backoff",
		"scheduler.max_backoff",
		"scheduler.breaker_cooldown",
		"cache.domain_ttl",
		"cache.probe_ttl",
		"cache.unknown_ttl",
	} {
		d, err := f.cfg.GetDuration(key)
		if err != nil {
			return scheduler.Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		durations[key] = d
	}

	return scheduler.Config{
		PerDomainConcurrency: int64(f.cfg.GetInt("scheduler.per_domain_concurrency")),
		MaxRetries:           f.cfg.GetInt("scheduler.max_retries"),
		InitialBackoff:       durations["scheduler.initial_backoff"],
		MaxBackoff:           durations["scheduler.max_backoff"],
		BreakerThreshold:     f.cfg.GetInt("scheduler.breaker_threshold"),
		BreakerCooldown:      durations["scheduler.breaker_cooldown"],
		CacheEnabled:         f.cfg.GetBool("cache.enabled"),
		DomainTTL:            durations["cache.domain_ttl"],
		ProbeTTL:             durations["cache.probe_ttl"],
		UnknownTTL:           durations["cache.unknown_ttl"],
	}, nil
}
