package di

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"github.com/contactsift/contact-verifier/internal/config"
	"github.com/contactsift/contact-verifier/internal/core"
	"github.com/contactsift/contact-verifier/internal/factory"
	"github.com/contactsift/contact-verifier/internal/logging"
	"github.com/contactsift/contact-verifier/internal/metrics"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration, validated before anything consumes it
	if err := container.Provide(func() (*config.Config, error) {
		cfg, err := config.New()
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	return provideEngine(container)
}

// provideEngine registers everything downstream of config and logger.
// Shared with the CLI container, which brings its own config and logger.
func provideEngine(container *dig.Container) (*dig.Container, error) {
	// Register metrics
	if err := container.Provide(func(cfg *config.Config) *metrics.Metrics {
		if cfg.GetBool("metrics.enabled") {
			return metrics.New()
		}
		// Keep the instruments but stay off the default registry.
		return metrics.NewWith(prometheus.NewRegistry())
	}); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewEngineFactory); err != nil {
		return nil, err
	}

	// Register cache repository
	if err := container.Provide(func(f *factory.CacheFactory) (core.CacheRepository, error) {
		return f.CreateCacheRepository()
	}); err != nil {
		return nil, err
	}

	// Register mailbox prober
	if err := container.Provide(func(f *factory.EngineFactory) (core.MailboxProber, error) {
		return f.CreateProber()
	}); err != nil {
		return nil, err
	}

	// Register domain resolver
	if err := container.Provide(func(f *factory.EngineFactory, p core.MailboxProber) (core.DomainResolver, error) {
		return f.CreateResolver(p)
	}); err != nil {
		return nil, err
	}

	// Register probe scheduler
	if err := container.Provide(func(
		f *factory.EngineFactory,
		resolver core.DomainResolver,
		p core.MailboxProber,
		cacheRepo core.CacheRepository,
		m *metrics.Metrics,
	) (core.ProbeScheduler, error) {
		return f.CreateScheduler(resolver, p, cacheRepo, m)
	}); err != nil {
		return nil, err
	}

	// Register fusion scorer
	if err := container.Provide(func(f *factory.EngineFactory) (*core.Scorer, error) {
		return f.CreateScorer()
	}); err != nil {
		return nil, err
	}

	// Register verification service
	if err := container.Provide(func(f *factory.EngineFactory, sched core.ProbeScheduler, scorer *core.Scorer) (*core.VerificationService, error) {
		return f.CreateService(sched, scorer)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
