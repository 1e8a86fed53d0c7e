package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/contactsift/contact-verifier/internal/config"
)

// BuildCLIContainer creates a container around an already-loaded
// configuration and console logger, for one-shot CLI runs.
func BuildCLIContainer(cfg *config.Config, logger *zap.Logger) (*dig.Container, error) {
	container := dig.New()

	if err := container.Provide(func() (*config.Config, error) {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(func() *zap.Logger { return logger }); err != nil {
		return nil, err
	}

	return provideEngine(container)
}
