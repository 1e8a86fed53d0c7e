package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/contactsift/contact-verifier/internal/config"
	"github.com/contactsift/contact-verifier/internal/logging"
)

func configWith(t *testing.T, level, format string) *config.Config {
	t.Helper()
	v := config.NewEmptyViper()
	v.Set("logging.level", level)
	v.Set("logging.format", format)
	return config.NewFromViper(v)
}

func TestInitLoggerLevels(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := logging.InitLogger(configWith(t, tt.level, "json"))
			require.NoError(t, err)
			defer logger.Sync()

			assert.True(t, logger.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestInitLoggerUnknownLevelFallsBackToInfo(t *testing.T) {
	logger, err := logging.InitLogger(configWith(t, "chatty", "json"))
	require.NoError(t, err)
	defer logger.Sync()

	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestInitLoggerConsoleFormat(t *testing.T) {
	logger, err := logging.InitLogger(configWith(t, "info", "console"))
	require.NoError(t, err)
	defer logger.Sync()

	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestInitConsoleLoggerVerbose(t *testing.T) {
	quiet, err := logging.InitConsoleLogger(false, true)
	require.NoError(t, err)
	defer quiet.Sync()
	assert.False(t, quiet.Core().Enabled(zapcore.DebugLevel))

	verbose, err := logging.InitConsoleLogger(true, true)
	require.NoError(t, err)
	defer verbose.Sync()
	assert.True(t, verbose.Core().Enabled(zapcore.DebugLevel))
}
