package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewZapLogger(t *testing.T) {
	for _, level := range []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL", "bogus", ""} {
		logger, err := NewZapLogger(level)
		require.NoError(t, err, "level %q", level)
		require.NotNil(t, logger)
	}
}

func TestWithField_ReturnsIndependentLogger(t *testing.T) {
	logger, err := NewZapLogger("ERROR")
	require.NoError(t, err)

	child := logger.WithField("component", "test")
	assert.NotNil(t, child)
	assert.NotSame(t, logger, child)

	grandchild := child.WithFields(map[string]interface{}{"a": 1, "b": 2})
	assert.NotNil(t, grandchild)
}

func TestNop_DiscardsEverything(t *testing.T) {
	logger := NewNop()
	logger.Debug("msg")
	logger.Info("msg", "k", "v")
	logger.Warn("msg")
	logger.Error("msg", "error", assert.AnError)
	logger.WithField("k", "v").Info("msg")
}
