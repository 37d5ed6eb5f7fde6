package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lazypower/atomspace/internal/config"
)

func TestNew(t *testing.T) {
	log, err := New(config.LogConfig{Level: "debug"})
	require.NoError(t, err)
	assert.True(t, log.Desugar().Core().Enabled(zap.DebugLevel))

	log, err = New(config.LogConfig{JSON: true, Level: "warn"})
	require.NoError(t, err)
	assert.False(t, log.Desugar().Core().Enabled(zap.InfoLevel))

	log, err = New(config.LogConfig{})
	require.NoError(t, err)
	assert.True(t, log.Desugar().Core().Enabled(zap.InfoLevel))
}

func TestNewBadLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
