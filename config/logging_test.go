package config

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureLogging(t *testing.T) {
	prevLevel := logrus.GetLevel()
	prevFormatter := logrus.StandardLogger().Formatter
	t.Cleanup(func() {
		logrus.SetLevel(prevLevel)
		logrus.SetFormatter(prevFormatter)
	})

	require.NoError(t, ConfigureLogging(LogConfig{Level: "trace", Format: "json"}))
	assert.Equal(t, logrus.TraceLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	require.NoError(t, ConfigureLogging(LogConfig{Level: "warn", Format: "text"}))
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logrus.StandardLogger().Formatter)

	assert.ErrorIs(t, ConfigureLogging(LogConfig{Level: "loud"}), ErrInvalidConfig)
	assert.ErrorIs(t, ConfigureLogging(LogConfig{Level: "info", Format: "xml"}), ErrInvalidConfig)
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel(), "failed calls leave the level alone")
}
