package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	require.Empty(t, DefaultConfig().Validate())
	require.Len(t, Config{Level: "loud"}.Validate(), 1)
}

func TestSetLogrus(t *testing.T) {
	defer logrus.SetLevel(logrus.GetLevel())
	defer logrus.SetFormatter(logrus.StandardLogger().Formatter)

	SetLogrus(Config{Level: "debug", JSON: true})
	require.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	require.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	SetLogrus(*DefaultConfig())
	require.Equal(t, logrus.InfoLevel, logrus.GetLevel())
	require.IsType(t, &logrus.TextFormatter{}, logrus.StandardLogger().Formatter)

	require.Panics(t, func() { SetLogrus(Config{Level: "loud"}) })
}
