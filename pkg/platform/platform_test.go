package platform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstanceIDIsUniquePerProcess(t *testing.T) {
	a := instanceID("consumer")
	b := instanceID("consumer")
	require.NotEqual(t, a, b)
	require.Contains(t, a, "-")
}

func TestEnvName(t *testing.T) {
	t.Setenv("BRIDGE_ENV", "")
	require.Equal(t, "development", envName())

	t.Setenv("BRIDGE_ENV", "production")
	require.Equal(t, "production", envName())
}

func TestNewLoggerLevels(t *testing.T) {
	for _, lvl := range []string{"DEBUG", "INFO", "WARN", "ERROR", "bogus"} {
		log := newLogger(lvl)
		require.NotNil(t, log, strings.ToLower(lvl))
	}
}
