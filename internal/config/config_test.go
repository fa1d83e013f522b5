package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetEnv(t *testing.T) {
	require := require.New(t)

	t.Setenv("MARKET_TEST_STR", "value")
	require.Equal("value", GetEnv("MARKET_TEST_STR", "fallback"))
	require.Equal("fallback", GetEnv("MARKET_TEST_UNSET", "fallback"))
}

func TestGetEnvInt(t *testing.T) {
	require := require.New(t)

	t.Setenv("MARKET_TEST_INT", "42")
	require.Equal(42, GetEnvInt("MARKET_TEST_INT", 7))
	require.Equal(7, GetEnvInt("MARKET_TEST_INT_UNSET", 7))

	t.Setenv("MARKET_TEST_BAD_INT", "not-a-number")
	require.Equal(7, GetEnvInt("MARKET_TEST_BAD_INT", 7))
}

func TestMustGetEnv(t *testing.T) {
	require := require.New(t)

	t.Setenv("MARKET_TEST_REQUIRED", "set")
	require.Equal("set", MustGetEnv("MARKET_TEST_REQUIRED"))

	require.Panics(func() { MustGetEnv("MARKET_TEST_REQUIRED_UNSET") })
}
