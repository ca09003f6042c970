package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xsequent/arbswap/apperror"
)

const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestLoadSecureConfig(t *testing.T) {
	t.Run("missing_private_key", func(t *testing.T) {
		t.Setenv(EnvPrivateKey, "")
		t.Setenv(EnvRelaySigningKey, "")

		_, err := LoadSecureConfig()
		require.Error(t, err)
		assert.Equal(t, apperror.CodeSignerMisconfigured, apperror.GetCode(err))
	})

	t.Run("unprefixed_private_key", func(t *testing.T) {
		t.Setenv(EnvPrivateKey, "abc123")

		_, err := LoadSecureConfig()
		require.Error(t, err)
		assert.Equal(t, apperror.CodeSignerMisconfigured, apperror.GetCode(err))
	})

	t.Run("relay_key_falls_back_to_private_key", func(t *testing.T) {
		t.Setenv(EnvPrivateKey, testKey)
		t.Setenv(EnvRelaySigningKey, "")

		secure, err := LoadSecureConfig()
		require.NoError(t, err)
		assert.Equal(t, testKey, secure.PrivateKey)
		assert.Equal(t, testKey, secure.RelaySigningKey)
	})

	t.Run("separate_relay_key", func(t *testing.T) {
		relayKey := "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
		t.Setenv(EnvPrivateKey, testKey)
		t.Setenv(EnvRelaySigningKey, relayKey)

		secure, err := LoadSecureConfig()
		require.NoError(t, err)
		assert.Equal(t, relayKey, secure.RelaySigningKey)
	})
}

func TestGetEnvWithDefault(t *testing.T) {
	t.Setenv("ARBSWAP_TEST_VAR", "")
	assert.Equal(t, "fallback", GetEnvWithDefault("ARBSWAP_TEST_VAR", "fallback"))

	t.Setenv("ARBSWAP_TEST_VAR", "set")
	assert.Equal(t, "set", GetEnvWithDefault("ARBSWAP_TEST_VAR", "fallback"))
}
