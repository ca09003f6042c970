package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/0xsequent/arbswap/apperror"
)

// Environment variables.
const (
	EnvPrivateKey      = "ARBSWAP_PRIVATE_KEY"
	EnvRelaySigningKey = "ARBSWAP_RELAY_SIGNING_KEY"
)

// SecureConfig holds key material loaded from the environment, never from
// the config file.
type SecureConfig struct {
	// PrivateKey signs and funds all swap transactions.
	PrivateKey string

	// RelaySigningKey authenticates bundle submissions to the private
	// relay. Falls back to PrivateKey when unset.
	RelaySigningKey string
}

// LoadEnv loads environment variables from a .env file, if present.
func LoadEnv() error {
	return godotenv.Load()
}

// LoadSecureConfig reads signing keys from the environment. A missing or
// malformed private key is SIGNER_MISCONFIGURED: fatal at construction
// time, surfaced immediately.
func LoadSecureConfig() (*SecureConfig, error) {
	privateKey := os.Getenv(EnvPrivateKey)
	if privateKey == "" {
		return nil, apperror.New(apperror.CodeSignerMisconfigured,
			apperror.WithContext(EnvPrivateKey+" not set"))
	}
	if !strings.HasPrefix(privateKey, "0x") {
		return nil, apperror.New(apperror.CodeSignerMisconfigured,
			apperror.WithContext(EnvPrivateKey+" must be 0x-prefixed hex"))
	}

	relayKey := os.Getenv(EnvRelaySigningKey)
	if relayKey == "" {
		relayKey = privateKey
	}

	return &SecureConfig{
		PrivateKey:      privateKey,
		RelaySigningKey: relayKey,
	}, nil
}

// GetEnvWithDefault gets an environment variable with a default value.
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
