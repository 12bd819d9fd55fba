package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	CorsConfig
	ProviderConfig
	BackendConfig
	FlowConfig
	SecurityConfig
	StorageConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetLogLevel() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Provider
	Backend
	Flow
	Security
	Storage
}

// New reads the configuration from the process environment.
func New() (Config, error) {
	var c mainConfig
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config New] parse env: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c mainConfig) validate() error {
	if c.SkipStateVerification && strings.EqualFold(c.GetEnv(), EnvProduction) {
		return errors.New("[config] OAUTH_SKIP_STATE_VERIFICATION cannot be enabled when ENV=PROD")
	}
	if c.GetExchangeTimeout() <= 0 {
		return errors.New("[config] EXCHANGE_TIMEOUT must be positive")
	}
	if c.GetGuardProcessingTTL() <= c.GetExchangeTimeout() {
		return fmt.Errorf("[config] GUARD_PROCESSING_TTL (%s) must exceed EXCHANGE_TIMEOUT (%s)",
			c.GetGuardProcessingTTL(), c.GetExchangeTimeout())
	}
	switch c.GetStoreDriver() {
	case StoreDriverMemory, StoreDriverFile, StoreDriverRedis:
	default:
		return fmt.Errorf("[config] unknown STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}
