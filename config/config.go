// Package config builds provider configuration from the environment on
// behalf of host applications. The core packages never read environment
// variables themselves; credentials are injected at construction.
package config

import (
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/pkg/errors"

	"github.com/feitianbubu/genmedia"
)

// Config holds the per-provider settings read from the environment
type Config struct {
	Replicate Replicate
	Veo       Veo
	Imagen    Imagen
	Kling     Kling
}

// Replicate settings
type Replicate struct {
	APIToken      string        `env:"REPLICATE_API_TOKEN"`
	BaseURL       string        `env:"REPLICATE_BASE_URL"`
	Timeout       time.Duration `env:"REPLICATE_TIMEOUT" envDefault:"2m"`
	StatusTimeout time.Duration `env:"REPLICATE_STATUS_TIMEOUT" envDefault:"30s"`
	MaxRetries    int           `env:"REPLICATE_MAX_RETRIES" envDefault:"3"`
}

// Veo settings
type Veo struct {
	APIKey        string        `env:"VEO_API_KEY"`
	BaseURL       string        `env:"VEO_BASE_URL"`
	Timeout       time.Duration `env:"VEO_TIMEOUT" envDefault:"2m"`
	StatusTimeout time.Duration `env:"VEO_STATUS_TIMEOUT" envDefault:"30s"`
}

// Imagen settings
type Imagen struct {
	APIKey  string        `env:"IMAGEN_API_KEY"`
	BaseURL string        `env:"IMAGEN_BASE_URL"`
	Timeout time.Duration `env:"IMAGEN_TIMEOUT" envDefault:"2m"`
}

// Kling settings
type Kling struct {
	AccessKey     string        `env:"KLING_ACCESS_KEY"`
	SecretKey     string        `env:"KLING_SECRET_KEY"`
	BaseURL       string        `env:"KLING_BASE_URL"`
	Timeout       time.Duration `env:"KLING_TIMEOUT" envDefault:"2m"`
	StatusTimeout time.Duration `env:"KLING_STATUS_TIMEOUT" envDefault:"30s"`
}

// Load reads provider settings from the environment
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse environment")
	}
	return cfg, nil
}

// ProviderConfigs returns configuration for every provider that has
// credentials set. Providers without credentials are left out so the
// factory rejects them eagerly.
func (c *Config) ProviderConfigs() map[genmedia.ProviderType]*genmedia.ProviderConfig {
	configs := map[genmedia.ProviderType]*genmedia.ProviderConfig{}

	if c.Replicate.APIToken != "" {
		configs[genmedia.ProviderReplicate] = &genmedia.ProviderConfig{
			BaseURL:       c.Replicate.BaseURL,
			APIKey:        c.Replicate.APIToken,
			Timeout:       c.Replicate.Timeout,
			StatusTimeout: c.Replicate.StatusTimeout,
			MaxRetries:    c.Replicate.MaxRetries,
		}
	}
	if c.Veo.APIKey != "" {
		configs[genmedia.ProviderVeo] = &genmedia.ProviderConfig{
			BaseURL:       c.Veo.BaseURL,
			APIKey:        c.Veo.APIKey,
			Timeout:       c.Veo.Timeout,
			StatusTimeout: c.Veo.StatusTimeout,
		}
	}
	if c.Imagen.APIKey != "" {
		configs[genmedia.ProviderImagen] = &genmedia.ProviderConfig{
			BaseURL: c.Imagen.BaseURL,
			APIKey:  c.Imagen.APIKey,
			Timeout: c.Imagen.Timeout,
		}
	}
	if c.Kling.AccessKey != "" && c.Kling.SecretKey != "" {
		configs[genmedia.ProviderKling] = &genmedia.ProviderConfig{
			BaseURL:       c.Kling.BaseURL,
			APIKey:        c.Kling.AccessKey,
			SecretKey:     c.Kling.SecretKey,
			Timeout:       c.Kling.Timeout,
			StatusTimeout: c.Kling.StatusTimeout,
		}
	}
	return configs
}

// Factory builds a ready factory from the loaded configuration
func (c *Config) Factory() *genmedia.Factory {
	return genmedia.NewFactory(c.ProviderConfigs())
}
