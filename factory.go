package genmedia

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/feitianbubu/genmedia/providers"
	"github.com/feitianbubu/genmedia/providers/imagen"
	"github.com/feitianbubu/genmedia/providers/kling"
	"github.com/feitianbubu/genmedia/providers/replicate"
	"github.com/feitianbubu/genmedia/providers/veo"
)

// Factory resolves a logical provider name or a model key to a concrete
// client instance. Construction happens per call; clients are stateless
// aside from their immutable configuration, so callers may cache them.
type Factory struct {
	configs map[ProviderType]*ProviderConfig
	models  map[string]ProviderType
}

// NewFactory creates a factory from per-provider configuration
func NewFactory(configs map[ProviderType]*ProviderConfig) *Factory {
	if configs == nil {
		configs = map[ProviderType]*ProviderConfig{}
	}
	return &Factory{
		configs: configs,
		models:  map[string]ProviderType{},
	}
}

// RegisterModel binds a model key to a provider for ForModel resolution
func (f *Factory) RegisterModel(modelKey string, provider ProviderType) {
	f.models[modelKey] = provider
}

// Make creates a provider instance by logical name
func (f *Factory) Make(providerType ProviderType) (Provider, error) {
	config, ok := f.configs[providerType]
	if !ok {
		switch providerType {
		case ProviderReplicate, ProviderVeo, ProviderImagen, ProviderKling:
			return nil, errors.Wrapf(ErrInvalidConfiguration, "provider %q is not configured", providerType)
		}
		return nil, errors.Wrapf(ErrUnknownProvider, "%q", providerType)
	}

	inner, err := f.build(providerType, toProviderConfig(config))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s provider", providerType)
	}
	return Wrap(inner), nil
}

func (f *Factory) build(providerType ProviderType, config *providers.ProviderConfig) (providers.Provider, error) {
	switch providerType {
	case ProviderReplicate:
		return replicate.New(config)
	case ProviderVeo:
		return veo.New(config)
	case ProviderImagen:
		return imagen.New(config)
	case ProviderKling:
		return kling.New(config)
	default:
		return nil, errors.Wrapf(ErrUnknownProvider, "%q", providerType)
	}
}

// ForModel resolves a model key to its provider and verifies the provider
// can serve the requested kind before any network call is made
func (f *Factory) ForModel(modelKey string, kind Kind) (Provider, error) {
	providerType, err := f.resolveModel(modelKey)
	if err != nil {
		return nil, err
	}

	provider, err := f.Make(providerType)
	if err != nil {
		return nil, err
	}

	if !provider.SupportsFeature(kind.Feature()) {
		return nil, &UnsupportedOperationError{
			Provider: provider.Name(),
			Feature:  providers.Feature(kind.Feature()),
		}
	}
	return provider, nil
}

// resolveModel checks the explicit table first, then falls back to naming
// conventions: kling-* and veo-* model families carry their provider in
// the name, imagen-* likewise, and owner/name slugs are Replicate's.
func (f *Factory) resolveModel(modelKey string) (ProviderType, error) {
	if providerType, ok := f.models[modelKey]; ok {
		return providerType, nil
	}

	switch {
	case strings.HasPrefix(modelKey, "kling"):
		return ProviderKling, nil
	case strings.HasPrefix(modelKey, "veo"):
		return ProviderVeo, nil
	case strings.HasPrefix(modelKey, "imagen"):
		return ProviderImagen, nil
	case strings.Contains(modelKey, "/"):
		return ProviderReplicate, nil
	}
	return "", errors.Wrapf(ErrUnknownProvider, "no provider for model %q", modelKey)
}
