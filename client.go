package genmedia

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/feitianbubu/genmedia/providers"
)

// Client is the main entry point for generation calls. It layers request
// validation, pre-flight capability checks and polling on top of a
// Provider; retry policy stays inside the vendor clients that need it.
type Client struct {
	provider Provider
	config   *ClientConfig
	log      zerolog.Logger
}

// ClientConfig holds configuration for the client
type ClientConfig struct {
	PollInterval time.Duration
	Debug        bool
	Logger       zerolog.Logger
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		PollInterval: 5 * time.Second,
		Logger:       zerolog.Nop(),
	}
}

// NewClient creates a new generation client for a provider
func NewClient(providerType ProviderType, providerConfig *ProviderConfig, clientConfig ...*ClientConfig) (*Client, error) {
	factory := NewFactory(map[ProviderType]*ProviderConfig{providerType: providerConfig})
	provider, err := factory.Make(providerType)
	if err != nil {
		return nil, err
	}
	return NewClientWithProvider(provider, clientConfig...), nil
}

// NewClientWithProvider creates a new client with a custom provider
func NewClientWithProvider(provider Provider, config ...*ClientConfig) *Client {
	clientConfig := DefaultClientConfig()
	if len(config) > 0 && config[0] != nil {
		clientConfig = config[0]
	}

	log := clientConfig.Logger
	if !clientConfig.Debug {
		log = zerolog.Nop()
	}

	return &Client{
		provider: provider,
		config:   clientConfig,
		log:      log,
	}
}

// GenerateImage submits a text-to-image task
func (c *Client) GenerateImage(ctx context.Context, req *GenerationRequest) (*Submission, error) {
	if err := c.validateRequest(req, KindImage); err != nil {
		return nil, err
	}
	c.log.Debug().Str("provider", c.provider.Name()).Msg("submitting image generation")
	return c.provider.GenerateImage(ctx, req)
}

// GenerateVideo submits a text-to-video task
func (c *Client) GenerateVideo(ctx context.Context, req *GenerationRequest) (*Submission, error) {
	if err := c.validateRequest(req, KindVideo); err != nil {
		return nil, err
	}
	c.log.Debug().Str("provider", c.provider.Name()).Msg("submitting video generation")
	return c.provider.GenerateVideo(ctx, req)
}

// GenerateVideoFromImage submits an image-to-video task
func (c *Client) GenerateVideoFromImage(ctx context.Context, req *GenerationRequest) (*Submission, error) {
	if err := c.validateRequest(req, KindVideoFromImage); err != nil {
		return nil, err
	}
	c.log.Debug().Str("provider", c.provider.Name()).Msg("submitting image-to-video generation")
	return c.provider.GenerateVideoFromImage(ctx, req)
}

// Generate dispatches a request to the operation matching kind
func (c *Client) Generate(ctx context.Context, kind Kind, req *GenerationRequest) (*Submission, error) {
	switch kind {
	case KindImage:
		return c.GenerateImage(ctx, req)
	case KindVideoFromImage:
		return c.GenerateVideoFromImage(ctx, req)
	default:
		return c.GenerateVideo(ctx, req)
	}
}

// CheckStatus retrieves the normalized status of a task
func (c *Client) CheckStatus(ctx context.Context, taskID string) (*GenerationStatus, error) {
	if taskID == "" {
		return nil, &ValidationError{Field: "task_id", Message: "task ID cannot be empty"}
	}
	return c.provider.CheckStatus(ctx, taskID)
}

// DownloadResult fetches the final artifact bytes
func (c *Client) DownloadResult(ctx context.Context, locator string) ([]byte, error) {
	if locator == "" {
		return nil, &ValidationError{Field: "locator", Message: "locator cannot be empty"}
	}
	return c.provider.DownloadResult(ctx, locator)
}

// WaitForCompletion polls a task until it reaches a terminal status
func (c *Client) WaitForCompletion(ctx context.Context, taskID string, pollInterval time.Duration) (*GenerationStatus, error) {
	if pollInterval <= 0 {
		pollInterval = c.config.PollInterval
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			status, err := c.CheckStatus(ctx, taskID)
			if err != nil {
				return nil, err
			}

			c.log.Debug().
				Str("task_id", taskID).
				Str("status", string(status.Status)).
				Msg("poll")

			if status.Status.Terminal() {
				return status, nil
			}
		}
	}
}

// GetProviderName returns the name of the current provider
func (c *Client) GetProviderName() string {
	return c.provider.Name()
}

// GetFeatures returns the capability tags of the current provider
func (c *Client) GetFeatures() []Feature {
	return c.provider.Features()
}

// validateRequest checks request shape and provider capability before any
// network call
func (c *Client) validateRequest(req *GenerationRequest, kind Kind) error {
	if req == nil {
		return &ValidationError{Field: "request", Message: "request cannot be nil"}
	}

	if !c.provider.SupportsFeature(kind.Feature()) {
		return &UnsupportedOperationError{
			Provider: c.provider.Name(),
			Feature:  providers.Feature(kind.Feature()),
		}
	}

	switch kind {
	case KindVideoFromImage:
		if req.Image == "" {
			return &ValidationError{Field: "image", Message: "source image is required"}
		}
	default:
		if req.Prompt == "" {
			return &ValidationError{Field: "prompt", Message: "prompt cannot be empty"}
		}
	}

	if req.Duration < 0 {
		return &ValidationError{Field: "duration", Message: "duration cannot be negative"}
	}
	if req.NumImages < 0 {
		return &ValidationError{Field: "num_images", Message: "num_images cannot be negative"}
	}
	return nil
}
