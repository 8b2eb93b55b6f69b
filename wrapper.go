package genmedia

import (
	"context"

	"github.com/feitianbubu/genmedia/providers"
)

// providerWrapper adapts a providers.Provider to the main package Provider
// interface
type providerWrapper struct {
	inner providers.Provider
}

// Wrap exposes a vendor client through the main package interface
func Wrap(inner providers.Provider) Provider {
	return &providerWrapper{inner: inner}
}

func (w *providerWrapper) Name() string {
	return w.inner.Name()
}

func (w *providerWrapper) Features() []Feature {
	inner := w.inner.Features()
	out := make([]Feature, len(inner))
	for i, f := range inner {
		out[i] = Feature(f)
	}
	return out
}

func (w *providerWrapper) SupportsFeature(f Feature) bool {
	return w.inner.SupportsFeature(providers.Feature(f))
}

func (w *providerWrapper) GenerateImage(ctx context.Context, req *GenerationRequest) (*Submission, error) {
	sub, err := w.inner.GenerateImage(ctx, toProviderRequest(req))
	return fromSubmission(sub), err
}

func (w *providerWrapper) GenerateVideo(ctx context.Context, req *GenerationRequest) (*Submission, error) {
	sub, err := w.inner.GenerateVideo(ctx, toProviderRequest(req))
	return fromSubmission(sub), err
}

func (w *providerWrapper) GenerateVideoFromImage(ctx context.Context, req *GenerationRequest) (*Submission, error) {
	sub, err := w.inner.GenerateVideoFromImage(ctx, toProviderRequest(req))
	return fromSubmission(sub), err
}

func (w *providerWrapper) CheckStatus(ctx context.Context, taskID string) (*GenerationStatus, error) {
	status, err := w.inner.CheckStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &GenerationStatus{
		TaskID: status.TaskID,
		Status: TaskStatus(status.Status),
		Output: status.Output,
		Error:  status.Error,
		Raw:    status.Raw,
	}, nil
}

func (w *providerWrapper) DownloadResult(ctx context.Context, locator string) ([]byte, error) {
	return w.inner.DownloadResult(ctx, locator)
}

func toProviderRequest(req *GenerationRequest) *providers.GenerationRequest {
	if req == nil {
		return nil
	}
	return &providers.GenerationRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Image:          req.Image,
		LastFrameImage: req.LastFrameImage,
		Duration:       req.Duration,
		AspectRatio:    req.AspectRatio,
		Resolution:     req.Resolution,
		Width:          req.Width,
		Height:         req.Height,
		NumImages:      req.NumImages,
		Seed:           req.Seed,
		Model:          req.Model,
		PersonMode:     req.PersonMode,
		Extra:          req.Extra,
	}
}

func fromSubmission(sub *providers.Submission) *Submission {
	if sub == nil {
		return nil
	}
	return &Submission{
		TaskID: sub.TaskID,
		Status: TaskStatus(sub.Status),
	}
}

func toProviderConfig(config *ProviderConfig) *providers.ProviderConfig {
	if config == nil {
		return nil
	}
	return &providers.ProviderConfig{
		BaseURL:       config.BaseURL,
		APIKey:        config.APIKey,
		SecretKey:     config.SecretKey,
		Timeout:       config.Timeout,
		StatusTimeout: config.StatusTimeout,
		MaxRetries:    config.MaxRetries,
		Extra:         config.Extra,
	}
}
