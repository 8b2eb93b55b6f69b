package genmedia

import "context"

// Provider defines the interface that all generation providers implement.
// Providers differ in completion model: asynchronous ones return a handle
// that must be polled with CheckStatus, synchronous ones return an already
// terminal submission on the first call. Callers must always go through
// CheckStatus rather than assume one or the other.
type Provider interface {
	// Name returns the provider name
	Name() string

	// Features returns the provider's fixed capability tags
	Features() []Feature

	// SupportsFeature reports whether the provider advertises a capability
	SupportsFeature(f Feature) bool

	// GenerateImage submits a text-to-image generation task
	GenerateImage(ctx context.Context, req *GenerationRequest) (*Submission, error)

	// GenerateVideo submits a text-to-video generation task
	GenerateVideo(ctx context.Context, req *GenerationRequest) (*Submission, error)

	// GenerateVideoFromImage submits an image-to-video generation task
	GenerateVideoFromImage(ctx context.Context, req *GenerationRequest) (*Submission, error)

	// CheckStatus retrieves the normalized status of a task. It is
	// idempotent and side-effect-free; a terminal task keeps returning
	// the same result.
	CheckStatus(ctx context.Context, taskID string) (*GenerationStatus, error)

	// DownloadResult fetches the final artifact bytes for a locator
	DownloadResult(ctx context.Context, locator string) ([]byte, error)
}
