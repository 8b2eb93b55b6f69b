package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
)

// Common errors shared by vendor clients
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrTimedOut             = errors.New("request timed out")
)

// Type definitions shared by all vendor clients to avoid circular imports

// TaskStatus is the canonical lifecycle state of a generation task
type TaskStatus string

const (
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusSucceeded  TaskStatus = "succeeded"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether polling can stop for this status
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// Feature is a capability tag a provider may advertise
type Feature string

const (
	FeatureTextToImage  Feature = "text-to-image"
	FeatureTextToVideo  Feature = "text-to-video"
	FeatureImageToVideo Feature = "image-to-video"
)

// GenerationRequest represents a generation request in provider-neutral form
type GenerationRequest struct {
	Prompt         string                 `json:"prompt,omitempty"`
	NegativePrompt string                 `json:"negative_prompt,omitempty"`
	Image          string                 `json:"image,omitempty"`
	LastFrameImage string                 `json:"last_frame_image,omitempty"`
	Duration       float64                `json:"duration,omitempty"`
	AspectRatio    string                 `json:"aspect_ratio,omitempty"`
	Resolution     string                 `json:"resolution,omitempty"`
	Width          int                    `json:"width,omitempty"`
	Height         int                    `json:"height,omitempty"`
	NumImages      int                    `json:"num_images,omitempty"`
	Seed           *int                   `json:"seed,omitempty"`
	Model          string                 `json:"model,omitempty"`
	PersonMode     string                 `json:"person_mode,omitempty"`
	Extra          map[string]interface{} `json:"extra,omitempty"`
}

// Submission is the handle returned when a generation task is accepted.
// TaskID is opaque to callers; synchronous providers return an already
// terminal status with TaskID doubling as the output locator.
type Submission struct {
	TaskID string     `json:"task_id"`
	Status TaskStatus `json:"status"`
}

// GenerationStatus is the normalized status envelope for a task.
// Output is set only when Status is succeeded, Error only when failed.
// Raw carries the provider's unmodified response for diagnostics.
type GenerationStatus struct {
	TaskID string          `json:"task_id"`
	Status TaskStatus      `json:"status"`
	Output string          `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

// ProviderConfig holds configuration for a specific provider
type ProviderConfig struct {
	BaseURL       string            `json:"base_url"`
	APIKey        string            `json:"api_key"`
	SecretKey     string            `json:"secret_key,omitempty"`
	Timeout       time.Duration     `json:"timeout"`
	StatusTimeout time.Duration     `json:"status_timeout"`
	MaxRetries    int               `json:"max_retries"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// Provider is the contract every vendor client implements
type Provider interface {
	Name() string
	Features() []Feature
	SupportsFeature(f Feature) bool
	GenerateImage(ctx context.Context, req *GenerationRequest) (*Submission, error)
	GenerateVideo(ctx context.Context, req *GenerationRequest) (*Submission, error)
	GenerateVideoFromImage(ctx context.Context, req *GenerationRequest) (*Submission, error)
	CheckStatus(ctx context.Context, taskID string) (*GenerationStatus, error)
	DownloadResult(ctx context.Context, locator string) ([]byte, error)
}

// HasFeature reports whether f is in the feature set
func HasFeature(features []Feature, f Feature) bool {
	return lo.Contains(features, f)
}

// ValidationError represents a request validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// APIError represents an error returned by a vendor API, either an HTTP
// failure or a vendor-level error code carried inside a 2xx response
type APIError struct {
	Provider   string `json:"provider,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Code       int    `json:"code,omitempty"`
	Message    string `json:"message"`
	Body       string `json:"body,omitempty"`
}

func (e *APIError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] API error %d: %s", e.Provider, e.errorCode(), e.Message)
	}
	return fmt.Sprintf("API error %d: %s", e.errorCode(), e.Message)
}

func (e *APIError) errorCode() int {
	if e.Code != 0 {
		return e.Code
	}
	return e.StatusCode
}

// UnsupportedOperationError is returned when a caller invokes a capability
// the provider does not have. It is raised before any network call.
type UnsupportedOperationError struct {
	Provider string  `json:"provider"`
	Feature  Feature `json:"feature"`
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("provider %s does not support %s", e.Provider, e.Feature)
}

// DownloadError represents a failed result fetch after generation succeeded
type DownloadError struct {
	StatusCode int    `json:"status_code"`
	Locator    string `json:"locator"`
	Message    string `json:"message,omitempty"`
}

func (e *DownloadError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("download failed for %s: %s", e.Locator, e.Message)
	}
	return fmt.Sprintf("download failed for %s: status %d", e.Locator, e.StatusCode)
}

// Unsupported builds the fail-fast error for a missing capability
func Unsupported(provider string, f Feature) (*Submission, error) {
	return nil, &UnsupportedOperationError{Provider: provider, Feature: f}
}
