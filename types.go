package genmedia

import (
	"encoding/json"
	"time"
)

// TaskStatus represents the canonical status of a generation task
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

// Kind selects which generation operation a request targets
type Kind string

const (
	KindImage          Kind = "image"
	KindVideo          Kind = "video"
	KindVideoFromImage Kind = "video-from-image"
)

// Feature returns the capability tag a kind requires
func (k Kind) Feature() Feature {
	switch k {
	case KindImage:
		return FeatureTextToImage
	case KindVideoFromImage:
		return FeatureImageToVideo
	default:
		return FeatureTextToVideo
	}
}

// GenerationRequest represents a generation request
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
// The TaskID is opaque: its shape is provider-specific and must never be
// parsed by callers, only passed back to the provider that issued it.
type Submission struct {
	TaskID string     `json:"task_id"`
	Status TaskStatus `json:"status"`
}

// GenerationStatus is the normalized status envelope for a task.
// Output is set only when Status is succeeded, Error only when failed;
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

// ProviderType represents the supported generation providers
type ProviderType string

const (
	ProviderReplicate ProviderType = "replicate"
	ProviderVeo       ProviderType = "veo"
	ProviderImagen    ProviderType = "imagen"
	ProviderKling     ProviderType = "kling"
)
