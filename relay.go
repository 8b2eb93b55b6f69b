package genmedia

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// Relay is a raw-JSON inbound surface for host applications that proxy
// generation requests without linking against the typed API. It parses a
// submit body, dispatches it to a provider and returns a uniform envelope
// for both submission and status fetches.
type Relay struct {
	client *Client
}

// RelayError carries an HTTP-mappable error for the host application.
// LocalError distinguishes failures produced here from vendor failures.
type RelayError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	LocalError bool   `json:"local_error"`
}

func (e *RelayError) Error() string {
	return e.Message
}

// SubmitRequest is the inbound submit body
type SubmitRequest struct {
	Kind           Kind                   `json:"kind"`
	Prompt         string                 `json:"prompt,omitempty"`
	NegativePrompt string                 `json:"negative_prompt,omitempty"`
	Model          string                 `json:"model,omitempty"`
	Image          string                 `json:"image,omitempty"`
	Duration       float64                `json:"duration,omitempty"`
	AspectRatio    string                 `json:"aspect_ratio,omitempty"`
	Resolution     string                 `json:"resolution,omitempty"`
	NumImages      int                    `json:"num_images,omitempty"`
	Seed           *int                   `json:"seed,omitempty"`
	Extra          map[string]interface{} `json:"extra,omitempty"`
}

// RelayEnvelope is the uniform outbound wrapper
type RelayEnvelope struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Data    *GenerationStatus `json:"data,omitempty"`
}

// NewRelay creates a relay over a provider
func NewRelay(provider Provider) *Relay {
	return &Relay{client: NewClientWithProvider(provider)}
}

// Submit parses and dispatches a raw submit body. On success the returned
// bytes hold a RelayEnvelope with the task handle.
func (r *Relay) Submit(ctx context.Context, body []byte) (string, []byte, *RelayError) {
	var req SubmitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", nil, &RelayError{
			StatusCode: http.StatusBadRequest,
			Code:       "invalid_request",
			Message:    "failed to parse request: " + err.Error(),
			LocalError: true,
		}
	}

	kind := req.Kind
	if kind == "" {
		kind = KindVideo
	}

	sub, err := r.client.Generate(ctx, kind, &GenerationRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Model:          req.Model,
		Image:          req.Image,
		Duration:       req.Duration,
		AspectRatio:    req.AspectRatio,
		Resolution:     req.Resolution,
		NumImages:      req.NumImages,
		Seed:           req.Seed,
		Extra:          req.Extra,
	})
	if err != nil {
		return "", nil, toRelayError(err)
	}

	responseBody, marshalErr := json.Marshal(RelayEnvelope{
		Message: "success",
		Data: &GenerationStatus{
			TaskID: sub.TaskID,
			Status: sub.Status,
		},
	})
	if marshalErr != nil {
		return "", nil, &RelayError{
			StatusCode: http.StatusInternalServerError,
			Code:       "marshal_response_failed",
			Message:    marshalErr.Error(),
			LocalError: true,
		}
	}
	return sub.TaskID, responseBody, nil
}

// Fetch resolves a task handle into an enveloped status
func (r *Relay) Fetch(ctx context.Context, taskID string) ([]byte, *RelayError) {
	status, err := r.client.CheckStatus(ctx, taskID)
	if err != nil {
		return nil, toRelayError(err)
	}

	responseBody, marshalErr := json.Marshal(RelayEnvelope{
		Message: "success",
		Data:    status,
	})
	if marshalErr != nil {
		return nil, &RelayError{
			StatusCode: http.StatusInternalServerError,
			Code:       "marshal_response_failed",
			Message:    marshalErr.Error(),
			LocalError: true,
		}
	}
	return responseBody, nil
}

// toRelayError maps core errors onto HTTP-shaped relay errors
func toRelayError(err error) *RelayError {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return &RelayError{
			StatusCode: http.StatusBadRequest,
			Code:       "invalid_request",
			Message:    validationErr.Error(),
			LocalError: true,
		}
	}

	var unsupportedErr *UnsupportedOperationError
	if errors.As(err, &unsupportedErr) {
		return &RelayError{
			StatusCode: http.StatusBadRequest,
			Code:       "unsupported_operation",
			Message:    unsupportedErr.Error(),
			LocalError: true,
		}
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		statusCode := apiErr.StatusCode
		if statusCode == 0 {
			statusCode = http.StatusBadGateway
		}
		return &RelayError{
			StatusCode: statusCode,
			Code:       "provider_error",
			Message:    apiErr.Error(),
		}
	}

	return &RelayError{
		StatusCode: http.StatusInternalServerError,
		Code:       "request_failed",
		Message:    err.Error(),
		LocalError: true,
	}
}
