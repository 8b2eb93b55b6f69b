package veo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/feitianbubu/genmedia/providers"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "veo-3.0-generate-001"
)

// Provider implements the providers.Provider interface for Google Veo.
// Veo is fully asynchronous: submission returns a long-running operation
// resource path which is polled verbatim.
type Provider struct {
	config        *providers.ProviderConfig
	client        *http.Client
	baseURL       string
	apiKey        string
	submitTimeout time.Duration
	statusTimeout time.Duration
}

var features = []providers.Feature{
	providers.FeatureTextToVideo,
	providers.FeatureImageToVideo,
}

// inlineImage is Veo's base64-embedded image input
type inlineImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType,omitempty"`
}

type instance struct {
	Prompt    string       `json:"prompt"`
	Image     *inlineImage `json:"image,omitempty"`
	LastFrame *inlineImage `json:"lastFrame,omitempty"`
}

type submitRequest struct {
	Instances  []instance             `json:"instances"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

type submitResponse struct {
	Name string `json:"name"`
}

// operation mirrors the vendor long-running-operation resource
type operation struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

// New creates a new Veo provider instance
func New(config *providers.ProviderConfig) (*Provider, error) {
	if config == nil {
		return nil, providers.ErrInvalidConfiguration
	}
	if config.APIKey == "" {
		return nil, errors.Wrap(providers.ErrInvalidConfiguration, "veo API key is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	submitTimeout := config.Timeout
	if submitTimeout == 0 {
		submitTimeout = 2 * time.Minute
	}
	statusTimeout := config.StatusTimeout
	if statusTimeout == 0 {
		statusTimeout = 30 * time.Second
	}

	return &Provider{
		config:        config,
		client:        &http.Client{},
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		apiKey:        config.APIKey,
		submitTimeout: submitTimeout,
		statusTimeout: statusTimeout,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "veo"
}

// Features returns the capability tags for Veo
func (p *Provider) Features() []providers.Feature {
	return append([]providers.Feature{}, features...)
}

func (p *Provider) SupportsFeature(f providers.Feature) bool {
	return providers.HasFeature(features, f)
}

// GenerateImage always fails: Veo has no image capability
func (p *Provider) GenerateImage(_ context.Context, _ *providers.GenerationRequest) (*providers.Submission, error) {
	return providers.Unsupported(p.Name(), providers.FeatureTextToImage)
}

// GenerateVideo submits a text-to-video long-running operation
func (p *Provider) GenerateVideo(ctx context.Context, req *providers.GenerationRequest) (*providers.Submission, error) {
	inst := instance{Prompt: req.Prompt}
	return p.submit(ctx, req, inst)
}

// GenerateVideoFromImage submits an image-to-video operation with the
// source image base64-embedded inline in the request body
func (p *Provider) GenerateVideoFromImage(ctx context.Context, req *providers.GenerationRequest) (*providers.Submission, error) {
	if req.Image == "" {
		return nil, &providers.ValidationError{Field: "image", Message: "source image is required"}
	}
	inst := instance{
		Prompt: req.Prompt,
		Image:  &inlineImage{BytesBase64Encoded: req.Image, MimeType: imageMimeType(req)},
	}
	if req.LastFrameImage != "" {
		inst.LastFrame = &inlineImage{BytesBase64Encoded: req.LastFrameImage, MimeType: imageMimeType(req)}
	}
	return p.submit(ctx, req, inst)
}

func (p *Provider) submit(ctx context.Context, req *providers.GenerationRequest, inst instance) (*providers.Submission, error) {
	model := req.Model
	if model == "" {
		model = defaultModel
	}

	body := submitRequest{
		Instances:  []instance{inst},
		Parameters: p.buildParameters(model, req),
	}

	ctx, cancel := context.WithTimeout(ctx, p.submitTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:predictLongRunning", p.baseURL, model)
	respBody, err := p.doRequest(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}

	var resp submitResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to decode operation response")
	}
	if resp.Name == "" {
		return nil, &providers.APIError{Provider: p.Name(), Message: "missing operation name", Body: string(respBody)}
	}

	// The operation resource path is the task handle
	return &providers.Submission{
		TaskID: resp.Name,
		Status: providers.TaskStatusProcessing,
	}, nil
}

// buildParameters shapes the parameter map for the model tier. Preview and
// veo-2.x models reject the advanced fields outright, so those are omitted
// entirely and only the negative prompt survives.
func (p *Provider) buildParameters(model string, req *providers.GenerationRequest) map[string]interface{} {
	params := map[string]interface{}{}
	if req.NegativePrompt != "" {
		params["negativePrompt"] = req.NegativePrompt
	}

	if !advancedCapable(model) {
		if len(params) == 0 {
			return nil
		}
		return params
	}

	if req.AspectRatio != "" {
		params["aspectRatio"] = req.AspectRatio
	}
	if req.Resolution != "" {
		params["resolution"] = req.Resolution
	}
	if req.Duration > 0 {
		params["durationSeconds"] = int(req.Duration)
	}
	if req.PersonMode != "" {
		params["personGeneration"] = req.PersonMode
	}
	if req.Seed != nil {
		params["seed"] = *req.Seed
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

// advancedCapable reports whether the model tier accepts the full parameter
// set. Substring matching is brittle but mirrors the vendor's own naming.
func advancedCapable(model string) bool {
	return !strings.Contains(model, "preview") && !strings.Contains(model, "veo-2")
}

// CheckStatus polls the long-running operation using the handle verbatim
// as the resource path
func (p *Provider) CheckStatus(ctx context.Context, taskID string) (*providers.GenerationStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, p.statusTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s", p.baseURL, strings.TrimPrefix(taskID, "/"))
	respBody, err := p.doRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var op operation
	if err := json.Unmarshal(respBody, &op); err != nil {
		return nil, errors.Wrap(err, "failed to decode operation response")
	}

	status := &providers.GenerationStatus{
		TaskID: taskID,
		Raw:    respBody,
	}

	switch {
	case !op.Done:
		status.Status = providers.TaskStatusProcessing
	case op.Error != nil:
		status.Status = providers.TaskStatusFailed
		status.Error = op.Error.Message
	default:
		// A done operation without a sample URI is a vendor anomaly the
		// caller has to see, so it surfaces as succeeded with empty output
		status.Status = providers.TaskStatusSucceeded
		if op.Response != nil && len(op.Response.GenerateVideoResponse.GeneratedSamples) > 0 {
			status.Output = op.Response.GenerateVideoResponse.GeneratedSamples[0].Video.URI
		}
	}
	return status, nil
}

// DownloadResult fetches the generated video from its URI
func (p *Provider) DownloadResult(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &providers.DownloadError{Locator: locator, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &providers.DownloadError{StatusCode: resp.StatusCode, Locator: locator}
	}
	return io.ReadAll(resp.Body)
}

// doRequest makes an HTTP request with the API-key header
func (p *Provider) doRequest(ctx context.Context, method, url string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request body")
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, providers.ErrTimedOut
		}
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &providers.APIError{
			Provider:   p.Name(),
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       string(respBody),
		}
	}
	return respBody, nil
}

// imageMimeType picks the mime type for inline images, defaulting to JPEG
func imageMimeType(req *providers.GenerationRequest) string {
	if req.Extra != nil {
		if mt, ok := req.Extra["mime_type"].(string); ok && mt != "" {
			return mt
		}
	}
	return "image/jpeg"
}
