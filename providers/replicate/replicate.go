package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/feitianbubu/genmedia/providers"
)

const defaultBaseURL = "https://api.replicate.com/v1"

// Provider implements the providers.Provider interface for Replicate
type Provider struct {
	config        *providers.ProviderConfig
	rc            *retryablehttp.Client
	hc            *http.Client
	baseURL       string
	token         string
	submitTimeout time.Duration
	statusTimeout time.Duration
}

var features = []providers.Feature{
	providers.FeatureTextToImage,
	providers.FeatureTextToVideo,
	providers.FeatureImageToVideo,
}

// prediction represents Replicate's prediction resource
type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
}

type createPredictionRequest struct {
	Version string                 `json:"version,omitempty"`
	Input   map[string]interface{} `json:"input"`
}

// New creates a new Replicate provider instance
func New(config *providers.ProviderConfig) (*Provider, error) {
	if config == nil {
		return nil, providers.ErrInvalidConfiguration
	}
	if config.APIKey == "" {
		return nil, errors.Wrap(providers.ErrInvalidConfiguration, "replicate API token is required")
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

	rc := retryablehttp.NewClient()
	rc.RetryMax = config.MaxRetries
	rc.Logger = nil
	rc.Backoff = expBackoff
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Provider{
		config:        config,
		rc:            rc,
		hc:            &http.Client{},
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		token:         config.APIKey,
		submitTimeout: submitTimeout,
		statusTimeout: statusTimeout,
	}, nil
}

// expBackoff sleeps 2^n seconds before retry n (2s, 4s, 8s, ...)
func expBackoff(_, _ time.Duration, attemptNum int, _ *http.Response) time.Duration {
	return time.Duration(1<<uint(attemptNum+1)) * time.Second
}

// checkRetry retries server errors, rate limiting and network failures.
// Any other 4xx means a malformed request and is terminal.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return true, nil
	}
	return false, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "replicate"
}

// Features returns the capability tags for Replicate
func (p *Provider) Features() []providers.Feature {
	return append([]providers.Feature{}, features...)
}

func (p *Provider) SupportsFeature(f providers.Feature) bool {
	return providers.HasFeature(features, f)
}

// GenerateImage submits an image prediction
func (p *Provider) GenerateImage(ctx context.Context, req *providers.GenerationRequest) (*providers.Submission, error) {
	input := p.buildInput(req)
	if req.Width > 0 {
		input["width"] = req.Width
	}
	if req.Height > 0 {
		input["height"] = req.Height
	}
	return p.createPrediction(ctx, req.Model, input)
}

// GenerateVideo submits a video prediction
func (p *Provider) GenerateVideo(ctx context.Context, req *providers.GenerationRequest) (*providers.Submission, error) {
	input := p.buildInput(req)
	if req.Duration > 0 {
		input["duration"] = req.Duration
	}
	return p.createPrediction(ctx, req.Model, input)
}

// GenerateVideoFromImage is not a distinct Replicate operation: the source
// image is injected into the video input map and the model interprets it
func (p *Provider) GenerateVideoFromImage(ctx context.Context, req *providers.GenerationRequest) (*providers.Submission, error) {
	input := p.buildInput(req)
	if req.Duration > 0 {
		input["duration"] = req.Duration
	}
	if req.Image != "" {
		input["image"] = req.Image
	}
	return p.createPrediction(ctx, req.Model, input)
}

// buildInput merges the required fields with caller-supplied free-form parameters
func (p *Provider) buildInput(req *providers.GenerationRequest) map[string]interface{} {
	input := map[string]interface{}{
		"prompt": req.Prompt,
	}
	if req.NegativePrompt != "" {
		input["negative_prompt"] = req.NegativePrompt
	}
	if req.AspectRatio != "" {
		input["aspect_ratio"] = req.AspectRatio
	}
	if req.Seed != nil {
		input["seed"] = *req.Seed
	}
	for k, v := range req.Extra {
		input[k] = v
	}
	return input
}

func (p *Provider) createPrediction(ctx context.Context, model string, input map[string]interface{}) (*providers.Submission, error) {
	if model == "" {
		return nil, &providers.ValidationError{Field: "model", Message: "replicate requires a model or version identifier"}
	}

	var url string
	body := createPredictionRequest{Input: input}
	if strings.Contains(model, "/") {
		// owner/name slug goes through the model-scoped endpoint
		url = fmt.Sprintf("%s/models/%s/predictions", p.baseURL, model)
	} else {
		url = fmt.Sprintf("%s/predictions", p.baseURL)
		body.Version = model
	}

	ctx, cancel := context.WithTimeout(ctx, p.submitTimeout)
	defer cancel()

	respBody, err := p.doRequest(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}

	var pred prediction
	if err := json.Unmarshal(respBody, &pred); err != nil {
		return nil, errors.Wrap(err, "failed to decode prediction response")
	}

	return &providers.Submission{
		TaskID: pred.ID,
		Status: convertStatus(pred.Status),
	}, nil
}

// CheckStatus retrieves the prediction resource and normalizes its state
func (p *Provider) CheckStatus(ctx context.Context, taskID string) (*providers.GenerationStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, p.statusTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/predictions/%s", p.baseURL, taskID)
	respBody, err := p.doRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var pred prediction
	if err := json.Unmarshal(respBody, &pred); err != nil {
		return nil, errors.Wrap(err, "failed to decode prediction response")
	}

	status := &providers.GenerationStatus{
		TaskID: pred.ID,
		Status: convertStatus(pred.Status),
		Raw:    respBody,
	}
	switch status.Status {
	case providers.TaskStatusSucceeded:
		status.Output = firstOutput(pred.Output)
	case providers.TaskStatusFailed:
		status.Error = pred.Error
		if status.Error == "" {
			status.Error = fmt.Sprintf("prediction %s", pred.Status)
		}
	}
	return status, nil
}

// DownloadResult fetches the generated artifact
func (p *Provider) DownloadResult(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := p.hc.Do(req)
	if err != nil {
		return nil, &providers.DownloadError{Locator: locator, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &providers.DownloadError{StatusCode: resp.StatusCode, Locator: locator}
	}
	return io.ReadAll(resp.Body)
}

// doRequest performs an authenticated call through the retrying client
func (p *Provider) doRequest(ctx context.Context, method, url string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request body")
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.rc.Do(req)
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
			Provider:   "replicate",
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       string(respBody),
		}
	}
	return respBody, nil
}

// convertStatus converts Replicate prediction status to the canonical set
func convertStatus(status string) providers.TaskStatus {
	switch status {
	case "succeeded":
		return providers.TaskStatusSucceeded
	case "failed", "canceled":
		return providers.TaskStatusFailed
	default:
		// starting, processing, queued
		return providers.TaskStatusProcessing
	}
}

// firstOutput extracts the output locator, which Replicate returns either
// as a plain string or as an array of strings
func firstOutput(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}
