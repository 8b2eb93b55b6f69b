package kling

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/feitianbubu/genmedia/providers"
)

const (
	defaultBaseURL = "https://api-singapore.klingai.com"
	defaultModel   = "kling-v2-master"

	tokenTTL       = 1800 * time.Second
	tokenClockSkew = 5 * time.Second
)

// Provider implements the providers.Provider interface for Kling AI
type Provider struct {
	config        *providers.ProviderConfig
	client        *http.Client
	baseURL       string
	accessKey     string
	secretKey     string
	submitTimeout time.Duration
	statusTimeout time.Duration
}

var features = []providers.Feature{
	providers.FeatureTextToImage,
	providers.FeatureTextToVideo,
	providers.FeatureImageToVideo,
}

// modelAliases maps caller-facing logical names to vendor model identifiers.
// Unrecognized names fall back to the default stable identifier so that
// newer logical names keep working against older deployments.
var modelAliases = map[string]string{
	"kling-1.0":  "kling-v1",
	"kling-1.6":  "kling-v1-6",
	"kling-2.0":  "kling-v2-master",
	"kling-2.1":  "kling-v2-1",
	"kling-2.6":  "kling-v2-6",
	"kling-v3.1": "kling-v3-1",
}

type videoRequest struct {
	ModelName      string `json:"model_name"`
	Prompt         string `json:"prompt,omitempty"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Image          string `json:"image,omitempty"`
	ImageTail      string `json:"image_tail,omitempty"`
	Duration       string `json:"duration,omitempty"`
	AspectRatio    string `json:"aspect_ratio,omitempty"`
	Mode           string `json:"mode,omitempty"`
}

type imageRequest struct {
	ModelName      string `json:"model_name"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	N              int    `json:"n,omitempty"`
	AspectRatio    string `json:"aspect_ratio,omitempty"`
}

// envelope is Kling's response wrapper: code 0 means success, any nonzero
// value is an application-level error distinct from the HTTP status
type envelope struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Data    taskData `json:"data"`
}

type taskData struct {
	TaskID        string      `json:"task_id"`
	TaskStatus    string      `json:"task_status"`
	TaskStatusMsg string      `json:"task_status_msg,omitempty"`
	TaskResult    *taskResult `json:"task_result,omitempty"`
}

type taskResult struct {
	Videos []struct {
		ID       string `json:"id"`
		URL      string `json:"url"`
		Duration string `json:"duration"`
	} `json:"videos,omitempty"`
	Images []struct {
		Index int    `json:"index"`
		URL   string `json:"url"`
	} `json:"images,omitempty"`
}

// New creates a new Kling provider instance. The key pair is taken from
// APIKey/SecretKey, or from APIKey in the legacy 'access_key,secret_key'
// format.
func New(config *providers.ProviderConfig) (*Provider, error) {
	if config == nil {
		return nil, providers.ErrInvalidConfiguration
	}

	accessKey, secretKey := config.APIKey, config.SecretKey
	if secretKey == "" {
		keyParts := strings.Split(config.APIKey, ",")
		if len(keyParts) != 2 {
			return nil, errors.Wrap(providers.ErrInvalidConfiguration,
				"kling requires an access/secret key pair, expected 'access_key,secret_key'")
		}
		accessKey = strings.TrimSpace(keyParts[0])
		secretKey = strings.TrimSpace(keyParts[1])
	}
	if accessKey == "" || secretKey == "" {
		return nil, errors.Wrap(providers.ErrInvalidConfiguration, "kling access and secret keys are required")
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
		accessKey:     accessKey,
		secretKey:     secretKey,
		submitTimeout: submitTimeout,
		statusTimeout: statusTimeout,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "kling"
}

// Features returns the capability tags for Kling
func (p *Provider) Features() []providers.Feature {
	return append([]providers.Feature{}, features...)
}

func (p *Provider) SupportsFeature(f providers.Feature) bool {
	return providers.HasFeature(features, f)
}

// GenerateImage submits a text-to-image task
func (p *Provider) GenerateImage(ctx context.Context, req *providers.GenerationRequest) (*providers.Submission, error) {
	body := imageRequest{
		ModelName:      resolveModel(req.Model),
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		N:              req.NumImages,
		AspectRatio:    req.AspectRatio,
	}
	return p.submit(ctx, "/v1/images/generations", body)
}

// GenerateVideo submits a text-to-video task
func (p *Provider) GenerateVideo(ctx context.Context, req *providers.GenerationRequest) (*providers.Submission, error) {
	return p.submit(ctx, "/v1/videos/text2video", p.buildVideoRequest(req))
}

// GenerateVideoFromImage submits an image-to-video task
func (p *Provider) GenerateVideoFromImage(ctx context.Context, req *providers.GenerationRequest) (*providers.Submission, error) {
	if req.Image == "" {
		return nil, &providers.ValidationError{Field: "image", Message: "source image is required"}
	}
	body := p.buildVideoRequest(req)
	body.Image = req.Image
	body.ImageTail = req.LastFrameImage
	return p.submit(ctx, "/v1/videos/image2video", body)
}

func (p *Provider) buildVideoRequest(req *providers.GenerationRequest) videoRequest {
	body := videoRequest{
		ModelName:      resolveModel(req.Model),
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Duration:       quantizeDuration(req.Duration),
		AspectRatio:    req.AspectRatio,
	}
	if req.Extra != nil {
		if mode, ok := req.Extra["mode"].(string); ok {
			body.Mode = mode
		}
	}
	return body
}

func (p *Provider) submit(ctx context.Context, path string, body interface{}) (*providers.Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, p.submitTimeout)
	defer cancel()

	env, _, err := p.doRequest(ctx, http.MethodPost, p.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	return &providers.Submission{
		TaskID: env.Data.TaskID,
		Status: convertStatus(env.Data.TaskStatus),
	}, nil
}

// CheckStatus resolves a task by ID. The ID namespace does not say which
// kind of task it names, so the video endpoint is probed first and the
// image endpoint is tried as a fallback. When both fail the video probe's
// error is surfaced because it is the more likely diagnostic.
func (p *Provider) CheckStatus(ctx context.Context, taskID string) (*providers.GenerationStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, p.statusTimeout)
	defer cancel()

	status, videoErr := p.fetchStatus(ctx, "/v1/videos/text2video/"+taskID, taskID)
	if videoErr == nil {
		return status, nil
	}

	status, imageErr := p.fetchStatus(ctx, "/v1/images/generations/"+taskID, taskID)
	if imageErr == nil {
		return status, nil
	}

	return nil, videoErr
}

func (p *Provider) fetchStatus(ctx context.Context, path, taskID string) (*providers.GenerationStatus, error) {
	env, raw, err := p.doRequest(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	status := &providers.GenerationStatus{
		TaskID: taskID,
		Status: convertStatus(env.Data.TaskStatus),
		Raw:    raw,
	}
	switch status.Status {
	case providers.TaskStatusSucceeded:
		status.Output = resultURL(env.Data.TaskResult)
	case providers.TaskStatusFailed:
		status.Error = env.Data.TaskStatusMsg
		if status.Error == "" {
			status.Error = env.Message
		}
	}
	return status, nil
}

// DownloadResult fetches the generated artifact from its URL
func (p *Provider) DownloadResult(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

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

// doRequest performs an authenticated call and checks both the HTTP status
// and the vendor code field
func (p *Provider) doRequest(ctx context.Context, method, url string, body interface{}) (*envelope, []byte, error) {
	token, err := p.mintToken()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create JWT token")
	}

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to marshal request body")
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, nil, providers.ErrTimedOut
		}
		return nil, nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &providers.APIError{
			Provider:   p.Name(),
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       string(respBody),
		}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, nil, errors.Wrap(err, "failed to decode response")
	}
	if env.Code != 0 {
		return nil, nil, &providers.APIError{
			Provider: p.Name(),
			Code:     env.Code,
			Message:  env.Message,
			Body:     string(respBody),
		}
	}
	return &env, respBody, nil
}

// mintToken creates the short-lived signed JWT Kling requires per call
func (p *Provider) mintToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": p.accessKey,
		"exp": now.Add(tokenTTL).Unix(),
		"nbf": now.Add(-tokenClockSkew).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["typ"] = "JWT"
	return token.SignedString([]byte(p.secretKey))
}

// resolveModel maps a logical model name to the vendor identifier
func resolveModel(model string) string {
	if model == "" {
		return defaultModel
	}
	if vendorID, ok := modelAliases[model]; ok {
		return vendorID
	}
	if lo.Contains(lo.Values(modelAliases), model) {
		return model
	}
	return defaultModel
}

// quantizeDuration snaps the duration to the two vendor-accepted buckets
func quantizeDuration(duration float64) string {
	if duration > 5 {
		return "10"
	}
	return "5"
}

// convertStatus converts Kling task status to the canonical set
func convertStatus(status string) providers.TaskStatus {
	switch status {
	case "succeed":
		return providers.TaskStatusSucceeded
	case "failed":
		return providers.TaskStatusFailed
	default:
		// submitted, processing
		return providers.TaskStatusProcessing
	}
}

// resultURL picks the artifact URL out of the task result
func resultURL(result *taskResult) string {
	if result == nil {
		return ""
	}
	if len(result.Videos) > 0 {
		return result.Videos[0].URL
	}
	if len(result.Images) > 0 {
		return result.Images[0].URL
	}
	return ""
}
