package imagen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/feitianbubu/genmedia/providers"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "imagen-4.0-generate-001"

	// maxImages is a hard vendor ceiling, applied regardless of caller input
	maxImages = 4
)

// Provider implements the providers.Provider interface for Google Imagen.
// Imagen is fully synchronous: the finished image comes back in the same
// response as the generation call, so the task handle is the resolved
// output locator and CheckStatus is always already terminal.
type Provider struct {
	config        *providers.ProviderConfig
	client        *http.Client
	baseURL       string
	apiKey        string
	submitTimeout time.Duration
}

var features = []providers.Feature{
	providers.FeatureTextToImage,
}

type predictRequest struct {
	Instances  []predictInstance      `json:"instances"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
		MimeType           string `json:"mimeType,omitempty"`
		URL                string `json:"url,omitempty"`
		GcsURI             string `json:"gcsUri,omitempty"`
	} `json:"predictions"`
}

// New creates a new Imagen provider instance
func New(config *providers.ProviderConfig) (*Provider, error) {
	if config == nil {
		return nil, providers.ErrInvalidConfiguration
	}
	if config.APIKey == "" {
		return nil, errors.Wrap(providers.ErrInvalidConfiguration, "imagen API key is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	submitTimeout := config.Timeout
	if submitTimeout == 0 {
		submitTimeout = 2 * time.Minute
	}

	return &Provider{
		config:        config,
		client:        &http.Client{},
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		apiKey:        config.APIKey,
		submitTimeout: submitTimeout,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "imagen"
}

// Features returns the capability tags for Imagen
func (p *Provider) Features() []providers.Feature {
	return append([]providers.Feature{}, features...)
}

func (p *Provider) SupportsFeature(f providers.Feature) bool {
	return providers.HasFeature(features, f)
}

// GenerateImage performs the synchronous generation call and returns an
// already-terminal submission whose handle is the output locator
func (p *Provider) GenerateImage(ctx context.Context, req *providers.GenerationRequest) (*providers.Submission, error) {
	model := req.Model
	if model == "" {
		model = defaultModel
	}

	params := map[string]interface{}{
		"numberOfImages": imageCount(req.NumImages),
	}
	if req.AspectRatio != "" {
		params["aspectRatio"] = req.AspectRatio
	}
	if req.Seed != nil {
		params["seed"] = *req.Seed
	}
	if req.PersonMode != "" {
		params["personGeneration"] = req.PersonMode
	}

	body := predictRequest{
		Instances:  []predictInstance{{Prompt: buildPrompt(req)}},
		Parameters: params,
	}

	ctx, cancel := context.WithTimeout(ctx, p.submitTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/models/%s:predict?key=%s", p.baseURL, model, url.QueryEscape(p.apiKey))
	respBody, err := p.doRequest(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}

	locator, err := extractLocator(respBody)
	if err != nil {
		return nil, err
	}

	return &providers.Submission{
		TaskID: locator,
		Status: providers.TaskStatusSucceeded,
	}, nil
}

// GenerateVideo always fails: Imagen has no video capability
func (p *Provider) GenerateVideo(_ context.Context, _ *providers.GenerationRequest) (*providers.Submission, error) {
	return providers.Unsupported(p.Name(), providers.FeatureTextToVideo)
}

// GenerateVideoFromImage always fails: Imagen has no video capability
func (p *Provider) GenerateVideoFromImage(_ context.Context, _ *providers.GenerationRequest) (*providers.Submission, error) {
	return providers.Unsupported(p.Name(), providers.FeatureImageToVideo)
}

// CheckStatus is degenerate for a synchronous provider: the handle is
// already the resolved output, so it echoes back a succeeded status
func (p *Provider) CheckStatus(_ context.Context, taskID string) (*providers.GenerationStatus, error) {
	return &providers.GenerationStatus{
		TaskID: taskID,
		Status: providers.TaskStatusSucceeded,
		Output: taskID,
	}, nil
}

// DownloadResult decodes data URIs locally and fetches anything else
func (p *Provider) DownloadResult(ctx context.Context, locator string) ([]byte, error) {
	if strings.HasPrefix(locator, "data:") {
		return decodeDataURI(locator)
	}

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

func (p *Provider) doRequest(ctx context.Context, endpoint string, body interface{}) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

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

// buildPrompt appends the negative prompt as a plain-text suffix because
// this endpoint has no dedicated negative-prompt parameter
func buildPrompt(req *providers.GenerationRequest) string {
	if req.NegativePrompt == "" {
		return req.Prompt
	}
	return fmt.Sprintf("%s. Avoid: %s", req.Prompt, req.NegativePrompt)
}

// imageCount caps the requested image count at the vendor ceiling
func imageCount(requested int) int {
	if requested <= 0 {
		return 1
	}
	if requested > maxImages {
		return maxImages
	}
	return requested
}

// extractLocator prefers inline base64 re-encoded as a data URI, falling
// back to an external URL field when base64 is absent
func extractLocator(respBody []byte) (string, error) {
	var resp predictResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", errors.Wrap(err, "failed to decode predict response")
	}
	if len(resp.Predictions) == 0 {
		return "", &providers.APIError{Provider: "imagen", Message: "no predictions returned", Body: string(respBody)}
	}

	pred := resp.Predictions[0]
	if pred.BytesBase64Encoded != "" {
		mimeType := pred.MimeType
		if mimeType == "" {
			mimeType = "image/png"
		}
		return fmt.Sprintf("data:%s;base64,%s", mimeType, pred.BytesBase64Encoded), nil
	}
	if pred.URL != "" {
		return pred.URL, nil
	}
	if pred.GcsURI != "" {
		return pred.GcsURI, nil
	}
	return "", &providers.APIError{Provider: "imagen", Message: "prediction carries no image payload", Body: string(respBody)}
}

// decodeDataURI extracts the raw bytes from a data: URI locator
func decodeDataURI(locator string) ([]byte, error) {
	idx := strings.Index(locator, "base64,")
	if idx < 0 {
		return nil, &providers.DownloadError{Locator: locator, Message: "data URI is not base64 encoded"}
	}
	data, err := base64.StdEncoding.DecodeString(locator[idx+len("base64,"):])
	if err != nil {
		return nil, &providers.DownloadError{Locator: locator, Message: err.Error()}
	}
	return data, nil
}
