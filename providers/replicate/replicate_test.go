package replicate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feitianbubu/genmedia/providers"
)

func newTestProvider(t *testing.T, baseURL string, maxRetries int) *Provider {
	t.Helper()
	p, err := New(&providers.ProviderConfig{
		BaseURL:    baseURL,
		APIKey:     "test-token",
		MaxRetries: maxRetries,
	})
	require.NoError(t, err)
	// tests must not sleep through real backoff
	p.rc.Backoff = func(_, _ time.Duration, _ int, _ *http.Response) time.Duration { return 0 }
	return p
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(&providers.ProviderConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, providers.ErrInvalidConfiguration)

	_, err = New(nil)
	assert.ErrorIs(t, err, providers.ErrInvalidConfiguration)
}

func TestExpBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, expBackoff(0, 0, 0, nil))
	assert.Equal(t, 4*time.Second, expBackoff(0, 0, 1, nil))
	assert.Equal(t, 8*time.Second, expBackoff(0, 0, 2, nil))
}

func TestGenerateImageRetriesServerErrors(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(prediction{ID: "pred-1", Status: "starting"})
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, 3)
	sub, err := p.GenerateImage(context.Background(), &providers.GenerationRequest{
		Prompt: "a red fox",
		Model:  "some-version-id",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "pred-1", sub.TaskID)
	assert.Equal(t, providers.TaskStatusProcessing, sub.Status)
}

func TestGenerateImageDoesNotRetryClientErrors(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"invalid version"}`))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, 3)
	_, err := p.GenerateImage(context.Background(), &providers.GenerationRequest{
		Prompt: "a red fox",
		Model:  "bad-version",
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)

	apiErr := &providers.APIError{}
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "invalid version")
}

func TestGenerateImageRequiresModel(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, 0)
	_, err := p.GenerateImage(context.Background(), &providers.GenerationRequest{Prompt: "a red fox"})

	validationErr := &providers.ValidationError{}
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "model", validationErr.Field)
	assert.Zero(t, attempts)
}

func TestCreatePredictionRouting(t *testing.T) {
	var gotPath string
	var gotBody createPredictionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(prediction{ID: "pred-2", Status: "starting"})
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, 0)

	// owner/name slug goes through the model-scoped endpoint
	_, err := p.GenerateImage(context.Background(), &providers.GenerationRequest{
		Prompt: "a red fox",
		Model:  "black-forest-labs/flux-1.1-pro",
	})
	require.NoError(t, err)
	assert.Equal(t, "/models/black-forest-labs/flux-1.1-pro/predictions", gotPath)
	assert.Empty(t, gotBody.Version)

	// bare identifier is treated as a version
	_, err = p.GenerateVideo(context.Background(), &providers.GenerationRequest{
		Prompt:   "a red fox running",
		Model:    "abc123",
		Duration: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, "/predictions", gotPath)
	assert.Equal(t, "abc123", gotBody.Version)
	assert.Equal(t, float64(4), gotBody.Input["duration"])
}

func TestGenerateVideoFromImageInjectsImage(t *testing.T) {
	var gotBody createPredictionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(prediction{ID: "pred-3", Status: "starting"})
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, 0)
	_, err := p.GenerateVideoFromImage(context.Background(), &providers.GenerationRequest{
		Prompt: "animate this",
		Model:  "abc123",
		Image:  "https://example.com/cat.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/cat.jpg", gotBody.Input["image"])
}

func TestBuildInputMergesExtra(t *testing.T) {
	p := newTestProvider(t, "http://unused", 0)
	seed := 42
	input := p.buildInput(&providers.GenerationRequest{
		Prompt:         "a red fox",
		NegativePrompt: "blurry",
		AspectRatio:    "16:9",
		Seed:           &seed,
		Extra:          map[string]interface{}{"guidance_scale": 7.5},
	})

	assert.Equal(t, "a red fox", input["prompt"])
	assert.Equal(t, "blurry", input["negative_prompt"])
	assert.Equal(t, "16:9", input["aspect_ratio"])
	assert.Equal(t, 42, input["seed"])
	assert.Equal(t, 7.5, input["guidance_scale"])
}

func TestCheckStatus(t *testing.T) {
	responses := map[string]string{
		"/predictions/done":   `{"id":"done","status":"succeeded","output":["https://cdn.example.com/out.png"]}`,
		"/predictions/single": `{"id":"single","status":"succeeded","output":"https://cdn.example.com/out.mp4"}`,
		"/predictions/broken": `{"id":"broken","status":"failed","error":"NSFW content detected"}`,
		"/predictions/busy":   `{"id":"busy","status":"processing"}`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := responses[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(body))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, 0)
	ctx := context.Background()

	status, err := p.CheckStatus(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, providers.TaskStatusSucceeded, status.Status)
	assert.Equal(t, "https://cdn.example.com/out.png", status.Output)
	assert.Empty(t, status.Error)
	assert.NotEmpty(t, status.Raw)

	status, err = p.CheckStatus(ctx, "single")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/out.mp4", status.Output)

	status, err = p.CheckStatus(ctx, "broken")
	require.NoError(t, err)
	assert.Equal(t, providers.TaskStatusFailed, status.Status)
	assert.Equal(t, "NSFW content detected", status.Error)
	assert.Empty(t, status.Output)

	status, err = p.CheckStatus(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, providers.TaskStatusProcessing, status.Status)
}

func TestCheckStatusIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"done","status":"succeeded","output":"https://cdn.example.com/out.png"}`))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, 0)
	first, err := p.CheckStatus(context.Background(), "done")
	require.NoError(t, err)
	second, err := p.CheckStatus(context.Background(), "done")
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Output, second.Output)
	assert.Equal(t, first.Error, second.Error)
}

func TestDownloadResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("image-bytes"))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, 0)

	data, err := p.DownloadResult(context.Background(), server.URL+"/out.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), data)

	_, err = p.DownloadResult(context.Background(), server.URL+"/missing")
	downloadErr := &providers.DownloadError{}
	require.ErrorAs(t, err, &downloadErr)
	assert.Equal(t, http.StatusNotFound, downloadErr.StatusCode)
}

func TestFeatures(t *testing.T) {
	p := newTestProvider(t, "http://unused", 0)
	assert.True(t, p.SupportsFeature(providers.FeatureTextToImage))
	assert.True(t, p.SupportsFeature(providers.FeatureTextToVideo))
	assert.True(t, p.SupportsFeature(providers.FeatureImageToVideo))
	assert.False(t, p.SupportsFeature(providers.Feature("audio-generation")))
}
