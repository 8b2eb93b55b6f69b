package imagen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feitianbubu/genmedia/providers"
)

func newTestProvider(t *testing.T, baseURL string) *Provider {
	t.Helper()
	p, err := New(&providers.ProviderConfig{
		BaseURL: baseURL,
		APIKey:  "test-key",
	})
	require.NoError(t, err)
	return p
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(&providers.ProviderConfig{})
	assert.ErrorIs(t, err, providers.ErrInvalidConfiguration)
}

func TestGenerateImageCapsImageCount(t *testing.T) {
	var gotParams map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Parameters map[string]interface{} `json:"parameters"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		gotParams = body.Parameters
		w.Write([]byte(`{"predictions":[{"bytesBase64Encoded":"aGVsbG8=","mimeType":"image/png"}]}`))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	_, err := p.GenerateImage(context.Background(), &providers.GenerationRequest{
		Prompt:    "a lighthouse",
		NumImages: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(4), gotParams["numberOfImages"])
}

func TestImageCount(t *testing.T) {
	assert.Equal(t, 1, imageCount(0))
	assert.Equal(t, 1, imageCount(-3))
	assert.Equal(t, 3, imageCount(3))
	assert.Equal(t, 4, imageCount(4))
	assert.Equal(t, 4, imageCount(10))
}

func TestGenerateImageReturnsDataURI(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("image-bytes"))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"predictions": []map[string]string{{
				"bytesBase64Encoded": payload,
				"mimeType":           "image/png",
			}},
		})
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	sub, err := p.GenerateImage(context.Background(), &providers.GenerationRequest{Prompt: "a lighthouse"})
	require.NoError(t, err)

	// synchronous provider: the handle is the resolved output locator
	assert.Equal(t, providers.TaskStatusSucceeded, sub.Status)
	assert.True(t, strings.HasPrefix(sub.TaskID, "data:image/png;base64,"), sub.TaskID)

	// and the handle round-trips through CheckStatus unchanged
	status, err := p.CheckStatus(context.Background(), sub.TaskID)
	require.NoError(t, err)
	assert.Equal(t, providers.TaskStatusSucceeded, status.Status)
	assert.Equal(t, sub.TaskID, status.Output)

	data, err := p.DownloadResult(context.Background(), sub.TaskID)
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), data)
}

func TestGenerateImageURLFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"predictions":[{"url":"https://cdn.example.com/out.png"}]}`))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	sub, err := p.GenerateImage(context.Background(), &providers.GenerationRequest{Prompt: "a lighthouse"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/out.png", sub.TaskID)
}

func TestGenerateImageAppendsNegativePrompt(t *testing.T) {
	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Instances []struct {
				Prompt string `json:"prompt"`
			} `json:"instances"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		gotPrompt = body.Instances[0].Prompt
		w.Write([]byte(`{"predictions":[{"bytesBase64Encoded":"aGVsbG8="}]}`))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	_, err := p.GenerateImage(context.Background(), &providers.GenerationRequest{
		Prompt:         "a lighthouse",
		NegativePrompt: "fog, people",
	})
	require.NoError(t, err)
	assert.Equal(t, "a lighthouse. Avoid: fog, people", gotPrompt)
}

func TestCheckStatusIdempotent(t *testing.T) {
	p := newTestProvider(t, "http://unused")

	first, err := p.CheckStatus(context.Background(), "data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	second, err := p.CheckStatus(context.Background(), "data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Output, second.Output)
	assert.Equal(t, first.Error, second.Error)
}

func TestVideoOperationsUnsupported(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)

	_, err := p.GenerateVideo(context.Background(), &providers.GenerationRequest{Prompt: "x"})
	unsupportedErr := &providers.UnsupportedOperationError{}
	require.ErrorAs(t, err, &unsupportedErr)
	assert.Equal(t, providers.FeatureTextToVideo, unsupportedErr.Feature)

	_, err = p.GenerateVideoFromImage(context.Background(), &providers.GenerationRequest{Image: "x"})
	require.ErrorAs(t, err, &unsupportedErr)
	assert.Equal(t, providers.FeatureImageToVideo, unsupportedErr.Feature)

	assert.Zero(t, attempts)
	assert.False(t, p.SupportsFeature(providers.FeatureTextToVideo))
	assert.False(t, p.SupportsFeature(providers.FeatureImageToVideo))
	assert.True(t, p.SupportsFeature(providers.FeatureTextToImage))
}

func TestDownloadResultRemoteURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote-bytes"))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	data, err := p.DownloadResult(context.Background(), server.URL+"/out.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote-bytes"), data)
}

func TestGenerateImageEmptyPredictions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"predictions":[]}`))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)
	_, err := p.GenerateImage(context.Background(), &providers.GenerationRequest{Prompt: "x"})

	apiErr := &providers.APIError{}
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Message, "no predictions")
}
