package oracle

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/optimo/pkg/config"
	appErrors "github.com/noah-isme/optimo/pkg/errors"
)

func testConfig(baseURL string) config.RegistrarConfig {
	return config.RegistrarConfig{
		Model:       "gemini-2.0-flash",
		APIKey:      "test-key",
		BaseURL:     baseURL,
		Temperature: 0.1,
		MaxTokens:   2000,
		Timeout:     5 * time.Second,
	}
}

func TestDecideSendsStructuredRequest(t *testing.T) {
	var captured struct {
		path  string
		query string
		body  map[string]any
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.query = r.URL.RawQuery
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &captured.body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"[{\"action\":\"SPLIT\",\"section_id\":\"S1\",\"reason\":\"r\"}]"}]}}]}`))
	}))
	defer srv.Close()

	client := NewGeminiClient(testConfig(srv.URL), nil)
	raw, err := client.Decide(context.Background(), "balance the sections")
	require.NoError(t, err)
	assert.Contains(t, raw, `"action":"SPLIT"`)

	assert.Equal(t, "/gemini-2.0-flash:generateContent", captured.path)
	assert.Equal(t, "key=test-key", captured.query)

	genConfig, ok := captured.body["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.1, genConfig["temperature"])
	assert.Equal(t, "application/json", genConfig["responseMimeType"])
	assert.NotNil(t, genConfig["responseSchema"])

	contents := captured.body["contents"].([]any)
	part := contents[0].(map[string]any)["parts"].([]any)[0].(map[string]any)
	assert.Equal(t, "balance the sections", part["text"])
}

func TestDecideNon200IsOracleFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewGeminiClient(testConfig(srv.URL), nil)
	_, err := client.Decide(context.Background(), "prompt")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrOracle))
}

func TestDecideEmptyCandidatesIsOracleFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	client := NewGeminiClient(testConfig(srv.URL), nil)
	_, err := client.Decide(context.Background(), "prompt")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrOracle))
}

func TestDecideUnreachableHostIsOracleFailure(t *testing.T) {
	client := NewGeminiClient(testConfig("http://127.0.0.1:1"), nil)
	_, err := client.Decide(context.Background(), "prompt")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrOracle))
}

func TestDecideRespectsContextCancellation(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewGeminiClient(testConfig(srv.URL), nil)
	_, err := client.Decide(ctx, "prompt")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrOracle))
}
