// Package oracle holds clients for the generative-language decision service.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/noah-isme/optimo/pkg/config"
	appErrors "github.com/noah-isme/optimo/pkg/errors"
)

// GeminiClient calls the Gemini generateContent endpoint with a schema that
// constrains the response to a JSON array of roster actions.
type GeminiClient struct {
	model       string
	apiKey      string
	baseURL     string
	temperature float64
	maxTokens   int
	client      *http.Client
	logger      *zap.Logger
}

// NewGeminiClient builds a client from registrar configuration. The request
// timeout doubles as the per-iteration ceiling on oracle latency.
func NewGeminiClient(cfg config.RegistrarConfig, logger *zap.Logger) *GeminiClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiClient{
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
	}
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64         `json:"temperature"`
	MaxOutputTokens  int             `json:"maxOutputTokens"`
	TopP             float64         `json:"topP"`
	TopK             int             `json:"topK"`
	ResponseMimeType string          `json:"responseMimeType"`
	ResponseSchema   json.RawMessage `json:"responseSchema"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// actionSchema constrains the structured output to the action vocabulary.
var actionSchema = json.RawMessage(`{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "action": {"type": "string", "enum": ["SPLIT", "MERGE", "ADD", "REMOVE"]},
      "section_id": {"type": "string"},
      "section_ids": {"type": "array", "items": {"type": "string"}, "minItems": 2, "maxItems": 2},
      "course": {"type": "string"},
      "reason": {"type": "string"}
    },
    "required": ["action", "reason"]
  }
}`)

// Decide sends the formatted prompt and returns the raw JSON response text.
// Every failure mode surfaces as an ORACLE_FAILURE so the caller can apply
// its fallback policy uniformly.
func (c *GeminiClient) Decide(ctx context.Context, prompt string) (string, error) {
	payload := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:      c.temperature,
			MaxOutputTokens:  c.maxTokens,
			TopP:             0.1,
			TopK:             1,
			ResponseMimeType: "application/json",
			ResponseSchema:   actionSchema,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrOracle.Code, appErrors.ErrOracle.Status, "encode oracle request")
	}

	endpoint := fmt.Sprintf("%s/%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrOracle.Code, appErrors.ErrOracle.Status, "build oracle request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrOracle.Code, appErrors.ErrOracle.Status, "oracle request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrOracle.Code, appErrors.ErrOracle.Status, "read oracle response")
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("oracle returned non-200", zap.Int("status", resp.StatusCode))
		return "", appErrors.Clone(appErrors.ErrOracle,
			fmt.Sprintf("oracle returned status %d", resp.StatusCode))
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrOracle.Code, appErrors.ErrOracle.Status, "decode oracle response")
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", appErrors.Clone(appErrors.ErrOracle, "oracle response has no candidates")
	}

	return decoded.Candidates[0].Content.Parts[0].Text, nil
}
