// internal/pipeline/interpret/client.go
package interpret

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	apperrors "orgdiag-pipeline/internal/common/errors"
)

// Request is the provider-neutral narrative request.
type Request struct {
	Team    string `json:"team"`
	Summary string `json:"summary"`
	Prompt  string `json:"prompt"`
}

// Client requests narrative text for one team's aggregate summary.
type Client interface {
	Generate(ctx context.Context, req *Request) (string, error)
}

// NewClient builds the provider selected by config.
func NewClient(config *Config) (Client, error) {
	switch config.Provider {
	case ProviderGemini:
		return NewGeminiClient(context.Background(), config.APIKey, config.Model)
	case ProviderHTTP:
		return NewHTTPClient(config.BaseURL), nil
	default:
		return nil, apperrors.NewInterpreterConfigError(fmt.Sprintf("unknown provider: %s", config.Provider))
	}
}

// ==========================
// Gemini provider
// ==========================

type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, apperrors.NewInterpreterConfigError(fmt.Sprintf("create genai client: %v", err))
	}
	return &GeminiClient{client: client, model: model}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, req *Request) (string, error) {
	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), nil)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", errors.New("empty model response")
	}
	return text, nil
}

// ==========================
// HTTP provider
// ==========================

// HTTPClient posts the narrative request to a generic JSON endpoint.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			// No client-level timeout; the caller's context bounds every call.
		},
	}
}

func (c *HTTPClient) Generate(ctx context.Context, req *Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ai/generate", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var apiResponse struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	text := strings.TrimSpace(apiResponse.Text)
	if text == "" {
		return "", errors.New("empty narrative in response")
	}
	return text, nil
}
