package sitrep

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client issues one completion call given a system prompt and a user
// message built from the fleet context, subject to the caller's context
// deadline (spec §4.6 step 3).
//
// Grounded on the HTTP-client-with-timeout shape of
// mmp-vice/server/tts.go's GoogleTTSProvider (a dedicated *http.Client
// with a fixed Timeout, a JSON request struct, and a single POST call).
type Client interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// maxTokens and temperature are fixed by spec §4.6 for every provider.
const (
	maxTokens   = 150
	temperature = 0.3
)

// LocalTimeout and CloudTimeout are the provider-specific hard call
// timeouts of spec §5/§6.
const (
	LocalTimeout = 90 * time.Second
	CloudTimeout = 30 * time.Second
)

// localRequest mirrors an Ollama-style /api/generate payload
// (original_source officer.py's DEFAULT_OLLAMA_URL / payload shape).
type localRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	System      string  `json:"system"`
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type localResponse struct {
	Response string `json:"response"`
}

// LocalClient calls a self-hosted completion endpoint (spec §6
// llm_provider=local, llm_endpoint).
type LocalClient struct {
	Endpoint   string
	Model      string
	HTTPClient *http.Client
}

// NewLocalClient builds a LocalClient with the default 90s timeout
// (spec §4.6/§5).
func NewLocalClient(endpoint, model string) *LocalClient {
	return &LocalClient{
		Endpoint:   endpoint,
		Model:      model,
		HTTPClient: &http.Client{Timeout: LocalTimeout},
	}
}

func (c *LocalClient) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	reqBody, err := json.Marshal(localRequest{
		Model:       c.Model,
		Prompt:      userMessage,
		System:      systemPrompt,
		Stream:      false,
		Temperature: temperature,
		NumPredict:  maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("sitrep: marshal local request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("sitrep: build local request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sitrep: local provider call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sitrep: local provider status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("sitrep: read local response: %w", err)
	}

	var parsed localResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("sitrep: decode local response: %w", err)
	}
	if parsed.Response == "" {
		return "", fmt.Errorf("sitrep: empty local response")
	}
	return parsed.Response, nil
}

// cloudMessage and cloudRequest model an OpenAI-compatible chat
// completions call (spec §6 llm_provider=cloud, api_key).
type cloudMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type cloudRequest struct {
	Model       string         `json:"model"`
	Messages    []cloudMessage `json:"messages"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature float64        `json:"temperature"`
}

type cloudResponse struct {
	Choices []struct {
		Message cloudMessage `json:"message"`
	} `json:"choices"`
}

// CloudClient calls a hosted chat-completions endpoint.
type CloudClient struct {
	Endpoint   string
	Model      string
	APIKey     string
	HTTPClient *http.Client
}

// NewCloudClient builds a CloudClient with the default 30s timeout
// (spec §4.6/§5).
func NewCloudClient(endpoint, model, apiKey string) *CloudClient {
	return &CloudClient{
		Endpoint:   endpoint,
		Model:      model,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: CloudTimeout},
	}
}

func (c *CloudClient) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	reqBody, err := json.Marshal(cloudRequest{
		Model: c.Model,
		Messages: []cloudMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("sitrep: marshal cloud request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("sitrep: build cloud request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sitrep: cloud provider call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sitrep: cloud provider status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("sitrep: read cloud response: %w", err)
	}

	var parsed cloudResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("sitrep: decode cloud response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("sitrep: empty cloud response")
	}
	return parsed.Choices[0].Message.Content, nil
}
