// Package llm wraps the text-completion service used to draft review
// replies. Failures are recoverable: callers surface them, the sync and
// automation loops never crash on one.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	OpenRouterAPIURL = "https://openrouter.ai/api/v1/chat/completions"
)

type Client struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
	model      *string // Optional: if nil, uses OpenRouter account default
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey: apiKey,
		apiURL: OpenRouterAPIURL,
		httpClient: &http.Client{
			Timeout: 300 * time.Second, // free models are slow
		},
		model: nil,
	}
}

// SetModel sets a specific model to use (optional)
func (c *Client) SetModel(model string) {
	c.model = &model
}

// SetAPIURL overrides the completion endpoint (used in tests)
func (c *Client) SetAPIURL(apiURL string) {
	c.apiURL = apiURL
}

// Generate sends one prompt to the completion service and returns the
// generated text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": prompt,
			},
		},
	}

	// Only include model if explicitly set, otherwise use account default
	if c.model != nil {
		reqBody["model"] = *c.model
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("empty response from completion service")
	}

	return strings.TrimSpace(apiResp.Choices[0].Message.Content), nil
}
