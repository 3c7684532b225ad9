// Package llm is a minimal client for OpenAI-compatible APIs: chat
// completions for extraction/copywriting and Whisper-style transcription
// for voice notes. It is deliberately small — the orchestrator only ever
// needs "prompt in, text out".
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultHTTPTimeout = 120 * time.Second

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	apiBase string
	apiKey  string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type Config struct {
	APIBase string
	APIKey  string
	Model   string
	Logger  *slog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		apiBase: cfg.APIBase,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		logger:  cfg.Logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// CompleteOptions tunes a single completion call.
type CompleteOptions struct {
	System      string
	MaxTokens   int
	Temperature float64
}

// Complete sends one prompt and returns the model's text.
func (c *Client) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 2048
	}

	msgs := make([]chatMessage, 0, 2)
	if opts.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: opts.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    msgs,
		MaxTokens:   opts.MaxTokens,
		Temperature: &opts.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	start := time.Now()
	resp, err := doWithRetry(ctx, c.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.apiBase+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		return req, nil
	}, c.logger)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("llm API %d: %s", resp.StatusCode, string(respBody))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}

	c.logger.Debug("completion done",
		"model", c.model,
		"latency_ms", time.Since(start).Milliseconds(),
		"response_len", len(out.Choices[0].Message.Content),
	)
	return out.Choices[0].Message.Content, nil
}

// Healthy checks that the API is reachable and the key is accepted.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("llm not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("llm: invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llm returned %d", resp.StatusCode)
	}
	return nil
}
