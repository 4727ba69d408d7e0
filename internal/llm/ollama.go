package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type OllamaConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// OllamaClient speaks the Ollama chat API for locally hosted models. No API
// key is involved.
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	return &OllamaClient{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{},
	}, nil
}

func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	options := map[string]any{"temperature": c.temperature}
	if c.maxTokens > 0 {
		options["num_predict"] = c.maxTokens
	}
	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"stream":  false,
		"options": options,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", transportFailure(err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportFailure(err)
	}
	if resp.StatusCode >= 400 {
		return "", statusFailure(resp.StatusCode, string(rawBody))
	}

	var parsed struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return "", &Failure{Kind: FailureTransport, Err: fmt.Errorf("decode chat response: %w", err)}
	}
	if parsed.Message.Content == "" {
		return "", &Failure{Kind: FailureTransport, Err: fmt.Errorf("empty chat response")}
	}
	return parsed.Message.Content, nil
}
