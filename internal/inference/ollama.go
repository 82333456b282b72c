package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "tinyllama"
)

// Ollama is a Completer backed by an Ollama or LM Studio server through
// the OpenAI-compatible chat completions endpoint.
type Ollama struct {
	endpoint   string
	model      string
	apiKey     string
	maxTokens  int
	maxRetries int
	client     *http.Client
}

// NewOllama creates the local-server backend. The base URL comes from
// cfg, then OLLAMA_HOST, then the default localhost address.
func NewOllama(cfg Config) *Ollama {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	// Accept base URLs given with or without the API suffix.
	baseURL = strings.TrimRight(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/v1/chat/completions")
	baseURL = strings.TrimSuffix(baseURL, "/v1")

	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Ollama{
		endpoint:   baseURL + "/v1/chat/completions",
		model:      model,
		apiKey:     cfg.APIKey,
		maxTokens:  maxTokens,
		maxRetries: cfg.MaxRetries,
		client:     &http.Client{},
	}
}

// Name identifies the backend.
func (o *Ollama) Name() string { return ProviderOllama }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

// Complete sends one system+user exchange. Rate-limit and server errors
// are retried up to maxRetries times with exponential backoff; the
// caller's context still bounds the whole call.
func (o *Ollama) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens: o.maxTokens,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	var text string
	err = retryWithBackoff(ctx, o.maxRetries, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create chat request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if o.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+o.apiKey)
		}

		resp, err := o.client.Do(req)
		if err != nil {
			return fmt.Errorf("send chat request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read chat response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return &transientError{status: resp.StatusCode, body: string(respBody)}
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("chat API error (status %d): %s", resp.StatusCode, respBody)
		}

		var result chatResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return fmt.Errorf("parse chat response: %w", err)
		}
		if len(result.Choices) == 0 {
			return fmt.Errorf("no choices in chat response")
		}
		text = result.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}
