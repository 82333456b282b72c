package inference

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/revwatch/revwatch/internal/rules"
)

// Supported backend providers.
const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

const (
	defaultTimeout   = 120 * time.Second
	defaultMaxTokens = 1024
)

// Config selects and tunes an inference backend.
type Config struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKey     string
	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int
}

// DefaultModel returns the model a provider falls back to when none is
// configured.
func DefaultModel(provider string) string {
	if provider == ProviderAnthropic {
		return defaultAnthropicModel
	}
	return defaultOllamaModel
}

// Completer is the low-level chat capability a backend provides.
// Implementations must be safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Name() string
}

// Client issues review and fix prompts against a configured backend.
// The two calls are independent; each is bounded by the configured
// timeout. Safe for concurrent use.
type Client struct {
	backend Completer
	rules   *rules.Rules
	timeout time.Duration
}

// New builds a Client for the backend named in cfg.
func New(cfg Config, r *rules.Rules) (*Client, error) {
	var backend Completer
	switch cfg.Provider {
	case "", ProviderOllama:
		backend = NewOllama(cfg)
	case ProviderAnthropic:
		backend = NewAnthropic(cfg)
	default:
		return nil, fmt.Errorf("unknown inference provider %q", cfg.Provider)
	}
	return NewClient(backend, cfg.Timeout, r), nil
}

// NewClient wraps a backend with prompt building and per-call timeouts.
func NewClient(backend Completer, timeout time.Duration, r *rules.Rules) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{backend: backend, rules: r, timeout: timeout}
}

// Name returns the backend name.
func (c *Client) Name() string { return c.backend.Name() }

// Review asks the backend for a structured review of code.
func (c *Client) Review(ctx context.Context, code string) (string, error) {
	system, user := buildReviewPrompt(code, c.rules)
	text, err := c.complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("review call: %w", err)
	}
	return text, nil
}

// Fix asks the backend for a corrected version of code. The source
// content is sent as-is; review output is never chained into this call.
func (c *Client) Fix(ctx context.Context, code string) (string, error) {
	system, user := buildFixPrompt(code, c.rules)
	text, err := c.complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("fix call: %w", err)
	}
	return stripFences(text), nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := c.backend.Complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no text content in API response")
	}
	return text, nil
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.SplitN(text, "\n", 2)
	if len(lines) > 1 {
		text = lines[1]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
