package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/revwatch/revwatch/internal/inference"
	"github.com/revwatch/revwatch/internal/rules"
)

// newInferenceClient creates an inference client from config/env, loading
// the rules file when one is configured.
func newInferenceClient() (*inference.Client, error) {
	apiKey := viper.GetString("inference.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	var r *rules.Rules
	if path := viper.GetString("rules.path"); path != "" {
		loaded, err := rules.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load rules: %w", err)
		}
		r = loaded
	}

	cfg := inference.Config{
		Provider:   viper.GetString("inference.provider"),
		Model:      viper.GetString("inference.model"),
		BaseURL:    viper.GetString("inference.base_url"),
		APIKey:     apiKey,
		MaxTokens:  viper.GetInt("inference.max_tokens"),
		Timeout:    viper.GetDuration("inference.timeout"),
		MaxRetries: viper.GetInt("inference.max_retries"),
	}
	return inference.New(cfg, r)
}

// inferenceIdentity reports the effective provider and model names for
// run records and status output.
func inferenceIdentity() (provider, model string) {
	provider = viper.GetString("inference.provider")
	if provider == "" {
		provider = inference.ProviderOllama
	}
	model = viper.GetString("inference.model")
	if model == "" {
		model = inference.DefaultModel(provider)
	}
	return provider, model
}
