package llm

import (
	"context"
	"fmt"
)

// Client is the completion capability consumed by the pipeline. Providers
// are interchangeable; a run may be configured with two of them for
// side-by-side cross-validation, each result flowing independently through
// the parser and assembler.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Name() string
}

// Options selects and configures providers from the application config.
type Options struct {
	Provider        string // anthropic, openai or both
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	MaxTokens       int
}

// NewClients builds the configured provider clients in a stable order.
func NewClients(opts Options) ([]Client, error) {
	var clients []Client

	switch opts.Provider {
	case "", "anthropic":
		clients = append(clients, newAnthropic(opts))
	case "openai":
		clients = append(clients, newOpenAI(opts))
	case "both":
		clients = append(clients, newAnthropic(opts), newOpenAI(opts))
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", opts.Provider)
	}

	for _, c := range clients {
		if err := validate(c); err != nil {
			return nil, err
		}
	}
	return clients, nil
}

func validate(c Client) error {
	switch client := c.(type) {
	case *Anthropic:
		if client.apiKey == "" {
			return fmt.Errorf("anthropic provider selected but no API key configured")
		}
	case *OpenAI:
		// A custom base URL (a local or proxy endpoint) may not need a key.
		if client.APIKey == "" && client.BaseURL == defaultOpenAIBaseURL {
			return fmt.Errorf("openai provider selected but no API key or base URL configured")
		}
	}
	return nil
}
