package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Client is the provider-agnostic LLM interface.
type Client interface {
	// Complete performs a blocking generation and returns the full response.
	Complete(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
	// Stream starts streaming generation; events are sent on the returned channel.
	// The channel is closed when generation completes or an error occurs.
	Stream(ctx context.Context, req GenerateRequest) (<-chan StreamEvent, error)
}

// Config describes how to reach the completion endpoint. It is built once per
// process and passed by value to whatever needs a client; nothing in this
// package keeps a client around between calls.
type Config struct {
	// Provider handles model ids that carry no registered provider prefix.
	Provider string
	// BaseURL of the OpenAI-compatible endpoint, e.g. http://localhost:11434/v1.
	BaseURL string
	APIKey  string
	// DefaultModel is used when a request names no model.
	DefaultModel string
	// RequestTimeout bounds a single HTTP exchange. Zero means no limit; the
	// caller's context still applies.
	RequestTimeout time.Duration

	AnthropicAPIKey string
	GeminiAPIKey    string

	// UseStreaming makes the Adapter read completions through Client.Stream.
	UseStreaming bool
}

// ProviderFactory creates a Client for a given model name within a provider.
type ProviderFactory func(cfg Config, modelName string) (Client, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]ProviderFactory{}
)

// RegisterProvider registers a factory function for a named provider.
// Call this from init() in provider packages.
func RegisterProvider(name string, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Providers lists registered provider names, sorted.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveModel maps a model id to (provider, modelName). "openai:gpt-4o"
// selects the openai provider when it is registered; ids whose prefix is not a
// provider ("mistral:7b-instruct", "test-model") go to cfg.Provider unchanged.
func ResolveModel(cfg Config, modelID string) (provider, modelName string, err error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return "", "", fmt.Errorf("empty model id")
	}
	if p, m, perr := ParseModelID(modelID); perr == nil {
		registryMu.RLock()
		_, ok := registry[p]
		registryMu.RUnlock()
		if ok {
			return p, m, nil
		}
	}
	if cfg.Provider == "" {
		return "", "", fmt.Errorf("model ID %q has no provider prefix and no default provider is configured", modelID)
	}
	return cfg.Provider, modelID, nil
}

// NewClient constructs a Client for the given model ID.
func NewClient(cfg Config, modelID string) (Client, error) {
	provider, modelName, err := ResolveModel(cfg, modelID)
	if err != nil {
		return nil, fmt.Errorf("NewClient: %w", err)
	}
	registryMu.RLock()
	factory, ok := registry[provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no provider registered for %q (model ID %q); import the providers package", provider, modelID)
	}
	return factory(cfg, modelName)
}

// ParseModelID splits "provider:model-name" into (provider, modelName, nil).
// Both parts must be non-empty and the colon separator is required.
func ParseModelID(id string) (provider, modelName string, err error) {
	i := strings.IndexByte(id, ':')
	if i < 0 {
		return "", "", fmt.Errorf("model ID %q: missing 'provider:model-name' format", id)
	}
	p, m := id[:i], id[i+1:]
	if p == "" {
		return "", "", fmt.Errorf("model ID %q: empty provider name", id)
	}
	if m == "" {
		return "", "", fmt.Errorf("model ID %q: empty model name", id)
	}
	return p, m, nil
}
