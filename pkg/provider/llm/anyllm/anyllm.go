// Package anyllm provides a universal llm.Backend backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Usage:
//
//	b, err := anyllm.New("openai", "gpt-4o", anyllmlib.WithAPIKey("sk-..."))
//	b, err := anyllm.NewAnthropic("claude-3-5-sonnet-latest", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/auricle-ai/auricle/pkg/provider/llm"
)

// Compile-time assertion that Backend satisfies llm.Backend.
var _ llm.Backend = (*Backend)(nil)

// Backend implements llm.Backend by wrapping github.com/mozilla-ai/any-llm-go.
type Backend struct {
	provider anyllmlib.Provider
	model    string
}

// New creates a Backend for the given provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama", "deepseek",
// "mistral", "groq", "llamacpp", "llamafile".
//
// model is the specific model to use (e.g., "gpt-4o", "claude-3-5-sonnet-latest").
//
// opts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL). If no API key option is provided, the provider
// falls back to the relevant environment variable (OPENAI_API_KEY,
// ANTHROPIC_API_KEY, etc.).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Backend, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	provider, err := createProvider(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}
	return &Backend{provider: provider, model: model}, nil
}

// NewOpenAI creates a Backend for OpenAI.
// Without options, it reads the OPENAI_API_KEY environment variable.
func NewOpenAI(model string, opts ...anyllmlib.Option) (*Backend, error) {
	return New("openai", model, opts...)
}

// NewAnthropic creates a Backend for Anthropic.
// Without options, it reads the ANTHROPIC_API_KEY environment variable.
func NewAnthropic(model string, opts ...anyllmlib.Option) (*Backend, error) {
	return New("anthropic", model, opts...)
}

// NewOllama creates a Backend for Ollama (local inference).
// Without options, it connects to http://localhost:11434.
func NewOllama(model string, opts ...anyllmlib.Option) (*Backend, error) {
	return New("ollama", model, opts...)
}

// createProvider creates the underlying any-llm-go provider for the given name.
func createProvider(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Complete implements llm.Backend.
func (b *Backend) Complete(ctx context.Context, req llm.Request) (string, error) {
	params := b.buildParams(req)

	resp, err := b.provider.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: anyllm %s: %v", llm.ErrRemoteCallFailed, b.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: anyllm: empty choices", llm.ErrInvalidResponse)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.ContentString())
	if text == "" {
		return "", fmt.Errorf("%w: anyllm: empty reply content", llm.ErrInvalidResponse)
	}
	return text, nil
}

// buildParams converts an llm.Request into anyllm CompletionParams.
func (b *Backend) buildParams(req llm.Request) anyllmlib.CompletionParams {
	messages := make([]anyllmlib.Message, 0, len(req.Turns))
	for _, t := range req.Turns {
		messages = append(messages, anyllmlib.Message{
			Role:    string(t.Role),
			Content: t.Content,
		})
	}

	params := anyllmlib.CompletionParams{
		Model:    b.model,
		Messages: messages,
	}
	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}
	return params
}
