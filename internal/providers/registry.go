package providers

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/config"
)

// Registry resolves a provider name to a constructed Provider instance,
// built once at startup from config.ProvidersConfig and shared across
// every session and tool invocation.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns an empty registry. Use Register to populate it.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces the provider under name.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get looks up a provider by name. An unconfigured provider (no API key,
// never registered) reports an error rather than a nil Provider so
// callers can fall back or surface a clear message to the LLM/user.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("providers: %q is not configured", name)
	}
	return p, nil
}

// Names returns every registered provider name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	return out
}

// BuildRegistry constructs a Registry populated with one Provider per
// configured credential in cfg. Providers with no API key are skipped
// entirely rather than registered disabled, so Registry.Get's "not
// configured" error is the single signal callers (tools, the agent loop)
// need to check.
func BuildRegistry(cfg config.ProvidersConfig) *Registry {
	r := NewRegistry()

	if cfg.Anthropic.APIKey != "" {
		r.Register("anthropic", NewAnthropicProvider(cfg.Anthropic.APIKey, WithAnthropicBaseURL(cfg.Anthropic.APIBase)))
		slog.Info("providers: registered", "name", "anthropic")
	}
	if cfg.OpenAI.APIKey != "" {
		r.Register("openai", NewOpenAIProvider("openai", cfg.OpenAI.APIKey, orDefault(cfg.OpenAI.APIBase, "https://api.openai.com/v1"), "gpt-4o"))
		slog.Info("providers: registered", "name", "openai")
	}
	if cfg.OpenRouter.APIKey != "" {
		r.Register("openrouter", NewOpenAIProvider("openrouter", cfg.OpenRouter.APIKey, orDefault(cfg.OpenRouter.APIBase, "https://openrouter.ai/api/v1"), "anthropic/claude-sonnet-4-5-20250929"))
		slog.Info("providers: registered", "name", "openrouter")
	}
	if cfg.DeepSeek.APIKey != "" {
		r.Register("deepseek", NewOpenAIProvider("deepseek", cfg.DeepSeek.APIKey, orDefault(cfg.DeepSeek.APIBase, "https://api.deepseek.com/v1"), "deepseek-chat"))
		slog.Info("providers: registered", "name", "deepseek")
	}
	if cfg.Moonshot.APIKey != "" {
		r.Register("moonshot", NewOpenAIProvider("moonshot", cfg.Moonshot.APIKey, orDefault(cfg.Moonshot.APIBase, "https://api.moonshot.cn/v1"), "kimi-k2-0905-preview"))
		slog.Info("providers: registered", "name", "moonshot")
	}
	if cfg.Ollama.APIKey != "" || cfg.Ollama.APIBase != "" {
		r.Register("ollama", NewOpenAIProvider("ollama", cfg.Ollama.APIKey, orDefault(cfg.Ollama.APIBase, "http://localhost:11434/v1"), "llama3.1"))
		slog.Info("providers: registered", "name", "ollama")
	}
	if cfg.Groq.APIKey != "" {
		r.Register("groq", NewOpenAIProvider("groq", cfg.Groq.APIKey, orDefault(cfg.Groq.APIBase, "https://api.groq.com/openai/v1"), "llama-3.3-70b-versatile"))
		slog.Info("providers: registered", "name", "groq")
	}
	if cfg.Gemini.APIKey != "" {
		r.Register("gemini", NewOpenAIProvider("gemini", cfg.Gemini.APIKey, orDefault(cfg.Gemini.APIBase, "https://generativelanguage.googleapis.com/v1beta/openai"), "gemini-2.0-flash"))
		slog.Info("providers: registered", "name", "gemini")
	}
	if cfg.Mistral.APIKey != "" {
		r.Register("mistral", NewOpenAIProvider("mistral", cfg.Mistral.APIKey, orDefault(cfg.Mistral.APIBase, "https://api.mistral.ai/v1"), "mistral-large-latest"))
		slog.Info("providers: registered", "name", "mistral")
	}
	if cfg.XAI.APIKey != "" {
		r.Register("xai", NewOpenAIProvider("xai", cfg.XAI.APIKey, orDefault(cfg.XAI.APIBase, "https://api.x.ai/v1"), "grok-3-mini"))
		slog.Info("providers: registered", "name", "xai")
	}

	return r
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
