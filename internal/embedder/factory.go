package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	CacheSize int
	Timeout   time.Duration

	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// New creates an embedder with explicit configuration. An empty provider is
// resolved with DetectProvider. Remote providers fall back to the API key
// environment variables when cfg.APIKey is empty.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := DetectProvider(cfg.Provider)
	switch provider {
	case ProviderLocal:
		return NewLocalProvider(cfg.Dimension, cache)
	case ProviderJina, ProviderOpenAI, ProviderTEI:
		rc := remoteConfig(provider, cfg)
		if rc.APIKey == "" && provider != ProviderTEI {
			return nil, fmt.Errorf("%w: api key not set for %s", ErrNoProviderEnabled, provider)
		}
		return NewRemoteProvider(rc, cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

func remoteConfig(provider string, cfg Config) RemoteConfig {
	rc := RemoteConfig{
		Provider:  provider,
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		Dimension: cfg.Dimension,
		Timeout:   cfg.Timeout,
		Breaker: BreakerConfig{
			Name:             "embedder-" + provider,
			FailureThreshold: cfg.BreakerFailures,
			Timeout:          cfg.BreakerTimeout,
		},
	}

	var baseURL, model, envKey string
	var dimension int
	switch provider {
	case ProviderJina:
		baseURL, model, dimension, envKey = JinaBaseURL, DefaultJinaModel, JinaDimension, EnvJinaAPIKey
	case ProviderOpenAI:
		baseURL, model, dimension, envKey = OpenAIBaseURL, DefaultOpenAIModel, OpenAIDimension, EnvOpenAIAPIKey
	case ProviderTEI:
		baseURL, model, dimension = TEIBaseURL, DefaultTEIModel, TEIDimension
	}

	if rc.BaseURL == "" {
		rc.BaseURL = baseURL
	}
	if rc.Model == "" {
		rc.Model = model
	}
	if rc.Dimension <= 0 {
		rc.Dimension = dimension
	}
	if rc.APIKey == "" && envKey != "" {
		rc.APIKey = os.Getenv(envKey)
	}
	return rc
}

// DetectProvider resolves the provider name. An explicit name wins; otherwise
// JINA_API_KEY, then OPENAI_API_KEY select a remote provider, and the local
// provider is the fallback.
func DetectProvider(explicit string) string {
	if explicit != "" {
		return strings.ToLower(explicit)
	}

	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}
