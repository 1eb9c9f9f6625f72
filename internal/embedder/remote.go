package embedder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderTEI    = "tei"
	ProviderLocal  = "local"

	// Default endpoints
	JinaBaseURL   = "https://api.jina.ai/v1"
	OpenAIBaseURL = "https://api.openai.com/v1"
	TEIBaseURL    = "http://localhost:8081/v1"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultTEIModel    = "sentence-transformers/all-MiniLM-L6-v2"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	TEIDimension    = 384
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	DefaultCacheSize = 10000
	DefaultTimeout   = 30 * time.Second

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0

	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// RemoteConfig describes an OpenAI-compatible /embeddings endpoint.
type RemoteConfig struct {
	Provider  string
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
	Retry     RetryConfig
	Breaker   BreakerConfig
}

// RemoteProvider implements Embedder against an HTTP embeddings API
// (OpenAI, Jina, or a text-embeddings-inference server hosting a
// sentence-transformers model). Vectors are normalized and dimension-checked
// before they leave the provider.
type RemoteProvider struct {
	provider   string
	endpoint   string
	apiKey     string
	model      string
	dimension  int
	retry      RetryConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]*Embedding]
	cache      *Cache
}

// NewRemoteProvider creates a provider for an OpenAI-compatible embeddings API
func NewRemoteProvider(cfg RemoteConfig, cache *Cache) (*RemoteProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base url required for %s", ErrInvalidInput, cfg.Provider)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required for %s", ErrUnsupportedModel, cfg.Provider)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidInput)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = DefaultBreakerConfig("embedder-" + cfg.Provider)
	}

	return &RemoteProvider{
		provider:  cfg.Provider,
		endpoint:  strings.TrimRight(cfg.BaseURL, "/") + "/embeddings",
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		retry:     cfg.Retry,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		breaker: newBreaker(cfg.Breaker),
		cache:   cache,
	}, nil
}

// NewJinaProvider creates a Jina AI embedder
func NewJinaProvider(apiKey string, cache *Cache) (*RemoteProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}
	return NewRemoteProvider(RemoteConfig{
		Provider:  ProviderJina,
		BaseURL:   JinaBaseURL,
		APIKey:    apiKey,
		Model:     DefaultJinaModel,
		Dimension: JinaDimension,
	}, cache)
}

// NewOpenAIProvider creates an OpenAI embedder
func NewOpenAIProvider(apiKey string, cache *Cache) (*RemoteProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}
	return NewRemoteProvider(RemoteConfig{
		Provider:  ProviderOpenAI,
		BaseURL:   OpenAIBaseURL,
		APIKey:    apiKey,
		Model:     DefaultOpenAIModel,
		Dimension: OpenAIDimension,
	}, cache)
}

func (r *RemoteProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	if r.cache != nil {
		if emb, ok := r.cache.Get(hash); ok {
			return emb, nil
		}
	}

	// Single requests use the batch path so both produce identical vectors.
	resp, err := r.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

func (r *RemoteProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	embeddings, err := r.breaker.Execute(func() ([]*Embedding, error) {
		return retryWithBackoff(ctx, r.retry, func() ([]*Embedding, error) {
			return r.callAPI(ctx, req.Texts)
		})
	})
	if err != nil {
		err = breakerError(err)
		if err == ErrCircuitOpen || err == context.Canceled || err == context.DeadlineExceeded {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}

	for i, emb := range embeddings {
		emb.Hash = ComputeHash(req.Texts[i])
		if r.cache != nil {
			r.cache.Set(emb.Hash, emb)
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   r.provider,
		Model:      r.model,
	}, nil
}

func (r *RemoteProvider) callAPI(ctx context.Context, texts []string) ([]*Embedding, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": r.model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, permanent(apiErr)
		}
		return nil, apiErr
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Data) != len(texts) {
		return nil, permanent(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(apiResp.Data)))
	}

	// The API may answer out of order; index restores input order.
	sort.Slice(apiResp.Data, func(i, j int) bool {
		return apiResp.Data[i].Index < apiResp.Data[j].Index
	})

	embeddings := make([]*Embedding, len(apiResp.Data))
	for i, data := range apiResp.Data {
		if len(data.Embedding) != r.dimension {
			return nil, permanent(fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(data.Embedding), r.dimension))
		}
		vector := NormalizeVector(data.Embedding)
		if Norm(vector) == 0 {
			return nil, permanent(fmt.Errorf("zero vector returned for text %d", i))
		}
		embeddings[i] = &Embedding{
			Vector:    vector,
			Dimension: r.dimension,
			Provider:  r.provider,
			Model:     r.model,
		}
	}

	return embeddings, nil
}

func (r *RemoteProvider) Dimension() int {
	return r.dimension
}

func (r *RemoteProvider) Provider() string {
	return r.provider
}

func (r *RemoteProvider) Model() string {
	return r.model
}

// BreakerState reports the circuit breaker state ("closed", "open", "half-open").
func (r *RemoteProvider) BreakerState() string {
	return r.breaker.State().String()
}

func (r *RemoteProvider) Close() error {
	r.httpClient.CloseIdleConnections()
	return nil
}
