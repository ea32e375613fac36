package llmprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaimodel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
)

var ErrUnknownProvider = errors.New("unknown llm provider")

type defaults struct {
	baseURL        string
	model          string
	embeddingModel string
}

var providerDefaults = map[string]defaults{
	ProviderOpenAI: {
		baseURL:        "https://api.openai.com/v1",
		model:          "gpt-4.1-mini",
		embeddingModel: "text-embedding-3-small",
	},
	ProviderOpenRouter: {
		baseURL:        "https://openrouter.ai/api/v1",
		model:          "openai/gpt-4.1-mini",
		embeddingModel: "openai/text-embedding-3-small",
	},
}

// OpenRouterReasoningBlacklist lists models whose reasoning output must be
// switched off to get plain JSON back.
var OpenRouterReasoningBlacklist = map[string]bool{
	"x-ai/grok-4.1-fast": true,
}

type Config struct {
	Provider       string
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Timeout        time.Duration
	SiteURL        string
	SiteName       string
}

// Enabled reports whether credentials are present. Without them every model
// capability runs in no-op mode.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

func (c Config) provider() string {
	p := strings.ToLower(strings.TrimSpace(c.Provider))
	if p == "" {
		return ProviderOpenAI
	}
	return p
}

func (c Config) Validate() error {
	if _, ok := providerDefaults[c.provider()]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.Provider)
	}
	return nil
}

func (c Config) ResolvedBaseURL() string {
	if v := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/"); v != "" {
		return v
	}
	return providerDefaults[c.provider()].baseURL
}

func (c Config) ResolvedModel() string {
	if v := strings.TrimSpace(c.Model); v != "" {
		return v
	}
	return providerDefaults[c.provider()].model
}

func (c Config) ResolvedEmbeddingModel() string {
	if v := strings.TrimSpace(c.EmbeddingModel); v != "" {
		return v
	}
	return providerDefaults[c.provider()].embeddingModel
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}

// headers are the extra attribution headers OpenRouter expects.
func (c Config) headers() map[string]string {
	if c.provider() != ProviderOpenRouter {
		return nil
	}
	h := map[string]string{}
	if v := strings.TrimSpace(c.SiteURL); v != "" {
		h["HTTP-Referer"] = v
	}
	if v := strings.TrimSpace(c.SiteName); v != "" {
		h["X-Title"] = v
	}
	return h
}

// NewChatModel builds the chat model used by every prompt graph.
func NewChatModel(ctx context.Context, c Config) (model.ToolCallingChatModel, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	modelName := c.ResolvedModel()

	conf := &openaimodel.ChatModelConfig{
		BaseURL: c.ResolvedBaseURL(),
		APIKey:  strings.TrimSpace(c.APIKey),
		Model:   modelName,
		Timeout: c.timeout(),
	}

	if h := c.headers(); len(h) > 0 {
		conf.HTTPClient = &http.Client{
			Timeout:   c.timeout(),
			Transport: &headerTransport{headers: h, next: http.DefaultTransport},
		}
	}

	if c.provider() == ProviderOpenRouter && OpenRouterReasoningBlacklist[modelName] {
		conf.ExtraFields = map[string]any{
			"reasoning": map[string]any{
				"exclude": true,
				"effort":  "none",
			},
		}
	}

	m, err := openaimodel.NewChatModel(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("%s: create chat model: %w", c.provider(), err)
	}
	return m, nil
}

// NewClient creates an OpenAI SDK client for the configured provider. It
// returns nil when no API key is set.
func NewClient(c Config) *openaisdk.Client {
	if !c.Enabled() {
		return nil
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(c.APIKey)),
		option.WithBaseURL(c.ResolvedBaseURL()),
		option.WithRequestTimeout(c.timeout()),
	}
	for k, v := range c.headers() {
		opts = append(opts, option.WithHeader(k, v))
	}

	client := openaisdk.NewClient(opts...)
	return &client
}

type headerTransport struct {
	headers map[string]string
	next    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.next.RoundTrip(req)
}
