package llm

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
	promptx "github.com/tanpawarit/Vault-Concierge/agent/prompt"
	llmproviderx "github.com/tanpawarit/Vault-Concierge/pkg/llmprovider"
)

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

var _ contractx.ModelClient = (*Client)(nil)

// Client implements contract.ModelClient on top of eino graphs. A client built
// without a chat model answers every call with a nil result.
type Client struct {
	classify compose.Runnable[map[string]any, *classificationOutput]
	extract  compose.Runnable[map[string]any, *extractionOutput]
	reply    compose.Runnable[replyInput, *schema.Message]
	embedder Embedder
}

func NewClient(ctx context.Context, chatModel einomodel.BaseChatModel, embedder Embedder) (*Client, error) {
	c := &Client{embedder: embedder}
	if chatModel == nil {
		return c, nil
	}

	prompts := promptx.LoadPromptSet()

	var err error
	c.classify, err = compileStructuredLLMGraph[classificationOutput](ctx, chatModel,
		prompts.Classify, "Message: {input}", "llm.classify_intent")
	if err != nil {
		return nil, fmt.Errorf("%w: compile classify graph: %v", contractx.ErrModelInvoke, err)
	}

	c.extract, err = compileStructuredLLMGraph[extractionOutput](ctx, chatModel,
		prompts.Extract, "{input}", "llm.extract_memory")
	if err != nil {
		return nil, fmt.Errorf("%w: compile extraction graph: %v", contractx.ErrModelInvoke, err)
	}

	c.reply, err = compileReplyGraph(ctx, chatModel, prompts.EllisReply)
	if err != nil {
		return nil, fmt.Errorf("%w: compile reply graph: %v", contractx.ErrModelInvoke, err)
	}

	return c, nil
}

// NewFromConfig builds the provider chat model and embedder. Without an API
// key the returned client is disabled.
func NewFromConfig(ctx context.Context, cfg Config) (*Client, error) {
	pc := cfg.ProviderConfig()
	if !pc.Enabled() {
		log.Warn().Str("provider", pc.Provider).Msg("llm api key not set, model calls disabled")
		return NewClient(ctx, nil, nil)
	}

	chatModel, err := llmproviderx.NewChatModel(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}

	var embedder Embedder
	if e := llmproviderx.NewEmbedder(pc); e != nil {
		embedder = e
	}
	return NewClient(ctx, chatModel, embedder)
}

func (c *Client) Enabled() bool {
	return c != nil && c.classify != nil
}

func (c *Client) ClassifyIntent(ctx context.Context, text string) (*contractx.IntentClassification, error) {
	if !c.Enabled() {
		return nil, nil
	}

	out, err := c.classify.Invoke(ctx, map[string]any{"input": text},
		compose.WithChatModelOption(einomodel.WithTemperature(0), einomodel.WithMaxTokens(120)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: classify intent: %v", contractx.ErrModelInvoke, err)
	}
	return normalizeClassification(out), nil
}

func (c *Client) ExtractMemory(ctx context.Context, transcript string) (*contractx.MemoryExtraction, error) {
	if !c.Enabled() {
		return nil, nil
	}

	out, err := c.extract.Invoke(ctx, map[string]any{"input": transcript},
		compose.WithChatModelOption(einomodel.WithTemperature(0), einomodel.WithMaxTokens(600)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: extract memory: %v", contractx.ErrModelInvoke, err)
	}
	return normalizeExtraction(out), nil
}

// GenerateReply returns an empty string when the model is unavailable or
// produced nothing usable.
func (c *Client) GenerateReply(ctx context.Context, req contractx.ReplyRequest) (string, error) {
	if !c.Enabled() {
		return "", nil
	}

	msg, err := c.reply.Invoke(ctx, replyInput{Request: req},
		compose.WithChatModelOption(einomodel.WithTemperature(0.3), einomodel.WithMaxTokens(180)),
	)
	if err != nil {
		return "", fmt.Errorf("%w: generate reply: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil {
		return "", nil
	}
	return strings.TrimSpace(msg.Content), nil
}

// Embed returns nil when embeddings are unavailable or the response does not
// line up with the inputs.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c == nil || c.embedder == nil || len(texts) == 0 {
		return nil, nil
	}

	out, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: embed: %v", contractx.ErrModelInvoke, err)
	}
	if len(out) != len(texts) {
		return nil, nil
	}
	for _, v := range out {
		if len(v) == 0 {
			return nil, nil
		}
	}
	return out, nil
}
