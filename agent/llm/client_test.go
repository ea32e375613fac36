package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

type fakeChatModel struct {
	responses []*schema.Message
	err       error
	idx       int

	lastInput []*schema.Message
	lastOpts  *einomodel.Options
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.lastInput = input
	f.lastOpts = einomodel.GetCommonOptions(nil, opts...)
	if f.err != nil {
		return nil, f.err
	}
	if f.idx >= len(f.responses) {
		return nil, errors.New("no fake response left")
	}
	msg := f.responses[f.idx]
	f.idx++
	return msg, nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *fakeChatModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return f, nil
}

type fakeEmbedder struct {
	out [][]float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f.out, f.err
}

func newFakeClient(t *testing.T, fake *fakeChatModel, emb Embedder) *Client {
	t.Helper()
	var chat einomodel.BaseChatModel
	if fake != nil {
		chat = fake
	}
	c, err := NewClient(context.Background(), chat, emb)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func reply(content string) *fakeChatModel {
	return &fakeChatModel{responses: []*schema.Message{schema.AssistantMessage(content, nil)}}
}

func TestClassifyIntentClampsConfidence(t *testing.T) {
	t.Parallel()

	fake := reply(`{"label":"affirmative","confidence":1.4,"rationale":"clear yes"}`)
	c := newFakeClient(t, fake, nil)

	out, err := c.ClassifyIntent(context.Background(), "sounds fun")
	if err != nil {
		t.Fatalf("ClassifyIntent() error = %v", err)
	}
	if out == nil || out.Label != contractx.IntentAffirmative || out.Confidence != 1 {
		t.Fatalf("ClassifyIntent() = %#v", out)
	}

	if got := fake.lastInput[len(fake.lastInput)-1].Content; got != "Message: sounds fun" {
		t.Fatalf("user message = %q", got)
	}
	if fake.lastOpts.Temperature == nil || *fake.lastOpts.Temperature != 0 {
		t.Fatalf("temperature = %v, want 0", fake.lastOpts.Temperature)
	}
	if fake.lastOpts.MaxTokens == nil || *fake.lastOpts.MaxTokens != 120 {
		t.Fatalf("max tokens = %v, want 120", fake.lastOpts.MaxTokens)
	}
}

func TestClassifyIntentUnusableOutputIsNil(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"malformed":          `not json at all`,
		"unknown label":      `{"label":"maybe","confidence":0.9}`,
		"missing confidence": `{"label":"negative"}`,
		"empty":              ``,
	}
	for name, content := range cases {
		c := newFakeClient(t, reply(content), nil)
		out, err := c.ClassifyIntent(context.Background(), "hmm")
		if err != nil {
			t.Fatalf("%s: ClassifyIntent() error = %v", name, err)
		}
		if out != nil {
			t.Fatalf("%s: ClassifyIntent() = %#v, want nil", name, out)
		}
	}
}

func TestClassifyIntentAcceptsFencedJSON(t *testing.T) {
	t.Parallel()

	c := newFakeClient(t, reply("```json\n{\"label\":\"negative\",\"confidence\":0.92}\n```"), nil)
	out, err := c.ClassifyIntent(context.Background(), "pass")
	if err != nil {
		t.Fatalf("ClassifyIntent() error = %v", err)
	}
	if out == nil || out.Label != contractx.IntentNegative {
		t.Fatalf("ClassifyIntent() = %#v", out)
	}
}

func TestClassifyIntentUpstreamFailure(t *testing.T) {
	t.Parallel()

	c := newFakeClient(t, &fakeChatModel{err: errors.New("503 from provider")}, nil)
	_, err := c.ClassifyIntent(context.Background(), "yes?")
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("ClassifyIntent() error = %v, want ErrModelInvoke", err)
	}
}

func TestDisabledClientReturnsNil(t *testing.T) {
	t.Parallel()

	c := newFakeClient(t, nil, nil)
	ctx := context.Background()

	if out, err := c.ClassifyIntent(ctx, "yes"); out != nil || err != nil {
		t.Fatalf("ClassifyIntent() = %v, %v", out, err)
	}
	if out, err := c.ExtractMemory(ctx, "[Member] hi"); out != nil || err != nil {
		t.Fatalf("ExtractMemory() = %v, %v", out, err)
	}
	if out, err := c.GenerateReply(ctx, contractx.ReplyRequest{}); out != "" || err != nil {
		t.Fatalf("GenerateReply() = %q, %v", out, err)
	}
	if out, err := c.Embed(ctx, []string{"a"}); out != nil || err != nil {
		t.Fatalf("Embed() = %v, %v", out, err)
	}
}

func TestExtractMemoryNormalizesFacts(t *testing.T) {
	t.Parallel()

	longCategory := strings.Repeat("c", 80)
	content, _ := json.Marshal(map[string]any{
		"summary": "  Lives in Austin. Likes jazz.  ",
		"facts": []map[string]any{
			{"category": "location", "fact": "  Austin, TX ", "confidence": 0.95},
			{"category": longCategory, "fact": "likes jazz"},
			{"category": "", "fact": "dropped"},
			{"category": "goal", "fact": "   "},
			{"category": "interest", "fact": "wine", "confidence": -2},
		},
	})

	fake := reply(string(content))
	c := newFakeClient(t, fake, nil)
	out, err := c.ExtractMemory(context.Background(), "[Member] I'm in Austin")
	if err != nil {
		t.Fatalf("ExtractMemory() error = %v", err)
	}
	if out == nil {
		t.Fatal("ExtractMemory() = nil")
	}
	if out.Summary != "Lives in Austin. Likes jazz." {
		t.Fatalf("Summary = %q", out.Summary)
	}
	if len(out.Facts) != 3 {
		t.Fatalf("len(Facts) = %d, want 3: %#v", len(out.Facts), out.Facts)
	}
	if out.Facts[0].Fact != "Austin, TX" || out.Facts[0].Confidence != 0.95 {
		t.Fatalf("Facts[0] = %#v", out.Facts[0])
	}
	if len(out.Facts[1].Category) != 64 || out.Facts[1].Confidence != 0.7 {
		t.Fatalf("Facts[1] = %#v", out.Facts[1])
	}
	if out.Facts[2].Confidence != 0 {
		t.Fatalf("Facts[2].Confidence = %v, want 0", out.Facts[2].Confidence)
	}
	if *fake.lastOpts.MaxTokens != 600 {
		t.Fatalf("max tokens = %d, want 600", *fake.lastOpts.MaxTokens)
	}
}

func TestExtractMemoryWithoutSummaryIsNil(t *testing.T) {
	t.Parallel()

	c := newFakeClient(t, reply(`{"facts":[{"category":"location","fact":"Miami"}]}`), nil)
	out, err := c.ExtractMemory(context.Background(), "[Member] Miami")
	if err != nil {
		t.Fatalf("ExtractMemory() error = %v", err)
	}
	if out != nil {
		t.Fatalf("ExtractMemory() = %#v, want nil", out)
	}
}

func TestGenerateReplyBuildsGroundedPrompt(t *testing.T) {
	t.Parallel()

	fake := reply("  Love that. What neighborhood in Miami?  ")
	c := newFakeClient(t, fake, nil)

	out, err := c.GenerateReply(context.Background(), contractx.ReplyRequest{
		MemberFirstName: "Ana",
		IncomingMessage: "I like {jazz} bars",
		InstructionPack: "# Agent Soul (ellis)\nUse {curly} braces freely",
		Context: contractx.MemberContext{
			Facts: []contractx.Fact{{Category: "location", Fact: "Miami", Confidence: 0.9}},
			RecentTurns: []contractx.Turn{
				{Direction: contractx.DirectionOutbound, Concierge: contractx.ConciergeEllis, MessageText: "Where are you based?"},
				{Direction: contractx.DirectionInbound, MessageText: "Miami"},
			},
		},
	})
	if err != nil {
		t.Fatalf("GenerateReply() error = %v", err)
	}
	if out != "Love that. What neighborhood in Miami?" {
		t.Fatalf("GenerateReply() = %q", out)
	}

	system := fake.lastInput[0].Content
	if !strings.HasPrefix(system, "# Agent Soul (ellis)") || !strings.Contains(system, "You are Ellis") {
		t.Fatalf("system prompt = %q", system)
	}

	var payload replyPayload
	if err := json.Unmarshal([]byte(fake.lastInput[1].Content), &payload); err != nil {
		t.Fatalf("user payload is not json: %v", err)
	}
	if !payload.LocationKnown {
		t.Fatal("LocationKnown = false, want true")
	}
	if payload.IncomingMessage != "I like {jazz} bars" {
		t.Fatalf("IncomingMessage = %q", payload.IncomingMessage)
	}
	if len(payload.RecentTurns) != 2 || payload.RecentTurns[1].Speaker != "Member" {
		t.Fatalf("RecentTurns = %#v", payload.RecentTurns)
	}
	if *fake.lastOpts.Temperature != 0.3 || *fake.lastOpts.MaxTokens != 180 {
		t.Fatalf("options = temp %v, max %v", *fake.lastOpts.Temperature, *fake.lastOpts.MaxTokens)
	}
}

func TestHasLocationFact(t *testing.T) {
	t.Parallel()

	if hasLocationFact(contractx.MemberContext{Summary: "Enjoys wine tastings"}) {
		t.Fatal("expected no location")
	}
	if !hasLocationFact(contractx.MemberContext{Summary: "Recently moved to New York"}) {
		t.Fatal("expected location from summary")
	}
}

func TestEmbed(t *testing.T) {
	t.Parallel()

	c := newFakeClient(t, nil, &fakeEmbedder{out: [][]float32{{1, 0}}})
	out, err := c.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(out) != 1 || out[0][0] != 1 {
		t.Fatalf("Embed() = %v", out)
	}

	mismatched := newFakeClient(t, nil, &fakeEmbedder{out: [][]float32{{1}}})
	if out, _ := mismatched.Embed(context.Background(), []string{"a", "b"}); out != nil {
		t.Fatalf("Embed() with short response = %v, want nil", out)
	}

	failing := newFakeClient(t, nil, &fakeEmbedder{err: errors.New("boom")})
	if _, err := failing.Embed(context.Background(), []string{"a"}); !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("Embed() error = %v, want ErrModelInvoke", err)
	}
}
