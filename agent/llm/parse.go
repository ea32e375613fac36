package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

const (
	maxCategoryLen    = 64
	maxFactLen        = 512
	maxSummaryLen     = 1200
	defaultConfidence = 0.7

	replyFactLimit = 6
	replyTurnLimit = 8
)

var locationTokens = []string{
	"city", "miami", "new york", "los angeles", "austin", "san francisco", "location",
}

type classificationOutput struct {
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence"`
	Rationale  string   `json:"rationale"`
}

type extractedFactOutput struct {
	Category   string   `json:"category"`
	Fact       string   `json:"fact"`
	Confidence *float64 `json:"confidence"`
}

type extractionOutput struct {
	Summary string                `json:"summary"`
	Facts   []extractedFactOutput `json:"facts"`
}

type replyInput struct {
	Request contractx.ReplyRequest
}

func normalizeClassification(out *classificationOutput) *contractx.IntentClassification {
	if out == nil || out.Confidence == nil {
		return nil
	}
	label := contractx.IntentLabel(strings.TrimSpace(out.Label))
	if !label.Valid() {
		return nil
	}
	return &contractx.IntentClassification{
		Label:      label,
		Confidence: clamp01(*out.Confidence),
		Rationale:  strings.TrimSpace(out.Rationale),
	}
}

func normalizeExtraction(out *extractionOutput) *contractx.MemoryExtraction {
	if out == nil {
		return nil
	}
	summary := strings.TrimSpace(out.Summary)
	if summary == "" {
		return nil
	}

	facts := make([]contractx.ExtractedFact, 0, len(out.Facts))
	for _, f := range out.Facts {
		if nf, ok := normalizeFact(f); ok {
			facts = append(facts, nf)
		}
	}

	return &contractx.MemoryExtraction{
		Summary: truncateRunes(summary, maxSummaryLen),
		Facts:   facts,
	}
}

func normalizeFact(f extractedFactOutput) (contractx.ExtractedFact, bool) {
	if f.Category == "" || strings.TrimSpace(f.Fact) == "" {
		return contractx.ExtractedFact{}, false
	}
	conf := defaultConfidence
	if f.Confidence != nil {
		conf = *f.Confidence
	}
	return contractx.ExtractedFact{
		Category:   truncateRunes(f.Category, maxCategoryLen),
		Fact:       truncateRunes(strings.TrimSpace(f.Fact), maxFactLen),
		Confidence: clamp01(conf),
	}, true
}

// hasLocationFact reports whether the summary or any fact already mentions
// where the member is based.
func hasLocationFact(mc contractx.MemberContext) bool {
	var b strings.Builder
	b.WriteString(mc.Summary)
	for _, f := range mc.Facts {
		b.WriteString(" ")
		b.WriteString(f.Category)
		b.WriteString(" ")
		b.WriteString(f.Fact)
	}
	corpus := strings.ToLower(b.String())
	for _, token := range locationTokens {
		if strings.Contains(corpus, token) {
			return true
		}
	}
	return false
}

type replyFact struct {
	Category   string  `json:"category"`
	Fact       string  `json:"fact"`
	Confidence float64 `json:"confidence"`
}

type replyTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type replyPayload struct {
	MemberFirstName string      `json:"memberFirstName"`
	Summary         string      `json:"summary,omitempty"`
	KeyFacts        []replyFact `json:"keyFacts"`
	RecentTurns     []replyTurn `json:"recentTurns"`
	IncomingMessage string      `json:"incomingMessage"`
	LocationKnown   bool        `json:"locationKnown"`
}

func buildReplyMessages(in replyInput, systemPrompt string) ([]*schema.Message, error) {
	req := in.Request
	mc := req.Context

	facts := mc.Facts
	if len(facts) > replyFactLimit {
		facts = facts[:replyFactLimit]
	}
	keyFacts := make([]replyFact, 0, len(facts))
	for _, f := range facts {
		keyFacts = append(keyFacts, replyFact{Category: f.Category, Fact: f.Fact, Confidence: f.Confidence})
	}

	turns := mc.RecentTurns
	if len(turns) > replyTurnLimit {
		turns = turns[len(turns)-replyTurnLimit:]
	}
	recent := make([]replyTurn, 0, len(turns))
	for _, t := range turns {
		recent = append(recent, replyTurn{Speaker: t.Speaker(), Text: t.MessageText})
	}

	payload, err := json.Marshal(replyPayload{
		MemberFirstName: req.MemberFirstName,
		Summary:         mc.Summary,
		KeyFacts:        keyFacts,
		RecentTurns:     recent,
		IncomingMessage: req.IncomingMessage,
		LocationKnown:   hasLocationFact(mc),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal reply payload: %v", contractx.ErrValidation, err)
	}

	system := systemPrompt
	if pack := strings.TrimSpace(req.InstructionPack); pack != "" {
		system = pack + "\n\n" + systemPrompt
	}

	return []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(string(payload)),
	}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
