package inboundnode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	classifyx "github.com/tanpawarit/Vault-Concierge/agent/classify"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
	statex "github.com/tanpawarit/Vault-Concierge/agent/state"
)

// ResolveIntent tries the phrase classifier first and falls back to the model.
// Opted-out and do-not-contact members are routed without a decision.
func ResolveIntent(
	ctx context.Context,
	in *GraphState,
	model contractx.ModelClient,
	threshold float64,
) (*GraphState, error) {
	in.Decision = statex.DecisionUnresolved
	if in.OptOut || in.Member.IsDoNotContact() {
		return in, nil
	}

	if d, ok := deterministicDecision(in.Text); ok {
		in.Decision = d
		return in, nil
	}

	in.Hooks.BeforeModelCall(ctx)
	res, err := model.ClassifyIntent(ctx, in.Text)
	if err != nil {
		return nil, fmt.Errorf("classify inbound intent: %w", err)
	}
	in.Classification = res
	in.Decision = ModelDecision(res, threshold)

	if res != nil {
		log.Ctx(ctx).Debug().
			Str("member_id", in.MemberID).
			Str("label", string(res.Label)).
			Float64("confidence", res.Confidence).
			Str("decision", string(in.Decision)).
			Msg("model intent classification")
	}
	return in, nil
}

func deterministicDecision(text string) (statex.Decision, bool) {
	switch classifyx.ClassifyReply(text) {
	case classifyx.ReplyDecline:
		return statex.DecisionNegative, true
	case classifyx.ReplyInterest:
		return statex.DecisionAffirmative, true
	default:
		return "", false
	}
}

// ModelDecision accepts a classification only when it is confident and
// definitive.
func ModelDecision(res *contractx.IntentClassification, threshold float64) statex.Decision {
	if res == nil || res.Confidence < threshold {
		return statex.DecisionUnresolved
	}
	switch res.Label {
	case contractx.IntentAffirmative:
		return statex.DecisionAffirmative
	case contractx.IntentNegative:
		return statex.DecisionNegative
	default:
		return statex.DecisionUnresolved
	}
}
