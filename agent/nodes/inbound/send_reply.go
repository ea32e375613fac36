package inboundnode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	channelx "github.com/tanpawarit/Vault-Concierge/agent/channel"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
	statex "github.com/tanpawarit/Vault-Concierge/agent/state"
)

type ReplyDeps struct {
	Store        contractx.Store
	Gateway      contractx.Gateway
	Model        contractx.ModelClient
	Context      contractx.ContextBuilder
	Instructions string
}

func SendReply(ctx context.Context, in *GraphState, deps ReplyDeps) (*GraphState, error) {
	var msg channelx.ConciergeMessage

	switch in.Transition.Effects.Reply {
	case statex.ReplyNone:
		return in, nil
	case statex.ReplyEllisGenerated:
		body, err := ellisReply(ctx, in, deps)
		if err != nil {
			return nil, err
		}
		msg = channelx.ConciergeMessage{
			Concierge:      contractx.ConciergeEllis,
			Level:          ellisLevel,
			Body:           body,
			Workflow:       "onboarding_followup",
			IdempotencyKey: fmt.Sprintf("ellis-followup:%s:%s", in.MemberID, strings.ToLower(in.Text)),
		}
	case statex.ReplyKnoxInfo, statex.ReplyKnoxExplicit:
		body := knoxExplicitText
		if in.Transition.Effects.Reply == statex.ReplyKnoxInfo {
			body = knoxInfoText
		}
		msg = channelx.ConciergeMessage{
			Concierge:      contractx.ConciergeKnox,
			Level:          in.Member.Level,
			Body:           body,
			Workflow:       "clarification",
			IdempotencyKey: "knox-clarification:" + in.MemberID,
		}
	default:
		return nil, fmt.Errorf("%w: reply kind %q", contractx.ErrValidation, in.Transition.Effects.Reply)
	}

	if _, err := channelx.SendAndRecord(ctx, deps.Gateway, deps.Store, in.Member, msg); err != nil {
		return nil, err
	}
	in.Sent = true
	in.Hooks.MessageSent(ctx)
	return in, nil
}

// ellisReply grounds a generated reply in the member's memory. Generation
// failures fall back to asking for the member's city.
func ellisReply(ctx context.Context, in *GraphState, deps ReplyDeps) (string, error) {
	mc, err := deps.Context.Build(ctx, in.MemberID, in.Text)
	if err != nil {
		return "", fmt.Errorf("build member context: %w", err)
	}

	in.Hooks.BeforeModelCall(ctx)
	reply, err := deps.Model.GenerateReply(ctx, contractx.ReplyRequest{
		MemberFirstName: in.Member.FirstName,
		IncomingMessage: in.Text,
		Context:         mc,
		InstructionPack: deps.Instructions,
	})
	if err != nil {
		log.Ctx(ctx).Warn().
			Err(err).
			Str("member_id", in.MemberID).
			Msg("ellis reply generation failed")
		return ellisFallbackText, nil
	}
	if strings.TrimSpace(reply) == "" {
		return ellisFallbackText, nil
	}
	return reply, nil
}
