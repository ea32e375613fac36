package workflow

import (
	"context"
	"fmt"

	channelx "github.com/tanpawarit/Vault-Concierge/agent/channel"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

func (e *Engine) handoff(ctx context.Context, ev contractx.HandoffRequested) (Result, error) {
	member, err := e.store.GetMember(ctx, ev.MemberID)
	if err != nil {
		return Result{}, fmt.Errorf("load member for handoff: %w", err)
	}
	if member.IsDoNotContact() {
		return Result{Event: ev.Name(), Outcome: OutcomeIgnored}, nil
	}

	steps := []channelx.ConciergeMessage{
		{
			Concierge:      contractx.ConciergeKnox,
			Level:          knoxLevel,
			Body:           knoxHandoffText,
			Workflow:       "handoff",
			IdempotencyKey: fmt.Sprintf("handoff:%s:knox", member.ID),
		},
		{
			Concierge:      contractx.ConciergeEllis,
			Level:          ellisLevel,
			Body:           ellisOpeningText,
			Workflow:       "onboarding",
			IdempotencyKey: fmt.Sprintf("handoff:%s:ellis", member.ID),
		},
	}
	for _, msg := range steps {
		if _, err := channelx.SendAndRecord(ctx, e.gateway, e.store, member, msg); err != nil {
			return Result{}, err
		}
	}

	if _, err := e.store.TransitionMember(ctx, contractx.MemberTransition{
		MemberID:  member.ID,
		From:      []contractx.MemberStatus{contractx.MemberProspect},
		To:        contractx.MemberGuest,
		Level:     ellisLevel,
		Concierge: contractx.ConciergeEllis,
	}); err != nil {
		return Result{}, fmt.Errorf("promote member to guest: %w", err)
	}

	return Result{Event: ev.Name(), Outcome: OutcomeHandedOff}, nil
}
