package inboundnode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

// ApplyEffects runs the transition's conditioned store updates and emits the
// handoff event. Each step is a no-op when replayed.
func ApplyEffects(
	ctx context.Context,
	in *GraphState,
	store contractx.Store,
	events contractx.EventSender,
) (*GraphState, error) {
	effects := in.Transition.Effects
	mt, it := effects.Bind(in.MemberID)

	if mt != nil {
		if _, err := store.TransitionMember(ctx, *mt); err != nil {
			return nil, fmt.Errorf("transition member to %s: %w", mt.To, err)
		}
	}
	if it != nil {
		it.At = in.Now
		if _, err := store.TransitionInvite(ctx, *it); err != nil {
			return nil, fmt.Errorf("transition invites to %s: %w", it.To, err)
		}
	}
	if effects.EmitHandoff {
		if err := events.Send(ctx, contractx.HandoffRequested{
			MemberID:      in.MemberID,
			FromConcierge: contractx.ConciergeKnox,
			ToConcierge:   contractx.ConciergeEllis,
		}); err != nil {
			return nil, fmt.Errorf("emit handoff: %w", err)
		}
	}
	return in, nil
}
