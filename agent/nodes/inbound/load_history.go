package inboundnode

import (
	"context"
	"fmt"

	classifyx "github.com/tanpawarit/Vault-Concierge/agent/classify"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
	statex "github.com/tanpawarit/Vault-Concierge/agent/state"
)

// LoadHistory gathers what the Knox clarification rows need. Other routes
// skip the lookup.
func LoadHistory(ctx context.Context, in *GraphState, store contractx.ConversationStore) (*GraphState, error) {
	if in.OptOut || in.Decision != statex.DecisionUnresolved ||
		in.Member.IsDoNotContact() || in.Member.AssignedConcierge != contractx.ConciergeKnox {
		return in, nil
	}

	in.InfoSeeking = classifyx.IsInfoSeekingReply(in.Text)

	n, err := store.CountOutboundContaining(ctx, in.MemberID, contractx.ConciergeKnox, ClarificationMarker)
	if err != nil {
		return nil, fmt.Errorf("count prior clarifications: %w", err)
	}
	in.PriorClarification = n > 0
	return in, nil
}
