package inboundnode

import (
	"context"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

// RequestRefresh asks for a memory refresh. A failed emit never fails routing.
func RequestRefresh(ctx context.Context, in *GraphState, events contractx.EventSender) (*GraphState, error) {
	err := events.Send(ctx, contractx.MemoryRefreshRequested{
		MemberID:    in.MemberID,
		SourceEvent: contractx.EventInboundReceived,
	})
	if err != nil {
		log.Ctx(ctx).Warn().
			Err(err).
			Str("member_id", in.MemberID).
			Msg("memory refresh request failed")
	}
	return in, nil
}
