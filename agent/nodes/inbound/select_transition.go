package inboundnode

import (
	"context"

	"github.com/rs/zerolog/log"
	statex "github.com/tanpawarit/Vault-Concierge/agent/state"
)

func SelectTransition(ctx context.Context, in *GraphState) (*GraphState, error) {
	t, err := statex.Resolve(in.Input())
	if err != nil {
		return nil, err
	}
	in.Transition = t

	log.Ctx(ctx).Info().
		Str("member_id", in.MemberID).
		Str("decision", string(in.Decision)).
		Str("route", string(t.Route)).
		Msg("inbound routed")
	return in, nil
}
