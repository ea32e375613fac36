package inboundnode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

func LoadMember(ctx context.Context, in *GraphState, store contractx.MemberStore) (*GraphState, error) {
	if in == nil || in.MemberID == "" {
		return nil, fmt.Errorf("%w: member id is empty", contractx.ErrValidation)
	}

	member, err := store.GetMember(ctx, in.MemberID)
	if err != nil {
		return nil, fmt.Errorf("load member for inbound route: %w", err)
	}
	in.Member = member
	return in, nil
}
