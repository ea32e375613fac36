package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	channelx "github.com/tanpawarit/Vault-Concierge/agent/channel"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

// sendInvite delivers the Knox invite once. Invites that are missing or already
// past queued are replays and are ignored.
func (e *Engine) sendInvite(ctx context.Context, ev contractx.InviteQueued) (Result, error) {
	ignored := Result{Event: ev.Name(), Outcome: OutcomeIgnored}

	inv, err := e.store.GetInvite(ctx, ev.InviteID)
	if errors.Is(err, contractx.ErrNotFound) {
		log.Ctx(ctx).Warn().Str("invite_id", ev.InviteID).Msg("invite not found")
		return ignored, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("load invite: %w", err)
	}
	if inv.Status != contractx.InviteStatusQueued {
		log.Ctx(ctx).Debug().
			Str("invite_id", inv.ID).
			Str("status", string(inv.Status)).
			Msg("stale invite event")
		return ignored, nil
	}

	member, err := e.store.GetMember(ctx, inv.MemberID)
	if err != nil {
		return Result{}, fmt.Errorf("load member for invite: %w", err)
	}
	if member.IsDoNotContact() {
		return ignored, nil
	}

	if _, err := channelx.SendAndRecord(ctx, e.gateway, e.store, member, channelx.ConciergeMessage{
		Concierge:      contractx.ConciergeKnox,
		Level:          knoxLevel,
		Body:           knoxInviteText(member),
		Workflow:       "invite",
		IdempotencyKey: fmt.Sprintf("invite:%s:knox", inv.ID),
	}); err != nil {
		return Result{}, err
	}

	if _, err := e.store.TransitionInvite(ctx, contractx.InviteTransition{
		InviteID: inv.ID,
		From:     []contractx.InviteStatus{contractx.InviteStatusQueued},
		To:       contractx.InviteStatusSent,
		At:       e.now().UTC(),
	}); err != nil {
		return Result{}, fmt.Errorf("mark invite sent: %w", err)
	}

	return Result{Event: ev.Name(), Outcome: OutcomeSent}, nil
}
