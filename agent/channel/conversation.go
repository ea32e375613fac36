package channel

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

// TurnRecorder appends conversation turns.
type TurnRecorder interface {
	AppendTurn(ctx context.Context, t *contractx.Turn) (bool, error)
}

// ConciergeMessage is one outbound message spoken by a concierge.
type ConciergeMessage struct {
	Concierge      contractx.Concierge
	Level          int
	Body           string
	Workflow       string
	IdempotencyKey string
}

// SendAndRecord sends msg to the member and records the outbound turn under the
// same idempotency key. A retry after a partial failure neither sends twice nor
// records twice.
func SendAndRecord(
	ctx context.Context,
	gw contractx.Gateway,
	rec TurnRecorder,
	member *contractx.Member,
	msg ConciergeMessage,
) (contractx.SendResult, error) {
	if member == nil {
		return contractx.SendResult{}, fmt.Errorf("%w: member is nil", contractx.ErrValidation)
	}

	res, err := gw.Send(ctx, contractx.OutboundMessage{
		Channel: contractx.ChannelSMS,
		To:      member.Phone,
		Body:    msg.Body,
		Metadata: map[string]string{
			"concierge": string(msg.Concierge),
			"workflow":  msg.Workflow,
		},
		IdempotencyKey: msg.IdempotencyKey,
	})
	if err != nil {
		return contractx.SendResult{}, fmt.Errorf("send %s message: %w", msg.Workflow, err)
	}

	if _, err := rec.AppendTurn(ctx, &contractx.Turn{
		MemberID:       member.ID,
		Concierge:      msg.Concierge,
		Level:          msg.Level,
		Channel:        contractx.ChannelSMS,
		Direction:      contractx.DirectionOutbound,
		MessageText:    msg.Body,
		IdempotencyKey: msg.IdempotencyKey,
	}); err != nil {
		return res, fmt.Errorf("record %s turn: %w", msg.Workflow, err)
	}
	return res, nil
}
