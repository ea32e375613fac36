package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
	qstashx "github.com/tanpawarit/Vault-Concierge/pkg/qstash"
)

type Publisher interface {
	Publish(ctx context.Context, req qstashx.PublishRequest) (string, error)
}

var _ contractx.EventSender = (*QStash)(nil)

// QStash publishes event envelopes for delivery to the /api/events endpoint.
type QStash struct {
	publisher   Publisher
	destination string
}

func NewQStash(p Publisher, destination string) *QStash {
	return &QStash{publisher: p, destination: destination}
}

func (s *QStash) Send(ctx context.Context, evt contractx.Event) error {
	env, err := contractx.EncodeEvent(evt)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	id, err := s.publisher.Publish(ctx, qstashx.PublishRequest{
		Destination:     s.destination,
		Body:            body,
		DeduplicationID: DeduplicationID(evt),
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", evt.Name(), err)
	}

	log.Ctx(ctx).Debug().
		Str("event", string(evt.Name())).
		Str("message_id", id).
		Msg("event published")
	return nil
}

// DeduplicationID returns the id QStash uses to drop repeated publishes of the
// same logical event. Inbound messages are keyed by carrier message id when
// they have one, so two identical texts are still two turns. Refresh requests
// are never deduplicated.
func DeduplicationID(evt contractx.Event) string {
	switch e := evt.(type) {
	case contractx.InviteQueued:
		return "vault-invite-queued-" + e.InviteID
	case contractx.HandoffRequested:
		return "vault-handoff-" + e.MemberID
	case contractx.InboundReceived:
		if e.MessageSID == "" {
			return ""
		}
		return "vault-inbound-" + e.MessageSID
	default:
		return ""
	}
}
