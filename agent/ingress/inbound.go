package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	classifyx "github.com/tanpawarit/Vault-Concierge/agent/classify"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

// inboundSMS is the subset of the Twilio messaging webhook the router needs.
type inboundSMS struct {
	From       string
	Body       string
	OptOutType string
	MessageSID string
}

func parseInboundSMS(r *http.Request) (inboundSMS, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return inboundSMS{}, err
		}
		return inboundSMS{
			From:       firstNonEmpty(r.PostForm.Get("From"), r.PostForm.Get("from")),
			Body:       firstNonEmpty(r.PostForm.Get("Body"), r.PostForm.Get("body")),
			OptOutType: firstNonEmpty(r.PostForm.Get("OptOutType"), r.PostForm.Get("optOutType")),
			MessageSID: firstNonEmpty(r.PostForm.Get("MessageSid"), r.PostForm.Get("messageSid")),
		}, nil
	}

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return inboundSMS{}, err
	}
	field := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := raw[k].(string); ok && v != "" {
				return v
			}
		}
		return ""
	}
	return inboundSMS{
		From:       field("From", "from"),
		Body:       field("Body", "body"),
		OptOutType: field("OptOutType", "optOutType"),
		MessageSID: field("MessageSid", "messageSid"),
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// handleInboundSMS records the inbound turn and emits sms.inbound.received.
// A webhook retried with the same MessageSid is acknowledged without a second
// event. When the emit fails the turn is removed again so the carrier's retry
// starts over.
func (s *Server) handleInboundSMS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	msg, err := parseInboundSMS(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	text := strings.TrimSpace(msg.Body)
	optOut := strings.ToUpper(strings.TrimSpace(msg.OptOutType))
	if strings.TrimSpace(msg.From) == "" || (text == "" && optOut != "STOP") {
		writeError(w, http.StatusBadRequest, "Missing sender or message body.")
		return
	}

	from := classifyx.NormalizePhone(msg.From)
	member, err := s.store.GetMemberByPhone(ctx, from)
	if errors.Is(err, contractx.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No invited member found for sender.")
		return
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("load member by phone")
		writeError(w, http.StatusInternalServerError, "unable to load member")
		return
	}

	turn := &contractx.Turn{
		MemberID:    member.ID,
		Concierge:   contractx.ConciergeSystem,
		Level:       member.Level,
		Channel:     contractx.ChannelSMS,
		Direction:   contractx.DirectionInbound,
		MessageText: text,
	}
	sid := strings.TrimSpace(msg.MessageSID)
	if sid != "" {
		turn.IdempotencyKey = "inbound:" + sid
	}
	inserted, err := s.store.AppendTurn(ctx, turn)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("member_id", member.ID).Msg("record inbound turn")
		writeError(w, http.StatusInternalServerError, "unable to record message")
		return
	}
	if !inserted {
		log.Ctx(ctx).Info().Str("member_id", member.ID).Str("message_sid", msg.MessageSID).Msg("duplicate inbound webhook")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}

	if err := s.events.Send(ctx, contractx.InboundReceived{
		MemberID:    member.ID,
		From:        from,
		MessageText: text,
		OptOutType:  optOut,
		MessageSID:  sid,
	}); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("member_id", member.ID).Msg("emit sms.inbound.received")
		if turn.IdempotencyKey != "" {
			if derr := s.store.DeleteTurn(context.WithoutCancel(ctx), member.ID, turn.IdempotencyKey); derr != nil {
				log.Ctx(ctx).Error().Err(derr).
					Str("member_id", member.ID).
					Str("message_sid", sid).
					Msg("remove unrouted inbound turn")
			}
		}
		writeError(w, http.StatusInternalServerError, "unable to route message")
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
