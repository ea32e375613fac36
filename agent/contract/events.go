package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type EventName string

const (
	EventInviteQueued           EventName = "vault/invite.queued"
	EventInboundReceived        EventName = "vault/sms.inbound.received"
	EventHandoffRequested       EventName = "vault/member.handoff.requested"
	EventMemoryRefreshRequested EventName = "vault/memory.refresh.requested"
)

// Event is the closed set of domain events. Only the variants declared in this
// file satisfy it.
type Event interface {
	Name() EventName
	// Key is the serialization key: two events with the same key never run concurrently.
	Key() string
	validate() error
}

type InviteQueued struct {
	MemberID string `json:"memberId"`
	InviteID string `json:"inviteId"`
}

type InboundReceived struct {
	MemberID    string `json:"memberId"`
	From        string `json:"from,omitempty"`
	MessageText string `json:"messageText"`
	OptOutType  string `json:"optOutType,omitempty"`
	// MessageSID is the carrier's message id, when the webhook carried one.
	MessageSID string `json:"messageSid,omitempty"`
}

type HandoffRequested struct {
	MemberID      string    `json:"memberId"`
	FromConcierge Concierge `json:"fromConcierge,omitempty"`
	ToConcierge   Concierge `json:"toConcierge,omitempty"`
}

type MemoryRefreshRequested struct {
	MemberID    string    `json:"memberId"`
	SourceEvent EventName `json:"sourceEvent,omitempty"`
}

func (InviteQueued) Name() EventName           { return EventInviteQueued }
func (InboundReceived) Name() EventName        { return EventInboundReceived }
func (HandoffRequested) Name() EventName       { return EventHandoffRequested }
func (MemoryRefreshRequested) Name() EventName { return EventMemoryRefreshRequested }

func (e InviteQueued) Key() string           { return "invite:" + e.InviteID }
func (e InboundReceived) Key() string        { return MemberKey(e.MemberID) }
func (e HandoffRequested) Key() string       { return MemberKey(e.MemberID) }
func (e MemoryRefreshRequested) Key() string { return MemberKey(e.MemberID) }

func MemberKey(memberID string) string { return "member:" + memberID }

// IsOptOut reports whether the carrier flagged the message as a STOP opt-out.
func (e InboundReceived) IsOptOut() bool {
	return strings.EqualFold(strings.TrimSpace(e.OptOutType), "STOP")
}

func (e InviteQueued) validate() error {
	if strings.TrimSpace(e.InviteID) == "" {
		return fmt.Errorf("%w: inviteId is required", ErrValidation)
	}
	return nil
}

func (e InboundReceived) validate() error {
	if strings.TrimSpace(e.MemberID) == "" {
		return fmt.Errorf("%w: memberId is required", ErrValidation)
	}
	if strings.TrimSpace(e.MessageText) == "" && !e.IsOptOut() {
		return fmt.Errorf("%w: messageText is required", ErrValidation)
	}
	return nil
}

func (e HandoffRequested) validate() error {
	if strings.TrimSpace(e.MemberID) == "" {
		return fmt.Errorf("%w: memberId is required", ErrValidation)
	}
	return nil
}

func (e MemoryRefreshRequested) validate() error {
	if strings.TrimSpace(e.MemberID) == "" {
		return fmt.Errorf("%w: memberId is required", ErrValidation)
	}
	return nil
}

// Validate checks that evt carries the fields its handler needs.
func Validate(evt Event) error {
	if evt == nil {
		return fmt.Errorf("%w: nil event", ErrValidation)
	}
	return evt.validate()
}

// Envelope is the transport shape of an event.
type Envelope struct {
	Name EventName       `json:"name"`
	Data json.RawMessage `json:"data"`
}

func EncodeEvent(evt Event) (Envelope, error) {
	if err := Validate(evt); err != nil {
		return Envelope{}, err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", evt.Name(), err)
	}
	return Envelope{Name: evt.Name(), Data: data}, nil
}

func DecodeEvent(env Envelope) (Event, error) {
	var (
		evt Event
		err error
	)
	switch env.Name {
	case EventInviteQueued:
		evt, err = decodeAs[InviteQueued](env.Data)
	case EventInboundReceived:
		evt, err = decodeAs[InboundReceived](env.Data)
	case EventHandoffRequested:
		evt, err = decodeAs[HandoffRequested](env.Data)
	case EventMemoryRefreshRequested:
		evt, err = decodeAs[MemoryRefreshRequested](env.Data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrValidation, env.Name, err)
	}
	if err := evt.validate(); err != nil {
		return nil, err
	}
	return evt, nil
}

func decodeAs[T Event](raw json.RawMessage) (Event, error) {
	var out T
	if len(raw) == 0 {
		return nil, errors.New("empty data")
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
