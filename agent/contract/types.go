package contract

import (
	"time"
)

type MemberStatus string

const (
	MemberProspect     MemberStatus = "prospect"
	MemberGuest        MemberStatus = "guest"
	MemberVaulted      MemberStatus = "vaulted"
	MemberDoNotContact MemberStatus = "do_not_contact"
)

// Reachable lists every status a member may leave. do_not_contact is absorbing.
var Reachable = []MemberStatus{MemberProspect, MemberGuest, MemberVaulted}

type Concierge string

const (
	ConciergeKnox   Concierge = "Knox"
	ConciergeEllis  Concierge = "Ellis"
	ConciergeSloane Concierge = "Sloane"
	ConciergeVaughn Concierge = "Vaughn"
	ConciergeSystem Concierge = "System"
)

type InviteStatus string

const (
	InviteStatusQueued     InviteStatus = "queued"
	InviteStatusSent       InviteStatus = "sent"
	InviteStatusResponded  InviteStatus = "responded"
	InviteStatusDeclined   InviteStatus = "declined"
	InviteStatusNoResponse InviteStatus = "no_response"
)

type Channel string

const ChannelSMS Channel = "sms"

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type Member struct {
	ID                  string       `json:"id"`
	FirstName           string       `json:"first_name"`
	LastName            string       `json:"last_name"`
	Phone               string       `json:"phone"`
	NominatedByFullName string       `json:"nominated_by_full_name"`
	NominatorContext    string       `json:"nominator_context,omitempty"`
	Status              MemberStatus `json:"status"`
	Level               int          `json:"level"`
	AssignedConcierge   Concierge    `json:"assigned_concierge"`
	CreatedAt           time.Time    `json:"created_at"`
}

func (m *Member) IsDoNotContact() bool {
	return m != nil && m.Status == MemberDoNotContact
}

type Invite struct {
	ID          string       `json:"id"`
	MemberID    string       `json:"member_id"`
	Status      InviteStatus `json:"status"`
	Channel     Channel      `json:"channel"`
	SentAt      *time.Time   `json:"sent_at,omitempty"`
	RespondedAt *time.Time   `json:"responded_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Turn is one immutable inbound or outbound message. Outbound turns carry the
// idempotency key of the send that produced them.
type Turn struct {
	ID             string    `json:"id"`
	MemberID       string    `json:"member_id"`
	Concierge      Concierge `json:"concierge"`
	Level          int       `json:"level"`
	Channel        Channel   `json:"channel"`
	Direction      Direction `json:"direction"`
	MessageText    string    `json:"message_text"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Speaker is the transcript label for the turn.
func (t Turn) Speaker() string {
	if t.Direction == DirectionInbound {
		return "Member"
	}
	return string(t.Concierge)
}

type Fact struct {
	ID              string    `json:"id,omitempty"`
	MemberID        string    `json:"member_id"`
	Category        string    `json:"category"`
	Fact            string    `json:"fact"`
	Confidence      float64   `json:"confidence"`
	Source          string    `json:"source,omitempty"`
	IsActive        bool      `json:"is_active"`
	Embedding       []float32 `json:"-"`
	UpdatedAt       time.Time `json:"updated_at"`
	LastConfirmedAt time.Time `json:"last_confirmed_at,omitempty"`
}

type Summary struct {
	ID                 string    `json:"id,omitempty"`
	MemberID           string    `json:"member_id"`
	SummaryText        string    `json:"summary_text"`
	Embedding          []float32 `json:"-"`
	SourceMessageCount int       `json:"source_message_count"`
	CreatedAt          time.Time `json:"created_at"`
}

type MemoryEventType string

const (
	MemoryRefreshed      MemoryEventType = "memory_refreshed"
	MemoryRefreshSkipped MemoryEventType = "memory_refresh_skipped"
)

type MemoryEvent struct {
	MemberID  string          `json:"member_id"`
	EventType MemoryEventType `json:"event_type"`
	Payload   map[string]any  `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// InviteTransition moves invites matching From to To. Exactly one of InviteID
// or MemberID selects the rows.
type InviteTransition struct {
	InviteID string
	MemberID string
	From     []InviteStatus
	To       InviteStatus
	At       time.Time
}

// MemberTransition updates a member only while its status is in From.
// Zero Level or empty Concierge leave those columns untouched.
type MemberTransition struct {
	MemberID  string
	From      []MemberStatus
	To        MemberStatus
	Level     int
	Concierge Concierge
}

/* ------------------------------ model I/O ------------------------------ */

type IntentLabel string

const (
	IntentAffirmative IntentLabel = "affirmative"
	IntentNegative    IntentLabel = "negative"
	IntentNeutral     IntentLabel = "neutral"
	IntentAmbiguous   IntentLabel = "ambiguous"
)

func (l IntentLabel) Valid() bool {
	switch l {
	case IntentAffirmative, IntentNegative, IntentNeutral, IntentAmbiguous:
		return true
	}
	return false
}

type IntentClassification struct {
	Label      IntentLabel `json:"label"`
	Confidence float64     `json:"confidence"`
	Rationale  string      `json:"rationale,omitempty"`
}

type ExtractedFact struct {
	Category   string  `json:"category"`
	Fact       string  `json:"fact"`
	Confidence float64 `json:"confidence"`
}

type MemoryExtraction struct {
	Summary string          `json:"summary"`
	Facts   []ExtractedFact `json:"facts"`
}

// MemberContext is the bounded grounding handed to reply generation.
type MemberContext struct {
	Summary     string `json:"summary,omitempty"`
	Facts       []Fact `json:"facts"`
	RecentTurns []Turn `json:"recent_turns"`
}

type ReplyRequest struct {
	MemberFirstName string
	IncomingMessage string
	Context         MemberContext
	InstructionPack string
}

/* ------------------------------ messaging ------------------------------ */

type OutboundMessage struct {
	Channel        Channel           `json:"channel"`
	To             string            `json:"to"`
	Body           string            `json:"body"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

type SendResult struct {
	Provider          string `json:"provider"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Mock              bool   `json:"mock"`
}
