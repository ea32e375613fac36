package store

import (
	"time"

	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
	"github.com/uptrace/bun"
)

type memberModel struct {
	bun.BaseModel `bun:"table:members,alias:m"`

	ID                  string    `bun:"id,pk,type:uuid"`
	FirstName           string    `bun:"first_name,notnull"`
	LastName            string    `bun:"last_name,notnull"`
	Phone               string    `bun:"phone,notnull"`
	NominatedByFullName string    `bun:"nominated_by_full_name,notnull"`
	NominatorContext    string    `bun:"nominator_context,nullzero"`
	Status              string    `bun:"status,notnull"`
	Level               int       `bun:"level,notnull"`
	AssignedConcierge   string    `bun:"assigned_concierge,notnull"`
	CreatedAt           time.Time `bun:"created_at,notnull"`
}

type inviteModel struct {
	bun.BaseModel `bun:"table:invites,alias:i"`

	ID          string     `bun:"id,pk,type:uuid"`
	MemberID    string     `bun:"member_id,type:uuid,notnull"`
	Status      string     `bun:"status,notnull"`
	Channel     string     `bun:"channel,notnull"`
	SentAt      *time.Time `bun:"sent_at"`
	RespondedAt *time.Time `bun:"responded_at"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
}

type turnModel struct {
	bun.BaseModel `bun:"table:conversations,alias:c"`

	ID             string    `bun:"id,pk,type:uuid"`
	MemberID       string    `bun:"member_id,type:uuid,notnull"`
	Concierge      string    `bun:"concierge,notnull"`
	Level          int       `bun:"level,notnull"`
	Channel        string    `bun:"channel,notnull"`
	Direction      string    `bun:"direction,notnull"`
	MessageText    string    `bun:"message_text,notnull"`
	IdempotencyKey string    `bun:"idempotency_key,nullzero"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

type factModel struct {
	bun.BaseModel `bun:"table:member_facts,alias:f"`

	ID              string    `bun:"id,pk,type:uuid"`
	MemberID        string    `bun:"member_id,type:uuid,notnull"`
	Category        string    `bun:"category,notnull"`
	Fact            string    `bun:"fact,notnull"`
	Confidence      float64   `bun:"confidence,notnull"`
	Source          string    `bun:"source,notnull"`
	IsActive        bool      `bun:"is_active,notnull"`
	Embedding       Vector    `bun:"fact_embedding,type:vector"`
	UpdatedAt       time.Time `bun:"updated_at,notnull"`
	LastConfirmedAt time.Time `bun:"last_confirmed_at,notnull"`
}

type summaryModel struct {
	bun.BaseModel `bun:"table:conversation_summaries,alias:s"`

	ID                 string    `bun:"id,pk,type:uuid"`
	MemberID           string    `bun:"member_id,type:uuid,notnull"`
	SummaryText        string    `bun:"summary_text,notnull"`
	Embedding          Vector    `bun:"summary_embedding,type:vector"`
	SourceMessageCount int       `bun:"source_message_count,notnull"`
	CreatedAt          time.Time `bun:"created_at,notnull"`
}

type memoryEventModel struct {
	bun.BaseModel `bun:"table:memory_events,alias:e"`

	ID        int64          `bun:"id,pk,autoincrement"`
	MemberID  string         `bun:"member_id,type:uuid,notnull"`
	EventType string         `bun:"event_type,notnull"`
	Payload   map[string]any `bun:"payload,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,notnull"`
}

/* ----------------------------- conversions ----------------------------- */

func memberFromModel(m memberModel) *contractx.Member {
	return &contractx.Member{
		ID:                  m.ID,
		FirstName:           m.FirstName,
		LastName:            m.LastName,
		Phone:               m.Phone,
		NominatedByFullName: m.NominatedByFullName,
		NominatorContext:    m.NominatorContext,
		Status:              contractx.MemberStatus(m.Status),
		Level:               m.Level,
		AssignedConcierge:   contractx.Concierge(m.AssignedConcierge),
		CreatedAt:           m.CreatedAt,
	}
}

func memberToModel(m *contractx.Member) *memberModel {
	return &memberModel{
		ID:                  m.ID,
		FirstName:           m.FirstName,
		LastName:            m.LastName,
		Phone:               m.Phone,
		NominatedByFullName: m.NominatedByFullName,
		NominatorContext:    m.NominatorContext,
		Status:              string(m.Status),
		Level:               m.Level,
		AssignedConcierge:   string(m.AssignedConcierge),
		CreatedAt:           m.CreatedAt,
	}
}

func inviteFromModel(m inviteModel) *contractx.Invite {
	return &contractx.Invite{
		ID:          m.ID,
		MemberID:    m.MemberID,
		Status:      contractx.InviteStatus(m.Status),
		Channel:     contractx.Channel(m.Channel),
		SentAt:      m.SentAt,
		RespondedAt: m.RespondedAt,
		CreatedAt:   m.CreatedAt,
	}
}

func inviteToModel(inv *contractx.Invite) *inviteModel {
	return &inviteModel{
		ID:          inv.ID,
		MemberID:    inv.MemberID,
		Status:      string(inv.Status),
		Channel:     string(inv.Channel),
		SentAt:      inv.SentAt,
		RespondedAt: inv.RespondedAt,
		CreatedAt:   inv.CreatedAt,
	}
}

func turnFromModel(m turnModel) contractx.Turn {
	return contractx.Turn{
		ID:             m.ID,
		MemberID:       m.MemberID,
		Concierge:      contractx.Concierge(m.Concierge),
		Level:          m.Level,
		Channel:        contractx.Channel(m.Channel),
		Direction:      contractx.Direction(m.Direction),
		MessageText:    m.MessageText,
		IdempotencyKey: m.IdempotencyKey,
		CreatedAt:      m.CreatedAt,
	}
}

func turnToModel(t *contractx.Turn) *turnModel {
	return &turnModel{
		ID:             t.ID,
		MemberID:       t.MemberID,
		Concierge:      string(t.Concierge),
		Level:          t.Level,
		Channel:        string(t.Channel),
		Direction:      string(t.Direction),
		MessageText:    t.MessageText,
		IdempotencyKey: t.IdempotencyKey,
		CreatedAt:      t.CreatedAt,
	}
}

func factFromModel(m factModel) contractx.Fact {
	return contractx.Fact{
		ID:              m.ID,
		MemberID:        m.MemberID,
		Category:        m.Category,
		Fact:            m.Fact,
		Confidence:      m.Confidence,
		Source:          m.Source,
		IsActive:        m.IsActive,
		Embedding:       []float32(m.Embedding),
		UpdatedAt:       m.UpdatedAt,
		LastConfirmedAt: m.LastConfirmedAt,
	}
}

func factsFromModels(ms []factModel) []contractx.Fact {
	out := make([]contractx.Fact, 0, len(ms))
	for _, m := range ms {
		out = append(out, factFromModel(m))
	}
	return out
}
