package store

import (
	"strings"
	"time"

	"github.com/google/uuid"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

const FactSourceExtraction = "llm_extraction"

// prepareMember fills the creation defaults: prospect, level 1, Knox.
func prepareMember(m *contractx.Member, now time.Time) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Status = contractx.MemberProspect
	m.Level = 1
	m.AssignedConcierge = contractx.ConciergeKnox
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
}

func prepareInvite(inv *contractx.Invite, memberID string, now time.Time) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	inv.MemberID = memberID
	inv.Status = contractx.InviteStatusQueued
	inv.Channel = contractx.ChannelSMS
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
}

func prepareTurn(t *contractx.Turn, now time.Time) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Channel == "" {
		t.Channel = contractx.ChannelSMS
	}
	if t.Level < 1 {
		t.Level = 1
	}
	t.IdempotencyKey = strings.TrimSpace(t.IdempotencyKey)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
}

func prepareFact(f *contractx.Fact, now time.Time) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Source == "" {
		f.Source = FactSourceExtraction
	}
	f.IsActive = true
	f.UpdatedAt = now
	f.LastConfirmedAt = now
}

func prepareSummary(s *contractx.Summary, now time.Time) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
}

// inviteTimestamps returns which timestamp column a transition into to sets.
func inviteTimestamps(to contractx.InviteStatus) (sent, responded bool) {
	switch to {
	case contractx.InviteStatusSent:
		return true, false
	case contractx.InviteStatusResponded, contractx.InviteStatusDeclined:
		return false, true
	}
	return false, false
}
