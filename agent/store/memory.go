package store

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

var _ contractx.Store = (*Memory)(nil)

// Memory is an in-process store for local runs and tests. It mirrors the
// Postgres store's conditioned updates and uniqueness rules.
type Memory struct {
	mu sync.Mutex

	members   map[string]*contractx.Member
	invites   map[string]*contractx.Invite
	turns     []contractx.Turn
	turnKeys  map[string]struct{}
	facts     []*contractx.Fact
	summaries []contractx.Summary
	events    []contractx.MemoryEvent

	now func() time.Time
	seq int64
}

func NewMemory() *Memory {
	return &Memory{
		members:  make(map[string]*contractx.Member),
		invites:  make(map[string]*contractx.Invite),
		turnKeys: make(map[string]struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// tick returns a strictly increasing timestamp so ordering by time is stable.
func (s *Memory) tick() time.Time {
	s.seq++
	return s.now().Add(time.Duration(s.seq) * time.Microsecond)
}

func (s *Memory) GetMember(ctx context.Context, memberID string) (*contractx.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberID]
	if !ok {
		return nil, fmt.Errorf("%w: member %s", contractx.ErrNotFound, memberID)
	}
	cp := *m
	return &cp, nil
}

func (s *Memory) GetMemberByPhone(ctx context.Context, phone string) (*contractx.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.Phone == phone {
			cp := *m
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: member with phone %s", contractx.ErrNotFound, phone)
}

func (s *Memory) TransitionMember(ctx context.Context, t contractx.MemberTransition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[t.MemberID]
	if !ok || !slices.Contains(t.From, m.Status) {
		return false, nil
	}
	m.Status = t.To
	if t.Level > 0 {
		m.Level = t.Level
	}
	if t.Concierge != "" {
		m.AssignedConcierge = t.Concierge
	}
	return true, nil
}

func (s *Memory) CreateMemberWithInvite(ctx context.Context, m *contractx.Member, inv *contractx.Invite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.members {
		if existing.Phone == m.Phone {
			return fmt.Errorf("%w: member with phone %s", contractx.ErrConflict, m.Phone)
		}
	}

	now := s.tick()
	prepareMember(m, now)
	prepareInvite(inv, m.ID, now)

	mc, ic := *m, *inv
	s.members[m.ID] = &mc
	s.invites[inv.ID] = &ic
	return nil
}

func (s *Memory) GetInvite(ctx context.Context, inviteID string) (*contractx.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[inviteID]
	if !ok {
		return nil, fmt.Errorf("%w: invite %s", contractx.ErrNotFound, inviteID)
	}
	cp := *inv
	return &cp, nil
}

func (s *Memory) TransitionInvite(ctx context.Context, t contractx.InviteTransition) (int64, error) {
	if t.InviteID == "" && t.MemberID == "" {
		return 0, fmt.Errorf("%w: invite transition needs an invite or member id", contractx.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	at := t.At
	if at.IsZero() {
		at = s.tick()
	}
	sent, responded := inviteTimestamps(t.To)

	var n int64
	for _, inv := range s.invites {
		if t.InviteID != "" && inv.ID != t.InviteID {
			continue
		}
		if t.InviteID == "" && inv.MemberID != t.MemberID {
			continue
		}
		if !slices.Contains(t.From, inv.Status) {
			continue
		}
		inv.Status = t.To
		if sent {
			ts := at
			inv.SentAt = &ts
		}
		if responded {
			ts := at
			inv.RespondedAt = &ts
		}
		n++
	}
	return n, nil
}

func (s *Memory) ListQueuedInvites(ctx context.Context, createdBefore time.Time, limit int) ([]contractx.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []contractx.Invite
	for _, inv := range s.invites {
		if inv.Status == contractx.InviteStatusQueued && inv.CreatedAt.Before(createdBefore) {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Memory) AppendTurn(ctx context.Context, t *contractx.Turn) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prepareTurn(t, s.tick())
	if t.IdempotencyKey != "" {
		if _, dup := s.turnKeys[t.IdempotencyKey]; dup {
			return false, nil
		}
		s.turnKeys[t.IdempotencyKey] = struct{}{}
	}
	s.turns = append(s.turns, *t)
	return true, nil
}

func (s *Memory) DeleteTurn(ctx context.Context, memberID, idempotencyKey string) error {
	if idempotencyKey == "" {
		return fmt.Errorf("%w: idempotency key is required", contractx.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.turns)
	s.turns = slices.DeleteFunc(s.turns, func(t contractx.Turn) bool {
		return t.MemberID == memberID && t.IdempotencyKey == idempotencyKey
	})
	if len(s.turns) < before {
		delete(s.turnKeys, idempotencyKey)
	}
	return nil
}

func (s *Memory) RecentTurns(ctx context.Context, memberID string, limit int) ([]contractx.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []contractx.Turn
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].MemberID != memberID {
			continue
		}
		out = append(out, s.turns[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Memory) CountOutboundContaining(
	ctx context.Context,
	memberID string,
	concierge contractx.Concierge,
	marker string,
) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	marker = strings.ToLower(marker)
	n := 0
	for _, t := range s.turns {
		if t.MemberID == memberID &&
			t.Concierge == concierge &&
			t.Direction == contractx.DirectionOutbound &&
			strings.Contains(strings.ToLower(t.MessageText), marker) {
			n++
		}
	}
	return n, nil
}

func (s *Memory) LatestSummary(ctx context.Context, memberID string) (*contractx.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.summaries) - 1; i >= 0; i-- {
		if s.summaries[i].MemberID == memberID {
			cp := s.summaries[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Memory) InsertSummary(ctx context.Context, sum *contractx.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prepareSummary(sum, s.tick())
	s.summaries = append(s.summaries, *sum)
	return nil
}

func (s *Memory) RecentFacts(ctx context.Context, memberID string, limit int) ([]contractx.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []contractx.Fact
	for _, f := range s.facts {
		if f.MemberID == memberID && f.IsActive {
			out = append(out, *f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MatchFacts ranks by cosine similarity, most similar first.
func (s *Memory) MatchFacts(ctx context.Context, memberID string, query []float32, limit int) ([]contractx.Fact, error) {
	if len(query) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	type scored struct {
		fact  contractx.Fact
		score float64
	}
	var ranked []scored
	for _, f := range s.facts {
		if f.MemberID != memberID || !f.IsActive || len(f.Embedding) == 0 {
			continue
		}
		ranked = append(ranked, scored{fact: *f, score: cosine(query, f.Embedding)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]contractx.Fact, 0, len(ranked))
	for _, r := range ranked {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, r.fact)
	}
	return out, nil
}

func (s *Memory) UpsertFact(ctx context.Context, f *contractx.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prepareFact(f, s.tick())

	for _, existing := range s.facts {
		if existing.MemberID == f.MemberID && existing.Category == f.Category && existing.Fact == f.Fact {
			existing.Confidence = f.Confidence
			existing.IsActive = true
			if len(f.Embedding) > 0 {
				existing.Embedding = f.Embedding
			}
			existing.UpdatedAt = f.UpdatedAt
			existing.LastConfirmedAt = f.LastConfirmedAt
			f.ID = existing.ID
			return nil
		}
	}

	cp := *f
	s.facts = append(s.facts, &cp)
	return nil
}

func (s *Memory) RecordMemoryEvent(ctx context.Context, e contractx.MemoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.tick()
	}
	s.events = append(s.events, e)
	return nil
}

// MemoryEvents returns the recorded audit rows for memberID, oldest first.
func (s *Memory) MemoryEvents(memberID string) []contractx.MemoryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []contractx.MemoryEvent
	for _, e := range s.events {
		if e.MemberID == memberID {
			out = append(out, e)
		}
	}
	return out
}

// Facts returns every stored fact for memberID, active or not.
func (s *Memory) Facts(memberID string) []contractx.Fact {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []contractx.Fact
	for _, f := range s.facts {
		if f.MemberID == memberID {
			out = append(out, *f)
		}
	}
	return out
}

// DeactivateFact marks a fact inactive, as a curator would.
func (s *Memory) DeactivateFact(factID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.facts {
		if f.ID == factID {
			f.IsActive = false
			return true
		}
	}
	return false
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
