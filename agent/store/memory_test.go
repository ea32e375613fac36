package store

import (
	"context"
	"errors"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

func seedMember(t *testing.T, s *Memory, phone string) (*contractx.Member, *contractx.Invite) {
	t.Helper()
	m := &contractx.Member{FirstName: "Ana", LastName: "Diaz", Phone: phone, NominatedByFullName: "Jo Park"}
	inv := &contractx.Invite{}
	if err := s.CreateMemberWithInvite(context.Background(), m, inv); err != nil {
		t.Fatalf("CreateMemberWithInvite() error = %v", err)
	}
	return m, inv
}

func TestMemoryCreateMemberDefaults(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	m, inv := seedMember(t, s, "+15550001111")

	got, err := s.GetMember(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("GetMember() error = %v", err)
	}
	if got.Status != contractx.MemberProspect || got.Level != 1 || got.AssignedConcierge != contractx.ConciergeKnox {
		t.Fatalf("member defaults = %+v", got)
	}
	if inv.MemberID != m.ID || inv.Status != contractx.InviteStatusQueued || inv.Channel != contractx.ChannelSMS {
		t.Fatalf("invite defaults = %+v", inv)
	}

	err = s.CreateMemberWithInvite(context.Background(),
		&contractx.Member{Phone: "+15550001111"}, &contractx.Invite{})
	if !errors.Is(err, contractx.ErrConflict) {
		t.Fatalf("duplicate phone error = %v, want ErrConflict", err)
	}
}

func TestMemoryMissingRecords(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	if _, err := s.GetMember(context.Background(), "nope"); !errors.Is(err, contractx.ErrNotFound) {
		t.Fatalf("GetMember() error = %v", err)
	}
	if _, err := s.GetInvite(context.Background(), "nope"); !errors.Is(err, contractx.ErrNotFound) {
		t.Fatalf("GetInvite() error = %v", err)
	}
	if _, err := s.GetMemberByPhone(context.Background(), "+1"); !errors.Is(err, contractx.ErrNotFound) {
		t.Fatalf("GetMemberByPhone() error = %v", err)
	}
}

func TestMemoryDoNotContactIsAbsorbing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	m, _ := seedMember(t, s, "+15550002222")

	changed, err := s.TransitionMember(ctx, contractx.MemberTransition{
		MemberID: m.ID, From: contractx.Reachable, To: contractx.MemberDoNotContact, Concierge: contractx.ConciergeSystem,
	})
	if err != nil || !changed {
		t.Fatalf("TransitionMember() to dnc = %v, %v", changed, err)
	}

	changed, err = s.TransitionMember(ctx, contractx.MemberTransition{
		MemberID: m.ID, From: []contractx.MemberStatus{contractx.MemberProspect}, To: contractx.MemberGuest,
		Level: 2, Concierge: contractx.ConciergeEllis,
	})
	if err != nil || changed {
		t.Fatalf("TransitionMember() out of dnc = %v, %v", changed, err)
	}

	got, _ := s.GetMember(ctx, m.ID)
	if got.Status != contractx.MemberDoNotContact || got.AssignedConcierge != contractx.ConciergeSystem || got.Level != 1 {
		t.Fatalf("member = %+v", got)
	}
}

func TestMemoryTransitionInviteConditioned(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	m, inv := seedMember(t, s, "+15550003333")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	n, err := s.TransitionInvite(ctx, contractx.InviteTransition{
		InviteID: inv.ID, From: []contractx.InviteStatus{contractx.InviteStatusQueued}, To: contractx.InviteStatusSent, At: at,
	})
	if err != nil || n != 1 {
		t.Fatalf("TransitionInvite() queued->sent = %d, %v", n, err)
	}

	n, _ = s.TransitionInvite(ctx, contractx.InviteTransition{
		InviteID: inv.ID, From: []contractx.InviteStatus{contractx.InviteStatusQueued}, To: contractx.InviteStatusSent,
	})
	if n != 0 {
		t.Fatalf("replayed transition changed %d rows", n)
	}

	n, _ = s.TransitionInvite(ctx, contractx.InviteTransition{
		MemberID: m.ID, From: []contractx.InviteStatus{contractx.InviteStatusQueued, contractx.InviteStatusSent}, To: contractx.InviteStatusDeclined, At: at,
	})
	if n != 1 {
		t.Fatalf("decline changed %d rows, want 1", n)
	}

	got, _ := s.GetInvite(ctx, inv.ID)
	if got.Status != contractx.InviteStatusDeclined || got.SentAt == nil || !got.SentAt.Equal(at) || got.RespondedAt == nil {
		t.Fatalf("invite = %+v", got)
	}

	if _, err := s.TransitionInvite(ctx, contractx.InviteTransition{To: contractx.InviteStatusSent}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("unaddressed transition error = %v", err)
	}
}

func TestMemoryAppendTurnDedupesByKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	m, _ := seedMember(t, s, "+15550004444")

	for i := 0; i < 3; i++ {
		inserted, err := s.AppendTurn(ctx, &contractx.Turn{
			MemberID: m.ID, Concierge: contractx.ConciergeKnox, Direction: contractx.DirectionOutbound,
			MessageText: "hello", IdempotencyKey: "invite:i1:knox",
		})
		if err != nil {
			t.Fatalf("AppendTurn() error = %v", err)
		}
		if inserted != (i == 0) {
			t.Fatalf("attempt %d inserted = %v", i, inserted)
		}
	}
	// turns without a key are never deduplicated
	for i := 0; i < 2; i++ {
		_, _ = s.AppendTurn(ctx, &contractx.Turn{MemberID: m.ID, Direction: contractx.DirectionInbound, MessageText: "hi"})
	}

	turns, _ := s.RecentTurns(ctx, m.ID, 10)
	if len(turns) != 3 {
		t.Fatalf("len(turns) = %d, want 3", len(turns))
	}
	if turns[0].Direction != contractx.DirectionInbound || turns[2].IdempotencyKey != "invite:i1:knox" {
		t.Fatalf("turns not newest first: %+v", turns)
	}
}

func TestMemoryDeleteTurnFreesKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	m, _ := seedMember(t, s, "+15550004545")
	turn := func() *contractx.Turn {
		return &contractx.Turn{MemberID: m.ID, Direction: contractx.DirectionInbound, MessageText: "yes", IdempotencyKey: "inbound:SM9"}
	}

	if _, err := s.AppendTurn(ctx, turn()); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	if err := s.DeleteTurn(ctx, "other-member", "inbound:SM9"); err != nil {
		t.Fatalf("DeleteTurn(other) error = %v", err)
	}
	if inserted, _ := s.AppendTurn(ctx, turn()); inserted {
		t.Fatal("key freed by another member's delete")
	}
	if err := s.DeleteTurn(ctx, m.ID, "inbound:SM9"); err != nil {
		t.Fatalf("DeleteTurn() error = %v", err)
	}
	if turns, _ := s.RecentTurns(ctx, m.ID, 10); len(turns) != 0 {
		t.Fatalf("turns after delete = %+v", turns)
	}
	if inserted, err := s.AppendTurn(ctx, turn()); err != nil || !inserted {
		t.Fatalf("AppendTurn() after delete = %v, %v; want inserted", inserted, err)
	}
	if err := s.DeleteTurn(ctx, m.ID, ""); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("DeleteTurn(\"\") error = %v, want ErrValidation", err)
	}
}

func TestMemoryCountOutboundContainingIgnoresCase(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	m, _ := seedMember(t, s, "+15550005555")

	add := func(c contractx.Concierge, d contractx.Direction, text string) {
		_, _ = s.AppendTurn(ctx, &contractx.Turn{MemberID: m.ID, Concierge: c, Direction: d, MessageText: text})
	}
	add(contractx.ConciergeKnox, contractx.DirectionOutbound, `Please REPLY "YES" to continue`)
	add(contractx.ConciergeEllis, contractx.DirectionOutbound, `reply "Yes"`)
	add(contractx.ConciergeSystem, contractx.DirectionInbound, `reply "Yes"`)

	n, err := s.CountOutboundContaining(ctx, m.ID, contractx.ConciergeKnox, `reply "Yes"`)
	if err != nil || n != 1 {
		t.Fatalf("CountOutboundContaining() = %d, %v", n, err)
	}
}

func TestMemoryUpsertFactIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	m, _ := seedMember(t, s, "+15550006666")

	for _, conf := range []float64{0.6, 0.9} {
		err := s.UpsertFact(ctx, &contractx.Fact{MemberID: m.ID, Category: "location", Fact: "Austin", Confidence: conf})
		if err != nil {
			t.Fatalf("UpsertFact() error = %v", err)
		}
	}

	facts := s.Facts(m.ID)
	if len(facts) != 1 {
		t.Fatalf("len(facts) = %d, want 1", len(facts))
	}
	if facts[0].Confidence != 0.9 || !facts[0].IsActive || facts[0].Source != FactSourceExtraction {
		t.Fatalf("fact = %+v", facts[0])
	}

	s.DeactivateFact(facts[0].ID)
	_ = s.UpsertFact(ctx, &contractx.Fact{MemberID: m.ID, Category: "location", Fact: "Austin", Confidence: 0.8})
	if got := s.Facts(m.ID); len(got) != 1 || !got[0].IsActive {
		t.Fatalf("upsert did not reactivate: %+v", got)
	}
}

func TestMemoryMatchFactsRanksAndSkipsInactive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	m, _ := seedMember(t, s, "+15550007777")

	_ = s.UpsertFact(ctx, &contractx.Fact{MemberID: m.ID, Category: "interest", Fact: "jazz", Embedding: []float32{0, 1}})
	_ = s.UpsertFact(ctx, &contractx.Fact{MemberID: m.ID, Category: "location", Fact: "Austin", Embedding: []float32{1, 0.1}})
	hidden := &contractx.Fact{MemberID: m.ID, Category: "location", Fact: "Miami", Embedding: []float32{1, 0}}
	_ = s.UpsertFact(ctx, hidden)
	s.DeactivateFact(hidden.ID)

	got, err := s.MatchFacts(ctx, m.ID, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("MatchFacts() error = %v", err)
	}
	if len(got) != 2 || got[0].Fact != "Austin" || got[1].Fact != "jazz" {
		t.Fatalf("MatchFacts() = %+v", got)
	}

	recent, _ := s.RecentFacts(ctx, m.ID, 8)
	for _, f := range recent {
		if f.Fact == "Miami" {
			t.Fatal("RecentFacts() returned an inactive fact")
		}
	}
}

func TestMemoryListQueuedInvites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	_, first := seedMember(t, s, "+15550008881")
	_, second := seedMember(t, s, "+15550008882")
	_, _ = s.TransitionInvite(ctx, contractx.InviteTransition{
		InviteID: second.ID, From: []contractx.InviteStatus{contractx.InviteStatusQueued}, To: contractx.InviteStatusSent,
	})

	got, err := s.ListQueuedInvites(ctx, time.Now().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("ListQueuedInvites() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != first.ID {
		t.Fatalf("ListQueuedInvites() = %+v", got)
	}
}

func TestMemoryLatestSummary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	if sum, err := s.LatestSummary(ctx, "m1"); sum != nil || err != nil {
		t.Fatalf("LatestSummary() on empty = %v, %v", sum, err)
	}
	_ = s.InsertSummary(ctx, &contractx.Summary{MemberID: "m1", SummaryText: "old"})
	_ = s.InsertSummary(ctx, &contractx.Summary{MemberID: "m1", SummaryText: "new"})
	sum, _ := s.LatestSummary(ctx, "m1")
	if sum == nil || sum.SummaryText != "new" {
		t.Fatalf("LatestSummary() = %+v", sum)
	}
}
