package contract

import (
	"context"
	"time"
)

type MemberStore interface {
	GetMember(ctx context.Context, memberID string) (*Member, error)
	GetMemberByPhone(ctx context.Context, phone string) (*Member, error)
	// TransitionMember applies t and reports whether a row changed.
	TransitionMember(ctx context.Context, t MemberTransition) (bool, error)
}

type InviteStore interface {
	// CreateMemberWithInvite inserts both records atomically and fills their ids.
	CreateMemberWithInvite(ctx context.Context, m *Member, inv *Invite) error
	GetInvite(ctx context.Context, inviteID string) (*Invite, error)
	// TransitionInvite applies t and returns the number of invites that changed.
	TransitionInvite(ctx context.Context, t InviteTransition) (int64, error)
	ListQueuedInvites(ctx context.Context, createdBefore time.Time, limit int) ([]Invite, error)
}

type ConversationStore interface {
	// AppendTurn inserts t. A turn whose idempotency key was already recorded is
	// skipped and reported as not inserted.
	AppendTurn(ctx context.Context, t *Turn) (bool, error)
	// DeleteTurn removes the member's turn recorded under idempotencyKey, if any.
	DeleteTurn(ctx context.Context, memberID, idempotencyKey string) error
	// RecentTurns returns up to limit turns, newest first.
	RecentTurns(ctx context.Context, memberID string, limit int) ([]Turn, error)
	CountOutboundContaining(ctx context.Context, memberID string, concierge Concierge, marker string) (int, error)
}

type MemoryStore interface {
	LatestSummary(ctx context.Context, memberID string) (*Summary, error)
	InsertSummary(ctx context.Context, s *Summary) error
	// RecentFacts returns active facts ordered by updated_at descending.
	RecentFacts(ctx context.Context, memberID string, limit int) ([]Fact, error)
	// MatchFacts returns active facts ranked by embedding similarity to query.
	MatchFacts(ctx context.Context, memberID string, query []float32, limit int) ([]Fact, error)
	// UpsertFact inserts f or refreshes the row with the same (member, category, fact).
	UpsertFact(ctx context.Context, f *Fact) error
	RecordMemoryEvent(ctx context.Context, e MemoryEvent) error
}

type Store interface {
	MemberStore
	InviteStore
	ConversationStore
	MemoryStore
}

type Gateway interface {
	Send(ctx context.Context, msg OutboundMessage) (SendResult, error)
}

// ModelClient wraps the probabilistic model. A nil result with a nil error
// means the capability is unavailable or its output was unusable.
type ModelClient interface {
	ClassifyIntent(ctx context.Context, text string) (*IntentClassification, error)
	ExtractMemory(ctx context.Context, transcript string) (*MemoryExtraction, error)
	GenerateReply(ctx context.Context, req ReplyRequest) (string, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type EventSender interface {
	Send(ctx context.Context, evt Event) error
}

// ContextBuilder assembles the memory grounding for a member.
type ContextBuilder interface {
	Build(ctx context.Context, memberID string, queryText string) (MemberContext, error)
}
