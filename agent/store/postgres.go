package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const uniqueViolation = "23505"

var _ contractx.Store = (*Postgres)(nil)

// Postgres is the bun-backed store. Similarity search relies on the pgvector
// extension installed by Migrate.
type Postgres struct {
	db  *bun.DB
	now func() time.Time
}

// OpenPostgres opens a pool for dsn. No connection is made until first use.
func OpenPostgres(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func NewPostgres(db *bun.DB) *Postgres {
	return &Postgres{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Postgres) DB() *bun.DB { return s.db }

/* -------------------------------- members -------------------------------- */

func (s *Postgres) GetMember(ctx context.Context, memberID string) (*contractx.Member, error) {
	if _, err := uuid.Parse(memberID); err != nil {
		return nil, fmt.Errorf("%w: member %s", contractx.ErrNotFound, memberID)
	}
	var m memberModel
	err := s.db.NewSelect().Model(&m).Where("id = ?", memberID).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "member "+memberID)
	}
	return memberFromModel(m), nil
}

func (s *Postgres) GetMemberByPhone(ctx context.Context, phone string) (*contractx.Member, error) {
	var m memberModel
	err := s.db.NewSelect().Model(&m).Where("phone = ?", phone).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "member with phone "+phone)
	}
	return memberFromModel(m), nil
}

func (s *Postgres) TransitionMember(ctx context.Context, t contractx.MemberTransition) (bool, error) {
	res, err := s.transitionMemberQuery(t).Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("transition member %s: %w", t.MemberID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition member %s: %w", t.MemberID, err)
	}
	return n > 0, nil
}

func (s *Postgres) transitionMemberQuery(t contractx.MemberTransition) *bun.UpdateQuery {
	q := s.db.NewUpdate().
		Model((*memberModel)(nil)).
		Set("status = ?", string(t.To)).
		Where("id = ?", t.MemberID).
		Where("status IN (?)", bun.In(statusStrings(t.From)))
	if t.Level > 0 {
		q = q.Set("level = ?", t.Level)
	}
	if t.Concierge != "" {
		q = q.Set("assigned_concierge = ?", string(t.Concierge))
	}
	return q
}

/* -------------------------------- invites -------------------------------- */

func (s *Postgres) CreateMemberWithInvite(ctx context.Context, m *contractx.Member, inv *contractx.Invite) error {
	now := s.now()
	prepareMember(m, now)
	prepareInvite(inv, m.ID, now)

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(memberToModel(m)).Exec(ctx); err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
		if _, err := tx.NewInsert().Model(inviteToModel(inv)).Exec(ctx); err != nil {
			return fmt.Errorf("insert invite: %w", err)
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: member with phone %s", contractx.ErrConflict, m.Phone)
		}
		return err
	}
	return nil
}

func (s *Postgres) GetInvite(ctx context.Context, inviteID string) (*contractx.Invite, error) {
	if _, err := uuid.Parse(inviteID); err != nil {
		return nil, fmt.Errorf("%w: invite %s", contractx.ErrNotFound, inviteID)
	}
	var m inviteModel
	err := s.db.NewSelect().Model(&m).Where("id = ?", inviteID).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "invite "+inviteID)
	}
	return inviteFromModel(m), nil
}

func (s *Postgres) TransitionInvite(ctx context.Context, t contractx.InviteTransition) (int64, error) {
	q, err := s.transitionInviteQuery(t)
	if err != nil {
		return 0, err
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("transition invites to %s: %w", t.To, err)
	}
	return res.RowsAffected()
}

func (s *Postgres) transitionInviteQuery(t contractx.InviteTransition) (*bun.UpdateQuery, error) {
	at := t.At
	if at.IsZero() {
		at = s.now()
	}

	q := s.db.NewUpdate().
		Model((*inviteModel)(nil)).
		Set("status = ?", string(t.To)).
		Where("status IN (?)", bun.In(inviteStatusStrings(t.From)))

	switch {
	case t.InviteID != "":
		q = q.Where("id = ?", t.InviteID)
	case t.MemberID != "":
		q = q.Where("member_id = ?", t.MemberID)
	default:
		return nil, fmt.Errorf("%w: invite transition needs an invite or member id", contractx.ErrValidation)
	}

	sent, responded := inviteTimestamps(t.To)
	if sent {
		q = q.Set("sent_at = ?", at)
	}
	if responded {
		q = q.Set("responded_at = ?", at)
	}
	return q, nil
}

func (s *Postgres) ListQueuedInvites(ctx context.Context, createdBefore time.Time, limit int) ([]contractx.Invite, error) {
	var ms []inviteModel
	err := s.db.NewSelect().
		Model(&ms).
		Where("status = ?", string(contractx.InviteStatusQueued)).
		Where("created_at < ?", createdBefore).
		OrderExpr("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list queued invites: %w", err)
	}
	out := make([]contractx.Invite, 0, len(ms))
	for _, m := range ms {
		out = append(out, *inviteFromModel(m))
	}
	return out, nil
}

/* ----------------------------- conversations ----------------------------- */

func (s *Postgres) AppendTurn(ctx context.Context, t *contractx.Turn) (bool, error) {
	prepareTurn(t, s.now())
	res, err := s.appendTurnQuery(t).Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("append turn: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append turn: %w", err)
	}
	return n > 0, nil
}

func (s *Postgres) appendTurnQuery(t *contractx.Turn) *bun.InsertQuery {
	return s.db.NewInsert().Model(turnToModel(t)).On("CONFLICT DO NOTHING")
}

func (s *Postgres) DeleteTurn(ctx context.Context, memberID, idempotencyKey string) error {
	if idempotencyKey == "" {
		return fmt.Errorf("%w: idempotency key is required", contractx.ErrValidation)
	}
	if _, err := s.deleteTurnQuery(memberID, idempotencyKey).Exec(ctx); err != nil {
		return fmt.Errorf("delete turn: %w", err)
	}
	return nil
}

func (s *Postgres) deleteTurnQuery(memberID, idempotencyKey string) *bun.DeleteQuery {
	return s.db.NewDelete().
		Model((*turnModel)(nil)).
		Where("member_id = ?", memberID).
		Where("idempotency_key = ?", idempotencyKey)
}

func (s *Postgres) RecentTurns(ctx context.Context, memberID string, limit int) ([]contractx.Turn, error) {
	var ms []turnModel
	err := s.db.NewSelect().
		Model(&ms).
		Where("member_id = ?", memberID).
		OrderExpr("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	out := make([]contractx.Turn, 0, len(ms))
	for _, m := range ms {
		out = append(out, turnFromModel(m))
	}
	return out, nil
}

func (s *Postgres) CountOutboundContaining(
	ctx context.Context,
	memberID string,
	concierge contractx.Concierge,
	marker string,
) (int, error) {
	n, err := s.countOutboundQuery(memberID, concierge, marker).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count outbound turns: %w", err)
	}
	return n, nil
}

func (s *Postgres) countOutboundQuery(memberID string, concierge contractx.Concierge, marker string) *bun.SelectQuery {
	return s.db.NewSelect().
		Model((*turnModel)(nil)).
		Where("member_id = ?", memberID).
		Where("concierge = ?", string(concierge)).
		Where("direction = ?", string(contractx.DirectionOutbound)).
		Where("message_text ILIKE ?", "%"+escapeLike(marker)+"%")
}

/* --------------------------------- memory -------------------------------- */

func (s *Postgres) LatestSummary(ctx context.Context, memberID string) (*contractx.Summary, error) {
	var m summaryModel
	err := s.db.NewSelect().
		Model(&m).
		Where("member_id = ?", memberID).
		OrderExpr("created_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest summary: %w", err)
	}
	return &contractx.Summary{
		ID:                 m.ID,
		MemberID:           m.MemberID,
		SummaryText:        m.SummaryText,
		Embedding:          []float32(m.Embedding),
		SourceMessageCount: m.SourceMessageCount,
		CreatedAt:          m.CreatedAt,
	}, nil
}

func (s *Postgres) InsertSummary(ctx context.Context, sum *contractx.Summary) error {
	prepareSummary(sum, s.now())
	_, err := s.db.NewInsert().Model(&summaryModel{
		ID:                 sum.ID,
		MemberID:           sum.MemberID,
		SummaryText:        sum.SummaryText,
		Embedding:          toVector(sum.Embedding),
		SourceMessageCount: sum.SourceMessageCount,
		CreatedAt:          sum.CreatedAt,
	}).Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

func (s *Postgres) RecentFacts(ctx context.Context, memberID string, limit int) ([]contractx.Fact, error) {
	var ms []factModel
	err := s.db.NewSelect().
		Model(&ms).
		Where("member_id = ?", memberID).
		Where("is_active").
		OrderExpr("updated_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("recent facts: %w", err)
	}
	return factsFromModels(ms), nil
}

func (s *Postgres) MatchFacts(ctx context.Context, memberID string, query []float32, limit int) ([]contractx.Fact, error) {
	if len(query) == 0 {
		return nil, nil
	}
	var ms []factModel
	if err := s.matchFactsQuery(&ms, memberID, query, limit).Scan(ctx); err != nil {
		return nil, fmt.Errorf("match facts: %w", err)
	}
	return factsFromModels(ms), nil
}

// matchFactsQuery ranks by cosine distance, nearest first.
func (s *Postgres) matchFactsQuery(dst *[]factModel, memberID string, query []float32, limit int) *bun.SelectQuery {
	return s.db.NewSelect().
		Model(dst).
		Where("member_id = ?", memberID).
		Where("is_active").
		Where("fact_embedding IS NOT NULL").
		OrderExpr("fact_embedding <=> ?::vector", Vector(query)).
		Limit(limit)
}

func (s *Postgres) UpsertFact(ctx context.Context, f *contractx.Fact) error {
	prepareFact(f, s.now())
	if _, err := s.upsertFactQuery(f).Exec(ctx); err != nil {
		return fmt.Errorf("upsert fact: %w", err)
	}
	return nil
}

func (s *Postgres) upsertFactQuery(f *contractx.Fact) *bun.InsertQuery {
	return s.db.NewInsert().
		Model(&factModel{
			ID:              f.ID,
			MemberID:        f.MemberID,
			Category:        f.Category,
			Fact:            f.Fact,
			Confidence:      f.Confidence,
			Source:          f.Source,
			IsActive:        true,
			Embedding:       toVector(f.Embedding),
			UpdatedAt:       f.UpdatedAt,
			LastConfirmedAt: f.LastConfirmedAt,
		}).
		On("CONFLICT (member_id, category, fact) DO UPDATE").
		Set("confidence = EXCLUDED.confidence").
		Set("is_active = TRUE").
		Set("fact_embedding = COALESCE(EXCLUDED.fact_embedding, f.fact_embedding)").
		Set("updated_at = EXCLUDED.updated_at").
		Set("last_confirmed_at = EXCLUDED.last_confirmed_at")
}

func (s *Postgres) RecordMemoryEvent(ctx context.Context, e contractx.MemoryEvent) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	_, err := s.db.NewInsert().Model(&memoryEventModel{
		MemberID:  e.MemberID,
		EventType: string(e.EventType),
		Payload:   payload,
		CreatedAt: createdAt,
	}).Exec(ctx)
	if err != nil {
		return fmt.Errorf("record memory event: %w", err)
	}
	return nil
}

/* -------------------------------- helpers -------------------------------- */

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", contractx.ErrNotFound, what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func statusStrings(in []contractx.MemberStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func inviteStatusStrings(in []contractx.InviteStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
