package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
	"golang.org/x/sync/errgroup"
)

const (
	RecentFactLimit   = 8
	RecentTurnLimit   = 12
	SemanticFactLimit = 5
)

// Store is the slice of persistence the builder reads from.
type Store interface {
	LatestSummary(ctx context.Context, memberID string) (*contractx.Summary, error)
	RecentFacts(ctx context.Context, memberID string, limit int) ([]contractx.Fact, error)
	MatchFacts(ctx context.Context, memberID string, query []float32, limit int) ([]contractx.Fact, error)
	RecentTurns(ctx context.Context, memberID string, limit int) ([]contractx.Turn, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

var _ contractx.ContextBuilder = (*Builder)(nil)

type Builder struct {
	store    Store
	embedder Embedder
}

// NewBuilder accepts a nil embedder, in which case facts are always ranked by
// recency.
func NewBuilder(store Store, embedder Embedder) *Builder {
	return &Builder{store: store, embedder: embedder}
}

// Build assembles a member's grounding: latest summary, facts (semantic match
// when available, otherwise most recent) and recent turns oldest first.
func (b *Builder) Build(ctx context.Context, memberID string, queryText string) (contractx.MemberContext, error) {
	query := b.queryEmbedding(ctx, memberID, strings.TrimSpace(queryText))

	var (
		summary  *contractx.Summary
		recent   []contractx.Fact
		turns    []contractx.Turn
		semantic []contractx.Fact
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := b.store.LatestSummary(gctx, memberID)
		if err != nil {
			return fmt.Errorf("latest summary: %w", err)
		}
		summary = s
		return nil
	})
	g.Go(func() error {
		f, err := b.store.RecentFacts(gctx, memberID, RecentFactLimit)
		if err != nil {
			return fmt.Errorf("recent facts: %w", err)
		}
		recent = f
		return nil
	})
	g.Go(func() error {
		t, err := b.store.RecentTurns(gctx, memberID, RecentTurnLimit)
		if err != nil {
			return fmt.Errorf("recent turns: %w", err)
		}
		turns = t
		return nil
	})
	if query != nil {
		g.Go(func() error {
			f, err := b.store.MatchFacts(gctx, memberID, query, SemanticFactLimit)
			if err != nil {
				return fmt.Errorf("match facts: %w", err)
			}
			semantic = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return contractx.MemberContext{}, err
	}

	out := contractx.MemberContext{
		Facts:       recent,
		RecentTurns: oldestFirst(turns),
	}
	if summary != nil {
		out.Summary = summary.SummaryText
	}
	if len(semantic) > 0 {
		out.Facts = semantic
	}
	if out.Facts == nil {
		out.Facts = []contractx.Fact{}
	}
	return out, nil
}

// queryEmbedding degrades to recency ranking when embedding fails.
func (b *Builder) queryEmbedding(ctx context.Context, memberID, queryText string) []float32 {
	if b.embedder == nil || queryText == "" {
		return nil
	}
	vecs, err := b.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("member_id", memberID).Msg("query embedding failed, using recent facts")
		return nil
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil
	}
	return vecs[0]
}

func oldestFirst(turns []contractx.Turn) []contractx.Turn {
	out := make([]contractx.Turn, len(turns))
	for i, t := range turns {
		out[len(turns)-1-i] = t
	}
	return out
}
