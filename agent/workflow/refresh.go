package workflow

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
	memoryx "github.com/tanpawarit/Vault-Concierge/agent/memory"
	storex "github.com/tanpawarit/Vault-Concierge/agent/store"
)

const (
	refreshTurnLimit = 16
	refreshFactLimit = 12
)

// refreshMemory extracts a summary and durable facts from the latest turns.
// Embeddings are computed before anything is written so a retry never leaves a
// partial refresh behind.
func (e *Engine) refreshMemory(ctx context.Context, ev contractx.MemoryRefreshRequested) (Result, error) {
	turns, err := e.store.RecentTurns(ctx, ev.MemberID, refreshTurnLimit)
	if err != nil {
		return Result{}, fmt.Errorf("load turns: %w", err)
	}
	if len(turns) == 0 {
		return Result{Event: ev.Name(), Outcome: OutcomeNoTurns}, nil
	}
	slices.Reverse(turns)

	extraction, err := e.model.ExtractMemory(ctx, memoryx.FormatTranscript(turns))
	if err != nil {
		return Result{}, fmt.Errorf("extract memory: %w", err)
	}
	if extraction == nil {
		if err := e.store.RecordMemoryEvent(ctx, contractx.MemoryEvent{
			MemberID:  ev.MemberID,
			EventType: contractx.MemoryRefreshSkipped,
			Payload:   map[string]any{"reason": string(OutcomeNoExtraction)},
		}); err != nil {
			return Result{}, fmt.Errorf("record skipped refresh: %w", err)
		}
		return Result{Event: ev.Name(), Outcome: OutcomeNoExtraction}, nil
	}

	facts := extraction.Facts
	if len(facts) > refreshFactLimit {
		facts = facts[:refreshFactLimit]
	}

	texts := make([]string, 0, len(facts)+1)
	texts = append(texts, extraction.Summary)
	for _, f := range facts {
		texts = append(texts, f.Fact)
	}
	vectors, err := e.model.Embed(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("embed memory: %w", err)
	}
	embedding := func(i int) []float32 {
		if i < len(vectors) {
			return vectors[i]
		}
		return nil
	}

	if err := e.store.InsertSummary(ctx, &contractx.Summary{
		MemberID:           ev.MemberID,
		SummaryText:        extraction.Summary,
		Embedding:          embedding(0),
		SourceMessageCount: len(turns),
	}); err != nil {
		return Result{}, fmt.Errorf("insert summary: %w", err)
	}

	for i, f := range facts {
		if err := e.store.UpsertFact(ctx, &contractx.Fact{
			MemberID:   ev.MemberID,
			Category:   f.Category,
			Fact:       f.Fact,
			Confidence: f.Confidence,
			Source:     storex.FactSourceExtraction,
			IsActive:   true,
			Embedding:  embedding(i + 1),
		}); err != nil {
			return Result{}, fmt.Errorf("upsert fact %q: %w", f.Fact, err)
		}
	}

	if err := e.store.RecordMemoryEvent(ctx, contractx.MemoryEvent{
		MemberID:  ev.MemberID,
		EventType: contractx.MemoryRefreshed,
		Payload: map[string]any{
			"summaryLength": len(extraction.Summary),
			"factsCount":    len(extraction.Facts),
		},
	}); err != nil {
		return Result{}, fmt.Errorf("record refresh: %w", err)
	}

	log.Ctx(ctx).Info().
		Str("member_id", ev.MemberID).
		Int("facts", len(facts)).
		Msg("memory refreshed")
	return Result{Event: ev.Name(), Outcome: OutcomeRefreshed, FactsCount: len(extraction.Facts)}, nil
}
