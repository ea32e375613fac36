package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

type fakeStore struct {
	mu sync.Mutex

	summary  *contractx.Summary
	recent   []contractx.Fact
	semantic []contractx.Fact
	turns    []contractx.Turn
	turnsErr error

	matchCalls int
	limits     map[string]int
}

func (f *fakeStore) record(name string, limit int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.limits == nil {
		f.limits = map[string]int{}
	}
	f.limits[name] = limit
}

func (f *fakeStore) LatestSummary(ctx context.Context, memberID string) (*contractx.Summary, error) {
	return f.summary, nil
}

func (f *fakeStore) RecentFacts(ctx context.Context, memberID string, limit int) ([]contractx.Fact, error) {
	f.record("recent_facts", limit)
	return f.recent, nil
}

func (f *fakeStore) MatchFacts(ctx context.Context, memberID string, query []float32, limit int) ([]contractx.Fact, error) {
	f.record("match_facts", limit)
	f.mu.Lock()
	f.matchCalls++
	f.mu.Unlock()
	return f.semantic, nil
}

func (f *fakeStore) RecentTurns(ctx context.Context, memberID string, limit int) ([]contractx.Turn, error) {
	f.record("recent_turns", limit)
	return f.turns, f.turnsErr
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return [][]float32{{1, 0, 0}}, nil
}

func turn(dir contractx.Direction, text string) contractx.Turn {
	return contractx.Turn{Direction: dir, Concierge: contractx.ConciergeEllis, MessageText: text}
}

func TestBuildPrefersSemanticFacts(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		summary:  &contractx.Summary{SummaryText: "Based in Austin."},
		recent:   []contractx.Fact{{Category: "interest", Fact: "jazz"}},
		semantic: []contractx.Fact{{Category: "location", Fact: "Austin"}},
		turns: []contractx.Turn{
			turn(contractx.DirectionInbound, "newest"),
			turn(contractx.DirectionOutbound, "older"),
		},
	}
	b := NewBuilder(store, &fakeEmbedder{})

	got, err := b.Build(context.Background(), "m1", "where should I go tonight")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := contractx.MemberContext{
		Summary: "Based in Austin.",
		Facts:   []contractx.Fact{{Category: "location", Fact: "Austin"}},
		RecentTurns: []contractx.Turn{
			turn(contractx.DirectionOutbound, "older"),
			turn(contractx.DirectionInbound, "newest"),
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Build() mismatch (-want +got):\n%s", diff)
	}

	wantLimits := map[string]int{"recent_facts": 8, "recent_turns": 12, "match_facts": 5}
	if diff := cmp.Diff(wantLimits, store.limits); diff != "" {
		t.Fatalf("limits mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildFallsBackToRecentFacts(t *testing.T) {
	t.Parallel()

	recent := []contractx.Fact{{Category: "interest", Fact: "wine"}}

	t.Run("empty semantic match", func(t *testing.T) {
		t.Parallel()
		b := NewBuilder(&fakeStore{recent: recent}, &fakeEmbedder{})
		got, err := b.Build(context.Background(), "m1", "hello")
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if diff := cmp.Diff(recent, got.Facts); diff != "" {
			t.Fatalf("Facts mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("no query skips embedding", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{recent: recent}
		emb := &fakeEmbedder{}
		if _, err := NewBuilder(store, emb).Build(context.Background(), "m1", "   "); err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if emb.calls != 0 || store.matchCalls != 0 {
			t.Fatalf("embed calls = %d, match calls = %d, want 0", emb.calls, store.matchCalls)
		}
	})

	t.Run("embedding failure", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{recent: recent}
		got, err := NewBuilder(store, &fakeEmbedder{err: errors.New("quota")}).Build(context.Background(), "m1", "hi")
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if store.matchCalls != 0 || len(got.Facts) != 1 {
			t.Fatalf("match calls = %d, facts = %v", store.matchCalls, got.Facts)
		}
	})
}

func TestBuildPropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	_, err := NewBuilder(&fakeStore{turnsErr: boom}, nil).Build(context.Background(), "m1", "")
	if !errors.Is(err, boom) {
		t.Fatalf("Build() error = %v, want %v", err, boom)
	}
}

func TestFormatTranscript(t *testing.T) {
	t.Parallel()

	got := FormatTranscript([]contractx.Turn{
		{Direction: contractx.DirectionOutbound, Concierge: contractx.ConciergeKnox, MessageText: "Hey Ana"},
		{Direction: contractx.DirectionInbound, Concierge: contractx.ConciergeSystem, MessageText: "who is this?"},
	})
	want := "[Knox] Hey Ana\n[Member] who is this?"
	if got != want {
		t.Fatalf("FormatTranscript() = %q, want %q", got, want)
	}
}
