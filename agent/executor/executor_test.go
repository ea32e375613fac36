package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestExecutor() *Executor {
	return New(WithBackoff(time.Millisecond, 2*time.Millisecond))
}

func TestDoSerializesSameKey(t *testing.T) {
	t.Parallel()

	e := newTestExecutor()
	var running, maxRunning atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Do(context.Background(), e, "member:m1", Policy{}, func(ctx context.Context, attempt int) (struct{}, error) {
				n := running.Add(1)
				for {
					cur := maxRunning.Load()
					if n <= cur || maxRunning.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				running.Add(-1)
				return struct{}{}, nil
			})
			if err != nil {
				t.Errorf("Do() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := maxRunning.Load(); got != 1 {
		t.Fatalf("max concurrent runs = %d, want 1", got)
	}
	if got := e.Pending("member:m1"); got != 0 {
		t.Fatalf("Pending() = %d, want 0 after completion", got)
	}
}

func TestDoRunsDifferentKeysInParallel(t *testing.T) {
	t.Parallel()

	e := newTestExecutor()
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	var wg sync.WaitGroup

	for _, key := range []string{"member:a", "member:b"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, _ = Do(context.Background(), e, key, Policy{}, func(ctx context.Context, attempt int) (int, error) {
				started <- struct{}{}
				<-release
				return 0, nil
			})
		}(key)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("keys did not run in parallel")
		}
	}
	close(release)
	wg.Wait()
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	e := newTestExecutor()
	out, err := Do(context.Background(), e, "k", Policy{Retries: 2}, func(ctx context.Context, attempt int) (int, error) {
		if attempt < 3 {
			return 0, errors.New("transient")
		}
		return attempt, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if out != 3 {
		t.Fatalf("Do() = %d, want 3", out)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	t.Parallel()

	e := newTestExecutor()
	transient := errors.New("store unavailable")
	calls := 0
	_, err := Do(context.Background(), e, "k", Policy{Retries: 1}, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, transient
	})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Do() error = %v, want ErrRetriesExhausted", err)
	}
	if !errors.Is(err, transient) {
		t.Fatalf("Do() error = %v, want wrapped cause", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestDoPermanentErrorNotRetried(t *testing.T) {
	t.Parallel()

	e := newTestExecutor()
	invalid := errors.New("invalid payload")
	calls := 0
	_, err := Do(context.Background(), e, "k", Policy{
		Retries:   2,
		Permanent: func(err error) bool { return errors.Is(err, invalid) },
	}, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, invalid
	})
	if !errors.Is(err, invalid) {
		t.Fatalf("Do() error = %v, want invalid", err)
	}
	if errors.Is(err, ErrRetriesExhausted) {
		t.Fatal("permanent error must not report exhaustion")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoCanceledWhileQueued(t *testing.T) {
	t.Parallel()

	e := newTestExecutor()
	hold := make(chan struct{})
	entered := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = Do(context.Background(), e, "k", Policy{}, func(ctx context.Context, attempt int) (int, error) {
			close(entered)
			<-hold
			return 0, nil
		})
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Do(ctx, e, "k", Policy{}, func(ctx context.Context, attempt int) (int, error) {
		t.Error("queued work must not run after cancellation")
		return 0, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}

	close(hold)
	<-done
}
