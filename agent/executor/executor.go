// Package executor runs units of work one at a time per key, retrying
// transient failures a bounded number of times.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

var ErrRetriesExhausted = errors.New("retries exhausted")

// Policy bounds how a unit of work is retried. Retries counts attempts after
// the first one.
type Policy struct {
	Retries uint
	// Permanent marks errors that must not be retried.
	Permanent func(error) bool
}

type Option func(*Executor)

func WithBackoff(initial, max time.Duration) Option {
	return func(e *Executor) {
		if initial > 0 {
			e.initialInterval = initial
		}
		if max > 0 {
			e.maxInterval = max
		}
	}
}

type Executor struct {
	mu    sync.Mutex
	slots map[string]*slot

	initialInterval time.Duration
	maxInterval     time.Duration
}

type slot struct {
	sem  chan struct{}
	refs int
}

func New(opts ...Option) *Executor {
	e := &Executor{
		slots:           make(map[string]*slot),
		initialInterval: 500 * time.Millisecond,
		maxInterval:     10 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Do runs fn under key. Calls sharing a key queue behind each other; calls with
// different keys run in parallel.
func Do[T any](
	ctx context.Context,
	e *Executor,
	key string,
	p Policy,
	fn func(ctx context.Context, attempt int) (T, error),
) (T, error) {
	var zero T

	release, err := e.acquire(ctx, key)
	if err != nil {
		return zero, err
	}
	defer release()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.initialInterval
	b.MaxInterval = e.maxInterval

	attempt := 0
	permanent := false
	out, err := backoff.Retry(ctx,
		func() (T, error) {
			attempt++
			res, err := fn(ctx, attempt)
			if err != nil && p.Permanent != nil && p.Permanent(err) {
				permanent = true
				return res, backoff.Permanent(err)
			}
			return res, err
		},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.Retries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Ctx(ctx).Warn().
				Err(err).
				Str("key", key).
				Int("attempt", attempt).
				Dur("retry_in", next).
				Msg("attempt failed, retrying")
		}),
	)
	if err != nil {
		if permanent || ctx.Err() != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
	}
	return out, nil
}

func (e *Executor) acquire(ctx context.Context, key string) (func(), error) {
	e.mu.Lock()
	s, ok := e.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		e.slots[key] = s
	}
	s.refs++
	e.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
		return func() {
			<-s.sem
			e.unref(key, s)
		}, nil
	case <-ctx.Done():
		e.unref(key, s)
		return nil, ctx.Err()
	}
}

func (e *Executor) unref(key string, s *slot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(e.slots, key)
	}
}

// Pending reports how many callers hold or wait on key.
func (e *Executor) Pending(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.slots[key]; ok {
		return s.refs
	}
	return 0
}
