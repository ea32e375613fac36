// Package events delivers domain events to the workflow engine, either
// in-process or through QStash.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

// ErrNoDispatcher means an inline sender was used before Bind.
var ErrNoDispatcher = errors.New("inline sender has no dispatcher")

type Dispatcher interface {
	Dispatch(ctx context.Context, evt contractx.Event) error
}

var _ contractx.EventSender = (*Inline)(nil)

// Inline dispatches each event on its own goroutine so that a workflow can emit
// events while it holds its member key.
type Inline struct {
	mu         sync.RWMutex
	dispatcher Dispatcher
	wg         sync.WaitGroup
}

func NewInline(d Dispatcher) *Inline {
	return &Inline{dispatcher: d}
}

// Bind sets the dispatcher after construction, for when the dispatcher itself
// needs this sender.
func (s *Inline) Bind(d Dispatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatcher = d
}

func (s *Inline) Send(ctx context.Context, evt contractx.Event) error {
	if err := contractx.Validate(evt); err != nil {
		return err
	}

	s.mu.RLock()
	d := s.dispatcher
	s.mu.RUnlock()
	if d == nil {
		return ErrNoDispatcher
	}

	// The caller's request may finish before the event is handled.
	dctx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := d.Dispatch(dctx, evt); err != nil {
			log.Ctx(dctx).Error().
				Err(err).
				Str("event", string(evt.Name())).
				Str("key", evt.Key()).
				Msg("inline event dispatch failed")
		}
	}()
	return nil
}

// Wait blocks until every dispatched event has been handled.
func (s *Inline) Wait() {
	s.wg.Wait()
}
