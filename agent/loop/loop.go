// Package loop wraps a workflow handler with lifecycle notifications.
package loop

import (
	"context"

	"github.com/rs/zerolog/log"
)

type Context struct {
	MemberID  string
	EventName string
}

// Observer receives lifecycle notifications. Implementations must not block.
type Observer interface {
	MessageReceived(ctx context.Context, lc Context)
	BeforeModelCall(ctx context.Context, lc Context)
	MessageSent(ctx context.Context, lc Context)
	LoopErrored(ctx context.Context, lc Context, err error)
}

// Hooks lets a handler report the points of its run that observers track.
type Hooks struct {
	obs Observer
	lc  Context
}

// BeforeModelCall is a no-op on zero Hooks.
func (h Hooks) BeforeModelCall(ctx context.Context) {
	if h.obs != nil {
		h.obs.BeforeModelCall(ctx, h.lc)
	}
}

func (h Hooks) MessageSent(ctx context.Context) {
	if h.obs != nil {
		h.obs.MessageSent(ctx, h.lc)
	}
}

// Run notifies MessageReceived, runs handler, and notifies LoopErrored before
// passing a handler error through unchanged. A nil observer is a no-op.
func Run[T any](
	ctx context.Context,
	lc Context,
	obs Observer,
	handler func(ctx context.Context, hooks Hooks) (T, error),
) (T, error) {
	if obs == nil {
		obs = NopObserver{}
	}

	obs.MessageReceived(ctx, lc)
	out, err := handler(ctx, Hooks{obs: obs, lc: lc})
	if err != nil {
		obs.LoopErrored(ctx, lc, err)
		return out, err
	}
	return out, nil
}

type NopObserver struct{}

func (NopObserver) MessageReceived(context.Context, Context)    {}
func (NopObserver) BeforeModelCall(context.Context, Context)    {}
func (NopObserver) MessageSent(context.Context, Context)        {}
func (NopObserver) LoopErrored(context.Context, Context, error) {}

// LogObserver writes each lifecycle point as an agent_loop log entry.
type LogObserver struct{}

func (LogObserver) MessageReceived(ctx context.Context, lc Context) {
	logStage(ctx, lc, "message_received")
}

func (LogObserver) BeforeModelCall(ctx context.Context, lc Context) {
	logStage(ctx, lc, "before_model_call")
}

func (LogObserver) MessageSent(ctx context.Context, lc Context) {
	logStage(ctx, lc, "message_sent")
}

func (LogObserver) LoopErrored(ctx context.Context, lc Context, err error) {
	log.Ctx(ctx).Error().
		Err(err).
		Str("stage", "loop_errored").
		Str("member_id", lc.MemberID).
		Str("event", lc.EventName).
		Msg("agent_loop")
}

func logStage(ctx context.Context, lc Context, stage string) {
	log.Ctx(ctx).Info().
		Str("stage", stage).
		Str("member_id", lc.MemberID).
		Str("event", lc.EventName).
		Msg("agent_loop")
}
