// Package workflow runs the concierge workflows for each domain event under
// per-key serialization and bounded retry.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
	executorx "github.com/tanpawarit/Vault-Concierge/agent/executor"
	loopx "github.com/tanpawarit/Vault-Concierge/agent/loop"
	memoryx "github.com/tanpawarit/Vault-Concierge/agent/memory"
	inboundnode "github.com/tanpawarit/Vault-Concierge/agent/nodes/inbound"
	statex "github.com/tanpawarit/Vault-Concierge/agent/state"
)

const DefaultIntentConfidenceThreshold = 0.8

type Outcome string

const (
	OutcomeSent         Outcome = "sent"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeRouted       Outcome = "routed"
	OutcomeHandedOff    Outcome = "handed_off"
	OutcomeNoTurns      Outcome = "no_turns"
	OutcomeNoExtraction Outcome = "no_extraction"
	OutcomeRefreshed    Outcome = "refreshed"
)

type Result struct {
	Event      contractx.EventName `json:"event"`
	Outcome    Outcome             `json:"outcome"`
	Route      statex.Route        `json:"route,omitempty"`
	FactsCount int                 `json:"factsCount,omitempty"`
}

// Policies holds the retry budget of each workflow.
var Policies = map[contractx.EventName]executorx.Policy{
	contractx.EventInviteQueued:           {Retries: 2, Permanent: IsPermanent},
	contractx.EventInboundReceived:        {Retries: 1, Permanent: IsPermanent},
	contractx.EventHandoffRequested:       {Retries: 2, Permanent: IsPermanent},
	contractx.EventMemoryRefreshRequested: {Retries: 1, Permanent: IsPermanent},
}

// IsPermanent reports errors that a retry cannot fix.
func IsPermanent(err error) bool {
	return errors.Is(err, contractx.ErrValidation) ||
		errors.Is(err, contractx.ErrUnknownEvent) ||
		errors.Is(err, contractx.ErrUnsupportedChannel) ||
		errors.Is(err, statex.ErrNoTransition)
}

type Option func(*Engine)

func WithContextBuilder(b contractx.ContextBuilder) Option {
	return func(e *Engine) {
		if b != nil {
			e.context = b
		}
	}
}

func WithExecutor(x *executorx.Executor) Option {
	return func(e *Engine) {
		if x != nil {
			e.exec = x
		}
	}
}

func WithObserver(o loopx.Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithThreshold sets the minimum model confidence for an intent to count.
// Values outside (0, 1] keep the default.
func WithThreshold(t float64) Option {
	return func(e *Engine) {
		if t > 0 && t <= 1 {
			e.threshold = t
		}
	}
}

// WithInstructions sets the Ellis instruction pack.
func WithInstructions(pack string) Option {
	return func(e *Engine) {
		e.instructions = pack
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

type Engine struct {
	store    contractx.Store
	gateway  contractx.Gateway
	model    contractx.ModelClient
	events   contractx.EventSender
	context  contractx.ContextBuilder
	exec     *executorx.Executor
	observer loopx.Observer

	threshold    float64
	instructions string
	now          func() time.Time

	inbound compose.Runnable[inboundnode.GraphInput, inboundnode.GraphOutput]
}

func New(
	store contractx.Store,
	gateway contractx.Gateway,
	model contractx.ModelClient,
	events contractx.EventSender,
	opts ...Option,
) (*Engine, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if gateway == nil {
		return nil, errors.New("messaging gateway is required")
	}
	if model == nil {
		return nil, errors.New("model client is required")
	}
	if events == nil {
		return nil, errors.New("event sender is required")
	}

	e := &Engine{
		store:     store,
		gateway:   gateway,
		model:     model,
		events:    events,
		observer:  loopx.LogObserver{},
		threshold: DefaultIntentConfidenceThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.context == nil {
		e.context = memoryx.NewBuilder(store, model)
	}
	if e.exec == nil {
		e.exec = executorx.New()
	}

	inbound, err := e.compileInboundGraph(context.Background())
	if err != nil {
		return nil, err
	}
	e.inbound = inbound
	return e, nil
}

// Handle runs the workflow for evt on its serialization key and returns the
// outcome.
func (e *Engine) Handle(ctx context.Context, evt contractx.Event) (Result, error) {
	if err := contractx.Validate(evt); err != nil {
		return Result{}, err
	}
	policy, ok := Policies[evt.Name()]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", contractx.ErrUnknownEvent, evt.Name())
	}

	logger := log.Ctx(ctx).With().
		Str("event", string(evt.Name())).
		Str("key", evt.Key()).
		Logger()
	ctx = logger.WithContext(ctx)

	return executorx.Do(ctx, e.exec, evt.Key(), policy, func(ctx context.Context, attempt int) (Result, error) {
		switch ev := evt.(type) {
		case contractx.InviteQueued:
			return e.sendInvite(ctx, ev)
		case contractx.InboundReceived:
			return e.routeInbound(ctx, ev)
		case contractx.HandoffRequested:
			return e.handoff(ctx, ev)
		case contractx.MemoryRefreshRequested:
			return e.refreshMemory(ctx, ev)
		default:
			return Result{}, fmt.Errorf("%w: %T", contractx.ErrUnknownEvent, evt)
		}
	})
}

// Dispatch is Handle for transports that only need to know whether the event
// was processed.
func (e *Engine) Dispatch(ctx context.Context, evt contractx.Event) error {
	res, err := e.Handle(ctx, evt)
	if err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			Str("event", eventName(evt)).
			Msg("workflow failed")
		return err
	}

	log.Ctx(ctx).Info().
		Str("event", string(res.Event)).
		Str("outcome", string(res.Outcome)).
		Str("route", string(res.Route)).
		Msg("workflow completed")
	return nil
}

func eventName(evt contractx.Event) string {
	if evt == nil {
		return ""
	}
	return string(evt.Name())
}
