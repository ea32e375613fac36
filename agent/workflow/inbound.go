package workflow

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
	loopx "github.com/tanpawarit/Vault-Concierge/agent/loop"
	inboundnode "github.com/tanpawarit/Vault-Concierge/agent/nodes/inbound"
	statex "github.com/tanpawarit/Vault-Concierge/agent/state"
)

func (e *Engine) routeInbound(ctx context.Context, ev contractx.InboundReceived) (Result, error) {
	lc := loopx.Context{MemberID: ev.MemberID, EventName: string(ev.Name())}

	return loopx.Run(ctx, lc, e.observer, func(ctx context.Context, hooks loopx.Hooks) (Result, error) {
		out, err := e.inbound.Invoke(ctx, inboundnode.GraphInput{Event: ev, Hooks: hooks})
		if err != nil {
			return Result{}, err
		}
		return Result{Event: ev.Name(), Outcome: OutcomeRouted, Route: out.Route}, nil
	})
}

func (e *Engine) compileInboundGraph(
	ctx context.Context,
) (compose.Runnable[inboundnode.GraphInput, inboundnode.GraphOutput], error) {
	graph := compose.NewGraph[inboundnode.GraphInput, inboundnode.GraphOutput]()

	replyDeps := inboundnode.ReplyDeps{
		Store:        e.store,
		Gateway:      e.gateway,
		Model:        e.model,
		Context:      e.context,
		Instructions: e.instructions,
	}

	if err := graph.AddLambdaNode("load_member",
		compose.InvokableLambda(func(ctx context.Context, in inboundnode.GraphInput) (*inboundnode.GraphState, error) {
			return inboundnode.LoadMember(ctx, inboundnode.NewGraphState(in, e.now), e.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_member: %w", err)
	}

	if err := graph.AddLambdaNode("request_refresh",
		compose.InvokableLambda(func(ctx context.Context, in *inboundnode.GraphState) (*inboundnode.GraphState, error) {
			return inboundnode.RequestRefresh(ctx, in, e.events)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node request_refresh: %w", err)
	}

	if err := graph.AddLambdaNode("resolve_intent",
		compose.InvokableLambda(func(ctx context.Context, in *inboundnode.GraphState) (*inboundnode.GraphState, error) {
			return inboundnode.ResolveIntent(ctx, in, e.model, e.threshold)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node resolve_intent: %w", err)
	}

	if err := graph.AddLambdaNode("load_history",
		compose.InvokableLambda(func(ctx context.Context, in *inboundnode.GraphState) (*inboundnode.GraphState, error) {
			return inboundnode.LoadHistory(ctx, in, e.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_history: %w", err)
	}

	if err := graph.AddLambdaNode("select_transition",
		compose.InvokableLambda(func(ctx context.Context, in *inboundnode.GraphState) (*inboundnode.GraphState, error) {
			return inboundnode.SelectTransition(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node select_transition: %w", err)
	}

	if err := graph.AddLambdaNode("apply_effects",
		compose.InvokableLambda(func(ctx context.Context, in *inboundnode.GraphState) (*inboundnode.GraphState, error) {
			return inboundnode.ApplyEffects(ctx, in, e.store, e.events)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node apply_effects: %w", err)
	}

	if err := graph.AddLambdaNode("send_reply",
		compose.InvokableLambda(func(ctx context.Context, in *inboundnode.GraphState) (*inboundnode.GraphState, error) {
			return inboundnode.SendReply(ctx, in, replyDeps)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node send_reply: %w", err)
	}

	if err := graph.AddLambdaNode("finalize",
		compose.InvokableLambda(func(ctx context.Context, in *inboundnode.GraphState) (inboundnode.GraphOutput, error) {
			return inboundnode.Finalize(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize: %w", err)
	}

	edges := [][2]string{
		{compose.START, "load_member"},
		{"load_member", "request_refresh"},
		{"request_refresh", "resolve_intent"},
		{"resolve_intent", "load_history"},
		{"load_history", "select_transition"},
		{"select_transition", "apply_effects"},
		{"send_reply", "finalize"},
		{"finalize", compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	replyBranch := compose.NewGraphBranch(
		func(ctx context.Context, in *inboundnode.GraphState) (string, error) {
			if in.Transition.Effects.Reply == statex.ReplyNone {
				return "finalize", nil
			}
			return "send_reply", nil
		},
		map[string]bool{"send_reply": true, "finalize": true},
	)
	if err := graph.AddBranch("apply_effects", replyBranch); err != nil {
		return nil, fmt.Errorf("add branch apply_effects: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("workflow.route_inbound"))
	if err != nil {
		return nil, fmt.Errorf("compile inbound graph: %w", err)
	}
	return runner, nil
}
