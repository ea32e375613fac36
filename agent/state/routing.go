// Package state holds the inbound routing state machine as an explicit,
// ordered transition table.
package state

import (
	"errors"
	"fmt"

	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

var ErrNoTransition = errors.New("no routing transition")

type Route string

const (
	RouteTwilioOptOut          Route = "twilio_opt_out"
	RouteSuppressed            Route = "suppressed"
	RouteDecline               Route = "decline"
	RouteHandoffRequested      Route = "handoff_requested"
	RouteEllisFollowup         Route = "ellis_followup"
	RouteAwaitingExplicitReply Route = "awaiting_explicit_reply"
	RouteKnoxClarification     Route = "knox_clarification_sent"
)

type Decision string

const (
	DecisionAffirmative Decision = "affirmative"
	DecisionNegative    Decision = "negative"
	DecisionUnresolved  Decision = "unresolved"
)

// ReplyKind names the outbound message a transition sends, if any.
type ReplyKind string

const (
	ReplyNone           ReplyKind = ""
	ReplyEllisGenerated ReplyKind = "ellis_generated"
	ReplyKnoxInfo       ReplyKind = "knox_info"
	ReplyKnoxExplicit   ReplyKind = "knox_explicit"
)

// Input is everything the routing decision depends on.
type Input struct {
	OptOut             bool
	MemberStatus       contractx.MemberStatus
	Decision           Decision
	Concierge          contractx.Concierge
	InfoSeeking        bool
	PriorClarification bool
}

// Effects are the side effects of a transition. Member and Invite carry no
// ids; the caller binds them to the member being routed.
type Effects struct {
	Member      *contractx.MemberTransition
	Invite      *contractx.InviteTransition
	EmitHandoff bool
	Reply       ReplyKind
}

type Transition struct {
	Route   Route
	Effects Effects
}

type Rule struct {
	Name       string
	Guard      func(Input) bool
	Transition Transition
}

func doNotContact() *contractx.MemberTransition {
	return &contractx.MemberTransition{
		From:      contractx.Reachable,
		To:        contractx.MemberDoNotContact,
		Concierge: contractx.ConciergeSystem,
	}
}

func declineInvites() *contractx.InviteTransition {
	return &contractx.InviteTransition{
		From: []contractx.InviteStatus{contractx.InviteStatusQueued, contractx.InviteStatusSent},
		To:   contractx.InviteStatusDeclined,
	}
}

func unresolvedWith(c contractx.Concierge, extra func(Input) bool) func(Input) bool {
	return func(in Input) bool {
		return in.Decision == DecisionUnresolved && in.Concierge == c && (extra == nil || extra(in))
	}
}

// Table is evaluated top to bottom; the first matching guard wins.
var Table = []Rule{
	{
		Name:  "opt-out marker",
		Guard: func(in Input) bool { return in.OptOut },
		Transition: Transition{
			Route:   RouteTwilioOptOut,
			Effects: Effects{Member: doNotContact(), Invite: declineInvites()},
		},
	},
	{
		Name:       "already do-not-contact",
		Guard:      func(in Input) bool { return in.MemberStatus == contractx.MemberDoNotContact },
		Transition: Transition{Route: RouteSuppressed},
	},
	{
		Name:  "negative decision",
		Guard: func(in Input) bool { return in.Decision == DecisionNegative },
		Transition: Transition{
			Route:   RouteDecline,
			Effects: Effects{Member: doNotContact(), Invite: declineInvites()},
		},
	},
	{
		Name:  "affirmative decision",
		Guard: func(in Input) bool { return in.Decision == DecisionAffirmative },
		Transition: Transition{
			Route: RouteHandoffRequested,
			Effects: Effects{
				Invite: &contractx.InviteTransition{
					From: []contractx.InviteStatus{contractx.InviteStatusSent},
					To:   contractx.InviteStatusResponded,
				},
				EmitHandoff: true,
			},
		},
	},
	{
		Name:  "ellis follow-up",
		Guard: unresolvedWith(contractx.ConciergeEllis, nil),
		Transition: Transition{
			Route:   RouteEllisFollowup,
			Effects: Effects{Reply: ReplyEllisGenerated},
		},
	},
	{
		Name:  "knox already asked",
		Guard: unresolvedWith(contractx.ConciergeKnox, func(in Input) bool { return in.PriorClarification }),
		Transition: Transition{
			Route: RouteAwaitingExplicitReply,
			Effects: Effects{
				Invite: &contractx.InviteTransition{
					From: []contractx.InviteStatus{contractx.InviteStatusSent},
					To:   contractx.InviteStatusNoResponse,
				},
			},
		},
	},
	{
		Name:  "knox info request",
		Guard: unresolvedWith(contractx.ConciergeKnox, func(in Input) bool { return in.InfoSeeking }),
		Transition: Transition{
			Route:   RouteKnoxClarification,
			Effects: Effects{Reply: ReplyKnoxInfo},
		},
	},
	{
		Name:  "knox explicit ask",
		Guard: unresolvedWith(contractx.ConciergeKnox, nil),
		Transition: Transition{
			Route:   RouteKnoxClarification,
			Effects: Effects{Reply: ReplyKnoxExplicit},
		},
	},
}

// Resolve returns the first transition whose guard accepts in.
func Resolve(in Input) (Transition, error) {
	for _, r := range Table {
		if r.Guard(in) {
			return r.Transition, nil
		}
	}
	return Transition{}, fmt.Errorf("%w: decision=%s concierge=%s status=%s",
		ErrNoTransition, in.Decision, in.Concierge, in.MemberStatus)
}

// Bind returns copies of the transition's store updates addressed to memberID.
func (e Effects) Bind(memberID string) (*contractx.MemberTransition, *contractx.InviteTransition) {
	var mt *contractx.MemberTransition
	if e.Member != nil {
		m := *e.Member
		m.MemberID = memberID
		mt = &m
	}
	var it *contractx.InviteTransition
	if e.Invite != nil {
		i := *e.Invite
		i.MemberID = memberID
		it = &i
	}
	return mt, it
}
