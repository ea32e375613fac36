// Package inboundnode holds the steps of the inbound message routing graph.
package inboundnode

import (
	"strings"
	"time"

	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
	loopx "github.com/tanpawarit/Vault-Concierge/agent/loop"
	statex "github.com/tanpawarit/Vault-Concierge/agent/state"
)

type GraphInput struct {
	Event contractx.InboundReceived
	Hooks loopx.Hooks
}

type GraphOutput struct {
	Route    statex.Route
	Decision statex.Decision
	Sent     bool
}

type GraphState struct {
	MemberID string
	Text     string
	OptOut   bool
	Now      time.Time
	Hooks    loopx.Hooks

	Member             *contractx.Member
	Decision           statex.Decision
	Classification     *contractx.IntentClassification
	InfoSeeking        bool
	PriorClarification bool

	Transition statex.Transition
	Sent       bool
}

func NewGraphState(in GraphInput, nowFn func() time.Time) *GraphState {
	return &GraphState{
		MemberID: strings.TrimSpace(in.Event.MemberID),
		Text:     strings.TrimSpace(in.Event.MessageText),
		OptOut:   in.Event.IsOptOut(),
		Now:      nowFn().UTC(),
		Hooks:    in.Hooks,
		Decision: statex.DecisionUnresolved,
	}
}

// Input projects the graph state onto the routing table input.
func (s *GraphState) Input() statex.Input {
	in := statex.Input{
		OptOut:             s.OptOut,
		Decision:           s.Decision,
		InfoSeeking:        s.InfoSeeking,
		PriorClarification: s.PriorClarification,
	}
	if s.Member != nil {
		in.MemberStatus = s.Member.Status
		in.Concierge = s.Member.AssignedConcierge
	}
	return in
}
