package state

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

func TestResolveRoutes(t *testing.T) {
	t.Parallel()

	knox := Input{MemberStatus: contractx.MemberProspect, Concierge: contractx.ConciergeKnox, Decision: DecisionUnresolved}
	ellis := Input{MemberStatus: contractx.MemberGuest, Concierge: contractx.ConciergeEllis, Decision: DecisionUnresolved}

	cases := []struct {
		name  string
		in    func() Input
		route Route
		reply ReplyKind
	}{
		{"opt-out wins over affirmative", func() Input { in := knox; in.OptOut = true; in.Decision = DecisionAffirmative; return in }, RouteTwilioOptOut, ReplyNone},
		{"opt-out while already dnc", func() Input { in := knox; in.OptOut = true; in.MemberStatus = contractx.MemberDoNotContact; return in }, RouteTwilioOptOut, ReplyNone},
		{"dnc suppressed", func() Input {
			in := knox
			in.MemberStatus = contractx.MemberDoNotContact
			in.Decision = DecisionAffirmative
			return in
		}, RouteSuppressed, ReplyNone},
		{"negative", func() Input { in := ellis; in.Decision = DecisionNegative; return in }, RouteDecline, ReplyNone},
		{"affirmative", func() Input { in := knox; in.Decision = DecisionAffirmative; return in }, RouteHandoffRequested, ReplyNone},
		{"ellis unresolved", func() Input { in := ellis; in.PriorClarification = true; return in }, RouteEllisFollowup, ReplyEllisGenerated},
		{"knox after clarification", func() Input { in := knox; in.PriorClarification = true; in.InfoSeeking = true; return in }, RouteAwaitingExplicitReply, ReplyNone},
		{"knox info", func() Input { in := knox; in.InfoSeeking = true; return in }, RouteKnoxClarification, ReplyKnoxInfo},
		{"knox explicit", func() Input { return knox }, RouteKnoxClarification, ReplyKnoxExplicit},
	}

	for _, tc := range cases {
		tr, err := Resolve(tc.in())
		if err != nil {
			t.Fatalf("%s: Resolve() error = %v", tc.name, err)
		}
		if tr.Route != tc.route {
			t.Fatalf("%s: route = %s, want %s", tc.name, tr.Route, tc.route)
		}
		if tr.Effects.Reply != tc.reply {
			t.Fatalf("%s: reply = %q, want %q", tc.name, tr.Effects.Reply, tc.reply)
		}
	}
}

func TestResolveNoTransition(t *testing.T) {
	t.Parallel()

	_, err := Resolve(Input{
		MemberStatus: contractx.MemberVaulted,
		Concierge:    contractx.ConciergeSloane,
		Decision:     DecisionUnresolved,
	})
	if !errors.Is(err, ErrNoTransition) {
		t.Fatalf("Resolve() error = %v, want ErrNoTransition", err)
	}
}

func TestDoNotContactNeverLeavesAbsorbingState(t *testing.T) {
	t.Parallel()

	for _, r := range Table {
		m := r.Transition.Effects.Member
		if m == nil {
			continue
		}
		for _, from := range m.From {
			if from == contractx.MemberDoNotContact {
				t.Fatalf("rule %q may leave do_not_contact", r.Name)
			}
		}
	}
}

func TestEffectsBindCopies(t *testing.T) {
	t.Parallel()

	tr, err := Resolve(Input{OptOut: true})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	mt, it := tr.Effects.Bind("m1")

	want := &contractx.MemberTransition{
		MemberID:  "m1",
		From:      contractx.Reachable,
		To:        contractx.MemberDoNotContact,
		Concierge: contractx.ConciergeSystem,
	}
	if diff := cmp.Diff(want, mt); diff != "" {
		t.Fatalf("member transition mismatch (-want +got):\n%s", diff)
	}
	if it.MemberID != "m1" || it.To != contractx.InviteStatusDeclined {
		t.Fatalf("invite transition = %#v", it)
	}
	if tr.Effects.Member.MemberID != "" {
		t.Fatal("Bind mutated the table entry")
	}
}
