package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
	qstashx "github.com/tanpawarit/Vault-Concierge/pkg/qstash"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []contractx.Event
	err    error
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, evt contractx.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return r.err
}

func TestInlineDispatchesAsynchronously(t *testing.T) {
	t.Parallel()

	d := &recordingDispatcher{}
	s := NewInline(d)

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Send(ctx, contractx.MemoryRefreshRequested{MemberID: "m1", SourceEvent: "vault/sms.inbound.received"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	cancel()
	s.Wait()

	if len(d.events) != 1 {
		t.Fatalf("dispatched %d events, want 1", len(d.events))
	}
}

func TestInlineRejectsInvalidEvent(t *testing.T) {
	t.Parallel()

	d := &recordingDispatcher{}
	s := NewInline(d)
	if err := s.Send(context.Background(), contractx.HandoffRequested{}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Send() error = %v, want ErrValidation", err)
	}
	s.Wait()
	if len(d.events) != 0 {
		t.Fatal("invalid event was dispatched")
	}
}

func TestInlineUnboundReturnsErrNoDispatcher(t *testing.T) {
	t.Parallel()

	err := NewInline(nil).Send(context.Background(), contractx.HandoffRequested{MemberID: "m1"})
	if !errors.Is(err, ErrNoDispatcher) {
		t.Fatalf("Send() error = %v, want ErrNoDispatcher", err)
	}
	if errors.Is(err, contractx.ErrUnknownEvent) {
		t.Fatal("unbound sender reported an unknown event")
	}
}

func TestInlineDispatchErrorIsLoggedNotReturned(t *testing.T) {
	t.Parallel()

	s := NewInline(nil)
	s.Bind(&recordingDispatcher{err: errors.New("retries exhausted")})
	if err := s.Send(context.Background(), contractx.InviteQueued{MemberID: "m1", InviteID: "i1"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	s.Wait()
}

type fakePublisher struct {
	req qstashx.PublishRequest
	err error
}

func (f *fakePublisher) Publish(ctx context.Context, req qstashx.PublishRequest) (string, error) {
	f.req = req
	return "msg_1", f.err
}

func TestQStashPublishesEnvelope(t *testing.T) {
	t.Parallel()

	p := &fakePublisher{}
	s := NewQStash(p, "https://vault.example.com/api/events")

	if err := s.Send(context.Background(), contractx.InviteQueued{MemberID: "m1", InviteID: "i1"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if p.req.Destination != "https://vault.example.com/api/events" {
		t.Fatalf("Destination = %q", p.req.Destination)
	}
	if p.req.DeduplicationID != "vault-invite-queued-i1" {
		t.Fatalf("DeduplicationID = %q", p.req.DeduplicationID)
	}

	var env contractx.Envelope
	if err := json.Unmarshal(p.req.Body, &env); err != nil {
		t.Fatalf("body is not an envelope: %v", err)
	}
	evt, err := contractx.DecodeEvent(env)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if got, ok := evt.(contractx.InviteQueued); !ok || got.InviteID != "i1" {
		t.Fatalf("decoded = %#v", evt)
	}
}

func TestDeduplicationIDForInboundNeedsMessageSID(t *testing.T) {
	t.Parallel()

	if id := DeduplicationID(contractx.InboundReceived{MemberID: "m1", MessageText: "ok"}); id != "" {
		t.Fatalf("DeduplicationID(inbound) = %q, want empty", id)
	}
	if id := DeduplicationID(contractx.InboundReceived{MemberID: "m1", MessageText: "ok", MessageSID: "SM1"}); id != "vault-inbound-SM1" {
		t.Fatalf("DeduplicationID(inbound with sid) = %q", id)
	}
	if id := DeduplicationID(contractx.MemoryRefreshRequested{MemberID: "m1"}); id != "" {
		t.Fatalf("DeduplicationID(refresh) = %q, want empty", id)
	}
	if id := DeduplicationID(contractx.HandoffRequested{MemberID: "m1"}); id != "vault-handoff-m1" {
		t.Fatalf("DeduplicationID(handoff) = %q", id)
	}
}

func TestQStashPublishFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("503")
	s := NewQStash(&fakePublisher{err: boom}, "https://x")
	if err := s.Send(context.Background(), contractx.HandoffRequested{MemberID: "m1"}); !errors.Is(err, boom) {
		t.Fatalf("Send() error = %v, want %v", err, boom)
	}
}
