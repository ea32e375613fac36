package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

const (
	DefaultSweepGrace = 10 * time.Minute
	sweepBatch        = 100
)

// Sweeper re-emits invite.queued for invites that stayed queued past the grace
// period, for example after a lost event. Dispatch ignores invites that have
// moved on, so re-emission is safe.
type Sweeper struct {
	store  contractx.InviteStore
	events contractx.EventSender
	grace  time.Duration
	now    func() time.Time
	cron   *cron.Cron
}

func NewSweeper(store contractx.InviteStore, events contractx.EventSender, grace time.Duration) *Sweeper {
	if grace <= 0 {
		grace = DefaultSweepGrace
	}
	return &Sweeper{
		store:  store,
		events: events,
		grace:  grace,
		now:    time.Now,
		cron:   cron.New(),
	}
}

// Sweep emits one invite.queued per stale invite and returns how many were
// emitted.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.grace)
	invites, err := s.store.ListQueuedInvites(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list queued invites: %w", err)
	}

	sent := 0
	for _, inv := range invites {
		if err := s.events.Send(ctx, contractx.InviteQueued{MemberID: inv.MemberID, InviteID: inv.ID}); err != nil {
			return sent, fmt.Errorf("re-emit invite %s: %w", inv.ID, err)
		}
		sent++
	}
	return sent, nil
}

// Start runs Sweep on the cron schedule until Stop.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() {
		n, err := s.Sweep(ctx)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("invite sweep failed")
			return
		}
		if n > 0 {
			log.Ctx(ctx).Info().Int("invites", n).Msg("stale invites re-queued")
		}
	}); err != nil {
		return fmt.Errorf("schedule invite sweep %q: %w", schedule, err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
