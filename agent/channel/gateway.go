// Package channel sends concierge messages to members. Without provider
// credentials it runs in mock mode and only logs what it would send.
package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

const providerTwilio = "twilio"

// SMSSender delivers a single text message and returns the provider id.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

type Option func(*Gateway)

func WithLedger(l Ledger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.ledger = l
		}
	}
}

type Gateway struct {
	sender SMSSender
	ledger Ledger
}

var _ contractx.Gateway = (*Gateway)(nil)

// New builds a gateway. A nil sender selects mock mode.
func New(sender SMSSender, opts ...Option) *Gateway {
	g := &Gateway{
		sender: sender,
		ledger: NewMemoryLedger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

func (g *Gateway) Mock() bool {
	return g.sender == nil
}

// Send delivers msg at most once per idempotency key. A repeated key returns
// the recorded result without contacting the provider. If an earlier attempt
// reserved the key but never recorded a result, delivery is not retried and a
// zero result is returned.
func (g *Gateway) Send(ctx context.Context, msg contractx.OutboundMessage) (contractx.SendResult, error) {
	if msg.Channel != contractx.ChannelSMS {
		return contractx.SendResult{}, fmt.Errorf("%w: %q", contractx.ErrUnsupportedChannel, msg.Channel)
	}
	if strings.TrimSpace(msg.To) == "" {
		return contractx.SendResult{}, fmt.Errorf("%w: recipient is required", contractx.ErrValidation)
	}

	key := strings.TrimSpace(msg.IdempotencyKey)
	if key == "" {
		return g.deliver(ctx, msg)
	}

	claimed, err := g.ledger.Reserve(ctx, key)
	if err != nil {
		return contractx.SendResult{}, fmt.Errorf("reserve send ledger: %w", err)
	}
	if !claimed {
		prev, _, err := g.ledger.Lookup(ctx, key)
		if err != nil {
			return contractx.SendResult{}, fmt.Errorf("lookup send ledger: %w", err)
		}
		if prev.Provider == "" {
			log.Ctx(ctx).Warn().
				Str("idempotency_key", key).
				Msg("sms send unconfirmed by an earlier attempt; not resending")
		} else {
			log.Ctx(ctx).Debug().
				Str("idempotency_key", key).
				Msg("sms send deduplicated")
		}
		return prev, nil
	}

	res, err := g.deliver(ctx, msg)
	if err != nil {
		if rerr := g.ledger.Release(context.WithoutCancel(ctx), key); rerr != nil {
			log.Ctx(ctx).Error().Err(rerr).Str("idempotency_key", key).Msg("release send ledger")
		}
		return contractx.SendResult{}, err
	}

	if err := g.ledger.Remember(ctx, key, res); err != nil {
		return contractx.SendResult{}, fmt.Errorf("record send ledger: %w", err)
	}
	return res, nil
}

func (g *Gateway) deliver(ctx context.Context, msg contractx.OutboundMessage) (contractx.SendResult, error) {
	if g.sender == nil {
		log.Ctx(ctx).Info().
			Str("to", msg.To).
			Str("body", msg.Body).
			Interface("metadata", msg.Metadata).
			Msg("sms.mock outbound")
		return contractx.SendResult{Provider: providerTwilio, Mock: true}, nil
	}

	sid, err := g.sender.SendSMS(ctx, msg.To, msg.Body)
	if err != nil {
		return contractx.SendResult{}, fmt.Errorf("%w: %v", contractx.ErrProviderStatus, err)
	}
	return contractx.SendResult{Provider: providerTwilio, ProviderMessageID: sid}, nil
}
