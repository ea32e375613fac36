package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
	upstashx "github.com/tanpawarit/Vault-Concierge/pkg/upstash"
)

const (
	defaultLedgerPrefix = "vault:sms:sent:"
	defaultLedgerTTL    = 7 * 24 * time.Hour
)

// Ledger remembers keyed sends. A key is reserved before delivery and holds the
// provider result once delivery succeeds. A reserved key with no result means an
// earlier attempt may have delivered without confirming.
type Ledger interface {
	// Reserve claims key and reports false when it was already claimed.
	Reserve(ctx context.Context, key string) (bool, error)
	// Lookup returns the recorded result. A reservation without a result
	// reports ok with a zero SendResult.
	Lookup(ctx context.Context, key string) (contractx.SendResult, bool, error)
	Remember(ctx context.Context, key string, res contractx.SendResult) error
	// Release drops a reservation whose delivery failed.
	Release(ctx context.Context, key string) error
}

type MemoryLedger struct {
	mu   sync.Mutex
	sent map[string]contractx.SendResult
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{sent: make(map[string]contractx.SendResult)}
}

func (l *MemoryLedger) Reserve(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sent[key]; ok {
		return false, nil
	}
	l.sent[key] = contractx.SendResult{}
	return true, nil
}

func (l *MemoryLedger) Lookup(_ context.Context, key string) (contractx.SendResult, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.sent[key]
	return res, ok, nil
}

func (l *MemoryLedger) Remember(_ context.Context, key string, res contractx.SendResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent[key] = res
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sent, key)
	return nil
}

const pendingEntry = "pending"

type RedisLedger struct {
	client *upstashx.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLedger keeps send results in Upstash Redis so retries on another
// process still see them.
func NewRedisLedger(client *upstashx.Client, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = defaultLedgerTTL
	}
	return &RedisLedger{client: client, prefix: defaultLedgerPrefix, ttl: ttl}
}

func (l *RedisLedger) Reserve(ctx context.Context, key string) (bool, error) {
	return l.client.SetNX(ctx, l.prefix+key, pendingEntry, l.ttl)
}

func (l *RedisLedger) Lookup(ctx context.Context, key string) (contractx.SendResult, bool, error) {
	raw, ok, err := l.client.Get(ctx, l.prefix+key)
	if err != nil || !ok {
		return contractx.SendResult{}, false, err
	}
	if raw == pendingEntry {
		return contractx.SendResult{}, true, nil
	}
	var res contractx.SendResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return contractx.SendResult{}, false, fmt.Errorf("decode ledger entry: %w", err)
	}
	return res, true, nil
}

func (l *RedisLedger) Remember(ctx context.Context, key string, res contractx.SendResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode ledger entry: %w", err)
	}
	return l.client.Set(ctx, l.prefix+key, string(payload), l.ttl)
}

func (l *RedisLedger) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key)
}
