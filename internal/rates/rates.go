// Package rates defines the exchange-rate collaborator used when an expense
// is entered in a currency other than its group's. The engine only applies a
// supplied rate; where rates come from, and how fresh they are, is the
// host's problem. The TTL cache here is an explicit injected collaborator,
// not module-level state.
package rates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/divvyhq/divvy/internal/money"
)

// ErrRateUnavailable is returned when no rate can be produced for a pair.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// Provider supplies the exchange rate from one currency to another.
type Provider interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// Convert applies a provider's rate to an amount, rounding half away from
// zero to cents. Same-currency conversion is the identity.
func Convert(ctx context.Context, p Provider, amount money.Money, from, to string) (money.Money, error) {
	if from == to {
		return amount, nil
	}
	if p == nil {
		return 0, fmt.Errorf("%w: no provider for %s->%s", ErrRateUnavailable, from, to)
	}
	rate, err := p.Rate(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("%w: %s->%s: %v", ErrRateUnavailable, from, to, err)
	}
	if rate.Sign() <= 0 {
		return 0, fmt.Errorf("%w: non-positive rate for %s->%s", ErrRateUnavailable, from, to)
	}
	return money.FromDecimal(amount.Decimal().Mul(rate)), nil
}

// Static is a fixed rate table, keyed by "FROM/TO". Useful for tests and for
// hosts that configure rates out of band.
type Static map[string]decimal.Decimal

// StaticFromEnv builds a Static table from the EXCHANGE_RATES environment
// variable, formatted "EUR/USD=1.25,GBP/USD=1.4". Malformed entries are
// logged and skipped; an unset variable yields an empty table.
func StaticFromEnv() Static {
	raw := os.Getenv("EXCHANGE_RATES")
	if raw == "" {
		return nil
	}
	table := make(Static)
	for _, entry := range strings.Split(raw, ",") {
		pair, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			slog.Warn("skipping malformed rate entry", "entry", entry)
			continue
		}
		rate, err := decimal.NewFromString(value)
		if err != nil || rate.Sign() <= 0 {
			slog.Warn("skipping malformed rate entry", "entry", entry, "error", err)
			continue
		}
		table[pair] = rate
	}
	return table
}

// Rate returns the configured rate for the pair.
func (s Static) Rate(_ context.Context, from, to string) (decimal.Decimal, error) {
	rate, ok := s[from+"/"+to]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate configured for %s/%s", from, to)
	}
	return rate, nil
}

type cached struct {
	rate    decimal.Decimal
	fetched time.Time
}

// Cache decorates a Provider with a time-to-live, so a slow or rate-limited
// upstream is consulted at most once per pair per TTL window.
type Cache struct {
	upstream Provider
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]cached
}

// NewCache wraps upstream with a TTL cache.
func NewCache(upstream Provider, ttl time.Duration) *Cache {
	return &Cache{
		upstream: upstream,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]cached),
	}
}

// Rate returns the cached rate when fresh, otherwise fetches and caches.
func (c *Cache) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	key := from + "/" + to

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && c.now().Sub(entry.fetched) < c.ttl {
		return entry.rate, nil
	}

	rate, err := c.upstream.Rate(ctx, from, to)
	if err != nil {
		// Serve a stale entry rather than failing the whole expense.
		if ok {
			return entry.rate, nil
		}
		return decimal.Zero, err
	}

	c.mu.Lock()
	c.entries[key] = cached{rate: rate, fetched: c.now()}
	c.mu.Unlock()
	return rate, nil
}
