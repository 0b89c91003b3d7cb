// Package ledger maintains per-group member balances and per-member
// cross-group summaries. Every mutation is a single logical transaction:
// read the current snapshot, apply signed deltas, and commit balances,
// summaries and any caller-attached document writes in one atomic multi-key
// update guarded by compare-and-swap preconditions.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/divvyhq/divvy/internal/metrics"
	"github.com/divvyhq/divvy/internal/models"
	"github.com/divvyhq/divvy/internal/money"
	"github.com/divvyhq/divvy/internal/storage"
)

var (
	// ErrGroupNotFound is returned when the referenced group does not exist
	// at apply time. Nothing is written.
	ErrGroupNotFound = errors.New("group not found")

	// ErrTooManyConflicts is returned when the bounded retry loop exhausts
	// its attempts against concurrent writers.
	ErrTooManyConflicts = errors.New("too many concurrent updates")
)

// maxRetries bounds the read-compute-write retry loop.
const maxRetries = 5

// Ledger applies and reverses expense and settlement events against a store.
type Ledger struct {
	store storage.Store
	now   func() int64
}

// New creates a Ledger over the given store.
func New(store storage.Store) *Ledger {
	return &Ledger{
		store: store,
		now:   func() int64 { return time.Now().Unix() },
	}
}

// delta is the signed effect of an operation on one member.
type delta struct {
	balance    money.Money
	owed       money.Money
	receivable money.Money
}

// deltaSet accumulates per-member deltas for one operation.
type deltaSet map[string]*delta

func (d deltaSet) at(member string) *delta {
	if _, ok := d[member]; !ok {
		d[member] = &delta{}
	}
	return d[member]
}

// addExpense accumulates an expense's effect: payers are credited what they
// paid, participants are debited their obligations. sign is +1 to apply,
// -1 to reverse.
func (d deltaSet) addExpense(payers, obligations map[string]money.Money, sign money.Money) {
	for member, paid := range payers {
		dd := d.at(member)
		dd.balance += sign * paid
		dd.receivable += sign * paid
	}
	for member, owed := range obligations {
		dd := d.at(member)
		dd.balance -= sign * owed
		dd.owed += sign * owed
	}
}

// addSettlement accumulates a settlement's effect: the payer's deficit
// shrinks, the recipient's credit shrinks.
func (d deltaSet) addSettlement(from, to string, amount money.Money, sign money.Money) {
	fd := d.at(from)
	fd.balance += sign * amount
	fd.owed -= sign * amount

	td := d.at(to)
	td.balance -= sign * amount
	td.receivable -= sign * amount
}

// ApplyExpense credits each payer and debits each participant, and commits
// the extra writes (typically the expense document) in the same transaction.
func (l *Ledger) ApplyExpense(ctx context.Context, groupID string, payers, obligations map[string]money.Money, extra ...storage.Write) (models.GroupBalances, error) {
	deltas := make(deltaSet)
	deltas.addExpense(payers, obligations, 1)
	balances, err := l.commit(ctx, groupID, deltas, extra)
	if err != nil {
		return nil, err
	}
	metrics.LedgerOps.WithLabelValues("expense", "apply").Inc()
	return balances, nil
}

// ReverseExpense is the exact inverse of ApplyExpense. Callers must pass the
// previously stored payers and obligations, not recomputed ones, so reversal
// stays bit-exact even if split policy logic changes.
func (l *Ledger) ReverseExpense(ctx context.Context, groupID string, payers, obligations map[string]money.Money, extra ...storage.Write) (models.GroupBalances, error) {
	deltas := make(deltaSet)
	deltas.addExpense(payers, obligations, -1)
	balances, err := l.commit(ctx, groupID, deltas, extra)
	if err != nil {
		return nil, err
	}
	metrics.LedgerOps.WithLabelValues("expense", "reverse").Inc()
	return balances, nil
}

// ReplaceExpense reverses the old payers/obligations and applies the new
// ones as one combined atomic mutation.
func (l *Ledger) ReplaceExpense(ctx context.Context, groupID string, oldPayers, oldObligations, newPayers, newObligations map[string]money.Money, extra ...storage.Write) (models.GroupBalances, error) {
	deltas := make(deltaSet)
	deltas.addExpense(oldPayers, oldObligations, -1)
	deltas.addExpense(newPayers, newObligations, 1)
	balances, err := l.commit(ctx, groupID, deltas, extra)
	if err != nil {
		return nil, err
	}
	metrics.LedgerOps.WithLabelValues("expense", "replace").Inc()
	return balances, nil
}

// ApplySettlement moves amount of balance from the recipient's credit to the
// payer's deficit. Balances are signed and unbounded; there is no
// "insufficient funds" rejection in a peer ledger.
func (l *Ledger) ApplySettlement(ctx context.Context, groupID, from, to string, amount money.Money, extra ...storage.Write) (models.GroupBalances, error) {
	deltas := make(deltaSet)
	deltas.addSettlement(from, to, amount, 1)
	balances, err := l.commit(ctx, groupID, deltas, extra)
	if err != nil {
		return nil, err
	}
	metrics.LedgerOps.WithLabelValues("settlement", "apply").Inc()
	return balances, nil
}

// ReverseSettlement is the exact inverse of ApplySettlement.
func (l *Ledger) ReverseSettlement(ctx context.Context, groupID, from, to string, amount money.Money, extra ...storage.Write) (models.GroupBalances, error) {
	deltas := make(deltaSet)
	deltas.addSettlement(from, to, amount, -1)
	balances, err := l.commit(ctx, groupID, deltas, extra)
	if err != nil {
		return nil, err
	}
	metrics.LedgerOps.WithLabelValues("settlement", "reverse").Inc()
	return balances, nil
}

// ReplaceSettlement reverses the old endpoints/amount and applies the new
// ones as one combined atomic mutation.
func (l *Ledger) ReplaceSettlement(ctx context.Context, groupID, oldFrom, oldTo string, oldAmount money.Money, newFrom, newTo string, newAmount money.Money, extra ...storage.Write) (models.GroupBalances, error) {
	deltas := make(deltaSet)
	deltas.addSettlement(oldFrom, oldTo, oldAmount, -1)
	deltas.addSettlement(newFrom, newTo, newAmount, 1)
	balances, err := l.commit(ctx, groupID, deltas, extra)
	if err != nil {
		return nil, err
	}
	metrics.LedgerOps.WithLabelValues("settlement", "replace").Inc()
	return balances, nil
}

// Balances returns the group's current balance snapshot. A group with no
// ledger activity yet has an empty map.
func (l *Ledger) Balances(ctx context.Context, groupID string) (models.GroupBalances, error) {
	if _, err := l.store.Get(ctx, storage.GroupPath(groupID)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
		}
		return nil, err
	}
	balances, _, err := l.readBalances(ctx, groupID)
	return balances, err
}

func (l *Ledger) readBalances(ctx context.Context, groupID string) (models.GroupBalances, []byte, error) {
	raw, err := l.store.Get(ctx, storage.GroupBalancesPath(groupID))
	if errors.Is(err, storage.ErrNotFound) {
		return models.GroupBalances{}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read balances: %w", err)
	}
	var balances models.GroupBalances
	if err := json.Unmarshal(raw, &balances); err != nil {
		return nil, nil, fmt.Errorf("corrupt balances for group %s: %w", groupID, err)
	}
	return balances, raw, nil
}

// commit runs the read-compute-write cycle with bounded CAS retries.
func (l *Ledger) commit(ctx context.Context, groupID string, deltas deltaSet, extra []storage.Write) (models.GroupBalances, error) {
	members := make([]string, 0, len(deltas))
	for member := range deltas {
		members = append(members, member)
	}
	sort.Strings(members)

	for attempt := 0; attempt < maxRetries; attempt++ {
		groupRaw, err := l.store.Get(ctx, storage.GroupPath(groupID))
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read group: %w", err)
		}

		balances, balancesRaw, err := l.readBalances(ctx, groupID)
		if err != nil {
			return nil, err
		}

		preconds := []storage.Precondition{
			// The group doc doubles as the existence check and a
			// serialization point against membership changes.
			{Path: storage.GroupPath(groupID), Value: groupRaw},
			{Path: storage.GroupBalancesPath(groupID), Value: balancesRaw},
		}

		now := l.now()
		writes := make([]storage.Write, 0, len(members)+1+len(extra))
		for _, member := range members {
			dd := deltas[member]
			balances[member] += dd.balance
			if balances[member] == 0 {
				// Prune so apply-then-reverse restores stored bytes exactly.
				delete(balances, member)
			}

			if dd.owed == 0 && dd.receivable == 0 {
				continue
			}
			summary, summaryRaw, err := l.readSummary(ctx, member)
			if err != nil {
				return nil, err
			}
			summary.TotalAmountOwed += dd.owed
			summary.TotalAmountReceivable += dd.receivable
			summary.TotalBalance = summary.TotalAmountReceivable - summary.TotalAmountOwed
			summary.LastUpdated = now

			summaryJSON, err := json.Marshal(summary)
			if err != nil {
				return nil, fmt.Errorf("failed to encode summary: %w", err)
			}
			preconds = append(preconds, storage.Precondition{Path: storage.UserSummaryPath(member), Value: summaryRaw})
			writes = append(writes, storage.Write{Path: storage.UserSummaryPath(member), Value: summaryJSON})
		}

		balancesJSON, err := json.Marshal(balances)
		if err != nil {
			return nil, fmt.Errorf("failed to encode balances: %w", err)
		}
		writes = append(writes, storage.Write{Path: storage.GroupBalancesPath(groupID), Value: balancesJSON})
		writes = append(writes, extra...)

		err = l.store.AtomicMultiUpdate(ctx, writes, preconds)
		if err == nil {
			return balances, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return nil, err
		}
		metrics.LedgerConflicts.Inc()
		slog.Debug("ledger conflict, retrying", "group_id", groupID, "attempt", attempt+1)
	}

	return nil, fmt.Errorf("%w: group %s", ErrTooManyConflicts, groupID)
}

// Summary returns a member's cross-group rollup. Members with no ledger
// activity yet get a zero-valued summary.
func (l *Ledger) Summary(ctx context.Context, member string) (*models.UserSummary, error) {
	summary, _, err := l.readSummary(ctx, member)
	return summary, err
}

func (l *Ledger) readSummary(ctx context.Context, member string) (*models.UserSummary, []byte, error) {
	raw, err := l.store.Get(ctx, storage.UserSummaryPath(member))
	if errors.Is(err, storage.ErrNotFound) {
		// Missing summaries start from a zero baseline rather than failing.
		return &models.UserSummary{UserID: member}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read summary for %s: %w", member, err)
	}
	var summary models.UserSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, nil, fmt.Errorf("corrupt summary for %s: %w", member, err)
	}
	return &summary, raw, nil
}
