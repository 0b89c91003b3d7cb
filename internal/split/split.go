// Package split converts an expense total into per-participant obligations
// under one of several split policies. Every policy except "exact" guarantees
// that the obligations sum to the total, in cents, with rounding overage
// pushed toward participants who already paid.
package split

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/divvyhq/divvy/internal/money"
)

// Method identifies a split policy.
type Method string

const (
	MethodEqual      Method = "equal"
	MethodPercentage Method = "percentage"
	MethodShares     Method = "shares"
	MethodExact      Method = "exact"
)

// ErrInvalidSplit is returned for bad policy parameters: empty participants,
// missing or non-positive method parameters, or a non-positive amount.
var ErrInvalidSplit = errors.New("invalid split")

var hundred = decimal.NewFromInt(100)

// Params carries the policy-specific parameters, keyed by member id.
// Only the field matching the method is consulted.
type Params struct {
	// Percentages for MethodPercentage; must be positive and sum to 100.
	Percentages map[string]decimal.Decimal `json:"percentages,omitempty"`

	// Shares for MethodShares; must be positive integers.
	Shares map[string]int64 `json:"shares,omitempty"`

	// Amounts for MethodExact; taken as given, never auto-balanced.
	Amounts map[string]money.Money `json:"amounts,omitempty"`
}

// Result is the computed obligation table.
type Result struct {
	// Obligations maps each participant to their share of the total.
	Obligations map[string]money.Money

	// Adjustments records the rounding overage subtracted from each member,
	// for display purposes. Empty when no correction was needed.
	Adjustments map[string]money.Money
}

// Compute produces the obligation table for an expense.
//
// participants is an ordered list; order matters for remainder distribution.
// payers maps member id to the amount that member actually paid, and is used
// only to prioritise who absorbs rounding overage.
func Compute(amount money.Money, participants []string, payers map[string]money.Money, method Method, params Params) (*Result, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidSplit, amount)
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("%w: no participants", ErrInvalidSplit)
	}
	seen := make(map[string]bool, len(participants))
	for _, p := range participants {
		if p == "" {
			return nil, fmt.Errorf("%w: empty participant id", ErrInvalidSplit)
		}
		if seen[p] {
			return nil, fmt.Errorf("%w: duplicate participant %q", ErrInvalidSplit, p)
		}
		seen[p] = true
	}

	switch method {
	case MethodEqual:
		return computeEqual(amount, participants, payers)
	case MethodPercentage:
		return computePercentage(amount, participants, payers, params.Percentages)
	case MethodShares:
		return computeShares(amount, participants, payers, params.Shares)
	case MethodExact:
		return computeExact(participants, params.Amounts)
	default:
		return nil, fmt.Errorf("%w: unknown method %q", ErrInvalidSplit, method)
	}
}

// absorptionOrder returns participants in remainder-distribution priority:
// participants who are also payers first, sorted by paid amount descending
// (stable on input order for equal payments), then the rest in input order.
func absorptionOrder(participants []string, payers map[string]money.Money) []string {
	order := make([]string, len(participants))
	copy(order, participants)
	sort.SliceStable(order, func(i, j int) bool {
		pi, iPays := payers[order[i]]
		pj, jPays := payers[order[j]]
		if iPays != jPays {
			return iPays
		}
		return pi > pj
	})
	return order
}

// correctOverage walks the priority order subtracting the rounding overage.
// An allocation never goes below zero; any residual moves to the next member.
func correctOverage(amount money.Money, obligations map[string]money.Money, order []string) (map[string]money.Money, error) {
	overage := money.Sum(obligations) - amount
	if overage < 0 {
		// Ceil-based allocation can only over-shoot.
		return nil, fmt.Errorf("%w: allocation under-shoots total by %s", ErrInvalidSplit, overage.Neg())
	}
	adjustments := make(map[string]money.Money)
	for _, member := range order {
		if overage == 0 {
			break
		}
		take := overage
		if obligations[member] < take {
			take = obligations[member]
		}
		if take == 0 {
			continue
		}
		obligations[member] -= take
		adjustments[member] = take
		overage -= take
	}
	if overage != 0 {
		return nil, fmt.Errorf("%w: unabsorbable rounding overage %s", ErrInvalidSplit, overage)
	}
	return adjustments, nil
}

func computeEqual(amount money.Money, participants []string, payers map[string]money.Money) (*Result, error) {
	n := int64(len(participants))
	base := amount.ShareCeil(1, n)
	obligations := make(map[string]money.Money, n)
	for _, p := range participants {
		obligations[p] = base
	}
	adjustments, err := correctOverage(amount, obligations, absorptionOrder(participants, payers))
	if err != nil {
		return nil, err
	}
	return &Result{Obligations: obligations, Adjustments: adjustments}, nil
}

func computePercentage(amount money.Money, participants []string, payers map[string]money.Money, percentages map[string]decimal.Decimal) (*Result, error) {
	if len(percentages) == 0 {
		return nil, fmt.Errorf("%w: percentage split requires percentages", ErrInvalidSplit)
	}
	total := decimal.Zero
	for _, p := range participants {
		pct, ok := percentages[p]
		if !ok {
			return nil, fmt.Errorf("%w: missing percentage for %q", ErrInvalidSplit, p)
		}
		if pct.Sign() <= 0 {
			return nil, fmt.Errorf("%w: non-positive percentage for %q", ErrInvalidSplit, p)
		}
		total = total.Add(pct)
	}
	if !total.Equal(hundred) {
		return nil, fmt.Errorf("%w: percentages sum to %s, want 100", ErrInvalidSplit, total)
	}

	obligations := make(map[string]money.Money, len(participants))
	for _, p := range participants {
		obligations[p] = amount.PercentCeil(percentages[p])
	}
	adjustments, err := correctOverage(amount, obligations, absorptionOrder(participants, payers))
	if err != nil {
		return nil, err
	}
	return &Result{Obligations: obligations, Adjustments: adjustments}, nil
}

func computeShares(amount money.Money, participants []string, payers map[string]money.Money, shares map[string]int64) (*Result, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("%w: share split requires shares", ErrInvalidSplit)
	}
	var totalShares int64
	for _, p := range participants {
		sh, ok := shares[p]
		if !ok {
			return nil, fmt.Errorf("%w: missing shares for %q", ErrInvalidSplit, p)
		}
		if sh <= 0 {
			return nil, fmt.Errorf("%w: non-positive shares for %q", ErrInvalidSplit, p)
		}
		totalShares += sh
	}

	obligations := make(map[string]money.Money, len(participants))
	for _, p := range participants {
		obligations[p] = amount.ShareCeil(shares[p], totalShares)
	}
	adjustments, err := correctOverage(amount, obligations, absorptionOrder(participants, payers))
	if err != nil {
		return nil, err
	}
	return &Result{Obligations: obligations, Adjustments: adjustments}, nil
}

// computeExact takes the caller-supplied amounts as given. The sum is NOT
// reconciled against the expense total; that is the caller's responsibility.
func computeExact(participants []string, amounts map[string]money.Money) (*Result, error) {
	if len(amounts) == 0 {
		return nil, fmt.Errorf("%w: exact split requires amounts", ErrInvalidSplit)
	}
	obligations := make(map[string]money.Money, len(participants))
	for _, p := range participants {
		amt, ok := amounts[p]
		if !ok {
			return nil, fmt.Errorf("%w: missing amount for %q", ErrInvalidSplit, p)
		}
		if amt < 0 {
			return nil, fmt.Errorf("%w: negative amount for %q", ErrInvalidSplit, p)
		}
		obligations[p] = amt
	}
	return &Result{Obligations: obligations, Adjustments: map[string]money.Money{}}, nil
}
