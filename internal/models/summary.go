package models

import "github.com/divvyhq/divvy/internal/money"

// GroupBalances maps member id to their signed net position within a group:
// positive means the group owes this member, negative means the member owes
// the group. The values always sum to zero.
type GroupBalances map[string]money.Money

// Clone returns a deep copy of the balance map.
func (b GroupBalances) Clone() GroupBalances {
	out := make(GroupBalances, len(b))
	for member, amount := range b {
		out[member] = amount
	}
	return out
}

// Sum returns the total of all balances. Anything beyond rounding noise is
// an upstream ledger bug.
func (b GroupBalances) Sum() money.Money {
	var total money.Money
	for _, amount := range b {
		total += amount
	}
	return total
}

// UserSummary is a member's cross-group rollup, maintained incrementally by
// the ledger: it is only ever adjusted by the signed delta of an operation,
// never re-derived from history.
type UserSummary struct {
	// UserID is the member this summary belongs to.
	UserID string `json:"user_id"`

	// TotalAmountOwed is the member's accumulated obligations, in cents.
	TotalAmountOwed money.Money `json:"total_amount_owed"`

	// TotalAmountReceivable is the member's accumulated credits, in cents.
	TotalAmountReceivable money.Money `json:"total_amount_receivable"`

	// TotalBalance is TotalAmountReceivable - TotalAmountOwed.
	TotalBalance money.Money `json:"total_balance"`

	// LastUpdated is the Unix timestamp of the last ledger touch.
	LastUpdated int64 `json:"last_updated"`
}
