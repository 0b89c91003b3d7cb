package models

import (
	"github.com/divvyhq/divvy/internal/money"
	"github.com/divvyhq/divvy/internal/split"
)

// Expense represents a recorded shared expense.
//
// SplitResult and Payers are the exact values applied to the ledger at
// recording time. Deleting or editing an expense reverses these stored
// values; they are never recomputed from SplitDetails.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string `json:"id"`

	// GroupID is the group this expense belongs to.
	GroupID string `json:"group_id"`

	// Description is the human-readable label (e.g. "Groceries").
	Description string `json:"description"`

	// Amount is the total expense amount in the group currency, in cents.
	Amount money.Money `json:"amount"`

	// Category is a free-form category tag (food, rent, transport, ...).
	Category string `json:"category,omitempty"`

	// Currency is the ISO 4217 code the expense was entered in. When it
	// differs from the group currency, Amount has already been converted.
	Currency string `json:"currency"`

	// Payers maps member id to the amount that member actually paid.
	// The sum is not required to equal Amount; only the obligation sum is.
	Payers map[string]money.Money `json:"payers"`

	// Participants is the ordered list of members sharing the expense.
	// Order matters for rounding-remainder distribution.
	Participants []string `json:"participants"`

	// SplitMethod is one of equal, percentage, shares, exact.
	SplitMethod split.Method `json:"split_method"`

	// SplitDetails carries the policy parameters the split was computed with.
	SplitDetails split.Params `json:"split_details"`

	// SplitResult maps member id to the obligation applied to the ledger.
	SplitResult map[string]money.Money `json:"split_result"`

	// Date is the Unix timestamp of when the expense was incurred.
	Date int64 `json:"date"`

	// CreatedBy is the user id who recorded the expense.
	CreatedBy string `json:"created_by"`

	// CreatedAt is the Unix timestamp when the expense was recorded.
	CreatedAt int64 `json:"created_at"`
}
