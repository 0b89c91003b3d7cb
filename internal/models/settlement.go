package models

import "github.com/divvyhq/divvy/internal/money"

// SettlementRecord represents an attested real-world payment between two
// members. Recording one moves balance between the endpoints without
// changing the group total.
type SettlementRecord struct {
	// ID is the unique identifier for the record (UUID format).
	ID string `json:"id"`

	// GroupID is the group this settlement belongs to.
	GroupID string `json:"group_id"`

	// From is the member who paid (debtor settling up).
	From string `json:"from"`

	// To is the member who received payment (creditor being paid).
	To string `json:"to"`

	// Amount is the payment amount in cents.
	Amount money.Money `json:"amount"`

	// Method is how the payment was made (cash, bank transfer, ...).
	Method string `json:"method,omitempty"`

	// Remarks is an optional free-form note.
	Remarks string `json:"remarks,omitempty"`

	// Date is the Unix timestamp of when the payment happened.
	Date int64 `json:"date"`

	// RecordedBy is the user id who recorded the settlement.
	RecordedBy string `json:"recorded_by"`

	// RecordedAt is the Unix timestamp when the record was created.
	RecordedAt int64 `json:"recorded_at"`
}
