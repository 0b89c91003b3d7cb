package storage

import "fmt"

// Path conventions for the engine's keyspace. The store itself is schema
// agnostic; these helpers keep every component writing to the same layout.

// GroupPath is the group document.
func GroupPath(groupID string) string {
	return fmt.Sprintf("groups/%s", groupID)
}

// GroupBalancesPath is the per-group balance map.
func GroupBalancesPath(groupID string) string {
	return fmt.Sprintf("groups/%s/summary/balances", groupID)
}

// ExpensePath is one expense document.
func ExpensePath(groupID, expenseID string) string {
	return fmt.Sprintf("groups/%s/expenses/%s", groupID, expenseID)
}

// ExpensePrefix lists a group's expenses.
func ExpensePrefix(groupID string) string {
	return fmt.Sprintf("groups/%s/expenses/", groupID)
}

// SettlementPath is one settlement record.
func SettlementPath(groupID, recordID string) string {
	return fmt.Sprintf("groups/%s/settlements/%s", groupID, recordID)
}

// SettlementPrefix lists a group's settlement records.
func SettlementPrefix(groupID string) string {
	return fmt.Sprintf("groups/%s/settlements/", groupID)
}

// UserSummaryPath is a member's cross-group summary.
func UserSummaryPath(userID string) string {
	return fmt.Sprintf("userSummaries/%s", userID)
}

// UserPath is a user account document.
func UserPath(userID string) string {
	return fmt.Sprintf("users/%s", userID)
}

// UserEmailPath is the unique-email index entry; its value is the user id.
func UserEmailPath(email string) string {
	return fmt.Sprintf("userEmails/%s", email)
}
