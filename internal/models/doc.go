// Package models defines the core domain models for the divvy ledger engine.
//
// # Models
//
//   - Expense: a recorded shared expense with its stored split result
//   - SettlementRecord: an attested real-world payment between two members
//   - GroupBalances: per-group signed member balances
//   - UserSummary: a member's cross-group owed/receivable rollup
//   - Group: a set of members sharing expenses
//   - User: a registered account (host-layer identity)
//
// # Design Principles
//
//  1. All monetary fields are money.Money (integer cents), never floats.
//  2. Expense documents store the exact splitResult and payers that were
//     applied to the ledger, so reversal replays stored values rather than
//     recomputing them under possibly-changed policy logic.
//  3. Avoid circular references: relationships use ID strings, not pointers.
package models
