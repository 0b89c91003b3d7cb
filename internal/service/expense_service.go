package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/divvyhq/divvy/internal/ledger"
	"github.com/divvyhq/divvy/internal/models"
	"github.com/divvyhq/divvy/internal/money"
	"github.com/divvyhq/divvy/internal/rates"
	"github.com/divvyhq/divvy/internal/split"
	"github.com/divvyhq/divvy/internal/storage"
)

// ExpenseService records, reverses and edits shared expenses. Every mutation
// commits the expense document and its ledger effect in one atomic store
// update.
type ExpenseService struct {
	store  storage.Store
	ledger *ledger.Ledger
	groups *GroupService
	rates  rates.Provider
}

// NewExpenseService creates an ExpenseService. rateProvider may be nil, in
// which case expenses must be entered in their group's currency.
func NewExpenseService(store storage.Store, l *ledger.Ledger, groups *GroupService, rateProvider rates.Provider) *ExpenseService {
	return &ExpenseService{store: store, ledger: l, groups: groups, rates: rateProvider}
}

// RecordExpense validates the expense, computes its split, and applies payer
// credits and participant debits to the ledger. The stored document carries
// the exact payers and splitResult that were applied, so later reversal
// replays stored values instead of recomputing them.
func (s *ExpenseService) RecordExpense(ctx context.Context, exp *models.Expense) (*models.Expense, models.GroupBalances, error) {
	group, err := s.groups.GetGroup(ctx, exp.GroupID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.normalize(ctx, exp, group); err != nil {
		return nil, nil, err
	}

	result, err := split.Compute(exp.Amount, exp.Participants, exp.Payers, exp.SplitMethod, exp.SplitDetails)
	if err != nil {
		return nil, nil, err
	}
	exp.SplitResult = result.Obligations

	exp.ID = uuid.New().String()
	exp.CreatedAt = time.Now().Unix()
	if exp.Date == 0 {
		exp.Date = exp.CreatedAt
	}

	doc, err := json.Marshal(exp)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode expense: %w", err)
	}
	balances, err := s.ledger.ApplyExpense(ctx, exp.GroupID, exp.Payers, exp.SplitResult,
		storage.Write{Path: storage.ExpensePath(exp.GroupID, exp.ID), Value: doc})
	if err != nil {
		return nil, nil, err
	}

	slog.Info("expense recorded",
		"group_id", exp.GroupID,
		"expense_id", exp.ID,
		"amount", exp.Amount,
		"method", exp.SplitMethod,
	)
	return exp, balances, nil
}

// GetExpense retrieves an expense by (groupID, expenseID).
func (s *ExpenseService) GetExpense(ctx context.Context, groupID, expenseID string) (*models.Expense, error) {
	raw, err := s.store.Get(ctx, storage.ExpensePath(groupID, expenseID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: expense %s", ErrRecordNotFound, expenseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	var exp models.Expense
	if err := json.Unmarshal(raw, &exp); err != nil {
		return nil, fmt.Errorf("corrupt expense %s: %w", expenseID, err)
	}
	return &exp, nil
}

// ListExpenses returns all of a group's expenses, ordered by id.
func (s *ExpenseService) ListExpenses(ctx context.Context, groupID string) ([]*models.Expense, error) {
	if _, err := s.groups.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	entries, err := s.store.List(ctx, storage.ExpensePrefix(groupID))
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	expenses := make([]*models.Expense, 0, len(entries))
	for _, e := range entries {
		var exp models.Expense
		if err := json.Unmarshal(e.Value, &exp); err != nil {
			return nil, fmt.Errorf("corrupt expense at %s: %w", e.Path, err)
		}
		expenses = append(expenses, &exp)
	}
	return expenses, nil
}

// DeleteExpense reverses the expense's stored ledger effect and removes the
// document, atomically.
func (s *ExpenseService) DeleteExpense(ctx context.Context, groupID, expenseID string) (models.GroupBalances, error) {
	stored, err := s.GetExpense(ctx, groupID, expenseID)
	if err != nil {
		return nil, err
	}
	balances, err := s.ledger.ReverseExpense(ctx, groupID, stored.Payers, stored.SplitResult,
		storage.Write{Path: storage.ExpensePath(groupID, expenseID), Value: nil})
	if err != nil {
		return nil, err
	}

	slog.Info("expense deleted", "group_id", groupID, "expense_id", expenseID)
	return balances, nil
}

// UpdateExpense reverses the stored expense and applies the edited one as a
// single combined ledger mutation. The stored splitResult and payers drive
// the reversal; the incoming expense only supplies the new state.
func (s *ExpenseService) UpdateExpense(ctx context.Context, exp *models.Expense) (*models.Expense, models.GroupBalances, error) {
	stored, err := s.GetExpense(ctx, exp.GroupID, exp.ID)
	if err != nil {
		return nil, nil, err
	}
	group, err := s.groups.GetGroup(ctx, exp.GroupID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.normalize(ctx, exp, group); err != nil {
		return nil, nil, err
	}

	result, err := split.Compute(exp.Amount, exp.Participants, exp.Payers, exp.SplitMethod, exp.SplitDetails)
	if err != nil {
		return nil, nil, err
	}
	exp.SplitResult = result.Obligations
	exp.CreatedBy = stored.CreatedBy
	exp.CreatedAt = stored.CreatedAt
	if exp.Date == 0 {
		exp.Date = stored.Date
	}

	doc, err := json.Marshal(exp)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode expense: %w", err)
	}
	balances, err := s.ledger.ReplaceExpense(ctx, exp.GroupID,
		stored.Payers, stored.SplitResult,
		exp.Payers, exp.SplitResult,
		storage.Write{Path: storage.ExpensePath(exp.GroupID, exp.ID), Value: doc})
	if err != nil {
		return nil, nil, err
	}

	slog.Info("expense updated", "group_id", exp.GroupID, "expense_id", exp.ID)
	return exp, balances, nil
}

// normalize validates membership, defaults the currency, and converts the
// amount (and payer amounts) into the group currency when they differ.
func (s *ExpenseService) normalize(ctx context.Context, exp *models.Expense, group *models.Group) error {
	if exp.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %s", split.ErrInvalidSplit, exp.Amount)
	}
	if len(exp.Participants) == 0 {
		return fmt.Errorf("%w: no participants", split.ErrInvalidSplit)
	}
	for _, p := range exp.Participants {
		if !group.HasMember(p) {
			return fmt.Errorf("%w: participant %q is not a member of group %s", split.ErrInvalidSplit, p, group.ID)
		}
	}
	for p := range exp.Payers {
		if !group.HasMember(p) {
			return fmt.Errorf("%w: payer %q is not a member of group %s", split.ErrInvalidSplit, p, group.ID)
		}
	}

	if exp.Currency == "" {
		exp.Currency = group.Currency
	}
	if exp.Currency == group.Currency {
		return nil
	}

	converted, err := rates.Convert(ctx, s.rates, exp.Amount, exp.Currency, group.Currency)
	if err != nil {
		return err
	}
	exp.Amount = converted

	payers := make(map[string]money.Money, len(exp.Payers))
	for member, paid := range exp.Payers {
		convertedPaid, err := rates.Convert(ctx, s.rates, paid, exp.Currency, group.Currency)
		if err != nil {
			return err
		}
		payers[member] = convertedPaid
	}
	exp.Payers = payers

	// Exact-split amounts are entry-currency values too; converting them
	// alongside the payer amounts keeps the ledger in one currency.
	if len(exp.SplitDetails.Amounts) > 0 {
		amounts := make(map[string]money.Money, len(exp.SplitDetails.Amounts))
		for member, amount := range exp.SplitDetails.Amounts {
			converted, err := rates.Convert(ctx, s.rates, amount, exp.Currency, group.Currency)
			if err != nil {
				return err
			}
			amounts[member] = converted
		}
		exp.SplitDetails.Amounts = amounts
	}
	return nil
}
