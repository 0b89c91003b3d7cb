package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divvyhq/divvy/internal/ledger"
	"github.com/divvyhq/divvy/internal/models"
	"github.com/divvyhq/divvy/internal/money"
	"github.com/divvyhq/divvy/internal/rates"
	"github.com/divvyhq/divvy/internal/split"
	"github.com/divvyhq/divvy/internal/storage/memory"
)

type fixture struct {
	expenses    *ExpenseService
	settlements *SettlementService
	groups      *GroupService
	ledger      *ledger.Ledger
	group       *models.Group
}

func newFixture(t *testing.T, rateProvider rates.Provider) *fixture {
	t.Helper()
	store := memory.New()
	l := ledger.New(store)
	groups := NewGroupService(store)

	group, err := groups.CreateGroup(context.Background(), "Roommates", "USD", "alice", []string{"alice", "bob", "carol"})
	require.NoError(t, err)

	return &fixture{
		expenses:    NewExpenseService(store, l, groups, rateProvider),
		settlements: NewSettlementService(store, l, groups),
		groups:      groups,
		ledger:      l,
		group:       group,
	}
}

func TestRecordExpense(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	exp, balances, err := f.expenses.RecordExpense(ctx, &models.Expense{
		GroupID:      f.group.ID,
		Description:  "Groceries",
		Amount:       100,
		Payers:       map[string]money.Money{"alice": 100},
		Participants: []string{"alice", "bob", "carol"},
		SplitMethod:  split.MethodEqual,
		CreatedBy:    "alice",
	})
	require.NoError(t, err)
	require.NotEmpty(t, exp.ID)

	// 100 cents over three people: the paying participant absorbs the
	// rounding overage.
	assert.Equal(t, map[string]money.Money{"alice": 32, "bob": 34, "carol": 34}, exp.SplitResult)
	assert.Equal(t, money.Money(68), balances["alice"])
	assert.Equal(t, money.Money(-34), balances["bob"])
	assert.Equal(t, money.Money(0), balances.Sum())

	stored, err := f.expenses.GetExpense(ctx, f.group.ID, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, exp.SplitResult, stored.SplitResult)
	assert.Equal(t, exp.Payers, stored.Payers)
	assert.Equal(t, "USD", stored.Currency)
}

func TestRecordExpenseValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		expense *models.Expense
		wantErr error
	}{
		{
			name: "unknown group",
			expense: &models.Expense{
				GroupID: "nope", Amount: 100,
				Payers:       map[string]money.Money{"alice": 100},
				Participants: []string{"alice"},
				SplitMethod:  split.MethodEqual,
			},
			wantErr: ledger.ErrGroupNotFound,
		},
		{
			name: "participant not a member",
			expense: &models.Expense{
				GroupID: f.group.ID, Amount: 100,
				Payers:       map[string]money.Money{"alice": 100},
				Participants: []string{"alice", "mallory"},
				SplitMethod:  split.MethodEqual,
			},
			wantErr: split.ErrInvalidSplit,
		},
		{
			name: "payer not a member",
			expense: &models.Expense{
				GroupID: f.group.ID, Amount: 100,
				Payers:       map[string]money.Money{"mallory": 100},
				Participants: []string{"alice"},
				SplitMethod:  split.MethodEqual,
			},
			wantErr: split.ErrInvalidSplit,
		},
		{
			name: "non-positive amount",
			expense: &models.Expense{
				GroupID: f.group.ID, Amount: 0,
				Payers:       map[string]money.Money{"alice": 100},
				Participants: []string{"alice"},
				SplitMethod:  split.MethodEqual,
			},
			wantErr: split.ErrInvalidSplit,
		},
		{
			name: "missing percentage params",
			expense: &models.Expense{
				GroupID: f.group.ID, Amount: 100,
				Payers:       map[string]money.Money{"alice": 100},
				Participants: []string{"alice", "bob"},
				SplitMethod:  split.MethodPercentage,
			},
			wantErr: split.ErrInvalidSplit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.expenses.RecordExpense(ctx, tt.expense)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDeleteExpenseRestoresBalances(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// Prior activity so deletion restores a non-trivial state.
	_, prior, err := f.expenses.RecordExpense(ctx, &models.Expense{
		GroupID: f.group.ID, Amount: 900,
		Payers:       map[string]money.Money{"bob": 900},
		Participants: []string{"alice", "bob", "carol"},
		SplitMethod:  split.MethodEqual,
	})
	require.NoError(t, err)

	exp, _, err := f.expenses.RecordExpense(ctx, &models.Expense{
		GroupID: f.group.ID, Amount: 10001,
		Payers:       map[string]money.Money{"alice": 10001},
		Participants: []string{"alice", "bob"},
		SplitMethod: split.MethodPercentage,
		SplitDetails: split.Params{Percentages: map[string]decimal.Decimal{
			"alice": decimal.NewFromInt(60),
			"bob":   decimal.NewFromInt(40),
		}},
	})
	require.NoError(t, err)

	after, err := f.expenses.DeleteExpense(ctx, f.group.ID, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, prior, after, "deletion must restore the pre-expense balances")

	_, err = f.expenses.GetExpense(ctx, f.group.ID, exp.ID)
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestUpdateExpense(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	exp, _, err := f.expenses.RecordExpense(ctx, &models.Expense{
		GroupID: f.group.ID, Amount: 600, Description: "Dinner",
		Payers:       map[string]money.Money{"alice": 600},
		Participants: []string{"alice", "bob"},
		SplitMethod:  split.MethodEqual,
		CreatedBy:    "alice",
	})
	require.NoError(t, err)

	// The bill was actually 900 and carol was there too.
	updated, balances, err := f.expenses.UpdateExpense(ctx, &models.Expense{
		ID: exp.ID, GroupID: f.group.ID, Amount: 900, Description: "Dinner",
		Payers:       map[string]money.Money{"alice": 900},
		Participants: []string{"alice", "bob", "carol"},
		SplitMethod:  split.MethodEqual,
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]money.Money{"alice": 300, "bob": 300, "carol": 300}, updated.SplitResult)
	assert.Equal(t, "alice", updated.CreatedBy, "authorship survives edits")
	assert.Equal(t, exp.CreatedAt, updated.CreatedAt)
	assert.Equal(t, money.Money(600), balances["alice"])
	assert.Equal(t, money.Money(-300), balances["bob"])
	assert.Equal(t, money.Money(-300), balances["carol"])
	assert.Equal(t, money.Money(0), balances.Sum())
}

func TestRecordExpenseForeignCurrency(t *testing.T) {
	table := rates.Static{"EUR/USD": decimal.RequireFromString("1.25")}
	f := newFixture(t, table)
	ctx := context.Background()

	exp, balances, err := f.expenses.RecordExpense(ctx, &models.Expense{
		GroupID: f.group.ID, Amount: 1000, Currency: "EUR",
		Payers:       map[string]money.Money{"alice": 1000},
		Participants: []string{"alice", "bob"},
		SplitMethod:  split.MethodEqual,
	})
	require.NoError(t, err)

	// 10.00 EUR -> 12.50 USD, split 6.25 / 6.25.
	assert.Equal(t, money.Money(1250), exp.Amount)
	assert.Equal(t, money.Money(1250), exp.Payers["alice"])
	assert.Equal(t, money.Money(625), balances["alice"])
	assert.Equal(t, "EUR", exp.Currency, "entry currency is kept for display")
}

func TestRecordExactExpenseForeignCurrency(t *testing.T) {
	table := rates.Static{"EUR/USD": decimal.RequireFromString("1.25")}
	f := newFixture(t, table)
	ctx := context.Background()

	// Exact amounts are entered in EUR like everything else on the expense;
	// they must land in the ledger converted, or payer credits and
	// participant debits would be in different currencies.
	exp, balances, err := f.expenses.RecordExpense(ctx, &models.Expense{
		GroupID: f.group.ID, Amount: 1000, Currency: "EUR",
		Payers:       map[string]money.Money{"alice": 1000},
		Participants: []string{"alice", "bob"},
		SplitMethod:  split.MethodExact,
		SplitDetails: split.Params{Amounts: map[string]money.Money{
			"alice": 400,
			"bob":   600,
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]money.Money{"alice": 500, "bob": 750}, exp.SplitResult)
	assert.Equal(t, money.Money(750), balances["alice"])
	assert.Equal(t, money.Money(-750), balances["bob"])
	assert.Equal(t, money.Money(0), balances.Sum())
}

func TestRecordExpenseForeignCurrencyWithoutProvider(t *testing.T) {
	f := newFixture(t, nil)

	_, _, err := f.expenses.RecordExpense(context.Background(), &models.Expense{
		GroupID: f.group.ID, Amount: 1000, Currency: "EUR",
		Payers:       map[string]money.Money{"alice": 1000},
		Participants: []string{"alice", "bob"},
		SplitMethod:  split.MethodEqual,
	})
	require.ErrorIs(t, err, rates.ErrRateUnavailable)
}

func TestListExpenses(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for range 3 {
		_, _, err := f.expenses.RecordExpense(ctx, &models.Expense{
			GroupID: f.group.ID, Amount: 300,
			Payers:       map[string]money.Money{"alice": 300},
			Participants: []string{"alice", "bob", "carol"},
			SplitMethod:  split.MethodEqual,
		})
		require.NoError(t, err)
	}

	expenses, err := f.expenses.ListExpenses(ctx, f.group.ID)
	require.NoError(t, err)
	assert.Len(t, expenses, 3)

	_, err = f.expenses.ListExpenses(ctx, "nope")
	require.ErrorIs(t, err, ledger.ErrGroupNotFound)
}
