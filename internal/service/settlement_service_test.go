package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divvyhq/divvy/internal/models"
	"github.com/divvyhq/divvy/internal/money"
	"github.com/divvyhq/divvy/internal/planner"
	"github.com/divvyhq/divvy/internal/split"
)

// seedExpense leaves alice +68, bob -34, carol -34.
func seedExpense(t *testing.T, f *fixture) {
	t.Helper()
	_, _, err := f.expenses.RecordExpense(context.Background(), &models.Expense{
		GroupID:      f.group.ID,
		Amount:       100,
		Payers:       map[string]money.Money{"alice": 100},
		Participants: []string{"alice", "bob", "carol"},
		SplitMethod:  split.MethodEqual,
	})
	require.NoError(t, err)
}

func TestRecordSettlement(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	seedExpense(t, f)

	rec, balances, err := f.settlements.RecordSettlement(ctx, &models.SettlementRecord{
		GroupID: f.group.ID,
		From:    "bob",
		To:      "alice",
		Amount:  34,
		Method:  "cash",
	})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)

	assert.Equal(t, money.Money(34), balances["alice"])
	assert.Equal(t, money.Money(-34), balances["carol"])
	assert.NotContains(t, balances, "bob", "settled members are pruned at zero")

	stored, err := f.settlements.GetSettlement(ctx, f.group.ID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.From, stored.From)
	assert.Equal(t, rec.Amount, stored.Amount)
}

func TestRecordSettlementValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		record *models.SettlementRecord
	}{
		{"zero amount", &models.SettlementRecord{GroupID: f.group.ID, From: "bob", To: "alice", Amount: 0}},
		{"negative amount", &models.SettlementRecord{GroupID: f.group.ID, From: "bob", To: "alice", Amount: -5}},
		{"same endpoints", &models.SettlementRecord{GroupID: f.group.ID, From: "bob", To: "bob", Amount: 10}},
		{"payer not a member", &models.SettlementRecord{GroupID: f.group.ID, From: "mallory", To: "alice", Amount: 10}},
		{"recipient not a member", &models.SettlementRecord{GroupID: f.group.ID, From: "bob", To: "mallory", Amount: 10}},
		{"missing endpoint", &models.SettlementRecord{GroupID: f.group.ID, From: "", To: "alice", Amount: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.settlements.RecordSettlement(ctx, tt.record)
			require.ErrorIs(t, err, ErrInvalidSettlement)
		})
	}
}

func TestDeleteSettlementRestoresBalances(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	seedExpense(t, f)

	before, err := f.settlements.Balances(ctx, f.group.ID)
	require.NoError(t, err)
	beforeSummaries := summariesOf(t, f, "alice", "bob")

	rec, _, err := f.settlements.RecordSettlement(ctx, &models.SettlementRecord{
		GroupID: f.group.ID, From: "bob", To: "alice", Amount: 34,
	})
	require.NoError(t, err)

	after, err := f.settlements.DeleteSettlement(ctx, f.group.ID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after, "deletion must restore the pre-settlement balances")
	assert.Equal(t, beforeSummaries, summariesOf(t, f, "alice", "bob"),
		"deletion must restore both endpoints' summaries")

	_, err = f.settlements.GetSettlement(ctx, f.group.ID, rec.ID)
	require.ErrorIs(t, err, ErrRecordNotFound)
}

// summariesOf snapshots the monetary summary fields for the given members.
// LastUpdated is excluded; it moves on every touch.
func summariesOf(t *testing.T, f *fixture, members ...string) map[string]models.UserSummary {
	t.Helper()
	out := make(map[string]models.UserSummary, len(members))
	for _, member := range members {
		summary, err := f.ledger.Summary(context.Background(), member)
		require.NoError(t, err)
		summary.LastUpdated = 0
		out[member] = *summary
	}
	return out
}

func TestUpdateSettlementUsesStoredValues(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	seedExpense(t, f)

	rec, _, err := f.settlements.RecordSettlement(ctx, &models.SettlementRecord{
		GroupID: f.group.ID, From: "bob", To: "alice", Amount: 20,
	})
	require.NoError(t, err)

	// Bob actually paid carol, and a different amount. The reversal must use
	// the previously stored endpoints, not the incoming ones.
	updated, balances, err := f.settlements.UpdateSettlement(ctx, &models.SettlementRecord{
		ID: rec.ID, GroupID: f.group.ID, From: "bob", To: "carol", Amount: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "carol", updated.To)

	// Expense left alice +68, bob -34, carol -34. Only bob->carol 10 applies.
	assert.Equal(t, money.Money(68), balances["alice"])
	assert.Equal(t, money.Money(-24), balances["bob"])
	assert.Equal(t, money.Money(-44), balances["carol"])
}

func TestListSettlements(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	seedExpense(t, f)

	for _, amount := range []money.Money{10, 24} {
		_, _, err := f.settlements.RecordSettlement(ctx, &models.SettlementRecord{
			GroupID: f.group.ID, From: "bob", To: "alice", Amount: amount,
		})
		require.NoError(t, err)
	}

	records, err := f.settlements.ListSettlements(ctx, f.group.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSuggestSettlements(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	seedExpense(t, f)

	transfers, imbalance, err := f.settlements.SuggestSettlements(ctx, f.group.ID)
	require.NoError(t, err)
	require.Nil(t, imbalance)
	assert.Equal(t, []planner.Transfer{
		{From: "bob", To: "alice", Amount: 34},
		{From: "carol", To: "alice", Amount: 34},
	}, transfers)
}

func TestSuggestSettlementsEmptyGroup(t *testing.T) {
	f := newFixture(t, nil)

	transfers, imbalance, err := f.settlements.SuggestSettlements(context.Background(), f.group.ID)
	require.NoError(t, err)
	assert.Nil(t, imbalance)
	assert.Empty(t, transfers)
}
