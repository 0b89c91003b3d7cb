// Package planner computes a minimal set of peer-to-peer payments that zero
// out a group's balances. It is a pure function over a balance snapshot:
// no side effects, deterministic output for deterministic input.
package planner

import (
	"sort"

	"github.com/divvyhq/divvy/internal/models"
	"github.com/divvyhq/divvy/internal/money"
)

// Epsilon is the threshold below which a residual balance is treated as
// settled rounding noise.
const Epsilon = money.Money(1)

// Transfer is one suggested payment. Transfers are transient; they are
// recomputed on demand and never persisted.
type Transfer struct {
	From   string      `json:"from"`
	To     string      `json:"to"`
	Amount money.Money `json:"amount"`
}

// Imbalance reports a balance snapshot whose sum is beyond Epsilon. It is a
// diagnostic, not an error: planning proceeds on whatever was given and the
// residual party is simply left unmatched.
type Imbalance struct {
	Residual money.Money `json:"residual"`
}

type party struct {
	member string
	amount money.Money // positive magnitude
}

// Plan partitions members into debtors and creditors and greedily matches
// the largest debtor against the largest creditor until one side runs out.
// This is the classic min-cash-flow heuristic: O(n log n), minimal for the
// common two/three-party cases, not guaranteed globally minimal.
//
// Ordering is fully deterministic: parties sort descending by absolute
// amount with ties broken by member id ascending.
func Plan(balances models.GroupBalances) ([]Transfer, *Imbalance) {
	var debtors, creditors []party
	for member, balance := range balances {
		switch {
		case balance < -Epsilon:
			debtors = append(debtors, party{member: member, amount: balance.Neg()})
		case balance > Epsilon:
			creditors = append(creditors, party{member: member, amount: balance})
		}
	}
	sortParties(debtors)
	sortParties(creditors)

	var transfers []Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		debtor, creditor := &debtors[i], &creditors[j]

		settle := debtor.amount
		if creditor.amount < settle {
			settle = creditor.amount
		}
		transfers = append(transfers, Transfer{
			From:   debtor.member,
			To:     creditor.member,
			Amount: settle,
		})

		debtor.amount -= settle
		creditor.amount -= settle
		if debtor.amount <= Epsilon {
			i++
		}
		if creditor.amount <= Epsilon {
			j++
		}
	}

	if residual := balances.Sum(); residual.Abs() > Epsilon {
		return transfers, &Imbalance{Residual: residual}
	}
	return transfers, nil
}

func sortParties(parties []party) {
	sort.Slice(parties, func(i, j int) bool {
		if parties[i].amount != parties[j].amount {
			return parties[i].amount > parties[j].amount
		}
		return parties[i].member < parties[j].member
	})
}
