package api

import (
	"github.com/divvyhq/divvy/internal/models"
	"github.com/divvyhq/divvy/internal/money"
	"github.com/divvyhq/divvy/internal/planner"
	"github.com/divvyhq/divvy/internal/split"
)

// Auth procedures.

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserView is the public shape of an account. The password hash never
// leaves the service layer.
type UserView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt int64  `json:"created_at"`
}

type AuthResponse struct {
	User  UserView `json:"user"`
	Token string   `json:"token"`
}

type GetUserRequest struct {
	UserID string `json:"user_id"`
}

type UserResponse struct {
	User UserView `json:"user"`
}

func viewOf(u *models.User) UserView {
	return UserView{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt}
}

// Group procedures.

type CreateGroupRequest struct {
	Name     string   `json:"name"`
	Currency string   `json:"currency"`
	Members  []string `json:"members"`
}

type GetGroupRequest struct {
	GroupID string `json:"group_id"`
}

type AddMembersRequest struct {
	GroupID string   `json:"group_id"`
	Members []string `json:"members"`
}

type GroupResponse struct {
	Group *models.Group `json:"group"`
}

// Expense procedures.

type RecordExpenseRequest struct {
	GroupID      string                 `json:"group_id"`
	Description  string                 `json:"description"`
	Amount       money.Money            `json:"amount"`
	Category     string                 `json:"category,omitempty"`
	Currency     string                 `json:"currency,omitempty"`
	Payers       map[string]money.Money `json:"payers"`
	Participants []string               `json:"participants"`
	SplitMethod  split.Method           `json:"split_method"`
	SplitDetails split.Params           `json:"split_details"`
	Date         int64                  `json:"date,omitempty"`
}

type UpdateExpenseRequest struct {
	ExpenseID string `json:"expense_id"`
	RecordExpenseRequest
}

type GetExpenseRequest struct {
	GroupID   string `json:"group_id"`
	ExpenseID string `json:"expense_id"`
}

type ListExpensesRequest struct {
	GroupID string `json:"group_id"`
}

type DeleteExpenseRequest struct {
	GroupID   string `json:"group_id"`
	ExpenseID string `json:"expense_id"`
}

type ExpenseResponse struct {
	Expense  *models.Expense      `json:"expense"`
	Balances models.GroupBalances `json:"balances"`
}

type ListExpensesResponse struct {
	Expenses []*models.Expense `json:"expenses"`
}

// Settlement procedures.

type RecordSettlementRequest struct {
	GroupID string      `json:"group_id"`
	From    string      `json:"from"`
	To      string      `json:"to"`
	Amount  money.Money `json:"amount"`
	Method  string      `json:"method,omitempty"`
	Remarks string      `json:"remarks,omitempty"`
	Date    int64       `json:"date,omitempty"`
}

type UpdateSettlementRequest struct {
	RecordID string `json:"record_id"`
	RecordSettlementRequest
}

type GetSettlementRequest struct {
	GroupID  string `json:"group_id"`
	RecordID string `json:"record_id"`
}

type ListSettlementsRequest struct {
	GroupID string `json:"group_id"`
}

type DeleteSettlementRequest struct {
	GroupID  string `json:"group_id"`
	RecordID string `json:"record_id"`
}

type SettlementResponse struct {
	Record   *models.SettlementRecord `json:"record"`
	Balances models.GroupBalances     `json:"balances"`
}

type ListSettlementsResponse struct {
	Records []*models.SettlementRecord `json:"records"`
}

// Balance procedures.

type GetBalancesRequest struct {
	GroupID string `json:"group_id"`
}

type BalancesResponse struct {
	Balances models.GroupBalances `json:"balances"`
}

type SuggestSettlementsRequest struct {
	GroupID string `json:"group_id"`
}

// SuggestSettlementsResponse carries the plan. Residual is non-nil only
// when the balance snapshot did not sum to zero; the plan is still usable.
type SuggestSettlementsResponse struct {
	Transfers []planner.Transfer `json:"transfers"`
	Residual  *money.Money       `json:"residual,omitempty"`
}

type GetUserSummaryRequest struct {
	UserID string `json:"user_id"`
}

type UserSummaryResponse struct {
	Summary *models.UserSummary `json:"summary"`
}
