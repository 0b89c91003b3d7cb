package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divvyhq/divvy/internal/auth"
	"github.com/divvyhq/divvy/internal/ledger"
	"github.com/divvyhq/divvy/internal/money"
	"github.com/divvyhq/divvy/internal/service"
	"github.com/divvyhq/divvy/internal/split"
	"github.com/divvyhq/divvy/internal/storage/memory"
)

type testServer struct {
	*httptest.Server
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	l := ledger.New(store)
	groups := service.NewGroupService(store)

	handler := NewHandler(Services{
		Auth:        service.NewAuthService(store, jwtManager),
		Groups:      groups,
		Expenses:    service.NewExpenseService(store, l, groups, nil),
		Settlements: service.NewSettlementService(store, l, groups),
		Ledger:      l,
	}, jwtManager)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv}
}

// call invokes one procedure, attaching the session token when present.
func call[Req, Res any](t *testing.T, srv *testServer, procedure string, msg *Req) (*Res, error) {
	t.Helper()
	client := connect.NewClient[Req, Res](
		http.DefaultClient,
		srv.URL+procedure,
		connect.WithCodec(jsonCodec{}),
	)
	req := connect.NewRequest(msg)
	if srv.token != "" {
		req.Header().Set("Authorization", "Bearer "+srv.token)
	}
	resp, err := client.CallUnary(context.Background(), req)
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (s *testServer) login(t *testing.T) {
	t.Helper()
	resp, err := call[RegisterRequest, AuthResponse](t, s, authPrefix+"Register", &RegisterRequest{
		Email: "alice@example.com", Name: "Alice", Password: "password123",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)
	s.token = resp.Token
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	_, err := call[CreateGroupRequest, GroupResponse](t, srv, groupPrefix+"CreateGroup", &CreateGroupRequest{
		Name: "Trip", Members: []string{"alice"},
	})
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

func TestRegisterValidatesPassword(t *testing.T) {
	srv := newTestServer(t)

	_, err := call[RegisterRequest, AuthResponse](t, srv, authPrefix+"Register", &RegisterRequest{
		Email: "bob@example.com", Name: "Bob", Password: "short",
	})
	require.Error(t, err)
}

func TestRegisterHidesPasswordHash(t *testing.T) {
	srv := newTestServer(t)

	resp, err := call[RegisterRequest, AuthResponse](t, srv, authPrefix+"Register", &RegisterRequest{
		Email: "alice@example.com", Name: "Alice", Password: "password123",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", resp.User.Email)
	assert.NotEmpty(t, resp.User.ID)
}

func TestExpenseLifecycleOverRPC(t *testing.T) {
	srv := newTestServer(t)
	srv.login(t)

	group, err := call[CreateGroupRequest, GroupResponse](t, srv, groupPrefix+"CreateGroup", &CreateGroupRequest{
		Name: "Roommates", Members: []string{"alice", "bob", "carol"},
	})
	require.NoError(t, err)
	groupID := group.Group.ID

	exp, err := call[RecordExpenseRequest, ExpenseResponse](t, srv, ledgerPrefix+"RecordExpense", &RecordExpenseRequest{
		GroupID:      groupID,
		Description:  "Groceries",
		Amount:       100,
		Payers:       map[string]money.Money{"alice": 100},
		Participants: []string{"alice", "bob", "carol"},
		SplitMethod:  split.MethodEqual,
	})
	require.NoError(t, err)
	assert.Equal(t, money.Money(68), exp.Balances["alice"])
	assert.Equal(t, map[string]money.Money{"alice": 32, "bob": 34, "carol": 34}, exp.Expense.SplitResult)

	plan, err := call[SuggestSettlementsRequest, SuggestSettlementsResponse](t, srv, ledgerPrefix+"SuggestSettlements", &SuggestSettlementsRequest{
		GroupID: groupID,
	})
	require.NoError(t, err)
	require.Len(t, plan.Transfers, 2)
	assert.Nil(t, plan.Residual)

	deleted, err := call[DeleteExpenseRequest, BalancesResponse](t, srv, ledgerPrefix+"DeleteExpense", &DeleteExpenseRequest{
		GroupID: groupID, ExpenseID: exp.Expense.ID,
	})
	require.NoError(t, err)
	assert.Empty(t, deleted.Balances)
}

func TestSettlementOverRPC(t *testing.T) {
	srv := newTestServer(t)
	srv.login(t)

	group, err := call[CreateGroupRequest, GroupResponse](t, srv, groupPrefix+"CreateGroup", &CreateGroupRequest{
		Name: "Roommates", Members: []string{"alice", "bob"},
	})
	require.NoError(t, err)
	groupID := group.Group.ID

	_, err = call[RecordExpenseRequest, ExpenseResponse](t, srv, ledgerPrefix+"RecordExpense", &RecordExpenseRequest{
		GroupID:      groupID,
		Amount:       5000,
		Payers:       map[string]money.Money{"alice": 5000},
		Participants: []string{"alice", "bob"},
		SplitMethod:  split.MethodEqual,
	})
	require.NoError(t, err)

	rec, err := call[RecordSettlementRequest, SettlementResponse](t, srv, ledgerPrefix+"RecordSettlement", &RecordSettlementRequest{
		GroupID: groupID, From: "bob", To: "alice", Amount: 2500, Method: "cash",
	})
	require.NoError(t, err)
	assert.Empty(t, rec.Balances, "a full settlement zeroes the group")

	_, err = call[RecordSettlementRequest, SettlementResponse](t, srv, ledgerPrefix+"RecordSettlement", &RecordSettlementRequest{
		GroupID: groupID, From: "bob", To: "bob", Amount: 10,
	})
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestErrorCodes(t *testing.T) {
	srv := newTestServer(t)
	srv.login(t)

	_, err := call[GetGroupRequest, GroupResponse](t, srv, groupPrefix+"GetGroup", &GetGroupRequest{GroupID: "missing"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = call[RegisterRequest, AuthResponse](t, srv, authPrefix+"Register", &RegisterRequest{
		Email: "alice@example.com", Name: "Again", Password: "password123",
	})
	assert.Equal(t, connect.CodeAlreadyExists, connect.CodeOf(err))

	_, err = call[LoginRequest, AuthResponse](t, srv, authPrefix+"Login", &LoginRequest{
		Email: "alice@example.com", Password: "wrong-password",
	})
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

func TestUserSummaryOverRPC(t *testing.T) {
	srv := newTestServer(t)
	srv.login(t)

	group, err := call[CreateGroupRequest, GroupResponse](t, srv, groupPrefix+"CreateGroup", &CreateGroupRequest{
		Name: "Roommates", Members: []string{"alice", "bob"},
	})
	require.NoError(t, err)

	_, err = call[RecordExpenseRequest, ExpenseResponse](t, srv, ledgerPrefix+"RecordExpense", &RecordExpenseRequest{
		GroupID:      group.Group.ID,
		Amount:       5000,
		Payers:       map[string]money.Money{"alice": 5000},
		Participants: []string{"alice", "bob"},
		SplitMethod:  split.MethodEqual,
	})
	require.NoError(t, err)

	resp, err := call[GetUserSummaryRequest, UserSummaryResponse](t, srv, authPrefix+"GetUserSummary", &GetUserSummaryRequest{UserID: "bob"})
	require.NoError(t, err)
	require.NotNil(t, resp.Summary)
	assert.Equal(t, money.Money(2500), resp.Summary.TotalAmountOwed)
	assert.Equal(t, money.Money(-2500), resp.Summary.TotalBalance)
}
