// Package api mounts the engine's services as Connect RPC procedures.
// Handlers are assembled with connect.NewUnaryHandler over plain structs
// and a JSON codec, so any client speaking the Connect protocol with
// application/json can call them.
package api

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/divvyhq/divvy/internal/auth"
	"github.com/divvyhq/divvy/internal/ledger"
	"github.com/divvyhq/divvy/internal/middleware"
	"github.com/divvyhq/divvy/internal/models"
	"github.com/divvyhq/divvy/internal/rates"
	"github.com/divvyhq/divvy/internal/service"
	"github.com/divvyhq/divvy/internal/split"
)

// Procedure name prefixes, Connect-style: /package.Service/Method.
const (
	authPrefix   = "/divvy.v1.AuthService/"
	groupPrefix  = "/divvy.v1.GroupService/"
	ledgerPrefix = "/divvy.v1.LedgerService/"
)

// Services bundles everything the API layer exposes.
type Services struct {
	Auth        *service.AuthService
	Groups      *service.GroupService
	Expenses    *service.ExpenseService
	Settlements *service.SettlementService
	Ledger      *ledger.Ledger
}

// NewHandler mounts all procedures on a mux. Register and Login are public;
// everything else requires a valid bearer token.
func NewHandler(svc Services, jwtManager *auth.JWTManager) http.Handler {
	mux := http.NewServeMux()

	public := []connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(
			middleware.MetricsInterceptor(),
			middleware.LoggingInterceptor(),
		),
	}
	private := []connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(
			middleware.MetricsInterceptor(),
			middleware.RequireAuth(jwtManager),
			middleware.LoggingInterceptor(),
		),
	}

	h := &handler{svc: svc}

	route(mux, authPrefix+"Register", h.register, public)
	route(mux, authPrefix+"Login", h.login, public)
	route(mux, authPrefix+"GetUser", h.getUser, private)
	route(mux, authPrefix+"GetUserSummary", h.getUserSummary, private)

	route(mux, groupPrefix+"CreateGroup", h.createGroup, private)
	route(mux, groupPrefix+"GetGroup", h.getGroup, private)
	route(mux, groupPrefix+"AddMembers", h.addMembers, private)

	route(mux, ledgerPrefix+"RecordExpense", h.recordExpense, private)
	route(mux, ledgerPrefix+"GetExpense", h.getExpense, private)
	route(mux, ledgerPrefix+"ListExpenses", h.listExpenses, private)
	route(mux, ledgerPrefix+"UpdateExpense", h.updateExpense, private)
	route(mux, ledgerPrefix+"DeleteExpense", h.deleteExpense, private)

	route(mux, ledgerPrefix+"RecordSettlement", h.recordSettlement, private)
	route(mux, ledgerPrefix+"GetSettlement", h.getSettlement, private)
	route(mux, ledgerPrefix+"ListSettlements", h.listSettlements, private)
	route(mux, ledgerPrefix+"UpdateSettlement", h.updateSettlement, private)
	route(mux, ledgerPrefix+"DeleteSettlement", h.deleteSettlement, private)

	route(mux, ledgerPrefix+"GetBalances", h.getBalances, private)
	route(mux, ledgerPrefix+"SuggestSettlements", h.suggestSettlements, private)

	return mux
}

func route[Req, Res any](
	mux *http.ServeMux,
	procedure string,
	fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error),
	opts []connect.HandlerOption,
) {
	mux.Handle(procedure, connect.NewUnaryHandler(procedure, fn, opts...))
}

type handler struct {
	svc Services
}

// asConnectError maps service-layer sentinels onto Connect codes.
func asConnectError(err error) error {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return err
	}
	switch {
	case errors.Is(err, ledger.ErrGroupNotFound), errors.Is(err, service.ErrRecordNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, split.ErrInvalidSplit), errors.Is(err, service.ErrInvalidSettlement):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, service.ErrEmailExists):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, service.ErrInvalidCredentials):
		return connect.NewError(connect.CodeUnauthenticated, err)
	case errors.Is(err, ledger.ErrTooManyConflicts):
		return connect.NewError(connect.CodeAborted, err)
	case errors.Is(err, rates.ErrRateUnavailable):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

func (h *handler) register(ctx context.Context, req *connect.Request[RegisterRequest]) (*connect.Response[AuthResponse], error) {
	user, token, err := h.svc.Auth.Register(ctx, req.Msg.Email, req.Msg.Name, req.Msg.Password)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&AuthResponse{User: viewOf(user), Token: token}), nil
}

func (h *handler) login(ctx context.Context, req *connect.Request[LoginRequest]) (*connect.Response[AuthResponse], error) {
	user, token, err := h.svc.Auth.Login(ctx, req.Msg.Email, req.Msg.Password)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&AuthResponse{User: viewOf(user), Token: token}), nil
}

func (h *handler) getUser(ctx context.Context, req *connect.Request[GetUserRequest]) (*connect.Response[UserResponse], error) {
	userID := req.Msg.UserID
	if userID == "" {
		userID = middleware.GetUserID(ctx)
	}
	user, err := h.svc.Auth.GetUser(ctx, userID)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&UserResponse{User: viewOf(user)}), nil
}

func (h *handler) getUserSummary(ctx context.Context, req *connect.Request[GetUserSummaryRequest]) (*connect.Response[UserSummaryResponse], error) {
	userID := req.Msg.UserID
	if userID == "" {
		userID = middleware.GetUserID(ctx)
	}
	summary, err := h.svc.Ledger.Summary(ctx, userID)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&UserSummaryResponse{Summary: summary}), nil
}

func (h *handler) createGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[GroupResponse], error) {
	group, err := h.svc.Groups.CreateGroup(ctx, req.Msg.Name, req.Msg.Currency, middleware.GetUserID(ctx), req.Msg.Members)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&GroupResponse{Group: group}), nil
}

func (h *handler) getGroup(ctx context.Context, req *connect.Request[GetGroupRequest]) (*connect.Response[GroupResponse], error) {
	group, err := h.svc.Groups.GetGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&GroupResponse{Group: group}), nil
}

func (h *handler) addMembers(ctx context.Context, req *connect.Request[AddMembersRequest]) (*connect.Response[GroupResponse], error) {
	group, err := h.svc.Groups.AddMembers(ctx, req.Msg.GroupID, req.Msg.Members)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&GroupResponse{Group: group}), nil
}

func expenseFrom(req *RecordExpenseRequest, createdBy string) *models.Expense {
	return &models.Expense{
		GroupID:      req.GroupID,
		Description:  req.Description,
		Amount:       req.Amount,
		Category:     req.Category,
		Currency:     req.Currency,
		Payers:       req.Payers,
		Participants: req.Participants,
		SplitMethod:  req.SplitMethod,
		SplitDetails: req.SplitDetails,
		Date:         req.Date,
		CreatedBy:    createdBy,
	}
}

func (h *handler) recordExpense(ctx context.Context, req *connect.Request[RecordExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	exp, balances, err := h.svc.Expenses.RecordExpense(ctx, expenseFrom(req.Msg, middleware.GetUserID(ctx)))
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&ExpenseResponse{Expense: exp, Balances: balances}), nil
}

func (h *handler) getExpense(ctx context.Context, req *connect.Request[GetExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	exp, err := h.svc.Expenses.GetExpense(ctx, req.Msg.GroupID, req.Msg.ExpenseID)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&ExpenseResponse{Expense: exp}), nil
}

func (h *handler) listExpenses(ctx context.Context, req *connect.Request[ListExpensesRequest]) (*connect.Response[ListExpensesResponse], error) {
	expenses, err := h.svc.Expenses.ListExpenses(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&ListExpensesResponse{Expenses: expenses}), nil
}

func (h *handler) updateExpense(ctx context.Context, req *connect.Request[UpdateExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	exp := expenseFrom(&req.Msg.RecordExpenseRequest, "")
	exp.ID = req.Msg.ExpenseID
	updated, balances, err := h.svc.Expenses.UpdateExpense(ctx, exp)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&ExpenseResponse{Expense: updated, Balances: balances}), nil
}

func (h *handler) deleteExpense(ctx context.Context, req *connect.Request[DeleteExpenseRequest]) (*connect.Response[BalancesResponse], error) {
	balances, err := h.svc.Expenses.DeleteExpense(ctx, req.Msg.GroupID, req.Msg.ExpenseID)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&BalancesResponse{Balances: balances}), nil
}

func settlementFrom(req *RecordSettlementRequest, recordedBy string) *models.SettlementRecord {
	return &models.SettlementRecord{
		GroupID:    req.GroupID,
		From:       req.From,
		To:         req.To,
		Amount:     req.Amount,
		Method:     req.Method,
		Remarks:    req.Remarks,
		Date:       req.Date,
		RecordedBy: recordedBy,
	}
}

func (h *handler) recordSettlement(ctx context.Context, req *connect.Request[RecordSettlementRequest]) (*connect.Response[SettlementResponse], error) {
	rec, balances, err := h.svc.Settlements.RecordSettlement(ctx, settlementFrom(req.Msg, middleware.GetUserID(ctx)))
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&SettlementResponse{Record: rec, Balances: balances}), nil
}

func (h *handler) getSettlement(ctx context.Context, req *connect.Request[GetSettlementRequest]) (*connect.Response[SettlementResponse], error) {
	rec, err := h.svc.Settlements.GetSettlement(ctx, req.Msg.GroupID, req.Msg.RecordID)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&SettlementResponse{Record: rec}), nil
}

func (h *handler) listSettlements(ctx context.Context, req *connect.Request[ListSettlementsRequest]) (*connect.Response[ListSettlementsResponse], error) {
	records, err := h.svc.Settlements.ListSettlements(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&ListSettlementsResponse{Records: records}), nil
}

func (h *handler) updateSettlement(ctx context.Context, req *connect.Request[UpdateSettlementRequest]) (*connect.Response[SettlementResponse], error) {
	rec := settlementFrom(&req.Msg.RecordSettlementRequest, "")
	rec.ID = req.Msg.RecordID
	updated, balances, err := h.svc.Settlements.UpdateSettlement(ctx, rec)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&SettlementResponse{Record: updated, Balances: balances}), nil
}

func (h *handler) deleteSettlement(ctx context.Context, req *connect.Request[DeleteSettlementRequest]) (*connect.Response[BalancesResponse], error) {
	balances, err := h.svc.Settlements.DeleteSettlement(ctx, req.Msg.GroupID, req.Msg.RecordID)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&BalancesResponse{Balances: balances}), nil
}

func (h *handler) getBalances(ctx context.Context, req *connect.Request[GetBalancesRequest]) (*connect.Response[BalancesResponse], error) {
	balances, err := h.svc.Settlements.Balances(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, asConnectError(err)
	}
	return connect.NewResponse(&BalancesResponse{Balances: balances}), nil
}

func (h *handler) suggestSettlements(ctx context.Context, req *connect.Request[SuggestSettlementsRequest]) (*connect.Response[SuggestSettlementsResponse], error) {
	transfers, imbalance, err := h.svc.Settlements.SuggestSettlements(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, asConnectError(err)
	}
	resp := &SuggestSettlementsResponse{Transfers: transfers}
	if imbalance != nil {
		residual := imbalance.Residual
		resp.Residual = &residual
	}
	return connect.NewResponse(resp), nil
}
