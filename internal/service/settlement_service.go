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
	"github.com/divvyhq/divvy/internal/metrics"
	"github.com/divvyhq/divvy/internal/models"
	"github.com/divvyhq/divvy/internal/planner"
	"github.com/divvyhq/divvy/internal/storage"
)

// SettlementService is the append/update/delete log of manually recorded
// peer payments. Every mutation also moves the corresponding balance in the
// ledger, in the same atomic store update as the record write.
type SettlementService struct {
	store  storage.Store
	ledger *ledger.Ledger
	groups *GroupService
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(store storage.Store, l *ledger.Ledger, groups *GroupService) *SettlementService {
	return &SettlementService{store: store, ledger: l, groups: groups}
}

// RecordSettlement validates and persists a settlement, applying its ledger
// effect atomically.
func (s *SettlementService) RecordSettlement(ctx context.Context, rec *models.SettlementRecord) (*models.SettlementRecord, models.GroupBalances, error) {
	group, err := s.groups.GetGroup(ctx, rec.GroupID)
	if err != nil {
		return nil, nil, err
	}
	if err := validateSettlement(rec, group); err != nil {
		return nil, nil, err
	}

	rec.ID = uuid.New().String()
	rec.RecordedAt = time.Now().Unix()
	if rec.Date == 0 {
		rec.Date = rec.RecordedAt
	}

	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode settlement: %w", err)
	}
	balances, err := s.ledger.ApplySettlement(ctx, rec.GroupID, rec.From, rec.To, rec.Amount,
		storage.Write{Path: storage.SettlementPath(rec.GroupID, rec.ID), Value: doc})
	if err != nil {
		return nil, nil, err
	}

	slog.Info("settlement recorded",
		"group_id", rec.GroupID,
		"record_id", rec.ID,
		"from", rec.From,
		"to", rec.To,
		"amount", rec.Amount,
	)
	return rec, balances, nil
}

// GetSettlement retrieves a settlement record by (groupID, recordID).
func (s *SettlementService) GetSettlement(ctx context.Context, groupID, recordID string) (*models.SettlementRecord, error) {
	raw, err := s.store.Get(ctx, storage.SettlementPath(groupID, recordID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: settlement %s", ErrRecordNotFound, recordID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	var rec models.SettlementRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("corrupt settlement %s: %w", recordID, err)
	}
	return &rec, nil
}

// ListSettlements returns all of a group's settlement records, ordered by id.
func (s *SettlementService) ListSettlements(ctx context.Context, groupID string) ([]*models.SettlementRecord, error) {
	if _, err := s.groups.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	entries, err := s.store.List(ctx, storage.SettlementPrefix(groupID))
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	records := make([]*models.SettlementRecord, 0, len(entries))
	for _, e := range entries {
		var rec models.SettlementRecord
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			return nil, fmt.Errorf("corrupt settlement at %s: %w", e.Path, err)
		}
		records = append(records, &rec)
	}
	return records, nil
}

// UpdateSettlement reverses the PREVIOUS STORED record and applies the new
// values as one combined atomic ledger mutation plus the record write.
// Caller-supplied "old" values are never trusted.
func (s *SettlementService) UpdateSettlement(ctx context.Context, rec *models.SettlementRecord) (*models.SettlementRecord, models.GroupBalances, error) {
	stored, err := s.GetSettlement(ctx, rec.GroupID, rec.ID)
	if err != nil {
		return nil, nil, err
	}
	group, err := s.groups.GetGroup(ctx, rec.GroupID)
	if err != nil {
		return nil, nil, err
	}
	if err := validateSettlement(rec, group); err != nil {
		return nil, nil, err
	}

	rec.RecordedBy = stored.RecordedBy
	rec.RecordedAt = stored.RecordedAt
	if rec.Date == 0 {
		rec.Date = stored.Date
	}

	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode settlement: %w", err)
	}
	balances, err := s.ledger.ReplaceSettlement(ctx, rec.GroupID,
		stored.From, stored.To, stored.Amount,
		rec.From, rec.To, rec.Amount,
		storage.Write{Path: storage.SettlementPath(rec.GroupID, rec.ID), Value: doc})
	if err != nil {
		return nil, nil, err
	}

	slog.Info("settlement updated", "group_id", rec.GroupID, "record_id", rec.ID)
	return rec, balances, nil
}

// DeleteSettlement reverses the stored record's ledger effect and removes
// the record, atomically.
func (s *SettlementService) DeleteSettlement(ctx context.Context, groupID, recordID string) (models.GroupBalances, error) {
	stored, err := s.GetSettlement(ctx, groupID, recordID)
	if err != nil {
		return nil, err
	}
	balances, err := s.ledger.ReverseSettlement(ctx, groupID, stored.From, stored.To, stored.Amount,
		storage.Write{Path: storage.SettlementPath(groupID, recordID), Value: nil})
	if err != nil {
		return nil, err
	}

	slog.Info("settlement deleted", "group_id", groupID, "record_id", recordID)
	return balances, nil
}

// Balances returns the group's current balance snapshot.
func (s *SettlementService) Balances(ctx context.Context, groupID string) (models.GroupBalances, error) {
	return s.ledger.Balances(ctx, groupID)
}

// SuggestSettlements plans payments that zero out the group's balances. It
// is read-only. An imbalanced snapshot is surfaced as a diagnostic, and
// counted, but never blocks planning.
func (s *SettlementService) SuggestSettlements(ctx context.Context, groupID string) ([]planner.Transfer, *planner.Imbalance, error) {
	balances, err := s.ledger.Balances(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}

	transfers, imbalance := planner.Plan(balances)
	metrics.PlanTransfers.Observe(float64(len(transfers)))
	if imbalance != nil {
		metrics.IntegrityWarnings.Inc()
		slog.Warn("group balances do not sum to zero",
			"group_id", groupID,
			"residual", imbalance.Residual,
		)
	}
	return transfers, imbalance, nil
}

func validateSettlement(rec *models.SettlementRecord, group *models.Group) error {
	if rec.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidSettlement, rec.Amount)
	}
	if rec.From == "" || rec.To == "" {
		return fmt.Errorf("%w: both endpoints required", ErrInvalidSettlement)
	}
	if rec.From == rec.To {
		return fmt.Errorf("%w: cannot settle with oneself", ErrInvalidSettlement)
	}
	if !group.HasMember(rec.From) {
		return fmt.Errorf("%w: %q is not a member of group %s", ErrInvalidSettlement, rec.From, group.ID)
	}
	if !group.HasMember(rec.To) {
		return fmt.Errorf("%w: %q is not a member of group %s", ErrInvalidSettlement, rec.To, group.ID)
	}
	return nil
}
