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
	"github.com/divvyhq/divvy/internal/storage"
)

// defaultCurrency is used when a group is created without one.
const defaultCurrency = "USD"

// GroupService manages group documents.
type GroupService struct {
	store storage.Store
}

// NewGroupService creates a GroupService over the given store.
func NewGroupService(store storage.Store) *GroupService {
	return &GroupService{store: store}
}

// CreateGroup creates a new group with the given members.
func (s *GroupService) CreateGroup(ctx context.Context, name, currency, createdBy string, members []string) (*models.Group, error) {
	if name == "" {
		return nil, fmt.Errorf("group name required")
	}
	if currency == "" {
		currency = defaultCurrency
	}
	group := &models.Group{
		ID:        uuid.New().String(),
		Name:      name,
		Currency:  currency,
		Members:   dedupe(members),
		CreatedBy: createdBy,
		CreatedAt: time.Now().Unix(),
	}

	doc, err := json.Marshal(group)
	if err != nil {
		return nil, fmt.Errorf("failed to encode group: %w", err)
	}
	err = s.store.AtomicMultiUpdate(ctx,
		[]storage.Write{{Path: storage.GroupPath(group.ID), Value: doc}},
		[]storage.Precondition{{Path: storage.GroupPath(group.ID), Value: nil}},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	slog.Info("group created", "group_id", group.ID, "members", len(group.Members))
	return group, nil
}

// GetGroup retrieves a group by id.
func (s *GroupService) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	raw, err := s.store.Get(ctx, storage.GroupPath(groupID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrGroupNotFound, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	var group models.Group
	if err := json.Unmarshal(raw, &group); err != nil {
		return nil, fmt.Errorf("corrupt group %s: %w", groupID, err)
	}
	return &group, nil
}

// AddMembers adds any not-yet-present members to the group. The update is a
// compare-and-swap on the group document, which also serializes it against
// in-flight ledger operations.
func (s *GroupService) AddMembers(ctx context.Context, groupID string, members []string) (*models.Group, error) {
	for {
		raw, err := s.store.Get(ctx, storage.GroupPath(groupID))
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ledger.ErrGroupNotFound, groupID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get group: %w", err)
		}
		var group models.Group
		if err := json.Unmarshal(raw, &group); err != nil {
			return nil, fmt.Errorf("corrupt group %s: %w", groupID, err)
		}

		var added int
		for _, m := range dedupe(members) {
			if !group.HasMember(m) {
				group.Members = append(group.Members, m)
				added++
			}
		}
		if added == 0 {
			return &group, nil
		}

		doc, err := json.Marshal(&group)
		if err != nil {
			return nil, fmt.Errorf("failed to encode group: %w", err)
		}
		err = s.store.AtomicMultiUpdate(ctx,
			[]storage.Write{{Path: storage.GroupPath(groupID), Value: doc}},
			[]storage.Precondition{{Path: storage.GroupPath(groupID), Value: raw}},
		)
		if errors.Is(err, storage.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update group: %w", err)
		}

		slog.Info("members added", "group_id", groupID, "added", added)
		return &group, nil
	}
}

func dedupe(members []string) []string {
	seen := make(map[string]bool, len(members))
	out := make([]string, 0, len(members))
	for _, m := range members {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
