package wheel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"agiletools/pkg/interfaces"
	"agiletools/pkg/types"
)

// ResultsLimit is how many recent results a config lists.
const ResultsLimit = 20

// Service manages wheel configurations and their result log.
// Configs are readable by anyone; only the creator may change or delete one.
type Service struct {
	db       interfaces.WheelDatabase
	selector *Selector
	now      func() time.Time
}

// NewService wires the store and a selector.
func NewService(db interfaces.WheelDatabase, selector *Selector) *Service {
	return &Service{
		db:       db,
		selector: selector,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateConfig stores a new configuration owned by creator.
func (s *Service) CreateConfig(ctx context.Context, creator, name string, items []string) (*types.WheelConfig, error) {
	if !types.IsValidUsername(creator) {
		return nil, types.ErrInvalidUsername
	}
	now := s.now()
	config := &types.WheelConfig{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(name),
		Items:     normalizeItems(items),
		Creator:   creator,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := s.db.CreateWheelConfig(ctx, config); err != nil {
		return nil, fmt.Errorf("failed to create wheel config: %w", err)
	}
	slog.Info("created wheel config", "config_id", config.ID, "creator", creator, "items", len(config.Items))
	return config, nil
}

// GetConfig returns a configuration by id.
func (s *Service) GetConfig(ctx context.Context, id string) (*types.WheelConfig, error) {
	return s.db.GetWheelConfig(ctx, id)
}

// ListConfigs returns the configurations creator owns.
func (s *Service) ListConfigs(ctx context.Context, creator string) ([]*types.WheelConfig, error) {
	return s.db.ListWheelConfigs(ctx, creator)
}

// UpdateConfig replaces name and items; only the owner may do it.
func (s *Service) UpdateConfig(ctx context.Context, actor, id, name string, items []string) (*types.WheelConfig, error) {
	config, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	config.Name = strings.TrimSpace(name)
	config.Items = normalizeItems(items)
	config.UpdatedAt = s.now()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := s.db.UpdateWheelConfig(ctx, config); err != nil {
		return nil, err
	}
	return config, nil
}

// DeleteConfig removes a configuration and its results; only the owner may do it.
func (s *Service) DeleteConfig(ctx context.Context, actor, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	return s.db.DeleteWheelConfig(ctx, id)
}

// Spin selects an item server side and records it.
func (s *Service) Spin(ctx context.Context, id string) (*types.WheelResult, error) {
	config, err := s.db.GetWheelConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	item, err := s.selector.Spin(config.Items)
	if err != nil {
		return nil, err
	}
	return s.store(ctx, config.ID, item)
}

// RecordResult appends a selection made by the client. Only the config's
// existence is checked; the item is stored as given.
func (s *Service) RecordResult(ctx context.Context, configID, selectedItem string) (*types.WheelResult, error) {
	config, err := s.db.GetWheelConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	return s.store(ctx, config.ID, selectedItem)
}

// Results returns the most recent results of a configuration, newest first.
func (s *Service) Results(ctx context.Context, configID string) ([]*types.WheelResult, error) {
	if _, err := s.db.GetWheelConfig(ctx, configID); err != nil {
		return nil, err
	}
	return s.db.ListWheelResults(ctx, configID, ResultsLimit)
}

func (s *Service) store(ctx context.Context, configID, item string) (*types.WheelResult, error) {
	result := &types.WheelResult{
		ID:           uuid.New().String(),
		ConfigID:     configID,
		SelectedItem: item,
		CreatedAt:    s.now(),
	}
	if err := s.db.StoreWheelResult(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) owned(ctx context.Context, actor, id string) (*types.WheelConfig, error) {
	config, err := s.db.GetWheelConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	if config.Creator != actor {
		return nil, types.ErrNotConfigOwner
	}
	return config, nil
}

func normalizeItems(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = strings.TrimSpace(item)
	}
	return out
}
