package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"agiletools/pkg/types"
)

// CreateWheelConfig stores a new wheel configuration.
func (m *Manager) CreateWheelConfig(ctx context.Context, config *types.WheelConfig) error {
	items, err := json.Marshal(config.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal wheel items: %w", err)
	}
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO wheel_configs (id, name, items, creator, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, config.ID, config.Name, string(items), config.Creator,
			formatTime(config.CreatedAt), formatTime(config.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert wheel config: %w", err)
		}
		return nil
	})
}

// UpdateWheelConfig replaces the name and items of an existing configuration.
func (m *Manager) UpdateWheelConfig(ctx context.Context, config *types.WheelConfig) error {
	items, err := json.Marshal(config.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal wheel items: %w", err)
	}
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE wheel_configs SET name = ?, items = ?, updated_at = ?
			WHERE id = ?
		`, config.Name, string(items), formatTime(config.UpdatedAt), config.ID)
		if err != nil {
			return fmt.Errorf("failed to update wheel config: %w", err)
		}
		return requireRow(res, types.ErrConfigNotFound)
	})
}

// DeleteWheelConfig removes a configuration and its results.
func (m *Manager) DeleteWheelConfig(ctx context.Context, id string) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx, "DELETE FROM wheel_configs WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete wheel config: %w", err)
		}
		return requireRow(res, types.ErrConfigNotFound)
	})
}

// GetWheelConfig loads one configuration by id.
func (m *Manager) GetWheelConfig(ctx context.Context, id string) (*types.WheelConfig, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, name, items, creator, created_at, updated_at
		FROM wheel_configs WHERE id = ?
	`, id)
	config, err := scanWheelConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrConfigNotFound
	}
	return config, err
}

// ListWheelConfigs returns the configurations created by creator, newest first.
func (m *Manager) ListWheelConfigs(ctx context.Context, creator string) ([]*types.WheelConfig, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, name, items, creator, created_at, updated_at
		FROM wheel_configs WHERE creator = ?
		ORDER BY created_at DESC
	`, creator)
	if err != nil {
		return nil, fmt.Errorf("failed to query wheel configs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	configs := []*types.WheelConfig{}
	for rows.Next() {
		config, err := scanWheelConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, config)
	}
	return configs, rows.Err()
}

// StoreWheelResult appends a spin outcome. The configuration must exist.
func (m *Manager) StoreWheelResult(ctx context.Context, result *types.WheelResult) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		var exists int
		err := db.QueryRowContext(ctx, "SELECT 1 FROM wheel_configs WHERE id = ?", result.ConfigID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrConfigNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check wheel config: %w", err)
		}
		_, err = db.ExecContext(ctx, `
			INSERT INTO wheel_results (id, config_id, selected_item, created_at)
			VALUES (?, ?, ?, ?)
		`, result.ID, result.ConfigID, result.SelectedItem, formatTime(result.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert wheel result: %w", err)
		}
		return nil
	})
}

// ListWheelResults returns up to limit most recent results for a configuration.
func (m *Manager) ListWheelResults(ctx context.Context, configID string, limit int) ([]*types.WheelResult, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, config_id, selected_item, created_at
		FROM wheel_results WHERE config_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, configID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query wheel results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []*types.WheelResult{}
	for rows.Next() {
		var r types.WheelResult
		var createdAt dbTime
		if err := rows.Scan(&r.ID, &r.ConfigID, &r.SelectedItem, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan wheel result: %w", err)
		}
		r.CreatedAt = createdAt.Time
		results = append(results, &r)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWheelConfig(row rowScanner) (*types.WheelConfig, error) {
	var (
		c         types.WheelConfig
		items     string
		createdAt dbTime
		updatedAt dbTime
	)
	if err := row.Scan(&c.ID, &c.Name, &items, &c.Creator, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan wheel config: %w", err)
	}
	if err := json.Unmarshal([]byte(items), &c.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wheel items: %w", err)
	}
	c.CreatedAt = createdAt.Time
	c.UpdatedAt = updatedAt.Time
	return &c, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
