package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks a migrated database against what the store expects.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// RequiredTables lists every table the store reads or writes.
var RequiredTables = []string{
	"poker_sessions",
	"poker_participants",
	"poker_rounds",
	"poker_votes",
	"wheel_configs",
	"wheel_results",
	"schema_migrations",
}

// RequiredIndexes lists indexes that back list and history queries.
var RequiredIndexes = []string{
	"idx_poker_sessions_creator",
	"idx_poker_sessions_status",
	"idx_poker_rounds_one_open",
	"idx_wheel_configs_creator",
	"idx_wheel_results_config_time",
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	for _, table := range RequiredTables {
		exists, err := v.objectExists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

// ValidateIndexes verifies that all required indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	for _, index := range RequiredIndexes {
		exists, err := v.objectExists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s: %w", index, err)
		}
		if !exists {
			return fmt.Errorf("required index %s does not exist", index)
		}
	}
	return nil
}

// ValidateTableStructure verifies column types of the session tables
func (v *SchemaValidator) ValidateTableStructure() error {
	expected := map[string]map[string]string{
		"poker_sessions": {
			"code":         "TEXT",
			"title":        "TEXT",
			"creator":      "TEXT",
			"status":       "TEXT",
			"is_revealed":  "INTEGER",
			"created_at":   "DATETIME",
			"completed_at": "DATETIME",
		},
		"poker_rounds": {
			"session_code":   "TEXT",
			"round_number":   "INTEGER",
			"story_title":    "TEXT",
			"final_estimate": "TEXT",
			"completed_at":   "DATETIME",
		},
		"poker_votes": {
			"username": "TEXT",
			"value":    "TEXT",
			"voted_at": "DATETIME",
		},
		"wheel_configs": {
			"id":    "TEXT",
			"name":  "TEXT",
			"items": "TEXT",
		},
	}
	for table, columns := range expected {
		if err := v.validateColumns(table, columns); err != nil {
			return fmt.Errorf("%s table structure invalid: %w", table, err)
		}
	}
	return nil
}

// ValidateConstraints verifies foreign keys and role checks are enforced
// on this connection pool.
func (v *SchemaValidator) ValidateConstraints() error {
	_, err := v.db.Exec(`
		INSERT INTO poker_participants (session_code, username, role, joined_at)
		VALUES ('__missing__', 'probe', 'voter', CURRENT_TIMESTAMP)
	`)
	if err == nil {
		_, _ = v.db.Exec("DELETE FROM poker_participants WHERE session_code = '__missing__'")
		return fmt.Errorf("foreign key constraint not enforced: poker_participants.session_code")
	}

	if _, err := v.db.Exec(`
		INSERT INTO poker_sessions (code, title, creator, created_at, updated_at)
		VALUES ('__probe__', 'probe', 'probe', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`); err != nil {
		return fmt.Errorf("failed to create probe session: %w", err)
	}
	defer func() {
		_, _ = v.db.Exec("DELETE FROM poker_sessions WHERE code = '__probe__'")
	}()

	_, err = v.db.Exec(`
		INSERT INTO poker_participants (session_code, username, role, joined_at)
		VALUES ('__probe__', 'probe', 'owner', CURRENT_TIMESTAMP)
	`)
	if err == nil {
		return fmt.Errorf("check constraint not enforced: participant role")
	}
	return nil
}

func (v *SchemaValidator) objectExists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() {
		_ = rows.Close()
	}()

	found := make(map[string]string)
	for rows.Next() {
		var (
			cid          int
			name, ctype  string
			notNull, pk  int
			defaultValue interface{}
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		found[name] = ctype
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for col, want := range expectedColumns {
		got, exists := found[col]
		if !exists {
			return fmt.Errorf("column %s not found", col)
		}
		if got != want {
			return fmt.Errorf("column %s has type %s, expected %s", col, got, want)
		}
	}
	return nil
}
