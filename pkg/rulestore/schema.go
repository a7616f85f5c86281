package rulestore

import (
	"database/sql"
	"fmt"
)

// SetupSchema creates the rule set tables. It is idempotent and safe to call
// on an already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaSets = `
CREATE TABLE IF NOT EXISTS rule_sets (
    set_id      INTEGER PRIMARY KEY,
    set_name    TEXT    NOT NULL UNIQUE,
    description TEXT    NOT NULL DEFAULT '',
    revision    INTEGER NOT NULL DEFAULT 1,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);
`
		schemaRules = `
CREATE TABLE IF NOT EXISTS rule_set_rules (
    set_id    INTEGER NOT NULL,
    position  INTEGER NOT NULL,
    rule_name TEXT    NOT NULL DEFAULT '',
    pattern   TEXT    NOT NULL,
    template  TEXT    NOT NULL,
    PRIMARY KEY (set_id, position)
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaSets); err != nil {
		return fmt.Errorf("could not create rule set schema: %w", err)
	}
	if _, err = tx.Exec(schemaRules); err != nil {
		return fmt.Errorf("could not create rule schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}
