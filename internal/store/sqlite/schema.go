package sqlite

import (
	"context"
	"database/sql"
)

// expected tables probed by EnsureSchema before rebuilding.
var probeTables = []string{"shards", "shard_children", "forwardings"}

// EnsureSchema probes for the expected tables and (re)issues the create
// statements when any probe fails. Idempotent bootstrap, not a
// steady-state operation.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if probe(ctx, db) {
		return nil
	}
	return Rebuild(ctx, db)
}

// Rebuild issues CREATE TABLE IF NOT EXISTS for the shard, child-edge,
// and forwarding tables.
func Rebuild(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS shards (
            id INTEGER PRIMARY KEY,
            class_name TEXT NOT NULL,
            table_prefix TEXT NOT NULL,
            hostname TEXT NOT NULL,
            source_type TEXT NOT NULL DEFAULT '',
            destination_type TEXT NOT NULL DEFAULT '',
            busy INTEGER NOT NULL DEFAULT 0,
            UNIQUE(table_prefix, hostname)
        );`,
		`CREATE TABLE IF NOT EXISTS shard_children (
            parent_id INTEGER NOT NULL,
            child_id INTEGER NOT NULL,
            weight INTEGER NOT NULL,
            UNIQUE(parent_id, child_id),
            UNIQUE(child_id)
        );`,
		`CREATE TABLE IF NOT EXISTS forwardings (
            base_source_id INTEGER NOT NULL,
            table_id INTEGER NOT NULL,
            shard_id INTEGER NOT NULL,
            PRIMARY KEY(base_source_id, table_id),
            UNIQUE(shard_id)
        );`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func probe(ctx context.Context, db *sql.DB) bool {
	for _, table := range probeTables {
		if _, err := db.ExecContext(ctx, `SELECT 1 FROM `+table+` LIMIT 1`); err != nil {
			return false
		}
	}
	return true
}
