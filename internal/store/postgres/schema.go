package postgres

import (
	"context"
	"database/sql"
)

// Table DDL for the directory schema. Idempotent; applied at bootstrap
// and by integration tests against throwaway databases.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS shards (
        id               BIGINT PRIMARY KEY,
        class_name       TEXT NOT NULL,
        table_prefix     TEXT NOT NULL,
        hostname         TEXT NOT NULL,
        source_type      TEXT NOT NULL DEFAULT '',
        destination_type TEXT NOT NULL DEFAULT '',
        busy             INTEGER NOT NULL DEFAULT 0,
        UNIQUE (table_prefix, hostname)
    )`,
	`CREATE TABLE IF NOT EXISTS shard_children (
        parent_id BIGINT NOT NULL,
        child_id  BIGINT NOT NULL,
        weight    INTEGER NOT NULL DEFAULT 1,
        UNIQUE (parent_id, child_id),
        UNIQUE (child_id)
    )`,
	`CREATE TABLE IF NOT EXISTS forwardings (
        base_source_id BIGINT NOT NULL,
        table_id       INTEGER NOT NULL,
        shard_id       BIGINT NOT NULL,
        PRIMARY KEY (base_source_id, table_id),
        UNIQUE (shard_id)
    )`,
}

// EnsureSchema creates the directory tables when they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
