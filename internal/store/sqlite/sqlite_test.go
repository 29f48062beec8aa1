package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/clusterkit/shard-directory/internal/store"
	"github.com/clusterkit/shard-directory/internal/store/storetest"
)

func makeSQLiteStore(t *testing.T) store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "directory.db")
	s, err := New(context.Background(), path)
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	return s
}

func TestSQLiteStore_Compliance(t *testing.T) {
	storetest.Run(t, makeSQLiteStore)
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := EnsureSchema(ctx, db); err != nil {
			t.Fatalf("EnsureSchema pass %d: %v", i, err)
		}
	}
	for _, table := range probeTables {
		if _, err := db.ExecContext(ctx, `SELECT 1 FROM `+table+` LIMIT 1`); err != nil {
			t.Fatalf("table %s missing after EnsureSchema: %v", table, err)
		}
	}
}
