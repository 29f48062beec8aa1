package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/clusterkit/shard-directory/internal/model"
	"github.com/clusterkit/shard-directory/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and
// verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Shards() store.Shards           { return &shards{db: s.db} }
func (s *pgStore) Children() store.Children       { return &children{db: s.db} }
func (s *pgStore) Forwardings() store.Forwardings { return &forwardings{db: s.db} }

// HealthPing implements health.HealthPinger for the Postgres-backed store.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Shards ---

type shards struct{ db *sql.DB }

func (s *shards) Create(ctx context.Context, info *model.ShardInfo, repo store.ShardRepository) (int64, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	var class, src, dst string
	row := tx.QueryRowContext(ctx, `
        SELECT id, class_name, source_type, destination_type
        FROM shards WHERE table_prefix=$1 AND hostname=$2
    `, info.TablePrefix, info.Hostname)
	switch err := row.Scan(&id, &class, &src, &dst); {
	case err == nil:
		if class != info.ClassName || src != info.SourceType || dst != info.DestinationType {
			return 0, fmt.Errorf("%w: shard at %s/%s already registered with class %q",
				model.ErrInvalidShard, info.Hostname, info.TablePrefix, class)
		}
	case errors.Is(err, sql.ErrNoRows):
		id = info.ID
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO shards (id, class_name, table_prefix, hostname, source_type, destination_type, busy)
            VALUES ($1,$2,$3,$4,$5,$6,$7)
        `, id, info.ClassName, info.TablePrefix, info.Hostname, info.SourceType, info.DestinationType, info.Busy); err != nil {
			if isUniqueViolation(err) {
				return 0, fmt.Errorf("%w: duplicate shard id %d", model.ErrInvalidShard, id)
			}
			return 0, err
		}
	default:
		return 0, err
	}

	if repo != nil {
		if err := repo.Create(ctx, info); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *shards) Find(ctx context.Context, tablePrefix, hostname string) (int64, error) {
	var id int64
	row := s.db.QueryRowContext(ctx, `SELECT id FROM shards WHERE table_prefix=$1 AND hostname=$2`, tablePrefix, hostname)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s/%s", model.ErrNonExistentShard, hostname, tablePrefix)
		}
		return 0, err
	}
	return id, nil
}

func (s *shards) Get(ctx context.Context, id int64) (*model.ShardInfo, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, class_name, table_prefix, hostname, source_type, destination_type, busy
        FROM shards WHERE id=$1
    `, id)
	return scanShard(row, id)
}

func (s *shards) Update(ctx context.Context, info *model.ShardInfo) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE shards
        SET class_name=$1, table_prefix=$2, hostname=$3, source_type=$4, destination_type=$5, busy=$6
        WHERE id=$7
    `, info.ClassName, info.TablePrefix, info.Hostname, info.SourceType, info.DestinationType, info.Busy, info.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: id %d", model.ErrNonExistentShard, info.ID)
	}
	return nil
}

func (s *shards) Delete(ctx context.Context, id int64) error {
	// Edge cleanup runs first and unconditionally so a crash between the
	// two statements can never leave dangling edges.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM shard_children WHERE parent_id=$1 OR child_id=$1`, id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM shards WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: id %d", model.ErrNonExistentShard, id)
	}
	return nil
}

func (s *shards) List(ctx context.Context) ([]*model.ShardInfo, error) {
	return s.query(ctx, `
        SELECT id, class_name, table_prefix, hostname, source_type, destination_type, busy
        FROM shards ORDER BY id
    `)
}

func (s *shards) ListBusy(ctx context.Context) ([]*model.ShardInfo, error) {
	return s.query(ctx, `
        SELECT id, class_name, table_prefix, hostname, source_type, destination_type, busy
        FROM shards WHERE busy=$1 ORDER BY id
    `, model.StateBusy)
}

func (s *shards) IDsForHostname(ctx context.Context, hostname, className string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM shards WHERE hostname=$1 AND class_name=$2 ORDER BY id`, hostname, className)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *shards) ForHostname(ctx context.Context, hostname, className string) ([]*model.ShardInfo, error) {
	return s.query(ctx, `
        SELECT id, class_name, table_prefix, hostname, source_type, destination_type, busy
        FROM shards WHERE hostname=$1 AND class_name=$2 ORDER BY id
    `, hostname, className)
}

func (s *shards) MarkBusy(ctx context.Context, id int64, state model.ShardState) error {
	res, err := s.db.ExecContext(ctx, `UPDATE shards SET busy=$1 WHERE id=$2`, state, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: id %d", model.ErrNonExistentShard, id)
	}
	return nil
}

func (s *shards) query(ctx context.Context, q string, args ...interface{}) ([]*model.ShardInfo, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.ShardInfo
	for rows.Next() {
		var info model.ShardInfo
		if err := rows.Scan(&info.ID, &info.ClassName, &info.TablePrefix, &info.Hostname,
			&info.SourceType, &info.DestinationType, &info.Busy); err != nil {
			return nil, err
		}
		out = append(out, &info)
	}
	return out, rows.Err()
}

func scanShard(row *sql.Row, id int64) (*model.ShardInfo, error) {
	var info model.ShardInfo
	err := row.Scan(&info.ID, &info.ClassName, &info.TablePrefix, &info.Hostname,
		&info.SourceType, &info.DestinationType, &info.Busy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", model.ErrNonExistentShard, id)
		}
		return nil, err
	}
	return &info, nil
}

// --- Children ---

type children struct{ db *sql.DB }

func (c *children) Add(ctx context.Context, parentID, childID int64, weight int) error {
	_, err := c.db.ExecContext(ctx, `INSERT INTO shard_children (parent_id, child_id, weight) VALUES ($1,$2,$3)`,
		parentID, childID, weight)
	return err
}

func (c *children) Remove(ctx context.Context, parentID, childID int64) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM shard_children WHERE parent_id=$1 AND child_id=$2`, parentID, childID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: edge %d->%d", model.ErrNonExistentShard, parentID, childID)
	}
	return nil
}

func (c *children) Replace(ctx context.Context, oldChildID, newChildID int64) error {
	_, err := c.db.ExecContext(ctx, `UPDATE shard_children SET child_id=$1 WHERE child_id=$2`, newChildID, oldChildID)
	return err
}

func (c *children) List(ctx context.Context, parentID int64) ([]model.ChildInfo, error) {
	rows, err := c.db.QueryContext(ctx, `
        SELECT child_id, weight FROM shard_children WHERE parent_id=$1 ORDER BY weight DESC
    `, parentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.ChildInfo
	for rows.Next() {
		var ci model.ChildInfo
		if err := rows.Scan(&ci.ChildID, &ci.Weight); err != nil {
			return nil, err
		}
		out = append(out, ci)
	}
	return out, rows.Err()
}

func (c *children) ListAll(ctx context.Context) (map[int64][]model.ChildInfo, error) {
	rows, err := c.db.QueryContext(ctx, `
        SELECT parent_id, child_id, weight FROM shard_children ORDER BY parent_id, child_id
    `)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make(map[int64][]model.ChildInfo)
	for rows.Next() {
		var parentID int64
		var ci model.ChildInfo
		if err := rows.Scan(&parentID, &ci.ChildID, &ci.Weight); err != nil {
			return nil, err
		}
		out[parentID] = append(out[parentID], ci)
	}
	return out, rows.Err()
}

func (c *children) ParentOf(ctx context.Context, childID int64) (int64, bool, error) {
	var parentID int64
	row := c.db.QueryRowContext(ctx, `SELECT parent_id FROM shard_children WHERE child_id=$1`, childID)
	if err := row.Scan(&parentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return parentID, true, nil
}

// --- Forwardings ---

type forwardings struct{ db *sql.DB }

func (f *forwardings) Set(ctx context.Context, fwd model.Forwarding) error {
	res, err := f.db.ExecContext(ctx, `
        UPDATE forwardings SET shard_id=$1 WHERE base_source_id=$2 AND table_id=$3
    `, fwd.ShardID, fwd.BaseID, fwd.TableID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = f.db.ExecContext(ctx, `
        INSERT INTO forwardings (base_source_id, table_id, shard_id) VALUES ($1,$2,$3)
    `, fwd.BaseID, fwd.TableID, fwd.ShardID)
	if err != nil && isUniqueViolation(err) {
		// A concurrent inserter won the update-then-insert race.
		return fmt.Errorf("%w: forwarding (%d,%d)", model.ErrConflict, fwd.TableID, fwd.BaseID)
	}
	return err
}

func (f *forwardings) Replace(ctx context.Context, oldShardID, newShardID int64) error {
	_, err := f.db.ExecContext(ctx, `UPDATE forwardings SET shard_id=$1 WHERE shard_id=$2`, newShardID, oldShardID)
	return err
}

func (f *forwardings) Get(ctx context.Context, tableID int, baseID int64) (*model.Forwarding, error) {
	fwd := model.Forwarding{TableID: tableID, BaseID: baseID}
	row := f.db.QueryRowContext(ctx, `SELECT shard_id FROM forwardings WHERE base_source_id=$1 AND table_id=$2`, baseID, tableID)
	if err := row.Scan(&fwd.ShardID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: (%d,%d)", model.ErrNoForwarding, tableID, baseID)
		}
		return nil, err
	}
	return &fwd, nil
}

func (f *forwardings) ForShard(ctx context.Context, shardID int64) (*model.Forwarding, error) {
	fwd := model.Forwarding{ShardID: shardID}
	row := f.db.QueryRowContext(ctx, `SELECT base_source_id, table_id FROM forwardings WHERE shard_id=$1`, shardID)
	if err := row.Scan(&fwd.BaseID, &fwd.TableID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: shard %d", model.ErrNoForwarding, shardID)
		}
		return nil, err
	}
	return &fwd, nil
}

func (f *forwardings) List(ctx context.Context) ([]model.Forwarding, error) {
	rows, err := f.db.QueryContext(ctx, `
        SELECT base_source_id, table_id, shard_id FROM forwardings ORDER BY table_id, base_source_id
    `)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Forwarding
	for rows.Next() {
		var fwd model.Forwarding
		if err := rows.Scan(&fwd.BaseID, &fwd.TableID, &fwd.ShardID); err != nil {
			return nil, err
		}
		out = append(out, fwd)
	}
	return out, rows.Err()
}
