package store

import (
	"context"

	"github.com/clusterkit/shard-directory/internal/model"
)

// Store exposes persistence operations required by the directory.
// Implementations live under internal/store/<driver>/ (postgres, sqlite).
type Store interface {
	Shards() Shards
	Children() Children
	Forwardings() Forwardings
}

// ShardRepository provisions physical storage for a newly registered
// shard. Create is invoked synchronously inside the Shards().Create
// transaction and must be idempotent.
type ShardRepository interface {
	Create(ctx context.Context, info *model.ShardInfo) error
}

type Shards interface {
	// Create registers a shard transactionally. An existing row at the
	// same (tablePrefix, hostname) with matching configuration reuses its
	// id; a configuration mismatch or uniqueness violation fails with
	// model.ErrInvalidShard. repo.Create runs inside the transaction and
	// may be nil. Returns the shard id.
	Create(ctx context.Context, info *model.ShardInfo, repo ShardRepository) (int64, error)
	Find(ctx context.Context, tablePrefix, hostname string) (int64, error)
	Get(ctx context.Context, id int64) (*model.ShardInfo, error)
	Update(ctx context.Context, info *model.ShardInfo) error
	// Delete removes all tree edges referencing id as parent or child,
	// then the shard row. Zero edges deleted is not an error; a missing
	// row is model.ErrNonExistentShard.
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]*model.ShardInfo, error)
	ListBusy(ctx context.Context) ([]*model.ShardInfo, error)
	IDsForHostname(ctx context.Context, hostname, className string) ([]int64, error)
	ForHostname(ctx context.Context, hostname, className string) ([]*model.ShardInfo, error)
	MarkBusy(ctx context.Context, id int64, state model.ShardState) error
}

type Children interface {
	Add(ctx context.Context, parentID, childID int64, weight int) error
	Remove(ctx context.Context, parentID, childID int64) error
	// Replace repoints the edge whose child is oldChildID to newChildID.
	// A no-op when no edge referenced oldChildID.
	Replace(ctx context.Context, oldChildID, newChildID int64) error
	// List returns children of one parent ordered by descending weight.
	List(ctx context.Context, parentID int64) ([]model.ChildInfo, error)
	// ListAll maps every parent that has children to its ordered child
	// list, scanned in (parent_id, child_id) ascending order.
	ListAll(ctx context.Context) (map[int64][]model.ChildInfo, error)
	// ParentOf resolves a child's parent edge; ok is false when the shard
	// has no parent.
	ParentOf(ctx context.Context, childID int64) (parentID int64, ok bool, err error)
}

type Forwardings interface {
	// Set upserts by (tableID, baseID): update first, insert on zero rows
	// affected. A duplicate-key insert after losing the race to a
	// concurrent inserter fails with model.ErrConflict.
	Set(ctx context.Context, fwd model.Forwarding) error
	// Replace repoints every forwarding targeting oldShardID to newShardID.
	Replace(ctx context.Context, oldShardID, newShardID int64) error
	Get(ctx context.Context, tableID int, baseID int64) (*model.Forwarding, error)
	ForShard(ctx context.Context, shardID int64) (*model.Forwarding, error)
	List(ctx context.Context) ([]model.Forwarding, error)
}
