// Package directory is the single source of truth for shard existence,
// shard tree topology, and logical-key forwarding. It layers the
// tree-walking queries over a store.Store; all atomicity is delegated to
// the backing store, the directory holds no in-process locks.
package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/clusterkit/shard-directory/internal/metrics"
	"github.com/clusterkit/shard-directory/internal/model"
	"github.com/clusterkit/shard-directory/internal/store"
)

type Directory struct {
	store store.Store
	log   zerolog.Logger
	stats *metrics.Collector
}

// New constructs a Directory. stats may be nil.
func New(s store.Store, log zerolog.Logger, stats *metrics.Collector) *Directory {
	return &Directory{store: s, log: log, stats: stats}
}

// Store exposes the backing store for callers that need raw access
// (tests, bootstrap).
func (d *Directory) Store() store.Store { return d.store }

// --- Shard CRUD ---

func (d *Directory) CreateShard(ctx context.Context, info *model.ShardInfo, repo store.ShardRepository) (int64, error) {
	start := time.Now()
	id, err := d.store.Shards().Create(ctx, info, repo)
	if err != nil {
		return 0, err
	}
	d.record("create_shard", start)
	d.log.Info().Int64("shard_id", id).Str("class", info.ClassName).
		Str("host", info.Hostname).Str("prefix", info.TablePrefix).Msg("shard registered")
	return id, nil
}

func (d *Directory) FindShard(ctx context.Context, tablePrefix, hostname string) (int64, error) {
	return d.store.Shards().Find(ctx, tablePrefix, hostname)
}

func (d *Directory) GetShard(ctx context.Context, id int64) (*model.ShardInfo, error) {
	return d.store.Shards().Get(ctx, id)
}

func (d *Directory) UpdateShard(ctx context.Context, info *model.ShardInfo) error {
	start := time.Now()
	if err := d.store.Shards().Update(ctx, info); err != nil {
		return err
	}
	d.record("update_shard", start)
	return nil
}

func (d *Directory) DeleteShard(ctx context.Context, id int64) error {
	start := time.Now()
	if err := d.store.Shards().Delete(ctx, id); err != nil {
		return err
	}
	d.record("delete_shard", start)
	d.log.Info().Int64("shard_id", id).Msg("shard deleted")
	return nil
}

func (d *Directory) ListShards(ctx context.Context) ([]*model.ShardInfo, error) {
	return d.store.Shards().List(ctx)
}

func (d *Directory) GetBusyShards(ctx context.Context) ([]*model.ShardInfo, error) {
	return d.store.Shards().ListBusy(ctx)
}

func (d *Directory) ShardIDsForHostname(ctx context.Context, hostname, className string) ([]int64, error) {
	return d.store.Shards().IDsForHostname(ctx, hostname, className)
}

func (d *Directory) ShardsForHostname(ctx context.Context, hostname, className string) ([]*model.ShardInfo, error) {
	return d.store.Shards().ForHostname(ctx, hostname, className)
}

func (d *Directory) MarkShardBusy(ctx context.Context, id int64, state model.ShardState) error {
	start := time.Now()
	if err := d.store.Shards().MarkBusy(ctx, id, state); err != nil {
		return err
	}
	d.record("mark_busy", start)
	d.log.Info().Int64("shard_id", id).Stringer("state", state).Msg("shard busy state changed")
	return nil
}

// --- Tree edges ---

func (d *Directory) AddChildShard(ctx context.Context, parentID, childID int64, weight int) error {
	start := time.Now()
	if err := d.store.Children().Add(ctx, parentID, childID, weight); err != nil {
		return err
	}
	d.record("add_child", start)
	return nil
}

func (d *Directory) RemoveChildShard(ctx context.Context, parentID, childID int64) error {
	start := time.Now()
	if err := d.store.Children().Remove(ctx, parentID, childID); err != nil {
		return err
	}
	d.record("remove_child", start)
	return nil
}

func (d *Directory) ReplaceChildShard(ctx context.Context, oldChildID, newChildID int64) error {
	start := time.Now()
	if err := d.store.Children().Replace(ctx, oldChildID, newChildID); err != nil {
		return err
	}
	d.record("replace_child", start)
	return nil
}

func (d *Directory) ListShardChildren(ctx context.Context, parentID int64) ([]model.ChildInfo, error) {
	return d.store.Children().List(ctx, parentID)
}

func (d *Directory) ListAllShardChildren(ctx context.Context) (map[int64][]model.ChildInfo, error) {
	return d.store.Children().ListAll(ctx)
}

// --- Tree queries ---

// GetParentShard resolves one level up. A shard with no parent edge is
// its own parent (self as root, not an error).
func (d *Directory) GetParentShard(ctx context.Context, id int64) (*model.ShardInfo, error) {
	parentID, ok, err := d.store.Children().ParentOf(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return d.store.Shards().Get(ctx, id)
	}
	return d.store.Shards().Get(ctx, parentID)
}

// GetRootShard ascends to the top of the tree. The walk is iterative
// with a visited-set guard: a parent cycle fails with ErrMalformedTree
// instead of looping.
func (d *Directory) GetRootShard(ctx context.Context, id int64) (*model.ShardInfo, error) {
	seen := make(map[int64]bool)
	cur := id
	for {
		if seen[cur] {
			return nil, fmt.Errorf("%w: parent cycle at shard %d", model.ErrMalformedTree, cur)
		}
		seen[cur] = true
		parentID, ok, err := d.store.Children().ParentOf(ctx, cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			return d.store.Shards().Get(ctx, cur)
		}
		cur = parentID
	}
}

// GetChildShardsOfClass searches the subtree rooted at parentID for
// shards of the given class, pre-order: matching children of a node are
// listed before deeper descendants' matches. Shares the cycle guard with
// GetRootShard.
func (d *Directory) GetChildShardsOfClass(ctx context.Context, parentID int64, className string) ([]*model.ShardInfo, error) {
	seen := map[int64]bool{parentID: true}
	return d.childShardsOfClass(ctx, parentID, className, seen)
}

func (d *Directory) childShardsOfClass(ctx context.Context, parentID int64, className string, seen map[int64]bool) ([]*model.ShardInfo, error) {
	kids, err := d.store.Children().List(ctx, parentID)
	if err != nil {
		return nil, err
	}
	var out []*model.ShardInfo
	for _, kid := range kids {
		if seen[kid.ChildID] {
			return nil, fmt.Errorf("%w: shard %d reachable twice", model.ErrMalformedTree, kid.ChildID)
		}
		seen[kid.ChildID] = true
		info, err := d.store.Shards().Get(ctx, kid.ChildID)
		if err != nil {
			return nil, err
		}
		if info.ClassName == className {
			out = append(out, info)
		}
	}
	for _, kid := range kids {
		sub, err := d.childShardsOfClass(ctx, kid.ChildID, className, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// --- Forwardings ---

func (d *Directory) SetForwarding(ctx context.Context, fwd model.Forwarding) error {
	start := time.Now()
	if err := d.store.Forwardings().Set(ctx, fwd); err != nil {
		return err
	}
	d.record("set_forwarding", start)
	d.log.Info().Int("table_id", fwd.TableID).Int64("base_id", fwd.BaseID).
		Int64("shard_id", fwd.ShardID).Msg("forwarding set")
	return nil
}

func (d *Directory) ReplaceForwarding(ctx context.Context, oldShardID, newShardID int64) error {
	start := time.Now()
	if err := d.store.Forwardings().Replace(ctx, oldShardID, newShardID); err != nil {
		return err
	}
	d.record("replace_forwarding", start)
	d.log.Info().Int64("old_shard_id", oldShardID).Int64("new_shard_id", newShardID).Msg("forwardings repointed")
	return nil
}

// GetForwarding resolves (tableID, baseID) through the forwarding table
// to the owning shard's full record.
func (d *Directory) GetForwarding(ctx context.Context, tableID int, baseID int64) (*model.ShardInfo, error) {
	fwd, err := d.store.Forwardings().Get(ctx, tableID, baseID)
	if err != nil {
		return nil, err
	}
	return d.store.Shards().Get(ctx, fwd.ShardID)
}

func (d *Directory) GetForwardingForShard(ctx context.Context, shardID int64) (*model.Forwarding, error) {
	return d.store.Forwardings().ForShard(ctx, shardID)
}

func (d *Directory) GetForwardings(ctx context.Context) ([]model.Forwarding, error) {
	return d.store.Forwardings().List(ctx)
}

func (d *Directory) record(op string, start time.Time) {
	if d.stats != nil {
		d.stats.RecordOp(op)
		d.stats.ObserveOp(op, time.Since(start))
	}
}
