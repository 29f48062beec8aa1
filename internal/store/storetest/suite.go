// Package storetest holds a driver-independent compliance suite for
// store.Store implementations.
package storetest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clusterkit/shard-directory/internal/model"
	"github.com/clusterkit/shard-directory/internal/store"
)

var idSeq atomic.Int64

func init() {
	// Seed away from zero so suites sharing one database never collide.
	idSeq.Store(time.Now().UnixNano() % 1_000_000_000 * 1_000)
}

func nextID() int64 { return idSeq.Add(1) }

// recordingRepo counts ShardRepository.Create invocations.
type recordingRepo struct{ calls int }

func (r *recordingRepo) Create(ctx context.Context, info *model.ShardInfo) error {
	r.calls++
	return nil
}

func newShard(class string) *model.ShardInfo {
	suffix := uuid.New().String()
	return &model.ShardInfo{
		ID:          nextID(),
		ClassName:   class,
		TablePrefix: "t_" + suffix,
		Hostname:    "host-" + suffix,
		SourceType:  "int64",
	}
}

func mustCreate(t *testing.T, ctx context.Context, s store.Store, info *model.ShardInfo) int64 {
	t.Helper()
	id, err := s.Shards().Create(ctx, info, nil)
	if err != nil {
		t.Fatalf("CreateShard: %v", err)
	}
	return id
}

// Run exercises a compliance suite against a store.Store implementation.
// makeStore must provide an isolated or uniquely-namespaced store.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()

	t.Run("ShardLifecycle", func(t *testing.T) {
		info := newShard("sql")
		repo := &recordingRepo{}
		id, err := s.Shards().Create(ctx, info, repo)
		if err != nil {
			t.Fatalf("CreateShard: %v", err)
		}
		if id != info.ID {
			t.Fatalf("CreateShard: id=%d want %d", id, info.ID)
		}
		if repo.calls != 1 {
			t.Fatalf("repo.Create calls=%d want 1", repo.calls)
		}

		// Re-registering the same configuration reuses the row and still
		// provisions through the repository.
		again := *info
		again.ID = nextID()
		id2, err := s.Shards().Create(ctx, &again, repo)
		if err != nil {
			t.Fatalf("CreateShard reuse: %v", err)
		}
		if id2 != id {
			t.Fatalf("CreateShard reuse: id=%d want %d", id2, id)
		}
		if repo.calls != 2 {
			t.Fatalf("repo.Create calls=%d want 2", repo.calls)
		}

		// Same location, different class: invalid.
		clash := *info
		clash.ID = nextID()
		clash.ClassName = "replicating"
		if _, err := s.Shards().Create(ctx, &clash, nil); !errors.Is(err, model.ErrInvalidShard) {
			t.Fatalf("CreateShard mismatch: err=%v want ErrInvalidShard", err)
		}

		// Duplicate id at a fresh location: invalid.
		dup := newShard("sql")
		dup.ID = id
		if _, err := s.Shards().Create(ctx, dup, nil); !errors.Is(err, model.ErrInvalidShard) {
			t.Fatalf("CreateShard dup id: err=%v want ErrInvalidShard", err)
		}

		got, err := s.Shards().Get(ctx, id)
		if err != nil {
			t.Fatalf("GetShard: %v", err)
		}
		if got.TablePrefix != info.TablePrefix || got.Hostname != info.Hostname {
			t.Fatalf("GetShard: got=%+v", got)
		}

		foundID, err := s.Shards().Find(ctx, info.TablePrefix, info.Hostname)
		if err != nil || foundID != id {
			t.Fatalf("FindShard: id=%d err=%v", foundID, err)
		}

		got.SourceType = "uuid"
		if err := s.Shards().Update(ctx, got); err != nil {
			t.Fatalf("UpdateShard: %v", err)
		}
		got2, err := s.Shards().Get(ctx, id)
		if err != nil || got2.SourceType != "uuid" {
			t.Fatalf("GetShard after update: got=%+v err=%v", got2, err)
		}

		if err := s.Shards().Delete(ctx, id); err != nil {
			t.Fatalf("DeleteShard: %v", err)
		}
		if _, err := s.Shards().Get(ctx, id); !errors.Is(err, model.ErrNonExistentShard) {
			t.Fatalf("GetShard after delete: err=%v want ErrNonExistentShard", err)
		}
	})

	t.Run("MissingShardErrors", func(t *testing.T) {
		missing := nextID()
		if _, err := s.Shards().Get(ctx, missing); !errors.Is(err, model.ErrNonExistentShard) {
			t.Fatalf("Get missing: err=%v", err)
		}
		if _, err := s.Shards().Find(ctx, "no_such_prefix", "no-such-host"); !errors.Is(err, model.ErrNonExistentShard) {
			t.Fatalf("Find missing: err=%v", err)
		}
		if err := s.Shards().Update(ctx, &model.ShardInfo{ID: missing}); !errors.Is(err, model.ErrNonExistentShard) {
			t.Fatalf("Update missing: err=%v", err)
		}
		if err := s.Shards().Delete(ctx, missing); !errors.Is(err, model.ErrNonExistentShard) {
			t.Fatalf("Delete missing: err=%v", err)
		}
		if err := s.Shards().MarkBusy(ctx, missing, model.StateBusy); !errors.Is(err, model.ErrNonExistentShard) {
			t.Fatalf("MarkBusy missing: err=%v", err)
		}
	})

	t.Run("BusyAndHostListings", func(t *testing.T) {
		host := "host-" + uuid.New().String()
		a := newShard("sql")
		a.Hostname = host
		b := newShard("sql")
		b.Hostname = host
		c := newShard("replicating")
		c.Hostname = host
		aID := mustCreate(t, ctx, s, a)
		bID := mustCreate(t, ctx, s, b)
		mustCreate(t, ctx, s, c)

		ids, err := s.Shards().IDsForHostname(ctx, host, "sql")
		if err != nil {
			t.Fatalf("IDsForHostname: %v", err)
		}
		if len(ids) != 2 || ids[0] != aID || ids[1] != bID {
			t.Fatalf("IDsForHostname: ids=%v want [%d %d]", ids, aID, bID)
		}

		infos, err := s.Shards().ForHostname(ctx, host, "replicating")
		if err != nil || len(infos) != 1 || infos[0].ClassName != "replicating" {
			t.Fatalf("ForHostname: n=%d err=%v", len(infos), err)
		}

		if err := s.Shards().MarkBusy(ctx, aID, model.StateBusy); err != nil {
			t.Fatalf("MarkBusy: %v", err)
		}
		busy, err := s.Shards().ListBusy(ctx)
		if err != nil {
			t.Fatalf("ListBusy: %v", err)
		}
		found := false
		for _, info := range busy {
			if info.ID == aID {
				found = true
			}
			if info.Busy != model.StateBusy {
				t.Fatalf("ListBusy: shard %d busy=%v", info.ID, info.Busy)
			}
		}
		if !found {
			t.Fatalf("ListBusy: shard %d missing", aID)
		}

		if err := s.Shards().MarkBusy(ctx, aID, model.StateNormal); err != nil {
			t.Fatalf("MarkBusy reset: %v", err)
		}
	})

	t.Run("Children", func(t *testing.T) {
		parent := mustCreate(t, ctx, s, newShard("replicating"))
		light := mustCreate(t, ctx, s, newShard("sql"))
		heavy := mustCreate(t, ctx, s, newShard("sql"))

		if err := s.Children().Add(ctx, parent, light, 1); err != nil {
			t.Fatalf("AddChild light: %v", err)
		}
		if err := s.Children().Add(ctx, parent, heavy, 10); err != nil {
			t.Fatalf("AddChild heavy: %v", err)
		}

		kids, err := s.Children().List(ctx, parent)
		if err != nil {
			t.Fatalf("ListChildren: %v", err)
		}
		if len(kids) != 2 || kids[0].ChildID != heavy || kids[1].ChildID != light {
			t.Fatalf("ListChildren order: %v", kids)
		}

		pid, ok, err := s.Children().ParentOf(ctx, heavy)
		if err != nil || !ok || pid != parent {
			t.Fatalf("ParentOf: pid=%d ok=%v err=%v", pid, ok, err)
		}
		if _, ok, err := s.Children().ParentOf(ctx, parent); err != nil || ok {
			t.Fatalf("ParentOf root: ok=%v err=%v", ok, err)
		}

		all, err := s.Children().ListAll(ctx)
		if err != nil {
			t.Fatalf("ListAllChildren: %v", err)
		}
		if len(all[parent]) != 2 {
			t.Fatalf("ListAllChildren: group=%v", all[parent])
		}
		// Groups come back ordered by child id, not weight.
		if all[parent][0].ChildID != light || all[parent][1].ChildID != heavy {
			t.Fatalf("ListAllChildren order: group=%v", all[parent])
		}

		// Replace retargets the edge in place; replacing an unknown child
		// is a no-op.
		successor := mustCreate(t, ctx, s, newShard("sql"))
		if err := s.Children().Replace(ctx, light, successor); err != nil {
			t.Fatalf("ReplaceChild: %v", err)
		}
		if pid, ok, _ := s.Children().ParentOf(ctx, successor); !ok || pid != parent {
			t.Fatalf("ParentOf successor: pid=%d ok=%v", pid, ok)
		}
		if err := s.Children().Replace(ctx, nextID(), successor); err != nil {
			t.Fatalf("ReplaceChild no-op: %v", err)
		}

		if err := s.Children().Remove(ctx, parent, successor); err != nil {
			t.Fatalf("RemoveChild: %v", err)
		}
		if err := s.Children().Remove(ctx, parent, successor); !errors.Is(err, model.ErrNonExistentShard) {
			t.Fatalf("RemoveChild missing: err=%v", err)
		}
	})

	t.Run("DeleteCleansEdges", func(t *testing.T) {
		top := mustCreate(t, ctx, s, newShard("replicating"))
		mid := mustCreate(t, ctx, s, newShard("replicating"))
		leaf := mustCreate(t, ctx, s, newShard("sql"))
		if err := s.Children().Add(ctx, top, mid, 1); err != nil {
			t.Fatalf("AddChild: %v", err)
		}
		if err := s.Children().Add(ctx, mid, leaf, 1); err != nil {
			t.Fatalf("AddChild: %v", err)
		}

		// Deleting mid drops both its parent edge and its child edge.
		if err := s.Shards().Delete(ctx, mid); err != nil {
			t.Fatalf("DeleteShard: %v", err)
		}
		if kids, err := s.Children().List(ctx, top); err != nil || len(kids) != 0 {
			t.Fatalf("ListChildren of top: %v err=%v", kids, err)
		}
		if _, ok, err := s.Children().ParentOf(ctx, leaf); err != nil || ok {
			t.Fatalf("ParentOf leaf: ok=%v err=%v", ok, err)
		}
	})

	t.Run("Forwardings", func(t *testing.T) {
		first := mustCreate(t, ctx, s, newShard("sql"))
		second := mustCreate(t, ctx, s, newShard("sql"))

		tableID := int(nextID())
		baseID := nextID()
		fwd := model.Forwarding{TableID: tableID, BaseID: baseID, ShardID: first}
		if err := s.Forwardings().Set(ctx, fwd); err != nil {
			t.Fatalf("SetForwarding: %v", err)
		}

		got, err := s.Forwardings().Get(ctx, tableID, baseID)
		if err != nil || got.ShardID != first {
			t.Fatalf("GetForwarding: got=%+v err=%v", got, err)
		}
		byShard, err := s.Forwardings().ForShard(ctx, first)
		if err != nil || byShard.TableID != tableID || byShard.BaseID != baseID {
			t.Fatalf("ForwardingForShard: got=%+v err=%v", byShard, err)
		}

		// Upsert: same key, new target.
		fwd.ShardID = second
		if err := s.Forwardings().Set(ctx, fwd); err != nil {
			t.Fatalf("SetForwarding upsert: %v", err)
		}
		got, err = s.Forwardings().Get(ctx, tableID, baseID)
		if err != nil || got.ShardID != second {
			t.Fatalf("GetForwarding after upsert: got=%+v err=%v", got, err)
		}

		// Replace repoints by shard.
		if err := s.Forwardings().Replace(ctx, second, first); err != nil {
			t.Fatalf("ReplaceForwarding: %v", err)
		}
		got, err = s.Forwardings().Get(ctx, tableID, baseID)
		if err != nil || got.ShardID != first {
			t.Fatalf("GetForwarding after replace: got=%+v err=%v", got, err)
		}

		all, err := s.Forwardings().List(ctx)
		if err != nil {
			t.Fatalf("ListForwardings: %v", err)
		}
		found := false
		for _, f := range all {
			if f.TableID == tableID && f.BaseID == baseID && f.ShardID == first {
				found = true
			}
		}
		if !found {
			t.Fatalf("ListForwardings: entry missing from %v", all)
		}

		if _, err := s.Forwardings().Get(ctx, tableID, nextID()); !errors.Is(err, model.ErrNoForwarding) {
			t.Fatalf("GetForwarding missing: err=%v", err)
		}
		if _, err := s.Forwardings().ForShard(ctx, second); !errors.Is(err, model.ErrNoForwarding) {
			t.Fatalf("ForwardingForShard missing: err=%v", err)
		}

		// A fresh key pointing at an already-forwarded shard takes the
		// insert path and must surface the one-forwarding-per-shard
		// violation as a conflict.
		dup := model.Forwarding{TableID: int(nextID()), BaseID: nextID(), ShardID: first}
		if err := s.Forwardings().Set(ctx, dup); !errors.Is(err, model.ErrConflict) {
			t.Fatalf("SetForwarding duplicate shard: err=%v want ErrConflict", err)
		}
	})
}
