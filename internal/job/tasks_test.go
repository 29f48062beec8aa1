package job

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/clusterkit/shard-directory/internal/directory"
	"github.com/clusterkit/shard-directory/internal/metrics"
	"github.com/clusterkit/shard-directory/internal/model"
	"github.com/clusterkit/shard-directory/internal/store/sqlite"
)

func newTestDirectory(t *testing.T) *directory.Directory {
	t.Helper()
	s, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "dir.db"))
	require.NoError(t, err)
	return directory.New(s, zerolog.Nop(), metrics.NewCollector())
}

func registerShard(t *testing.T, dir *directory.Directory, id int64, class string) {
	t.Helper()
	info := &model.ShardInfo{
		ID:          id,
		ClassName:   class,
		TablePrefix: "t_" + string(rune('a'+id)),
		Hostname:    "db1.test",
	}
	_, err := dir.CreateShard(context.Background(), info, nil)
	require.NoError(t, err)
}

func TestSetForwardingTask_RejectedWhileTargetBusy(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t)
	registerShard(t, dir, 1, "sql")
	require.NoError(t, dir.MarkShardBusy(ctx, 1, model.StateBusy))

	task := NewSetForwardingTask(dir, nil, model.Forwarding{TableID: 1, BaseID: 0, ShardID: 1})
	err := task.Execute(ctx)
	require.Error(t, err)
	require.True(t, IsRejected(err))

	// Once the shard settles, the same task goes through.
	require.NoError(t, dir.MarkShardBusy(ctx, 1, model.StateNormal))
	require.NoError(t, task.Execute(ctx))

	got, err := dir.GetForwarding(ctx, 1, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.ID)
}

func TestReplaceForwardingTask_RejectedWhileSuccessorBusy(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t)
	registerShard(t, dir, 1, "sql")
	registerShard(t, dir, 2, "sql")
	require.NoError(t, dir.SetForwarding(ctx, model.Forwarding{TableID: 1, BaseID: 0, ShardID: 1}))
	require.NoError(t, dir.MarkShardBusy(ctx, 2, model.StateBusy))

	task := NewReplaceForwardingTask(dir, nil, 1, 2)
	err := task.Execute(ctx)
	require.True(t, IsRejected(err))

	require.NoError(t, dir.MarkShardBusy(ctx, 2, model.StateNormal))
	require.NoError(t, task.Execute(ctx))

	got, err := dir.GetForwarding(ctx, 1, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), got.ID)
}

func TestMarkShardBusyTask_NeverRejects(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t)
	registerShard(t, dir, 1, "sql")
	require.NoError(t, dir.MarkShardBusy(ctx, 1, model.StateBusy))

	// Busy shards still accept busy-state changes.
	task := NewMarkShardBusyTask(dir, nil, 1, model.StateCancelled)
	require.NoError(t, task.Execute(ctx))

	info, err := dir.GetShard(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, model.StateCancelled, info.Busy)
}

func TestReplaceChildShardTask_NoopWithoutEdge(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t)
	registerShard(t, dir, 1, "sql")
	registerShard(t, dir, 2, "sql")

	task := NewReplaceChildShardTask(dir, nil, 9, 2)
	require.NoError(t, task.Execute(ctx))
}

func TestMigrationJob_EndToEnd(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t)
	stats := metrics.NewCollector()
	registerShard(t, dir, 1, "sql")
	registerShard(t, dir, 2, "sql")
	registerShard(t, dir, 3, "replicating")
	require.NoError(t, dir.AddChildShard(ctx, 3, 1, 1))
	require.NoError(t, dir.SetForwarding(ctx, model.Forwarding{TableID: 1, BaseID: 0, ShardID: 1}))

	// Shard 1 migrates to shard 2: mark source busy, swap the tree edge,
	// repoint forwardings, release the busy flag.
	j := NewJobWithTasks(
		NewMarkShardBusyTask(dir, stats, 1, model.StateBusy),
		NewReplaceChildShardTask(dir, stats, 1, 2),
		NewReplaceForwardingTask(dir, stats, 1, 2),
		NewMarkShardBusyTask(dir, stats, 1, model.StateNormal),
	)
	require.NoError(t, j.Execute(ctx))
	require.Empty(t, j.Remaining())

	parent, err := dir.GetParentShard(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, int64(3), parent.ID)

	owner, err := dir.GetForwarding(ctx, 1, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), owner.ID)

	info, err := dir.GetShard(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, model.StateNormal, info.Busy)
}
