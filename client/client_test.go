package client

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/clusterkit/shard-directory/internal/api"
	"github.com/clusterkit/shard-directory/internal/directory"
	"github.com/clusterkit/shard-directory/internal/job"
	"github.com/clusterkit/shard-directory/internal/metrics"
	"github.com/clusterkit/shard-directory/internal/store/sqlite"
)

func newServerAndClient(t *testing.T) *Client {
	t.Helper()
	s, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)

	stats := metrics.NewCollector()
	dir := directory.New(s, zerolog.Nop(), stats)
	registry := job.NewRegistry()
	require.NoError(t, job.RegisterDirectoryTasks(registry, dir, stats))

	srv := httptest.NewServer(api.NewRouter(dir, job.NewJobWithTasksParser(registry),
		func() bool { return true }, stats.Handler()))
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestClient_ShardRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newServerAndClient(t)

	id, err := c.CreateShard(ctx, &ShardInfo{
		ID: 1, ClassName: "sql", TablePrefix: "t_1", Hostname: "db1.test",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	got, err := c.GetShard(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "sql", got.ClassName)

	found, err := c.FindShard(ctx, "t_1", "db1.test")
	require.NoError(t, err)
	require.Equal(t, int64(1), found)

	require.NoError(t, c.MarkShardBusy(ctx, 1, StateBusy))
	got, err = c.GetShard(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, StateBusy, got.Busy)
	busy, err := c.ListBusyShards(ctx)
	require.NoError(t, err)
	require.Len(t, busy, 1)

	require.NoError(t, c.DeleteShard(ctx, 1))
	_, err = c.GetShard(ctx, 1)
	require.Error(t, err)
}

func TestClient_TreeAndForwardings(t *testing.T) {
	ctx := context.Background()
	c := newServerAndClient(t)
	for id, class := range map[int64]string{1: "replicating", 2: "sql", 3: "sql"} {
		_, err := c.CreateShard(ctx, &ShardInfo{
			ID: id, ClassName: class, TablePrefix: "t_" + string(rune('0'+id)), Hostname: "db1.test",
		})
		require.NoError(t, err)
	}
	require.NoError(t, c.AddChildShard(ctx, 1, 2, 5))
	require.NoError(t, c.AddChildShard(ctx, 1, 3, 1))

	kids, err := c.ListChildShards(ctx, 1)
	require.NoError(t, err)
	require.Len(t, kids, 2)
	require.Equal(t, int64(2), kids[0].ChildID)

	root, err := c.GetRootShard(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, int64(1), root.ID)

	require.NoError(t, c.SetForwarding(ctx, Forwarding{TableID: 1, BaseID: 0, ShardID: 2}))
	owner, err := c.GetForwarding(ctx, 1, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), owner.ID)

	all, err := c.ListForwardings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestClient_RunJob(t *testing.T) {
	ctx := context.Background()
	c := newServerAndClient(t)
	_, err := c.CreateShard(ctx, &ShardInfo{
		ID: 1, ClassName: "sql", TablePrefix: "t_1", Hostname: "db1.test",
	})
	require.NoError(t, err)

	result, err := c.RunJob(ctx, json.RawMessage(`{"tasks":[
        {"mark_shard_busy":{"shardId":1,"state":1}},
        {"mark_shard_busy":{"shardId":1,"state":0}}
    ]}`))
	require.NoError(t, err)
	require.Equal(t, "done", result.Status)
	require.NotEmpty(t, result.JobID)

	healthy, err := c.Health(ctx)
	require.NoError(t, err)
	require.True(t, healthy)
}
