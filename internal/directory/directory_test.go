package directory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/clusterkit/shard-directory/internal/model"
	"github.com/clusterkit/shard-directory/internal/store/sqlite"
)

func newDirectory(t *testing.T) *Directory {
	t.Helper()
	s, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "dir.db"))
	require.NoError(t, err)
	return New(s, zerolog.Nop(), nil)
}

func addShard(t *testing.T, d *Directory, id int64, class string) {
	t.Helper()
	info := &model.ShardInfo{
		ID:          id,
		ClassName:   class,
		TablePrefix: fmt.Sprintf("t_%d", id),
		Hostname:    "db1.test",
	}
	_, err := d.CreateShard(context.Background(), info, nil)
	require.NoError(t, err)
}

func TestGetParentShard(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t)
	addShard(t, d, 1, "replicating")
	addShard(t, d, 2, "sql")
	require.NoError(t, d.AddChildShard(ctx, 1, 2, 1))

	parent, err := d.GetParentShard(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, int64(1), parent.ID)

	// A root is its own parent.
	self, err := d.GetParentShard(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), self.ID)
}

func TestGetRootShard(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t)
	addShard(t, d, 1, "replicating")
	addShard(t, d, 2, "replicating")
	addShard(t, d, 3, "sql")
	require.NoError(t, d.AddChildShard(ctx, 1, 2, 1))
	require.NoError(t, d.AddChildShard(ctx, 2, 3, 1))

	root, err := d.GetRootShard(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, int64(1), root.ID)

	root, err = d.GetRootShard(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), root.ID)
}

func TestGetRootShard_CycleFails(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t)
	addShard(t, d, 1, "replicating")
	addShard(t, d, 2, "replicating")
	require.NoError(t, d.AddChildShard(ctx, 1, 2, 1))
	require.NoError(t, d.AddChildShard(ctx, 2, 1, 1))

	_, err := d.GetRootShard(ctx, 1)
	require.Error(t, err)
	require.True(t, errors.Is(err, model.ErrMalformedTree))
}

func TestGetChildShardsOfClass_PreOrder(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t)
	addShard(t, d, 1, "replicating")
	addShard(t, d, 2, "sql")
	addShard(t, d, 3, "replicating")
	addShard(t, d, 4, "sql")
	require.NoError(t, d.AddChildShard(ctx, 1, 2, 10))
	require.NoError(t, d.AddChildShard(ctx, 1, 3, 1))
	require.NoError(t, d.AddChildShard(ctx, 3, 4, 1))

	// Direct match (2) before the deeper match (4).
	got, err := d.GetChildShardsOfClass(ctx, 1, "sql")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(2), got[0].ID)
	require.Equal(t, int64(4), got[1].ID)
}

func TestGetChildShardsOfClass_GrandchildOnly(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t)
	addShard(t, d, 1, "replicating")
	addShard(t, d, 2, "replicating")
	addShard(t, d, 3, "memcache")
	require.NoError(t, d.AddChildShard(ctx, 1, 2, 1))
	require.NoError(t, d.AddChildShard(ctx, 2, 3, 1))

	got, err := d.GetChildShardsOfClass(ctx, 1, "memcache")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(3), got[0].ID)

	none, err := d.GetChildShardsOfClass(ctx, 1, "no-such-class")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestGetForwarding(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t)
	addShard(t, d, 1, "sql")
	require.NoError(t, d.SetForwarding(ctx, model.Forwarding{TableID: 2, BaseID: 1000, ShardID: 1}))

	info, err := d.GetForwarding(ctx, 2, 1000)
	require.NoError(t, err)
	require.Equal(t, int64(1), info.ID)

	_, err = d.GetForwarding(ctx, 2, 9999)
	require.True(t, errors.Is(err, model.ErrNoForwarding))
}

func TestDeleteShard_RemovesTreeLinks(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t)
	addShard(t, d, 1, "replicating")
	addShard(t, d, 2, "sql")
	require.NoError(t, d.AddChildShard(ctx, 1, 2, 1))

	require.NoError(t, d.DeleteShard(ctx, 2))

	kids, err := d.ListShardChildren(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, kids)

	err = d.DeleteShard(ctx, 2)
	require.True(t, errors.Is(err, model.ErrNonExistentShard))
}
