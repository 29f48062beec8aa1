package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/clusterkit/shard-directory/internal/directory"
	"github.com/clusterkit/shard-directory/internal/metrics"
	"github.com/clusterkit/shard-directory/internal/model"
)

// Kind tags for the builtin administrative tasks.
const (
	KindMarkShardBusy     = "mark_shard_busy"
	KindSetForwarding     = "set_forwarding"
	KindReplaceForwarding = "replace_forwarding"
	KindReplaceChildShard = "replace_child_shard"
)

// taskEnv carries the dependencies shared by the builtin tasks. It is
// unexported so it stays out of the serialized form.
type taskEnv struct {
	dir   *directory.Directory
	stats *metrics.Collector
}

func (e taskEnv) record(kind string, err error) {
	if e.stats == nil {
		return
	}
	switch {
	case err == nil:
		e.stats.RecordTask(kind, metrics.TaskCompleted)
	case IsRejected(err):
		e.stats.RecordTask(kind, metrics.TaskRejected)
	default:
		e.stats.RecordTask(kind, metrics.TaskFailed)
	}
}

// IsRejected reports whether err is the transient rejected-operation
// condition.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}

// RegisterDirectoryTasks registers the builtin tasks against a registry,
// binding them to a directory. stats may be nil.
func RegisterDirectoryTasks(r *Registry, dir *directory.Directory, stats *metrics.Collector) error {
	env := taskEnv{dir: dir, stats: stats}
	type binding struct {
		kind string
		f    TaskFactory
	}
	bindings := []binding{
		{KindMarkShardBusy, func(raw json.RawMessage) (Task, error) {
			t := &MarkShardBusyTask{env: env}
			return t, json.Unmarshal(raw, t)
		}},
		{KindSetForwarding, func(raw json.RawMessage) (Task, error) {
			t := &SetForwardingTask{env: env}
			return t, json.Unmarshal(raw, t)
		}},
		{KindReplaceForwarding, func(raw json.RawMessage) (Task, error) {
			t := &ReplaceForwardingTask{env: env}
			return t, json.Unmarshal(raw, t)
		}},
		{KindReplaceChildShard, func(raw json.RawMessage) (Task, error) {
			t := &ReplaceChildShardTask{env: env}
			return t, json.Unmarshal(raw, t)
		}},
	}
	for _, b := range bindings {
		if err := r.Register(b.kind, b.f); err != nil {
			return err
		}
	}
	return nil
}

// MarkShardBusyTask flips a shard's advisory busy flag. It never rejects:
// marking busy is how contention is announced in the first place.
type MarkShardBusyTask struct {
	ShardID int64            `json:"shardId"`
	State   model.ShardState `json:"state"`

	env taskEnv
}

func NewMarkShardBusyTask(dir *directory.Directory, stats *metrics.Collector, shardID int64, state model.ShardState) *MarkShardBusyTask {
	return &MarkShardBusyTask{ShardID: shardID, State: state, env: taskEnv{dir: dir, stats: stats}}
}

func (t *MarkShardBusyTask) Kind() string { return KindMarkShardBusy }

func (t *MarkShardBusyTask) Execute(ctx context.Context) (err error) {
	defer func() { t.env.record(t.Kind(), err) }()
	return t.env.dir.MarkShardBusy(ctx, t.ShardID, t.State)
}

// SetForwardingTask points a logical range at a shard. Rejected while
// the target shard is busy with another administrative operation.
type SetForwardingTask struct {
	TableID int   `json:"tableId"`
	BaseID  int64 `json:"baseId"`
	ShardID int64 `json:"shardId"`

	env taskEnv
}

func NewSetForwardingTask(dir *directory.Directory, stats *metrics.Collector, fwd model.Forwarding) *SetForwardingTask {
	return &SetForwardingTask{TableID: fwd.TableID, BaseID: fwd.BaseID, ShardID: fwd.ShardID, env: taskEnv{dir: dir, stats: stats}}
}

func (t *SetForwardingTask) Kind() string { return KindSetForwarding }

func (t *SetForwardingTask) Execute(ctx context.Context) (err error) {
	defer func() { t.env.record(t.Kind(), err) }()
	info, err := t.env.dir.GetShard(ctx, t.ShardID)
	if err != nil {
		return err
	}
	if info.Busy == model.StateBusy {
		return fmt.Errorf("shard %d is busy: %w", t.ShardID, ErrRejected)
	}
	return t.env.dir.SetForwarding(ctx, model.Forwarding{TableID: t.TableID, BaseID: t.BaseID, ShardID: t.ShardID})
}

// ReplaceForwardingTask repoints every forwarding from one shard to its
// successor. Rejected while the successor is busy.
type ReplaceForwardingTask struct {
	OldShardID int64 `json:"oldShardId"`
	NewShardID int64 `json:"newShardId"`

	env taskEnv
}

func NewReplaceForwardingTask(dir *directory.Directory, stats *metrics.Collector, oldShardID, newShardID int64) *ReplaceForwardingTask {
	return &ReplaceForwardingTask{OldShardID: oldShardID, NewShardID: newShardID, env: taskEnv{dir: dir, stats: stats}}
}

func (t *ReplaceForwardingTask) Kind() string { return KindReplaceForwarding }

func (t *ReplaceForwardingTask) Execute(ctx context.Context) (err error) {
	defer func() { t.env.record(t.Kind(), err) }()
	info, err := t.env.dir.GetShard(ctx, t.NewShardID)
	if err != nil {
		return err
	}
	if info.Busy == model.StateBusy {
		return fmt.Errorf("shard %d is busy: %w", t.NewShardID, ErrRejected)
	}
	return t.env.dir.ReplaceForwarding(ctx, t.OldShardID, t.NewShardID)
}

// ReplaceChildShardTask swaps a tree edge's child for a successor shard
// during migration. A no-op when no edge references the old child.
type ReplaceChildShardTask struct {
	OldChildID int64 `json:"oldChildId"`
	NewChildID int64 `json:"newChildId"`

	env taskEnv
}

func NewReplaceChildShardTask(dir *directory.Directory, stats *metrics.Collector, oldChildID, newChildID int64) *ReplaceChildShardTask {
	return &ReplaceChildShardTask{OldChildID: oldChildID, NewChildID: newChildID, env: taskEnv{dir: dir, stats: stats}}
}

func (t *ReplaceChildShardTask) Kind() string { return KindReplaceChildShard }

func (t *ReplaceChildShardTask) Execute(ctx context.Context) (err error) {
	defer func() { t.env.record(t.Kind(), err) }()
	return t.env.dir.ReplaceChildShard(ctx, t.OldChildID, t.NewChildID)
}
