// Package job provides the resumable administrative job model: a Job is
// a schedulable unit, optionally decomposed into an ordered list of
// independently retryable Tasks. The scheduler that persists, dequeues
// and re-drives jobs lives outside this module; the contract here is
// that Execute may be called again after any failure.
package job

import (
	"context"
	"errors"
)

// ErrRejected is the transient/rejected-operation condition: the task's
// target is busy or otherwise temporarily unavailable. Not a defect;
// the scheduler should retry the job later. Detected with errors.Is.
var ErrRejected = errors.New("operation rejected, retry later")

// Task is a unit of work that mutates directory or shard state. Execute
// either completes fully or fails; re-invoking it after a failure must
// be safe (idempotence is the task author's responsibility). Kind is the
// stable tag used for serialization and registry dispatch.
type Task interface {
	Execute(ctx context.Context) error
	Kind() string
}

// Job is the top-level schedulable unit.
type Job interface {
	Execute(ctx context.Context) error
	Equal(other Job) bool
}
