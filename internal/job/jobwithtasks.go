package job

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// JobWithTasks holds the ordered remaining work of a multi-step
// administrative operation. Insertion order is execution order; later
// tasks may depend on earlier ones ("copy data" before "flip
// forwarding"). Completed tasks are removed from the front, so the
// resumption cursor is implicit in the data itself: an empty list means
// the job is done, and persisting the serialized form after partial
// progress is sufficient for safe re-drive.
type JobWithTasks struct {
	id string

	mu    sync.Mutex
	tasks []Task
}

// NewJobWithTasks builds a job from already-constructed tasks.
func NewJobWithTasks(tasks ...Task) *JobWithTasks {
	return &JobWithTasks{id: uuid.New().String(), tasks: append([]Task(nil), tasks...)}
}

// ID identifies the job instance in logs; it takes no part in equality.
func (j *JobWithTasks) ID() string { return j.id }

// Execute runs the remaining tasks in order, permanently removing each
// one as it succeeds. The first failure stops the job with the failed
// task still at the front of the remaining list, so a scheduler-level
// retry resumes instead of restarting. Rejected (transient) and fatal
// failures are both returned; callers distinguish them with
// errors.Is(err, ErrRejected).
func (j *JobWithTasks) Execute(ctx context.Context) error {
	for {
		j.mu.Lock()
		if len(j.tasks) == 0 {
			j.mu.Unlock()
			return nil
		}
		next := j.tasks[0]
		j.mu.Unlock()

		if err := next.Execute(ctx); err != nil {
			return err
		}

		j.mu.Lock()
		j.tasks = j.tasks[1:]
		j.mu.Unlock()
	}
}

// Remaining returns a snapshot of the tasks that have not yet succeeded.
func (j *JobWithTasks) Remaining() []Task {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Task(nil), j.tasks...)
}

// Equal reports whether both jobs hold element-wise equal remaining task
// lists in the same order. Used by tests and idempotent-enqueue checks.
func (j *JobWithTasks) Equal(other Job) bool {
	o, ok := other.(*JobWithTasks)
	if !ok {
		return false
	}
	a, b := j.Remaining(), o.Remaining()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// MarshalJSON emits the persisted form: {"tasks":[{"<kind>":{...}}, ...]}.
func (j *JobWithTasks) MarshalJSON() ([]byte, error) {
	remaining := j.Remaining()
	encoded := make([]json.RawMessage, 0, len(remaining))
	for _, t := range remaining {
		raw, err := MarshalTask(t)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, raw)
	}
	return json.Marshal(map[string][]json.RawMessage{"tasks": encoded})
}
