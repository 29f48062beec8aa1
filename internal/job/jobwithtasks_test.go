package job

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// scriptedTask succeeds after a configured number of transient failures.
type scriptedTask struct {
	Name     string `json:"name"`
	failures int
	runs     int
}

func (t *scriptedTask) Kind() string { return "scripted" }

func (t *scriptedTask) Execute(ctx context.Context) error {
	t.runs++
	if t.failures > 0 {
		t.failures--
		return fmt.Errorf("not yet: %w", ErrRejected)
	}
	return nil
}

func TestJobWithTasks_RunsInOrderAndDrains(t *testing.T) {
	t1 := &scriptedTask{Name: "one"}
	t2 := &scriptedTask{Name: "two"}
	t3 := &scriptedTask{Name: "three"}
	j := NewJobWithTasks(t1, t2, t3)

	require.NoError(t, j.Execute(context.Background()))
	require.Empty(t, j.Remaining())
	require.Equal(t, 1, t1.runs)
	require.Equal(t, 1, t2.runs)
	require.Equal(t, 1, t3.runs)
}

func TestJobWithTasks_ResumesAfterRejection(t *testing.T) {
	t1 := &scriptedTask{Name: "one"}
	t2 := &scriptedTask{Name: "two", failures: 1}
	t3 := &scriptedTask{Name: "three"}
	j := NewJobWithTasks(t1, t2, t3)

	err := j.Execute(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrRejected))

	// The failed task stays at the front; completed work is gone.
	remaining := j.Remaining()
	require.Len(t, remaining, 2)
	require.Same(t, t2, remaining[0])
	require.Same(t, t3, remaining[1])
	require.Equal(t, 1, t1.runs)
	require.Equal(t, 0, t3.runs)

	// Re-driving resumes from the rejected task, not from the start.
	require.NoError(t, j.Execute(context.Background()))
	require.Empty(t, j.Remaining())
	require.Equal(t, 1, t1.runs)
	require.Equal(t, 2, t2.runs)
	require.Equal(t, 1, t3.runs)
}

func TestJobWithTasks_ExecuteOnDrainedJobIsNoop(t *testing.T) {
	t1 := &scriptedTask{Name: "only"}
	j := NewJobWithTasks(t1)
	require.NoError(t, j.Execute(context.Background()))
	require.NoError(t, j.Execute(context.Background()))
	require.Equal(t, 1, t1.runs)
}

func TestJobWithTasks_Equal(t *testing.T) {
	a := NewJobWithTasks(&scriptedTask{Name: "x"}, &scriptedTask{Name: "y"})
	b := NewJobWithTasks(&scriptedTask{Name: "x"}, &scriptedTask{Name: "y"})
	c := NewJobWithTasks(&scriptedTask{Name: "y"}, &scriptedTask{Name: "x"})

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
	require.NotEqual(t, a.ID(), b.ID())
}
