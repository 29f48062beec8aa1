package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownTaskKind signals a serialized task whose kind tag has no
// registered factory.
var ErrUnknownTaskKind = errors.New("unknown task kind")

// TaskFactory reconstructs a task from its serialized body (the value
// under the kind key).
type TaskFactory func(raw json.RawMessage) (Task, error)

// TaskParser maps one serialized task to a Task.
type TaskParser interface {
	ParseTask(raw json.RawMessage) (Task, error)
}

// Registry dispatches serialized tasks to factories by kind tag.
// Registration is validated up front so a bad wiring fails at startup,
// not mid-parse.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]TaskFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]TaskFactory)}
}

// Register binds a kind tag to a factory. Empty tags, nil factories and
// duplicate registrations are rejected.
func (r *Registry) Register(kind string, f TaskFactory) error {
	if kind == "" {
		return fmt.Errorf("task kind must not be empty")
	}
	if f == nil {
		return fmt.Errorf("task factory for %q must not be nil", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[kind]; dup {
		return fmt.Errorf("task kind %q already registered", kind)
	}
	r.factories[kind] = f
	return nil
}

// MustRegister is Register that panics on error; for wiring at startup.
func (r *Registry) MustRegister(kind string, f TaskFactory) {
	if err := r.Register(kind, f); err != nil {
		panic(err)
	}
}

// ParseTask decodes a {"<kind>":{...}} element and delegates to the
// registered factory.
func (r *Registry) ParseTask(raw json.RawMessage) (Task, error) {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return nil, err
	}
	if len(tagged) != 1 {
		return nil, fmt.Errorf("serialized task must have exactly one kind key, got %d", len(tagged))
	}
	for kind, body := range tagged {
		r.mu.RLock()
		f, ok := r.factories[kind]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTaskKind, kind)
		}
		return f(body)
	}
	panic("unreachable")
}

// MarshalTask encodes a task as {"<kind>":{...}}, the element form
// consumed by Registry.ParseTask.
func MarshalTask(t Task) (json.RawMessage, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]json.RawMessage{t.Kind(): body})
}

// JobWithTasksParser reconstructs a JobWithTasks from its serialized
// form: a map containing a "tasks" sequence, optionally wrapped in a
// single class-name key used only for dispatch. Each element is handed
// to the inner parser; its failures propagate unwrapped.
type JobWithTasksParser struct {
	inner TaskParser
}

func NewJobWithTasksParser(inner TaskParser) *JobWithTasksParser {
	return &JobWithTasksParser{inner: inner}
}

func (p *JobWithTasksParser) Parse(raw json.RawMessage) (*JobWithTasks, error) {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(raw, &outer); err != nil {
		return nil, err
	}
	body := raw
	if _, direct := outer["tasks"]; !direct && len(outer) == 1 {
		// unwrap the dispatch-only class-name key
		for _, v := range outer {
			body = v
		}
	}
	var payload struct {
		Tasks []json.RawMessage `json:"tasks"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	tasks := make([]Task, 0, len(payload.Tasks))
	for _, rawTask := range payload.Tasks {
		t, err := p.inner.ParseTask(rawTask)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return NewJobWithTasks(tasks...), nil
}
