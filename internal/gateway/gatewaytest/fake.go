// Package gatewaytest provides an in-memory server stand-in for tests.
package gatewaytest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"taskmanager/internal/gateway"
	"taskmanager/internal/models"
)

// ErrUnavailable is what the fake returns for injected failures.
var ErrUnavailable = errors.New("gatewaytest: unavailable")

// Call records one write the fake received.
type Call struct {
	Method string
	TaskID string
	LogID  string
}

// Fake keeps tasks and logs like the real server: upsert by id, idempotent log insert,
// 404 on delete of an unknown id.
type Fake struct {
	mu    sync.Mutex
	tasks []models.Task
	logs  []models.LogEntry
	calls []Call

	// Fail decides per call whether to fail. Set it before use.
	Fail func(c Call) bool
}

var _ gateway.Gateway = (*Fake)(nil)

func New() *Fake { return &Fake{} }

// FailAll makes every write fail.
func (f *Fake) FailAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fail = func(Call) bool { return true }
}

// FailNone clears injected failures.
func (f *Fake) FailNone() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fail = nil
}

// Seed replaces the server state.
func (f *Fake) Seed(tasks []models.Task, logs []models.LogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append([]models.Task(nil), tasks...)
	f.logs = append([]models.LogEntry(nil), logs...)
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *Fake) Tasks() []models.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Task(nil), f.tasks...)
}

func (f *Fake) Logs() []models.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.LogEntry(nil), f.logs...)
}

func (f *Fake) record(c Call) error {
	f.calls = append(f.calls, c)
	if f.Fail != nil && f.Fail(c) {
		return fmt.Errorf("%s %s%s: %w", c.Method, c.TaskID, c.LogID, ErrUnavailable)
	}
	return nil
}

func (f *Fake) upsert(task models.Task) {
	for i := range f.tasks {
		if f.tasks[i].ID == task.ID {
			f.tasks[i] = task
			return
		}
	}
	f.tasks = append(f.tasks, task)
}

func (f *Fake) CreateTask(_ context.Context, task models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "POST", TaskID: task.ID}); err != nil {
		return err
	}
	f.upsert(task)
	return nil
}

func (f *Fake) UpdateTask(_ context.Context, task models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "PUT", TaskID: task.ID}); err != nil {
		return err
	}
	f.upsert(task)
	return nil
}

func (f *Fake) DeleteTask(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "DELETE", TaskID: id}); err != nil {
		return err
	}
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("DELETE %s: %w", id, gateway.ErrNotFound)
}

func (f *Fake) CreateLog(_ context.Context, entry models.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "POST", LogID: entry.ID}); err != nil {
		return err
	}
	for _, l := range f.logs {
		if l.ID == entry.ID {
			return nil
		}
	}
	f.logs = append(f.logs, entry)
	return nil
}

func (f *Fake) ListTasks(_ context.Context) ([]models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil && f.Fail(Call{Method: "GET", TaskID: "*"}) {
		return nil, ErrUnavailable
	}
	return append([]models.Task(nil), f.tasks...), nil
}

func (f *Fake) ListLogs(_ context.Context) ([]models.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil && f.Fail(Call{Method: "GET", LogID: "*"}) {
		return nil, ErrUnavailable
	}
	return append([]models.LogEntry(nil), f.logs...), nil
}
