package repositories

import (
	"context"
	"sort"
	"sync"

	"taskmanager/internal/models"
)

// MemoryTaskRepository keeps tasks in process. Used when no database is configured and in tests.
type MemoryTaskRepository struct {
	mu    sync.RWMutex
	order []string
	tasks map[string]models.Task
}

func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{tasks: make(map[string]models.Task)}
}

func (r *MemoryTaskRepository) Upsert(_ context.Context, task models.Task) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.tasks[task.ID]
	if !exists {
		r.order = append(r.order, task.ID)
	}
	r.tasks[task.ID] = task.Clone()
	return !exists, nil
}

func (r *MemoryTaskRepository) FindByID(_ context.Context, id string) (*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	t = t.Clone()
	return &t, nil
}

func (r *MemoryTaskRepository) FindAll(_ context.Context) ([]models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Task, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tasks[id].Clone())
	}
	return out, nil
}

func (r *MemoryTaskRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(r.tasks, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

type MemoryLogRepository struct {
	mu   sync.RWMutex
	logs map[string]models.LogEntry
}

func NewMemoryLogRepository() *MemoryLogRepository {
	return &MemoryLogRepository{logs: make(map[string]models.LogEntry)}
}

func (r *MemoryLogRepository) Insert(_ context.Context, e models.LogEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.logs[e.ID]; ok {
		return false, nil
	}
	r.logs[e.ID] = e
	return true, nil
}

func (r *MemoryLogRepository) FindAll(_ context.Context) ([]models.LogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.LogEntry, 0, len(r.logs))
	for _, e := range r.logs {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

var (
	_ TaskRepository = (*MemoryTaskRepository)(nil)
	_ LogRepository  = (*MemoryLogRepository)(nil)
)
