package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskmanager/internal/models"
	"taskmanager/internal/repositories"
)

var (
	ErrNotFound = repositories.ErrNotFound
	ErrInvalid  = errors.New("invalid input")
)

// TaskService is the server side of the task API. Writes are idempotent by id,
// so an agent may replay a queued mutation any number of times.
type TaskService interface {
	List(ctx context.Context) ([]models.Task, error)
	Get(ctx context.Context, id string) (*models.Task, error)
	// Save creates or replaces the task and reports whether it was new.
	Save(ctx context.Context, task models.Task) (models.Task, bool, error)
	Delete(ctx context.Context, id string) error
}

type taskService struct {
	repo repositories.TaskRepository
}

func NewTaskService(repo repositories.TaskRepository) TaskService {
	return &taskService{repo: repo}
}

func (s *taskService) List(ctx context.Context) ([]models.Task, error) {
	return s.repo.FindAll(ctx)
}

func (s *taskService) Get(ctx context.Context, id string) (*models.Task, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *taskService) Save(ctx context.Context, task models.Task) (models.Task, bool, error) {
	if strings.TrimSpace(task.ID) == "" {
		return models.Task{}, false, fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if task.Status == "" {
		task.Status = models.StatusInProgress
	}
	if !task.Status.Valid() {
		return models.Task{}, false, fmt.Errorf("%w: unknown status %q", ErrInvalid, task.Status)
	}
	created, err := s.repo.Upsert(ctx, task)
	if err != nil {
		return models.Task{}, false, fmt.Errorf("upsert task %s: %w", task.ID, err)
	}
	return task, created, nil
}

func (s *taskService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
