package services

import (
	"context"
	"fmt"
	"strings"

	"taskmanager/internal/models"
	"taskmanager/internal/repositories"
)

type LogService interface {
	List(ctx context.Context) ([]models.LogEntry, error)
	// Create stores the entry; an id already known is accepted and ignored.
	Create(ctx context.Context, entry models.LogEntry) (bool, error)
}

type logService struct {
	repo repositories.LogRepository
}

func NewLogService(repo repositories.LogRepository) LogService {
	return &logService{repo: repo}
}

func (s *logService) List(ctx context.Context) ([]models.LogEntry, error) {
	return s.repo.FindAll(ctx)
}

func (s *logService) Create(ctx context.Context, e models.LogEntry) (bool, error) {
	if strings.TrimSpace(e.ID) == "" || e.TaskID == "" {
		return false, fmt.Errorf("%w: id and taskId are required", ErrInvalid)
	}
	switch e.Action {
	case models.ActionAdded, models.ActionUpdated, models.ActionDeleted:
	default:
		return false, fmt.Errorf("%w: unknown action %q", ErrInvalid, e.Action)
	}
	if _, err := models.ParseTimestamp(e.Timestamp); err != nil {
		return false, fmt.Errorf("%w: timestamp: %v", ErrInvalid, err)
	}
	return s.repo.Insert(ctx, e)
}
