package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"taskmanager/internal/models"
)

// ErrNotFound is returned when no row matches the id.
var ErrNotFound = errors.New("not found")

type TaskRepository interface {
	// Upsert inserts the task or overwrites every field of the row with the same id.
	Upsert(ctx context.Context, task models.Task) (created bool, err error)
	FindByID(ctx context.Context, id string) (*models.Task, error)
	FindAll(ctx context.Context) ([]models.Task, error)
	Delete(ctx context.Context, id string) error
}

type taskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) TaskRepository {
	return &taskRepository{db: db}
}

const taskColumns = `id, title, description, location, date_time, added_at, status,
       file, location_coords, notification_id`

func (r *taskRepository) Upsert(ctx context.Context, task models.Task) (bool, error) {
	file, err := nullJSON(task.File)
	if err != nil {
		return false, fmt.Errorf("encode file: %w", err)
	}
	coords, err := nullJSON(task.LocationCoords)
	if err != nil {
		return false, fmt.Errorf("encode location_coords: %w", err)
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
		ON CONFLICT (id) DO UPDATE SET
			title=EXCLUDED.title, description=EXCLUDED.description, location=EXCLUDED.location,
			date_time=EXCLUDED.date_time, added_at=EXCLUDED.added_at, status=EXCLUDED.status,
			file=EXCLUDED.file, location_coords=EXCLUDED.location_coords,
			notification_id=EXCLUDED.notification_id, updated_at=NOW()
		RETURNING (xmax = 0)`
	var created bool
	err = r.db.QueryRowContext(ctx, query,
		task.ID, task.Title, task.Description, task.Location, task.DateTime, task.AddedAt, task.Status,
		file, coords, task.NotificationID,
	).Scan(&created)
	return created, err
}

func (r *taskRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return task, nil
}

// FindAll returns tasks in creation order, matching the order clients appended them.
func (r *taskRepository) FindAll(ctx context.Context) ([]models.Task, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(s rowScanner) (*models.Task, error) {
	var (
		t              models.Task
		file, coords   []byte
		notificationID sql.NullString
	)
	if err := s.Scan(
		&t.ID, &t.Title, &t.Description, &t.Location, &t.DateTime, &t.AddedAt, &t.Status,
		&file, &coords, &notificationID,
	); err != nil {
		return nil, err
	}
	if len(file) > 0 {
		t.File = &models.FileAttachment{}
		if err := json.Unmarshal(file, t.File); err != nil {
			return nil, fmt.Errorf("decode file of %s: %w", t.ID, err)
		}
	}
	if len(coords) > 0 {
		t.LocationCoords = &models.Coords{}
		if err := json.Unmarshal(coords, t.LocationCoords); err != nil {
			return nil, fmt.Errorf("decode location_coords of %s: %w", t.ID, err)
		}
	}
	t.NotificationID = notificationID.String
	return &t, nil
}

// nullJSON encodes optional values as JSONB, NULL when absent.
func nullJSON[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
