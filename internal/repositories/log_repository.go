package repositories

import (
	"context"
	"database/sql"

	"taskmanager/internal/models"
)

type LogRepository interface {
	// Insert stores the entry once; a repeated id is ignored and reports false.
	Insert(ctx context.Context, entry models.LogEntry) (inserted bool, err error)
	FindAll(ctx context.Context) ([]models.LogEntry, error)
}

type logRepository struct {
	db *sql.DB
}

func NewLogRepository(db *sql.DB) LogRepository {
	return &logRepository{db: db}
}

func (r *logRepository) Insert(ctx context.Context, e models.LogEntry) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO task_logs (id, timestamp, action, task_id, task_title)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.Timestamp, e.Action, e.TaskID, e.TaskTitle,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// FindAll returns the log newest first.
func (r *logRepository) FindAll(ctx context.Context) ([]models.LogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, timestamp, action, task_id, task_title
		FROM task_logs ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.LogEntry{}
	for rows.Next() {
		var e models.LogEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Action, &e.TaskID, &e.TaskTitle); err != nil {
			return nil, err
		}
		logs = append(logs, e)
	}
	return logs, rows.Err()
}
