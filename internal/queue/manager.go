// Package queue keeps mutations that could not be mirrored to the server and replays them later.
package queue

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"taskmanager/internal/gateway"
	"taskmanager/internal/logger"
	"taskmanager/internal/models"
	"taskmanager/internal/notify"
	"taskmanager/internal/storage"
)

// DrainResult describes one drain pass.
type DrainResult struct {
	Sent      int
	Remaining int
}

// Manager owns offline_tasks_queue and offline_logs_queue; nothing else writes them.
type Manager struct {
	kv       storage.KV
	gw       gateway.Gateway
	notifier notify.Notifier
	log      *zap.SugaredLogger

	mu      sync.Mutex // read-modify-write of the queue keys
	drainMu sync.Mutex // one drain pass at a time

	onSynced func(ctx context.Context) error
}

func NewManager(kv storage.KV, gw gateway.Gateway, n notify.Notifier, log *zap.SugaredLogger) *Manager {
	return &Manager{kv: kv, gw: gw, notifier: n, log: logger.OrNop(log)}
}

// OnSynced registers the hook run after a task drain pass finishes without failures.
func (m *Manager) OnSynced(fn func(ctx context.Context) error) {
	m.onSynced = fn
}

// Enqueue stores a pending mutation, collapsing it into an existing entry for the same task id.
func (m *Manager) Enqueue(ctx context.Context, task models.Task, flag models.MutationFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.loadTasks(ctx)
	if err != nil {
		notify.Error(m.notifier, "Error reading offline queue")
		return err
	}
	next := models.QueuedMutation{Task: task.Clone(), Flag: flag}

	replaced := false
	for i := range pending {
		if pending[i].ID == task.ID {
			pending[i] = models.Collapse(pending[i], next)
			replaced = true
			break
		}
	}
	if !replaced {
		pending = append(pending, next)
	}

	if err := storage.SaveJSON(ctx, m.kv, storage.KeyTasksQueue, pending); err != nil {
		m.log.Errorf("[queue][enqueue][err] id=%s flag=%s: %v", task.ID, flag, err)
		notify.Error(m.notifier, "Error saving offline queue")
		return err
	}
	m.log.Infof("[queue][enqueue][ok] id=%s flag=%s collapsed=%v size=%d", task.ID, flag, replaced, len(pending))
	return nil
}

// EnqueueLog appends a log entry. Logs are never collapsed.
func (m *Manager) EnqueueLog(ctx context.Context, entry models.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.loadLogs(ctx)
	if err != nil {
		notify.Error(m.notifier, "Error reading offline log queue")
		return err
	}
	pending = append(pending, entry)
	if err := storage.SaveJSON(ctx, m.kv, storage.KeyLogsQueue, pending); err != nil {
		m.log.Errorf("[queue][enqueue-log][err] id=%s: %v", entry.ID, err)
		notify.Error(m.notifier, "Error saving offline log queue")
		return err
	}
	m.log.Debugf("[queue][enqueue-log][ok] id=%s size=%d", entry.ID, len(pending))
	return nil
}

func (m *Manager) PendingTasks(ctx context.Context) ([]models.QueuedMutation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadTasks(ctx)
}

func (m *Manager) PendingLogs(ctx context.Context) ([]models.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLogs(ctx)
}

// DrainTasks replays queued task mutations in order and stops at the first failure.
// Confirmed entries are removed one by one, so a later pass resumes at the failed entry.
func (m *Manager) DrainTasks(ctx context.Context) (DrainResult, error) {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()

	pending, err := m.PendingTasks(ctx)
	if err != nil {
		notify.Error(m.notifier, "Error reading offline queue")
		return DrainResult{}, err
	}

	for i, mu := range pending {
		if err := m.replay(ctx, mu); err != nil {
			res := DrainResult{Sent: i, Remaining: len(pending) - i}
			m.log.Warnf("[queue][drain-tasks][abort] id=%s flag=%s sent=%d remaining=%d: %v",
				mu.ID, mu.Flag, res.Sent, res.Remaining, err)
			notify.Error(m.notifier, "Sync failed, changes stay queued")
			return res, fmt.Errorf("replay %s %s: %w", mu.Flag, mu.ID, err)
		}
		if err := m.removeTask(ctx, mu); err != nil {
			notify.Error(m.notifier, "Error saving offline queue")
			return DrainResult{Sent: i + 1, Remaining: len(pending) - i - 1}, err
		}
	}

	res := DrainResult{Sent: len(pending)}
	if res.Sent > 0 {
		m.log.Infof("[queue][drain-tasks][ok] sent=%d", res.Sent)
		notify.OK(m.notifier, fmt.Sprintf("Synced %d offline change(s)", res.Sent))
	}
	if m.onSynced != nil {
		if err := m.onSynced(ctx); err != nil {
			m.log.Warnf("[queue][drain-tasks][resync][err] %v", err)
			notify.Error(m.notifier, "Error refreshing tasks from server")
			return res, fmt.Errorf("resync: %w", err)
		}
	}
	return res, nil
}

// DrainLogs replays queued log entries in order, fail-fast like DrainTasks.
func (m *Manager) DrainLogs(ctx context.Context) (DrainResult, error) {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()

	pending, err := m.PendingLogs(ctx)
	if err != nil {
		notify.Error(m.notifier, "Error reading offline log queue")
		return DrainResult{}, err
	}

	for i, entry := range pending {
		if err := m.gw.CreateLog(ctx, entry); err != nil {
			res := DrainResult{Sent: i, Remaining: len(pending) - i}
			m.log.Warnf("[queue][drain-logs][abort] id=%s sent=%d remaining=%d: %v", entry.ID, res.Sent, res.Remaining, err)
			notify.Error(m.notifier, "Log sync failed, entries stay queued")
			return res, fmt.Errorf("replay log %s: %w", entry.ID, err)
		}
		if err := m.removeLog(ctx, entry.ID); err != nil {
			notify.Error(m.notifier, "Error saving offline log queue")
			return DrainResult{Sent: i + 1, Remaining: len(pending) - i - 1}, err
		}
	}
	if len(pending) > 0 {
		m.log.Infof("[queue][drain-logs][ok] sent=%d", len(pending))
	}
	return DrainResult{Sent: len(pending)}, nil
}

func (m *Manager) replay(ctx context.Context, mu models.QueuedMutation) error {
	switch mu.Flag {
	case models.FlagDelete:
		err := m.gw.DeleteTask(ctx, mu.ID)
		if errors.Is(err, gateway.ErrNotFound) {
			// сервер задачу не знает (add+delete схлопнулись), считаем применённым
			m.log.Infof("[queue][replay] delete id=%s: already absent on server", mu.ID)
			return nil
		}
		return err
	case models.FlagAdd:
		return m.gw.CreateTask(ctx, mu.Task)
	case models.FlagUpdate:
		return m.gw.UpdateTask(ctx, mu.Task)
	}
	m.log.Warnf("[queue][replay][skip] id=%s unknown flag=%q", mu.ID, mu.Flag)
	return nil
}

// removeTask drops a confirmed entry unless a newer mutation replaced it while it was in flight.
func (m *Manager) removeTask(ctx context.Context, sent models.QueuedMutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.loadTasks(ctx)
	if err != nil {
		return err
	}
	out := pending[:0]
	for _, mu := range pending {
		if mu.ID == sent.ID && reflect.DeepEqual(mu, sent) {
			continue
		}
		out = append(out, mu)
	}
	return storage.SaveJSON(ctx, m.kv, storage.KeyTasksQueue, out)
}

func (m *Manager) removeLog(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.loadLogs(ctx)
	if err != nil {
		return err
	}
	out := pending[:0]
	for _, e := range pending {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return storage.SaveJSON(ctx, m.kv, storage.KeyLogsQueue, out)
}

func (m *Manager) loadTasks(ctx context.Context) ([]models.QueuedMutation, error) {
	pending := []models.QueuedMutation{}
	if _, err := storage.LoadJSON(ctx, m.kv, storage.KeyTasksQueue, &pending); err != nil {
		return nil, err
	}
	return pending, nil
}

func (m *Manager) loadLogs(ctx context.Context) ([]models.LogEntry, error) {
	pending := []models.LogEntry{}
	if _, err := storage.LoadJSON(ctx, m.kv, storage.KeyLogsQueue, &pending); err != nil {
		return nil, err
	}
	return pending, nil
}
