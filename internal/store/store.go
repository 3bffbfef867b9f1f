// Package store is the agent's authoritative in-memory view of tasks and the activity log.
// Every mutation runs the same ordered pipeline: persist locally, append a log entry,
// mirror to the server or queue for later, then (re)arm the reminder.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskmanager/internal/connectivity"
	"taskmanager/internal/gateway"
	"taskmanager/internal/logger"
	"taskmanager/internal/models"
	"taskmanager/internal/notify"
	"taskmanager/internal/reminder"
	"taskmanager/internal/storage"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrInvalidTask  = errors.New("invalid task")
)

// Queue is the part of the offline queue the store writes to.
type Queue interface {
	Enqueue(ctx context.Context, task models.Task, flag models.MutationFlag) error
	EnqueueLog(ctx context.Context, entry models.LogEntry) error
	PendingTasks(ctx context.Context) ([]models.QueuedMutation, error)
}

// Deps are the collaborators of a Store. Log may be nil.
type Deps struct {
	KV        storage.KV
	Gateway   gateway.Gateway
	Queue     Queue
	Network   connectivity.State
	Reminders reminder.Service
	Notifier  notify.Notifier
	Log       *zap.SugaredLogger
}

type Store struct {
	kv        storage.KV
	gw        gateway.Gateway
	queue     Queue
	net       connectivity.State
	reminders reminder.Service
	notifier  notify.Notifier
	log       *zap.SugaredLogger
	now       func() time.Time

	mu        sync.RWMutex
	tasks     []models.Task
	logs      []models.LogEntry
	lastLogAt time.Time

	// mutations hold barrier.RLock; Load and Refresh replace the lists under barrier.Lock
	barrier   sync.RWMutex
	persistMu sync.Mutex
	locks     *keyedMutex
}

func New(d Deps) *Store {
	return &Store{
		kv:        d.KV,
		gw:        d.Gateway,
		queue:     d.Queue,
		net:       d.Network,
		reminders: d.Reminders,
		notifier:  d.Notifier,
		log:       logger.OrNop(d.Log),
		now:       time.Now,
		locks:     newKeyedMutex(),
	}
}

// ---- reads ----

// Tasks returns a copy of the task list in insertion order.
func (s *Store) Tasks() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.Clone()
	}
	return out
}

func (s *Store) Task(id string) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t.Clone(), true
		}
	}
	return models.Task{}, false
}

// Logs returns the activity log, newest first.
func (s *Store) Logs() []models.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.LogEntry(nil), s.logs...)
}

// ---- startup ----

// Load reads the local mirror. An empty task list is seeded from the server once, if online.
func (s *Store) Load(ctx context.Context) error {
	s.barrier.Lock()
	defer s.barrier.Unlock()

	tasks := []models.Task{}
	logs := []models.LogEntry{}
	var loadErr error
	if _, err := storage.LoadJSON(ctx, s.kv, storage.KeyTasks, &tasks); err != nil {
		s.log.Errorf("[store][load][err] tasks: %v", err)
		notify.Error(s.notifier, "Error loading tasks")
		tasks, loadErr = []models.Task{}, err
	}
	if _, err := storage.LoadJSON(ctx, s.kv, storage.KeyLogs, &logs); err != nil {
		s.log.Errorf("[store][load][err] logs: %v", err)
		notify.Error(s.notifier, "Error loading logs")
		logs, loadErr = []models.LogEntry{}, errors.Join(loadErr, err)
	}

	seeded, seededLogs := false, false
	if len(tasks) == 0 && s.net.Online() {
		remote, err := s.gw.ListTasks(ctx)
		if err != nil {
			s.log.Warnf("[store][load][seed][err] tasks: %v", err)
			notify.Error(s.notifier, "Error loading tasks from server")
		} else {
			tasks, seeded = remote, true
		}
		if len(logs) == 0 {
			if remoteLogs, err := s.gw.ListLogs(ctx); err != nil {
				s.log.Warnf("[store][load][seed][err] logs: %v", err)
			} else {
				logs, seededLogs = remoteLogs, true
				sortNewestFirst(logs)
			}
		}
	}
	s.setLogs(logs)
	if len(logs) > 0 {
		if at, err := models.ParseTimestamp(logs[0].Timestamp); err == nil {
			s.lastLogAt = at
		}
	}
	if seededLogs {
		if err := s.persistLogs(ctx); err != nil {
			notify.Error(s.notifier, "Error saving logs")
		}
	}

	tasks = s.syncReminders(ctx, nil, tasks)
	s.setTasks(tasks)
	if len(tasks) > 0 {
		// seeded data and re-armed handles
		if err := s.persistTasks(ctx); err != nil {
			notify.Error(s.notifier, "Error saving tasks")
		}
	}
	s.log.Infof("[store][load][ok] tasks=%d logs=%d seeded=%v", len(tasks), len(logs), seeded)
	return loadErr
}

// Refresh replaces the local mirror with server state, then re-applies mutations still queued.
// Mutations wait for it, so no mirrored change lands between the fetch and the swap.
func (s *Store) Refresh(ctx context.Context) error {
	s.barrier.Lock()
	defer s.barrier.Unlock()

	remoteTasks, err := s.gw.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	remoteLogs, logsErr := s.gw.ListLogs(ctx)
	if logsErr != nil {
		s.log.Warnf("[store][refresh][warn] logs: %v", logsErr)
	}
	pending, err := s.queue.PendingTasks(ctx)
	if err != nil {
		return fmt.Errorf("read queue: %w", err)
	}

	next := overlay(remoteTasks, pending)
	prev := make(map[string]models.Task)
	for _, t := range s.Tasks() {
		prev[t.ID] = t
	}
	next = s.syncReminders(ctx, prev, next)
	s.setTasks(next)
	if err := s.persistTasks(ctx); err != nil {
		s.log.Errorf("[store][refresh][err] persist tasks: %v", err)
		notify.Error(s.notifier, "Error saving tasks")
	}

	if logsErr == nil {
		s.setLogs(mergeLogs(s.Logs(), remoteLogs))
		if err := s.persistLogs(ctx); err != nil {
			s.log.Errorf("[store][refresh][err] persist logs: %v", err)
			notify.Error(s.notifier, "Error saving logs")
		}
	}
	s.log.Infof("[store][refresh][ok] tasks=%d pending=%d", len(next), len(pending))
	return nil
}

// ---- mutations ----

// AddTask creates a task. Missing id, addedAt and status are filled in.
func (s *Store) AddTask(ctx context.Context, t models.Task) (models.Task, error) {
	t = t.Clone()
	if strings.TrimSpace(t.Title) == "" {
		return models.Task{}, fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.AddedAt == "" {
		t.AddedAt = models.FormatTimestamp(s.now())
	}
	if t.Status == "" {
		t.Status = models.StatusInProgress
	}
	if !t.Status.Valid() {
		return models.Task{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTask, t.Status)
	}
	// handle принадлежит этому процессу, от клиента не принимаем
	t.NotificationID = ""

	s.barrier.RLock()
	defer s.barrier.RUnlock()
	unlock := s.locks.Lock(t.ID)
	defer unlock()

	if _, exists := s.Task(t.ID); exists {
		return models.Task{}, fmt.Errorf("%w: duplicate id %s", ErrInvalidTask, t.ID)
	}

	var entry models.LogEntry
	runPipeline(ctx, s.log, "add", t.ID,
		step{"persist", func(ctx context.Context) error {
			s.mutateTasks(func(list []models.Task) []models.Task { return append(list, t) })
			return s.persistTasks(ctx)
		}, s.notifyErr("Error saving tasks")},
		step{"log", func(ctx context.Context) error {
			entry = s.appendLog(models.ActionAdded, t)
			return s.persistLogs(ctx)
		}, s.notifyErr("Error saving logs")},
		step{"mirror", func(ctx context.Context) error {
			return s.mirror(ctx, t, models.FlagAdd, entry)
		}, nil},
		step{"reminder", func(ctx context.Context) error {
			return s.rearm(ctx, &t, "")
		}, s.notifyErr("Error scheduling reminder")},
	)
	s.log.Infof("[store][add][ok] id=%s title=%q", t.ID, t.Title)
	return t, nil
}

// UpdateTask replaces a task's fields. addedAt and the reminder handle are kept from the stored copy.
func (s *Store) UpdateTask(ctx context.Context, t models.Task) (models.Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return models.Task{}, fmt.Errorf("%w: title is required", ErrInvalidTask)
	}

	s.barrier.RLock()
	defer s.barrier.RUnlock()
	unlock := s.locks.Lock(t.ID)
	defer unlock()

	old, ok := s.Task(t.ID)
	if !ok {
		notify.Error(s.notifier, "Task not found")
		return models.Task{}, ErrTaskNotFound
	}
	return s.update(ctx, old, t.Clone())
}

// SetStatus is the status toggle: same pipeline as UpdateTask with only the status changed.
func (s *Store) SetStatus(ctx context.Context, id string, status models.TaskStatus) (models.Task, error) {
	s.barrier.RLock()
	defer s.barrier.RUnlock()
	unlock := s.locks.Lock(id)
	defer unlock()

	old, ok := s.Task(id)
	if !ok {
		notify.Error(s.notifier, "Task not found")
		return models.Task{}, ErrTaskNotFound
	}
	next := old.Clone()
	next.Status = status
	return s.update(ctx, old, next)
}

func (s *Store) update(ctx context.Context, old, next models.Task) (models.Task, error) {
	if next.Status == "" {
		next.Status = old.Status
	}
	// any of the three statuses may follow any other
	if !next.Status.Valid() {
		notify.Error(s.notifier, "Invalid status")
		return models.Task{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTask, next.Status)
	}
	next.AddedAt = old.AddedAt
	next.NotificationID = old.NotificationID

	var entry models.LogEntry
	runPipeline(ctx, s.log, "update", next.ID,
		step{"persist", func(ctx context.Context) error {
			s.mutateTasks(func(list []models.Task) []models.Task {
				for i := range list {
					if list[i].ID == next.ID {
						list[i] = next
					}
				}
				return list
			})
			return s.persistTasks(ctx)
		}, s.notifyErr("Error saving tasks")},
		step{"log", func(ctx context.Context) error {
			entry = s.appendLog(models.ActionUpdated, next)
			return s.persistLogs(ctx)
		}, s.notifyErr("Error saving logs")},
		step{"mirror", func(ctx context.Context) error {
			return s.mirror(ctx, next, models.FlagUpdate, entry)
		}, nil},
		step{"reminder", func(ctx context.Context) error {
			return s.rearm(ctx, &next, old.NotificationID)
		}, s.notifyErr("Error scheduling reminder")},
	)
	s.log.Infof("[store][update][ok] id=%s status=%q", next.ID, next.Status)
	return next, nil
}

// DeleteTask removes a task locally, mirrors the delete and cancels its reminder.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	s.barrier.RLock()
	defer s.barrier.RUnlock()
	unlock := s.locks.Lock(id)
	defer unlock()

	old, ok := s.Task(id)
	if !ok {
		notify.Error(s.notifier, "Task not found")
		return ErrTaskNotFound
	}

	var entry models.LogEntry
	runPipeline(ctx, s.log, "delete", id,
		step{"persist", func(ctx context.Context) error {
			s.mutateTasks(func(list []models.Task) []models.Task {
				out := list[:0]
				for _, t := range list {
					if t.ID != id {
						out = append(out, t)
					}
				}
				return out
			})
			return s.persistTasks(ctx)
		}, s.notifyErr("Error deleting tasks")},
		step{"log", func(ctx context.Context) error {
			entry = s.appendLog(models.ActionDeleted, old)
			return s.persistLogs(ctx)
		}, s.notifyErr("Error saving logs")},
		step{"mirror", func(ctx context.Context) error {
			return s.mirror(ctx, old, models.FlagDelete, entry)
		}, nil},
		step{"reminder", func(context.Context) error {
			s.reminders.Cancel(old.NotificationID)
			return nil
		}, nil},
	)
	s.log.Infof("[store][delete][ok] id=%s", id)
	return nil
}

// ---- pipeline steps ----

// mirror sends the mutation to the server or queues it, without the reminder handle.
// While the task already has a queued mutation, new ones go to the queue too, to keep per-task order.
func (s *Store) mirror(ctx context.Context, t models.Task, flag models.MutationFlag, entry models.LogEntry) error {
	// reminder handles are local to this process and never leave it
	t.NotificationID = ""

	if !s.net.Online() {
		notify.Info(s.notifier, "You are offline. Changes will sync later")
		return s.enqueue(ctx, t, flag, entry)
	}

	if s.hasPending(ctx, t.ID) {
		s.log.Infof("[store][mirror] id=%s has queued mutation, queueing %s", t.ID, flag)
		return s.enqueue(ctx, t, flag, entry)
	}

	err := s.callRemote(ctx, t, flag)
	if flag == models.FlagDelete && errors.Is(err, gateway.ErrNotFound) {
		s.log.Infof("[store][mirror] delete id=%s: not on server", t.ID)
		err = nil
	}
	if err != nil {
		s.log.Warnf("[store][mirror][fallback] id=%s flag=%s: %v", t.ID, flag, err)
		notify.Info(s.notifier, "Server unavailable. Changes saved offline")
		if qErr := s.queue.Enqueue(ctx, t, flag); qErr != nil {
			return qErr
		}
	}
	if entry.ID == "" {
		return nil
	}
	if err := s.gw.CreateLog(ctx, entry); err != nil {
		s.log.Warnf("[store][mirror-log][fallback] id=%s: %v", entry.ID, err)
		return s.queue.EnqueueLog(ctx, entry)
	}
	return nil
}

func (s *Store) enqueue(ctx context.Context, t models.Task, flag models.MutationFlag, entry models.LogEntry) error {
	err := s.queue.Enqueue(ctx, t, flag)
	if entry.ID != "" {
		err = errors.Join(err, s.queue.EnqueueLog(ctx, entry))
	}
	return err
}

func (s *Store) callRemote(ctx context.Context, t models.Task, flag models.MutationFlag) error {
	switch flag {
	case models.FlagAdd:
		return s.gw.CreateTask(ctx, t)
	case models.FlagUpdate:
		return s.gw.UpdateTask(ctx, t)
	case models.FlagDelete:
		return s.gw.DeleteTask(ctx, t.ID)
	}
	return fmt.Errorf("unknown flag %q", flag)
}

func (s *Store) hasPending(ctx context.Context, id string) bool {
	pending, err := s.queue.PendingTasks(ctx)
	if err != nil {
		return false
	}
	for _, p := range pending {
		if p.ID == id {
			return true
		}
	}
	return false
}

// rearm cancels prevHandle and schedules a fresh reminder for t, storing the new handle locally.
func (s *Store) rearm(ctx context.Context, t *models.Task, prevHandle string) error {
	handle, err := s.schedule(ctx, *t, prevHandle)
	if handle == t.NotificationID {
		return err
	}
	t.NotificationID = handle
	s.mutateTasks(func(list []models.Task) []models.Task {
		for i := range list {
			if list[i].ID == t.ID {
				list[i].NotificationID = handle
			}
		}
		return list
	})
	if pErr := s.persistTasks(ctx); pErr != nil {
		return errors.Join(err, pErr)
	}
	return err
}

// schedule: reminders only for tasks still in progress with a parseable moment.
func (s *Store) schedule(ctx context.Context, t models.Task, prevHandle string) (string, error) {
	s.reminders.Cancel(prevHandle)
	if t.Status != models.StatusInProgress || t.DateTime == "" {
		return "", nil
	}
	due, err := t.ScheduledAt()
	if err != nil {
		return "", fmt.Errorf("parse dateTime %q: %w", t.DateTime, err)
	}
	return s.reminders.Schedule(ctx, t.ID, t.Title, due)
}

// syncReminders carries live handles over from prev and re-arms the rest.
// Reminders of tasks missing from next are cancelled.
func (s *Store) syncReminders(ctx context.Context, prev map[string]models.Task, next []models.Task) []models.Task {
	seen := make(map[string]bool, len(next))
	for i := range next {
		n := &next[i]
		seen[n.ID] = true
		p, had := prev[n.ID]
		if !had {
			// a loaded copy carries its own handle
			p = *n
		}
		if sameSchedule(p, *n) && s.reminders.Active(p.NotificationID) {
			n.NotificationID = p.NotificationID
			continue
		}
		handle, err := s.schedule(ctx, *n, p.NotificationID)
		if err != nil {
			s.log.Warnf("[store][reminder][err] id=%s: %v", n.ID, err)
		}
		n.NotificationID = handle
	}
	for id, p := range prev {
		if !seen[id] {
			s.reminders.Cancel(p.NotificationID)
		}
	}
	return next
}

func sameSchedule(a, b models.Task) bool {
	return a.DateTime == b.DateTime && a.Title == b.Title && a.Status == b.Status
}

// ---- state helpers ----

func (s *Store) mutateTasks(fn func([]models.Task) []models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = fn(s.tasks)
}

func (s *Store) setTasks(tasks []models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = tasks
}

func (s *Store) setLogs(logs []models.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = logs
}

// appendLog prepends a new entry. Timestamps are strictly increasing so ids never collide.
func (s *Store) appendLog(action models.LogAction, t models.Task) models.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.now()
	if !at.After(s.lastLogAt) {
		at = s.lastLogAt.Add(time.Nanosecond)
	}
	s.lastLogAt = at
	entry := models.NewLogEntry(action, t, at)
	s.logs = append([]models.LogEntry{entry}, s.logs...)
	return entry
}

// persistTasks writes the current in-memory snapshot. Writers are serialized, so the last
// write always carries the latest state.
func (s *Store) persistTasks(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	tasks := s.Tasks()
	return storage.SaveJSON(ctx, s.kv, storage.KeyTasks, tasks)
}

func (s *Store) persistLogs(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	logs := s.Logs()
	if logs == nil {
		logs = []models.LogEntry{}
	}
	return storage.SaveJSON(ctx, s.kv, storage.KeyLogs, logs)
}

func (s *Store) notifyErr(msg string) func(error) {
	return func(error) { notify.Error(s.notifier, msg) }
}

// overlay applies still-queued mutations on top of the server list.
func overlay(remote []models.Task, pending []models.QueuedMutation) []models.Task {
	out := make([]models.Task, 0, len(remote)+len(pending))
	idx := make(map[string]int, len(remote))
	for _, t := range remote {
		idx[t.ID] = len(out)
		out = append(out, t)
	}
	removed := make(map[string]bool)
	for _, p := range pending {
		switch p.Flag {
		case models.FlagDelete:
			removed[p.ID] = true
		case models.FlagAdd, models.FlagUpdate:
			delete(removed, p.ID)
			if i, ok := idx[p.ID]; ok {
				out[i] = p.Task
			} else {
				idx[p.ID] = len(out)
				out = append(out, p.Task)
			}
		}
	}
	if len(removed) == 0 {
		return out
	}
	kept := out[:0]
	for _, t := range out {
		if !removed[t.ID] {
			kept = append(kept, t)
		}
	}
	return kept
}

// mergeLogs is the union by id, newest first.
func mergeLogs(local, remote []models.LogEntry) []models.LogEntry {
	seen := make(map[string]bool, len(local)+len(remote))
	out := make([]models.LogEntry, 0, len(local)+len(remote))
	for _, l := range append(append([]models.LogEntry(nil), remote...), local...) {
		if seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		out = append(out, l)
	}
	sortNewestFirst(out)
	return out
}

func sortNewestFirst(logs []models.LogEntry) {
	sort.SliceStable(logs, func(i, j int) bool {
		a, errA := models.ParseTimestamp(logs[i].Timestamp)
		b, errB := models.ParseTimestamp(logs[j].Timestamp)
		if errA != nil || errB != nil {
			return logs[i].Timestamp > logs[j].Timestamp
		}
		return a.After(b)
	})
}
