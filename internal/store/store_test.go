package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskmanager/internal/connectivity"
	"taskmanager/internal/gateway/gatewaytest"
	"taskmanager/internal/models"
	"taskmanager/internal/notify"
	"taskmanager/internal/queue"
	"taskmanager/internal/storage"
)

type fakeReminders struct {
	mu        sync.Mutex
	seq       int
	active    map[string]string
	cancelled []string
}

func newFakeReminders() *fakeReminders {
	return &fakeReminders{active: make(map[string]string)}
}

func (f *fakeReminders) Schedule(_ context.Context, taskID, _ string, due time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if due.Add(-30 * time.Minute).Before(time.Now()) {
		return "", nil
	}
	f.seq++
	h := fmt.Sprintf("h%d", f.seq)
	f.active[h] = taskID
	return h, nil
}

func (f *fakeReminders) Cancel(handle string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.active[handle]; ok {
		delete(f.active, handle)
		f.cancelled = append(f.cancelled, handle)
	}
}

func (f *fakeReminders) Active(handle string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.active[handle]
	return ok
}

func (f *fakeReminders) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.active)
}

type fixture struct {
	kv  *storage.MemoryKV
	gw  *gatewaytest.Fake
	net *connectivity.Monitor
	rem *fakeReminders
	rec *notify.Recorder
	q   *queue.Manager
	s   *Store
}

func newFixture(online bool) *fixture {
	f := &fixture{
		kv:  storage.NewMemoryKV(),
		gw:  gatewaytest.New(),
		net: connectivity.NewMonitor(online),
		rem: newFakeReminders(),
		rec: notify.NewRecorder(),
	}
	f.q = queue.NewManager(f.kv, f.gw, f.rec, nil)
	f.s = f.newStore()
	f.q.OnSynced(f.s.Refresh)
	return f
}

func (f *fixture) newStore() *Store {
	return New(Deps{
		KV:        f.kv,
		Gateway:   f.gw,
		Queue:     f.q,
		Network:   f.net,
		Reminders: f.rem,
		Notifier:  f.rec,
	})
}

func (f *fixture) pending(t *testing.T) []models.QueuedMutation {
	t.Helper()
	p, err := f.q.PendingTasks(context.Background())
	require.NoError(t, err)
	return p
}

func future(d time.Duration) string {
	return models.FormatTimestamp(time.Now().Add(d))
}

func countCalls(gw *gatewaytest.Fake, method, taskID string) int {
	n := 0
	for _, c := range gw.Calls() {
		if c.Method == method && c.TaskID == taskID {
			n++
		}
	}
	return n
}

func TestAddTask_OfflineThenReconnect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)
	require.NoError(t, f.s.Load(ctx))

	added, err := f.s.AddTask(ctx, models.Task{Title: "Buy milk", DateTime: future(2 * time.Hour)})
	require.NoError(t, err)

	assert.Len(t, f.s.Tasks(), 1)
	logs := f.s.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionAdded, logs[0].Action)
	assert.Equal(t, "Buy milk", logs[0].TaskTitle)

	pending := f.pending(t)
	require.Len(t, pending, 1)
	assert.Equal(t, models.FlagAdd, pending[0].Flag)
	assert.Empty(t, f.gw.Calls())
	assert.Contains(t, f.rec.Messages(), "You are offline. Changes will sync later")

	// back online: the engine drains logs then tasks
	f.net.Set(true)
	_, err = f.q.DrainLogs(ctx)
	require.NoError(t, err)
	_, err = f.q.DrainTasks(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, countCalls(f.gw, "POST", added.ID))
	assert.Empty(t, f.pending(t))
	require.Len(t, f.gw.Logs(), 1)

	tasks := f.s.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, added.ID, tasks[0].ID)
	// handle survives the refresh
	assert.Equal(t, added.NotificationID, tasks[0].NotificationID)
	assert.True(t, f.rem.Active(tasks[0].NotificationID))
}

func TestDeleteTask_OnlineServerFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)
	require.NoError(t, f.s.Load(ctx))

	added, err := f.s.AddTask(ctx, models.Task{Title: "Call mom", DateTime: future(3 * time.Hour)})
	require.NoError(t, err)
	require.NotEmpty(t, added.NotificationID)
	require.Empty(t, f.pending(t))

	f.gw.Fail = func(c gatewaytest.Call) bool { return c.Method == "DELETE" }
	require.NoError(t, f.s.DeleteTask(ctx, added.ID))

	assert.Empty(t, f.s.Tasks())
	pending := f.pending(t)
	require.Len(t, pending, 1)
	assert.Equal(t, models.FlagDelete, pending[0].Flag)
	assert.Equal(t, added.ID, pending[0].ID)
	assert.Contains(t, f.rec.Messages(), "Server unavailable. Changes saved offline")
	assert.False(t, f.rem.Active(added.NotificationID))

	logs := f.s.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, models.ActionDeleted, logs[0].Action)
}

func TestDeleteTask_OnlineUnknownOnServerIsApplied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)
	added, err := f.s.AddTask(ctx, models.Task{Title: "local only"})
	require.NoError(t, err)

	// queue cleared behind the store's back, the server never saw the task
	require.NoError(t, f.kv.Remove(ctx, storage.KeyTasksQueue))
	f.net.Set(true)

	require.NoError(t, f.s.DeleteTask(ctx, added.ID))
	assert.Empty(t, f.pending(t))
	assert.Equal(t, 1, countCalls(f.gw, "DELETE", added.ID))
}

func TestMutation_QueuedIDStaysQueuedWhileOnline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)
	added, err := f.s.AddTask(ctx, models.Task{Title: "draft"})
	require.NoError(t, err)

	f.net.Set(true)
	added.Title = "final"
	_, err = f.s.UpdateTask(ctx, added)
	require.NoError(t, err)

	// an update sent before the queued add would hit the server first
	assert.Equal(t, 0, countCalls(f.gw, "PUT", added.ID))
	pending := f.pending(t)
	require.Len(t, pending, 1)
	assert.Equal(t, models.FlagAdd, pending[0].Flag)
	assert.Equal(t, "final", pending[0].Title)
}

func TestLogs_MonotonicWithFrozenClock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)
	frozen := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	f.s.now = func() time.Time { return frozen }

	a, err := f.s.AddTask(ctx, models.Task{ID: "a", Title: "one"})
	require.NoError(t, err)
	_, err = f.s.SetStatus(ctx, a.ID, models.StatusCompleted)
	require.NoError(t, err)
	require.NoError(t, f.s.DeleteTask(ctx, a.ID))

	logs := f.s.Logs()
	require.Len(t, logs, 3)
	seen := map[string]bool{}
	for i, l := range logs {
		assert.False(t, seen[l.ID], "duplicate id %s", l.ID)
		seen[l.ID] = true
		if i > 0 {
			prev, err := models.ParseTimestamp(logs[i-1].Timestamp)
			require.NoError(t, err)
			cur, err := models.ParseTimestamp(l.Timestamp)
			require.NoError(t, err)
			assert.True(t, prev.After(cur))
		}
	}
	assert.Equal(t, models.ActionDeleted, logs[0].Action)
	assert.Equal(t, models.ActionAdded, logs[2].Action)

	queuedLogs, err := f.q.PendingLogs(ctx)
	require.NoError(t, err)
	assert.Len(t, queuedLogs, 3)
}

func TestLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)
	_, err := f.s.AddTask(ctx, models.Task{
		ID:             "t1",
		Title:          "Dentist",
		Location:       "Main st",
		DateTime:       future(5 * time.Hour),
		File:           &models.FileAttachment{Name: "card.pdf", URI: "file:///card.pdf", Size: 1200},
		LocationCoords: &models.Coords{Latitude: 43.2, Longitude: 76.9},
	})
	require.NoError(t, err)
	_, err = f.s.AddTask(ctx, models.Task{ID: "t2", Title: "Gym"})
	require.NoError(t, err)

	reloaded := f.newStore()
	require.NoError(t, reloaded.Load(ctx))

	assert.Equal(t, f.s.Tasks(), reloaded.Tasks())
	assert.Equal(t, f.s.Logs(), reloaded.Logs())
}

func TestLoad_RearmsStaleHandles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)
	require.NoError(t, storage.SaveJSON(ctx, f.kv, storage.KeyTasks, []models.Task{
		{ID: "t1", Title: "x", Status: models.StatusInProgress, DateTime: future(2 * time.Hour), NotificationID: "from-last-run"},
	}))

	require.NoError(t, f.s.Load(ctx))
	task, ok := f.s.Task("t1")
	require.True(t, ok)
	assert.NotEqual(t, "from-last-run", task.NotificationID)
	assert.True(t, f.rem.Active(task.NotificationID))
}

func TestLoad_SeedsFromServerWhenEmptyAndOnline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)
	f.gw.Seed(
		[]models.Task{{ID: "s1", Title: "from server", Status: models.StatusInProgress}},
		[]models.LogEntry{{ID: "s1_added_1", Timestamp: "2026-10-01T10:00:00Z", Action: models.ActionAdded, TaskID: "s1"}},
	)

	require.NoError(t, f.s.Load(ctx))
	require.Len(t, f.s.Tasks(), 1)
	assert.Len(t, f.s.Logs(), 1)

	var stored []models.Task
	ok, err := storage.LoadJSON(ctx, f.kv, storage.KeyTasks, &stored)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "s1", stored[0].ID)
}

func TestLoad_OfflineStartsEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)
	f.gw.Seed([]models.Task{{ID: "s1", Title: "from server"}}, nil)

	require.NoError(t, f.s.Load(ctx))
	assert.Empty(t, f.s.Tasks())
	assert.Empty(t, f.s.Logs())
}

func TestLoad_CorruptTasksNotifies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)
	require.NoError(t, f.kv.Set(ctx, storage.KeyTasks, []byte("{not json")))

	assert.Error(t, f.s.Load(ctx))
	assert.Empty(t, f.s.Tasks())
	assert.Contains(t, f.rec.Messages(), "Error loading tasks")
}

func TestPersistFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)
	f.kv.FailSet = fmt.Errorf("disk full")

	added, err := f.s.AddTask(ctx, models.Task{Title: "kept"})
	require.NoError(t, err)

	_, ok := f.s.Task(added.ID)
	assert.True(t, ok)
	assert.Contains(t, f.rec.Messages(), "Error saving tasks")
	assert.Contains(t, f.rec.Messages(), "Error saving logs")
}

func TestUpdateTask_ReplacesReminder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)
	added, err := f.s.AddTask(ctx, models.Task{Title: "meeting", DateTime: future(2 * time.Hour)})
	require.NoError(t, err)
	first := added.NotificationID
	require.NotEmpty(t, first)

	added.DateTime = future(4 * time.Hour)
	updated, err := f.s.UpdateTask(ctx, added)
	require.NoError(t, err)

	assert.NotEqual(t, first, updated.NotificationID)
	assert.False(t, f.rem.Active(first))
	assert.True(t, f.rem.Active(updated.NotificationID))
	assert.Equal(t, 1, f.rem.activeCount())
	assert.Equal(t, added.AddedAt, updated.AddedAt)
	assert.Equal(t, 1, countCalls(f.gw, "PUT", added.ID))
}

func TestUpdateTask_PastMomentSkipsReminder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)
	added, err := f.s.AddTask(ctx, models.Task{Title: "soon", DateTime: future(10 * time.Minute)})
	require.NoError(t, err)
	assert.Empty(t, added.NotificationID)
	assert.Equal(t, 0, f.rem.activeCount())
}

func TestSetStatus_CompletedCancelsReminder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)
	added, err := f.s.AddTask(ctx, models.Task{Title: "run", DateTime: future(2 * time.Hour)})
	require.NoError(t, err)

	done, err := f.s.SetStatus(ctx, added.ID, models.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Empty(t, done.NotificationID)
	assert.False(t, f.rem.Active(added.NotificationID))

	_, err = f.s.SetStatus(ctx, added.ID, "Paused")
	assert.ErrorIs(t, err, ErrInvalidTask)
	assert.Contains(t, f.rec.Messages(), "Invalid status")
}

func TestSetStatus_ToggleCycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)
	added, err := f.s.AddTask(ctx, models.Task{Title: "toggle", DateTime: future(2 * time.Hour)})
	require.NoError(t, err)

	// Completed -> Cancelled -> In Progress -> Completed
	for _, st := range []models.TaskStatus{
		models.StatusCompleted, models.StatusCancelled, models.StatusInProgress, models.StatusCompleted,
	} {
		got, err := f.s.SetStatus(ctx, added.ID, st)
		require.NoError(t, err, st)
		assert.Equal(t, st, got.Status)
		stored, ok := f.s.Task(added.ID)
		require.True(t, ok)
		assert.Equal(t, st, stored.Status)
	}

	cancelled, err := f.s.UpdateTask(ctx, models.Task{ID: added.ID, Title: "toggle", Status: models.StatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, 5, countCalls(f.gw, "PUT", added.ID))
	assert.Len(t, f.s.Logs(), 6)
}

func TestUnknownIDIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)

	_, err := f.s.UpdateTask(ctx, models.Task{ID: "ghost", Title: "x"})
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.ErrorIs(t, f.s.DeleteTask(ctx, "ghost"), ErrTaskNotFound)
	_, err = f.s.SetStatus(ctx, "ghost", models.StatusCompleted)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	assert.Empty(t, f.s.Logs())
	assert.Empty(t, f.gw.Calls())
	assert.Equal(t, []string{"Task not found", "Task not found", "Task not found"}, f.rec.Messages())
}

func TestAddTask_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)

	_, err := f.s.AddTask(ctx, models.Task{Title: "  "})
	assert.ErrorIs(t, err, ErrInvalidTask)
	_, err = f.s.AddTask(ctx, models.Task{Title: "x", Status: "Paused"})
	assert.ErrorIs(t, err, ErrInvalidTask)

	_, err = f.s.AddTask(ctx, models.Task{ID: "dup", Title: "x"})
	require.NoError(t, err)
	_, err = f.s.AddTask(ctx, models.Task{ID: "dup", Title: "y"})
	assert.ErrorIs(t, err, ErrInvalidTask)
}

func TestRefresh_OverlaysPendingQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)
	f.gw.Seed([]models.Task{
		{ID: "a", Title: "server a", Status: models.StatusInProgress},
		{ID: "gone", Title: "deleted offline", Status: models.StatusInProgress},
	}, nil)
	require.NoError(t, f.q.Enqueue(ctx, models.Task{ID: "a", Title: "local a", Status: models.StatusInProgress}, models.FlagUpdate))
	require.NoError(t, f.q.Enqueue(ctx, models.Task{ID: "b", Title: "local b", Status: models.StatusInProgress}, models.FlagAdd))
	require.NoError(t, f.q.Enqueue(ctx, models.Task{ID: "gone"}, models.FlagDelete))

	require.NoError(t, f.s.Refresh(ctx))

	tasks := f.s.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "local a", tasks[0].Title)
	assert.Equal(t, "b", tasks[1].ID)
}

func TestRefresh_CancelsRemindersOfRemovedTasks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)
	added, err := f.s.AddTask(ctx, models.Task{Title: "removed elsewhere", DateTime: future(2 * time.Hour)})
	require.NoError(t, err)
	require.True(t, f.rem.Active(added.NotificationID))

	f.gw.Seed(nil, f.gw.Logs())
	require.NoError(t, f.s.Refresh(ctx))

	assert.Empty(t, f.s.Tasks())
	assert.False(t, f.rem.Active(added.NotificationID))
}

func TestRefresh_ServerDownKeepsLocal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(false)
	_, err := f.s.AddTask(ctx, models.Task{Title: "x"})
	require.NoError(t, err)

	f.gw.FailAll()
	assert.Error(t, f.s.Refresh(ctx))
	assert.Len(t, f.s.Tasks(), 1)
}

func TestConcurrentUpdatesSameID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)
	added, err := f.s.AddTask(ctx, models.Task{ID: "c", Title: "v0"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := added
			next.Title = fmt.Sprintf("v%d", i)
			_, err := f.s.UpdateTask(ctx, next)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, f.s.Logs(), 21)
	assert.Equal(t, 0, f.s.locks.size())

	var stored []models.Task
	_, err = storage.LoadJSON(ctx, f.kv, storage.KeyTasks, &stored)
	require.NoError(t, err)
	got, _ := f.s.Task("c")
	assert.Equal(t, []models.Task{got}, stored)
}

func TestKeyedMutex_Serializes(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")

	acquired := make(chan struct{})
	go func() {
		u := k.Lock("a")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired while held")
	case <-time.After(30 * time.Millisecond):
	}
	// other keys are independent
	k.Lock("b")()

	unlock()
	<-acquired
	assert.Eventually(t, func() bool { return k.size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestOverlayAndMergeLogs(t *testing.T) {
	logs := mergeLogs(
		[]models.LogEntry{{ID: "2", Timestamp: "2026-10-02T00:00:00Z"}, {ID: "1", Timestamp: "2026-10-01T00:00:00Z"}},
		[]models.LogEntry{{ID: "1", Timestamp: "2026-10-01T00:00:00Z"}, {ID: "3", Timestamp: "2026-10-03T00:00:00Z"}},
	)
	ids := make([]string, len(logs))
	for i, l := range logs {
		ids[i] = l.ID
	}
	assert.Equal(t, []string{"3", "2", "1"}, ids)
}

func TestMirroredCopiesCarryNoReminderHandle(t *testing.T) {
	ctx := context.Background()

	online := newFixture(true)
	added, err := online.s.AddTask(ctx, models.Task{Title: "dentist", DateTime: future(3 * time.Hour)})
	require.NoError(t, err)
	require.NotEmpty(t, added.NotificationID)
	added.DateTime = future(5 * time.Hour)
	updated, err := online.s.UpdateTask(ctx, added)
	require.NoError(t, err)
	require.NotEmpty(t, updated.NotificationID)

	remote := online.gw.Tasks()
	require.Len(t, remote, 1)
	assert.Empty(t, remote[0].NotificationID)
	local, _ := online.s.Task(added.ID)
	assert.Equal(t, updated.NotificationID, local.NotificationID)

	offline := newFixture(false)
	queued, err := offline.s.AddTask(ctx, models.Task{Title: "dentist", DateTime: future(3 * time.Hour)})
	require.NoError(t, err)
	require.NotEmpty(t, queued.NotificationID)
	pending := offline.pending(t)
	require.Len(t, pending, 1)
	assert.Empty(t, pending[0].NotificationID)
}
