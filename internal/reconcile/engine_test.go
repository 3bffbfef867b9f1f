package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskmanager/internal/connectivity"
	"taskmanager/internal/notify"
	"taskmanager/internal/queue"
)

type fakeDrainer struct {
	mu      sync.Mutex
	calls   []string
	logsErr error
	block   chan struct{}
}

func (d *fakeDrainer) DrainLogs(context.Context) (queue.DrainResult, error) {
	d.mu.Lock()
	d.calls = append(d.calls, "logs")
	err := d.logsErr
	d.mu.Unlock()
	if d.block != nil {
		<-d.block
	}
	return queue.DrainResult{Sent: 1}, err
}

func (d *fakeDrainer) DrainTasks(context.Context) (queue.DrainResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "tasks")
	return queue.DrainResult{Sent: 2}, nil
}

func (d *fakeDrainer) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func TestEngine_ReconnectDrainsLogsThenTasks(t *testing.T) {
	mon := connectivity.NewMonitor(false)
	d := &fakeDrainer{}
	rec := notify.NewRecorder()
	e := NewEngine(mon, d, rec, nil)
	e.Start(context.Background())
	defer e.Stop()

	mon.Set(true)

	require.Eventually(t, func() bool { return len(d.Calls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"logs", "tasks"}, d.Calls())
	assert.Equal(t, []string{"Back online"}, rec.Messages())

	run, ok := e.LastRun()
	require.True(t, ok)
	assert.Equal(t, "reconnect", run.Trigger)
	assert.Equal(t, 2, run.Tasks.Sent)
	assert.Empty(t, run.Error)
}

func TestEngine_GoingOfflineOnlyNotifies(t *testing.T) {
	mon := connectivity.NewMonitor(true)
	d := &fakeDrainer{}
	rec := notify.NewRecorder()
	e := NewEngine(mon, d, rec, nil)
	e.Start(context.Background())
	defer e.Stop()

	mon.Set(false)

	require.Eventually(t, func() bool { return len(rec.Messages()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "You are offline", rec.Messages()[0])
	assert.Empty(t, d.Calls())
}

func TestEngine_LogFailureDoesNotBlockTasks(t *testing.T) {
	d := &fakeDrainer{logsErr: errors.New("boom")}
	e := NewEngine(connectivity.NewMonitor(true), d, notify.NewRecorder(), nil)

	err := e.SyncNow(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logs: boom")
	assert.Equal(t, []string{"logs", "tasks"}, d.Calls())

	run, ok := e.LastRun()
	require.True(t, ok)
	assert.Equal(t, "manual", run.Trigger)
	assert.NotEmpty(t, run.Error)
}

func TestEngine_FlapsAreCoalesced(t *testing.T) {
	mon := connectivity.NewMonitor(false)
	d := &fakeDrainer{block: make(chan struct{})}
	e := NewEngine(mon, d, notify.NewRecorder(), nil)
	e.Start(context.Background())
	defer e.Stop()

	mon.Set(true)
	require.Eventually(t, func() bool { return len(d.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	// while the first drain is stuck, the link flaps several times
	for i := 0; i < 5; i++ {
		mon.Set(false)
		mon.Set(true)
	}
	close(d.block)

	// one more sequence for all the flaps
	require.Eventually(t, func() bool { return len(d.Calls()) == 4 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, d.Calls(), 4)
}

func TestEngine_StopWithoutStart(t *testing.T) {
	e := NewEngine(connectivity.NewMonitor(false), &fakeDrainer{}, notify.NewRecorder(), nil)
	e.Stop()
}
