// Package reconcile replays the offline queue whenever connectivity comes back.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"taskmanager/internal/logger"
	"taskmanager/internal/notify"
	"taskmanager/internal/queue"
)

// Source is a connectivity signal.
type Source interface {
	Online() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Drainer replays the offline queues.
type Drainer interface {
	DrainLogs(ctx context.Context) (queue.DrainResult, error)
	DrainTasks(ctx context.Context) (queue.DrainResult, error)
}

// Run describes the last drain sequence.
type Run struct {
	At      time.Time         `json:"at"`
	Trigger string            `json:"trigger"`
	Logs    queue.DrainResult `json:"logs"`
	Tasks   queue.DrainResult `json:"tasks"`
	Error   string            `json:"error,omitempty"`
}

// Engine is the Offline/Online state machine. Transitions are coalesced onto one worker,
// only the latest state is acted upon.
type Engine struct {
	src      Source
	drainer  Drainer
	notifier notify.Notifier
	log      *zap.SugaredLogger

	latest     atomic.Bool
	wentOnline atomic.Bool
	signal     chan struct{}

	runMu   sync.Mutex // one drain sequence at a time
	lastMu  sync.Mutex
	lastRun *Run

	cancel context.CancelFunc
	done   chan struct{}
}

func NewEngine(src Source, d Drainer, n notify.Notifier, log *zap.SugaredLogger) *Engine {
	return &Engine{
		src:      src,
		drainer:  d,
		notifier: n,
		log:      logger.OrNop(log),
		signal:   make(chan struct{}, 1),
	}
}

// Start subscribes to the source and runs the worker until ctx is done or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	handled := e.src.Online()
	e.latest.Store(handled)
	unsubscribe := e.src.Subscribe(func(online bool) {
		e.latest.Store(online)
		if online {
			e.wentOnline.Store(true)
		}
		select {
		case e.signal <- struct{}{}:
		default:
		}
	})

	go func() {
		defer close(e.done)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.signal:
				handled = e.step(ctx, handled)
			}
		}
	}()
	e.log.Infof("[reconcile][start] online=%v", handled)
}

// Stop ends the worker and waits for an in-flight drain to return.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

func (e *Engine) step(ctx context.Context, handled bool) bool {
	cur := e.latest.Load()
	if cur {
		// an off/on flap still counts as a reconnect
		if e.wentOnline.Swap(false) {
			e.log.Infof("[reconcile][online]")
			notify.OK(e.notifier, "Back online")
			_ = e.drain(ctx, "reconnect")
		}
		return cur
	}
	if handled {
		e.log.Infof("[reconcile][offline]")
		notify.Info(e.notifier, "You are offline")
	}
	return cur
}

// SyncNow runs the drain sequence on demand.
func (e *Engine) SyncNow(ctx context.Context) error {
	return e.drain(ctx, "manual")
}

// LastRun returns the most recent drain sequence, if any.
func (e *Engine) LastRun() (Run, bool) {
	e.lastMu.Lock()
	defer e.lastMu.Unlock()
	if e.lastRun == nil {
		return Run{}, false
	}
	return *e.lastRun, true
}

// drain replays logs, then tasks. A log failure does not stop the task pass.
func (e *Engine) drain(ctx context.Context, trigger string) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	run := Run{At: time.Now(), Trigger: trigger}
	var errs error

	logs, err := e.drainer.DrainLogs(ctx)
	run.Logs = logs
	if err != nil {
		e.log.Warnf("[reconcile][drain-logs][err] %v", err)
		errs = fmt.Errorf("logs: %w", err)
	}

	tasks, err := e.drainer.DrainTasks(ctx)
	run.Tasks = tasks
	if err != nil {
		e.log.Warnf("[reconcile][drain-tasks][err] %v", err)
		errs = errors.Join(errs, fmt.Errorf("tasks: %w", err))
	}

	if errs != nil {
		run.Error = errs.Error()
	}
	e.lastMu.Lock()
	e.lastRun = &run
	e.lastMu.Unlock()

	e.log.Infof("[reconcile][drain][done] trigger=%s logs_sent=%d tasks_sent=%d tasks_left=%d",
		trigger, logs.Sent, tasks.Sent, tasks.Remaining)
	return errs
}
